package parser

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"hr-agent-go/internal/agent"
	"hr-agent-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 一份完整的员工记录JSON，覆盖全部14个字段
const fullRecordJSON = `[
  {
    "employee_id": "EMP-1024",
    "first_name": "Jane",
    "last_name": "Doe",
    "date_of_birth": "1990-04-12",
    "address": {"street": "12 Elm St", "city": "Springfield", "state": "IL", "postal_code": "62701", "country": "USA"},
    "contact_details": {"email": "jane.doe@example.com", "phone": "+1-555-0101"},
    "job_details": {"job_title": "Senior Engineer", "department": "Platform", "hire_date": "2018-06-01", "employment_type": "full-time"},
    "work_location": "Chicago office, hybrid",
    "reporting_manager": "Alex Kim",
    "skills": ["Go", "Kubernetes"],
    "performance_reviews": [{"period": "2023", "rating": "exceeds", "comments": "strong delivery"}],
    "benefits": ["health insurance"],
    "emergency_contact": {"name": "John Doe", "relationship": "spouse", "phone": "+1-555-0102"},
    "notes": "mentors two juniors"
  }
]`

func newTestExtractor(mock *agent.MockChatClient) *LLMEmployeeExtractor {
	return NewLLMEmployeeExtractor(mock, log.New(io.Discard, "", 0))
}

// TestExtractRecords_FencedJSONArray LLM按约定返回```json代码块时的正常解析路径
func TestExtractRecords_FencedJSONArray(t *testing.T) {
	mock := agent.NewMockChatClient("Here are the extracted records:\n```json\n"+fullRecordJSON+"\n```", nil)
	extractor := newTestExtractor(mock)

	records, err := extractor.ExtractRecords(context.Background(), "Jane Doe resume text")
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "EMP-1024", rec.EmployeeID)
	assert.Equal(t, "Jane", rec.FirstName)
	assert.Equal(t, "Doe", rec.LastName)
	assert.Equal(t, "1990-04-12", rec.DateOfBirth)
	assert.Equal(t, "Springfield", rec.Address.City)
	assert.Equal(t, "jane.doe@example.com", rec.ContactDetails.Email)
	assert.Equal(t, "Senior Engineer", rec.JobDetails.JobTitle)
	assert.Equal(t, "Platform", rec.JobDetails.Department)
	assert.Equal(t, "Chicago office, hybrid", rec.WorkLocation)
	assert.Equal(t, "Alex Kim", rec.ReportingManager)
	assert.Equal(t, []string{"Go", "Kubernetes"}, rec.Skills)
	require.Len(t, rec.PerformanceReviews, 1)
	assert.Equal(t, "exceeds", rec.PerformanceReviews[0].Rating)
	assert.Equal(t, []string{"health insurance"}, rec.Benefits)
	assert.Equal(t, "spouse", rec.EmergencyContact.Relationship)
	assert.Equal(t, "mentors two juniors", rec.Notes)
	assert.Equal(t, "Jane Doe", rec.FullName())
}

// TestExtractRecords_BareArrayWithProse 无代码块时回退到括号配对提取
func TestExtractRecords_BareArrayWithProse(t *testing.T) {
	response := "Sure, I extracted the following employees.\n" + fullRecordJSON + "\nLet me know if you need anything else."
	mock := agent.NewMockChatClient(response, nil)
	extractor := newTestExtractor(mock)

	records, err := extractor.ExtractRecords(context.Background(), "some resume text")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "EMP-1024", records[0].EmployeeID)
}

// TestExtractRecords_SingleObjectFallback 有些模型直接返回单个对象而不是数组
func TestExtractRecords_SingleObjectFallback(t *testing.T) {
	response := "```json\n{\"employee_id\": \"EMP-7\", \"first_name\": \"Li\", \"last_name\": \"Wei\"}\n```"
	mock := agent.NewMockChatClient(response, nil)
	extractor := newTestExtractor(mock)

	records, err := extractor.ExtractRecords(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "EMP-7", records[0].EmployeeID)
	assert.Equal(t, "Li Wei", records[0].FullName())
}

// TestExtractRecords_MissingFieldsStayEmpty 缺失字段以零值保留，不报错
func TestExtractRecords_MissingFieldsStayEmpty(t *testing.T) {
	response := "```json\n[{\"employee_id\": \"\", \"first_name\": \"Sam\", \"last_name\": \"\", \"skills\": []}]\n```"
	mock := agent.NewMockChatClient(response, nil)
	extractor := newTestExtractor(mock)

	records, err := extractor.ExtractRecords(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].EmployeeID)
	assert.Empty(t, records[0].Skills)
	assert.Empty(t, records[0].JobDetails.JobTitle)
	assert.Equal(t, "Sam", records[0].FullName())
}

// TestExtractRecords_NoJSONInResponse 响应里完全没有JSON时必须映射到数据契约错误
func TestExtractRecords_NoJSONInResponse(t *testing.T) {
	mock := agent.NewMockChatClient("I could not find any employee information in this document.", nil)
	extractor := newTestExtractor(mock)

	records, err := extractor.ExtractRecords(context.Background(), "text")
	assert.Nil(t, records)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrMalformedRecordJSON), "期望 ErrMalformedRecordJSON，得到: %v", err)
}

// TestExtractRecords_InvalidJSONStructure JSON语法合法但无法反序列化为记录时同样报契约错误
func TestExtractRecords_InvalidJSONStructure(t *testing.T) {
	mock := agent.NewMockChatClient("```json\n[\"just\", \"strings\"]\n```", nil)
	extractor := newTestExtractor(mock)

	records, err := extractor.ExtractRecords(context.Background(), "text")
	assert.Nil(t, records)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrMalformedRecordJSON))
}

// TestExtractRecords_LLMError LLM调用失败时错误不应被归入数据契约错误
func TestExtractRecords_LLMError(t *testing.T) {
	mock := agent.NewMockChatClient("", errors.New("api quota exceeded"))
	extractor := newTestExtractor(mock)

	records, err := extractor.ExtractRecords(context.Background(), "text")
	assert.Nil(t, records)
	require.Error(t, err)
	assert.False(t, errors.Is(err, types.ErrMalformedRecordJSON))
	assert.Contains(t, err.Error(), "quota")
}

// TestExtractRecords_PromptContainsContract 提示词必须携带完整的字段契约和简历正文
func TestExtractRecords_PromptContainsContract(t *testing.T) {
	mock := agent.NewMockChatClient("```json\n[]\n```", nil)
	extractor := newTestExtractor(mock)

	_, err := extractor.ExtractRecords(context.Background(), "UNIQUE-RESUME-BODY-MARKER")
	require.NoError(t, err)

	messages := mock.GetReceivedMessages()
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, "employee_id")
	assert.Contains(t, messages[0].Content, "emergency_contact")
	assert.Contains(t, messages[0].Content, "JSON array")
	assert.Equal(t, "UNIQUE-RESUME-BODY-MARKER", messages[1].Content)
}

// TestExtractJSONArray 括号配对提取对字符串内的括号与转义不敏感
func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "纯数组",
			input:    `[{"a": 1}]`,
			expected: `[{"a": 1}]`,
		},
		{
			name:     "字符串中含右括号",
			input:    `prefix [{"note": "ends with ]"}] suffix`,
			expected: `[{"note": "ends with ]"}]`,
		},
		{
			name:     "字符串中含转义引号",
			input:    `[{"note": "say \"hi\" ] there"}]`,
			expected: `[{"note": "say \"hi\" ] there"}]`,
		},
		{
			name:     "没有JSON",
			input:    "no structured data here",
			expected: "",
		},
		{
			name:     "括号不闭合",
			input:    `[{"a": 1}`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractJSONArray(tt.input))
		})
	}
}
