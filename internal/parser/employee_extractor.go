package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"hr-agent-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

// LLMEmployeeExtractor 使用LLM从简历文本中提取结构化员工记录
// 单次Generate调用：系统提示词描述14个字段和JSON数组输出格式，用户消息为简历全文
type LLMEmployeeExtractor struct {
	llmModel model.ToolCallingChatModel

	// 提示词模板
	promptTemplate string

	logger *log.Logger
}

// EmployeeExtractorOption 提取器的配置选项
type EmployeeExtractorOption func(*LLMEmployeeExtractor)

// WithExtractorLogger 配置自定义日志记录器
func WithExtractorLogger(logger *log.Logger) EmployeeExtractorOption {
	return func(e *LLMEmployeeExtractor) {
		e.logger = logger
	}
}

// WithExtractorPrompt 覆盖默认提示词模板
func WithExtractorPrompt(prompt string) EmployeeExtractorOption {
	return func(e *LLMEmployeeExtractor) {
		e.promptTemplate = prompt
	}
}

// NewLLMEmployeeExtractor 创建新的员工记录提取器
func NewLLMEmployeeExtractor(llmModel model.ToolCallingChatModel, logger *log.Logger, options ...EmployeeExtractorOption) *LLMEmployeeExtractor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	extractor := &LLMEmployeeExtractor{
		llmModel: llmModel,
		logger:   logger,
	}

	for _, opt := range options {
		opt(extractor)
	}

	if extractor.promptTemplate == "" {
		extractor.promptTemplate = defaultExtractionPrompt()
	}

	return extractor
}

// defaultExtractionPrompt 生成默认系统提示词
// 字段集合与输出格式是管道的数据契约：每个字段必须出现，缺失信息置空，禁止编造
func defaultExtractionPrompt() string {
	return `You are an expert HR data-entry assistant. You will receive the plain text of
an employee's resume. Extract the information into structured employee records.

Extract ALL of the following fields for each employee found in the text:

1.  employee_id: Unique identifier for the employee (e.g. an internal ID found in the document).
2.  first_name: First name of the employee.
3.  last_name: Last name of the employee.
4.  date_of_birth: Date of birth of the employee.
5.  address: Current address, with street, city, state, postal_code and country.
6.  contact_details: Email and phone number.
7.  job_details: Job title, department, hire date and employment type.
8.  work_location: Nearest office location and work arrangement (remote/hybrid/on-site).
9.  reporting_manager: Name of the reporting manager.
10. skills: List of relevant skills.
11. performance_reviews: Performance review entries with period, rating and comments.
12. benefits: List of benefits provided to the employee.
13. emergency_contact: Name, relationship and phone number of the emergency contact.
14. notes: Any additional notes about the employee.

Rules:
- Every field listed above MUST be present in the output. If the resume does not
  contain the information, use an empty string (or empty list) for that field.
  Never invent information that is not in the text.
- Dates are kept as written in the document.
- Output a JSON array of employee record objects, even when there is exactly one
  employee in the text.

Output format (strict JSON, no markdown, no commentary):
[
  {
    "employee_id": "string",
    "first_name": "string",
    "last_name": "string",
    "date_of_birth": "string",
    "address": {"street": "string", "city": "string", "state": "string", "postal_code": "string", "country": "string"},
    "contact_details": {"email": "string", "phone": "string"},
    "job_details": {"job_title": "string", "department": "string", "hire_date": "string", "employment_type": "string"},
    "work_location": "string",
    "reporting_manager": "string",
    "skills": ["string"],
    "performance_reviews": [{"period": "string", "rating": "string", "comments": "string"}],
    "benefits": ["string"],
    "emergency_contact": {"name": "string", "relationship": "string", "phone": "string"},
    "notes": "string"
  }
]

The next message contains the resume text to analyse.`
}

// ExtractRecords 使用LLM解析简历文本，返回提取出的员工记录列表
// LLM调用失败返回调用错误；响应无法解析为记录数组时返回 types.ErrMalformedRecordJSON
func (e *LLMEmployeeExtractor) ExtractRecords(ctx context.Context, text string) ([]*types.EmployeeRecord, error) {
	response, err := e.callLLM(ctx, e.promptTemplate, text)
	if err != nil {
		return nil, fmt.Errorf("LLM调用失败: %w", err)
	}

	records, err := e.parseResponse(response)
	if err != nil {
		return nil, err
	}

	return records, nil
}

// callLLM 调用LLM处理提示词，带重试与指数退避
func (e *LLMEmployeeExtractor) callLLM(ctx context.Context, systemContent string, userContent string) (string, error) {
	messages := []*einoschema.Message{
		{Role: "system", Content: systemContent},
		{Role: "user", Content: userContent},
	}

	// 设置最大重试次数
	maxRetries := 2
	retryDelay := 2 * time.Second

	var response *einoschema.Message
	var err error

	e.logger.Printf("[LLMEmployeeExtractor] User Prompt: %.50s...", userContent)

	for retry := 0; retry <= maxRetries; retry++ {
		// 如果是重试，则先检查上下文是否已取消
		if retry > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("上下文已取消: %w", ctx.Err())
			case <-time.After(retryDelay):
				retryDelay *= 2
				e.logger.Printf("重试LLM调用 (第%d次)", retry)
			}
		}

		// 创建带超时的上下文，继承上游的取消信号
		callCtx, cancel := context.WithTimeout(ctx, 60*time.Second)

		response, err = e.llmModel.Generate(callCtx, messages)
		cancel()

		if err == nil {
			break
		}

		if !isRetryableError(err) || retry >= maxRetries {
			e.logger.Printf("[LLMEmployeeExtractor] LLM call final error after retries: %v", err)
			return "", fmt.Errorf("LLM Generate failed: %w", err)
		}
	}

	e.logger.Printf("[LLMEmployeeExtractor] LLM Response: %.50s", response.Content)
	return response.Content, nil
}

// isRetryableError 判断错误是否应该重试
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// 检查常见的可重试错误
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host")
}

// parseResponse 解析LLM响应为员工记录数组
func (e *LLMEmployeeExtractor) parseResponse(response string) ([]*types.EmployeeRecord, error) {
	jsonStr := extractJSONArray(response)
	if jsonStr == "" {
		e.logger.Printf("无法从LLM响应中提取有效的JSON。原始响应: %s", response)
		return nil, fmt.Errorf("%w: 响应中没有JSON数组", types.ErrMalformedRecordJSON)
	}

	var records []*types.EmployeeRecord
	if err := json.Unmarshal([]byte(jsonStr), &records); err != nil {
		// 有些模型会把单个对象直接返回而不是数组，做一次兼容解析
		var single types.EmployeeRecord
		if err2 := json.Unmarshal([]byte(jsonStr), &single); err2 == nil {
			return []*types.EmployeeRecord{&single}, nil
		}
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedRecordJSON, err)
	}

	return records, nil
}

// extractJSONArray 从文本中提取JSON数组（或单个对象）
func extractJSONArray(text string) string {
	// 尝试使用正则表达式提取 ```json ... ``` 代码块中的内容
	re := regexp.MustCompile("(?s)```json\\s*([\\[{].*?[\\]}])\\s*```")
	matches := re.FindStringSubmatch(text)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	// 回退：寻找第一个 [ 或 { 并做括号配对
	start := strings.IndexAny(text, "[{")
	if start == -1 {
		return ""
	}

	open := text[start]
	var close byte = ']'
	if open == '{' {
		close = '}'
	}

	level := 0
	inString := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			if ch == '\\' {
				i++
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			level++
		case close:
			level--
			if level == 0 {
				return strings.TrimSpace(text[start : i+1])
			}
		}
	}
	return ""
}
