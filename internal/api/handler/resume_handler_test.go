package handler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"hr-agent-go/internal/processor"
	"hr-agent-go/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIsPDFFilename 文件名校验大小写不敏感
func TestIsPDFFilename(t *testing.T) {
	assert.True(t, IsPDFFilename("resume.pdf"))
	assert.True(t, IsPDFFilename("RESUME.PDF"))
	assert.True(t, IsPDFFilename("张三简历.Pdf"))
	assert.False(t, IsPDFFilename("resume.docx"))
	assert.False(t, IsPDFFilename("resume.pdf.exe"))
	assert.False(t, IsPDFFilename(""))
}

// TestIsClientError 文档本身的问题是400，其余都是500
func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(processor.NewTextExtractionError("uuid-1", "空白文档")))
	assert.True(t, IsClientError(processor.NewRecordSchemaError("uuid-1", "响应中没有JSON数组")))

	assert.False(t, IsClientError(processor.NewRecordExtractionError("uuid-1", "llm timeout")))
	assert.False(t, IsClientError(processor.NewSummaryError("uuid-1", "empty summary")))
	assert.False(t, IsClientError(processor.NewSimilarityError("uuid-1", "qdrant down")))
	assert.False(t, IsClientError(processor.NewStoreConnectionError("uuid-1", "mysql unreachable")))
	assert.False(t, IsClientError(processor.NewStoreWriteError("uuid-1", "insert failed")))
	assert.False(t, IsClientError(errors.New("something else")))
}

// TestBuildErrorResponse 入库错误携带失败阶段，其余错误只带消息
func TestBuildErrorResponse(t *testing.T) {
	resp := BuildErrorResponse(processor.NewSummaryError("uuid-1", "llm failed"))
	assert.Equal(t, string(processor.StageRecordExtracted), resp.Stage)
	assert.Contains(t, resp.Error, "uuid-1")

	plain := BuildErrorResponse(errors.New("boom"))
	assert.Equal(t, "boom", plain.Error)
	assert.Empty(t, plain.Stage)
}

// TestHandleResumeStore_Validation 管道未初始化与空文件的入参校验
func TestHandleResumeStore_Validation(t *testing.T) {
	h := NewResumeHandler(nil, nil, nil)
	result, err := h.HandleResumeStore(context.Background(), strings.NewReader("data"), "resume.pdf")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "未初始化")
}

// TestHandleResumeGet_Validation 元数据查询的入参校验
func TestHandleResumeGet_Validation(t *testing.T) {
	h := NewResumeHandler(nil, nil, nil)
	profile, err := h.HandleResumeGet(context.Background(), "uuid-1")
	assert.Nil(t, profile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "未初始化")

	h = NewResumeHandler(nil, &storage.Storage{}, nil)
	profile, err = h.HandleResumeGet(context.Background(), "uuid-1")
	assert.Nil(t, profile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "未初始化")
}
