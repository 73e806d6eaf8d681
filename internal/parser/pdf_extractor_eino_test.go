package parser

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEinoPDFTextExtractor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	extractor, err := NewEinoPDFTextExtractor(ctx)
	require.NoError(t, err, "创建PDF提取器不应返回错误")
	require.NotNil(t, extractor, "创建的PDF提取器不应为nil")
	require.NotNil(t, extractor.parser, "PDF提取器内部的parser不应为nil")
	require.NotNil(t, extractor.logger, "PDF提取器应该有默认的logger")

	// 测试带自定义logger的创建
	customLogger := log.New(os.Stdout, "[测试PDF提取器] ", log.LstdFlags)
	extractorWithCustomLogger, err := NewEinoPDFTextExtractor(ctx, WithEinoLogger(customLogger))
	require.NoError(t, err, "创建带自定义logger的PDF提取器不应返回错误")
	require.Equal(t, customLogger, extractorWithCustomLogger.logger, "应该使用提供的自定义logger")
}

// TestExtractText_EmptyPayload 空字节必须直接报错，不进入解析器
func TestExtractText_EmptyPayload(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	extractor, err := NewEinoPDFTextExtractor(ctx)
	require.NoError(t, err)

	text, err := extractor.ExtractText(ctx, nil, "empty.pdf")
	assert.Empty(t, text)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty PDF payload")
}

// TestExtractText_InvalidPDF 非PDF字节不应崩溃；解析失败时返回错误且文本为空
func TestExtractText_InvalidPDF(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	extractor, err := NewEinoPDFTextExtractor(ctx)
	require.NoError(t, err)

	text, err := extractor.ExtractText(ctx, []byte("%PDF-1.5\nnot really a pdf\n"), "mock.pdf")
	if err != nil {
		assert.Empty(t, text)
		t.Logf("预期的解析错误: %v", err)
	} else {
		// 个别解析器对损坏输入很宽松，此时至少不能产出不可信的长文本
		t.Logf("解析器接受了损坏输入，提取文本长度: %d", len(text))
	}
}

// TestExtractFullTextFromPDFFile_NonExistent 不存在的文件路径返回打开错误
func TestExtractFullTextFromPDFFile_NonExistent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	extractor, err := NewEinoPDFTextExtractor(ctx)
	require.NoError(t, err)

	nonExistentPath := "/path/to/non/existent/file-" + time.Now().Format("20060102150405") + ".pdf"
	_, _, err = extractor.ExtractFullTextFromPDFFile(ctx, nonExistentPath)
	require.Error(t, err, "从不存在的文件提取应该返回错误")
	assert.Contains(t, err.Error(), "failed to open PDF file")
}
