package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
)

// EinoPDFTextExtractor 使用 Eino PDF Parser 提取文本
type EinoPDFTextExtractor struct {
	parser *pdf.PDFParser
	logger *log.Logger
}

// EinoPDFOption PDF提取器的配置选项
type EinoPDFOption func(*EinoPDFTextExtractor)

// WithEinoLogger 配置自定义日志记录器
func WithEinoLogger(logger *log.Logger) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.logger = logger
	}
}

// NewEinoPDFTextExtractor 初始化 Eino PDF 文本提取器
// 默认配置为不按页面分割，以获取整个文档的连续文本
func NewEinoPDFTextExtractor(ctx context.Context, options ...EinoPDFOption) (*EinoPDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false, // 非常重要：我们希望获取整个PDF的文本作为单个字符串
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}

	extractor := &EinoPDFTextExtractor{
		parser: p,
		logger: log.New(os.Stderr, "[PDF解析器] ", log.LstdFlags),
	}

	for _, option := range options {
		option(extractor)
	}

	return extractor, nil
}

// ExtractText 实现processor.TextExtractor接口：PDF字节 → 去除首尾空白的纯文本
// 空字节或解析失败返回错误；空白文档返回空串，由上层判定
func (e *EinoPDFTextExtractor) ExtractText(ctx context.Context, data []byte, uri string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty PDF payload for URI %s", uri)
	}
	text, _, err := e.ExtractTextFromReader(ctx, bytes.NewReader(data), uri, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ExtractTextFromReader 从 io.Reader 中提取文本 (更通用的版本)
// 返回: 提取的文本内容 (string), 解析器元数据 (map[string]interface{}), 错误 (error)
func (e *EinoPDFTextExtractor) ExtractTextFromReader(ctx context.Context, reader io.Reader, uri string, extraMeta map[string]interface{}) (string, map[string]interface{}, error) {
	if extraMeta == nil {
		extraMeta = make(map[string]interface{})
	}

	startTime := time.Now()
	e.logger.Printf("开始从Reader提取PDF文本 (URI: %s)", uri)

	// 创建带超时的上下文
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second) // 30秒超时
	defer cancel()

	docs, err := e.parser.Parse(ctx, reader,
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(extraMeta),
	)

	duration := time.Since(startTime)
	if err != nil {
		e.logger.Printf("从Reader提取PDF失败: %s (用时 %.2f秒)", err, duration.Seconds())
		return "", extraMeta, fmt.Errorf("eino PDF parser failed for URI %s: %w", uri, err)
	}

	if len(docs) == 0 {
		e.logger.Printf("PDF解析无结果 (用时 %.2f秒)", duration.Seconds())
		return "", extraMeta, fmt.Errorf("eino PDF parser returned no documents for URI %s", uri)
	}

	// 合并所有文档的内容（以防万一返回了多个）
	var fullContent strings.Builder
	for i, doc := range docs {
		fullContent.WriteString(doc.Content)
		if i < len(docs)-1 {
			fullContent.WriteString("\n\n")
		}
	}

	// 合并元数据
	finalMetadata := make(map[string]interface{})
	if docs[0].MetaData != nil {
		for k, v := range docs[0].MetaData {
			finalMetadata[k] = v
		}
	}
	for k, v := range extraMeta {
		finalMetadata[k] = v
	}
	finalMetadata["processing_duration_ms"] = duration.Milliseconds()
	finalMetadata["document_count"] = len(docs)
	finalMetadata["text_length"] = fullContent.Len()

	e.logger.Printf("PDF提取完成: 提取了 %d 个字符 (用时 %.2f秒)", fullContent.Len(), duration.Seconds())
	return fullContent.String(), finalMetadata, nil
}

// ExtractFullTextFromPDFFile 从给定的PDF文件路径中提取完整的纯文本内容和元数据
func (e *EinoPDFTextExtractor) ExtractFullTextFromPDFFile(ctx context.Context, filePath string) (string, map[string]interface{}, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open PDF file %s: %w", filePath, err)
	}
	defer file.Close()

	extraMeta := map[string]interface{}{
		"source_file_path": filePath,
		"extraction_time":  time.Now().Format(time.RFC3339),
	}

	return e.ExtractTextFromReader(ctx, file, filePath, extraMeta)
}
