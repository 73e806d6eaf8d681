package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"hr-agent-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

// summaryPrompt 摘要生成的系统提示词
// 摘要是去重的语义锚点：只包含记录中的事实，简短、可嵌入
const summaryPrompt = `You are an expert HR assistant. You will receive a structured employee
record as JSON. Write a short natural-language summary of the employee in at
most four sentences, covering who they are, their role, key skills and
anything notable. Use only facts present in the record, never invent details.
Reply with the summary text only, no headers and no markdown.`

// LLMSummaryGenerator 使用LLM为员工记录生成简短自然语言摘要
type LLMSummaryGenerator struct {
	llmModel model.ToolCallingChatModel
	logger   *log.Logger
}

// NewLLMSummaryGenerator 创建新的摘要生成器
func NewLLMSummaryGenerator(llmModel model.ToolCallingChatModel, logger *log.Logger) *LLMSummaryGenerator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &LLMSummaryGenerator{
		llmModel: llmModel,
		logger:   logger,
	}
}

// Summarize 为员工记录生成摘要
// 失败即失败（fails closed）：摘要是去重判定的输入，不能降级为空串继续
func (g *LLMSummaryGenerator) Summarize(ctx context.Context, record *types.EmployeeRecord) (string, error) {
	if record == nil {
		return "", fmt.Errorf("员工记录为空")
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("序列化员工记录失败: %w", err)
	}

	messages := []*einoschema.Message{
		{Role: "system", Content: summaryPrompt},
		{Role: "user", Content: string(recordJSON)},
	}

	maxRetries := 2
	retryDelay := 2 * time.Second

	var response *einoschema.Message

	for retry := 0; retry <= maxRetries; retry++ {
		if retry > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("上下文已取消: %w", ctx.Err())
			case <-time.After(retryDelay):
				retryDelay *= 2
				g.logger.Printf("重试摘要生成 (第%d次)", retry)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		response, err = g.llmModel.Generate(callCtx, messages)
		cancel()

		if err == nil {
			break
		}

		if !isRetryableError(err) || retry >= maxRetries {
			g.logger.Printf("[LLMSummaryGenerator] LLM call final error after retries: %v", err)
			return "", fmt.Errorf("LLM Generate failed: %w", err)
		}
	}

	summary := strings.TrimSpace(response.Content)
	if summary == "" {
		return "", fmt.Errorf("LLM返回了空摘要")
	}

	g.logger.Printf("[LLMSummaryGenerator] 摘要生成完成 (员工: %s, 长度: %d)", record.FullName(), len(summary))
	return summary, nil
}
