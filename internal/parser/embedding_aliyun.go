package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"hr-agent-go/internal/config"

	"github.com/cloudwego/eino/components/embedding"
)

// AliyunEmbedder 实现 embedding.Embedder 接口
type AliyunEmbedder struct {
	apiKey     string
	model      string // Default model
	dimensions int    // Default dimensions
	httpClient *http.Client
	baseURL    string
	logger     *log.Logger
}

// NewAliyunEmbedder 创建新的阿里云Embedder (using OpenAI compatible endpoint)
func NewAliyunEmbedder(apiKey string, embeddingCfg config.EmbeddingConfig) (*AliyunEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}

	model := embeddingCfg.Model
	if model == "" {
		model = "text-embedding-v3" // Fallback default
	}
	baseURL := embeddingCfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings" // Fallback default
	}

	embedder := &AliyunEmbedder{
		apiKey:     apiKey,
		model:      model,
		dimensions: embeddingCfg.Dimensions,
		httpClient: &http.Client{},
		baseURL:    baseURL,
		logger:     log.New(os.Stderr, "[AliyunEmbedder] ", log.LstdFlags|log.Lshortfile),
	}

	return embedder, nil
}

// GetDimensions 返回嵌入器配置的维度 (helper, 不属于 eino.Embedder 接口)
func (a *AliyunEmbedder) GetDimensions() int {
	return a.dimensions
}

// AliyunOpenAIEmbeddingRequest 阿里云Embedding请求结构 (OpenAI compatible)
type AliyunOpenAIEmbeddingRequest struct {
	Input          interface{} `json:"input"` // string or []string
	Model          string      `json:"model"`
	Dimensions     int         `json:"dimensions,omitempty"`      // Optional, for text-embedding-v3
	EncodingFormat string      `json:"encoding_format,omitempty"` // Optional, e.g., "float"
}

// AliyunOpenAIEmbeddingResponse 阿里云Embedding响应结构 (OpenAI compatible)
type AliyunOpenAIEmbeddingResponse struct {
	Object string                  `json:"object"` // e.g., "list"
	Data   []AliyunOpenAIDataEntry `json:"data"`
	Model  string                  `json:"model"`
	Usage  AliyunOpenAIUsage       `json:"usage"`
	ID     string                  `json:"id,omitempty"`
	Error  *AliyunOpenAIError      `json:"error,omitempty"`
}

// AliyunOpenAIDataEntry part of the response
type AliyunOpenAIDataEntry struct {
	Object    string    `json:"object"` // e.g., "embedding"
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

// AliyunOpenAIUsage part of the response
type AliyunOpenAIUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// AliyunOpenAIError for API-level errors returned with 200 OK
type AliyunOpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param"`
	Code    string `json:"code"`
}

// EmbedStrings 将文本转换为向量, 实现 cloudwego/eino embedding.Embedder 接口
func (a *AliyunEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := &embedding.Options{}
	embedding.GetCommonOptions(options, opts...)

	effectiveModel := a.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	var inputBody interface{}
	if len(texts) == 1 {
		inputBody = texts[0]
	} else {
		inputBody = texts
	}

	reqBody := AliyunOpenAIEmbeddingRequest{
		Input: inputBody,
		Model: effectiveModel,
	}
	if a.dimensions > 0 {
		reqBody.Dimensions = a.dimensions
	}

	a.logger.Printf("[AliyunEmbedder] Embedding %d texts, model=%s, dimensions=%d. First text: %.100s",
		len(texts), reqBody.Model, reqBody.Dimensions, texts[0])

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiError AliyunOpenAIError
		detailedError := fmt.Errorf("API调用失败, 状态码: %d, 响应: %s", resp.StatusCode, string(body))
		// 尝试从body中解析更详细的错误信息
		if json.Unmarshal(body, &apiError) == nil && apiError.Message != "" {
			detailedError = fmt.Errorf("API调用失败, 状态码: %d, 类型: %s, 错误: %s, Code: %s", resp.StatusCode, apiError.Type, apiError.Message, apiError.Code)
		}
		a.logger.Printf("[AliyunEmbedder] API call failed: %v", detailedError)
		return nil, detailedError
	}

	var parsedResp AliyunOpenAIEmbeddingResponse
	if err := json.Unmarshal(body, &parsedResp); err != nil {
		return nil, fmt.Errorf("解析响应JSON失败: %w. Body: %s", err, string(body))
	}

	// 检查响应中是否包含API级别的错误 (例如，输入文本过多)
	if parsedResp.Error != nil && parsedResp.Error.Message != "" {
		err = fmt.Errorf("API返回错误: 类型=%s, 消息='%s', Code=%s", parsedResp.Error.Type, parsedResp.Error.Message, parsedResp.Error.Code)
		a.logger.Printf("[AliyunEmbedder] Parsed response contains API error: %v", err)
		return nil, err
	}

	outputEmbeddings := make([][]float64, len(parsedResp.Data))
	for i, dataEntry := range parsedResp.Data {
		outputEmbeddings[i] = dataEntry.Embedding
	}

	a.logger.Printf("[AliyunEmbedder] Successfully embedded %d texts. First embedding dim (if any): %d. Prompt tokens: %d, Total tokens: %d",
		len(texts), firstEmbeddingDim(outputEmbeddings), parsedResp.Usage.PromptTokens, parsedResp.Usage.TotalTokens)
	if len(outputEmbeddings) > 0 {
		a.logger.Printf("[AliyunEmbedder] First embedding preview: %s", truncateEmbedding(outputEmbeddings[0]))
	}

	return outputEmbeddings, nil
}

// Helper function to safely get the dimension of the first embedding for logging
func firstEmbeddingDim(embeddings [][]float64) int {
	if len(embeddings) > 0 && len(embeddings[0]) > 0 {
		return len(embeddings[0])
	}
	return 0
}

// truncateEmbedding 截断嵌入向量的字符串表示形式，用于日志
func truncateEmbedding(vector []float64) string {
	const maxLen = 6       // 如果向量长度大于此值，则截断
	const showEachSide = 3 // 截断时每边显示多少元素

	if len(vector) <= maxLen {
		return fmt.Sprintf("%v", vector)
	}

	var truncated []string
	for i := 0; i < showEachSide; i++ {
		truncated = append(truncated, fmt.Sprintf("%.4f", vector[i]))
	}
	truncated = append(truncated, "...")
	for i := len(vector) - showEachSide; i < len(vector); i++ {
		truncated = append(truncated, fmt.Sprintf("%.4f", vector[i]))
	}
	return fmt.Sprintf("[%s]", strings.Join(truncated, ", "))
}
