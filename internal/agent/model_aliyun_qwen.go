package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	// OpenAI-compatible API endpoint for DashScope
	openAICompatibleQwenAPIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultQwenModelName       = "qwen-plus"
)

// --- OpenAI Compatible Structures ---

type OpenAIToolFunctionParamsProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

type OpenAIToolFunctionParams struct {
	Type       string                                      `json:"type"` // Typically "object"
	Properties map[string]OpenAIToolFunctionParamsProperty `json:"properties"`
	Required   []string                                    `json:"required,omitempty"`
}

type OpenAIFunction struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Parameters  OpenAIToolFunctionParams `json:"parameters"`
}

type OpenAITool struct {
	Type     string         `json:"type"` // Must be "function"
	Function OpenAIFunction `json:"function"`
}

// AliyunQwenChatModel 实现了 model.ChatModel 和 model.ToolCallingChatModel 接口，
// 用于与阿里云通义千问模型交互。
type AliyunQwenChatModel struct {
	apiKey           string
	modelName        string
	apiURL           string
	httpClient       *http.Client
	boundOpenAITools []OpenAITool // Storing tools in OpenAI-compatible format
}

// NewAliyunQwenChatModel 创建一个新的 AliyunQwenChatModel 实例。
func NewAliyunQwenChatModel(apiKey string, modelName string, apiURL string) (*AliyunQwenChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	mn := modelName
	if strings.TrimSpace(mn) == "" {
		mn = defaultQwenModelName
	}

	url := apiURL
	if strings.TrimSpace(url) == "" {
		url = openAICompatibleQwenAPIURL
	}

	log.Printf("使用阿里云通义千问 LLM 客户端，API URL: %s, 模型: %s", url, mn)

	return &AliyunQwenChatModel{
		apiKey:           apiKey,
		modelName:        mn,
		apiURL:           url,
		httpClient:       &http.Client{},
		boundOpenAITools: make([]OpenAITool, 0),
	}, nil
}

// --- OpenAI Compatible Request/Response Structures ---

type OpenAIChatCompletionRequest struct {
	Model    string            `json:"model"`
	Messages []*schema.Message `json:"messages"` // Eino schema.Message is compatible enough for role/content
	Tools    []OpenAITool      `json:"tools,omitempty"`
}

type OpenAIMessage struct {
	Role      string               `json:"role"`
	Content   *string              `json:"content"` // Content can be null if tool_calls are present
	ToolCalls []OpenAIToolCallData `json:"tool_calls,omitempty"`
}

type OpenAIToolCallData struct {
	Id       string `json:"id"`
	Type     string `json:"type"` // Should be "function"
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"` // JSON string of arguments
	} `json:"function"`
}

type OpenAIChatChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAICompletionResponse struct {
	Id      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []OpenAIChatChoice `json:"choices"`
}

// Generate 实现 model.ChatModel 接口
func (aq *AliyunQwenChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	// 工具配置通过 BindTools/WithTools 完成，这里不消费通用选项
	for _, opt := range options {
		_ = opt
	}

	reqPayload := OpenAIChatCompletionRequest{
		Model:    aq.modelName,
		Messages: messages,
	}

	if len(aq.boundOpenAITools) > 0 {
		reqPayload.Tools = aq.boundOpenAITools
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, aq.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+aq.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := aq.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var openAIResp OpenAICompletionResponse
	if err := json.Unmarshal(bodyBytes, &openAIResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, string(bodyBytes))
	}

	if len(openAIResp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", string(bodyBytes))
	}

	apiMessage := openAIResp.Choices[0].Message
	responseContent := ""
	if apiMessage.Content != nil {
		responseContent = *apiMessage.Content
	}

	resultMessage := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: responseContent,
	}

	if len(apiMessage.ToolCalls) > 0 {
		resultMessage.ToolCalls = make([]schema.ToolCall, len(apiMessage.ToolCalls))
		for i, tc := range apiMessage.ToolCalls {
			resultMessage.ToolCalls[i] = schema.ToolCall{
				ID: tc.Id,
				Function: schema.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	if resultMessage.Role == "" {
		resultMessage.Role = schema.RoleType("assistant")
	}

	return resultMessage, nil
}

// Stream 实现 model.ChatModel 接口 (placeholder)
func (aq *AliyunQwenChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("AliyunQwenChatModel (OpenAI 兼容) 的 Stream 方法未实现")
}

// BindTools 实现 model.ChatModel 接口
// 由于无法可靠地从 schema.ParamsOneOf 外部访问参数的详细信息，
// 为已知工具硬编码其 OpenAI 参数 schema。
func (aq *AliyunQwenChatModel) BindTools(tools []*schema.ToolInfo) error {
	aq.boundOpenAITools = make([]OpenAITool, 0, len(tools))
	for _, toolInfo := range tools {
		if toolInfo == nil {
			continue
		}

		var params OpenAIToolFunctionParams
		switch toolInfo.Name {
		case "duplicate_resume_check":
			params = OpenAIToolFunctionParams{
				Type: "object",
				Properties: map[string]OpenAIToolFunctionParamsProperty{
					"resume_summary": {Type: "string", Description: "待查重的员工简历摘要文本"},
					"threshold":      {Type: "number", Description: "判定为重复的最低相似度分数，省略时使用服务端默认值"},
				},
				Required: []string{"resume_summary"},
			}
		default:
			log.Printf("[阿里云通义千问模型] 工具 '%s' 的参数 schema 未在 BindTools 中显式定义，将使用空对象。", toolInfo.Name)
			params = OpenAIToolFunctionParams{Type: "object", Properties: map[string]OpenAIToolFunctionParamsProperty{}}
		}

		aq.boundOpenAITools = append(aq.boundOpenAITools, OpenAITool{
			Type: "function",
			Function: OpenAIFunction{
				Name:        toolInfo.Name,
				Description: toolInfo.Desc,
				Parameters:  params,
			},
		})
	}

	if len(aq.boundOpenAITools) > 0 {
		log.Printf("[阿里云通义千问模型] 已绑定 %d 个工具。第一个工具名称: %s", len(aq.boundOpenAITools), aq.boundOpenAITools[0].Function.Name)
	}
	return nil
}

// WithTools 满足 model.ToolCallingChatModel 接口，内部复用 BindTools
func (aq *AliyunQwenChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := aq.BindTools(tools); err != nil {
		return nil, err
	}
	return aq, nil
}

var _ model.ChatModel = (*AliyunQwenChatModel)(nil)
var _ model.ToolCallingChatModel = (*AliyunQwenChatModel)(nil)
