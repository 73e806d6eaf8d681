package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"hr-agent-go/internal/processor"
)

// DuplicateCheckTool 把员工查重能力暴露为 eino 工具，供对话式agent调用。
// 实现 tool.BaseTool 和 tool.InvokableTool 接口。
type DuplicateCheckTool struct {
	Name     string
	detector *processor.DuplicateDetector
}

// NewDuplicateCheckTool 创建员工查重工具
func NewDuplicateCheckTool(detector *processor.DuplicateDetector) *DuplicateCheckTool {
	return &DuplicateCheckTool{
		Name:     "duplicate_resume_check",
		detector: detector,
	}
}

// Info 返回工具的元信息，符合 tool.BaseTool 接口。
func (t *DuplicateCheckTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name,
		Desc: "对一段员工档案摘要做查重：嵌入摘要文本并查询已入库记录中的最近邻，返回相似度分数与判定结果。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"resume_summary": {
				Type:     "string",
				Desc:     "待查重的员工档案摘要文本",
				Required: true,
			},
			"threshold": {
				Type: "number",
				Desc: "判定为重复的最低相似度分数（含边界）。不传时使用默认阈值 0.98。",
			},
		}),
	}, nil
}

// duplicateCheckToolResult 工具返回给LLM的JSON结果
type duplicateCheckToolResult struct {
	IsDuplicate    bool    `json:"is_duplicate"`
	Score          float64 `json:"score"`
	Threshold      float64 `json:"threshold"`
	NearestPointID string  `json:"nearest_point_id,omitempty"`
}

// InvokableRun 执行工具的逻辑，符合 tool.InvokableTool 接口。
func (t *DuplicateCheckTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var args struct {
		ResumeSummary string  `json:"resume_summary"`
		Threshold     float64 `json:"threshold,omitempty"`
	}

	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("工具 '%s' 的输入JSON解析失败: %w", t.Name, err)
	}

	summary := strings.TrimSpace(args.ResumeSummary)
	if summary == "" {
		return "", fmt.Errorf("工具 '%s' 的 resume_summary 参数不能为空", t.Name)
	}

	threshold := args.Threshold
	if threshold <= 0 {
		threshold = processor.DefaultDuplicateThreshold
	}

	check, err := t.detector.CheckDuplicate(ctx, summary, threshold)
	if err != nil {
		return "", fmt.Errorf("工具 '%s' 查重失败: %w", t.Name, err)
	}

	result := duplicateCheckToolResult{
		IsDuplicate:    check.IsDuplicate,
		Score:          check.Score,
		Threshold:      threshold,
		NearestPointID: check.NearestPointID,
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("工具 '%s' 序列化结果失败: %w", t.Name, err)
	}
	return string(resultJSON), nil
}

// 确保 DuplicateCheckTool 实现了必要的接口 (编译时检查)
var _ tool.BaseTool = (*DuplicateCheckTool)(nil)
var _ tool.InvokableTool = (*DuplicateCheckTool)(nil)
