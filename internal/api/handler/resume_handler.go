package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"hr-agent-go/internal/config"
	"hr-agent-go/internal/logger"
	"hr-agent-go/internal/processor"
	"hr-agent-go/internal/storage"
	"hr-agent-go/internal/storage/models"
	"hr-agent-go/internal/types"
)

// ResumeHandler 简历入库处理器，衔接HTTP层与入库管道
type ResumeHandler struct {
	cfg          *config.Config
	storage      *storage.Storage
	orchestrator *processor.IngestOrchestrator
}

// NewResumeHandler 创建简历入库处理器
func NewResumeHandler(
	cfg *config.Config,
	storage *storage.Storage,
	orchestrator *processor.IngestOrchestrator,
) *ResumeHandler {
	return &ResumeHandler{
		cfg:          cfg,
		storage:      storage,
		orchestrator: orchestrator,
	}
}

// IngestErrorResponse 入库失败的响应体
type IngestErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

// HandleResumeStore 处理一份上传的简历PDF，同步执行完整入库管道
// 返回带 stored/duplicate 标签的结果；失败时错误为 *processor.IngestionError
func (h *ResumeHandler) HandleResumeStore(ctx context.Context, reader io.Reader, filename string) (*types.IngestionResult, error) {
	if h.orchestrator == nil {
		return nil, fmt.Errorf("入库管道未初始化")
	}

	fileBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件内容失败: %w", err)
	}
	if len(fileBytes) == 0 {
		return nil, fmt.Errorf("上传文件为空")
	}

	result, err := h.orchestrator.Ingest(ctx, fileBytes, filename)
	if err != nil {
		var ingestErr *processor.IngestionError
		if errors.As(err, &ingestErr) {
			logger.Error().
				Err(err).
				Str("submission_uuid", ingestErr.SubmissionUUID).
				Str("stage", string(ingestErr.Stage)).
				Str("filename", filename).
				Msg("简历入库失败")
		} else {
			logger.Error().Err(err).Str("filename", filename).Msg("简历入库失败")
		}
		return nil, err
	}

	logger.Info().
		Str("submission_uuid", result.SubmissionUUID).
		Str("status", string(result.Status)).
		Float64("score", result.Score).
		Str("filename", filename).
		Msg("简历入库完成")
	return result, nil
}

// HandleResumeGet 按提交UUID查询已入库的员工元数据
// 记录不存在时返回 storage.ErrProfileNotFound
func (h *ResumeHandler) HandleResumeGet(ctx context.Context, submissionUUID string) (*models.EmployeeProfile, error) {
	if h.storage == nil || h.storage.MySQL == nil {
		return nil, fmt.Errorf("元数据存储未初始化")
	}
	submissionUUID = strings.TrimSpace(submissionUUID)
	if submissionUUID == "" {
		return nil, fmt.Errorf("submission_uuid 不能为空")
	}

	profile, err := h.storage.MySQL.GetEmployeeProfile(ctx, submissionUUID)
	if err != nil {
		if !errors.Is(err, storage.ErrProfileNotFound) {
			logger.Error().Err(err).Str("submission_uuid", submissionUUID).Msg("查询员工元数据失败")
		}
		return nil, err
	}
	return profile, nil
}

// IsClientError 判断入库错误是否属于客户端输入问题（返回400而不是500）
// 无可提取文本和记录数据契约不符都是文档本身的问题
func IsClientError(err error) bool {
	return errors.Is(err, processor.ErrNoExtractableText) ||
		errors.Is(err, processor.ErrRecordSchema)
}

// IsPDFFilename 校验文件名是否为PDF
func IsPDFFilename(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

// BuildErrorResponse 把入库错误转换为响应体
func BuildErrorResponse(err error) IngestErrorResponse {
	var ingestErr *processor.IngestionError
	if errors.As(err, &ingestErr) {
		return IngestErrorResponse{
			Error: ingestErr.Error(),
			Stage: string(ingestErr.Stage),
		}
	}
	return IngestErrorResponse{Error: err.Error()}
}

// HealthStatus 健康检查结果
type HealthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// CheckHealth 探测各存储组件的可用性
func (h *ResumeHandler) CheckHealth(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:     "ok",
		Components: map[string]string{},
	}

	if h.storage == nil || h.storage.MySQL == nil {
		status.Status = "degraded"
		status.Components["mysql"] = "not initialized"
	} else if err := h.storage.MySQL.Ping(ctx); err != nil {
		status.Status = "degraded"
		status.Components["mysql"] = err.Error()
	} else {
		status.Components["mysql"] = "ok"
		if count, err := h.storage.MySQL.CountEmployeeProfiles(ctx); err == nil {
			status.Components["mysql"] = fmt.Sprintf("ok (%d条档案)", count)
		}
	}

	if h.storage != nil && h.storage.Qdrant != nil {
		if _, err := h.storage.Qdrant.CountPoints(ctx); err != nil {
			status.Status = "degraded"
			status.Components["qdrant"] = err.Error()
		} else {
			status.Components["qdrant"] = "ok"
		}
	}

	if h.storage != nil && h.storage.Redis != nil {
		if err := h.storage.Redis.Ping(ctx); err != nil {
			// Redis是可选优化层，不降级整体状态
			status.Components["redis"] = err.Error()
		} else {
			status.Components["redis"] = "ok"
		}
	}

	return status
}
