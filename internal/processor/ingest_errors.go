package processor

import (
	"errors"
	"fmt"
)

// Stage 入库管道的阶段标识，线性推进
// Received → TextExtracted → RecordExtracted → Summarized → DuplicateChecked → {Stored | SkippedAsDuplicate}
// 任一阶段失败进入终态 Failed。错误携带的 Stage 是最后一个成功完成的阶段：
// 例如记录提取失败时 Stage 为 text_extracted，而不是失败动作的目标阶段
type Stage string

const (
	StageReceived           Stage = "received"
	StageTextExtracted      Stage = "text_extracted"
	StageRecordExtracted    Stage = "record_extracted"
	StageSummarized         Stage = "summarized"
	StageDuplicateChecked   Stage = "duplicate_checked"
	StageStored             Stage = "stored"
	StageSkippedAsDuplicate Stage = "skipped_as_duplicate"
)

// 定义基础错误类型
var (
	// ErrNoExtractableText 文档解析成功但没有可用文本（空或纯空白）
	ErrNoExtractableText = errors.New("简历中没有可提取的文本")
	// ErrRecordExtraction 员工记录提取的LLM调用失败
	ErrRecordExtraction = errors.New("提取员工记录失败")
	// ErrRecordSchema LLM输出无法解析为符合契约的员工记录
	ErrRecordSchema = errors.New("员工记录不符合数据契约")
	// ErrSummaryFailed 摘要生成失败
	ErrSummaryFailed = errors.New("生成员工摘要失败")
	// ErrSimilarityService 嵌入或相似度查询失败
	ErrSimilarityService = errors.New("相似度服务调用失败")
	// ErrStoreConnection 持久化存储连接/探活失败
	ErrStoreConnection = errors.New("存储连接失败")
	// ErrStoreWrite 持久化写入失败
	ErrStoreWrite = errors.New("存储写入失败")
)

// IngestionError 包含详细错误信息的自定义错误
// Stage 记录管道失败时所处的阶段，便于调用方定位与分类重试
type IngestionError struct {
	SubmissionUUID string
	Stage          Stage
	BaseErr        error
	Detail         string
}

func (e *IngestionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (阶段:%s, UUID:%s): %s", e.BaseErr, e.Stage, e.SubmissionUUID, e.Detail)
	}
	return fmt.Sprintf("%s (阶段:%s, UUID:%s)", e.BaseErr, e.Stage, e.SubmissionUUID)
}

func (e *IngestionError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *IngestionError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数

func NewTextExtractionError(uuid, detail string) error {
	return &IngestionError{
		SubmissionUUID: uuid,
		Stage:          StageReceived,
		BaseErr:        ErrNoExtractableText,
		Detail:         detail,
	}
}

func NewRecordExtractionError(uuid, detail string) error {
	return &IngestionError{
		SubmissionUUID: uuid,
		Stage:          StageTextExtracted,
		BaseErr:        ErrRecordExtraction,
		Detail:         detail,
	}
}

func NewRecordSchemaError(uuid, detail string) error {
	return &IngestionError{
		SubmissionUUID: uuid,
		Stage:          StageTextExtracted,
		BaseErr:        ErrRecordSchema,
		Detail:         detail,
	}
}

func NewSummaryError(uuid, detail string) error {
	return &IngestionError{
		SubmissionUUID: uuid,
		Stage:          StageRecordExtracted,
		BaseErr:        ErrSummaryFailed,
		Detail:         detail,
	}
}

func NewSimilarityError(uuid, detail string) error {
	return &IngestionError{
		SubmissionUUID: uuid,
		Stage:          StageSummarized,
		BaseErr:        ErrSimilarityService,
		Detail:         detail,
	}
}

func NewStoreConnectionError(uuid, detail string) error {
	return &IngestionError{
		SubmissionUUID: uuid,
		Stage:          StageReceived,
		BaseErr:        ErrStoreConnection,
		Detail:         detail,
	}
}

func NewStoreWriteError(uuid, detail string) error {
	return &IngestionError{
		SubmissionUUID: uuid,
		Stage:          StageDuplicateChecked,
		BaseErr:        ErrStoreWrite,
		Detail:         detail,
	}
}
