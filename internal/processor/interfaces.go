package processor

import (
	"context"

	"hr-agent-go/internal/types"

	"github.com/cloudwego/eino/components/embedding"
)

//
// 文档解析相关接口
//

// TextExtractor 文档文本提取接口
// 输入任意PDF字节，输出去除首尾空白的纯文本；解析失败返回错误，空白文档返回空串由上层判定
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, uri string) (string, error)
}

//
// LLM提取与摘要相关接口
//

// EmployeeExtractor 员工记录提取接口
// 返回列表以兼容一份文档包含多条记录的情形；输出不符合数据契约时错误需可通过
// errors.Is(err, types.ErrMalformedRecordJSON) 识别
type EmployeeExtractor interface {
	ExtractRecords(ctx context.Context, text string) ([]*types.EmployeeRecord, error)
}

// SummaryGenerator 员工摘要生成接口
type SummaryGenerator interface {
	Summarize(ctx context.Context, record *types.EmployeeRecord) (string, error)
}

//
// 向量嵌入相关接口
//

// TextEmbedder 文本向量化接口 (符合 cloudwego/eino 规范)
type TextEmbedder interface {
	// EmbedStrings 将文本转换为向量表示
	EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error)

	// GetDimensions 返回嵌入向量的维度
	GetDimensions() int
}

//
// 存储相关接口
//

// VectorIndex 员工摘要相似度索引接口
type VectorIndex interface {
	// SearchNearestSummary 查询与给定向量最相似的单条记录（k=1）
	// 索引为空时返回 Found=false 且 Score=0
	SearchNearestSummary(ctx context.Context, vector []float64) (*types.SimilarityResult, error)

	// UpsertEmployeeSummary 写入一条员工摘要点（摘要文本+向量+完整记录payload）
	UpsertEmployeeSummary(ctx context.Context, submissionUUID string, summary string, vector []float64, record *types.EmployeeRecord) (string, error)
}

// StoreHandle 一次ingest调用期间持有的存储句柄
// 由 MetadataStore.Acquire 返回，调用方必须在所有退出路径上 Release
type StoreHandle interface {
	// SaveEmployeeProfile 保存员工元数据行
	SaveEmployeeProfile(ctx context.Context, profile *EmployeeProfileRow) error

	// Release 归还句柄；幂等
	Release()
}

// EmployeeProfileRow 元数据存储的写入载荷
type EmployeeProfileRow struct {
	SubmissionUUID   string
	EmployeeID       string
	FirstName        string
	LastName         string
	SummaryText      string
	EmbeddingPointID string
	TextMD5          string
	Record           *types.EmployeeRecord
}

// MetadataStore 员工元数据存储接口
// Acquire 做一次存活探测（ping），失败即视为存储不可用，管道在任何LLM调用前终止
type MetadataStore interface {
	Acquire(ctx context.Context) (StoreHandle, error)
}

// FingerprintGuard 文本指纹短路与并发锁接口（可选组件）
// 实现并发提交同一文档时的串行化，以及完全相同文本的免LLM快速去重
type FingerprintGuard interface {
	// CheckAndLock 检查指纹是否已见过；未见过时获取指纹锁
	// 返回 (seen, unlock, error)；seen=true 表示该文本已入库，调用方应直接判定为重复
	CheckAndLock(ctx context.Context, textMD5 string) (bool, func(), error)

	// MarkStored 在成功入库后登记指纹
	MarkStored(ctx context.Context, textMD5 string) error
}

// ArchiveStore 原始文件归档接口（可选组件）
type ArchiveStore interface {
	ArchiveOriginal(ctx context.Context, submissionUUID string, data []byte, filename string) (string, error)
}

// EventPublisher 入库事件发布接口（可选组件，尽力而为）
type EventPublisher interface {
	PublishStored(ctx context.Context, submissionUUID string, employeeID string, score float64) error
}
