package processor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hr-agent-go/internal/tracing"
	"hr-agent-go/internal/types"
)

// IngestOrchestrator 驱动一次简历入库的完整管道：
// 文本提取 → 记录提取 → 摘要 → 查重 → {入库 | 跳过}
// 每次 Ingest 调用独占一个存储句柄（入口探活，所有退出路径归还），
// 判定与写入之间不做部分写：重复即零写入，新记录才落索引与元数据
type IngestOrchestrator struct {
	textExtractor TextExtractor
	recExtractor  EmployeeExtractor
	summarizer    SummaryGenerator
	detector      *DuplicateDetector
	index         VectorIndex
	store         MetadataStore

	// 可选组件
	guard     FingerprintGuard
	archive   ArchiveStore
	publisher EventPublisher

	threshold float64
	logger    *log.Logger
}

// NewIngestOrchestrator 创建入库编排器
func NewIngestOrchestrator(
	textExtractor TextExtractor,
	recExtractor EmployeeExtractor,
	summarizer SummaryGenerator,
	detector *DuplicateDetector,
	index VectorIndex,
	store MetadataStore,
	opts ...IngestOption,
) (*IngestOrchestrator, error) {
	if textExtractor == nil || recExtractor == nil || summarizer == nil || detector == nil || index == nil || store == nil {
		return nil, fmt.Errorf("入库编排器缺少必需组件")
	}

	o := &IngestOrchestrator{
		textExtractor: textExtractor,
		recExtractor:  recExtractor,
		summarizer:    summarizer,
		detector:      detector,
		index:         index,
		store:         store,
		threshold:     DefaultDuplicateThreshold,
		logger:        log.New(io.Discard, "", 0),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// Ingest 处理一份简历PDF，返回带标签的入库结果
// 错误均为 *IngestionError，携带失败阶段与提交UUID
func (o *IngestOrchestrator) Ingest(ctx context.Context, pdfBytes []byte, filename string) (*types.IngestionResult, error) {
	tracer := otel.Tracer("hr-agent/processor")
	ctx, span := tracer.Start(ctx, "IngestOrchestrator.Ingest", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	submissionUUID := uuid.New().String()
	span.SetAttributes(
		attribute.String("ingest.submission_uuid", submissionUUID),
		attribute.String("ingest.filename", filename),
		attribute.Int("ingest.payload_bytes", len(pdfBytes)),
	)
	o.logger.Printf("[Ingest %s] 开始处理: %s (%d bytes)", submissionUUID, filename, len(pdfBytes))

	// 1. 获取存储句柄（含存活探测）。存储不可用时在任何LLM调用之前终止
	handle, err := o.store.Acquire(ctx)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, NewStoreConnectionError(submissionUUID, err.Error())
	}
	defer handle.Release()

	// 2. 原始文件归档（可选，尽力而为，不参与入库/跳过的原子判定）
	if o.archive != nil {
		if objectKey, archiveErr := o.archive.ArchiveOriginal(ctx, submissionUUID, pdfBytes, filename); archiveErr != nil {
			o.logger.Printf("[Ingest %s] 原始文件归档失败(忽略): %v", submissionUUID, archiveErr)
		} else {
			o.logger.Printf("[Ingest %s] 原始文件已归档: %s", submissionUUID, objectKey)
		}
	}

	// 3. 文本提取
	text, err := o.textExtractor.ExtractText(ctx, pdfBytes, filename)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, NewTextExtractionError(submissionUUID, err.Error())
	}
	text = strings.TrimSpace(text)
	if text == "" {
		// 解析成功但没有内容，同样没有任何写入发生
		err = NewTextExtractionError(submissionUUID, "文档解析成功但文本为空")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	span.SetAttributes(attribute.Int("ingest.text_length", len(text)))

	// 4. 文本指纹：完全相同的文本免LLM直接判重；指纹锁串行化并发的相同提交
	textMD5 := calculateMD5(text)
	if o.guard != nil {
		seen, unlock, guardErr := o.guard.CheckAndLock(ctx, textMD5)
		if guardErr != nil {
			// 指纹守卫是优化层，不可用时退化为纯向量查重
			o.logger.Printf("[Ingest %s] 指纹检查不可用(忽略): %v", submissionUUID, guardErr)
		} else {
			if unlock != nil {
				defer unlock()
			}
			if seen {
				o.logger.Printf("[Ingest %s] 文本指纹命中，直接判定为重复", submissionUUID)
				span.SetAttributes(attribute.Bool("ingest.fingerprint_hit", true))
				return &types.IngestionResult{
					Status:         types.IngestionDuplicate,
					SubmissionUUID: submissionUUID,
					Score:          1.0,
					Message:        "identical document text already ingested",
				}, nil
			}
		}
	}

	// 5. 员工记录提取
	records, err := o.recExtractor.ExtractRecords(ctx, text)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		if errors.Is(err, types.ErrMalformedRecordJSON) {
			return nil, NewRecordSchemaError(submissionUUID, err.Error())
		}
		return nil, NewRecordExtractionError(submissionUUID, err.Error())
	}
	if len(records) == 0 {
		err = NewRecordSchemaError(submissionUUID, "提取结果为空列表")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	// 单记录模式：消费第一条记录，多余记录仅记录日志
	record := records[0]
	if len(records) > 1 {
		o.logger.Printf("[Ingest %s] 提取到 %d 条记录，仅处理第一条 (员工ID: %s)", submissionUUID, len(records), record.EmployeeID)
	}
	span.SetAttributes(attribute.String("ingest.employee_id", record.EmployeeID))

	// 6. 摘要生成（一次计算，查重与写入共用）
	summary, err := o.summarizer.Summarize(ctx, record)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, NewSummaryError(submissionUUID, err.Error())
	}
	span.SetAttributes(attribute.String("ingest.summary_preview", tracing.SafeResumeContent(summary)))

	// 7. 查重：嵌入摘要 + k=1 最近邻
	check, err := o.detector.CheckDuplicate(ctx, summary, o.threshold)
	if err != nil {
		return nil, NewSimilarityError(submissionUUID, err.Error())
	}

	if check.IsDuplicate {
		// 重复：零写入，带分数返回
		o.logger.Printf("[Ingest %s] 判定为重复 (分数=%.4f, 最近邻=%s)，跳过入库", submissionUUID, check.Score, check.NearestPointID)
		span.SetAttributes(
			attribute.Bool("ingest.duplicate", true),
			attribute.Float64("ingest.score", check.Score),
		)
		return &types.IngestionResult{
			Status:         types.IngestionDuplicate,
			SubmissionUUID: submissionUUID,
			Score:          check.Score,
			Message:        fmt.Sprintf("near-duplicate of existing record %s (score %.4f)", check.NearestPointID, check.Score),
		}, nil
	}

	// 8. 新记录：先写向量索引（复用查重时算好的向量），再写元数据
	pointID, err := o.index.UpsertEmployeeSummary(ctx, submissionUUID, summary, check.QueryVector, record)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, NewStoreWriteError(submissionUUID, fmt.Sprintf("写入向量索引失败: %v", err))
	}

	profile := &EmployeeProfileRow{
		SubmissionUUID:   submissionUUID,
		EmployeeID:       record.EmployeeID,
		FirstName:        record.FirstName,
		LastName:         record.LastName,
		SummaryText:      summary,
		EmbeddingPointID: pointID,
		TextMD5:          textMD5,
		Record:           record,
	}
	if err := handle.SaveEmployeeProfile(ctx, profile); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, NewStoreWriteError(submissionUUID, fmt.Sprintf("写入员工元数据失败: %v", err))
	}

	// 9. 指纹登记与事件发布均为尽力而为，失败不回滚已完成的入库
	if o.guard != nil {
		if err := o.guard.MarkStored(ctx, textMD5); err != nil {
			o.logger.Printf("[Ingest %s] 指纹登记失败(忽略): %v", submissionUUID, err)
		}
	}
	if o.publisher != nil {
		if err := o.publisher.PublishStored(ctx, submissionUUID, record.EmployeeID, check.Score); err != nil {
			o.logger.Printf("[Ingest %s] 入库事件发布失败(忽略): %v", submissionUUID, err)
		}
	}

	o.logger.Printf("[Ingest %s] 入库完成 (员工ID: %s, 点ID: %s)", submissionUUID, record.EmployeeID, pointID)
	span.SetAttributes(attribute.Bool("ingest.duplicate", false))

	return &types.IngestionResult{
		Status:         types.IngestionStored,
		SubmissionUUID: submissionUUID,
		Record:         record,
		Message:        "employee record stored",
	}, nil
}

// calculateMD5 计算文本的MD5指纹
func calculateMD5(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}
