package processor

import (
	"context"
	"fmt"
	"io"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hr-agent-go/internal/tracing"
)

// DefaultDuplicateThreshold 判定为重复的默认最低相似度分数（含边界）
// 管道与agent工具共用这一个常量，避免两处阈值漂移
const DefaultDuplicateThreshold = 0.98

// DuplicateCheckResult 一次查重的结果
type DuplicateCheckResult struct {
	// IsDuplicate score >= threshold 时为 true（含边界）
	IsDuplicate bool
	// Score 最近邻相似度分数；索引为空时恒为 0
	Score float64
	// NearestPointID 最近邻的点ID，索引为空时为空串
	NearestPointID string
	// NearestSummary 最近邻存储时的摘要文本，仅用于日志排查
	NearestSummary string
	// QueryVector 本次计算的查询向量，新记录入库时复用，避免重复嵌入
	QueryVector []float64
}

// DuplicateDetector 基于摘要嵌入 + k=1 最近邻查询的员工查重器
// 只读：无论判定结果如何都不写入任何存储
type DuplicateDetector struct {
	embedder TextEmbedder
	index    VectorIndex
	logger   *log.Logger
}

// NewDuplicateDetector 创建查重器
func NewDuplicateDetector(embedder TextEmbedder, index VectorIndex, logger *log.Logger) *DuplicateDetector {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &DuplicateDetector{
		embedder: embedder,
		index:    index,
		logger:   logger,
	}
}

// CheckDuplicate 对摘要文本执行查重
// threshold <= 0 时使用 DefaultDuplicateThreshold；判定规则为 score >= threshold（含边界）
func (d *DuplicateDetector) CheckDuplicate(ctx context.Context, summary string, threshold float64) (*DuplicateCheckResult, error) {
	tracer := otel.Tracer("hr-agent/processor")
	ctx, span := tracer.Start(ctx, "DuplicateDetector.CheckDuplicate", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	if threshold <= 0 {
		threshold = DefaultDuplicateThreshold
	}
	span.SetAttributes(
		attribute.Float64("dedup.threshold", threshold),
		attribute.Int("dedup.summary_length", len(summary)),
	)

	vectors, err := d.embedder.EmbedStrings(ctx, []string{summary})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, fmt.Errorf("%w: 摘要嵌入失败: %v", ErrSimilarityService, err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		err = fmt.Errorf("%w: 嵌入服务返回了空向量", ErrSimilarityService)
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, err
	}
	queryVector := vectors[0]

	nearest, err := d.index.SearchNearestSummary(ctx, queryVector)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("%w: 相似度查询失败: %v", ErrSimilarityService, err)
	}

	result := &DuplicateCheckResult{
		QueryVector: queryVector,
	}

	if nearest == nil || !nearest.Found {
		// 索引为空：没有最近邻，分数恒为0，必然判定为新记录
		span.SetAttributes(attribute.Bool("dedup.index_empty", true))
		d.logger.Printf("[DuplicateDetector] 索引为空，判定为新记录")
		return result, nil
	}

	result.Score = nearest.Score
	result.NearestPointID = nearest.PointID
	result.NearestSummary = nearest.SummaryText
	result.IsDuplicate = nearest.Score >= threshold

	span.SetAttributes(
		attribute.Float64("dedup.score", result.Score),
		attribute.Bool("dedup.is_duplicate", result.IsDuplicate),
	)
	d.logger.Printf("[DuplicateDetector] 最近邻分数=%.4f 阈值=%.4f 重复=%v", result.Score, threshold, result.IsDuplicate)

	return result, nil
}
