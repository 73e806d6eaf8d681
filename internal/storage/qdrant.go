package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"hr-agent-go/internal/config"
	"hr-agent-go/internal/tracing"
	"hr-agent-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// 定义Qdrant的专用tracer
var qdrantTracer = otel.Tracer("hr-agent-go/storage/qdrant")

// QdrantPointIDNamespace 用于从提交UUID派生确定性的Qdrant点ID
// 相同的提交UUID总是得到相同的点ID，重试写入时天然幂等
// UUID generated via `uuidgen`
var QdrantPointIDNamespace = uuid.Must(uuid.FromString("b5a1d0c4-7f2e-4c19-9d6a-3e84c2f0b917"))

// Qdrant 提供员工摘要向量索引功能
type Qdrant struct {
	endpoint       string
	collectionName string
	vectorSize     int
	distanceMetric string
	apiKey         string
	httpClient     *http.Client
}

// SearchResult 表示一个搜索结果项
type SearchResult struct {
	ID      string                 // 向量ID
	Score   float64                // 相似度分数
	Payload map[string]interface{} // 载荷数据
}

// QdrantOption 定义Qdrant构造函数选项
type QdrantOption func(*Qdrant)

// WithDistanceMetric 设置距离度量
func WithDistanceMetric(metric string) QdrantOption {
	return func(q *Qdrant) {
		q.distanceMetric = metric
	}
}

// WithHttpTimeout 设置HTTP客户端超时
func WithHttpTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = &http.Client{Timeout: timeout}
	}
}

// NewQdrant 创建Qdrant客户端
func NewQdrant(cfg *config.QdrantConfig, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant配置不能为空")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:6333" // 默认端点
	}

	collectionName := cfg.Collection
	if collectionName == "" {
		collectionName = "employee_summaries" // 默认集合名
	}

	vectorSize := cfg.Dimension
	if vectorSize <= 0 {
		vectorSize = 1024 // 默认向量维度，与阿里云Embedding一致
	}

	q := &Qdrant{
		endpoint:       endpoint,
		collectionName: collectionName,
		vectorSize:     vectorSize,
		distanceMetric: "Cosine", // 使用余弦相似度
		apiKey:         cfg.APIKey,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}

	// 应用选项
	for _, opt := range opts {
		opt(q)
	}

	// 确保集合存在
	if err := q.ensureCollectionExists(context.Background()); err != nil {
		return nil, fmt.Errorf("确保集合 '%s' 存在失败: %w", collectionName, err)
	}

	log.Printf("成功连接到Qdrant服务器: %s，并确保集合 '%s' 存在", endpoint, collectionName)
	return q, nil
}

// ensureCollectionExists 确保向量集合存在
func (q *Qdrant) ensureCollectionExists(ctx context.Context) error {
	// 创建一个命名span
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.EnsureCollectionExists",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// 添加基础属性
	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "check_collection"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
	)

	// 先检查集合是否已存在
	url := fmt.Sprintf("%s/collections/%s", q.endpoint, q.collectionName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("创建检查集合请求失败: %w", err)
	}
	q.setAuthHeader(req)

	// 注入OpenTelemetry追踪上下文到HTTP请求
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	span.SetAttributes(
		attribute.String("http.method", http.MethodGet),
		attribute.String("http.url", url),
	)

	resp, err := q.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("发送检查集合请求失败: %w", err)
	}
	defer resp.Body.Close()

	// 如果集合不存在，则创建它
	if resp.StatusCode == http.StatusNotFound {
		span.AddEvent("collection_not_found", trace.WithAttributes(
			attribute.String("action", "create_collection"),
		))
		log.Printf("集合 '%s' 不存在，将创建新集合", q.collectionName)
		return q.createCollection(ctx)
	} else if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("检查集合失败，状态码: %d, 响应: %s", resp.StatusCode, string(body))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// 检查集合配置是否匹配当前配置
	var collectionInfo struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("读取集合信息响应失败: %w", err)
	}

	if err := json.Unmarshal(body, &collectionInfo); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("解析集合信息失败: %w", err)
	}

	existingSize := collectionInfo.Result.Config.Params.Vectors.Size
	existingDistance := collectionInfo.Result.Config.Params.Vectors.Distance

	span.SetAttributes(
		attribute.Int("collection.existing_vector_size", existingSize),
		attribute.String("collection.existing_distance", existingDistance),
	)

	if existingSize != q.vectorSize || existingDistance != q.distanceMetric {
		log.Printf("警告: 现有集合配置与当前配置不匹配。现有: 维度=%d, 距离=%s; 当前: 维度=%d, 距离=%s",
			existingSize, existingDistance, q.vectorSize, q.distanceMetric)
		// 如需重新创建集合，可在此处添加逻辑

		span.AddEvent("collection_config_mismatch", trace.WithAttributes(
			attribute.Int("expected_vector_size", q.vectorSize),
			attribute.String("expected_distance", q.distanceMetric),
		))
	}

	span.SetStatus(codes.Ok, "")
	log.Printf("已发现现有Qdrant集合: %s，维度: %d", q.collectionName, existingSize)
	return nil
}

// createCollection 创建新的向量集合
func (q *Qdrant) createCollection(ctx context.Context) error {
	// 创建一个命名span
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.CreateCollection",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// 添加基础属性
	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "create_collection"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
		attribute.String("db.vector.distance", q.distanceMetric),
	)

	// 准备创建集合的请求
	createReqBody := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.vectorSize,
			"distance": q.distanceMetric,
		},
		"optimizers_config": map[string]interface{}{
			"default_segment_number": 2,
		},
	}

	var result struct {
		Result bool    `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}

	err := q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", q.collectionName), createReqBody, &result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("创建集合失败: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	log.Printf("已成功创建Qdrant集合: %s，维度: %d", q.collectionName, q.vectorSize)
	return nil
}

// UpsertEmployeeSummary 将一条员工摘要向量写入索引，返回点ID
// 点ID由提交UUID确定性派生，相同提交的重试写入会覆盖同一个点
func (q *Qdrant) UpsertEmployeeSummary(ctx context.Context, submissionUUID string, summary string, vector []float64, record *types.EmployeeRecord) (string, error) {
	// 创建一个命名span
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.UpsertEmployeeSummary",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// 添加基础属性
	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "upsert_point"),
		attribute.String("db.collection", q.collectionName),
		attribute.String("submission_uuid", submissionUUID),
		attribute.Int("vector.size", len(vector)),
	)

	if len(vector) != q.vectorSize {
		err := fmt.Errorf("向量维度(%d)与配置维度(%d)不匹配", len(vector), q.vectorSize)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	// 基于提交UUID生成确定性点ID，保证写入幂等
	idSource := fmt.Sprintf("submission_uuid:%s", submissionUUID)
	pointID := uuid.NewV5(QdrantPointIDNamespace, idSource).String()

	// payload 携带摘要文本与员工标识，查重命中时可直接回显最近邻信息
	payload := map[string]interface{}{
		"submission_uuid": submissionUUID,
		"summary_text":    truncateString(summary, 2000),
		"source":          "employee_record",
	}
	if record != nil {
		if record.EmployeeID != "" {
			payload["employee_id"] = record.EmployeeID
		}
		if name := record.FullName(); name != "" {
			payload["employee_name"] = name
		}
		if record.JobDetails.JobTitle != "" {
			payload["job_title"] = record.JobDetails.JobTitle
		}
		if record.JobDetails.Department != "" {
			payload["department"] = record.JobDetails.Department
		}
	}

	requestBody := map[string]interface{}{
		"points": []interface{}{
			map[string]interface{}{
				"id":      pointID,
				"vector":  vector,
				"payload": payload,
			},
		},
	}

	var response struct {
		Result struct {
			Status string `json:"status"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}

	err := q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", q.collectionName), requestBody, &response)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	// 记录API响应信息
	span.SetAttributes(
		attribute.String("qdrant.point_id", pointID),
		attribute.String("qdrant.response_status", response.Status),
		attribute.Float64("qdrant.response_time", response.Time),
	)

	span.SetStatus(codes.Ok, "")
	return pointID, nil
}

// SearchNearestSummary 在索引中查询与查询向量最相似的一条摘要（k=1）
// 索引为空时返回 Found=false 而不是错误
func (q *Qdrant) SearchNearestSummary(ctx context.Context, queryVector []float64) (*types.SimilarityResult, error) {
	// 创建一个命名span
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.SearchNearestSummary",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// 添加基础属性
	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "search_vectors"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("search.limit", 1),
		attribute.Int("query_vector.size", len(queryVector)),
	)

	if len(queryVector) != q.vectorSize {
		err := fmt.Errorf("查询向量维度(%d)与配置维度(%d)不匹配", len(queryVector), q.vectorSize)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// 只需要最近的一个邻居
	searchReq := map[string]interface{}{
		"vector":       queryVector,
		"limit":        1,
		"with_payload": true,
	}

	var result struct {
		Result []struct {
			ID      string                 `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}

	err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.collectionName), searchReq, &result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("search.results.count", len(result.Result)),
		attribute.String("qdrant.response_status", result.Status),
		attribute.Float64("qdrant.response_time", result.Time),
	)

	if len(result.Result) == 0 {
		// 索引为空，查重方按"没有最近邻"处理
		span.AddEvent("index_empty")
		span.SetStatus(codes.Ok, "no neighbors")
		return &types.SimilarityResult{Found: false}, nil
	}

	nearest := result.Result[0]
	similarity := &types.SimilarityResult{
		Found:   true,
		Score:   nearest.Score,
		PointID: nearest.ID,
	}
	if summaryText, ok := nearest.Payload["summary_text"].(string); ok {
		similarity.SummaryText = summaryText
	}

	span.SetAttributes(attribute.Float64("search.top_score", nearest.Score))
	span.SetStatus(codes.Ok, "")
	return similarity, nil
}

// GetPointBySubmissionUUID 通过提交UUID取回对应的向量点
func (q *Qdrant) GetPointBySubmissionUUID(ctx context.Context, submissionUUID string) (*SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.GetPointBySubmissionUUID",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "qdrant"),
			attribute.String("db.operation", "scroll"),
			attribute.String("db.collection", q.collectionName),
			attribute.String("submission_uuid", submissionUUID),
		),
	)
	defer span.End()

	scrollReqBody := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{
					"key": "submission_uuid",
					"match": map[string]interface{}{
						"value": submissionUUID,
					},
				},
			},
		},
		"with_payload": true,
		"limit":        1, // 每个提交最多对应一个点
	}

	var scrollResp struct {
		Result struct {
			Points []struct {
				ID      string                 `json:"id"`
				Payload map[string]interface{} `json:"payload"`
			} `json:"points"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}

	err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/scroll", q.collectionName), scrollReqBody, &scrollResp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to scroll point by submission_uuid")
		return nil, err
	}

	if len(scrollResp.Result.Points) == 0 {
		span.SetStatus(codes.Ok, "point not found")
		return nil, nil
	}

	point := scrollResp.Result.Points[0]
	span.SetAttributes(attribute.String("qdrant.point_id", point.ID))
	span.SetStatus(codes.Ok, "")
	return &SearchResult{
		ID:      point.ID,
		Payload: point.Payload,
	}, nil
}

// DeletePoints 删除指定ID的向量点
func (q *Qdrant) DeletePoints(ctx context.Context, pointIDs []string) error {
	// 创建一个命名span
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.DeletePoints",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// 添加基础属性
	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "delete_points"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("points.count", len(pointIDs)),
	)

	if len(pointIDs) == 0 {
		span.SetStatus(codes.Ok, "no points to delete")
		return nil
	}

	reqBody := map[string]interface{}{
		"points": pointIDs,
	}

	var result struct {
		Result struct {
			Status string `json:"status"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}

	err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collectionName), reqBody, &result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// 记录API响应信息
	span.SetAttributes(
		attribute.String("qdrant.response_status", result.Status),
		attribute.Float64("qdrant.response_time", result.Time),
	)

	span.SetStatus(codes.Ok, "")
	return nil
}

// CountPoints 获取集合中的点数量
func (q *Qdrant) CountPoints(ctx context.Context) (int64, error) {
	// 创建一个命名span
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.CountPoints",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// 添加基础属性
	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "count_points"),
		attribute.String("db.collection", q.collectionName),
	)

	countReqBody := map[string]interface{}{
		"exact": true, // 精确计数
	}

	var result struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}

	err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/count", q.collectionName), countReqBody, &result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	// 记录API响应信息
	span.SetAttributes(
		attribute.String("qdrant.response_status", result.Status),
		attribute.Float64("qdrant.response_time", result.Time),
		attribute.Int64("qdrant.points.count", result.Result.Count),
	)

	span.SetStatus(codes.Ok, "")
	return result.Result.Count, nil
}

// setAuthHeader 为请求附加Qdrant API Key（未配置时不设置）
func (q *Qdrant) setAuthHeader(req *http.Request) {
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
}

// 辅助函数 - 截断字符串
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen > 3 {
		return s[:maxLen-3] + "..."
	}
	return s[:maxLen]
}

func (q *Qdrant) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	// 创建请求和span
	ctx, span := qdrantTracer.Start(ctx, fmt.Sprintf("%s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// 设置span属性
	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", path),
	)

	baseURL := q.endpoint

	var req *http.Request
	var err error

	if body != nil {
		jsonBody, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			tracing.RecordError(span, marshalErr, tracing.ErrorTypeVectorDB)
			return marshalErr
		}

		req, err = http.NewRequestWithContext(ctx, method, baseURL+path, bytes.NewBuffer(jsonBody))
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		span.SetAttributes(attribute.Int("http.request.body.size", len(jsonBody)))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, baseURL+path, nil)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
	}

	q.setAuthHeader(req)

	// 注入trace context
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	// 执行请求
	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}
	defer resp.Body.Close()

	// 设置状态码属性
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	// 读取响应
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}

	span.SetAttributes(attribute.Int("http.response.body.size", len(respBody)))

	// 检查状态码
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("qdrant API error: status=%d, body=%s", resp.StatusCode, string(respBody))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return err
	}

	// 解析结果
	if result != nil && len(respBody) > 0 {
		if err = json.Unmarshal(respBody, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
