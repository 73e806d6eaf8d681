package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"hr-agent-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTextExtractor 固定文本的提取器
type fakeTextExtractor struct {
	text  string
	err   error
	calls int
}

func (f *fakeTextExtractor) ExtractText(ctx context.Context, data []byte, uri string) (string, error) {
	f.calls++
	return f.text, f.err
}

// fakeEmployeeExtractor 固定记录的提取器
type fakeEmployeeExtractor struct {
	records []*types.EmployeeRecord
	err     error
	calls   int
}

func (f *fakeEmployeeExtractor) ExtractRecords(ctx context.Context, text string) ([]*types.EmployeeRecord, error) {
	f.calls++
	return f.records, f.err
}

// fakeSummarizer 固定摘要的生成器
type fakeSummarizer struct {
	summary string
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, record *types.EmployeeRecord) (string, error) {
	f.calls++
	return f.summary, f.err
}

// fakeStoreHandle 记录写入与释放的存储句柄
type fakeStoreHandle struct {
	saved    []*EmployeeProfileRow
	saveErr  error
	released bool
}

func (h *fakeStoreHandle) SaveEmployeeProfile(ctx context.Context, profile *EmployeeProfileRow) error {
	if h.saveErr != nil {
		return h.saveErr
	}
	h.saved = append(h.saved, profile)
	return nil
}

func (h *fakeStoreHandle) Release() {
	h.released = true
}

// fakeMetadataStore 元数据存储
type fakeMetadataStore struct {
	handle     *fakeStoreHandle
	acquireErr error
}

func (s *fakeMetadataStore) Acquire(ctx context.Context) (StoreHandle, error) {
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	return s.handle, nil
}

// fakeGuard 文本指纹守卫
type fakeGuard struct {
	seen      bool
	checkErr  error
	unlocked  bool
	marked    []string
	markErr   error
	checkKeys []string
}

func (g *fakeGuard) CheckAndLock(ctx context.Context, textMD5 string) (bool, func(), error) {
	g.checkKeys = append(g.checkKeys, textMD5)
	if g.checkErr != nil {
		return false, nil, g.checkErr
	}
	if g.seen {
		return true, nil, nil
	}
	return false, func() { g.unlocked = true }, nil
}

func (g *fakeGuard) MarkStored(ctx context.Context, textMD5 string) error {
	if g.markErr != nil {
		return g.markErr
	}
	g.marked = append(g.marked, textMD5)
	return nil
}

// fakeArchive 原始文件归档
type fakeArchive struct {
	err   error
	calls int
}

func (a *fakeArchive) ArchiveOriginal(ctx context.Context, submissionUUID string, data []byte, filename string) (string, error) {
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	return fmt.Sprintf("employee/%s/original.pdf", submissionUUID), nil
}

// fakePublisher 入库事件发布器
type fakePublisher struct {
	err       error
	published []string
}

func (p *fakePublisher) PublishStored(ctx context.Context, submissionUUID string, employeeID string, score float64) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, submissionUUID)
	return nil
}

// pipelineFixture 一套默认走通"新记录入库"路径的管道组件
type pipelineFixture struct {
	textExtractor *fakeTextExtractor
	recExtractor  *fakeEmployeeExtractor
	summarizer    *fakeSummarizer
	embedder      *fakeEmbedder
	index         *fakeVectorIndex
	handle        *fakeStoreHandle
	store         *fakeMetadataStore
}

func newPipelineFixture() *pipelineFixture {
	handle := &fakeStoreHandle{}
	return &pipelineFixture{
		textExtractor: &fakeTextExtractor{text: "Jane Doe, Senior Engineer at Platform."},
		recExtractor: &fakeEmployeeExtractor{
			records: []*types.EmployeeRecord{{
				EmployeeID: "EMP-1024",
				FirstName:  "Jane",
				LastName:   "Doe",
				JobDetails: types.JobDetails{JobTitle: "Senior Engineer"},
			}},
		},
		summarizer: &fakeSummarizer{summary: "Jane Doe is a Senior Engineer."},
		embedder:   &fakeEmbedder{vector: []float64{0.1, 0.2, 0.3}},
		index: &fakeVectorIndex{
			nearest:       &types.SimilarityResult{Found: false},
			upsertPointID: "point-abc",
		},
		handle: handle,
		store:  &fakeMetadataStore{handle: handle},
	}
}

func (f *pipelineFixture) orchestrator(t *testing.T, opts ...IngestOption) *IngestOrchestrator {
	t.Helper()
	detector := NewDuplicateDetector(f.embedder, f.index, nil)
	o, err := NewIngestOrchestrator(f.textExtractor, f.recExtractor, f.summarizer, detector, f.index, f.store, opts...)
	require.NoError(t, err)
	return o
}

// TestIngest_StoresNewRecord 端到端：新记录走完整管道并落两处存储
func TestIngest_StoresNewRecord(t *testing.T) {
	f := newPipelineFixture()
	o := f.orchestrator(t)

	result, err := o.Ingest(context.Background(), []byte("%PDF-1.4 fake"), "jane.pdf")
	require.NoError(t, err)

	assert.Equal(t, types.IngestionStored, result.Status)
	assert.NotEmpty(t, result.SubmissionUUID)
	require.NotNil(t, result.Record)
	assert.Equal(t, "EMP-1024", result.Record.EmployeeID)

	// 向量索引复用查重时算好的向量，不二次嵌入
	assert.Equal(t, 1, f.embedder.calls)
	assert.Equal(t, 1, f.index.upsertCalls)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, f.index.upsertedVector)
	assert.Equal(t, "Jane Doe is a Senior Engineer.", f.index.upsertedSummary)

	// 元数据行携带点ID与指纹
	require.Len(t, f.handle.saved, 1)
	row := f.handle.saved[0]
	assert.Equal(t, result.SubmissionUUID, row.SubmissionUUID)
	assert.Equal(t, "EMP-1024", row.EmployeeID)
	assert.Equal(t, "point-abc", row.EmbeddingPointID)
	assert.Equal(t, calculateMD5("Jane Doe, Senior Engineer at Platform."), row.TextMD5)

	// 句柄在退出时被归还
	assert.True(t, f.handle.released)
}

// TestIngest_DuplicateIsZeroWrite 重复判定必须零写入
func TestIngest_DuplicateIsZeroWrite(t *testing.T) {
	f := newPipelineFixture()
	f.index.nearest = &types.SimilarityResult{Found: true, Score: 0.99, PointID: "point-old"}
	o := f.orchestrator(t)

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	require.NoError(t, err)

	assert.Equal(t, types.IngestionDuplicate, result.Status)
	assert.Equal(t, 0.99, result.Score)
	assert.Nil(t, result.Record)
	assert.Contains(t, result.Message, "point-old")

	assert.Zero(t, f.index.upsertCalls)
	assert.Empty(t, f.handle.saved)
	assert.True(t, f.handle.released)
}

// TestIngest_ExactThresholdIsDuplicate 边界分数（恰好等于阈值）按重复处理
func TestIngest_ExactThresholdIsDuplicate(t *testing.T) {
	f := newPipelineFixture()
	f.index.nearest = &types.SimilarityResult{Found: true, Score: DefaultDuplicateThreshold, PointID: "point-old"}
	o := f.orchestrator(t)

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	require.NoError(t, err)
	assert.Equal(t, types.IngestionDuplicate, result.Status)
	assert.Zero(t, f.index.upsertCalls)
}

// TestIngest_EmptyText 无可提取文本：在任何LLM调用之前失败且零写入
func TestIngest_EmptyText(t *testing.T) {
	f := newPipelineFixture()
	f.textExtractor.text = "   \n\t  "
	o := f.orchestrator(t)

	result, err := o.Ingest(context.Background(), []byte("pdf"), "blank.pdf")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoExtractableText))

	var ingestErr *IngestionError
	require.True(t, errors.As(err, &ingestErr))
	assert.Equal(t, StageReceived, ingestErr.Stage)
	assert.NotEmpty(t, ingestErr.SubmissionUUID)

	assert.Zero(t, f.recExtractor.calls)
	assert.Zero(t, f.summarizer.calls)
	assert.Zero(t, f.embedder.calls)
	assert.Empty(t, f.handle.saved)
	assert.True(t, f.handle.released)
}

// TestIngest_TextExtractionFailure 解析失败与空文本走同一个错误类别
func TestIngest_TextExtractionFailure(t *testing.T) {
	f := newPipelineFixture()
	f.textExtractor.err = errors.New("corrupt pdf stream")
	o := f.orchestrator(t)

	result, err := o.Ingest(context.Background(), []byte("not a pdf"), "broken.pdf")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoExtractableText))
	assert.Contains(t, err.Error(), "corrupt pdf stream")
}

// TestIngest_RecordSchemaError LLM输出不符合契约时映射为数据契约错误
func TestIngest_RecordSchemaError(t *testing.T) {
	f := newPipelineFixture()
	f.recExtractor.err = fmt.Errorf("%w: 响应中没有JSON数组", types.ErrMalformedRecordJSON)
	o := f.orchestrator(t)

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecordSchema))

	var ingestErr *IngestionError
	require.True(t, errors.As(err, &ingestErr))
	assert.Equal(t, StageTextExtracted, ingestErr.Stage)
	assert.Empty(t, f.handle.saved)
}

// TestIngest_RecordExtractionFailure LLM调用本身失败归入提取错误而不是契约错误
func TestIngest_RecordExtractionFailure(t *testing.T) {
	f := newPipelineFixture()
	f.recExtractor.err = errors.New("llm timeout")
	o := f.orchestrator(t)

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecordExtraction))
	assert.False(t, errors.Is(err, ErrRecordSchema))
}

// TestIngest_EmptyRecordList 提取结果为空列表同样是契约错误
func TestIngest_EmptyRecordList(t *testing.T) {
	f := newPipelineFixture()
	f.recExtractor.records = nil
	o := f.orchestrator(t)

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecordSchema))
	assert.Zero(t, f.summarizer.calls)
}

// TestIngest_SummaryFailure 摘要失败终止管道
func TestIngest_SummaryFailure(t *testing.T) {
	f := newPipelineFixture()
	f.summarizer.err = errors.New("empty summary")
	o := f.orchestrator(t)

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSummaryFailed))
	assert.Zero(t, f.embedder.calls)
	assert.Empty(t, f.handle.saved)
}

// TestIngest_SimilarityServiceFailure 查重服务失败映射为相似度错误
func TestIngest_SimilarityServiceFailure(t *testing.T) {
	f := newPipelineFixture()
	f.index.searchErr = errors.New("qdrant down")
	o := f.orchestrator(t)

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSimilarityService))
	assert.Empty(t, f.handle.saved)
}

// TestIngest_StoreUnavailable 存储探活失败时在任何LLM调用之前终止
func TestIngest_StoreUnavailable(t *testing.T) {
	f := newPipelineFixture()
	f.store.acquireErr = errors.New("mysql unreachable")
	o := f.orchestrator(t)

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreConnection))
	assert.Zero(t, f.textExtractor.calls)
	assert.Zero(t, f.recExtractor.calls)
}

// TestIngest_VectorWriteFailure 向量写入失败归入写错误
func TestIngest_VectorWriteFailure(t *testing.T) {
	f := newPipelineFixture()
	f.index.upsertErr = errors.New("upsert rejected")
	o := f.orchestrator(t)

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreWrite))
	assert.Empty(t, f.handle.saved)
}

// TestIngest_MetadataWriteFailure 元数据写入失败同样归入写错误
func TestIngest_MetadataWriteFailure(t *testing.T) {
	f := newPipelineFixture()
	f.handle.saveErr = errors.New("duplicate entry")
	o := f.orchestrator(t)

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreWrite))
	assert.True(t, f.handle.released)
}

// TestIngest_FingerprintHitShortCircuits 指纹命中：免LLM直接判重
func TestIngest_FingerprintHitShortCircuits(t *testing.T) {
	f := newPipelineFixture()
	guard := &fakeGuard{seen: true}
	o := f.orchestrator(t, WithFingerprintGuard(guard))

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	require.NoError(t, err)

	assert.Equal(t, types.IngestionDuplicate, result.Status)
	assert.Equal(t, 1.0, result.Score)

	// 指纹命中后不再触达任何LLM或向量服务
	assert.Zero(t, f.recExtractor.calls)
	assert.Zero(t, f.summarizer.calls)
	assert.Zero(t, f.embedder.calls)
	assert.Zero(t, f.index.upsertCalls)
	assert.Empty(t, f.handle.saved)
}

// TestIngest_FingerprintLifecycle 新记录入库后登记指纹并释放指纹锁
func TestIngest_FingerprintLifecycle(t *testing.T) {
	f := newPipelineFixture()
	guard := &fakeGuard{}
	o := f.orchestrator(t, WithFingerprintGuard(guard))

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	require.NoError(t, err)
	assert.Equal(t, types.IngestionStored, result.Status)

	expectedMD5 := calculateMD5("Jane Doe, Senior Engineer at Platform.")
	assert.Equal(t, []string{expectedMD5}, guard.checkKeys)
	assert.Equal(t, []string{expectedMD5}, guard.marked)
	assert.True(t, guard.unlocked)
}

// TestIngest_GuardFailureDegrades 指纹守卫不可用时退化为纯向量查重
func TestIngest_GuardFailureDegrades(t *testing.T) {
	f := newPipelineFixture()
	guard := &fakeGuard{checkErr: errors.New("redis down")}
	o := f.orchestrator(t, WithFingerprintGuard(guard))

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	require.NoError(t, err)
	assert.Equal(t, types.IngestionStored, result.Status)
	require.Len(t, f.handle.saved, 1)
}

// TestIngest_ArchiveFailureIgnored 归档是尽力而为，失败不影响入库
func TestIngest_ArchiveFailureIgnored(t *testing.T) {
	f := newPipelineFixture()
	archive := &fakeArchive{err: errors.New("minio down")}
	o := f.orchestrator(t, WithArchiveStore(archive))

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	require.NoError(t, err)
	assert.Equal(t, types.IngestionStored, result.Status)
	assert.Equal(t, 1, archive.calls)
}

// TestIngest_PublishesStoredEvent 入库成功后发布事件；发布失败同样被忽略
func TestIngest_PublishesStoredEvent(t *testing.T) {
	f := newPipelineFixture()
	publisher := &fakePublisher{}
	o := f.orchestrator(t, WithEventPublisher(publisher))

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{result.SubmissionUUID}, publisher.published)

	f2 := newPipelineFixture()
	o2 := f2.orchestrator(t, WithEventPublisher(&fakePublisher{err: errors.New("amqp closed")}))
	result2, err := o2.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	require.NoError(t, err)
	assert.Equal(t, types.IngestionStored, result2.Status)
}

// TestIngest_NoEventOnDuplicate 重复判定不发布入库事件
func TestIngest_NoEventOnDuplicate(t *testing.T) {
	f := newPipelineFixture()
	f.index.nearest = &types.SimilarityResult{Found: true, Score: 0.999, PointID: "point-old"}
	publisher := &fakePublisher{}
	o := f.orchestrator(t, WithEventPublisher(publisher))

	_, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	require.NoError(t, err)
	assert.Empty(t, publisher.published)
}

// TestIngest_MultipleRecordsUsesFirst 一份文档提取出多条记录时只消费第一条
func TestIngest_MultipleRecordsUsesFirst(t *testing.T) {
	f := newPipelineFixture()
	f.recExtractor.records = []*types.EmployeeRecord{
		{EmployeeID: "EMP-1", FirstName: "First"},
		{EmployeeID: "EMP-2", FirstName: "Second"},
	}
	o := f.orchestrator(t)

	result, err := o.Ingest(context.Background(), []byte("pdf"), "two.pdf")
	require.NoError(t, err)
	require.NotNil(t, result.Record)
	assert.Equal(t, "EMP-1", result.Record.EmployeeID)
	require.Len(t, f.handle.saved, 1)
	assert.Equal(t, "EMP-1", f.handle.saved[0].EmployeeID)
}

// TestIngest_CustomThreshold 自定义阈值生效
func TestIngest_CustomThreshold(t *testing.T) {
	f := newPipelineFixture()
	f.index.nearest = &types.SimilarityResult{Found: true, Score: 0.95, PointID: "point-old"}
	o := f.orchestrator(t, WithDuplicateThreshold(0.9))

	result, err := o.Ingest(context.Background(), []byte("pdf"), "jane.pdf")
	require.NoError(t, err)
	assert.Equal(t, types.IngestionDuplicate, result.Status)
	assert.Equal(t, 0.95, result.Score)
}

// TestNewIngestOrchestrator_MissingComponent 缺必需组件时构造失败
func TestNewIngestOrchestrator_MissingComponent(t *testing.T) {
	f := newPipelineFixture()
	detector := NewDuplicateDetector(f.embedder, f.index, nil)

	_, err := NewIngestOrchestrator(nil, f.recExtractor, f.summarizer, detector, f.index, f.store)
	assert.Error(t, err)

	_, err = NewIngestOrchestrator(f.textExtractor, f.recExtractor, f.summarizer, detector, f.index, nil)
	assert.Error(t, err)
}
