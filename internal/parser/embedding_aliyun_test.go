package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hr-agent-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *AliyunEmbedder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	embedder, err := NewAliyunEmbedder("test-api-key", config.EmbeddingConfig{
		Model:      "text-embedding-v3",
		BaseURL:    server.URL,
		Dimensions: 3,
	})
	require.NoError(t, err)
	return embedder
}

// TestNewAliyunEmbedder_RequiresAPIKey API密钥缺失直接拒绝
func TestNewAliyunEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewAliyunEmbedder("", config.EmbeddingConfig{})
	assert.Error(t, err)
}

// TestEmbedStrings_SingleText 单文本请求体中input为字符串
func TestEmbedStrings_SingleText(t *testing.T) {
	var reqBody AliyunOpenAIEmbeddingRequest
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"object": "list",
			"data": [{"object": "embedding", "embedding": [0.1, 0.2, 0.3], "index": 0}],
			"model": "text-embedding-v3",
			"usage": {"prompt_tokens": 5, "total_tokens": 5}
		}`))
	})

	vectors, err := embedder.EmbedStrings(context.Background(), []string{"employee summary"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vectors[0])

	assert.Equal(t, "employee summary", reqBody.Input)
	assert.Equal(t, "text-embedding-v3", reqBody.Model)
	assert.Equal(t, 3, reqBody.Dimensions)
}

// TestEmbedStrings_Batch 多文本请求体中input为数组
func TestEmbedStrings_Batch(t *testing.T) {
	var reqBody AliyunOpenAIEmbeddingRequest
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"object": "list",
			"data": [
				{"object": "embedding", "embedding": [0.1, 0.2, 0.3], "index": 0},
				{"object": "embedding", "embedding": [0.4, 0.5, 0.6], "index": 1}
			],
			"model": "text-embedding-v3",
			"usage": {"prompt_tokens": 10, "total_tokens": 10}
		}`))
	})

	vectors, err := embedder.EmbedStrings(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{0.4, 0.5, 0.6}, vectors[1])
	assert.Equal(t, []interface{}{"one", "two"}, reqBody.Input)
}

// TestEmbedStrings_EmptyInput 空输入不发起HTTP调用
func TestEmbedStrings_EmptyInput(t *testing.T) {
	called := false
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	vectors, err := embedder.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.False(t, called)
}

// TestEmbedStrings_HTTPError 非200状态码映射为错误
func TestEmbedStrings_HTTPError(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message": "rate limited", "type": "throttle", "code": "429"}`))
	})

	vectors, err := embedder.EmbedStrings(context.Background(), []string{"text"})
	assert.Nil(t, vectors)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

// TestEmbedStrings_APIErrorInBody 200响应体内携带API错误时同样失败
func TestEmbedStrings_APIErrorInBody(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"object": "list",
			"data": [],
			"model": "text-embedding-v3",
			"usage": {"prompt_tokens": 0, "total_tokens": 0},
			"error": {"message": "input too long", "type": "invalid_request_error", "code": "400"}
		}`))
	})

	vectors, err := embedder.EmbedStrings(context.Background(), []string{"text"})
	assert.Nil(t, vectors)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input too long")
}

// TestGetDimensions 维度来自配置
func TestGetDimensions(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {})
	assert.Equal(t, 3, embedder.GetDimensions())
}
