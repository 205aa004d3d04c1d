package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingServer emulates an OpenAI-compatible /embeddings endpoint. The
// first failures requests answer with status.
type embeddingServer struct {
	*httptest.Server
	calls    atomic.Int32
	failures int32
	status   int
	lastReq  atomic.Value // map[string]any
}

func newEmbeddingServer(t *testing.T, failures int32, status int) *embeddingServer {
	t.Helper()
	s := &embeddingServer{failures: failures, status: status}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.calls.Add(1)
		if r.URL.Path != "/v1/embeddings" || r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions int      `json:"dimensions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.lastReq.Store(map[string]any{"model": req.Model, "dimensions": req.Dimensions, "inputs": len(req.Input)})

		w.Header().Set("Content-Type", "application/json")
		if n <= s.failures {
			w.WriteHeader(s.status)
			_, _ = w.Write([]byte(`{"error":{"message":"try again","type":"server_error"}}`))
			return
		}

		// answer out of order to exercise index sorting
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), float32(len(req.Input[i]))},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(s.Close)
	return s
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func newTestAPIProvider(t *testing.T, s *embeddingServer, cache *Cache) *APIProvider {
	t.Helper()
	p, err := NewAPIProvider(APIConfig{
		Name:    "test",
		APIKey:  "test-key",
		BaseURL: s.URL + "/v1/",
		Model:   "embed-small",
		Retry:   fastRetry(),
	}, cache)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestAPIProvider_GenerateEmbedding(t *testing.T) {
	s := newEmbeddingServer(t, 0, 0)
	p := newTestAPIProvider(t, s, NewCache(10))

	emb, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 5}, emb.Vector)
	assert.Equal(t, 2, emb.Dimension)
	assert.Equal(t, "test", emb.Provider)
	assert.Equal(t, "embed-small", emb.Model)

	// served from cache
	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.calls.Load())

	// a model override is a different cache entry
	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hello", Model: "embed-large"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), s.calls.Load())
	assert.Equal(t, "embed-large", s.lastReq.Load().(map[string]any)["model"])
}

func TestAPIProvider_BatchOrder(t *testing.T) {
	s := newEmbeddingServer(t, 0, 0)
	p := newTestAPIProvider(t, s, nil)

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "bbb", "cc"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 3)
	assert.Equal(t, []float32{0, 1}, resp.Embeddings[0].Vector)
	assert.Equal(t, []float32{1, 3}, resp.Embeddings[1].Vector)
	assert.Equal(t, []float32{2, 2}, resp.Embeddings[2].Vector)
	assert.Equal(t, "test", resp.Provider)
}

func TestAPIProvider_BatchLimits(t *testing.T) {
	s := newEmbeddingServer(t, 0, 0)
	p := newTestAPIProvider(t, s, nil)

	texts := make([]string, MaxBatchSize+1)
	for i := range texts {
		texts[i] = "x"
	}
	_, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: texts})
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, int32(0), s.calls.Load())
}

func TestAPIProvider_RetriesServerErrors(t *testing.T) {
	s := newEmbeddingServer(t, 2, http.StatusInternalServerError)
	p := newTestAPIProvider(t, s, nil)

	emb, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 2}, emb.Vector)
	assert.Equal(t, int32(3), s.calls.Load())
}

func TestAPIProvider_RetriesExhausted(t *testing.T) {
	s := newEmbeddingServer(t, 10, http.StatusTooManyRequests)
	p := newTestAPIProvider(t, s, nil)

	_, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(3), s.calls.Load())
}

func TestAPIProvider_ClientErrorNotRetried(t *testing.T) {
	s := newEmbeddingServer(t, 10, http.StatusUnauthorized)
	p := newTestAPIProvider(t, s, nil)

	_, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(1), s.calls.Load())
}

func TestAPIProvider_RequestedDimension(t *testing.T) {
	s := newEmbeddingServer(t, 0, 0)
	p, err := NewAPIProvider(APIConfig{
		APIKey:    "test-key",
		BaseURL:   s.URL + "/v1",
		Dimension: 256,
		Retry:     fastRetry(),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, p.Provider())
	assert.Equal(t, DefaultOpenAIModel, p.Model())
	assert.Equal(t, 256, p.Dimension())

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 256, s.lastReq.Load().(map[string]any)["dimensions"])
}

func TestAPIProvider_RateLimited(t *testing.T) {
	s := newEmbeddingServer(t, 0, 0)
	p, err := NewAPIProvider(APIConfig{
		APIKey:            "test-key",
		BaseURL:           s.URL + "/v1",
		RequestsPerSecond: 1,
		Burst:             1,
		Retry:             fastRetry(),
	}, nil)
	require.NoError(t, err)

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "first"})
	require.NoError(t, err)

	// the bucket is empty, so the second call waits longer than the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "second"})
	require.Error(t, err)
	assert.Equal(t, int32(1), s.calls.Load())
}

func TestNewAPIProvider_MissingKey(t *testing.T) {
	_, err := NewAPIProvider(APIConfig{}, nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestDefaultDimension(t *testing.T) {
	assert.Equal(t, JinaDimension, defaultDimension(ProviderJina, DefaultJinaModel))
	assert.Equal(t, OpenAIDimension, defaultDimension(ProviderOpenAI, DefaultOpenAIModel))
	assert.Equal(t, 3072, defaultDimension(ProviderOpenAI, "text-embedding-3-large"))
}
