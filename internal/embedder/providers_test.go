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

	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

var fastRetry = &RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}

func embeddingServer(t *testing.T, status *atomic.Int32, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if code := int(status.Load()); code != http.StatusOK {
			http.Error(w, `{"error":"nope"}`, code)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		resp := struct {
			Object string `json:"object"`
			Data   []item `json:"data"`
			Model  string `json:"model"`
			Usage  struct {
				PromptTokens int `json:"prompt_tokens"`
				TotalTokens  int `json:"total_tokens"`
			} `json:"usage"`
		}{Object: "list", Model: "test-model"}
		// Reverse order to check that results are placed by index.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, item{Object: "embedding", Index: i, Embedding: []float64{float64(i), 1}})
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJinaProvider(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	srv := embeddingServer(t, &status, &hits)

	p, err := NewJinaProvider(Config{APIKey: "k", BaseURL: srv.URL, Dimension: 2, Retry: fastRetry})
	require.NoError(t, err)
	defer p.Close()

	vectors, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{0, 1}, vectors[0])
	assert.Equal(t, []float32{2, 1}, vectors[2])
	assert.Equal(t, 2, p.Dimension())
	assert.Equal(t, ProviderJina, p.Provider())
}

func TestJinaProvider_RetriesServerErrors(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusBadGateway)
	srv := embeddingServer(t, &status, &hits)

	p, err := NewJinaProvider(Config{APIKey: "k", BaseURL: srv.URL, Retry: fastRetry})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEmbeddingUnavailable)
	assert.Equal(t, int32(3), hits.Load())
}

func TestJinaProvider_ClientErrorIsPermanent(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusUnauthorized)
	srv := embeddingServer(t, &status, &hits)

	p, err := NewJinaProvider(Config{APIKey: "k", BaseURL: srv.URL, Retry: fastRetry})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(1), hits.Load())
}

func TestJinaProvider_BatchTooLarge(t *testing.T) {
	p, err := NewJinaProvider(Config{APIKey: "k"})
	require.NoError(t, err)

	texts := make([]string, MaxBatchSize+1)
	for i := range texts {
		texts[i] = "t"
	}
	_, err = p.EmbedBatch(context.Background(), texts)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestOpenAIProvider(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	srv := embeddingServer(t, &status, &hits)

	p, err := NewOpenAIProvider(Config{APIKey: "k", BaseURL: srv.URL + "/v1/", Dimension: 2, Retry: fastRetry})
	require.NoError(t, err)

	vectors, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, vectors)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		provider string
		wantErr  error
	}{
		{"default local", Config{}, ProviderLocal, nil},
		{"explicit local", Config{Provider: "LOCAL", Dimension: 64}, ProviderLocal, nil},
		{"key selects jina", Config{APIKey: "k"}, ProviderJina, nil},
		{"openai", Config{Provider: "openai", APIKey: "k"}, ProviderOpenAI, nil},
		{"openai without key", Config{Provider: "openai"}, "", ErrNoProviderEnabled},
		{"unknown", Config{Provider: "word2vec"}, "", ErrUnsupportedModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, e.Provider())
		})
	}
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	calls := 0
	got, err := RetryWithBackoff(ctx, *fastRetry, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, assert.AnError
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 3, calls)

	calls = 0
	_, err = RetryWithBackoff(ctx, *fastRetry, func() (int, error) {
		calls++
		return 0, Permanent(assert.AnError)
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = RetryWithBackoff(cancelled, *fastRetry, func() (int, error) {
		return 0, assert.AnError
	})
	assert.ErrorIs(t, err, context.Canceled)
}
