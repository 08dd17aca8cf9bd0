package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xmmarcotte/marcotte-dev/internal/embedder"
)

const (
	DefaultCrossEncoderModel = "jina-reranker-v2-base-multilingual"
	DefaultBaseURL           = embedder.DefaultJinaBaseURL
	defaultTimeout           = 10 * time.Second
)

// CrossEncoder scores query and document pairs with a hosted cross-encoder
// through a Jina compatible /v1/rerank endpoint.
type CrossEncoder struct {
	apiKey     string
	model      string
	baseURL    string
	retry      embedder.RetryConfig
	httpClient *http.Client
}

// NewCrossEncoder creates a cross-encoder client
func NewCrossEncoder(cfg Config) (*CrossEncoder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cross-encoder reranker requires an api key")
	}
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = DefaultCrossEncoderModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &CrossEncoder{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		retry:      embedder.DefaultRetryConfig(),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *CrossEncoder) Name() string {
	return ProviderCrossEncoder
}

// Rerank sends all candidates in one request. Empty candidate texts are
// not sent and score MinScore.
func (c *CrossEncoder) Rerank(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	scores := make([]float64, len(candidates))
	docs := make([]string, 0, len(candidates))
	positions := make([]int, 0, len(candidates))
	for i, cand := range candidates {
		scores[i] = MinScore
		if strings.TrimSpace(cand.Text) != "" {
			docs = append(docs, cand.Text)
			positions = append(positions, i)
		}
	}
	if len(docs) == 0 {
		return scores, nil
	}

	results, err := embedder.RetryWithBackoff(ctx, c.retry, func() ([]rerankResult, error) {
		return c.callAPI(ctx, query, docs)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, r := range results {
		if r.Index < 0 || r.Index >= len(positions) {
			return nil, fmt.Errorf("%w: result index %d out of range", ErrUnavailable, r.Index)
		}
		scores[positions[r.Index]] = r.RelevanceScore
	}
	return scores, nil
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

func (c *CrossEncoder) callAPI(ctx context.Context, query string, docs []string) ([]rerankResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":     c.model,
		"query":     query,
		"documents": docs,
		"top_n":     len(docs),
	})
	if err != nil {
		return nil, embedder.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, embedder.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, embedder.StatusError(resp)
	}

	var apiResp struct {
		Results []rerankResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Results) != len(docs) {
		return nil, fmt.Errorf("expected %d scores, got %d", len(docs), len(apiResp.Results))
	}
	return apiResp.Results, nil
}

// Close releases idle connections
func (c *CrossEncoder) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
