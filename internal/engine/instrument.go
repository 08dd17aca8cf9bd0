package engine

import (
	"context"

	"github.com/xmmarcotte/marcotte-dev/internal/embedder"
	"github.com/xmmarcotte/marcotte-dev/internal/metrics"
)

// Embedding purposes reported to metrics
const (
	purposeQuery = "query"
	purposeIndex = "index"
	purposeStore = "store"
)

// instrumented counts embedding calls for one purpose
type instrumented struct {
	embedder.Embedder
	metrics *metrics.Metrics
	purpose string
}

func instrument(e embedder.Embedder, m *metrics.Metrics, purpose string) embedder.Embedder {
	if m == nil {
		return e
	}
	return &instrumented{Embedder: e, metrics: m, purpose: purpose}
}

func (i *instrumented) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := i.Embedder.Embed(ctx, text)
	i.metrics.ObserveEmbedding(i.purpose, err)
	return v, err
}

func (i *instrumented) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := i.Embedder.EmbedBatch(ctx, texts)
	i.metrics.ObserveEmbedding(i.purpose, err)
	return v, err
}
