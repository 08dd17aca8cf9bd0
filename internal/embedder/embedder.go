package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// Common errors
var (
	ErrProviderFailed    = fmt.Errorf("embedding provider failed: %w", types.ErrEmbeddingUnavailable)
	ErrEmptyText         = fmt.Errorf("%w: text cannot be empty", types.ErrMalformedInput)
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrUnsupportedModel  = errors.New("unsupported provider")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrDimensionMismatch = fmt.Errorf("embedding dimension mismatch: %w", types.ErrEmbeddingUnavailable)
)

// Embedder maps text to fixed-dimension vectors. EmbedBatch is semantically
// identical to calling Embed once per text.
type Embedder interface {
	// Embed generates a single embedding for the given text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// Cache provides in-memory LRU caching of vectors by content hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of a cached vector so callers cannot mutate the cache.
func (c *Cache) Get(hash string) ([]float32, bool) {
	v, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Set stores a vector in cache with automatic LRU eviction
func (c *Cache) Set(hash string, v []float32) {
	stored := make([]float32, len(v))
	copy(stored, v)
	c.cache.Add(hash, stored)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// ValidateBatch rejects empty batches and empty texts
func ValidateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", types.ErrMalformedInput)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w at index %d", ErrEmptyText, i)
		}
	}
	return nil
}

// cachedEmbedder serves repeated texts from a Cache and forwards only the
// misses to the wrapped provider.
type cachedEmbedder struct {
	Embedder
	cache *Cache
}

// WithCache wraps e so identical texts are embedded once.
func WithCache(e Embedder, cache *Cache) Embedder {
	if cache == nil {
		return e
	}
	return &cachedEmbedder{Embedder: e, cache: cache}
}

func (c *cachedEmbedder) key(text string) string {
	return ComputeHash(c.Provider() + "\x00" + c.Model() + "\x00" + text)
}

func (c *cachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (c *cachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if v, ok := c.cache.Get(c.key(text)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.Embedder.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrProviderFailed, len(vectors), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vectors[j]
		c.cache.Set(c.key(missTexts[j]), vectors[j])
	}
	return out, nil
}

// EmbedAll embeds texts in batches of at most batchSize and returns the
// vectors in input order.
func EmbedAll(ctx context.Context, e Embedder, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		vectors, err := e.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrProviderFailed, len(vectors), end-start)
		}
		for _, v := range vectors {
			if len(v) != e.Dimension() {
				return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), e.Dimension())
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}
