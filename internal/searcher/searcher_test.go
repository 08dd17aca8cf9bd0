package searcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmmarcotte/marcotte-dev/internal/embedder"
	"github.com/xmmarcotte/marcotte-dev/internal/reranker"
	"github.com/xmmarcotte/marcotte-dev/internal/storage"
	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fixedEmbedder returns the same query vector for every text
type fixedEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fixedEmbedder) Dimension() int   { return len(f.vec) }
func (f *fixedEmbedder) Provider() string { return "fixed" }
func (f *fixedEmbedder) Model() string    { return "fixed" }
func (f *fixedEmbedder) Close() error     { return nil }

// stubReranker returns canned scores or an error
type stubReranker struct {
	scores func(candidates []reranker.Candidate) []float64
	err    error
}

func (s *stubReranker) Name() string { return "stub" }

func (s *stubReranker) Rerank(ctx context.Context, query string, candidates []reranker.Candidate) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.scores(candidates), nil
}

// recordingIndex remembers the topN it was asked for
type recordingIndex struct {
	storage.VectorIndex
	topN    int
	filters types.Filters
}

func (r *recordingIndex) Query(ctx context.Context, vector []float32, filters types.Filters, topN int) ([]types.Candidate, error) {
	r.topN = topN
	r.filters = filters
	return r.VectorIndex.Query(ctx, vector, filters, topN)
}

func setupStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func rec(id string, vec []float32, cat types.Category, ws string) types.Record {
	return types.Record{
		ID:        id,
		Vector:    vec,
		Text:      "text of " + id,
		Category:  cat,
		Workspace: ws,
		Timestamp: baseTime,
	}
}

// seedRanked inserts n memories whose similarity to (1,0,0) decreases with i.
func seedRanked(t *testing.T, store storage.VectorIndex, n int) {
	t.Helper()
	records := make([]types.Record, n)
	for i := range records {
		records[i] = rec(fmt.Sprintf("m%02d", i), []float32{1, float32(i) * 0.05, 0}, types.CategoryMemory, "ws")
	}
	require.NoError(t, store.Upsert(context.Background(), records))
}

func noRerank() *bool {
	f := false
	return &f
}

func TestSearch_VectorOrder(t *testing.T) {
	store := setupStore(t)
	seedRanked(t, store, 20)
	s := NewSearcher(store, &fixedEmbedder{vec: []float32{1, 0, 0}}, nil, nil, DefaultOptions())

	resp, err := s.Search(context.Background(), SearchRequest{Query: "anything", Limit: 5})
	require.NoError(t, err)
	require.Len(t, resp.Results, 5)
	assert.Equal(t, 20, resp.Candidates)
	assert.False(t, resp.Reranked)
	for i, r := range resp.Results {
		assert.Equal(t, fmt.Sprintf("m%02d", i), r.Record.ID)
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, r.VectorScore, r.Score)
	}
}

func TestSearch_FilterBeforeTruncate(t *testing.T) {
	store := setupStore(t)
	seedRanked(t, store, 60)
	decisions := []types.Record{
		rec("d1", []float32{0, 1, 0}, types.CategoryDecision, "ws"),
		rec("d2", []float32{0.1, 1, 0}, types.CategoryDecision, "ws"),
		rec("d3", []float32{0, 0, 1}, types.CategoryDecision, "ws"),
	}
	require.NoError(t, store.Upsert(context.Background(), decisions))

	s := NewSearcher(store, &fixedEmbedder{vec: []float32{1, 0, 0}}, reranker.NewTermReranker(), nil, DefaultOptions())
	resp, err := s.Search(context.Background(), SearchRequest{
		Query:   "which decisions",
		Filters: types.Filters{Category: types.CategoryDecision},
		Limit:   5,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3, "decisions ranked below 60 memories are still found")
	for _, r := range resp.Results {
		assert.Equal(t, types.CategoryDecision, r.Record.Category)
	}
	assert.Equal(t, "d2", resp.Results[0].Record.ID)
}

func TestSearch_RerankReorders(t *testing.T) {
	store := setupStore(t)
	seedRanked(t, store, 6)

	// Reverse the vector order, with m00 and m01 tied.
	rr := &stubReranker{scores: func(c []reranker.Candidate) []float64 {
		out := make([]float64, len(c))
		for i := range c {
			out[i] = float64(i)
		}
		out[0], out[1] = 10, 10
		return out
	}}
	s := NewSearcher(store, &fixedEmbedder{vec: []float32{1, 0, 0}}, rr, nil, DefaultOptions())

	resp, err := s.Search(context.Background(), SearchRequest{Query: "q", Limit: 3})
	require.NoError(t, err)
	require.True(t, resp.Reranked)
	assert.Equal(t, "stub", resp.Reranker)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "m00", resp.Results[0].Record.ID, "ties keep candidate order")
	assert.Equal(t, "m01", resp.Results[1].Record.ID)
	assert.Equal(t, "m05", resp.Results[2].Record.ID)
	assert.Equal(t, 10.0, resp.Results[0].Score)
	assert.NotEqual(t, resp.Results[0].Score, resp.Results[0].VectorScore)
}

func TestSearch_RerankerFailureDegrades(t *testing.T) {
	store := setupStore(t)
	seedRanked(t, store, 20)
	rr := &stubReranker{err: reranker.ErrUnavailable}
	s := NewSearcher(store, &fixedEmbedder{vec: []float32{1, 0, 0}}, rr, nil, DefaultOptions())

	resp, err := s.Search(context.Background(), SearchRequest{Query: "q", Limit: 10, UseCache: true})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.NotEmpty(t, resp.DegradedReason)
	assert.False(t, resp.Reranked)
	require.Len(t, resp.Results, 10)
	for i, r := range resp.Results {
		assert.Equal(t, fmt.Sprintf("m%02d", i), r.Record.ID)
	}
	assert.Zero(t, s.CacheLen(), "degraded responses are not cached")
}

func TestSearch_RerankDisabledPerRequest(t *testing.T) {
	store := setupStore(t)
	seedRanked(t, store, 3)
	rr := &stubReranker{err: errors.New("must not be called")}
	s := NewSearcher(store, &fixedEmbedder{vec: []float32{1, 0, 0}}, rr, nil, DefaultOptions())

	resp, err := s.Search(context.Background(), SearchRequest{Query: "q", Rerank: noRerank()})
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	assert.Len(t, resp.Results, 3)
}

func TestSearch_EmbedderFailure(t *testing.T) {
	store := setupStore(t)
	s := NewSearcher(store, &fixedEmbedder{err: embedder.ErrProviderFailed}, nil, nil, DefaultOptions())

	_, err := s.Search(context.Background(), SearchRequest{Query: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRetrievalUnavailable)
	assert.ErrorIs(t, err, types.ErrEmbeddingUnavailable)

	s = NewSearcher(store, &fixedEmbedder{err: errors.New("boom")}, nil, nil, DefaultOptions())
	_, err = s.Search(context.Background(), SearchRequest{Query: "q"})
	assert.ErrorIs(t, err, types.ErrEmbeddingUnavailable)
}

func TestSearch_Validation(t *testing.T) {
	store := setupStore(t)
	s := NewSearcher(store, &fixedEmbedder{vec: []float32{1, 0, 0}}, nil, nil, DefaultOptions())

	_, err := s.Search(context.Background(), SearchRequest{Query: "   "})
	assert.ErrorIs(t, err, types.ErrMalformedInput)

	_, err = s.Search(context.Background(), SearchRequest{Query: "q", Filters: types.Filters{Category: "bogus"}})
	assert.ErrorIs(t, err, types.ErrInvalidCategory)

	_, err = s.Search(context.Background(), SearchRequest{Query: "q", Filters: types.Filters{
		Since: baseTime.Add(time.Hour),
		Until: baseTime,
	}})
	assert.ErrorIs(t, err, types.ErrInvalidTimeRange)
}

func TestSearch_Limits(t *testing.T) {
	store := setupStore(t)
	idx := &recordingIndex{VectorIndex: store}
	s := NewSearcher(idx, &fixedEmbedder{vec: []float32{1, 0, 0}}, nil, nil, DefaultOptions())
	ctx := context.Background()

	tests := []struct {
		limit, candidates, wantN int
	}{
		{0, 0, DefaultCandidates},
		{20, 5, 20},
		{1000, 0, DefaultCandidates + 50},
		{10, 10000, MaxCandidates},
	}
	for _, tt := range tests {
		_, err := s.Search(ctx, SearchRequest{Query: "q", Limit: tt.limit, Candidates: tt.candidates})
		require.NoError(t, err)
		assert.Equal(t, tt.wantN, idx.topN, "limit=%d candidates=%d", tt.limit, tt.candidates)
	}
}

func TestSearch_WorkspaceIsolation(t *testing.T) {
	store := setupStore(t)
	a := rec("a", []float32{1, 0, 0}, types.CategoryMemory, "alpha")
	b := rec("b", []float32{1, 0, 0}, types.CategoryMemory, "beta")
	a.Text, b.Text = "same text", "same text"
	require.NoError(t, store.Upsert(context.Background(), []types.Record{a, b}))

	s := NewSearcher(store, &fixedEmbedder{vec: []float32{1, 0, 0}}, nil, nil, DefaultOptions())
	resp, err := s.Search(context.Background(), SearchRequest{Query: "same text", Filters: types.Filters{Workspace: "alpha"}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "alpha", resp.Results[0].Record.Workspace)
}

func TestSearch_EnhancementFindsAbbreviations(t *testing.T) {
	store := setupStore(t)
	local := embedder.NewLocalProvider(0)
	ctx := context.Background()

	texts := map[string]string{
		"target": "db conn retry logic",
		"other1": "render the settings page with a dark theme",
		"other2": "parse markdown headings into a table of contents",
	}
	for id, text := range texts {
		v, err := local.Embed(ctx, text)
		require.NoError(t, err)
		r := rec(id, v, types.CategoryMemory, "ws")
		r.Text = text
		require.NoError(t, store.Upsert(ctx, []types.Record{r}))
	}

	s := NewSearcher(store, local, reranker.NewTermReranker(), nil, DefaultOptions())
	resp, err := s.Search(ctx, SearchRequest{Query: "database connection", Limit: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "target", resp.Results[0].Record.ID)
	assert.Contains(t, resp.Expansions, "db")
	assert.Contains(t, resp.Expansions, "conn")
}

func TestSearch_ApplyHints(t *testing.T) {
	store := setupStore(t)
	idx := &recordingIndex{VectorIndex: store}
	opts := DefaultOptions()
	opts.ApplyHints = true
	s := NewSearcher(idx, &fixedEmbedder{vec: []float32{1, 0, 0}}, nil, nil, opts)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "retry decisions in python"})
	require.NoError(t, err)
	assert.Equal(t, types.CategoryDecision, resp.Hints.Category)
	assert.Equal(t, types.CategoryDecision, idx.filters.Category)
	assert.Equal(t, "python", idx.filters.Language)

	// Hints are reported but not applied by default.
	s = NewSearcher(idx, &fixedEmbedder{vec: []float32{1, 0, 0}}, nil, nil, DefaultOptions())
	_, err = s.Search(context.Background(), SearchRequest{Query: "retry decisions in python"})
	require.NoError(t, err)
	assert.True(t, idx.filters.IsZero())
}

func TestSearch_Cache(t *testing.T) {
	store := setupStore(t)
	seedRanked(t, store, 5)
	emb := &fixedEmbedder{vec: []float32{1, 0, 0}}
	s := NewSearcher(store, emb, nil, nil, DefaultOptions())
	ctx := context.Background()

	first, err := s.Search(ctx, SearchRequest{Query: "Cached Query", UseCache: true})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := s.Search(ctx, SearchRequest{Query: "  cached query ", UseCache: true})
	require.NoError(t, err)
	assert.True(t, second.CacheHit, "normalized queries share a cache entry")
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, first.Results, second.Results)

	// Mutating a returned response must not leak into the cache.
	second.Results[0].Record.Text = "changed"
	third, err := s.Search(ctx, SearchRequest{Query: "cached query", UseCache: true})
	require.NoError(t, err)
	assert.NotEqual(t, "changed", third.Results[0].Record.Text)

	s.InvalidateCache()
	assert.Zero(t, s.CacheLen())
	_, err = s.Search(ctx, SearchRequest{Query: "cached query", UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, 2, emb.calls)
}

// gatedReranker blocks its first call until released
type gatedReranker struct {
	reranker.Reranker
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedReranker() *gatedReranker {
	return &gatedReranker{
		Reranker: reranker.NewTermReranker(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (g *gatedReranker) Rerank(ctx context.Context, query string, candidates []reranker.Candidate) ([]float64, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Reranker.Rerank(ctx, query, candidates)
}

func TestSearch_InvalidationDuringSearchSkipsCache(t *testing.T) {
	store := setupStore(t)
	seedRanked(t, store, 5)
	gate := newGatedReranker()
	s := NewSearcher(store, &fixedEmbedder{vec: []float32{1, 0, 0}}, gate, nil, DefaultOptions())
	ctx := context.Background()
	req := SearchRequest{Query: "cached query", UseCache: true}

	done := make(chan error, 1)
	go func() {
		_, err := s.Search(ctx, req)
		done <- err
	}()

	<-gate.entered
	s.InvalidateCache()
	close(gate.release)
	require.NoError(t, <-done)
	assert.Zero(t, s.CacheLen(), "a response computed before a write is not cached")

	resp, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)

	resp, err = s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.CacheHit, "searches after the write are cached again")
}

func TestSearch_CacheExpires(t *testing.T) {
	store := setupStore(t)
	seedRanked(t, store, 2)
	emb := &fixedEmbedder{vec: []float32{1, 0, 0}}
	s := NewSearcher(store, emb, nil, nil, DefaultOptions())
	ctx := context.Background()

	_, err := s.Search(ctx, SearchRequest{Query: "q", UseCache: true, CacheTTL: time.Nanosecond})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	resp, err := s.Search(ctx, SearchRequest{Query: "q", UseCache: true, CacheTTL: time.Nanosecond})
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Equal(t, 2, emb.calls)
}

func TestSearchResponse_Grouped(t *testing.T) {
	resp := &SearchResponse{Results: []types.SearchResult{
		{Record: types.Record{ID: "1", Category: types.CategoryMemory}, Rank: 1},
		{Record: types.Record{ID: "2", Category: types.CategoryDecision}, Rank: 2},
		{Record: types.Record{ID: "3", Category: types.CategoryMemory}, Rank: 3},
	}}

	groups := resp.Grouped()
	require.Len(t, groups, 2)
	assert.Equal(t, types.CategoryDecision, groups[0].Category)
	assert.Equal(t, types.CategoryMemory, groups[1].Category)
	require.Len(t, groups[1].Results, 2)
	assert.Equal(t, "1", groups[1].Results[0].Record.ID)
	assert.Equal(t, "3", groups[1].Results[1].Record.ID)
}
