package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmmarcotte/marcotte-dev/internal/config"
	"github.com/xmmarcotte/marcotte-dev/internal/embedder"
	"github.com/xmmarcotte/marcotte-dev/internal/indexer"
	"github.com/xmmarcotte/marcotte-dev/internal/metrics"
	"github.com/xmmarcotte/marcotte-dev/internal/reranker"
	"github.com/xmmarcotte/marcotte-dev/internal/searcher"
	"github.com/xmmarcotte/marcotte-dev/internal/storage"
	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

type fixture struct {
	engine  *Engine
	store   *storage.SQLiteStorage
	metrics *metrics.Metrics
	cfg     *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	m := metrics.NewMetrics()

	e := New(cfg, Deps{
		Index:    store,
		State:    store,
		Embedder: embedder.NewLocalProvider(0),
		Reranker: reranker.NewTermReranker(),
		Metrics:  m,
	})
	return &fixture{engine: e, store: store, metrics: m, cfg: cfg}
}

var demoFiles = map[string]string{
	"a.py": "def alpha():\n    return 1\n",
	"b.py": "def beta():\n    return 2\n",
}

func TestNormalizeWorkspace(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"My Project!", "my-project"},
		{"  foo__bar ", "foo__bar"},
		{"a--b", "a-b"},
		{"--x--", "x"},
		{"Über Tool", "über-tool"},
		{"path/to/repo", "path-to-repo"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeWorkspace(tt.in))
		})
	}
}

func TestWorkspaceDefault(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "global", f.engine.Workspace(""))
	assert.Equal(t, "global", f.engine.Workspace("???"))
	assert.Equal(t, "proj", f.engine.Workspace("Proj"))
}

func TestStoreAndSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	dec, err := f.engine.Store(ctx, StoreRequest{
		Text:      "use sqlite for persistence",
		Category:  types.CategoryDecision,
		Workspace: "Proj A",
		Tags:      []string{"Storage", "storage"},
	})
	require.NoError(t, err)
	assert.Equal(t, "proj-a", dec.Workspace)
	assert.Equal(t, []string{"storage"}, dec.Tags)
	assert.NotEmpty(t, dec.ID)

	_, err = f.engine.Store(ctx, StoreRequest{Text: "met with the team about sqlite", Workspace: "proj a"})
	require.NoError(t, err)

	resp, err := f.engine.Search(ctx, searcher.SearchRequest{
		Query:   "sqlite persistence",
		Filters: types.Filters{Category: types.CategoryDecision, Workspace: "Proj A"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, dec.ID, resp.Results[0].Record.ID)
	assert.True(t, resp.Reranked)

	resp, err = f.engine.Search(ctx, searcher.SearchRequest{
		Query:   "sqlite",
		Filters: types.Filters{Workspace: "other"},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestStoreValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.Store(ctx, StoreRequest{Text: "   "})
	assert.ErrorIs(t, err, types.ErrMalformedInput)

	_, err = f.engine.Store(ctx, StoreRequest{Text: "func x() {}", Category: types.CategoryCodebase})
	assert.ErrorIs(t, err, ErrCodebaseStore)

	_, err = f.engine.Store(ctx, StoreRequest{Text: "note", Category: "bogus"})
	assert.ErrorIs(t, err, types.ErrInvalidCategory)
	assert.ErrorIs(t, err, types.ErrMalformedInput)
}

type failingEmbedder struct {
	*embedder.LocalProvider
}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("connection refused")
}

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("connection refused")
}

func TestStoreEmbedderFailure(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	e := New(nil, Deps{Index: store, State: store, Embedder: failingEmbedder{embedder.NewLocalProvider(0)}})

	_, err = e.Store(context.Background(), StoreRequest{Text: "remember this"})
	assert.ErrorIs(t, err, types.ErrEmbeddingUnavailable)

	n, err := store.Count(context.Background(), types.Filters{})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = e.Search(context.Background(), searcher.SearchRequest{Query: "remember"})
	assert.ErrorIs(t, err, types.ErrRetrievalUnavailable)
}

func TestStoreDefaultWorkspace(t *testing.T) {
	f := newFixture(t)
	rec, err := f.engine.Store(context.Background(), StoreRequest{Text: "a note"})
	require.NoError(t, err)
	assert.Equal(t, "global", rec.Workspace)
	assert.Equal(t, types.CategoryMemory, rec.Category)
}

func TestIndexUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stats, err := f.engine.Index(ctx, "Proj", demoFiles)
	require.NoError(t, err)
	assert.Equal(t, "proj", stats.Workspace)
	assert.Equal(t, 2, stats.FilesProcessed)

	st := f.engine.Status(ctx, "proj")
	assert.Equal(t, "proj", st.Workspace)
	assert.Equal(t, 2, st.TrackedFileCount)
	assert.Equal(t, stats.ChunksWritten, st.ChunkCount)
	assert.Equal(t, st.ChunkCount, st.RecordCount)
	assert.False(t, st.LastUpdate.IsZero())
	assert.False(t, st.Stale)
	assert.True(t, st.Healthy)

	stats, err = f.engine.Update(ctx, "proj", map[string]string{"a.py": demoFiles["a.py"]}, []string{"a.py"})
	require.NoError(t, err)
	assert.Equal(t, "manifest", stats.Mode)
	assert.Equal(t, 1, stats.FilesRemoved)
	assert.Equal(t, 1, stats.FilesChanged)

	st = f.engine.Status(ctx, "proj")
	assert.Equal(t, 1, st.TrackedFileCount)
}

func TestStatusUnknownWorkspace(t *testing.T) {
	f := newFixture(t)
	st := f.engine.Status(context.Background(), "nobody")
	assert.Equal(t, WorkspaceStatus{Workspace: "nobody", Healthy: true}, st)
}

type brokenState struct {
	storage.StateStore
}

func (brokenState) GetWorkspace(context.Context, string) (*storage.Workspace, error) {
	return nil, errors.New("disk I/O error")
}

func TestStatusStorageError(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	e := New(nil, Deps{Index: store, State: brokenState{store}, Embedder: embedder.NewLocalProvider(0)})
	st := e.Status(context.Background(), "proj")
	assert.False(t, st.Healthy)
	assert.True(t, st.Stale)
	assert.Contains(t, st.LastError, "disk I/O error")
}

func TestWritesInvalidateCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.Store(ctx, StoreRequest{Text: "retry with exponential backoff", Category: types.CategoryPattern})
	require.NoError(t, err)

	req := searcher.SearchRequest{Query: "backoff", UseCache: true}
	resp, err := f.engine.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)

	resp, err = f.engine.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.CacheHit)

	_, err = f.engine.Store(ctx, StoreRequest{Text: "backoff caps at thirty seconds"})
	require.NoError(t, err)

	resp, err = f.engine.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Len(t, resp.Results, 2)

	_, err = f.engine.Index(ctx, "proj", demoFiles)
	require.NoError(t, err)
	resp, err = f.engine.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

// gatedReranker holds its first call until released
type gatedReranker struct {
	reranker.Reranker
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedReranker) Rerank(ctx context.Context, query string, candidates []reranker.Candidate) ([]float64, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Reranker.Rerank(ctx, query, candidates)
}

func TestUpdateDuringSearchIsNotCached(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	gate := &gatedReranker{
		Reranker: reranker.NewTermReranker(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	e := New(nil, Deps{Index: store, State: store, Embedder: embedder.NewLocalProvider(0), Reranker: gate})

	_, err = e.Index(ctx, "demo", demoFiles)
	require.NoError(t, err)

	req := searcher.SearchRequest{Query: "alpha", Filters: types.Filters{Workspace: "demo"}, UseCache: true}
	done := make(chan error, 1)
	go func() {
		_, err := e.Search(ctx, req)
		done <- err
	}()

	<-gate.entered
	_, err = e.Update(ctx, "demo", map[string]string{"a.py": "def gamma():\n    return 3\n"}, nil)
	require.NoError(t, err)
	close(gate.release)
	require.NoError(t, <-done)

	resp, err := e.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	for _, r := range resp.Results {
		assert.NotContains(t, r.Record.Text, "def alpha", "replaced chunk served after update")
	}
}

// untrackableState fails every TrackFile after records were written
type untrackableState struct {
	storage.StateStore
}

func (untrackableState) TrackFile(context.Context, *storage.TrackedFile) error {
	return errors.New("database is locked")
}

func TestFailedTrackingInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	e := New(nil, Deps{
		Index:    store,
		State:    untrackableState{store},
		Embedder: embedder.NewLocalProvider(0),
		Reranker: reranker.NewTermReranker(),
	})

	_, err = e.Store(ctx, StoreRequest{Text: "alpha release checklist", Workspace: "proj"})
	require.NoError(t, err)
	req := searcher.SearchRequest{Query: "alpha", Filters: types.Filters{Workspace: "proj"}, UseCache: true}
	_, err = e.Search(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, e.searcher.CacheLen())

	stats, err := e.Index(ctx, "proj", demoFiles)
	require.Error(t, err)
	require.NotNil(t, stats)
	assert.Zero(t, stats.FilesChanged)
	assert.Equal(t, 2, stats.FilesFailed)
	assert.Zero(t, e.searcher.CacheLen())

	resp, err := e.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	var sawCode bool
	for _, r := range resp.Results {
		sawCode = sawCode || r.Record.Category == types.CategoryCodebase
	}
	assert.True(t, sawCode, "records written before the tracking failure are searchable")
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.engine.Store(ctx, StoreRequest{Text: "first note", Workspace: "w"})
	require.NoError(t, err)
	_, err = f.engine.Store(ctx, StoreRequest{Text: "second note", Workspace: "w"})
	require.NoError(t, err)

	n, err := f.engine.Forget(ctx, []string{a.ID, " ", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.engine.Forget(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, 1, f.engine.Status(ctx, "w").RecordCount)
}

func TestListWorkspaces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.Store(ctx, StoreRequest{Text: "notes only", Workspace: "Zeta"})
	require.NoError(t, err)
	_, err = f.engine.Index(ctx, "alpha", demoFiles)
	require.NoError(t, err)

	list, err := f.engine.ListWorkspaces(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Workspace)
	assert.Equal(t, 2, list[0].TrackedFileCount)
	assert.Equal(t, "zeta", list[1].Workspace)
	assert.Equal(t, 0, list[1].TrackedFileCount)
	assert.Equal(t, 1, list[1].RecordCount)
}

func TestLockContentionCounted(t *testing.T) {
	f := newFixture(t)

	other := indexer.NewLockSet(f.cfg.LockDir())
	release, err := other.TryLock("proj")
	require.NoError(t, err)
	defer release()

	stats, err := f.engine.Index(context.Background(), "proj", demoFiles)
	assert.Nil(t, stats)
	assert.ErrorIs(t, err, types.ErrWorkspaceLocked)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LockContention))
}

func TestMetricsObserved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.Index(ctx, "proj", demoFiles)
	require.NoError(t, err)
	_, err = f.engine.Search(ctx, searcher.SearchRequest{Query: "alpha"})
	require.NoError(t, err)
	_, err = f.engine.Search(ctx, searcher.SearchRequest{Query: ""})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SearchesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SearchesTotal.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.FilesIndexedTotal.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EmbeddingRequests.WithLabelValues("query", "ok")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(f.metrics.EmbeddingRequests.WithLabelValues("index", "ok")), 2.0)
}

func TestOpenBackends(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendChromem} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			cfg := config.DefaultConfig()
			cfg.DataDir = t.TempDir()
			cfg.Embedding.Provider = "local"
			cfg.Index.Backend = backend

			e, err := Open(cfg, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, "term", e.RerankerName())

			_, err = e.Store(ctx, StoreRequest{Text: "chromem and sqlite share one interface", Workspace: "w"})
			require.NoError(t, err)
			_, err = e.Index(ctx, "w", demoFiles)
			require.NoError(t, err)

			resp, err := e.Search(ctx, searcher.SearchRequest{Query: "shared interface", Filters: types.Filters{Workspace: "w"}})
			require.NoError(t, err)
			assert.NotEmpty(t, resp.Results)

			st := e.Status(ctx, "w")
			assert.Equal(t, 2, st.TrackedFileCount)
			assert.True(t, st.Healthy)

			require.NoError(t, e.Close())
		})
	}
}
