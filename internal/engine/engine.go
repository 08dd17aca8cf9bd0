package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xmmarcotte/marcotte-dev/internal/chunker"
	"github.com/xmmarcotte/marcotte-dev/internal/config"
	"github.com/xmmarcotte/marcotte-dev/internal/embedder"
	"github.com/xmmarcotte/marcotte-dev/internal/enhancer"
	"github.com/xmmarcotte/marcotte-dev/internal/indexer"
	"github.com/xmmarcotte/marcotte-dev/internal/metrics"
	"github.com/xmmarcotte/marcotte-dev/internal/reranker"
	"github.com/xmmarcotte/marcotte-dev/internal/searcher"
	"github.com/xmmarcotte/marcotte-dev/internal/storage"
	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// DefaultWorkspace receives notes stored without a workspace
const DefaultWorkspace = "global"

// ErrCodebaseStore is returned when Store is asked to write code records
var ErrCodebaseStore = fmt.Errorf("%w: codebase records are written by index and update", types.ErrMalformedInput)

// Deps are the components an Engine is assembled from
type Deps struct {
	Index    storage.VectorIndex
	State    storage.StateStore
	Embedder embedder.Embedder
	Reranker reranker.Reranker // nil disables reranking
	Metrics  *metrics.Metrics  // nil disables metrics
	Logger   *zerolog.Logger
}

// Engine is the retrieval orchestrator. It owns the index, the workspace
// state and the pipelines that read and write them.
type Engine struct {
	cfg      *config.Config
	index    storage.VectorIndex
	state    storage.StateStore
	embedder embedder.Embedder
	reranker reranker.Reranker
	searcher *searcher.Searcher
	indexer  *indexer.Indexer
	store    embedder.Embedder
	metrics  *metrics.Metrics
	log      zerolog.Logger

	closers []io.Closer
	now     func() time.Time
}

// StoreRequest describes a single note, decision or pattern
type StoreRequest struct {
	Text       string
	Category   types.Category
	Workspace  string
	Language   string
	Tags       []string
	SourcePath string
}

// WorkspaceStatus reports the index state of one workspace
type WorkspaceStatus struct {
	Workspace        string    `json:"workspace" yaml:"workspace"`
	TrackedFileCount int       `json:"tracked_file_count" yaml:"tracked_file_count"`
	ChunkCount       int       `json:"chunk_count" yaml:"chunk_count"`
	RecordCount      int       `json:"record_count" yaml:"record_count"`
	LastUpdate       time.Time `json:"last_update_timestamp" yaml:"last_update_timestamp"`
	Stale            bool      `json:"staleness_flag" yaml:"staleness_flag"`
	LastErrorCount   int       `json:"last_error_count,omitempty" yaml:"last_error_count,omitempty"`
	LastError        string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Healthy          bool      `json:"healthy" yaml:"healthy"`
}

// Open builds an Engine from configuration, creating the data directory
// and opening the configured storage backend.
func Open(cfg *config.Config, m *metrics.Metrics, log *zerolog.Logger) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		Dimension: cfg.Embedding.Dimension,
		CacheSize: cfg.Embedding.CacheSize,
		Timeout:   cfg.Embedding.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	closers := []io.Closer{emb}
	fail := func(err error) (*Engine, error) {
		closeAll(closers)
		return nil, err
	}

	deps := Deps{Embedder: emb, Metrics: m, Logger: log}

	switch cfg.Index.Backend {
	case config.BackendChromem:
		idx, err := storage.NewChromemIndex(cfg.IndexPath(), emb.Dimension())
		if err != nil {
			return fail(fmt.Errorf("failed to open chromem index: %w", err))
		}
		closers = append(closers, idx)
		st, err := storage.NewSQLiteStorage(filepath.Join(cfg.DataDir, "state.db"))
		if err != nil {
			return fail(fmt.Errorf("failed to open state store: %w", err))
		}
		closers = append(closers, st)
		deps.Index, deps.State = idx, st
	default:
		st, err := storage.NewSQLiteStorage(cfg.IndexPath())
		if err != nil {
			return fail(fmt.Errorf("failed to open storage: %w", err))
		}
		closers = append(closers, st)
		deps.Index, deps.State = st, st
	}

	if cfg.Reranker.Enabled {
		rr, err := reranker.New(reranker.Config{
			Provider: cfg.Reranker.Provider,
			Model:    cfg.Reranker.Model,
			APIKey:   cfg.Reranker.APIKey,
			BaseURL:  cfg.Reranker.BaseURL,
			Timeout:  cfg.Reranker.Timeout,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to create reranker: %w", err))
		}
		if c, ok := rr.(io.Closer); ok {
			closers = append(closers, c)
		}
		deps.Reranker = rr
	}

	e := New(cfg, deps)
	e.closers = closers
	return e, nil
}

// New assembles an Engine from existing components. The caller keeps
// ownership of deps; Close on such an engine closes nothing.
func New(cfg *config.Config, deps Deps) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := zerolog.Nop()
	if deps.Logger != nil {
		log = *deps.Logger
	}

	ch := chunker.New(chunker.Config{
		Strategy:      chunker.Strategy(cfg.Index.Strategy),
		MaxChunkChars: cfg.Index.MaxChunkChars,
		WindowLines:   cfg.Index.WindowLines,
		OverlapRatio:  cfg.Index.OverlapRatio,
	})

	s := searcher.NewSearcher(
		deps.Index,
		instrument(deps.Embedder, deps.Metrics, purposeQuery),
		deps.Reranker,
		enhancer.New(cfg.Search.MaxExpansions),
		searcher.Options{
			Rerank:     deps.Reranker != nil,
			Enhance:    cfg.Search.Enhance,
			ApplyHints: cfg.Search.ApplyHints,
			CacheSize:  cfg.Search.CacheSize,
			CacheTTL:   cfg.Search.CacheTTL,
			Logger:     &log,
		},
	)

	ix := indexer.New(
		deps.Index,
		deps.State,
		instrument(deps.Embedder, deps.Metrics, purposeIndex),
		ch,
		indexer.Config{
			Workers:   cfg.Index.Workers,
			BatchSize: cfg.Embedding.BatchSize,
			LockDir:   cfg.LockDir(),
			Logger:    &log,
		},
	)

	return &Engine{
		cfg:      cfg,
		index:    deps.Index,
		state:    deps.State,
		embedder: deps.Embedder,
		reranker: deps.Reranker,
		searcher: s,
		indexer:  ix,
		store:    instrument(deps.Embedder, deps.Metrics, purposeStore),
		metrics:  deps.Metrics,
		log:      log.With().Str("component", "engine").Logger(),
		now:      time.Now,
	}
}

// Workspace returns the normalized workspace name, falling back to the
// configured default workspace for empty names.
func (e *Engine) Workspace(name string) string {
	if ws := NormalizeWorkspace(name); ws != "" {
		return ws
	}
	if ws := NormalizeWorkspace(e.cfg.DefaultWorkspace); ws != "" {
		return ws
	}
	return DefaultWorkspace
}

// Search runs a retrieval request. Limits left at zero take the configured
// defaults and the workspace filter is normalized.
func (e *Engine) Search(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error) {
	if req.Limit == 0 {
		req.Limit = e.cfg.Search.TopK
	}
	if req.Candidates == 0 {
		req.Candidates = e.cfg.Search.Candidates
	}
	if req.Filters.Workspace != "" {
		req.Filters.Workspace = NormalizeWorkspace(req.Filters.Workspace)
	}
	if req.Filters.Language != "" {
		req.Filters.Language = strings.ToLower(strings.TrimSpace(req.Filters.Language))
	}
	req.Filters.Tags = types.NormalizeTags(req.Filters.Tags)

	start := e.now()
	resp, err := e.searcher.Search(ctx, req)
	var degraded, cacheHit bool
	if resp != nil {
		degraded, cacheHit = resp.Degraded, resp.CacheHit
	}
	e.metrics.ObserveSearch(e.now().Sub(start), err, degraded, cacheHit)
	return resp, err
}

// Index makes the workspace's code records match files exactly.
func (e *Engine) Index(ctx context.Context, workspace string, files map[string]string) (*indexer.Statistics, error) {
	return e.run(ctx, indexer.Request{
		Workspace: e.Workspace(workspace),
		Files:     files,
		Mode:      indexer.ModeFull,
	})
}

// Update re-indexes the changed files among files. With a manifest, tracked
// files missing from both manifest and files are removed.
func (e *Engine) Update(ctx context.Context, workspace string, files map[string]string, manifest []string) (*indexer.Statistics, error) {
	mode := indexer.ModeAdditive
	if len(manifest) > 0 {
		mode = indexer.ModeManifest
	}
	return e.run(ctx, indexer.Request{
		Workspace: e.Workspace(workspace),
		Files:     files,
		Manifest:  manifest,
		Mode:      mode,
	})
}

func (e *Engine) run(ctx context.Context, req indexer.Request) (*indexer.Statistics, error) {
	stats, err := e.indexer.Run(ctx, req)
	if errors.Is(err, types.ErrWorkspaceLocked) {
		e.metrics.ObserveLockContention()
		return nil, err
	}
	if stats != nil {
		e.metrics.ObserveIndex(stats.Mode, stats.Duration, stats.FilesProcessed,
			stats.FilesUnchanged, stats.FilesRemoved, stats.FilesFailed, stats.ChunksWritten)
		// A failed file may still have replaced its records before failing.
		if stats.FilesChanged+stats.FilesFailed > 0 {
			e.searcher.InvalidateCache()
		}
	}
	return stats, err
}

// Status reports the state of a workspace. It never fails: an unknown
// workspace has a zero status and a storage failure marks it unhealthy
// and stale.
func (e *Engine) Status(ctx context.Context, workspace string) WorkspaceStatus {
	name := e.Workspace(workspace)
	st := WorkspaceStatus{Workspace: name, Healthy: true}

	ws, err := e.state.GetWorkspace(ctx, name)
	switch {
	case errors.Is(err, types.ErrNotFound):
	case err != nil:
		e.log.Warn().Err(err).Str("workspace", name).Msg("failed to read workspace state")
		st.Healthy = false
		st.Stale = true
		st.LastError = err.Error()
		return st
	default:
		st = statusOf(ws)
	}

	n, err := e.index.Count(ctx, types.Filters{Workspace: name})
	if err != nil {
		e.log.Warn().Err(err).Str("workspace", name).Msg("failed to count records")
		st.Healthy = false
		st.Stale = true
		if st.LastError == "" {
			st.LastError = err.Error()
		}
		return st
	}
	st.RecordCount = n
	return st
}

func statusOf(ws *storage.Workspace) WorkspaceStatus {
	return WorkspaceStatus{
		Workspace:        ws.Name,
		TrackedFileCount: ws.TrackedFileCount,
		ChunkCount:       ws.ChunkCount,
		LastUpdate:       ws.LastUpdateAt,
		Stale:            ws.Stale(),
		LastErrorCount:   ws.LastErrorCount,
		LastError:        ws.LastError,
		Healthy:          true,
	}
}

// ListWorkspaces returns the status of every known workspace sorted by name
func (e *Engine) ListWorkspaces(ctx context.Context) ([]WorkspaceStatus, error) {
	wss, err := e.state.ListWorkspaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	out := make([]WorkspaceStatus, 0, len(wss))
	for _, ws := range wss {
		st := statusOf(ws)
		n, err := e.index.Count(ctx, types.Filters{Workspace: ws.Name})
		if err != nil {
			return nil, fmt.Errorf("failed to count records of %s: %w", ws.Name, err)
		}
		st.RecordCount = n
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b WorkspaceStatus) int {
		return cmp.Compare(a.Workspace, b.Workspace)
	})
	return out, nil
}

// Store embeds and writes a single note, decision or pattern.
func (e *Engine) Store(ctx context.Context, req StoreRequest) (*types.Record, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, types.ErrEmptyText
	}
	category := req.Category
	if category == "" {
		category = types.CategoryMemory
	}
	if category == types.CategoryCodebase {
		return nil, ErrCodebaseStore
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidCategory, category)
	}

	vec, err := e.store.Embed(ctx, text)
	if err != nil {
		if !errors.Is(err, types.ErrEmbeddingUnavailable) {
			err = fmt.Errorf("%w: %w", types.ErrEmbeddingUnavailable, err)
		}
		return nil, err
	}

	rec := types.Record{
		ID:         uuid.NewString(),
		Vector:     vec,
		Text:       text,
		Category:   category,
		Workspace:  e.Workspace(req.Workspace),
		Language:   strings.ToLower(strings.TrimSpace(req.Language)),
		Tags:       types.NormalizeTags(req.Tags),
		Timestamp:  e.now().UTC(),
		SourcePath: req.SourcePath,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := e.index.Upsert(ctx, []types.Record{rec}); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrIndexWriteFailed, err)
	}
	if err := e.ensureWorkspace(ctx, rec.Workspace); err != nil {
		e.log.Warn().Err(err).Str("workspace", rec.Workspace).Msg("failed to register workspace")
	}
	e.searcher.InvalidateCache()

	e.log.Debug().
		Str("id", rec.ID).
		Str("workspace", rec.Workspace).
		Str("category", string(rec.Category)).
		Msg("record stored")
	return &rec, nil
}

// ensureWorkspace creates the workspace row so notes-only workspaces are
// listed.
func (e *Engine) ensureWorkspace(ctx context.Context, name string) error {
	_, err := e.state.GetWorkspace(ctx, name)
	if errors.Is(err, types.ErrNotFound) {
		return e.state.UpsertWorkspace(ctx, &storage.Workspace{Name: name})
	}
	return err
}

// Forget deletes records by id and returns how many existed.
func (e *Engine) Forget(ctx context.Context, ids []string) (int, error) {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return 0, nil
	}
	n, err := e.index.Delete(ctx, clean...)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", types.ErrIndexWriteFailed, err)
	}
	if n > 0 {
		e.searcher.InvalidateCache()
	}
	return n, nil
}

// Config returns the engine configuration
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Embedder returns the embedder behind the engine
func (e *Engine) Embedder() embedder.Embedder {
	return e.embedder
}

// RerankerName returns the active reranker name or the empty string
func (e *Engine) RerankerName() string {
	if e.reranker == nil {
		return ""
	}
	return e.reranker.Name()
}

// Close releases the components opened by Open
func (e *Engine) Close() error {
	err := closeAll(e.closers)
	e.closers = nil
	return err
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
