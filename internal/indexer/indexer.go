package indexer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/xmmarcotte/marcotte-dev/internal/chunker"
	"github.com/xmmarcotte/marcotte-dev/internal/embedder"
	"github.com/xmmarcotte/marcotte-dev/internal/storage"
	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// recordNamespace seeds the name-based UUIDs of code chunk records
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/xmmarcotte/marcotte-dev/records"))

// Indexer coordinates the indexing pipeline: detect -> chunk -> embed -> store
type Indexer struct {
	index    storage.VectorIndex
	state    storage.StateStore
	embedder embedder.Embedder
	chunker  *chunker.Chunker
	locks    *LockSet
	log      zerolog.Logger

	// Worker pool configuration
	workers   int
	batchSize int

	now func() time.Time
}

// Config contains configuration for the indexer
type Config struct {
	Workers   int    // Number of concurrent files (default: runtime.NumCPU())
	BatchSize int    // Texts per embedding call (default: embedder.DefaultBatchSize)
	LockDir   string // Directory for cross-process lock files; empty disables them
	Logger    *zerolog.Logger
}

// Statistics contains statistics about an index or update call
type Statistics struct {
	Workspace      string        `json:"workspace" yaml:"workspace"`
	Mode           string        `json:"mode" yaml:"mode"`
	FilesProcessed int           `json:"files_processed" yaml:"files_processed"`
	FilesChanged   int           `json:"files_changed" yaml:"files_changed"`
	FilesUnchanged int           `json:"files_unchanged" yaml:"files_unchanged"`
	FilesRemoved   int           `json:"files_removed" yaml:"files_removed"`
	FilesFailed    int           `json:"files_failed" yaml:"files_failed"`
	ChunksWritten  int           `json:"chunks_written" yaml:"chunks_written"`
	LanguagesSeen  []string      `json:"languages_seen" yaml:"languages_seen"`
	ErrorMessages  []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
	Duration       time.Duration `json:"duration_ns" yaml:"duration"`

	// Errors holds the per-file failures behind ErrorMessages
	Errors []*types.FileError `json:"-" yaml:"-"`
}

// Request describes one index or update call. Files maps workspace
// relative paths to their content.
type Request struct {
	Workspace string
	Files     map[string]string
	Manifest  []string
	Mode      Mode
}

// New creates a new Indexer instance
func New(index storage.VectorIndex, state storage.StateStore, emb embedder.Embedder, ch *chunker.Chunker, cfg Config) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embedder.DefaultBatchSize
	}
	if ch == nil {
		ch = chunker.New(chunker.DefaultConfig())
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "indexer").Logger()
	}
	return &Indexer{
		index:     index,
		state:     state,
		embedder:  emb,
		chunker:   ch,
		locks:     NewLockSet(cfg.LockDir),
		log:       log,
		workers:   cfg.Workers,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

// Index treats files as the complete current file set of workspace and
// removes tracked files that are missing from it.
func (idx *Indexer) Index(ctx context.Context, workspace string, files map[string]string) (*Statistics, error) {
	return idx.Run(ctx, Request{Workspace: workspace, Files: files, Mode: ModeFull})
}

// Update re-indexes the changed files among files. Without a manifest
// nothing is removed; with one, tracked paths absent from both the
// manifest and files are removed.
func (idx *Indexer) Update(ctx context.Context, workspace string, files map[string]string, manifest []string) (*Statistics, error) {
	mode := ModeAdditive
	if len(manifest) > 0 {
		mode = ModeManifest
	}
	return idx.Run(ctx, Request{Workspace: workspace, Files: files, Manifest: manifest, Mode: mode})
}

// Run executes one index or update call. Per-file failures are collected in
// the statistics; an error is returned only when every attempted file
// failed, the workspace is locked, or the call was cancelled.
func (idx *Indexer) Run(ctx context.Context, req Request) (*Statistics, error) {
	if req.Workspace == "" {
		return nil, types.ErrEmptyWorkspace
	}

	release, err := idx.locks.TryLock(req.Workspace)
	if err != nil {
		return nil, err
	}
	defer release()

	start := idx.now()
	stats := &Statistics{Workspace: req.Workspace, Mode: req.Mode.String()}

	tracked, err := idx.state.TrackedFiles(ctx, req.Workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked files: %w", err)
	}
	hashes := make(map[string]string, len(tracked))
	for p, tf := range tracked {
		hashes[p] = tf.ContentHash
	}

	cs := Detect(req.Files, hashes, req.Manifest, req.Mode)
	stats.FilesUnchanged = len(cs.Unchanged)
	stats.LanguagesSeen = languagesOf(cs.Hashes)

	var mu sync.Mutex
	fileErrs := slices.Clone(cs.Errors)
	record := func(fe *types.FileError) {
		mu.Lock()
		fileErrs = append(fileErrs, fe)
		mu.Unlock()
	}

	work := cs.Work()
	var g errgroup.Group
	g.SetLimit(idx.workers)
	for _, p := range work {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			n, fe := idx.indexFile(ctx, req.Workspace, p, req.Files[p], cs.Hashes[p])
			if fe != nil {
				record(fe)
				return nil
			}
			mu.Lock()
			stats.FilesProcessed++
			stats.ChunksWritten += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, p := range cs.Removed {
		if ctx.Err() != nil {
			break
		}
		if fe := idx.removeFile(ctx, req.Workspace, p); fe != nil {
			record(fe)
			continue
		}
		stats.FilesRemoved++
	}

	slices.SortFunc(fileErrs, func(a, b *types.FileError) int {
		return cmp.Compare(a.Path, b.Path)
	})
	stats.Errors = fileErrs
	stats.FilesFailed = len(fileErrs)
	stats.FilesChanged = stats.FilesProcessed + stats.FilesRemoved
	for _, fe := range fileErrs {
		stats.ErrorMessages = append(stats.ErrorMessages, fe.Error())
	}

	// Bookkeeping reflects whatever was durably written, even when the
	// caller has gone away.
	if err := idx.updateWorkspace(context.WithoutCancel(ctx), req.Workspace, fileErrs); err != nil {
		idx.log.Error().Err(err).Str("workspace", req.Workspace).Msg("failed to update workspace state")
	}
	stats.Duration = idx.now().Sub(start)

	idx.log.Info().
		Str("workspace", req.Workspace).
		Str("mode", stats.Mode).
		Int("processed", stats.FilesProcessed).
		Int("unchanged", stats.FilesUnchanged).
		Int("removed", stats.FilesRemoved).
		Int("failed", stats.FilesFailed).
		Int("chunks", stats.ChunksWritten).
		Dur("duration", stats.Duration).
		Msg("index run finished")

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	attempted := len(work) + len(cs.Removed) + len(cs.Errors)
	if attempted > 0 && stats.FilesFailed == attempted {
		errs := make([]error, len(fileErrs))
		for i, fe := range fileErrs {
			errs[i] = fe
		}
		return stats, fmt.Errorf("all %d files failed: %w", attempted, errors.Join(errs...))
	}
	return stats, nil
}

// indexFile replaces the records of one file and tracks it. It returns the
// number of records written.
func (idx *Indexer) indexFile(ctx context.Context, workspace, path, content, hash string) (int, *types.FileError) {
	lang := chunker.DetectLanguage(path)
	chunks := idx.chunker.ChunkAll(path, content, lang)

	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		var err error
		vectors, err = embedder.EmbedAll(ctx, idx.embedder, texts, idx.batchSize)
		if err != nil {
			if !errors.Is(err, types.ErrEmbeddingUnavailable) {
				err = fmt.Errorf("%w: %v", types.ErrEmbeddingUnavailable, err)
			}
			return 0, &types.FileError{Path: path, Err: err}
		}
	}

	now := idx.now()
	records := make([]types.Record, len(chunks))
	for i, c := range chunks {
		records[i] = types.Record{
			ID:          RecordID(workspace, path, i, c.Text),
			Vector:      vectors[i],
			Text:        c.Text,
			Category:    types.CategoryCodebase,
			Workspace:   workspace,
			Language:    lang,
			Timestamp:   now,
			SourcePath:  path,
			ContentHash: hash,
			StartLine:   c.StartLine,
			EndLine:     c.EndLine,
			Symbol:      c.Symbol,
		}
	}

	if err := idx.index.ReplaceSource(ctx, workspace, path, records); err != nil {
		// The old records may be gone; drop the tracked hash so the next
		// run writes this file again.
		if uerr := idx.state.UntrackFile(context.WithoutCancel(ctx), workspace, path); uerr != nil {
			idx.log.Warn().Err(uerr).Str("path", path).Msg("failed to untrack file")
		}
		return 0, &types.FileError{Path: path, Err: fmt.Errorf("%w: %v", types.ErrIndexWriteFailed, err)}
	}

	err := idx.state.TrackFile(ctx, &storage.TrackedFile{
		Workspace:   workspace,
		Path:        path,
		ContentHash: hash,
		Language:    lang,
		ChunkCount:  len(records),
		IndexedAt:   now,
	})
	if err != nil {
		return 0, &types.FileError{Path: path, Err: fmt.Errorf("%w: track file: %v", types.ErrIndexWriteFailed, err)}
	}

	idx.log.Debug().Str("workspace", workspace).Str("path", path).Int("chunks", len(records)).Msg("indexed file")
	return len(records), nil
}

func (idx *Indexer) removeFile(ctx context.Context, workspace, path string) *types.FileError {
	if _, err := idx.index.DeleteSource(ctx, workspace, path); err != nil {
		return &types.FileError{Path: path, Err: fmt.Errorf("%w: %v", types.ErrIndexWriteFailed, err)}
	}
	if err := idx.state.UntrackFile(ctx, workspace, path); err != nil {
		return &types.FileError{Path: path, Err: fmt.Errorf("%w: untrack file: %v", types.ErrIndexWriteFailed, err)}
	}
	idx.log.Debug().Str("workspace", workspace).Str("path", path).Msg("removed file")
	return nil
}

// updateWorkspace recomputes the workspace counters from tracked files
func (idx *Indexer) updateWorkspace(ctx context.Context, workspace string, fileErrs []*types.FileError) error {
	tracked, err := idx.state.TrackedFiles(ctx, workspace)
	if err != nil {
		return err
	}

	ws, err := idx.state.GetWorkspace(ctx, workspace)
	if errors.Is(err, storage.ErrNotFound) {
		ws = &storage.Workspace{Name: workspace}
	} else if err != nil {
		return err
	}

	ws.TrackedFileCount = len(tracked)
	ws.ChunkCount = 0
	for _, tf := range tracked {
		ws.ChunkCount += tf.ChunkCount
	}
	ws.LastUpdateAt = idx.now()
	ws.LastErrorCount = len(fileErrs)
	ws.LastError = ""
	if len(fileErrs) > 0 {
		ws.LastError = fileErrs[0].Error()
	}
	return idx.state.UpsertWorkspace(ctx, ws)
}

// RecordID derives a stable record identifier for a chunk so re-indexing
// identical content produces identical IDs.
func RecordID(workspace, path string, ordinal int, text string) string {
	name := workspace + "\x00" + path + "\x00" + strconv.Itoa(ordinal) + "\x00" + text
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

func languagesOf(hashes map[string]string) []string {
	seen := make(map[string]bool)
	langs := []string{}
	for p := range hashes {
		if lang := chunker.DetectLanguage(p); lang != "" && !seen[lang] {
			seen[lang] = true
			langs = append(langs, lang)
		}
	}
	slices.Sort(langs)
	return langs
}
