package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/xmmarcotte/marcotte-dev/internal/chunker"
	"github.com/xmmarcotte/marcotte-dev/internal/indexer"
	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// DefaultDebounce is the quiet period before changes are synced
const DefaultDebounce = 500 * time.Millisecond

// Syncer receives the file sets collected by the watcher
type Syncer interface {
	Index(ctx context.Context, workspace string, files map[string]string) (*indexer.Statistics, error)
	Update(ctx context.Context, workspace string, files map[string]string, manifest []string) (*indexer.Statistics, error)
}

// Config configures a Watcher
type Config struct {
	Root        string
	Workspace   string
	Debounce    time.Duration
	Walk        indexer.WalkOptions // zero value means indexer.DefaultWalkOptions()
	Resync      string // cron spec for periodic full resyncs, e.g. "@every 1h"
	InitialSync bool   // run a full index before watching
	OnSync      func(full bool, stats *indexer.Statistics, err error)
	Logger      *zerolog.Logger
}

// Watcher keeps a workspace in sync with a directory tree
type Watcher struct {
	syncer Syncer
	cfg    Config
	logger zerolog.Logger
	resync chan struct{}
}

// New creates a watcher for cfg.Root
func New(s Syncer, cfg Config) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", types.ErrMalformedInput, root)
	}
	cfg.Root = root

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Walk == (indexer.WalkOptions{}) {
		cfg.Walk = indexer.DefaultWalkOptions()
	}
	if cfg.Resync != "" {
		if _, err := cron.ParseStandard(cfg.Resync); err != nil {
			return nil, fmt.Errorf("invalid resync schedule: %w", err)
		}
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "watcher").Logger()
	}

	return &Watcher{
		syncer: s,
		cfg:    cfg,
		logger: logger,
		resync: make(chan struct{}, 1),
	}, nil
}

// Run watches until ctx is cancelled. Changes are debounced and synced
// with a manifest update so deleted files are removed; the optional
// resync schedule triggers full index runs.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addTree(fsw, w.cfg.Root); err != nil {
		return err
	}

	if w.cfg.Resync != "" {
		c := cron.New()
		if _, err := c.AddFunc(w.cfg.Resync, w.requestResync); err != nil {
			return fmt.Errorf("schedule resync: %w", err)
		}
		c.Start()
		defer c.Stop()
	}

	if w.cfg.InitialSync {
		w.sync(ctx, true)
	}

	w.logger.Info().
		Str("root", w.cfg.Root).
		Str("workspace", w.cfg.Workspace).
		Dur("debounce", w.cfg.Debounce).
		Msg("watching for changes")

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fsw, event.Name); err != nil {
						w.logger.Warn().Err(err).Str("dir", event.Name).Msg("failed to watch directory")
					}
				}
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("file change detected")

			if timer == nil {
				timer = time.NewTimer(w.cfg.Debounce)
			} else {
				timer.Reset(w.cfg.Debounce)
			}
			timerC = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("file watcher error")

		case <-timerC:
			timerC = nil
			w.sync(ctx, false)

		case <-w.resync:
			w.sync(ctx, true)
		}
	}
}

func (w *Watcher) requestResync() {
	select {
	case w.resync <- struct{}{}:
	default:
	}
}

// sync collects the current file set and hands it to the syncer
func (w *Watcher) sync(ctx context.Context, full bool) {
	files, err := indexer.CollectFiles(w.cfg.Root, w.cfg.Walk)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to collect files")
		w.report(full, nil, err)
		return
	}

	var stats *indexer.Statistics
	if full {
		stats, err = w.syncer.Index(ctx, w.cfg.Workspace, files)
	} else {
		manifest := make([]string, 0, len(files))
		for p := range files {
			manifest = append(manifest, p)
		}
		slices.Sort(manifest)
		stats, err = w.syncer.Update(ctx, w.cfg.Workspace, files, manifest)
	}

	switch {
	case errors.Is(err, types.ErrWorkspaceLocked):
		w.logger.Warn().Msg("workspace busy, sync skipped")
	case err != nil:
		w.logger.Error().Err(err).Bool("full", full).Msg("sync failed")
	case stats != nil:
		w.logger.Info().
			Bool("full", full).
			Int("changed", stats.FilesChanged).
			Int("failed", stats.FilesFailed).
			Int("chunks", stats.ChunksWritten).
			Msg("workspace synced")
	}
	w.report(full, stats, err)
}

func (w *Watcher) report(full bool, stats *indexer.Statistics, err error) {
	if w.cfg.OnSync != nil {
		w.cfg.OnSync(full, stats, err)
	}
}

// addTree watches dir and every directory below it that the walker would
// descend into.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.cfg.Root && w.skipped(path) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// relevant reports whether an event can change the indexed file set
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if w.skipped(event.Name) {
		return false
	}
	// Removed or renamed paths may have been directories.
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return true
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		return true
	}
	return chunker.IsIndexable(event.Name)
}

// skipped reports whether any directory between the root and path is
// hidden or excluded by the walk options
func (w *Watcher) skipped(path string) bool {
	rel, err := filepath.Rel(w.cfg.Root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if indexer.SkipDir(part, w.cfg.Walk) {
			return true
		}
	}
	return false
}
