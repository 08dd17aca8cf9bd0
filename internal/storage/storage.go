package storage

import (
	"context"
	"time"

	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// VectorIndex stores records and answers nearest-neighbour queries over them.
// All records of every category live in one index.
type VectorIndex interface {
	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, records []types.Record) error

	// ReplaceSource deletes every record of (workspace, sourcePath) and then
	// inserts records. Implementations make the pair atomic where they can.
	ReplaceSource(ctx context.Context, workspace, sourcePath string, records []types.Record) error

	// DeleteSource removes every record of (workspace, sourcePath).
	DeleteSource(ctx context.Context, workspace, sourcePath string) (int, error)

	// Delete removes records by ID.
	Delete(ctx context.Context, ids ...string) (int, error)

	// Query returns up to topN records ordered by cosine similarity to vector.
	// Filters are applied before the cutoff. Ties are ordered by write time
	// then ID so the result is deterministic.
	Query(ctx context.Context, vector []float32, filters types.Filters, topN int) ([]types.Candidate, error)

	// Count returns the number of records matching filters.
	Count(ctx context.Context, filters types.Filters) (int, error)

	Close() error
}

// StateStore persists per-workspace index bookkeeping.
type StateStore interface {
	GetWorkspace(ctx context.Context, name string) (*Workspace, error)
	UpsertWorkspace(ctx context.Context, ws *Workspace) error
	ListWorkspaces(ctx context.Context) ([]*Workspace, error)

	// TrackedFiles returns path -> tracked file for a workspace.
	TrackedFiles(ctx context.Context, workspace string) (map[string]*TrackedFile, error)
	TrackFile(ctx context.Context, file *TrackedFile) error
	UntrackFile(ctx context.Context, workspace, path string) error

	Close() error
}

// Workspace is the bookkeeping row for one workspace
type Workspace struct {
	Name             string
	TrackedFileCount int
	ChunkCount       int
	LastUpdateAt     time.Time
	LastErrorCount   int
	LastError        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Stale reports whether the last index or update finished with errors.
func (w *Workspace) Stale() bool {
	return w.LastErrorCount > 0
}

// TrackedFile is a file whose records are live in the index
type TrackedFile struct {
	Workspace   string
	Path        string
	ContentHash string
	Language    string
	ChunkCount  int
	IndexedAt   time.Time
}
