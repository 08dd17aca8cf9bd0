package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

const testDim = 3

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func setupChromem(t *testing.T) *ChromemIndex {
	t.Helper()
	idx, err := NewChromemIndex("", testDim)
	require.NoError(t, err)
	return idx
}

// indexBackends returns every VectorIndex implementation under test.
func indexBackends(t *testing.T) map[string]VectorIndex {
	return map[string]VectorIndex{
		"sqlite":  setupTestDB(t),
		"chromem": setupChromem(t),
	}
}

func testRecord(id string, vec []float32, mutate ...func(*types.Record)) types.Record {
	r := types.Record{
		ID:        id,
		Vector:    vec,
		Text:      "text for " + id,
		Category:  types.CategoryMemory,
		Workspace: "ws",
		Timestamp: baseTime,
	}
	for _, m := range mutate {
		m(&r)
	}
	return r
}

func withCategory(c types.Category) func(*types.Record) {
	return func(r *types.Record) { r.Category = c }
}

func withWorkspace(ws string) func(*types.Record) {
	return func(r *types.Record) { r.Workspace = ws }
}

func withSource(path string) func(*types.Record) {
	return func(r *types.Record) {
		r.SourcePath = path
		r.Category = types.CategoryCodebase
	}
}

func withTags(tags ...string) func(*types.Record) {
	return func(r *types.Record) { r.Tags = tags }
}

func withTime(ts time.Time) func(*types.Record) {
	return func(r *types.Record) { r.Timestamp = ts }
}

func ids(cands []types.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Record.ID
	}
	return out
}

func nID(prefix string, i int) string {
	return fmt.Sprintf("%s-%03d", prefix, i)
}
