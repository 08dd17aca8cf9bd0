package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFiltersMatch(t *testing.T) {
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := &Record{
		Category:   CategoryDecision,
		Workspace:  "proj",
		Language:   "go",
		Tags:       []string{"api", "database"},
		Timestamp:  ts,
		SourcePath: "db.go",
	}

	tests := []struct {
		name    string
		filters Filters
		want    bool
	}{
		{"no filters", Filters{}, true},
		{"category", Filters{Category: CategoryDecision}, true},
		{"other category", Filters{Category: CategoryMemory}, false},
		{"workspace", Filters{Workspace: "other"}, false},
		{"language", Filters{Language: "go"}, true},
		{"source path", Filters{SourcePath: "x.go"}, false},
		{"all tags", Filters{Tags: []string{"api", "database"}}, true},
		{"tags are normalized", Filters{Tags: []string{" API ", "Database"}}, true},
		{"missing tag", Filters{Tags: []string{"api", "cache"}}, false},
		{"inside range", Filters{Since: ts.Add(-time.Hour), Until: ts.Add(time.Hour)}, true},
		{"range is inclusive", Filters{Since: ts, Until: ts}, true},
		{"before range", Filters{Since: ts.Add(time.Hour)}, false},
		{"after range", Filters{Until: ts.Add(-time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filters.Match(rec))
		})
	}
}
