package types

import (
	"slices"
	"time"
)

// Filters restricts a vector query. Every field is applied by the index
// before the top-N cutoff; zero values mean "no restriction".
type Filters struct {
	Category   Category
	Workspace  string
	Language   string
	Tags       []string // all must be present
	Since      time.Time
	Until      time.Time
	SourcePath string
}

// Validate checks that the filters are internally consistent.
func (f *Filters) Validate() error {
	if f.Category != "" && !f.Category.Valid() {
		return ErrInvalidCategory
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Since.After(f.Until) {
		return ErrInvalidTimeRange
	}
	return nil
}

// IsZero reports whether no filter is set.
func (f *Filters) IsZero() bool {
	return f.Category == "" && f.Workspace == "" && f.Language == "" &&
		len(f.Tags) == 0 && f.Since.IsZero() && f.Until.IsZero() && f.SourcePath == ""
}

// Match evaluates the filters against a record. Index implementations that
// cannot express a predicate natively use it during their scan.
func (f *Filters) Match(r *Record) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Workspace != "" && r.Workspace != f.Workspace {
		return false
	}
	if f.Language != "" && r.Language != f.Language {
		return false
	}
	if f.SourcePath != "" && r.SourcePath != f.SourcePath {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.Timestamp.After(f.Until) {
		return false
	}
	for _, want := range NormalizeTags(f.Tags) {
		if !slices.Contains(r.Tags, want) {
			return false
		}
	}
	return true
}
