package types

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Category classifies a record. It is fixed at write time.
type Category string

const (
	CategoryMemory   Category = "memory"
	CategoryDecision Category = "decision"
	CategoryPattern  Category = "pattern"
	CategoryCodebase Category = "codebase"
)

// Categories lists every valid category in presentation order.
var Categories = []Category{CategoryDecision, CategoryPattern, CategoryCodebase, CategoryMemory}

// ParseCategory maps user input to a Category. The empty string means memory.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CategoryMemory, nil
	case CategoryMemory, CategoryDecision, CategoryPattern, CategoryCodebase:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// Record is the unit stored in the vector index.
type Record struct {
	ID        string
	Vector    []float32
	Text      string
	Category  Category
	Workspace string
	Language  string
	Tags      []string
	Timestamp time.Time

	// Set for codebase records.
	SourcePath  string
	ContentHash string // fingerprint of the whole source file
	StartLine   int
	EndLine     int
	Symbol      string
}

// Validate checks the write-time invariants of a record.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	if r.Workspace == "" {
		return ErrEmptyWorkspace
	}
	if !r.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, r.Category)
	}
	if len(r.Vector) == 0 {
		return ErrEmptyVector
	}
	if r.StartLine < 0 || r.EndLine < r.StartLine {
		return ErrInvalidLineRange
	}
	return nil
}

// NormalizeTags trims, lower-cases, de-duplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ParseTags splits a comma separated tag list.
func ParseTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return NormalizeTags(strings.Split(s, ","))
}

// Candidate is a record returned by a vector query together with its
// similarity to the query vector.
type Candidate struct {
	Record Record
	Score  float64
}
