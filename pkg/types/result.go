package types

import "errors"

// SearchResult represents a single search result with relevance information
type SearchResult struct {
	Record Record
	Rank   int // Position in result set (1-based)

	// Scoring
	Score       float64 // final score, reranker output when reranking ran
	VectorScore float64 // cosine similarity from the first stage
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Record.ID == "" {
		return errors.New("result record ID is required")
	}

	if sr.Rank < 1 {
		return errors.New("rank must be >= 1")
	}

	if sr.Record.Text == "" {
		return ErrEmptyText
	}

	return nil
}
