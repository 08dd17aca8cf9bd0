package reranker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xmmarcotte/marcotte-dev/internal/tokenize"
	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// Provider names
const (
	ProviderTerm         = "term"
	ProviderCrossEncoder = "cross-encoder"
)

// MinScore is the score given to candidates with no text
const MinScore = -1.0

// TermBoost is the largest boost the term reranker adds to a vector score
const TermBoost = 0.1

// ErrUnavailable is returned when a reranker cannot score candidates.
// Searches fall back to vector order when they see it.
var ErrUnavailable = fmt.Errorf("reranker unavailable: %w", types.ErrRerankUnavailable)

// Candidate is one text to score against a query
type Candidate struct {
	Text  string
	Score float64 // vector similarity
}

// Reranker scores candidates against a query. The returned slice is
// parallel to candidates; higher is more relevant.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]float64, error)
	Name() string
}

// Score scores a single candidate text
func Score(ctx context.Context, r Reranker, query, text string) (float64, error) {
	scores, err := r.Rerank(ctx, query, []Candidate{{Text: text}})
	if err != nil {
		return 0, err
	}
	if len(scores) != 1 {
		return 0, fmt.Errorf("%w: expected 1 score, got %d", ErrUnavailable, len(scores))
	}
	return scores[0], nil
}

// TermReranker boosts the vector score of a candidate by the fraction of
// query words it contains. It needs no model and never fails.
type TermReranker struct{}

// NewTermReranker creates a term matching reranker
func NewTermReranker() *TermReranker {
	return &TermReranker{}
}

func (t *TermReranker) Name() string {
	return ProviderTerm
}

func (t *TermReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := uniqueWords(query)
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		if strings.TrimSpace(c.Text) == "" {
			scores[i] = MinScore
			continue
		}
		if len(terms) == 0 {
			scores[i] = c.Score
			continue
		}
		text := tokenize.Normalize(c.Text)
		matches := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				matches++
			}
		}
		scores[i] = c.Score + TermBoost*float64(matches)/float64(len(terms))
	}
	return scores, nil
}

func uniqueWords(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range tokenize.Words(s) {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// Config selects and configures a reranker
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  int // seconds
}

// New creates the reranker named by cfg.Provider. An empty provider
// selects the term reranker.
func New(cfg Config) (Reranker, error) {
	switch cfg.Provider {
	case "", ProviderTerm:
		return NewTermReranker(), nil
	case ProviderCrossEncoder:
		return NewCrossEncoder(cfg)
	default:
		return nil, fmt.Errorf("unknown reranker provider %q", cfg.Provider)
	}
}

// IsUnavailable reports whether err means the reranker could not answer
func IsUnavailable(err error) bool {
	return errors.Is(err, types.ErrRerankUnavailable)
}
