package engine

import (
	"time"

	"github.com/xmmarcotte/marcotte-dev/internal/searcher"
	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// ResultView is the presentation form of one search result
type ResultView struct {
	Rank        int       `json:"rank" yaml:"rank"`
	ID          string    `json:"id" yaml:"id"`
	Score       float64   `json:"score" yaml:"score"`
	VectorScore float64   `json:"vector_score" yaml:"vector_score"`
	Category    string    `json:"category" yaml:"category"`
	Workspace   string    `json:"workspace" yaml:"workspace"`
	Language    string    `json:"language,omitempty" yaml:"language,omitempty"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	SourcePath  string    `json:"source_path,omitempty" yaml:"source_path,omitempty"`
	StartLine   int       `json:"start_line,omitempty" yaml:"start_line,omitempty"`
	EndLine     int       `json:"end_line,omitempty" yaml:"end_line,omitempty"`
	Symbol      string    `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Text        string    `json:"text" yaml:"text"`
}

// GroupView holds the results of one category
type GroupView struct {
	Category string       `json:"category" yaml:"category"`
	Results  []ResultView `json:"results" yaml:"results"`
}

// SearchView is the presentation form of a search response
type SearchView struct {
	Query          string       `json:"query" yaml:"query"`
	Expansions     []string     `json:"expansions,omitempty" yaml:"expansions,omitempty"`
	Language       string       `json:"hint_language,omitempty" yaml:"hint_language,omitempty"`
	Category       string       `json:"hint_category,omitempty" yaml:"hint_category,omitempty"`
	Tags           []string     `json:"hint_tags,omitempty" yaml:"hint_tags,omitempty"`
	TotalResults   int          `json:"total_results" yaml:"total_results"`
	Candidates     int          `json:"candidates" yaml:"candidates"`
	Reranked       bool         `json:"reranked" yaml:"reranked"`
	Reranker       string       `json:"reranker,omitempty" yaml:"reranker,omitempty"`
	Degraded       bool         `json:"degraded" yaml:"degraded"`
	DegradedReason string       `json:"degraded_reason,omitempty" yaml:"degraded_reason,omitempty"`
	CacheHit       bool         `json:"cache_hit" yaml:"cache_hit"`
	DurationMS     int64        `json:"duration_ms" yaml:"duration_ms"`
	Results        []ResultView `json:"results" yaml:"results"`
	Groups         []GroupView  `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// NewResultView converts a search result
func NewResultView(r types.SearchResult) ResultView {
	rec := r.Record
	return ResultView{
		Rank:        r.Rank,
		ID:          rec.ID,
		Score:       r.Score,
		VectorScore: r.VectorScore,
		Category:    string(rec.Category),
		Workspace:   rec.Workspace,
		Language:    rec.Language,
		Tags:        rec.Tags,
		SourcePath:  rec.SourcePath,
		StartLine:   rec.StartLine,
		EndLine:     rec.EndLine,
		Symbol:      rec.Symbol,
		Timestamp:   rec.Timestamp,
		Text:        rec.Text,
	}
}

// NewSearchView converts a search response. Results always holds the ranked
// list; with grouped set, the same results are also reported per category.
func NewSearchView(resp *searcher.SearchResponse, grouped bool) SearchView {
	v := SearchView{
		Query:          resp.Query,
		Expansions:     resp.Expansions,
		Language:       resp.Hints.Language,
		Category:       string(resp.Hints.Category),
		Tags:           resp.Hints.Tags,
		TotalResults:   resp.TotalResults,
		Candidates:     resp.Candidates,
		Reranked:       resp.Reranked,
		Reranker:       resp.Reranker,
		Degraded:       resp.Degraded,
		DegradedReason: resp.DegradedReason,
		CacheHit:       resp.CacheHit,
		DurationMS:     resp.Duration.Milliseconds(),
	}
	v.Results = make([]ResultView, 0, len(resp.Results))
	for _, r := range resp.Results {
		v.Results = append(v.Results, NewResultView(r))
	}
	if grouped {
		for _, g := range resp.Grouped() {
			gv := GroupView{Category: string(g.Category)}
			for _, r := range g.Results {
				gv.Results = append(gv.Results, NewResultView(r))
			}
			v.Groups = append(v.Groups, gv)
		}
	}
	return v
}
