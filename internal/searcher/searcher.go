package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/xmmarcotte/marcotte-dev/internal/embedder"
	"github.com/xmmarcotte/marcotte-dev/internal/enhancer"
	"github.com/xmmarcotte/marcotte-dev/internal/reranker"
	"github.com/xmmarcotte/marcotte-dev/internal/storage"
	"github.com/xmmarcotte/marcotte-dev/internal/tokenize"
	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// Request limits
const (
	DefaultLimit      = 10
	MaxLimit          = 100
	DefaultCandidates = 50
	MaxCandidates     = 500
	DefaultCacheSize  = 1000
	DefaultCacheTTL   = 5 * time.Minute
)

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query      string
	Filters    types.Filters
	Limit      int   // results returned (K)
	Candidates int   // candidates fetched from the index (N)
	Rerank     *bool // nil uses the searcher default
	Enhance    *bool // nil uses the searcher default
	UseCache   bool  // Whether to use query cache
	CacheTTL   time.Duration
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results        []types.SearchResult
	TotalResults   int
	Query          string // query text that was embedded
	Expansions     []string
	Hints          enhancer.Hints
	Candidates     int // candidates returned by the index
	Reranked       bool
	Reranker       string
	Degraded       bool
	DegradedReason string
	Duration       time.Duration
	CacheHit       bool
}

// Group holds the results of one category
type Group struct {
	Category types.Category
	Results  []types.SearchResult
}

// Grouped groups results by category for presentation. Groups follow
// types.Categories order and results keep their rank order.
func (r *SearchResponse) Grouped() []Group {
	var groups []Group
	for _, cat := range types.Categories {
		var g Group
		for _, res := range r.Results {
			if res.Record.Category == cat {
				g.Results = append(g.Results, res)
			}
		}
		if len(g.Results) > 0 {
			g.Category = cat
			groups = append(groups, g)
		}
	}
	return groups
}

// Options configures a Searcher
type Options struct {
	Rerank     bool // rerank by default when a reranker is set
	Enhance    bool // enhance queries by default
	ApplyHints bool // turn enhancer hints into filters the caller left unset
	CacheSize  int
	CacheTTL   time.Duration
	Logger     *zerolog.Logger
}

// DefaultOptions returns the default searcher options
func DefaultOptions() Options {
	return Options{
		Rerank:    true,
		Enhance:   true,
		CacheSize: DefaultCacheSize,
		CacheTTL:  DefaultCacheTTL,
	}
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher runs the two-stage retrieval pipeline: enhance, embed, fetch N
// candidates with filters applied by the index, rerank, truncate to K.
type Searcher struct {
	index    storage.VectorIndex
	embedder embedder.Embedder
	reranker reranker.Reranker
	enhancer *enhancer.Enhancer
	opts     Options
	log      zerolog.Logger

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex

	// generation is bumped by InvalidateCache; a search only caches its
	// response if no invalidation happened while it ran.
	generation atomic.Uint64
}

// NewSearcher creates a new Searcher instance. rr may be nil to disable
// reranking.
func NewSearcher(index storage.VectorIndex, emb embedder.Embedder, rr reranker.Reranker, enh *enhancer.Enhancer, opts Options) *Searcher {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if enh == nil {
		enh = enhancer.New(0)
	}

	// Cache will automatically evict least recently used entries
	cache, err := lru.New[[32]byte, *cacheEntry](opts.CacheSize)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "searcher").Logger()
	}

	return &Searcher{
		index:    index,
		embedder: emb,
		reranker: rr,
		enhancer: enh,
		opts:     opts,
		log:      log,
		cache:    cache,
	}
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	// Validate searcher state
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: embedder not initialized", types.ErrRetrievalUnavailable)
	}

	// Validate request
	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	// Check cache if enabled
	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	generation := s.generation.Load()
	response := &SearchResponse{Query: req.Query}
	filters := req.Filters
	if *req.Enhance {
		enhanced := s.enhancer.Enhance(req.Query)
		response.Query = enhanced.Query
		response.Expansions = enhanced.Expansions
		response.Hints = enhanced.Hints
		if s.opts.ApplyHints {
			enhanced.Hints.Apply(&filters)
		}
	}

	vector, err := s.embedder.Embed(ctx, response.Query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, types.ErrEmbeddingUnavailable) {
			err = fmt.Errorf("%w: %v", types.ErrEmbeddingUnavailable, err)
		}
		return nil, fmt.Errorf("%w: failed to generate query embedding: %w", types.ErrRetrievalUnavailable, err)
	}

	candidates, err := s.index.Query(ctx, vector, filters, req.Candidates)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: vector query failed: %w", types.ErrRetrievalUnavailable, err)
	}
	response.Candidates = len(candidates)

	ranked := vectorOrder(candidates)
	if *req.Rerank && s.reranker != nil && len(candidates) > 0 {
		response.Reranker = s.reranker.Name()
		reranked, err := s.rerank(ctx, response.Query, candidates)
		switch {
		case err == nil:
			ranked = reranked
			response.Reranked = true
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			response.Degraded = true
			response.DegradedReason = err.Error()
			s.log.Warn().Err(err).Str("reranker", s.reranker.Name()).Msg("reranking failed, using vector order")
		}
	}

	if len(ranked) > req.Limit {
		ranked = ranked[:req.Limit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	response.Results = ranked
	response.TotalResults = len(ranked)
	response.Duration = time.Since(startTime)

	s.log.Debug().
		Str("query", req.Query).
		Int("candidates", response.Candidates).
		Int("results", response.TotalResults).
		Bool("reranked", response.Reranked).
		Bool("degraded", response.Degraded).
		Dur("duration", response.Duration).
		Msg("search finished")

	// Degraded responses are not cached so the next call retries the reranker.
	if req.UseCache && !response.Degraded && len(response.Results) > 0 {
		s.storeInCache(req, response, generation)
	}

	return response, nil
}

// vectorOrder keeps the index order and uses similarity as the score
func vectorOrder(candidates []types.Candidate) []types.SearchResult {
	results := make([]types.SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = types.SearchResult{Record: c.Record, Score: c.Score, VectorScore: c.Score}
	}
	return results
}

// rerank scores every candidate and sorts by the new score. Equal scores
// keep candidate order.
func (s *Searcher) rerank(ctx context.Context, query string, candidates []types.Candidate) ([]types.SearchResult, error) {
	input := make([]reranker.Candidate, len(candidates))
	for i, c := range candidates {
		input[i] = reranker.Candidate{Text: c.Record.Text, Score: c.Score}
	}

	scores, err := s.reranker.Rerank(ctx, query, input)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("%w: got %d scores for %d candidates", reranker.ErrUnavailable, len(scores), len(candidates))
	}

	results := make([]types.SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = types.SearchResult{Record: c.Record, Score: scores[i], VectorScore: c.Score}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// validateRequest ensures search request is valid and fills defaults
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", types.ErrMalformedInput)
	}

	if err := req.Filters.Validate(); err != nil {
		return err
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	if req.Candidates <= 0 {
		req.Candidates = DefaultCandidates
	}
	req.Candidates = min(max(req.Candidates, req.Limit), MaxCandidates)

	if req.Rerank == nil {
		req.Rerank = &s.opts.Rerank
	}
	if req.Enhance == nil {
		req.Enhance = &s.opts.Enhance
	}
	if req.CacheTTL <= 0 {
		req.CacheTTL = s.opts.CacheTTL
	}
	return nil
}

// checkCache looks up cached search results
func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	// Check if entry has expired while holding read lock to avoid race condition
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		// Remove expired entry - need write lock
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	// Entry is valid - return a deep copy while still holding read lock
	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()

	return response
}

// storeInCache saves search results to cache. The write is dropped when the
// cache was invalidated after generation was read.
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse, generation uint64) {
	hash := computeQueryHash(req)

	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation.Load() != generation {
		return
	}
	s.cache.Add(hash, entry)
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Expansions = slices.Clone(src.Expansions)
	dst.Hints.Tags = slices.Clone(src.Hints.Tags)
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, result := range src.Results {
		dst.Results[i] = result
		dst.Results[i].Record.Tags = slices.Clone(result.Record.Tags)
		dst.Results[i].Record.Vector = slices.Clone(result.Record.Vector)
	}
	return &dst
}

// computeQueryHash computes a unique hash for a normalized search request.
// Called after validateRequest so defaults are filled in.
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(tokenize.Normalize(req.Query))
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.Limit))
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.Candidates))
	data.WriteString("|")
	data.WriteString(strconv.FormatBool(*req.Rerank))
	data.WriteString("|")
	data.WriteString(strconv.FormatBool(*req.Enhance))

	// Add filters with stable serialization
	f := req.Filters
	tags := slices.Clone(f.Tags)
	slices.Sort(tags)
	data.WriteString("|filters:")
	data.WriteString(string(f.Category))
	data.WriteString("|")
	data.WriteString(f.Workspace)
	data.WriteString("|")
	data.WriteString(f.Language)
	data.WriteString("|")
	data.WriteString(strings.Join(tags, ","))
	data.WriteString("|")
	data.WriteString(f.SourcePath)
	data.WriteString("|")
	data.WriteString(f.Since.UTC().Format(time.RFC3339Nano))
	data.WriteString("|")
	data.WriteString(f.Until.UTC().Format(time.RFC3339Nano))

	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached response. Called after any write.
func (s *Searcher) InvalidateCache() {
	// LRU cache doesn't support filtering, so we purge the entire cache
	s.cacheMu.Lock()
	s.cache.Purge()
	s.generation.Add(1)
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
