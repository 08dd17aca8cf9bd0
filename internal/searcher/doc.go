// Package searcher implements two-stage retrieval over the vector index.
//
// A search runs these steps:
//
//  1. Enhance the query (abbreviations, synonyms, identifier parts)
//  2. Embed the enhanced query
//  3. Fetch the top N candidates; category, workspace, language, tag,
//     source and time filters are applied by the index before the cutoff
//  4. Rerank the N candidates against the enhanced query
//  5. Return the top K
//
// Ranking is category-agnostic. SearchResponse.Grouped arranges results by
// category for display only.
//
// # Failure Handling
//
// If the embedder fails, the search fails with types.ErrRetrievalUnavailable.
// If the reranker fails, results keep vector order and the response is
// marked Degraded; this is never an error.
//
// # Caching
//
// Responses can be cached in an LRU keyed by the normalized request with a
// TTL (five minutes by default). Call InvalidateCache after any write.
// Degraded responses are not cached.
//
//	s := searcher.NewSearcher(index, emb, reranker.NewTermReranker(), enhancer.New(0), searcher.DefaultOptions())
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:   "database connection retry",
//	    Filters: types.Filters{Category: types.CategoryDecision},
//	    Limit:   5,
//	})
package searcher
