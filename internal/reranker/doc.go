// Package reranker re-scores vector search candidates against the query.
//
// Two implementations share the Reranker interface. TermReranker adds a
// small boost for each query word found in the candidate text and works
// offline. CrossEncoder calls a hosted rerank endpoint. Any error from a
// reranker wraps ErrUnavailable; the searcher then keeps vector order and
// marks the response as degraded.
package reranker
