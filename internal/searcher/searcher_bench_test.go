package searcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/xmmarcotte/marcotte-dev/internal/embedder"
	"github.com/xmmarcotte/marcotte-dev/internal/enhancer"
	"github.com/xmmarcotte/marcotte-dev/internal/reranker"
	"github.com/xmmarcotte/marcotte-dev/internal/storage"
	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// setupSearchBenchmark indexes n notes embedded with the local provider
func setupSearchBenchmark(b *testing.B, n int) (*storage.SQLiteStorage, *Searcher) {
	b.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = store.Close() })

	emb := embedder.NewLocalProvider(256)
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("note %d about retry policy for service %d and the cache layer", i, i%17)
	}
	vectors, err := emb.EmbedBatch(context.Background(), texts)
	if err != nil {
		b.Fatal(err)
	}
	records := make([]types.Record, n)
	for i := range records {
		records[i] = rec(fmt.Sprintf("n%04d", i), vectors[i], types.CategoryMemory, "bench")
		records[i].Text = texts[i]
	}
	if err := store.Upsert(context.Background(), records); err != nil {
		b.Fatal(err)
	}

	return store, NewSearcher(store, emb, reranker.NewTermReranker(), enhancer.New(8), DefaultOptions())
}

func BenchmarkSearch_Vector(b *testing.B) {
	_, s := setupSearchBenchmark(b, 1000)
	req := SearchRequest{Query: "retry policy", Limit: 10, Rerank: noRerank()}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Search(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearch_Reranked(b *testing.B) {
	_, s := setupSearchBenchmark(b, 1000)
	req := SearchRequest{Query: "retry policy", Limit: 10}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Search(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearch_Cached(b *testing.B) {
	_, s := setupSearchBenchmark(b, 1000)
	req := SearchRequest{Query: "retry policy", Limit: 10, UseCache: true}
	if _, err := s.Search(context.Background(), req); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Search(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}
