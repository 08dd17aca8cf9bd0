// Package embedder turns text into fixed-dimension vectors.
//
// Three providers implement Embedder:
//   - jina: Jina AI embeddings API over HTTP
//   - openai: OpenAI embeddings through the openai-go SDK
//   - local: an offline hashed bag-of-words embedder with no model files
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "jina",
//	    APIKey:    os.Getenv("JINA_API_KEY"),
//	    CacheSize: 10000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	vec, err := emb.Embed(ctx, "func ParseFile(path string) error { ... }")
//
// # Batch Processing
//
// EmbedBatch returns vectors in input order and is equivalent to calling
// Embed once per text. EmbedAll splits long inputs into provider-sized
// batches:
//
//	vectors, err := embedder.EmbedAll(ctx, emb, texts, 50)
//
// # Caching
//
// WithCache wraps any provider with an LRU keyed by provider, model and
// text. Only cache misses reach the provider, including inside a batch.
//
// # Error Handling
//
// Remote providers retry transient failures with exponential backoff.
// Client errors other than 429 are permanent and are not retried. Every
// provider failure wraps types.ErrEmbeddingUnavailable:
//
//	_, err := emb.Embed(ctx, text)
//	if errors.Is(err, types.ErrEmbeddingUnavailable) {
//	    // provider down, search cannot proceed
//	}
package embedder
