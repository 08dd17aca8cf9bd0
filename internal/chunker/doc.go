// Package chunker divides file content into chunks for embedding and search.
//
// With the "ast" strategy, Go and Python files are cut at top-level
// declarations so each function, method, class or type becomes one chunk.
// A declaration larger than the size ceiling is split only at statement
// boundaries reported by the parser. Markdown and plain text are packed
// paragraph by paragraph. Everything else, and any file that fails to
// parse, is emitted whole when it fits and as overlapping line windows
// otherwise.
//
// The "memory" strategy skips structure entirely and applies the whole
// file or window rule to every input.
//
// # Basic Usage
//
//	c := chunker.New(chunker.DefaultConfig())
//	for chunk := range c.Chunks("service.go", content, "") {
//	    fmt.Printf("%s %s lines %d-%d\n",
//	        chunk.Kind, chunk.Symbol, chunk.StartLine, chunk.EndLine)
//	}
//
// Chunking is deterministic: the same content and configuration always
// produce the same chunks, which keeps record identifiers stable across
// re-indexing.
package chunker
