// Package types provides the domain types shared by every component of the
// retrieval engine.
//
// # Records
//
// A Record is one entry of the unified vector index: a note, an
// architectural decision, a coding pattern, or a chunk of source code.
// The Category is fixed at write time and is never inferred on read:
//
//	rec := types.Record{
//	    Text:      "we retry db connections three times",
//	    Category:  types.CategoryDecision,
//	    Workspace: "billing",
//	    Tags:      types.ParseTags("database, retry"),
//	}
//
// Codebase records additionally carry SourcePath and ContentHash. Within a
// workspace the set of records for one SourcePath is always replaced as a
// whole.
//
// # Filters
//
// Filters are index-level predicates. Vector index implementations apply
// them before selecting the nearest candidates, never after:
//
//	f := types.Filters{Workspace: "billing", Category: types.CategoryDecision}
//
// # Errors
//
// The error kinds (ErrEmbeddingUnavailable, ErrRerankUnavailable,
// ErrIndexWriteFailed, ErrMalformedInput, ErrWorkspaceLocked,
// ErrRetrievalUnavailable) are sentinels matched with errors.Is. Per-file
// failures during indexing are reported as *FileError values.
package types
