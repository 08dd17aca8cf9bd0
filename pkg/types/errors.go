package types

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the retrieval engine. Callers match them with
// errors.Is; component packages wrap them with their own context.
var (
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	ErrRerankUnavailable    = errors.New("rerank unavailable")
	ErrIndexWriteFailed     = errors.New("index write failed")
	ErrMalformedInput       = errors.New("malformed input")
	ErrWorkspaceLocked      = errors.New("workspace is locked by another index or update")
	ErrNotFound             = errors.New("not found")
)

// Record validation errors
var (
	ErrEmptyText        = fmt.Errorf("%w: text cannot be empty", ErrMalformedInput)
	ErrEmptyWorkspace   = fmt.Errorf("%w: workspace is required", ErrMalformedInput)
	ErrInvalidCategory  = fmt.Errorf("%w: unknown category", ErrMalformedInput)
	ErrEmptyVector      = fmt.Errorf("%w: vector cannot be empty", ErrMalformedInput)
	ErrInvalidLineRange = fmt.Errorf("%w: invalid line range", ErrMalformedInput)
	ErrInvalidTimeRange = fmt.Errorf("%w: since is after until", ErrMalformedInput)
)

// FileError records a failure for a single input file. Index and update
// accumulate them instead of aborting the batch.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
