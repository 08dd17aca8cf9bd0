package types

import (
	"errors"
	"strings"
)

// ChunkKind describes which rule produced a chunk
type ChunkKind string

const (
	ChunkFunction  ChunkKind = "function"
	ChunkMethod    ChunkKind = "method"
	ChunkClass     ChunkKind = "class"
	ChunkTypeDecl  ChunkKind = "type"
	ChunkBlock     ChunkKind = "block"
	ChunkWindow    ChunkKind = "window"
	ChunkParagraph ChunkKind = "paragraph"
	ChunkFile      ChunkKind = "file"
)

// Chunk is a contiguous span of a source file selected for embedding
type Chunk struct {
	Text      string
	StartLine int // 1-based, inclusive
	EndLine   int
	Symbol    string // enclosing symbol, empty when unknown
	Kind      ChunkKind
}

// Validate checks if the chunk is valid
func (c *Chunk) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return errors.New("chunk text cannot be empty")
	}

	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}

	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}

	return nil
}

// TokenCount estimates the number of tokens in the chunk.
// Uses a simple heuristic: characters / 4
func (c *Chunk) TokenCount() int {
	return len(c.Text) / 4
}
