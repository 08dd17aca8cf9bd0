package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

const goSource = `package store

import (
	"errors"
	"fmt"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("closed")

const (
	A = 1
	B = 2
)

// Store keeps things.
type Store struct {
	name string
	size int
}

// Open opens a store.
func Open(name string) (*Store, error) {
	if name == "" {
		return nil, fmt.Errorf("empty name")
	}
	return &Store{name: name}, nil
}

func (s *Store) Name() string {
	return s.name
}

func (l List[T]) Len() int { return 0 }
`

func TestGoParser_Parse(t *testing.T) {
	units, err := NewGoParser().Parse([]byte(goSource))
	require.NoError(t, err)
	require.Len(t, units, 6)

	assert.Equal(t, Unit{Name: "ErrClosed", Kind: types.ChunkBlock, StartLine: 8, EndLine: 9}, units[0])

	assert.Equal(t, "A, B", units[1].Name)
	assert.Equal(t, []int{12, 13}, units[1].Breaks)

	assert.Equal(t, "Store", units[2].Name)
	assert.Equal(t, types.ChunkTypeDecl, units[2].Kind)
	assert.Equal(t, 16, units[2].StartLine)
	assert.Equal(t, []int{18, 19}, units[2].Breaks)

	open := units[3]
	assert.Equal(t, "Open", open.Name)
	assert.Equal(t, types.ChunkFunction, open.Kind)
	assert.Equal(t, 22, open.StartLine, "doc comment belongs to the function")
	assert.Equal(t, 28, open.EndLine)
	assert.Equal(t, []int{24, 27}, open.Breaks)

	assert.Equal(t, "Store.Name", units[4].Name)
	assert.Equal(t, types.ChunkMethod, units[4].Kind)

	assert.Equal(t, "List.Len", units[5].Name)
}

func TestGoParser_SyntaxError(t *testing.T) {
	_, err := NewGoParser().Parse([]byte("package x\nfunc broken( {\n"))
	assert.Error(t, err)
}

const pySource = `"""Module docstring."""
import os
import sys


@decorator
@other(arg=1)
def handler(event,
            context):
    data = load(event)
    if data:
        return data
    return None


class Repo:
    """Stores rows."""

    def get(self, key):
        return self.rows[key]

    async def put(self, key, value):
        self.rows[key] = value


QUERY = """
def not_a_function():
    pass
"""

if __name__ == "__main__":
    handler(None, None)
`

func TestParsePython(t *testing.T) {
	units := ParsePython(pySource)
	require.Len(t, units, 4)

	header := units[0]
	assert.Equal(t, types.ChunkBlock, header.Kind)
	assert.Equal(t, 1, header.StartLine)
	assert.Equal(t, 3, header.EndLine)
	assert.Equal(t, []int{1, 2, 3}, header.Breaks)

	handler := units[1]
	assert.Equal(t, "handler", handler.Name)
	assert.Equal(t, types.ChunkFunction, handler.Kind)
	assert.Equal(t, 6, handler.StartLine, "decorators belong to the def")
	assert.Equal(t, 13, handler.EndLine)
	assert.Equal(t, []int{10, 11, 13}, handler.Breaks)

	repo := units[2]
	assert.Equal(t, "Repo", repo.Name)
	assert.Equal(t, types.ChunkClass, repo.Kind)
	assert.Equal(t, 16, repo.StartLine)
	assert.Equal(t, 23, repo.EndLine)
	assert.Equal(t, []int{17, 19, 22}, repo.Breaks)

	tail := units[3]
	assert.Equal(t, types.ChunkBlock, tail.Kind)
	assert.Equal(t, 26, tail.StartLine)
	assert.Equal(t, 32, tail.EndLine)
	assert.Equal(t, []int{26, 31}, tail.Breaks)
}

func TestParsePython_Empty(t *testing.T) {
	assert.Empty(t, ParsePython(""))
	assert.Empty(t, ParsePython("\n\n# only a comment\n"))
}
