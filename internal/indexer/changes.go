package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// Mode controls whether Detect derives removals
type Mode int

const (
	// ModeFull treats the input as the complete file set of the workspace.
	ModeFull Mode = iota
	// ModeAdditive never removes anything.
	ModeAdditive
	// ModeManifest removes tracked paths missing from the manifest.
	ModeManifest
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeAdditive:
		return "additive"
	case ModeManifest:
		return "manifest"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ChangeSet is the plan produced by Detect. Path lists are sorted.
type ChangeSet struct {
	Unchanged []string
	Added     []string
	Modified  []string
	Removed   []string

	// Hashes holds the fingerprint of every accepted input file
	Hashes map[string]string

	// Errors lists rejected input files
	Errors []*types.FileError
}

// Work returns the paths that need embedding, added first
func (c *ChangeSet) Work() []string {
	out := make([]string, 0, len(c.Added)+len(c.Modified))
	out = append(out, c.Added...)
	return append(out, c.Modified...)
}

// Empty reports whether the change set requires no writes
func (c *ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Removed) == 0
}

// Fingerprint computes the SHA-256 hex digest of file content. It detects
// changes; it is not used for anything security sensitive.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ValidateFile rejects paths and contents the index cannot hold
func ValidateFile(p, content string) error {
	switch {
	case strings.TrimSpace(p) == "":
		return fmt.Errorf("%w: empty path", types.ErrMalformedInput)
	case strings.ContainsRune(p, 0):
		return fmt.Errorf("%w: NUL byte in path", types.ErrMalformedInput)
	case escapesRoot(p):
		return fmt.Errorf("%w: path escapes the workspace", types.ErrMalformedInput)
	case !utf8.ValidString(content):
		return fmt.Errorf("%w: content is not valid UTF-8", types.ErrMalformedInput)
	case strings.ContainsRune(content, 0):
		return fmt.Errorf("%w: content contains NUL bytes", types.ErrMalformedInput)
	}
	return nil
}

func escapesRoot(p string) bool {
	clean := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	return clean == ".." || strings.HasPrefix(clean, "../")
}

// Detect partitions files against the tracked fingerprints. manifest is
// only consulted in ModeManifest and lists every path that still exists.
// An empty files map, or an empty manifest, never yields removals.
func Detect(files map[string]string, tracked map[string]string, manifest []string, mode Mode) *ChangeSet {
	cs := &ChangeSet{Hashes: make(map[string]string, len(files))}
	if len(files) == 0 {
		return cs
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	for _, p := range paths {
		content := files[p]
		if err := ValidateFile(p, content); err != nil {
			cs.Errors = append(cs.Errors, &types.FileError{Path: p, Err: err})
			continue
		}

		hash := Fingerprint(content)
		cs.Hashes[p] = hash
		old, ok := tracked[p]
		switch {
		case !ok:
			cs.Added = append(cs.Added, p)
		case old == hash:
			cs.Unchanged = append(cs.Unchanged, p)
		default:
			cs.Modified = append(cs.Modified, p)
		}
	}

	var keep map[string]bool
	switch mode {
	case ModeFull:
		keep = make(map[string]bool, len(files))
		for p := range files {
			keep[p] = true
		}
	case ModeManifest:
		if len(manifest) == 0 {
			return cs
		}
		keep = make(map[string]bool, len(files)+len(manifest))
		for p := range files {
			keep[p] = true
		}
		for _, p := range manifest {
			keep[p] = true
		}
	default:
		return cs
	}

	for p := range tracked {
		if !keep[p] {
			cs.Removed = append(cs.Removed, p)
		}
	}
	slices.Sort(cs.Removed)
	return cs
}
