package indexer

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xmmarcotte/marcotte-dev/internal/chunker"
)

// DefaultMaxFileBytes skips generated or vendored blobs during a walk
const DefaultMaxFileBytes = 1 << 20

// skipDirs are never descended into
var skipDirs = map[string]bool{
	"vendor":       true,
	"node_modules": true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"venv":         true,
}

// SkipDir reports whether CollectFiles leaves a directory with this name
// out: hidden directories always, dependency and build output directories
// unless IncludeVendor is set.
func SkipDir(name string, opts WalkOptions) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return !opts.IncludeVendor && skipDirs[name]
}

// WalkOptions controls CollectFiles
type WalkOptions struct {
	IncludeTests  bool // Whether to collect test files (default: true via DefaultWalkOptions)
	IncludeVendor bool // Whether to descend into vendor-like directories
	MaxFileBytes  int64
}

// DefaultWalkOptions returns the options used by the CLI
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{IncludeTests: true, MaxFileBytes: DefaultMaxFileBytes}
}

// CollectFiles reads every indexable file under root and returns a map of
// slash separated relative path to content. Hidden directories are skipped.
// It is the only place that touches the filesystem; the indexer itself
// works on the returned map.
func CollectFiles(root string, opts WalkOptions) (map[string]string, error) {
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	files := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if SkipDir(d.Name(), opts) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !chunker.IsIndexable(path) {
			return nil
		}
		if !opts.IncludeTests && IsTestFile(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > opts.MaxFileBytes {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})

	return files, err
}

// IsTestFile reports whether path follows a common test file convention
func IsTestFile(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "_test.go"):
		return true
	case strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"):
		return true
	case strings.HasSuffix(base, "_test.py"):
		return true
	case strings.Contains(base, ".test.") || strings.Contains(base, ".spec."):
		return true
	}
	return false
}
