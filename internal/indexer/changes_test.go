package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("def foo(): pass"), Fingerprint("def foo(): pass"))
	assert.NotEqual(t, Fingerprint("def foo(): pass"), Fingerprint("def foo(): pass "))
	assert.Len(t, Fingerprint(""), 64)
}

func TestDetect_Partitions(t *testing.T) {
	tracked := map[string]string{
		"same.py":    Fingerprint("same"),
		"changed.py": Fingerprint("old"),
		"gone.py":    Fingerprint("gone"),
	}
	files := map[string]string{
		"same.py":    "same",
		"changed.py": "new",
		"new.py":     "new file",
	}

	tests := []struct {
		name     string
		mode     Mode
		manifest []string
		removed  []string
	}{
		{"full", ModeFull, nil, []string{"gone.py"}},
		{"additive", ModeAdditive, nil, nil},
		{"manifest keeps listed", ModeManifest, []string{"gone.py"}, nil},
		{"manifest removes unlisted", ModeManifest, []string{"same.py"}, []string{"gone.py"}},
		{"empty manifest", ModeManifest, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := Detect(files, tracked, tt.manifest, tt.mode)
			assert.Equal(t, []string{"same.py"}, cs.Unchanged)
			assert.Equal(t, []string{"new.py"}, cs.Added)
			assert.Equal(t, []string{"changed.py"}, cs.Modified)
			assert.Equal(t, tt.removed, cs.Removed)
			assert.Equal(t, []string{"new.py", "changed.py"}, cs.Work())
			assert.Empty(t, cs.Errors)
		})
	}
}

func TestDetect_EmptyInputIsNoop(t *testing.T) {
	tracked := map[string]string{"a.py": Fingerprint("a")}
	for _, mode := range []Mode{ModeFull, ModeAdditive, ModeManifest} {
		cs := Detect(map[string]string{}, tracked, []string{"b.py"}, mode)
		assert.True(t, cs.Empty(), mode.String())
	}
}

func TestDetect_Malformed(t *testing.T) {
	tracked := map[string]string{"../escape.py": Fingerprint("x"), "ok.py": Fingerprint("ok")}
	files := map[string]string{
		"":             "empty path",
		"../escape.py": "x",
		"bin.py":       "a\x00b",
		"latin1.txt":   "caf\xe9",
		"ok.py":        "ok",
	}

	cs := Detect(files, tracked, nil, ModeFull)
	require.Len(t, cs.Errors, 4)
	for _, fe := range cs.Errors {
		assert.ErrorIs(t, fe, types.ErrMalformedInput, fe.Path)
	}
	assert.Equal(t, []string{"ok.py"}, cs.Unchanged)
	assert.Empty(t, cs.Removed, "rejected files are not removals")
	assert.NotContains(t, cs.Hashes, "bin.py")
}

func TestValidateFile(t *testing.T) {
	assert.NoError(t, ValidateFile("pkg/a.go", "package a"))
	assert.NoError(t, ValidateFile("a/../b.go", "package b"))
	assert.Error(t, ValidateFile("a/../../b.go", "package b"))
	assert.Error(t, ValidateFile("  ", "x"))
	assert.Error(t, ValidateFile("a\x00.go", "x"))
}
