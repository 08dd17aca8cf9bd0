package engine

import (
	"regexp"
	"strings"

	"github.com/xmmarcotte/marcotte-dev/internal/tokenize"
)

var (
	nonWorkspaceChars = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)
	hyphenRuns        = regexp.MustCompile(`-{2,}`)
)

// NormalizeWorkspace folds a workspace name to its canonical form:
// NFKC, case folded, anything other than letters, digits, '_' and '-'
// replaced by '-', hyphen runs collapsed and edge hyphens trimmed.
// "My Project!" becomes "my-project".
func NormalizeWorkspace(name string) string {
	n := tokenize.Normalize(strings.TrimSpace(name))
	n = nonWorkspaceChars.ReplaceAllString(n, "-")
	n = hyphenRuns.ReplaceAllString(n, "-")
	return strings.Trim(n, "-")
}
