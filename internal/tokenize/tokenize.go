// Package tokenize splits free text and source identifiers into lower-case
// terms. It is shared by the local embedder, the query enhancer and the
// term reranker so all three agree on what a term is.
package tokenize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKC normalization and Unicode case folding.
func Normalize(s string) string {
	// Casers are stateful and cannot be shared between goroutines.
	return cases.Fold().String(norm.NFKC.String(s))
}

// Fields splits s on anything that is not a letter, digit or underscore
// without changing case. Identifiers such as parseHTTPRequest survive intact.
func Fields(s string) []string {
	return strings.FieldsFunc(norm.NFKC.String(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// Words returns the normalized terms of s. Identifiers are kept whole and
// underscores are dropped from their edges.
func Words(s string) []string {
	fields := Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(Normalize(f), "_")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Terms returns Words(s) followed by the parts of every compound identifier,
// so "dbConn" yields "dbconn", "db" and "conn".
func Terms(s string) []string {
	fields := Fields(s)
	out := make([]string, 0, len(fields)*2)
	for _, f := range fields {
		whole := strings.Trim(Normalize(f), "_")
		if whole == "" {
			continue
		}
		out = append(out, whole)
		parts := SplitIdentifier(f)
		if len(parts) > 1 {
			out = append(out, parts...)
		}
	}
	return out
}

// SplitIdentifier breaks camelCase, PascalCase, snake_case and kebab-case
// identifiers into lower-case parts. Acronym runs stay together:
// "parseHTTPRequest" -> parse, http, request.
func SplitIdentifier(s string) []string {
	var parts []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, Normalize(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			flush()
			continue
		case unicode.IsUpper(r) && len(cur) > 0:
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return parts
}

// IsCompoundIdentifier reports whether s mixes case or contains an
// underscore between letters.
func IsCompoundIdentifier(s string) bool {
	return len(SplitIdentifier(s)) > 1 && !strings.ContainsAny(s, " \t\n")
}
