package enhancer

import (
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/xmmarcotte/marcotte-dev/internal/chunker"
	"github.com/xmmarcotte/marcotte-dev/internal/tokenize"
	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// DefaultMaxExpansions caps the terms appended to one query
const DefaultMaxExpansions = 8

// Hints are filters suggested by the query text
type Hints struct {
	Language string
	Category types.Category
	Tags     []string
}

// IsZero reports whether no hint was found
func (h Hints) IsZero() bool {
	return h.Language == "" && h.Category == "" && len(h.Tags) == 0
}

// Apply copies hints into filters the caller left unset
func (h Hints) Apply(f *types.Filters) {
	if f.Language == "" {
		f.Language = h.Language
	}
	if f.Category == "" {
		f.Category = h.Category
	}
	if len(f.Tags) == 0 && len(h.Tags) > 0 {
		f.Tags = slices.Clone(h.Tags)
	}
}

// Result is an enhanced query
type Result struct {
	Original   string
	Query      string // Original followed by Expansions
	Expansions []string
	Hints      Hints
	IsCode     bool
}

// Enhancer expands raw queries with abbreviations, synonyms and identifier
// parts. It holds no mutable state and is safe for concurrent use.
type Enhancer struct {
	maxExpansions int
	related       map[string][]string
	languages     map[string]string
}

// New creates an Enhancer. maxExpansions <= 0 selects the default.
func New(maxExpansions int) *Enhancer {
	if maxExpansions <= 0 {
		maxExpansions = DefaultMaxExpansions
	}
	e := &Enhancer{
		maxExpansions: maxExpansions,
		related:       buildRelated(),
		languages:     make(map[string]string),
	}
	for _, name := range chunker.LanguageNames() {
		e.languages[name] = name
	}
	for alias, name := range languageAliases {
		e.languages[alias] = name
	}
	return e
}

// buildRelated merges both directions of the abbreviation table with the
// synonym table. Order within each entry is fixed so expansion is
// deterministic.
func buildRelated() map[string][]string {
	related := make(map[string][]string)
	add := func(from, to string) {
		if from != to && !slices.Contains(related[from], to) {
			related[from] = append(related[from], to)
		}
	}

	shorts := make([]string, 0, len(abbreviations))
	for short := range abbreviations {
		shorts = append(shorts, short)
	}
	slices.Sort(shorts)
	for _, short := range shorts {
		for _, long := range abbreviations[short] {
			add(short, long)
			add(long, short)
		}
	}

	terms := make([]string, 0, len(synonyms))
	for term := range synonyms {
		terms = append(terms, term)
	}
	slices.Sort(terms)
	for _, term := range terms {
		syns := synonyms[term]
		for _, syn := range syns[:min(len(syns), maxSynonyms)] {
			add(term, syn)
		}
	}
	return related
}

var codePattern = regexp.MustCompile(`\w+\(\)|\b(def|class|func)\s+\w+`)

// Enhance expands raw. The original text is always the prefix of
// Result.Query and expansions never repeat a word already in the query.
func (e *Enhancer) Enhance(raw string) Result {
	res := Result{Original: raw, Query: raw}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return res
	}

	words := tokenize.Words(trimmed)
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}

	// Identifier parts come first, then related terms breadth-first.
	var queue []string
	queue = append(queue, words...)
	var expansions []string
	push := func(term string) bool {
		if seen[term] {
			return true
		}
		seen[term] = true
		expansions = append(expansions, term)
		queue = append(queue, term)
		return len(expansions) < e.maxExpansions
	}

	for _, f := range tokenize.Fields(trimmed) {
		if tokenize.IsCompoundIdentifier(f) {
			res.IsCode = true
			for _, part := range tokenize.SplitIdentifier(f) {
				if !push(part) {
					return e.finish(res, expansions, words, trimmed)
				}
			}
		}
	}
	if codePattern.MatchString(trimmed) {
		res.IsCode = true
	}

	for i := 0; i < len(queue); i++ {
		for _, rel := range e.related[queue[i]] {
			if !push(rel) {
				return e.finish(res, expansions, words, trimmed)
			}
		}
	}
	return e.finish(res, expansions, words, trimmed)
}

func (e *Enhancer) finish(res Result, expansions, words []string, trimmed string) Result {
	res.Expansions = expansions
	if len(expansions) > 0 {
		res.Query = res.Original + " " + strings.Join(expansions, " ")
	}
	res.Hints = e.hints(words, trimmed)
	return res
}

func (e *Enhancer) hints(words []string, trimmed string) Hints {
	var h Hints

	// An explicit extension wins over a language name.
	for _, tok := range strings.Fields(trimmed) {
		tok = strings.Trim(tok, "\"'`,;:()[]{}")
		if ext := path.Ext(tok); len(ext) > 1 {
			if lang := chunker.LanguageForExtension(ext); lang != "" {
				h.Language = lang
				break
			}
		}
	}
	for _, w := range words {
		if h.Language == "" {
			h.Language = e.languages[w]
		}
		if h.Category == "" {
			h.Category = categoryKeywords[w]
		}
	}

	for _, topic := range topicTags {
		if slices.ContainsFunc(topic.keywords, func(k string) bool { return slices.Contains(words, k) }) {
			h.Tags = []string{topic.tag}
			break
		}
	}
	return h
}
