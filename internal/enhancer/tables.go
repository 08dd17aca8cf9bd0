package enhancer

import "github.com/xmmarcotte/marcotte-dev/pkg/types"

// abbreviations maps a short form to its long forms. The table is applied in
// both directions.
var abbreviations = map[string][]string{
	"db":     {"database"},
	"auth":   {"authentication"},
	"repo":   {"repository"},
	"config": {"configuration"},
	"util":   {"utility"},
	"impl":   {"implementation"},
	"mgr":    {"manager"},
	"svc":    {"service"},
	"msg":    {"message"},
	"req":    {"request"},
	"res":    {"response"},
	"ctx":    {"context"},
	"env":    {"environment"},
	"init":   {"initialize"},
	"conn":   {"connection"},
	"async":  {"asynchronous"},
	"fn":     {"function"},
	"func":   {"function"},
	"args":   {"arguments"},
	"err":    {"error"},
}

// synonyms lists related terms in preference order
var synonyms = map[string][]string{
	"auth":     {"authentication", "login", "authorize"},
	"database": {"db", "storage", "datastore"},
	"api":      {"endpoint", "route", "handler"},
	"error":    {"exception", "failure", "issue"},
	"config":   {"configuration", "settings", "options"},
	"test":     {"testing", "unittest", "spec"},
	"async":    {"asynchronous", "concurrent", "parallel"},
	"cache":    {"caching", "memoize", "store"},
}

// maxSynonyms bounds synonyms taken per term
const maxSynonyms = 2

var categoryKeywords = map[string]types.Category{
	"decision":   types.CategoryDecision,
	"decisions":  types.CategoryDecision,
	"adr":        types.CategoryDecision,
	"pattern":    types.CategoryPattern,
	"patterns":   types.CategoryPattern,
	"convention": types.CategoryPattern,
	"note":       types.CategoryMemory,
	"notes":      types.CategoryMemory,
	"memory":     types.CategoryMemory,
	"memories":   types.CategoryMemory,
	"codebase":   types.CategoryCodebase,
	"code":       types.CategoryCodebase,
}

// topicTags are checked in order; the first topic with a keyword present
// becomes the tag hint.
var topicTags = []struct {
	tag      string
	keywords []string
}{
	{"test", []string{"test", "tests", "testing", "unittest"}},
	{"api", []string{"api", "endpoint", "route"}},
	{"database", []string{"database", "db", "query"}},
	{"authentication", []string{"auth", "authentication", "login"}},
}

// languageAliases maps query words to language names on top of the names
// the chunker knows.
var languageAliases = map[string]string{
	"golang": "go",
	"py":     "python",
	"js":     "javascript",
	"ts":     "typescript",
}
