package chunker

import (
	"path/filepath"
	"strings"
)

// Language names used throughout the index
const (
	LangGo       = "go"
	LangPython   = "python"
	LangMarkdown = "markdown"
	LangText     = "text"
)

var extLanguages = map[string]string{
	".py":       LangPython,
	".js":       "javascript",
	".jsx":      "javascript",
	".ts":       "typescript",
	".tsx":      "typescript",
	".go":       LangGo,
	".rs":       "rust",
	".java":     "java",
	".c":        "c",
	".h":        "c",
	".cpp":      "cpp",
	".hpp":      "cpp",
	".cs":       "csharp",
	".rb":       "ruby",
	".php":      "php",
	".swift":    "swift",
	".kt":       "kotlin",
	".scala":    "scala",
	".clj":      "clojure",
	".sh":       "shell",
	".bash":     "shell",
	".zsh":      "shell",
	".lua":      "lua",
	".r":        "r",
	".m":        "objc",
	".mm":       "objc",
	".sql":      "sql",
	".yaml":     "yaml",
	".yml":      "yaml",
	".json":     "json",
	".toml":     "toml",
	".md":       LangMarkdown,
	".markdown": LangMarkdown,
	".txt":      LangText,
	".rst":      LangText,
}

// DetectLanguage maps a file path to a language name by extension. Unknown
// extensions yield the empty string.
func DetectLanguage(path string) string {
	return extLanguages[strings.ToLower(filepath.Ext(path))]
}

// IsIndexable reports whether files with this path's extension are indexed
// by directory walks.
func IsIndexable(path string) bool {
	return DetectLanguage(path) != ""
}

// LanguageNames returns every known language name. Used to recognize
// language hints in queries.
func LanguageNames() []string {
	seen := make(map[string]bool)
	var out []string
	for _, lang := range extLanguages {
		if !seen[lang] {
			seen[lang] = true
			out = append(out, lang)
		}
	}
	return out
}

// LanguageForExtension returns the language of a bare extension such as
// "py" or ".go".
func LanguageForExtension(ext string) string {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return extLanguages[strings.ToLower(ext)]
}
