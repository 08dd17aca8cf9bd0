package chunker

import (
	"iter"
	"slices"
	"strings"

	"github.com/xmmarcotte/marcotte-dev/internal/parser"
	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

const (
	// MaxTokensPerChunk is the target maximum token count per chunk
	MaxTokensPerChunk = 1000

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4

	DefaultMaxChunkChars = MaxTokensPerChunk * TokensPerChar
	DefaultWindowLines   = 60
	DefaultOverlapRatio  = 0.1
)

// Strategy selects how structured files are cut
type Strategy string

const (
	// StrategyAST cuts Go and Python along top-level declarations
	StrategyAST Strategy = "ast"
	// StrategyMemory treats every file as plain text: one chunk when it
	// fits, overlapping windows otherwise
	StrategyMemory Strategy = "memory"
)

// Config controls chunk sizes
type Config struct {
	Strategy      Strategy
	MaxChunkChars int
	WindowLines   int
	OverlapRatio  float64
}

// DefaultConfig returns the default chunking configuration
func DefaultConfig() Config {
	return Config{
		Strategy:      StrategyAST,
		MaxChunkChars: DefaultMaxChunkChars,
		WindowLines:   DefaultWindowLines,
		OverlapRatio:  DefaultOverlapRatio,
	}
}

// Chunker splits file content into chunks for embedding
type Chunker struct {
	cfg Config
}

// New creates a new Chunker. Zero fields of cfg take their defaults.
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = def.MaxChunkChars
	}
	if cfg.WindowLines <= 0 {
		cfg.WindowLines = def.WindowLines
	}
	cfg.OverlapRatio = min(max(cfg.OverlapRatio, 0), 0.9)
	return &Chunker{cfg: cfg}
}

// Config returns the effective configuration
func (c *Chunker) Config() Config {
	return c.cfg
}

// Chunks returns the chunks of one file in source order. The sequence is
// finite and deterministic, and chunking never fails: content that cannot
// be parsed is cut into line windows. An empty language is detected from
// the path.
func (c *Chunker) Chunks(path, content, language string) iter.Seq[types.Chunk] {
	return func(yield func(types.Chunk) bool) {
		if strings.TrimSpace(content) == "" {
			return
		}
		if language == "" {
			language = DetectLanguage(path)
		}
		f := &file{lines: strings.Split(content, "\n"), cfg: c.cfg}

		var units []parser.Unit
		if c.cfg.Strategy == StrategyAST {
			switch language {
			case LangGo:
				units, _ = parser.NewGoParser().Parse([]byte(content))
			case LangPython:
				units = parser.ParsePython(content)
			case LangMarkdown, LangText:
				for _, ch := range f.paragraphs() {
					if !yield(ch) {
						return
					}
				}
				return
			}
		}

		if len(units) == 0 {
			for _, ch := range f.whole() {
				if !yield(ch) {
					return
				}
			}
			return
		}

		for _, u := range units {
			for _, ch := range f.unit(u) {
				if !yield(ch) {
					return
				}
			}
		}
	}
}

// ChunkAll collects Chunks into a slice
func (c *Chunker) ChunkAll(path, content, language string) []types.Chunk {
	return slices.Collect(c.Chunks(path, content, language))
}

// file holds the lines of one input. Line numbers are 1-based.
type file struct {
	lines []string
	cfg   Config
}

func (f *file) text(start, end int) string {
	return strings.Join(f.lines[start-1:end], "\n")
}

// size is the character count of lines start..end joined by newlines
func (f *file) size(start, end int) int {
	n := end - start
	for i := start; i <= end; i++ {
		n += len(f.lines[i-1])
	}
	return n
}

func (f *file) chunk(start, end int, symbol string, kind types.ChunkKind) (types.Chunk, bool) {
	// Trim blank edges so line ranges point at content.
	for start < end && strings.TrimSpace(f.lines[start-1]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(f.lines[end-1]) == "" {
		end--
	}
	text := f.text(start, end)
	if strings.TrimSpace(text) == "" {
		return types.Chunk{}, false
	}
	return types.Chunk{Text: text, StartLine: start, EndLine: end, Symbol: symbol, Kind: kind}, true
}

func (f *file) appendChunk(out []types.Chunk, start, end int, symbol string, kind types.ChunkKind) []types.Chunk {
	if ch, ok := f.chunk(start, end, symbol, kind); ok {
		out = append(out, ch)
	}
	return out
}

// whole emits the file as one chunk when it fits, windows otherwise
func (f *file) whole() []types.Chunk {
	end := len(f.lines)
	if f.size(1, end) <= f.cfg.MaxChunkChars {
		return f.appendChunk(nil, 1, end, "", types.ChunkFile)
	}
	return f.windows(1, end, "")
}

// windows cuts lines start..end into overlapping windows of at most
// WindowLines lines and MaxChunkChars characters. A single line longer than
// the ceiling becomes its own window.
func (f *file) windows(start, end int, symbol string) []types.Chunk {
	var out []types.Chunk
	for i := start; i <= end; {
		j := i
		size := 0
		for j <= end && j-i < f.cfg.WindowLines {
			add := len(f.lines[j-1])
			if j > i {
				add++
			}
			if j > i && size+add > f.cfg.MaxChunkChars {
				break
			}
			size += add
			j++
		}
		out = f.appendChunk(out, i, j-1, symbol, types.ChunkWindow)
		if j > end {
			break
		}
		next := j - int(float64(j-i)*f.cfg.OverlapRatio)
		if next <= i {
			next = i + 1
		}
		i = next
	}
	return out
}

// unit emits one declaration, split at its break lines when oversized
func (f *file) unit(u parser.Unit) []types.Chunk {
	if u.StartLine < 1 || u.EndLine > len(f.lines) || u.StartLine > u.EndLine {
		return nil
	}
	if f.size(u.StartLine, u.EndLine) <= f.cfg.MaxChunkChars {
		return f.appendChunk(nil, u.StartLine, u.EndLine, u.Name, u.Kind)
	}

	breaks := make([]int, 0, len(u.Breaks))
	for _, b := range u.Breaks {
		if b > u.StartLine && b <= u.EndLine {
			breaks = append(breaks, b)
		}
	}
	slices.Sort(breaks)
	breaks = slices.Compact(breaks)

	if len(breaks) == 0 {
		if u.Kind == types.ChunkFunction || u.Kind == types.ChunkMethod {
			// One statement: keep it whole.
			return f.appendChunk(nil, u.StartLine, u.EndLine, u.Name, u.Kind)
		}
		return f.windows(u.StartLine, u.EndLine, u.Name)
	}

	// Segments run from one break to the line before the next. The first
	// segment carries the header and the last one the closing lines.
	// Adjacent segments are packed greedily up to the ceiling.
	bounds := append([]int{u.StartLine}, breaks...)
	segEnd := func(k int) int {
		if k+1 < len(bounds) {
			return bounds[k+1] - 1
		}
		return u.EndLine
	}

	var out []types.Chunk
	curStart, curEnd := bounds[0], segEnd(0)
	for k := 1; k < len(bounds); k++ {
		if f.size(curStart, segEnd(k)) <= f.cfg.MaxChunkChars {
			curEnd = segEnd(k)
			continue
		}
		out = f.appendChunk(out, curStart, curEnd, u.Name, u.Kind)
		curStart, curEnd = bounds[k], segEnd(k)
	}
	return f.appendChunk(out, curStart, curEnd, u.Name, u.Kind)
}

// paragraphs packs blank-line separated paragraphs up to the ceiling. The
// symbol of a chunk is the nearest markdown heading above it.
func (f *file) paragraphs() []types.Chunk {
	type para struct {
		start, end int
		heading    string
	}
	var paras []para
	heading := ""
	for i := 1; i <= len(f.lines); {
		if strings.TrimSpace(f.lines[i-1]) == "" {
			i++
			continue
		}
		p := para{start: i}
		for i <= len(f.lines) && strings.TrimSpace(f.lines[i-1]) != "" {
			if h, ok := markdownHeading(f.lines[i-1]); ok && i == p.start {
				heading = h
			}
			i++
		}
		p.end = i - 1
		p.heading = heading
		paras = append(paras, p)
	}

	var out []types.Chunk
	flush := func(start, end int, symbol string) {
		if start == 0 {
			return
		}
		if f.size(start, end) > f.cfg.MaxChunkChars {
			out = append(out, f.windows(start, end, symbol)...)
			return
		}
		out = f.appendChunk(out, start, end, symbol, types.ChunkParagraph)
	}

	curStart, curEnd, curSymbol := 0, 0, ""
	for _, p := range paras {
		if curStart != 0 && f.size(curStart, p.end) <= f.cfg.MaxChunkChars {
			curEnd = p.end
			continue
		}
		flush(curStart, curEnd, curSymbol)
		curStart, curEnd, curSymbol = p.start, p.end, p.heading
	}
	flush(curStart, curEnd, curSymbol)
	return out
}

func markdownHeading(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " ")
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
	if title == "" {
		return "", false
	}
	return title, true
}
