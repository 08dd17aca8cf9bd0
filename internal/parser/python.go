package parser

import (
	"strings"

	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// ParsePython outlines Python source by indentation. Every top-level def,
// async def and class (with its decorators) becomes a unit; runs of other
// top-level statements are grouped into block units. Breaks are the lines
// at the first indentation level of a unit's body.
//
// The outline tolerates syntax errors: it never fails.
func ParsePython(src string) []Unit {
	lines := strings.Split(src, "\n")
	starts := topLevelStarts(lines)

	var units []Unit
	var block *Unit
	flushBlock := func() {
		if block != nil {
			units = append(units, *block)
			block = nil
		}
	}

	for i := 0; i < len(starts); i++ {
		start := starts[i]
		end := len(lines)
		if i+1 < len(starts) {
			end = starts[i+1] - 1
		}
		end = lastContentLine(lines, start, end)

		header := firstCodeLine(lines, start, end)
		name, kind, isDef := pythonDef(strings.TrimSpace(lines[header-1]))
		if !isDef {
			if block == nil {
				block = &Unit{Kind: types.ChunkBlock, StartLine: start}
			}
			block.EndLine = end
			block.Breaks = append(block.Breaks, start)
			continue
		}

		flushBlock()
		units = append(units, Unit{
			Name:      name,
			Kind:      kind,
			StartLine: start,
			EndLine:   end,
			Breaks:    bodyBreaks(lines, header, end),
		})
	}
	flushBlock()
	return units
}

// topLevelStarts returns the 1-based lines where a top-level statement
// begins. Decorators attach to the def or class below them, and lines inside
// triple-quoted strings or open brackets are continuation lines.
func topLevelStarts(lines []string) []int {
	var starts []int
	inString := ""
	depth := 0
	pendingDecorator := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		continuation := inString != "" || depth > 0
		inString, depth = scanPython(line, inString, depth)

		if continuation || trimmed == "" || indentOf(line) > 0 {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		if pendingDecorator {
			pendingDecorator = strings.HasPrefix(trimmed, "@")
			continue
		}
		starts = append(starts, i+1)
		pendingDecorator = strings.HasPrefix(trimmed, "@")
	}
	return starts
}

// scanPython tracks open triple-quoted strings and bracket depth across a
// line. Single-quoted strings and comments are skipped.
func scanPython(line, inString string, depth int) (string, int) {
	for i := 0; i < len(line); i++ {
		if inString != "" {
			if strings.HasPrefix(line[i:], inString) {
				i += len(inString) - 1
				inString = ""
			}
			continue
		}
		switch c := line[i]; c {
		case '#':
			return inString, depth
		case '"', '\'':
			triple := strings.Repeat(string(c), 3)
			if strings.HasPrefix(line[i:], triple) {
				inString = triple
				i += 2
				continue
			}
			if j := strings.IndexByte(line[i+1:], c); j >= 0 {
				i += j + 1
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return inString, depth
}

func pythonDef(line string) (string, types.ChunkKind, bool) {
	for _, p := range []struct {
		prefix string
		kind   types.ChunkKind
	}{
		{"async def ", types.ChunkFunction},
		{"def ", types.ChunkFunction},
		{"class ", types.ChunkClass},
	} {
		if rest, ok := strings.CutPrefix(line, p.prefix); ok {
			name := strings.TrimSpace(rest)
			if i := strings.IndexAny(name, "(:"); i >= 0 {
				name = name[:i]
			}
			return strings.TrimSpace(name), p.kind, true
		}
	}
	return "", "", false
}

// bodyBreaks returns lines at the body's first indentation level after the
// header line.
func bodyBreaks(lines []string, header, end int) []int {
	bodyIndent := -1
	var breaks []int
	// A signature may span several lines.
	inString, depth := scanPython(lines[header-1], "", 0)
	for n := header + 1; n <= end; n++ {
		line := lines[n-1]
		continuation := inString != "" || depth > 0
		inString, depth = scanPython(line, inString, depth)
		trimmed := strings.TrimSpace(line)
		if continuation || trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		ind := indentOf(line)
		if bodyIndent < 0 {
			bodyIndent = ind
		}
		if ind == bodyIndent {
			breaks = append(breaks, n)
		}
	}
	return breaks
}

func firstCodeLine(lines []string, start, end int) int {
	for n := start; n <= end; n++ {
		if !strings.HasPrefix(strings.TrimSpace(lines[n-1]), "@") {
			return n
		}
	}
	return start
}

func lastContentLine(lines []string, start, end int) int {
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return end
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}
