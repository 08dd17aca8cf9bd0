package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/xmmarcotte/marcotte-dev/internal/engine"
	"github.com/xmmarcotte/marcotte-dev/internal/indexer"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

// print writes v in the selected format. Text output uses text when it is
// set and YAML otherwise.
func (a *app) print(w io.Writer, v interface{}, text func(io.Writer) error) error {
	switch a.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		return writeYAML(w, v)
	default:
		if text != nil {
			return text(w)
		}
		return writeYAML(w, v)
	}
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// searchText renders search results for a terminal
func searchText(v engine.SearchView) func(io.Writer) error {
	return func(w io.Writer) error {
		if v.Degraded {
			fmt.Fprintln(w, warnStyle.Render("reranking unavailable: "+v.DegradedReason))
		}
		if len(v.Expansions) > 0 {
			fmt.Fprintln(w, dimStyle.Render("expanded: "+strings.Join(v.Expansions, ", ")))
		}

		if len(v.Groups) > 0 {
			for _, g := range v.Groups {
				fmt.Fprintln(w, headerStyle.Render(strings.ToUpper(g.Category)))
				for _, r := range g.Results {
					writeResult(w, r)
				}
			}
			return nil
		}

		if len(v.Results) == 0 {
			fmt.Fprintln(w, "No results.")
			return nil
		}
		for _, r := range v.Results {
			writeResult(w, r)
		}
		return nil
	}
}

func writeResult(w io.Writer, r engine.ResultView) {
	title := fmt.Sprintf("%d. [%s] %.3f", r.Rank, r.Category, r.Score)
	if r.SourcePath != "" {
		loc := r.SourcePath
		if r.StartLine > 0 {
			loc = fmt.Sprintf("%s:%d-%d", r.SourcePath, r.StartLine, r.EndLine)
		}
		title += " " + loc
	}
	if r.Symbol != "" {
		title += " " + r.Symbol
	}
	fmt.Fprintln(w, headerStyle.Render(title))
	fmt.Fprintln(w, dimStyle.Render("id: "+r.ID+"  workspace: "+r.Workspace))
	fmt.Fprintln(w, indent(snippet(r.Text, 12), "    "))
	fmt.Fprintln(w)
}

// snippet keeps the first n lines of text
func snippet(text string, n int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > n {
		lines = append(lines[:n], "...")
	}
	return strings.Join(lines, "\n")
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}

// statsText renders index statistics
func statsText(s *indexer.Statistics) func(io.Writer) error {
	return func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Workspace:\t%s\n", s.Workspace)
		fmt.Fprintf(tw, "Mode:\t%s\n", s.Mode)
		fmt.Fprintf(tw, "Files processed:\t%d\n", s.FilesProcessed)
		fmt.Fprintf(tw, "Files unchanged:\t%d\n", s.FilesUnchanged)
		fmt.Fprintf(tw, "Files removed:\t%d\n", s.FilesRemoved)
		fmt.Fprintf(tw, "Files failed:\t%d\n", s.FilesFailed)
		fmt.Fprintf(tw, "Chunks written:\t%d\n", s.ChunksWritten)
		fmt.Fprintf(tw, "Languages:\t%s\n", strings.Join(s.LanguagesSeen, ", "))
		fmt.Fprintf(tw, "Duration:\t%s\n", s.Duration.Round(time.Millisecond))
		if err := tw.Flush(); err != nil {
			return err
		}
		for _, msg := range s.ErrorMessages {
			fmt.Fprintln(w, warnStyle.Render("error: ")+msg)
		}
		return nil
	}
}

// statusText renders workspace statuses as a table
func statusText(list []engine.WorkspaceStatus) func(io.Writer) error {
	return func(w io.Writer) error {
		if len(list) == 0 {
			fmt.Fprintln(w, "No workspaces.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "WORKSPACE\tFILES\tCHUNKS\tRECORDS\tLAST UPDATE\tSTALE\tHEALTHY")
		for _, st := range list {
			last := "never"
			if !st.LastUpdate.IsZero() {
				last = st.LastUpdate.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%v\t%v\n",
				st.Workspace, st.TrackedFileCount, st.ChunkCount, st.RecordCount, last, st.Stale, st.Healthy)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		for _, st := range list {
			if st.LastError != "" {
				fmt.Fprintln(w, warnStyle.Render(st.Workspace+": ")+st.LastError)
			}
		}
		return nil
	}
}
