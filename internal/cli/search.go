package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xmmarcotte/marcotte-dev/internal/engine"
	"github.com/xmmarcotte/marcotte-dev/internal/searcher"
	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

func (a *app) searchCmd() *cobra.Command {
	var (
		workspace  string
		category   string
		language   string
		tags       []string
		sourcePath string
		since      string
		until      string
		limit      int
		candidates int
		noRerank   bool
		noEnhance  bool
		group      bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories, decisions, patterns and code",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := types.Filters{
				Workspace:  workspace,
				Language:   language,
				Tags:       tags,
				SourcePath: sourcePath,
			}
			if category != "" {
				c, err := types.ParseCategory(category)
				if err != nil {
					return err
				}
				filters.Category = c
			}
			var err error
			if filters.Since, err = parseTime(since); err != nil {
				return err
			}
			if filters.Until, err = parseTime(until); err != nil {
				return err
			}

			req := searcher.SearchRequest{
				Query:      strings.Join(args, " "),
				Filters:    filters,
				Limit:      limit,
				Candidates: candidates,
			}
			if noRerank {
				req.Rerank = boolPtr(false)
			}
			if noEnhance {
				req.Enhance = boolPtr(false)
			}

			e, err := a.openEngine()
			if err != nil {
				return err
			}
			resp, err := e.Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			view := engine.NewSearchView(resp, group)
			return a.print(out(cmd), view, searchText(view))
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "only search this workspace")
	cmd.Flags().StringVarP(&category, "category", "c", "", "only search one category (memory, decision, pattern, codebase)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "only search one language")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "only return records with this tag (repeatable)")
	cmd.Flags().StringVar(&sourcePath, "source", "", "only return records from this file")
	cmd.Flags().StringVar(&since, "since", "", "only return records written after this time (RFC 3339 or duration such as 24h)")
	cmd.Flags().StringVar(&until, "until", "", "only return records written before this time (RFC 3339)")
	cmd.Flags().IntVarP(&limit, "limit", "k", 0, "number of results (default from config)")
	cmd.Flags().IntVar(&candidates, "candidates", 0, "candidates fetched before reranking (default from config)")
	cmd.Flags().BoolVar(&noRerank, "no-rerank", false, "keep vector order")
	cmd.Flags().BoolVar(&noEnhance, "no-enhance", false, "embed the query as typed")
	cmd.Flags().BoolVar(&group, "group", false, "group results by category")
	return cmd
}

// parseTime accepts an RFC 3339 time or a duration counted back from now
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or a duration", s)
	}
	return time.Now().Add(-d), nil
}

func boolPtr(b bool) *bool {
	return &b
}
