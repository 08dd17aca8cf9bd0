package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xmmarcotte/marcotte-dev/internal/engine"
	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

func (a *app) storeCmd() *cobra.Command {
	var req engine.StoreRequest
	var category string

	cmd := &cobra.Command{
		Use:   "store <text>",
		Short: "Remember a note, decision or pattern",
		Long: `Store embeds text and writes it to the index. Use --category decision
for architectural decisions and --category pattern for coding patterns.
A single "-" reads the text from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = string(b)
			}
			c, err := types.ParseCategory(category)
			if err != nil {
				return err
			}
			req.Text = text
			req.Category = c

			e, err := a.openEngine()
			if err != nil {
				return err
			}
			rec, err := e.Store(cmd.Context(), req)
			if err != nil {
				return err
			}
			result := map[string]interface{}{
				"id":        rec.ID,
				"category":  string(rec.Category),
				"workspace": rec.Workspace,
				"tags":      rec.Tags,
			}
			return a.print(out(cmd), result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Stored %s %s in %s\n", rec.Category, rec.ID, rec.Workspace)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "memory", "memory, decision or pattern")
	cmd.Flags().StringVarP(&req.Workspace, "workspace", "w", "", "workspace (default from config)")
	cmd.Flags().StringVarP(&req.Language, "language", "l", "", "language of code in the text")
	cmd.Flags().StringSliceVarP(&req.Tags, "tag", "t", nil, "tag (repeatable)")
	cmd.Flags().StringVar(&req.SourcePath, "source", "", "file the note refers to")
	return cmd
}
