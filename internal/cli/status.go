package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xmmarcotte/marcotte-dev/internal/engine"
)

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [workspace]",
		Short: "Show the index state of a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ws string
			if len(args) > 0 {
				ws = args[0]
			}
			e, err := a.openEngine()
			if err != nil {
				return err
			}
			st := e.Status(cmd.Context(), ws)
			return a.print(out(cmd), st, statusText([]engine.WorkspaceStatus{st}))
		},
	}
}

func (a *app) workspacesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "workspaces",
		Aliases: []string{"ls"},
		Short:   "List workspaces",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.openEngine()
			if err != nil {
				return err
			}
			list, err := e.ListWorkspaces(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(out(cmd), list, statusText(list))
		},
	}
}

func (a *app) forgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <id>...",
		Short: "Delete records by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEngine()
			if err != nil {
				return err
			}
			n, err := e.Forget(cmd.Context(), args)
			if err != nil {
				return err
			}
			return a.print(out(cmd), map[string]int{"deleted": n}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Deleted %d record(s)\n", n)
				return err
			})
		},
	}
}
