package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xmmarcotte/marcotte-dev/internal/indexer"
	"github.com/xmmarcotte/marcotte-dev/internal/watcher"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		flags    walkFlags
		debounce time.Duration
		resync   string
		initial  bool
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Keep a workspace in sync with a directory",
		Long: `Watch indexes dir and then re-indexes changed files as they are saved.
Deleted files are removed from the workspace. --resync schedules periodic
full index runs with a cron expression such as "@every 1h" or "0 3 * * *".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root, ws, err := flags.resolveRoot(args)
			if err != nil {
				return err
			}
			e, err := a.openEngine()
			if err != nil {
				return err
			}

			w, err := watcher.New(e, watcher.Config{
				Root:        root,
				Workspace:   ws,
				Debounce:    debounce,
				Walk:        flags.options(),
				Resync:      resync,
				InitialSync: initial,
				OnSync: func(_ bool, stats *indexer.Statistics, _ error) {
					if stats != nil && a.output != "text" {
						_ = a.print(out(cmd), stats, nil)
					}
				},
				Logger: a.log.Zerolog(),
			})
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "quiet period before changes are indexed")
	cmd.Flags().StringVar(&resync, "resync", "", "cron schedule for full resyncs")
	cmd.Flags().BoolVar(&initial, "initial", true, "index the directory before watching")
	return cmd
}
