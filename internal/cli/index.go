package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/xmmarcotte/marcotte-dev/internal/indexer"
)

type walkFlags struct {
	workspace     string
	includeTests  bool
	includeVendor bool
}

func (f *walkFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.workspace, "workspace", "w", "", "workspace name (default is the directory name)")
	cmd.Flags().BoolVar(&f.includeTests, "include-tests", true, "index test files")
	cmd.Flags().BoolVar(&f.includeVendor, "include-vendor", false, "index vendor and dependency directories")
}

func (f *walkFlags) options() indexer.WalkOptions {
	opts := indexer.DefaultWalkOptions()
	opts.IncludeTests = f.includeTests
	opts.IncludeVendor = f.includeVendor
	return opts
}

// resolveRoot returns the absolute root directory and the workspace name
func (f *walkFlags) resolveRoot(args []string) (string, string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", "", err
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("%s is not a directory", root)
	}
	ws := f.workspace
	if ws == "" {
		ws = filepath.Base(root)
	}
	return root, ws, nil
}

func (a *app) indexCmd() *cobra.Command {
	var flags walkFlags

	cmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Index a directory as the complete file set of a workspace",
		Long: `Index walks dir (default: the current directory) and makes the
workspace match it exactly. Unchanged files are skipped by content hash and
tracked files that no longer exist are removed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, ws, err := flags.resolveRoot(args)
			if err != nil {
				return err
			}
			files, err := indexer.CollectFiles(root, flags.options())
			if err != nil {
				return fmt.Errorf("failed to collect files: %w", err)
			}
			e, err := a.openEngine()
			if err != nil {
				return err
			}
			stats, err := e.Index(cmd.Context(), ws, files)
			return a.printStats(cmd, stats, err)
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) updateCmd() *cobra.Command {
	var (
		flags walkFlags
		prune bool
	)

	cmd := &cobra.Command{
		Use:   "update [dir] [file...]",
		Short: "Re-index changed files of a workspace",
		Long: `Update re-indexes the files that changed since the last run. With file
arguments only those files (relative to dir) are considered. Nothing is
removed unless --prune is given, in which case the current directory
listing is sent as the manifest and tracked files missing from it are
removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, ws, err := flags.resolveRoot(args)
			if err != nil {
				return err
			}
			all, err := indexer.CollectFiles(root, flags.options())
			if err != nil {
				return fmt.Errorf("failed to collect files: %w", err)
			}

			files := all
			if len(args) > 1 {
				files, err = selectFiles(root, all, args[1:])
				if err != nil {
					return err
				}
			}

			var manifest []string
			if prune {
				for p := range all {
					manifest = append(manifest, p)
				}
				slices.Sort(manifest)
			}

			e, err := a.openEngine()
			if err != nil {
				return err
			}
			stats, err := e.Update(cmd.Context(), ws, files, manifest)
			return a.printStats(cmd, stats, err)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&prune, "prune", false, "remove tracked files that no longer exist")
	return cmd
}

// selectFiles picks the named files out of the collected set. Names may be
// absolute or relative to root.
func selectFiles(root string, all map[string]string, names []string) (map[string]string, error) {
	files := make(map[string]string, len(names))
	for _, name := range names {
		p := name
		if filepath.IsAbs(p) {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return nil, err
			}
			p = rel
		}
		p = filepath.ToSlash(filepath.Clean(p))
		content, ok := all[p]
		if !ok {
			return nil, fmt.Errorf("%s is not an indexable file under %s", name, root)
		}
		files[p] = content
	}
	return files, nil
}

// printStats prints statistics even when the run failed
func (a *app) printStats(cmd *cobra.Command, stats *indexer.Statistics, runErr error) error {
	if stats != nil {
		if err := a.print(out(cmd), stats, statsText(stats)); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}
