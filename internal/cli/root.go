package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xmmarcotte/marcotte-dev/internal/config"
	"github.com/xmmarcotte/marcotte-dev/internal/engine"
	"github.com/xmmarcotte/marcotte-dev/internal/logger"
	"github.com/xmmarcotte/marcotte-dev/internal/metrics"
)

// Build information, set with -ldflags by the release build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// skipSetup marks commands that run without configuration or storage
const skipSetup = "skip-setup"

// app holds the state shared by every command of one invocation
type app struct {
	cfgFile  string
	logLevel string
	output   string

	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	engine  *engine.Engine
}

// newRootCmd builds the command tree
func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:   "spot",
		Short: "spot - semantic memory and code retrieval",
		Long: `spot stores notes, decisions, patterns and source code as embeddings
and retrieves them with two-stage semantic search. It runs as an MCP
server on stdio or as a command line tool over the same index.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.spot/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "text", "output format (text, json, yaml)")

	root.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	root.AddCommand(
		a.serveCmd(),
		a.indexCmd(),
		a.updateCmd(),
		a.searchCmd(),
		a.storeCmd(),
		a.statusCmd(),
		a.workspacesCmd(),
		a.forgetCmd(),
		a.watchCmd(),
		a.versionCmd(),
	)
	return root, a
}

// Execute runs the command line. It is called by main.main().
func Execute() error {
	root, a := newRootCmd()
	err := root.Execute()
	return errors.Join(err, a.close())
}

// setup loads configuration and the logger before a command runs
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	switch a.output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", a.output)
	}
	if cmd.Annotations[skipSetup] == "true" {
		return nil
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		File:   cfg.Log.File,
		Output: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.log = log
	return nil
}

// openEngine opens the engine on first use
func (a *app) openEngine() (*engine.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	e, err := engine.Open(a.cfg, a.metrics, a.log.Zerolog())
	if err != nil {
		return nil, err
	}
	a.engine = e
	return e, nil
}

// close releases the engine and the log file
func (a *app) close() error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
		a.engine = nil
	}
	if a.log != nil {
		errs = append(errs, a.log.Close())
		a.log = nil
	}
	return errors.Join(errs...)
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
