package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xmmarcotte/marcotte-dev/internal/mcp"
	"github.com/xmmarcotte/marcotte-dev/internal/metrics"
	"github.com/xmmarcotte/marcotte-dev/internal/storage"
)

func (a *app) serveCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Serve speaks the Model Context Protocol on stdin and stdout. Logs go to
stderr. With --metrics-addr (or metrics.enabled in the config) Prometheus
metrics are served over HTTP at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := a.log.Component("serve")

			addr := metricsAddr
			if addr == "" && a.cfg.Metrics.Enabled {
				addr = a.cfg.Metrics.Addr
			}
			if addr != "" {
				a.metrics = metrics.NewMetrics()
			}

			e, err := a.openEngine()
			if err != nil {
				return err
			}

			if addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", a.metrics.Handler())
				srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				log.Info().Str("addr", addr).Msg("serving metrics")
			}

			mcp.ServerVersion = Version
			s, err := mcp.NewServer(e, a.log.Zerolog())
			if err != nil {
				return err
			}

			log.Info().
				Str("version", Version).
				Str("build_mode", storage.BuildMode).
				Str("driver", storage.DriverName).
				Str("backend", a.cfg.Index.Backend).
				Str("embedder", e.Embedder().Provider()).
				Str("model", e.Embedder().Model()).
				Str("reranker", e.RerankerName()).
				Msg("MCP server ready, listening on stdio")

			err = s.Serve(ctx)
			if ctx.Err() != nil {
				log.Info().Msg("server stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	return cmd
}
