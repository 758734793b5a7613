package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentgraph"
	"github.com/hupe1980/agentgraph/internal/httpapi"
	"github.com/hupe1980/agentgraph/logging"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger := root.logger(cfg, logging.LogLevelDebug)

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			g, err := agentgraph.New(cfg, func(o *agentgraph.Options) {
				o.Logger = logger
				o.Registerer = reg
			})
			if err != nil {
				return err
			}
			defer g.Close()

			handler := httpapi.NewHandler(g.Engine(), func(o *httpapi.Options) {
				o.AppName = cfg.AppName
				o.Version = cfg.Version
				o.CORSOrigins = cfg.Server.CORSOrigins
				o.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
				o.Logger = logger
			})

			if addr == "" {
				addr = cfg.Server.Addr()
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server.start", "addr", addr, "llm_provider", cfg.LLM.Provider, "store", cfg.Store.Driver)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("server.shutdown", "timeout", shutdownTimeout.String())
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.host:server.port)")
	return cmd
}
