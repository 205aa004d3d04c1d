package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/pyingest/internal/mcp"
	"github.com/dshills/pyingest/internal/metrics"
)

func newServeCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Run the MCP server on stdin/stdout. Logs go to stderr so they never
mix with protocol messages.

With --metrics-addr, or metrics.enabled in the config, Prometheus metrics
and a health check are served over HTTP as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
	return cmd
}

func runServe(cmd *cobra.Command, metricsAddr string) error {
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	mcp.ServerVersion = Version
	srv, err := mcp.NewServer(mcp.Dependencies{
		Orchestrator: a.orch,
		Parser:       a.parser,
		Chunker:      a.chunker,
		Backend:      a.backend,
		RunStore:     a.runs,
		Searcher:     a.searcher,
		Options:      cfg.Options(),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if metricsAddr == "" && cfg.Metrics.Enabled {
		metricsAddr = cfg.Metrics.Addr
	}
	if metricsAddr != "" {
		ms := metrics.NewServer(metricsAddr, a.metrics, logger)
		ms.Start()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := ms.Stop(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Metrics server shutdown failed")
			}
		}()
	}

	logger.WithField("version", Version).Info("MCP server starting")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Shutting down")
		cancel()
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("Server stopped")
	return nil
}
