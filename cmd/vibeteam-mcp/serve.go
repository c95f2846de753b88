package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vibeteam/vibeteam-mcp/internal/config"
	"github.com/vibeteam/vibeteam-mcp/internal/logging"
	"github.com/vibeteam/vibeteam-mcp/internal/metrics"
	"github.com/vibeteam/vibeteam-mcp/internal/server"
	"github.com/vibeteam/vibeteam-mcp/internal/transport"
)

const shutdownTimeout = 5 * time.Second

func runServe(cmd *cobra.Command, stdin io.Reader, stdout, stderr io.Writer) error {
	// .env only fills variables that are not already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return configError(fmt.Errorf("loading .env: %w", err))
	}

	file, err := cmd.Flags().GetString(config.FlagConfig)
	if err != nil {
		return configError(err)
	}
	cfg, err := config.Load(config.LoadOptions{File: file, Flags: cmd.Flags()})
	if err != nil {
		return configError(err)
	}

	logger, closer, err := logging.New(logging.Options{Debug: cfg.Debug, File: cfg.LogFile, Output: stderr})
	if err != nil {
		return configError(fmt.Errorf("setting up logging: %w", err))
	}
	defer closer.Close()

	srv, cleanup, err := server.New(cfg, logger)
	if err != nil {
		if server.IsDuplicateTool(err) {
			return configError(err)
		}
		return runtimeError(fmt.Errorf("creating server: %w", err))
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hooks := transport.SessionHooks{
		OnOpen:  func(string) { srv.Metrics.Sessions.Inc() },
		OnClose: func(string) { srv.Metrics.Sessions.Dec() },
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		ms := metrics.NewServer(cfg.MetricsAddr, srv.Gatherer)
		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := ms.Start(); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return ms.Stop(sctx)
		})
	}

	g.Go(func() error {
		// The transport ending ends the process.
		defer cancel()
		return serveTransport(gctx, cfg, srv, hooks, stdin, stdout, logger)
	})

	if err := g.Wait(); err != nil {
		return runtimeError(err)
	}
	logger.Info("server stopped")
	return nil
}

func serveTransport(ctx context.Context, cfg config.Config, srv *server.Server, hooks transport.SessionHooks,
	stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	logger = logger.With("component", "transport", "transport", cfg.Transport)

	switch cfg.Transport {
	case config.TransportTCP:
		ln, err := transport.ListenTCP(cfg.Addr(), srv.Dispatcher, logger)
		if err != nil {
			return err
		}
		ln.SetHooks(hooks)
		return ln.Serve(ctx)
	default:
		w := bufio.NewWriter(stdout)
		return transport.ServeStreamWithHooks(ctx, stdin, w, srv.Dispatcher, logger, hooks)
	}
}
