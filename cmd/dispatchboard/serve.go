package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jpalmerr/dispatchboard"
	"github.com/jpalmerr/dispatchboard/config"
	"github.com/jpalmerr/dispatchboard/internal/broadcast"
	"github.com/jpalmerr/dispatchboard/internal/metrics"
	"github.com/jpalmerr/dispatchboard/internal/refresh"
	"github.com/jpalmerr/dispatchboard/internal/server"
	"github.com/jpalmerr/dispatchboard/reactive"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the board server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the board API",
	Long: `Serve the dispatch board API.

The server will:
  - Load every collection from the configured source
  - Reload them every refresh_interval, if set
  - Serve snapshots, live updates, mutations and metrics on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  dispatchboard serve -c board.yaml
  DISPATCHBOARD_API_URL=http://localhost:3001 dispatchboard serve --port 9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "HTTP port (overrides port)")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	source := cfg.APIURL
	if source == "" {
		source = "in-memory fixtures"
	}
	logger.Info("starting server",
		"port", cfg.Port,
		"source", source,
		"refresh_interval", cfg.RefreshInterval.Duration().String(),
	)

	collector := metrics.New()
	opts, src, err := config.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build source: %w", err)
	}
	if closer, ok := src.(interface{ Close() }); ok {
		defer closer.Close()
	}
	opts = append(opts, dispatchboard.WithMetrics(collector))

	store, err := dispatchboard.NewBoardStore(opts...)
	if err != nil {
		return fmt.Errorf("failed to create board: %w", err)
	}

	hub := broadcast.NewHub[dispatchboard.Snapshot]()
	follower := hub.Follow(store.Runtime(), "snapshot-broadcast", store.Snapshot())
	defer follower.Stop()

	errLog := store.Watch("error-log", func(s *reactive.Scope) error {
		if msg := store.Error().Read(s); msg != "" {
			logger.Warn("board error", "message", msg)
		}
		return nil
	})
	defer errLog.Stop()

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reload := func(ctx context.Context) {
		store.LoadAll(ctx, cfg.Load.Options())
	}
	reload(ctx)

	if interval := cfg.RefreshInterval.Duration(); interval > 0 {
		scheduler, err := refresh.NewScheduler(interval, reload, logger)
		if err != nil {
			return fmt.Errorf("failed to create refresh scheduler: %w", err)
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	srv := server.NewServer(store, hub, cfg.Port, cfg.Title, collector.Handler(), logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("server listening", "addr", srv.Addr())

	<-ctx.Done()

	// let in-flight loads and writes land before exiting
	done := make(chan struct{})
	go func() {
		store.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out",
			"timeout", shutdownTimeout.String(),
			"action", "forcing exit",
		)
	}
	return nil
}
