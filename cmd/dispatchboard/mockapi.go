package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jpalmerr/dispatchboard/internal/mockapi"
	"github.com/jpalmerr/dispatchboard/remote"
)

// mockAPICmd serves the fixture data over HTTP.
var mockAPICmd = &cobra.Command{
	Use:   "mockapi",
	Short: "Serve the fixture API",
	Long: `Serve the journeys, vehicles, tasks and products fixtures over HTTP.

Every route honors ?delay=<ms> and ?error=true, so the board's loading and
failure paths can be exercised end to end. Changes made through PATCH live
until the process exits.

Example:
  dispatchboard mockapi --mock-port 3001
  curl 'http://localhost:3001/api/journeys?delay=1500'`,
	RunE: runMockAPI,
}

func init() {
	rootCmd.AddCommand(mockAPICmd)

	mockAPICmd.Flags().Int("mock-port", 0, "mock API port (overrides mock.port)")
	_ = viper.BindPFlag("mock-port", mockAPICmd.Flags().Lookup("mock-port"))
}

func runMockAPI(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	src, err := remote.NewMemorySource(remote.SeedDataset(), remote.WithBaseLatency(cfg.Mock.Latency.Duration()))
	if err != nil {
		return fmt.Errorf("failed to seed fixtures: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := mockapi.NewServer(src, cfg.Mock.Port, logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("mock api error: %w", err)
	}
	logger.Info("mock api listening",
		"addr", srv.Addr(),
		"latency", cfg.Mock.Latency.Duration().String(),
	)

	<-ctx.Done()
	logger.Info("mock api stopped")
	return nil
}
