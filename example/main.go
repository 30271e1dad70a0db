// Command example walks a BoardStore through a load, an optimistic
// assignment and a failed write against the fixture API.
//
// Usage:
//
//	go run ./example
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/dispatchboard"
	"github.com/jpalmerr/dispatchboard/internal/mockapi"
	"github.com/jpalmerr/dispatchboard/reactive"
	"github.com/jpalmerr/dispatchboard/remote"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start the fixture API on an ephemeral port
	fixtures, err := remote.NewMemorySource(remote.SeedDataset())
	if err != nil {
		logger.Error("failed to seed fixtures", "error", err)
		os.Exit(1)
	}
	api := mockapi.NewServer(fixtures, 0, logger)
	if err := api.Start(ctx); err != nil {
		logger.Error("mock api error", "error", err)
		os.Exit(1)
	}

	_, port, err := net.SplitHostPort(api.Addr())
	if err != nil {
		logger.Error("unexpected listener address", "addr", api.Addr(), "error", err)
		os.Exit(1)
	}
	src, err := remote.NewHTTPSource("http://127.0.0.1:" + port)
	if err != nil {
		logger.Error("failed to create source", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	board, err := dispatchboard.NewBoardStore(
		dispatchboard.WithSource(src),
		dispatchboard.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create board", "error", err)
		os.Exit(1)
	}

	// one line per settle cycle in which the summary changed
	board.Watch("summary", func(s *reactive.Scope) error {
		fmt.Printf("loading=%-5v scheduled=%d in_progress=%d finished=%d available=%d error=%q\n",
			board.IsLoading().Read(s),
			len(board.ScheduledJourneys().Read(s)),
			len(board.InProgressJourneys().Read(s)),
			len(board.FinishedJourneys().Read(s)),
			len(board.AvailableVehicles().Read(s)),
			board.Error().Read(s),
		)
		return nil
	})

	fmt.Println("-- loading with 500ms of latency")
	board.LoadAll(ctx, dispatchboard.LoadOptions{Delay: 500 * time.Millisecond})
	board.Wait()

	fmt.Println("-- assigning VEH-004 to journey 1")
	board.AssignVehicle(ctx, 1, 4)
	board.Wait()

	fmt.Println("-- starting journey 4 against a failing API (the change is kept)")
	failing, err := dispatchboard.NewBoardStore(
		dispatchboard.WithSource(src),
		dispatchboard.WithRuntime(board.Runtime()),
		dispatchboard.WithLogger(logger),
		dispatchboard.WithPersistOptions(dispatchboard.LoadOptions{SimulateError: true}),
	)
	if err != nil {
		logger.Error("failed to create board", "error", err)
		os.Exit(1)
	}
	failing.LoadJourneys(ctx, dispatchboard.LoadOptions{})
	failing.Wait()
	failing.StartJourney(ctx, 4)
	failing.Wait()

	j, _ := failing.Journey(4)
	fmt.Printf("journey 4 is %s locally, error %q\n", j.Status, failing.Error().Get())
}
