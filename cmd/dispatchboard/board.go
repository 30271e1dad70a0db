package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/dispatchboard"
	"github.com/jpalmerr/dispatchboard/config"
)

// boardCmd loads the board once and prints it.
var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Load the board once and print it",
	Long: `Load journeys, vehicles and tasks once and print the board.

The journeys table lists every journey with its status, assigned vehicle and
task progress; the vehicles table lists the vehicles not assigned to any
journey. Use --json for the raw snapshot.

Example:
  dispatchboard board
  dispatchboard board --api-url http://localhost:3001 --delay 500ms`,
	RunE: runBoard,
}

func init() {
	rootCmd.AddCommand(boardCmd)

	boardCmd.Flags().Bool("json", false, "print the snapshot as JSON")
	boardCmd.Flags().Duration("delay", 0, "ask the source to delay each load")
	boardCmd.Flags().Bool("simulate-error", false, "ask the source to fail each load")
}

func runBoard(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts, src, err := config.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build source: %w", err)
	}
	if closer, ok := src.(interface{ Close() }); ok {
		defer closer.Close()
	}

	store, err := dispatchboard.NewBoardStore(opts...)
	if err != nil {
		return fmt.Errorf("failed to create board: %w", err)
	}

	loadOpts := cfg.Load.Options()
	if cmd.Flags().Changed("delay") {
		loadOpts.Delay, _ = cmd.Flags().GetDuration("delay")
	}
	if cmd.Flags().Changed("simulate-error") {
		loadOpts.SimulateError, _ = cmd.Flags().GetBool("simulate-error")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout.Duration()+loadOpts.Delay)
	defer cancel()
	store.LoadAll(ctx, loadOpts)
	store.Wait()

	snap := store.Snapshot().Get()
	if snap.Error != "" {
		return errors.New(snap.Error)
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	renderBoard(out, store, snap)
	return nil
}

func renderBoard(out io.Writer, store *dispatchboard.BoardStore, snap dispatchboard.Snapshot) {
	journeys := table.NewWriter()
	journeys.SetOutputMirror(out)
	journeys.SetTitle("Journeys")
	journeys.AppendHeader(table.Row{"ID", "Title", "Status", "Vehicle", "Start", "End", "Tasks"})
	for _, j := range snap.Journeys {
		vehicle := "-"
		if v, ok := store.AssignedVehicle(j.ID); ok {
			vehicle = v.Number
		}
		journeys.AppendRow(table.Row{
			j.ID, j.Title, j.Status, vehicle,
			j.StartTime.Format(time.DateTime), j.EndTime.Format(time.DateTime),
			taskProgress(snap.TasksByJourney[j.ID]),
		})
	}
	journeys.AppendFooter(table.Row{"", "", fmt.Sprintf("%d scheduled / %d in progress / %d finished",
		len(snap.Scheduled), len(snap.InProgress), len(snap.Finished))})
	journeys.Render()

	vehicles := table.NewWriter()
	vehicles.SetOutputMirror(out)
	vehicles.SetTitle("Available vehicles")
	vehicles.AppendHeader(table.Row{"ID", "Number", "Capacity"})
	for _, v := range snap.AvailableVehicles {
		vehicles.AppendRow(table.Row{v.ID, v.Number, v.Capacity})
	}
	vehicles.Render()
}

func taskProgress(tasks []dispatchboard.Task) string {
	if len(tasks) == 0 {
		return "-"
	}
	done := 0
	for _, t := range tasks {
		if t.Completed {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, len(tasks))
}
