package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a dispatchboard configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  dispatchboard validate -c board.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	source := cfg.APIURL
	if source == "" {
		source = "in-memory fixtures"
	}
	refresh := "disabled"
	if cfg.RefreshInterval != 0 {
		refresh = cfg.RefreshInterval.Duration().String()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:     %d\n", cfg.Port)
	fmt.Fprintf(out, "  Source:   %s\n", source)
	fmt.Fprintf(out, "  Timeout:  %s\n", cfg.Timeout.Duration())
	fmt.Fprintf(out, "  Refresh:  %s\n", refresh)
	fmt.Fprintf(out, "  Mock API: port %d, latency %s\n", cfg.Mock.Port, cfg.Mock.Latency.Duration())

	return nil
}
