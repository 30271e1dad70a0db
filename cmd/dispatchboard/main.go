// Package main is the entry point for the dispatchboard CLI.
//
// Usage:
//
//	dispatchboard serve -c board.yaml     # Serve the board API
//	dispatchboard mockapi                 # Serve the fixture API
//	dispatchboard board                   # Load once and print the board
//	dispatchboard validate -c board.yaml  # Validate configuration
//	dispatchboard version                 # Show version info
//
// Flags can also be set through DISPATCHBOARD_* environment variables,
// e.g. DISPATCHBOARD_API_URL or DISPATCHBOARD_LOG_LEVEL.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jpalmerr/dispatchboard/config"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "dispatchboard",
	Short: "A reactive dispatch board for journeys and vehicles",
	Long: `dispatchboard keeps journeys, vehicles and tasks in a reactive store,
derives the scheduled / in-progress / finished partitions and the available
vehicles, and serves them as JSON and Server-Sent Events.

Quick start:
  1. Run the fixture API:   dispatchboard mockapi
  2. Serve the board:       dispatchboard serve --api-url http://localhost:3001
  3. Watch it live:         curl -N http://localhost:8080/api/sse

Without an api_url the board runs against in-process fixtures.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this dispatchboard binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "dispatchboard %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	cobra.OnInitialize(initViper)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "path to config file")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("api-url", "", "remote API base url (overrides api_url)")
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("log-level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("api-url", flags.Lookup("api-url"))

	rootCmd.AddCommand(versionCmd)
}

func initViper() {
	viper.SetEnvPrefix("DISPATCHBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// newLogger creates a JSON logger for CLI use.
func newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// loadConfig reads the config file when one is given, otherwise starts from
// defaults, then applies flag and environment overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return nil, err
	}

	overridden := false
	if viper.IsSet("api-url") {
		cfg.APIURL = viper.GetString("api-url")
		overridden = true
	}
	if viper.IsSet("port") {
		cfg.Port = viper.GetInt("port")
		overridden = true
	}
	if viper.IsSet("mock-port") {
		cfg.Mock.Port = viper.GetInt("mock-port")
		overridden = true
	}
	if overridden {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
