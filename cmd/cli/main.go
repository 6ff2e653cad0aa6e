package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/grocery-tracker/internal/app"
	"github.com/dvloznov/grocery-tracker/internal/config"
	"github.com/dvloznov/grocery-tracker/internal/logger"
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "grocerytrack",
	Short:         "GroceryTrack maintenance CLI",
	Long:          "Upload receipt images, reprocess receipts and run housekeeping jobs against the configured store.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to config.yaml (overrides CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (overrides the configured level)")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration, honouring the persistent flags.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	if flagConfig != "" {
		os.Setenv("CONFIG_PATH", flagConfig)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}

	// Logs go to stderr so command output on stdout stays parseable.
	log, err := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: logger.FormatConsole, Out: os.Stderr})
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log, nil
}

// withApp builds the services, runs fn and releases them.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

// printJSON writes v to stdout, indented.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
