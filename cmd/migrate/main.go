package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/app"
	"github.com/dvloznov/grocery-tracker/internal/config"
	infraBQ "github.com/dvloznov/grocery-tracker/internal/infra/bigquery"
	"github.com/dvloznov/grocery-tracker/internal/logger"
	"github.com/dvloznov/grocery-tracker/internal/storage/sqlite"
)

var (
	storePath = flag.String("store", "", "SQLite database path (default: store.path from config)")
	analytics = flag.Bool("bigquery", false, "also migrate the BigQuery analytics dataset (default: analytics.enabled from config)")
	appliedBy = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	ctx := context.Background()

	if _, err := migrateStore(ctx, cfg.Store.Path, *appliedBy, log); err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store.Path).Msg("Store migration failed")
	}

	if *analytics || cfg.Analytics.Enabled {
		client, err := infraBQ.New(ctx, cfg.Analytics, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		defer client.Close()

		n, err := client.Migrate(ctx, *appliedBy)
		if err != nil {
			log.Fatal().Err(err).Msg("BigQuery migration failed")
		}
		log.Info().Int("applied", n).Str("project", cfg.Analytics.ProjectID).Str("dataset", cfg.Analytics.Dataset).Msg("BigQuery dataset up to date")
	}
}

// migrateStore applies pending SQLite migrations and logs the outcome. It
// returns how many ran.
func migrateStore(ctx context.Context, path, appliedBy string, log zerolog.Logger) (int, error) {
	ran, history, err := sqlite.Migrate(ctx, path, appliedBy)
	for _, m := range ran {
		log.Info().Msgf("  [OK]   %04d_%s", m.Version, m.Name)
	}
	if err != nil {
		return len(ran), err
	}

	if len(ran) == 0 {
		log.Info().Int("applied_total", len(history)).Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("applied", len(ran)).Int("applied_total", len(history)).Msg("Successfully applied migrations")
	}
	return len(ran), nil
}
