package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/app"
	"github.com/dvloznov/grocery-tracker/internal/config"
	"github.com/dvloznov/grocery-tracker/internal/logger"
)

func main() {
	once := flag.Bool("once", false, "run one housekeeping pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	log = log.With().Str("service", "worker").Logger()

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Close()

	// Re-enqueued receipts are processed by this process's own workers.
	if err := services.StartWorkers(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	log.Info().Dur("interval", cfg.Worker.Interval).Bool("once", *once).Msg("Worker service started")

	runPass(ctx, services, log)
	if *once {
		// Receipts re-enqueued by the sweep must finish before the process exits.
		if err := services.WaitIdle(ctx); err != nil {
			log.Warn().Err(err).Msg("Exiting before re-enqueued receipts finished")
		}
	} else {
		ticker := time.NewTicker(cfg.Worker.Interval)
		defer ticker.Stop()

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				runPass(ctx, services, log)
			}
		}
	}

	log.Info().Msg("Shutting down worker service...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := services.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

// runPass runs every housekeeping task once. A failing task is logged and
// does not stop the others.
func runPass(ctx context.Context, a *app.App, log zerolog.Logger) {
	start := time.Now()

	if res, err := a.Housekeeping.AggregateGroceryData(ctx); err != nil {
		log.Error().Err(err).Msg("Aggregation failed")
	} else {
		log.Info().
			Int("receipts", res.ReceiptsScanned).
			Int("items", res.ItemsProcessed).
			Int("aggregates", res.AggregatesUpdated).
			Bool("mirrored", res.Mirrored).
			Msg("Aggregation completed")
	}

	if n, err := a.Housekeeping.RolloverExpiredBudgets(ctx); err != nil {
		log.Error().Err(err).Int("rolled_over", n).Msg("Budget rollover failed")
	} else if n > 0 {
		log.Info().Int("rolled_over", n).Msg("Expired budgets rolled over")
	}

	if n, err := a.Receipts.SweepStale(ctx, a.Config.Worker.StaleAfter); err != nil {
		log.Error().Err(err).Int("requeued", n).Msg("Stale receipt sweep failed")
	} else if n > 0 {
		log.Info().Int("requeued", n).Msg("Stale receipts re-enqueued")
	}

	log.Debug().Dur("elapsed", time.Since(start)).Msg("Housekeeping pass finished")
}
