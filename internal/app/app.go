// Package app wires configuration into the services shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/blob"
	"github.com/dvloznov/grocery-tracker/internal/config"
	"github.com/dvloznov/grocery-tracker/internal/enhance"
	"github.com/dvloznov/grocery-tracker/internal/housekeeping"
	infraaws "github.com/dvloznov/grocery-tracker/internal/infra/aws"
	infraBQ "github.com/dvloznov/grocery-tracker/internal/infra/bigquery"
	"github.com/dvloznov/grocery-tracker/internal/jobs"
	"github.com/dvloznov/grocery-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/grocery-tracker/internal/logger"
	"github.com/dvloznov/grocery-tracker/internal/mail"
	"github.com/dvloznov/grocery-tracker/internal/metrics"
	"github.com/dvloznov/grocery-tracker/internal/nutrition"
	"github.com/dvloznov/grocery-tracker/internal/ocr"
	"github.com/dvloznov/grocery-tracker/internal/pipeline"
	"github.com/dvloznov/grocery-tracker/internal/receipts"
	"github.com/dvloznov/grocery-tracker/internal/storage/sqlite"
)

// App holds every long-lived service. Close releases them.
type App struct {
	Config *config.Config
	Log    zerolog.Logger

	Store     *sqlite.SQLiteStore
	Blobs     blob.Store
	Metrics   *metrics.Metrics
	JobStore  *inmemory.Store
	Queue     *inmemory.Queue
	Processor *pipeline.Processor

	Receipts     *receipts.Service
	Housekeeping *housekeeping.Service
	Nutrition    *nutrition.Service

	analytics *infraBQ.Client
}

// NewLogger builds the root logger from the log section.
func NewLogger(cfg config.LogConfig) (zerolog.Logger, error) {
	return logger.NewWithOptions(logger.Options{Level: cfg.Level, Format: cfg.Format})
}

// New opens the store and builds the services. The queue is created but not
// started; see StartWorkers.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}

	store, err := sqlite.New(ctx, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	a.Store = store

	if a.Blobs, err = blob.Open(ctx, cfg.Blob, cfg.AWS, log); err != nil {
		a.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	awsCfg, err := infraaws.LoadConfig(ctx, cfg.AWS)
	if err != nil {
		a.Close()
		return nil, err
	}
	extractor := ocr.NewExtractor(ocr.NewTextractClient(awsCfg), a.Blobs, cfg.OCR.Concurrency, log)

	var gen enhance.Generator
	if cfg.Enhance.Enabled {
		gemini, err := enhance.NewGeminiGenerator(ctx, cfg.Enhance.APIKey, cfg.Enhance.Model)
		if err != nil {
			a.Close()
			return nil, err
		}
		gen = gemini
	} else {
		log.Warn().Msg("Enhancement disabled - receipts will get fallback items")
	}
	enhancer := enhance.NewEnhancer(gen, cfg.Enhance.Timeout, log)

	a.Processor = pipeline.NewProcessor(store, extractor, enhancer, log, pipeline.WithObserver(a.Metrics))

	a.JobStore = inmemory.NewStore()
	a.Queue = inmemory.NewQueue(inmemory.Options{
		BufferSize:   cfg.Jobs.BufferSize,
		Workers:      cfg.Jobs.Workers,
		MaxRetries:   cfg.Jobs.MaxRetries,
		RetryBackoff: cfg.Jobs.RetryBackoff,
		JobTimeout:   cfg.Jobs.JobTimeout,
	}, a.JobStore, a.Metrics, log)

	var opts []housekeeping.Option
	if cfg.Analytics.Enabled {
		client, err := infraBQ.New(ctx, cfg.Analytics, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.analytics = client
		opts = append(opts, housekeeping.WithMirror(infraBQ.NewMirror(client)))
	}

	a.Receipts = receipts.New(store, a.Queue, log)
	a.Housekeeping = housekeeping.New(store, mail.New(cfg.Mail, log), enhancer, log, opts...)
	a.Nutrition = nutrition.NewService(store, nutrition.NewClient(cfg.Nutrition.BaseURL, cfg.Nutrition.APIKey, cfg.Nutrition.Timeout), log)

	return a, nil
}

// StartWorkers starts the pipeline consumers; they stop when ctx is cancelled
// or on Shutdown.
func (a *App) StartWorkers(ctx context.Context) error {
	return a.Queue.Start(ctx, jobs.JobHandler(a.Processor.HandleJob))
}

// WaitIdle blocks until every job enqueued so far has finished or ctx is done.
func (a *App) WaitIdle(ctx context.Context) error {
	if a.Queue == nil {
		return nil
	}
	return a.Queue.Idle(ctx)
}

// Shutdown stops accepting jobs, runs the buffered ones and fails whatever
// is left when ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	if a.Queue == nil {
		return nil
	}
	return a.Queue.Stop(ctx)
}

// Close releases the store, the queue and the analytics client.
func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.analytics != nil {
		errs = append(errs, a.analytics.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
