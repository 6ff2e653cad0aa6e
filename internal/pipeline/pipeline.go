// Package pipeline runs OCR and enhancement for a submitted receipt and
// records the outcome on the stored document.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/jobs"
	"github.com/dvloznov/grocery-tracker/internal/logger"
)

var now = func() time.Time { return time.Now().UTC() }

// failureWriteTimeout bounds the error-status write, which runs even after
// the job context has expired.
const failureWriteTimeout = 10 * time.Second

// Processor runs the receipt pipeline and owns its failure handling.
type Processor struct {
	store    ReceiptRepository
	pipeline *Pipeline
	observer StepObserver
	log      zerolog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithObserver reports step timings and outcomes to o.
func WithObserver(o StepObserver) Option {
	return func(p *Processor) {
		p.observer = o
		p.pipeline.observer = o
	}
}

// NewProcessor wires the standard pipeline.
func NewProcessor(store ReceiptRepository, ocr TextExtractor, enhancer ReceiptEnhancer, log zerolog.Logger, opts ...Option) *Processor {
	p := &Processor{
		store:    store,
		pipeline: NewReceiptPipeline(store, ocr, enhancer),
		log:      log.With().Str("component", "pipeline").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every step once. It writes nothing on failure; see MarkFailed.
// ErrSkipped is returned when another job owns the receipt.
func (p *Processor) Run(ctx context.Context, req domain.ProcessingRequest, jobID string) (*domain.Receipt, error) {
	state := &PipelineState{JobID: jobID, Request: req}
	log := p.log.With().Str("receipt_id", req.ReceiptID).Str("job_id", jobID).Logger()
	ctx = logger.WithContext(ctx, log)

	log.Info().Int("images", len(req.ImageURLs)).Str("store", req.StoreName).Msg("processing receipt")
	if err := p.pipeline.Execute(ctx, state); err != nil {
		if errors.Is(err, ErrSkipped) {
			log.Info().Err(err).Msg("receipt skipped")
			return nil, ErrSkipped
		}
		return nil, err
	}

	items := 0
	if state.Enhancement != nil {
		items = len(state.Enhancement.Items)
	}
	log.Info().
		Int("items", items).
		Int("ocr_images", state.OCR.Succeeded()).
		Bool("fallback", state.Enhancement != nil && state.Enhancement.Fallback).
		Msg("receipt ready for review")
	if p.observer != nil {
		p.observer.ObserveOutcome(domain.StatusReviewInsights)
	}
	return state.Receipt, nil
}

// MarkFailed moves the receipt to the error status and appends a failed-scan
// log. The status write is guarded, so a receipt that moved on is left alone.
func (p *Processor) MarkFailed(ctx context.Context, req domain.ProcessingRequest, jobID string, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	stage := StageOf(cause)
	msg := cause.Error()
	var se *StepError
	if errors.As(cause, &se) {
		msg = se.Err.Error()
	}

	_, err := p.store.UpdateReceiptIf(ctx, req.ReceiptID, domain.StatusProcessing, func(r *domain.Receipt) error {
		if r.ProcessingJobID != "" && r.ProcessingJobID != jobID {
			return fmt.Errorf("claimed by job %s: %w", r.ProcessingJobID, ErrSkipped)
		}
		r.ValidationStatus = domain.StatusError
		r.ProcessingError = msg
		r.ProcessingJobID = jobID
		return nil
	})
	switch {
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound), errors.Is(err, ErrSkipped):
		p.log.Info().Err(err).Str("receipt_id", req.ReceiptID).Msg("error status not written")
		return nil
	case err != nil:
		return fmt.Errorf("mark receipt %s failed: %w", req.ReceiptID, err)
	}

	scan := &domain.FailedScanLog{
		ReceiptID:    req.ReceiptID,
		UserEmail:    req.UserEmail,
		HouseholdID:  req.HouseholdID,
		ImageURLs:    req.ImageURLs,
		ErrorMessage: msg,
		ErrorStage:   stage,
		Timestamp:    now(),
	}
	if err := p.store.CreateFailedScanLog(ctx, scan); err != nil {
		return fmt.Errorf("record failed scan for %s: %w", req.ReceiptID, err)
	}

	p.log.Error().Err(cause).Str("receipt_id", req.ReceiptID).Str("stage", string(stage)).Msg("receipt processing failed")
	if p.observer != nil {
		p.observer.ObserveOutcome(domain.StatusError)
	}
	return nil
}

// Process runs the pipeline once and records a failure immediately.
func (p *Processor) Process(ctx context.Context, req domain.ProcessingRequest, jobID string) (*domain.Receipt, error) {
	r, err := p.Run(ctx, req, jobID)
	if err == nil || errors.Is(err, ErrSkipped) {
		return r, err
	}
	if markErr := p.MarkFailed(ctx, req, jobID, err); markErr != nil {
		p.log.Error().Err(markErr).Str("receipt_id", req.ReceiptID).Msg("could not record failure")
	}
	return nil, err
}

// HandleJob is the jobs.JobHandler for receipt processing. The receipt is
// only marked failed once the queue will not retry the job.
func (p *Processor) HandleJob(ctx context.Context, job jobs.Job) error {
	j, ok := job.(*jobs.ProcessReceiptJob)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected job type %s", job.GetType()))
	}

	_, err := p.Run(ctx, j.Request, j.JobID)
	if err == nil || errors.Is(err, ErrSkipped) {
		return nil
	}
	if j.FinalAttempt(err) {
		if markErr := p.MarkFailed(ctx, j.Request, j.JobID, err); markErr != nil {
			p.log.Error().Err(markErr).Str("receipt_id", j.ReceiptID).Msg("could not record failure")
		}
	}
	return err
}
