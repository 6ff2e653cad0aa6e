package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/enhance"
)

// PipelineStep represents a single step in the receipt pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	JobID       string
	Request     domain.ProcessingRequest
	OCR         *domain.OCRResult
	Enhancement *enhance.Result
	Receipt     *domain.Receipt
}

// ErrSkipped means the receipt was no longer ours to process: another job
// claimed it or its status moved on. It is not a failure.
var ErrSkipped = errors.New("receipt processing skipped")

// StepError tags a failure with the scan stage it happened in.
type StepError struct {
	Stage domain.FailedScanStage
	Err   error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// StageOf returns the scan stage recorded on err, defaulting to the upload stage.
func StageOf(err error) domain.FailedScanStage {
	var se *StepError
	if errors.As(err, &se) {
		return se.Stage
	}
	return domain.StageUpload
}

// Step 1: ClaimReceiptStep records the job on the receipt so a concurrent
// job for the same receipt backs off.
type ClaimReceiptStep struct {
	Store ReceiptRepository
}

func (s *ClaimReceiptStep) Name() string { return "claim" }

func (s *ClaimReceiptStep) Execute(ctx context.Context, state *PipelineState) error {
	r, err := s.Store.UpdateReceiptIf(ctx, state.Request.ReceiptID, domain.StatusProcessing, func(r *domain.Receipt) error {
		if r.ProcessingJobID != "" && r.ProcessingJobID != state.JobID {
			return fmt.Errorf("claimed by job %s: %w", r.ProcessingJobID, ErrSkipped)
		}
		r.ProcessingJobID = state.JobID
		return nil
	})
	switch {
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("%v: %w", err, ErrSkipped)
	case err != nil:
		return err
	}
	state.Receipt = r
	return nil
}

// Step 2: ExtractTextStep runs OCR over every image.
type ExtractTextStep struct {
	OCR TextExtractor
}

func (s *ExtractTextStep) Name() string { return "ocr" }

func (s *ExtractTextStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.OCR.Extract(ctx, state.Request.ImageURLs)
	state.OCR = res
	if err != nil {
		return &StepError{Stage: domain.StageOCR, Err: err}
	}
	return nil
}

// Step 3: EnhanceItemsStep asks the model for items and insights.
type EnhanceItemsStep struct {
	Enhancer ReceiptEnhancer
}

func (s *EnhanceItemsStep) Name() string { return "enhance" }

func (s *EnhanceItemsStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.Enhancer.Enhance(ctx, state.OCR, enhance.Metadata{
		StoreName: state.Request.StoreName,
		Total:     state.Request.TotalAmount,
		Currency:  state.Request.Currency,
	})
	if err != nil {
		return &StepError{Stage: domain.StageLLMEnhancement, Err: err}
	}
	state.Enhancement = res
	return nil
}

// Step 4: SaveResultStep writes items, insights and the OCR payload in one
// status-guarded update.
type SaveResultStep struct {
	Store ReceiptRepository
}

func (s *SaveResultStep) Name() string { return "save" }

func (s *SaveResultStep) Execute(ctx context.Context, state *PipelineState) error {
	insights := state.Enhancement.Insights
	r, err := s.Store.UpdateReceiptIf(ctx, state.Request.ReceiptID, domain.StatusProcessing, func(r *domain.Receipt) error {
		if r.ProcessingJobID != state.JobID {
			return fmt.Errorf("claimed by job %s: %w", r.ProcessingJobID, ErrSkipped)
		}
		r.Items = state.Enhancement.Items
		r.ReceiptInsights = &insights
		r.TextractData = state.OCR
		r.ValidationStatus = domain.StatusReviewInsights
		r.ProcessingError = ""
		return nil
	})
	switch {
	case errors.Is(err, domain.ErrConflict):
		return fmt.Errorf("%v: %w", err, ErrSkipped)
	case err != nil:
		return err
	}
	state.Receipt = r
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps    []PipelineStep
	observer StepObserver
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		err := p.executeStep(ctx, step, state)
		if err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
	}
	return nil
}

func (p *Pipeline) executeStep(ctx context.Context, step PipelineStep, state *PipelineState) error {
	if p.observer == nil {
		return step.Execute(ctx, state)
	}
	start := now()
	err := step.Execute(ctx, state)
	p.observer.ObserveStep(step.Name(), now().Sub(start), err)
	return err
}

// NewReceiptPipeline creates the standard claim, OCR, enhance, save pipeline.
func NewReceiptPipeline(store ReceiptRepository, ocr TextExtractor, enhancer ReceiptEnhancer) *Pipeline {
	return NewPipeline(
		&ClaimReceiptStep{Store: store},
		&ExtractTextStep{OCR: ocr},
		&EnhanceItemsStep{Enhancer: enhancer},
		&SaveResultStep{Store: store},
	)
}
