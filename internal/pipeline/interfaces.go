package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/enhance"
)

// ReceiptRepository is the slice of the document store the pipeline writes to.
type ReceiptRepository interface {
	UpdateReceiptIf(ctx context.Context, id string, from domain.ValidationStatus, fn func(*domain.Receipt) error) (*domain.Receipt, error)
	CreateFailedScanLog(ctx context.Context, l *domain.FailedScanLog) error
}

// TextExtractor runs OCR over image references.
type TextExtractor interface {
	// Extract always returns a result with one entry per reference; the error
	// is set when no image produced text.
	Extract(ctx context.Context, refs []string) (*domain.OCRResult, error)
}

// ReceiptEnhancer turns OCR output into categorized items.
type ReceiptEnhancer interface {
	Enhance(ctx context.Context, ocr *domain.OCRResult, meta enhance.Metadata) (*enhance.Result, error)
}

// StepObserver receives per-step timings, typically for metrics.
type StepObserver interface {
	ObserveStep(step string, elapsed time.Duration, err error)
	ObserveOutcome(status domain.ValidationStatus)
}
