// Package receipts owns the receipt lifecycle outside the pipeline: creation,
// human edits, reprocessing and the recovery of stranded receipts.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/jobs"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// DefaultListLimit is applied when a list request names no limit.
const DefaultListLimit = 100

// Service manages receipts and hands processing work to the job queue.
type Service struct {
	store     storage.ReceiptStore
	publisher jobs.Publisher
	now       func() time.Time
	log       zerolog.Logger
}

// New creates a Service. publisher may be nil, in which case nothing is enqueued.
func New(store storage.ReceiptStore, publisher jobs.Publisher, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("component", "receipts").Logger(),
	}
}

// Created is the outcome of Create. JobID is empty when nothing was enqueued.
type Created struct {
	Receipt *domain.Receipt
	JobID   string
}

// Create stores a new receipt and, when it is waiting for processing,
// enqueues a pipeline job. A failed enqueue does not undo the insert: the
// receipt stays in processing and the stale sweep picks it up.
func (s *Service) Create(ctx context.Context, r *domain.Receipt) (*Created, error) {
	r.ID = ""
	r.ProcessingJobID = ""
	r.ProcessingError = ""
	r.TextractData = nil
	r.ApplyDefaults()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateReceipt(ctx, r); err != nil {
		return nil, fmt.Errorf("create receipt: %w", err)
	}

	out := &Created{Receipt: r}
	if r.ValidationStatus != domain.StatusProcessing {
		return out, nil
	}
	jobID, err := s.enqueue(ctx, r)
	if err != nil {
		s.log.Warn().Err(err).Str("receipt_id", r.ID).Msg("receipt stored but not enqueued")
		return out, nil
	}
	out.JobID = jobID
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Receipt, error) {
	return s.store.GetReceipt(ctx, id)
}

// List returns receipts newest first.
func (s *Service) List(ctx context.Context, filter storage.ReceiptFilter) ([]*domain.Receipt, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	return s.store.ListReceipts(ctx, filter)
}

// Update applies a human edit. Pipeline bookkeeping cannot be changed this
// way, and a receipt cannot be moved back into processing; use Reprocess.
func (s *Service) Update(ctx context.Context, id string, apply func(*domain.Receipt) error) (*domain.Receipt, error) {
	r, err := s.store.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *r

	if err := apply(r); err != nil {
		return nil, err
	}
	if r.ValidationStatus == domain.StatusProcessing && before.ValidationStatus != domain.StatusProcessing {
		return nil, fmt.Errorf("%w: validation_status cannot be set to %s, reprocess the receipt instead", domain.ErrValidation, domain.StatusProcessing)
	}
	r.ID = before.ID
	r.CreatedDate = before.CreatedDate
	r.TextractData = before.TextractData
	r.ProcessingJobID = before.ProcessingJobID
	r.ApplyDefaults()
	if err := r.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.SaveReceipt(ctx, r); err != nil {
		return nil, fmt.Errorf("save receipt %s: %w", id, err)
	}
	return r, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteReceipt(ctx, id)
}

// Reprocessed is the outcome of Reprocess.
type Reprocessed struct {
	Receipt *domain.Receipt `json:"receipt"`
	JobID   string          `json:"job_id"`
}

// Reprocess sends a failed receipt, or with force a reviewed one, back
// through the pipeline.
func (s *Service) Reprocess(ctx context.Context, id string, force bool) (*Reprocessed, error) {
	current, err := s.store.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.ValidationStatus.CanReprocess(force) {
		return nil, fmt.Errorf("receipt %s is %s and cannot be reprocessed (force=%t): %w", id, current.ValidationStatus, force, domain.ErrConflict)
	}
	if len(current.ReceiptImageURLs) == 0 {
		return nil, fmt.Errorf("%w: receipt %s has no images", domain.ErrValidation, id)
	}

	r, err := s.store.UpdateReceiptIf(ctx, id, current.ValidationStatus, func(r *domain.Receipt) error {
		r.ValidationStatus = domain.StatusProcessing
		r.ProcessingError = ""
		r.ProcessingJobID = ""
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reset receipt %s: %w", id, err)
	}

	jobID, err := s.enqueue(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("enqueue receipt %s: %w", id, err)
	}
	s.log.Info().Str("receipt_id", id).Str("job_id", jobID).Bool("force", force).Msg("receipt reprocessing")
	return &Reprocessed{Receipt: r, JobID: jobID}, nil
}

// ProcessInBackground enqueues a receipt that is already waiting for processing.
func (s *Service) ProcessInBackground(ctx context.Context, id string) (string, error) {
	r, err := s.store.GetReceipt(ctx, id)
	if err != nil {
		return "", err
	}
	if r.ValidationStatus != domain.StatusProcessing {
		return "", fmt.Errorf("receipt %s is %s, not %s: %w", id, r.ValidationStatus, domain.StatusProcessing, domain.ErrConflict)
	}
	return s.enqueue(ctx, r)
}

// SweepStale re-enqueues receipts that have sat in processing without an
// update for longer than olderThan, dropping the claim of the job that
// stranded them. It returns how many receipts were enqueued.
func (s *Service) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	stale, err := s.store.ListReceipts(ctx, storage.ReceiptFilter{
		Status:        domain.StatusProcessing,
		UpdatedBefore: cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("list stale receipts: %w", err)
	}

	n := 0
	var errs []error
	for _, candidate := range stale {
		r, err := s.store.UpdateReceiptIf(ctx, candidate.ID, domain.StatusProcessing, func(r *domain.Receipt) error {
			if r.UpdatedDate.After(cutoff) {
				return errNotStale
			}
			r.ProcessingJobID = ""
			return nil
		})
		switch {
		case errors.Is(err, errNotStale), errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound):
			continue
		case err != nil:
			errs = append(errs, err)
			continue
		}

		jobID, err := s.enqueue(ctx, r)
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue receipt %s: %w", r.ID, err))
			if errors.Is(err, jobs.ErrQueueFull) || errors.Is(err, jobs.ErrQueueClosed) {
				break
			}
			continue
		}
		s.log.Info().Str("receipt_id", r.ID).Str("job_id", jobID).Msg("stale receipt re-enqueued")
		n++
	}
	return n, errors.Join(errs...)
}

var errNotStale = errors.New("receipt updated recently")

func (s *Service) enqueue(ctx context.Context, r *domain.Receipt) (string, error) {
	if s.publisher == nil {
		return "", jobs.ErrQueueClosed
	}
	job := &jobs.ProcessReceiptJob{
		ReceiptID: r.ID,
		Request:   domain.ProcessingRequestFor(r),
	}
	if err := s.publisher.PublishProcessReceipt(ctx, job); err != nil {
		return "", err
	}
	return job.JobID, nil
}
