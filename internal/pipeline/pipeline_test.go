package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/enhance"
	"github.com/dvloznov/grocery-tracker/internal/jobs"
	"github.com/dvloznov/grocery-tracker/internal/pipeline"
	"github.com/dvloznov/grocery-tracker/internal/storage/sqlite"
)

// MockTextExtractor is a function-field fake for the OCR adapter.
type MockTextExtractor struct {
	ExtractFunc func(ctx context.Context, refs []string) (*domain.OCRResult, error)
}

func (m *MockTextExtractor) Extract(ctx context.Context, refs []string) (*domain.OCRResult, error) {
	return m.ExtractFunc(ctx, refs)
}

// MockEnhancer is a function-field fake for the enhancement adapter.
type MockEnhancer struct {
	EnhanceFunc func(ctx context.Context, ocr *domain.OCRResult, meta enhance.Metadata) (*enhance.Result, error)
}

func (m *MockEnhancer) Enhance(ctx context.Context, ocr *domain.OCRResult, meta enhance.Metadata) (*enhance.Result, error) {
	return m.EnhanceFunc(ctx, ocr, meta)
}

// recordingRepo keeps failed scan logs in memory on top of a real store.
type recordingRepo struct {
	*sqlite.SQLiteStore

	mu    sync.Mutex
	scans []*domain.FailedScanLog
}

func (r *recordingRepo) CreateFailedScanLog(ctx context.Context, l *domain.FailedScanLog) error {
	r.mu.Lock()
	r.scans = append(r.scans, l)
	r.mu.Unlock()
	return r.SQLiteStore.CreateFailedScanLog(ctx, l)
}

type recordingObserver struct {
	steps    []string
	outcomes []domain.ValidationStatus
}

func (o *recordingObserver) ObserveStep(step string, _ time.Duration, _ error) {
	o.steps = append(o.steps, step)
}

func (o *recordingObserver) ObserveOutcome(status domain.ValidationStatus) {
	o.outcomes = append(o.outcomes, status)
}

func newRepo(t *testing.T) *recordingRepo {
	t.Helper()
	s, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return &recordingRepo{SQLiteStore: s}
}

func createTescoReceipt(t *testing.T, repo *recordingRepo) domain.ProcessingRequest {
	t.Helper()
	r := &domain.Receipt{
		Supermarket:      "Tesco",
		PurchaseDate:     civil.Date{Year: 2025, Month: time.March, Day: 8},
		TotalAmount:      decimal.RequireFromString("12.50"),
		ReceiptImageURLs: []string{"/uploads/receipts/receipt-1.jpg"},
		HouseholdID:      "h1",
		UserEmail:        "sam@example.com",
	}
	r.ApplyDefaults()
	require.NoError(t, repo.CreateReceipt(context.Background(), r))
	return domain.ProcessingRequestFor(r)
}

func tescoOCR(refs []string) *domain.OCRResult {
	res := &domain.OCRResult{TotalImages: len(refs)}
	for _, ref := range refs {
		res.Results = append(res.Results, domain.OCRImageResult{
			ImageURL:   ref,
			Status:     domain.OCRStatusSuccess,
			Lines:      []domain.OCRLine{{Text: "TESCO MILK 2L 1.20", Confidence: 98.5}},
			Confidence: 98.5,
		})
	}
	return res
}

func okOCR() *MockTextExtractor {
	return &MockTextExtractor{ExtractFunc: func(_ context.Context, refs []string) (*domain.OCRResult, error) {
		return tescoOCR(refs), nil
	}}
}

func okEnhancer() *MockEnhancer {
	return &MockEnhancer{EnhanceFunc: func(_ context.Context, _ *domain.OCRResult, meta enhance.Metadata) (*enhance.Result, error) {
		price := decimal.RequireFromString("1.20")
		return &enhance.Result{
			Items: []domain.ReceiptItem{{
				Name:          "TESCO MILK 2L",
				CanonicalName: "Semi Skimmed Milk",
				Category:      domain.CategoryDairy,
				TotalPrice:    &price,
				ApprovalState: domain.ApprovalPending,
			}},
			Insights: domain.ReceiptInsights{Summary: "Milk run at " + meta.StoreName, Highlights: []string{}},
		}, nil
	}}
}

func TestProcess_TescoReceipt(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	req := createTescoReceipt(t, repo)
	obs := &recordingObserver{}

	p := pipeline.NewProcessor(repo, okOCR(), okEnhancer(), zerolog.Nop(), pipeline.WithObserver(obs))
	got, err := p.Process(ctx, req, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReviewInsights, got.ValidationStatus)

	stored, err := repo.GetReceipt(ctx, req.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReviewInsights, stored.ValidationStatus)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Semi Skimmed Milk", stored.Items[0].CanonicalName)
	require.NotNil(t, stored.ReceiptInsights)
	assert.Equal(t, "Milk run at Tesco", stored.ReceiptInsights.Summary)
	require.NotNil(t, stored.TextractData)
	assert.Equal(t, 1, stored.TextractData.TotalImages)
	assert.Empty(t, stored.ProcessingError)
	assert.Equal(t, "job-1", stored.ProcessingJobID)
	assert.Empty(t, repo.scans)

	assert.Equal(t, []string{"claim", "ocr", "enhance", "save"}, obs.steps)
	assert.Equal(t, []domain.ValidationStatus{domain.StatusReviewInsights}, obs.outcomes)
}

func TestProcess_FallbackEnhancement(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	req := createTescoReceipt(t, repo)

	p := pipeline.NewProcessor(repo, okOCR(), enhance.NewEnhancer(nil, 0, zerolog.Nop()), zerolog.Nop())
	_, err := p.Process(ctx, req, "job-1")
	require.NoError(t, err)

	stored, err := repo.GetReceipt(ctx, req.ReceiptID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.True(t, stored.Items[0].TotalPrice.Equal(req.TotalAmount))
	assert.Equal(t, "Receipt from Tesco - automated analysis unavailable", stored.ReceiptInsights.Summary)
}

func TestProcess_ForcedOCRFailure(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	req := createTescoReceipt(t, repo)

	ocr := &MockTextExtractor{ExtractFunc: func(_ context.Context, refs []string) (*domain.OCRResult, error) {
		res := &domain.OCRResult{TotalImages: len(refs)}
		for _, ref := range refs {
			res.Results = append(res.Results, domain.OCRImageResult{ImageURL: ref, Status: domain.OCRStatusError, Error: "access denied"})
		}
		return res, fmt.Errorf("textract: access denied: %w", domain.ErrAuth)
	}}
	enhancerCalled := false
	enh := &MockEnhancer{EnhanceFunc: func(context.Context, *domain.OCRResult, enhance.Metadata) (*enhance.Result, error) {
		enhancerCalled = true
		return nil, errors.New("unreachable")
	}}

	p := pipeline.NewProcessor(repo, ocr, enh, zerolog.Nop())
	_, err := p.Process(ctx, req, "job-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, domain.StageOCR, pipeline.StageOf(err))
	assert.False(t, enhancerCalled)

	stored, err := repo.GetReceipt(ctx, req.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, stored.ValidationStatus)
	assert.Contains(t, stored.ProcessingError, "access denied")
	assert.Empty(t, stored.Items)

	require.Len(t, repo.scans, 1)
	scan := repo.scans[0]
	assert.Equal(t, domain.StageOCR, scan.ErrorStage)
	assert.Equal(t, req.ReceiptID, scan.ReceiptID)
	assert.Equal(t, "sam@example.com", scan.UserEmail)
	assert.Equal(t, "h1", scan.HouseholdID)
	assert.Equal(t, req.ImageURLs, scan.ImageURLs)
}

func TestProcess_EnhancementFailure(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	req := createTescoReceipt(t, repo)

	enh := &MockEnhancer{EnhanceFunc: func(context.Context, *domain.OCRResult, enhance.Metadata) (*enhance.Result, error) {
		return nil, fmt.Errorf("gemini: bad key: %w", domain.ErrAuth)
	}}

	p := pipeline.NewProcessor(repo, okOCR(), enh, zerolog.Nop())
	_, err := p.Process(ctx, req, "job-1")
	require.ErrorIs(t, err, domain.ErrAuth)

	stored, err := repo.GetReceipt(ctx, req.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, stored.ValidationStatus)
	assert.Equal(t, "gemini: bad key: upstream authentication failure", stored.ProcessingError)
	require.Len(t, repo.scans, 1)
	assert.Equal(t, domain.StageLLMEnhancement, repo.scans[0].ErrorStage)
}

func TestProcess_SkipsReceiptsThatMovedOn(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	p := pipeline.NewProcessor(repo, okOCR(), okEnhancer(), zerolog.Nop())

	t.Run("already reviewed", func(t *testing.T) {
		req := createTescoReceipt(t, repo)
		_, err := p.Process(ctx, req, "job-1")
		require.NoError(t, err)

		_, err = p.Process(ctx, req, "job-2")
		assert.ErrorIs(t, err, pipeline.ErrSkipped)

		stored, err := repo.GetReceipt(ctx, req.ReceiptID)
		require.NoError(t, err)
		assert.Equal(t, "job-1", stored.ProcessingJobID)
	})

	t.Run("claimed by another job", func(t *testing.T) {
		req := createTescoReceipt(t, repo)
		_, err := repo.UpdateReceiptIf(ctx, req.ReceiptID, domain.StatusProcessing, func(r *domain.Receipt) error {
			r.ProcessingJobID = "job-other"
			return nil
		})
		require.NoError(t, err)

		_, err = p.Process(ctx, req, "job-3")
		assert.ErrorIs(t, err, pipeline.ErrSkipped)

		stored, err := repo.GetReceipt(ctx, req.ReceiptID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessing, stored.ValidationStatus)
	})

	t.Run("deleted", func(t *testing.T) {
		req := createTescoReceipt(t, repo)
		require.NoError(t, repo.DeleteReceipt(ctx, req.ReceiptID))

		_, err := p.Process(ctx, req, "job-4")
		assert.ErrorIs(t, err, pipeline.ErrSkipped)
	})
}

func TestHandleJob_MarksFailedOnlyOnFinalAttempt(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	req := createTescoReceipt(t, repo)

	ocr := &MockTextExtractor{ExtractFunc: func(_ context.Context, refs []string) (*domain.OCRResult, error) {
		return &domain.OCRResult{TotalImages: len(refs)}, fmt.Errorf("textract: timeout: %w", domain.ErrNetwork)
	}}
	p := pipeline.NewProcessor(repo, ocr, okEnhancer(), zerolog.Nop())

	job := &jobs.ProcessReceiptJob{JobID: "job-1", ReceiptID: req.ReceiptID, Request: req, MaxRetries: 1}
	err := p.HandleJob(ctx, job)
	require.ErrorIs(t, err, domain.ErrNetwork)
	assert.True(t, jobs.Retryable(err))

	stored, err := repo.GetReceipt(ctx, req.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, stored.ValidationStatus)
	assert.Empty(t, repo.scans)

	job.RetryCount = 1
	require.Error(t, p.HandleJob(ctx, job))

	stored, err = repo.GetReceipt(ctx, req.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, stored.ValidationStatus)
	assert.Len(t, repo.scans, 1)
}

func TestHandleJob_SkippedIsSuccess(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	p := pipeline.NewProcessor(repo, okOCR(), okEnhancer(), zerolog.Nop())

	job := &jobs.ProcessReceiptJob{JobID: "job-1", Request: domain.ProcessingRequest{ReceiptID: "missing"}}
	assert.NoError(t, p.HandleJob(ctx, job))
}

func TestHandleJob_RunsThroughQueue(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	req := createTescoReceipt(t, repo)
	p := pipeline.NewProcessor(repo, okOCR(), okEnhancer(), zerolog.Nop())

	store := inmemoryStore(t)
	q := newQueue(t, store)
	require.NoError(t, q.Start(ctx, p.HandleJob))

	job := &jobs.ProcessReceiptJob{Request: req}
	require.NoError(t, q.PublishProcessReceipt(ctx, job))

	require.Eventually(t, func() bool {
		r, err := repo.GetReceipt(ctx, req.ReceiptID)
		return err == nil && r.ValidationStatus == domain.StatusReviewInsights
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		got, err := store.GetJob(ctx, job.JobID)
		return err == nil && got.Status == jobs.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}
