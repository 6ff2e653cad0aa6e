package receipts

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/jobs"
	"github.com/dvloznov/grocery-tracker/internal/storage"
	"github.com/dvloznov/grocery-tracker/internal/storage/sqlite"
)

type MockPublisher struct {
	mu        sync.Mutex
	Published []*jobs.ProcessReceiptJob
	Err       error
}

func (m *MockPublisher) PublishProcessReceipt(_ context.Context, job *jobs.ProcessReceiptJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	job.JobID = "job-" + job.ReceiptID + "-" + string(rune('a'+len(m.Published)))
	m.Published = append(m.Published, job)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

func setup(t *testing.T) (*Service, *sqlite.SQLiteStore, *MockPublisher) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "receipts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pub := &MockPublisher{}
	return New(store, pub, zerolog.Nop()), store, pub
}

func newReceipt() *domain.Receipt {
	return &domain.Receipt{
		Supermarket:      "Tesco",
		PurchaseDate:     civil.Date{Year: 2025, Month: time.March, Day: 14},
		TotalAmount:      decimal.RequireFromString("23.45"),
		ReceiptImageURLs: []string{"/uploads/receipt.jpg"},
		UserEmail:        "sam@example.com",
		HouseholdID:      "h1",
	}
}

func TestCreate_EnqueuesProcessingReceipt(t *testing.T) {
	svc, store, pub := setup(t)

	out, err := svc.Create(context.Background(), newReceipt())
	require.NoError(t, err)
	require.NotEmpty(t, out.Receipt.ID)
	assert.Equal(t, domain.StatusProcessing, out.Receipt.ValidationStatus)
	assert.Equal(t, "GBP", out.Receipt.Currency)

	require.Len(t, pub.Published, 1)
	job := pub.Published[0]
	assert.Equal(t, out.JobID, job.JobID)
	assert.Equal(t, out.Receipt.ID, job.Request.ReceiptID)
	assert.Equal(t, "Tesco", job.Request.StoreName)
	assert.Equal(t, []string{"/uploads/receipt.jpg"}, job.Request.ImageURLs)

	stored, err := store.GetReceipt(context.Background(), out.Receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, stored.ValidationStatus)
}

func TestCreate_ReviewedReceiptIsNotEnqueued(t *testing.T) {
	svc, _, pub := setup(t)
	r := newReceipt()
	r.ValidationStatus = domain.StatusReviewInsights

	out, err := svc.Create(context.Background(), r)
	require.NoError(t, err)
	assert.Empty(t, out.JobID)
	assert.Empty(t, pub.Published)
}

func TestCreate_QueueFullKeepsReceipt(t *testing.T) {
	svc, store, pub := setup(t)
	pub.Err = jobs.ErrQueueFull

	out, err := svc.Create(context.Background(), newReceipt())
	require.NoError(t, err)
	assert.Empty(t, out.JobID)

	_, err = store.GetReceipt(context.Background(), out.Receipt.ID)
	assert.NoError(t, err)
}

func TestCreate_Invalid(t *testing.T) {
	svc, _, pub := setup(t)
	r := newReceipt()
	r.Supermarket = ""

	_, err := svc.Create(context.Background(), r)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, pub.Published)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)
	r := newReceipt()
	r.ValidationStatus = domain.StatusReviewInsights
	out, err := svc.Create(ctx, r)
	require.NoError(t, err)
	id := out.Receipt.ID

	updated, err := svc.Update(ctx, id, func(r *domain.Receipt) error {
		return json.NewDecoder(strings.NewReader(`{"notes":"checked","processing_job_id":"forged","id":"other"}`)).Decode(r)
	})
	require.NoError(t, err)
	assert.Equal(t, id, updated.ID)
	assert.Equal(t, "checked", updated.Notes)
	assert.Empty(t, updated.ProcessingJobID)
	assert.Equal(t, "Tesco", updated.Supermarket)

	updated, err = svc.Update(ctx, id, func(r *domain.Receipt) error {
		return json.NewDecoder(strings.NewReader(`{"items":[{"name":"MILK 2L","category":"dairy"}]}`)).Decode(r)
	})
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, domain.CategoryDairy, updated.Items[0].Category)
	stored, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryDairy, stored.Items[0].Category)

	_, err = svc.Update(ctx, id, func(r *domain.Receipt) error {
		r.ValidationStatus = domain.StatusProcessing
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Update(ctx, "missing", func(*domain.Receipt) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReprocess(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := setup(t)

	failed := newReceipt()
	failed.ValidationStatus = domain.StatusError
	failed.ProcessingError = "ocr: every image failed"
	failed.ProcessingJobID = "old-job"
	require.NoError(t, store.CreateReceipt(ctx, failed))

	res, err := svc.Reprocess(ctx, failed.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, res.Receipt.ValidationStatus)
	assert.Empty(t, res.Receipt.ProcessingError)
	assert.Empty(t, res.Receipt.ProcessingJobID)
	require.Len(t, pub.Published, 1)
	assert.Equal(t, res.JobID, pub.Published[0].JobID)

	// Already processing.
	_, err = svc.Reprocess(ctx, failed.ID, true)
	assert.ErrorIs(t, err, domain.ErrConflict)

	reviewed := newReceipt()
	reviewed.ValidationStatus = domain.StatusReviewInsights
	require.NoError(t, store.CreateReceipt(ctx, reviewed))

	_, err = svc.Reprocess(ctx, reviewed.ID, false)
	assert.ErrorIs(t, err, domain.ErrConflict)

	res, err = svc.Reprocess(ctx, reviewed.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, res.Receipt.ValidationStatus)
	assert.Len(t, pub.Published, 2)
}

func TestProcessInBackground(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := setup(t)

	r := newReceipt()
	r.ApplyDefaults()
	require.NoError(t, store.CreateReceipt(ctx, r))

	jobID, err := svc.ProcessInBackground(ctx, r.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
	assert.Len(t, pub.Published, 1)

	r.ValidationStatus = domain.StatusReviewInsights
	require.NoError(t, store.SaveReceipt(ctx, r))
	_, err = svc.ProcessInBackground(ctx, r.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSweepStale(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := setup(t)

	stranded := newReceipt()
	stranded.ApplyDefaults()
	stranded.ProcessingJobID = "dead-job"
	require.NoError(t, store.CreateReceipt(ctx, stranded))

	fresh := newReceipt()
	fresh.ApplyDefaults()
	require.NoError(t, store.CreateReceipt(ctx, fresh))

	// Nothing is old enough yet.
	n, err := svc.SweepStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	n, err = svc.SweepStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, pub.Published, 2)

	got, err := store.GetReceipt(ctx, stranded.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ProcessingJobID)

	isTest := false
	left, err := store.ListReceipts(ctx, storage.ReceiptFilter{Status: domain.StatusProcessing, IsTestData: &isTest})
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestSweepStale_StopsWhenQueueFull(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := setup(t)
	for i := 0; i < 3; i++ {
		r := newReceipt()
		r.ApplyDefaults()
		require.NoError(t, store.CreateReceipt(ctx, r))
	}
	pub.Err = jobs.ErrQueueFull
	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }

	n, err := svc.SweepStale(ctx, time.Hour)
	assert.ErrorIs(t, err, jobs.ErrQueueFull)
	assert.Zero(t, n)
}
