package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/grocery-tracker/internal/blob"
	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/housekeeping"
	"github.com/dvloznov/grocery-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/grocery-tracker/internal/metrics"
	"github.com/dvloznov/grocery-tracker/internal/nutrition"
	"github.com/dvloznov/grocery-tracker/internal/receipts"
	"github.com/dvloznov/grocery-tracker/internal/storage/sqlite"
)

type lookupFunc func(ctx context.Context, name string) (domain.Nutrients, bool, error)

func (f lookupFunc) Lookup(ctx context.Context, name string) (domain.Nutrients, bool, error) {
	return f(ctx, name)
}

type testServer struct {
	handler http.Handler
	store   *sqlite.SQLiteStore
	jobs    *inmemory.Store
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()
	dir := t.TempDir()

	store, err := sqlite.New(ctx, filepath.Join(dir, "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	uploads, err := blob.NewLocalStore(filepath.Join(dir, "uploads"), "/uploads/")
	require.NoError(t, err)

	jobStore := inmemory.NewStore()
	m := metrics.New()
	queue := inmemory.NewQueue(inmemory.Options{BufferSize: 10}, jobStore, m, log)
	t.Cleanup(func() { queue.Close() })

	lookup := lookupFunc(func(context.Context, string) (domain.Nutrients, bool, error) {
		return domain.Nutrients{}, false, nil
	})

	handler := NewRouter(Deps{
		Store:          store,
		Receipts:       receipts.New(store, queue, log),
		Housekeeping:   housekeeping.New(store, nil, nil, log),
		Nutrition:      nutrition.NewService(store, lookup, log),
		Jobs:           jobStore,
		Blobs:          uploads,
		UploadPrefix:   "receipts",
		MaxUploadBytes: 1 << 20,
		UploadsDir:     uploads.Dir(),
		Metrics:        m,
		CORSOrigins:    []string{"*"},
	}, log)

	return &testServer{handler: handler, store: store, jobs: jobStore, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const receiptBody = `{
	"supermarket": "Tesco",
	"purchase_date": "2025-03-14",
	"total_amount": "23.45",
	"receipt_image_urls": ["/uploads/receipts/a.jpg"],
	"user_email": "sam@example.com",
	"household_id": "h1"
}`

func TestBannerAndHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	banner := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "GroceryTrack API v1.0", banner["message"])
	assert.Equal(t, "running", banner["status"])

	rec = srv.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "connected", health["database"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReceiptLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/receipts", receiptBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.Receipt](t, rec)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, domain.StatusProcessing, created.ValidationStatus)

	jobID := rec.Header().Get("X-Job-ID")
	require.NotEmpty(t, jobID)
	rec = srv.do(t, http.MethodGet, "/api/jobs/"+jobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), created.ID)

	rec = srv.do(t, http.MethodGet, "/api/receipts?household_id=h1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Receipt](t, rec), 1)

	rec = srv.do(t, http.MethodGet, "/api/receipts?household_id=other", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	// Still processing, so not reprocessable.
	rec = srv.do(t, http.MethodPost, "/api/receipts/"+created.ID+"/reprocess", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodPut, "/api/receipts/"+created.ID, `{"notes":"checked","validation_status":"review_insights"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]string{"status": "success", "message": "Receipt updated"}, decode[map[string]string](t, rec))

	rec = srv.do(t, http.MethodGet, "/api/receipts/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.Receipt](t, rec)
	assert.Equal(t, "checked", got.Notes)
	assert.Equal(t, "Tesco", got.Supermarket)

	rec = srv.do(t, http.MethodPost, "/api/receipts/"+created.ID+"/reprocess?force=true", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[receipts.Reprocessed](t, rec).JobID)

	rec = srv.do(t, http.MethodDelete, "/api/receipts/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Receipt deleted", decode[map[string]string](t, rec)["message"])

	rec = srv.do(t, http.MethodGet, "/api/receipts/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
}

func TestReceiptValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/receipts", `{"supermarket":"Tesco","unexpected":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/receipts", `{"supermarket":"","user_email":"sam@example.com","purchase_date":"2025-03-14"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "supermarket")

	rec = srv.do(t, http.MethodGet, "/api/receipts?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBudgets(t *testing.T) {
	srv := newTestServer(t)
	body := `{"household_id":"h1","user_email":"sam@example.com","amount":"400","period_start":"2025-03-01","period_end":"2025-03-31"}`

	rec := srv.do(t, http.MethodPost, "/api/budgets", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	budget := decode[domain.Budget](t, rec)
	assert.True(t, budget.IsActive)
	assert.Equal(t, domain.BudgetMonthly, budget.Type)
	assert.Equal(t, "GBP", budget.Currency)

	// One active budget per household.
	rec = srv.do(t, http.MethodPost, "/api/budgets", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/budgets?household_id=h1&is_active=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Budget](t, rec), 1)

	rec = srv.do(t, http.MethodGet, "/api/budgets?is_active=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPut, "/api/budgets/"+budget.ID, `{"amount":"450"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/budgets/"+budget.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "450", decode[domain.Budget](t, rec).Amount.String())

	rec = srv.do(t, http.MethodPut, "/api/budgets/"+budget.ID, `{"period_end":"2025-02-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/api/budgets/"+budget.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Budget deleted", decode[map[string]string](t, rec)["message"])
}

func TestHouseholds(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/households", `{"name":"Flat 3","admin_id":"u1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	h := decode[domain.Household](t, rec)
	require.NotEmpty(t, h.ID)

	rec = srv.do(t, http.MethodGet, "/api/households/"+h.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Flat 3", decode[domain.Household](t, rec).Name)

	rec = srv.do(t, http.MethodGet, "/api/households", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Household](t, rec), 1)

	rec = srv.do(t, http.MethodPost, "/api/households", `{"admin_id":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "name is required")
}

func TestUpload(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "till roll.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("\xff\xd8\xff\xe0 fake jpeg"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode[map[string]string](t, rec)
	assert.True(t, strings.HasPrefix(out["file_url"], "/uploads/receipts/receipt-"), out["file_url"])
	assert.True(t, strings.HasSuffix(out["filename"], "-till_roll.jpg"), out["filename"])
	assert.Equal(t, "till roll.jpg", out["original_filename"])

	rec = srv.do(t, http.MethodGet, out["file_url"], "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "\xff\xd8\xff\xe0 fake jpeg", rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/upload", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreditLogsAndReport(t *testing.T) {
	srv := newTestServer(t)

	for _, body := range []string{
		`{"user_email":"a@example.com","household_id":"h1","event_type":"receipt_scan","credits_consumed":3,"timestamp":"2025-03-01T10:00:00Z"}`,
		`{"user_email":"b@example.com","household_id":"h1","event_type":"receipt_scan","credits_consumed":2,"timestamp":"2025-03-10T10:00:00Z"}`,
		`{"household_id":"h1","event_type":"nutrition_lookup","credits_consumed":1,"timestamp":"2025-04-01T10:00:00Z"}`,
	} {
		rec := srv.do(t, http.MethodPost, "/api/credit-logs", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := srv.do(t, http.MethodPost, "/api/credit-logs", `{"credits_consumed":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/credit-logs?user_email=a@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.CreditLog](t, rec), 1)

	rec = srv.do(t, http.MethodGet, "/api/functions/getComprehensiveCreditReport?start_date=2025-03-01&end_date=2025-03-10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[domain.CreditReport](t, rec)
	assert.EqualValues(t, 5, report.TotalCreditsConsumed)
	assert.Equal(t, 2, report.TotalEvents)

	rec = srv.do(t, http.MethodPost, "/api/functions/getComprehensiveCreditReport", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	report = decode[domain.CreditReport](t, rec)
	assert.EqualValues(t, 6, report.TotalCreditsConsumed)
	assert.Contains(t, report.ByUser, domain.UnknownBucket)

	rec = srv.do(t, http.MethodGet, "/api/functions/getComprehensiveCreditReport?start_date=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFunctions(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/functions/doesNotExist", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/functions/sendInvitation", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/functions/onsDataFetcher", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"inflation_rate":3.8`)

	rec = srv.do(t, http.MethodPost, "/api/functions/sendInvitation", `{"invitee_email":"not-an-email","inviter_name":"Sam","invitation_link":"https://app.example.com/join","household_id":"h1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "invitee_email")

	rec = srv.do(t, http.MethodPost, "/api/functions/sendInvitation", `{"invitee_email":"kim@example.com","inviter_name":"Sam","invitation_link":"https://app.example.com/join","household_id":"h1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	inv := decode[housekeeping.InvitationResult](t, rec)
	assert.Len(t, inv.Token, domain.InvitationTokenLength)
	assert.False(t, inv.EmailSent)

	rec = srv.do(t, http.MethodPost, "/api/functions/generateModeledData", `{"action":"generate","user_email":"sam@example.com","household_id":"h1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, housekeeping.StatusSuccess, decode[housekeeping.StatusResult](t, rec).Status)

	rec = srv.do(t, http.MethodPost, "/api/functions/generateModeledData", `{"action":"explode","user_email":"sam@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, housekeeping.StatusResult{Status: "error", Message: "Invalid action"}, decode[housekeeping.StatusResult](t, rec))

	rec = srv.do(t, http.MethodPost, "/api/functions/rolloverBudget", `{"household_id":"h1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No active budget found", decode[housekeeping.RolloverResult](t, rec).Message)

	rec = srv.do(t, http.MethodPost, "/api/functions/aggregateGroceryData", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/functions/calorieNinjasNutrition", `{"canonical_name":"dragon fruit","household_id":"h1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, nutrition.StatusNotFound, decode[nutrition.Result](t, rec).Status)

	rec = srv.do(t, http.MethodPost, "/api/functions/processReceiptInBackground", `{"receipt_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/functions/deleteUserAccount", `{"user_email":"sam@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 10, decode[housekeeping.AccountDeletionResult](t, rec).Summary.Receipts)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodOptions, "/api/receipts", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	srv.do(t, http.MethodGet, "/api/health", "")
	srv.do(t, http.MethodGet, "/api/nope", "")

	rec := srv.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `grocerytrack_http_requests_total{code="200",method="GET",route="GET /api/health"} 1`)
	assert.Contains(t, body, `route="unmatched"`)
}
