package middleware

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/jobs"
	"github.com/dvloznov/grocery-tracker/internal/logger"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("get receipt: %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: bad date", domain.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("lost race: %w", domain.ErrConflict), http.StatusConflict},
		{jobs.ErrQueueFull, http.StatusServiceUnavailable},
		{fmt.Errorf("textract: %w", domain.ErrNetwork), http.StatusBadGateway},
		{fmt.Errorf("gemini: %w", domain.ErrAuth), http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestWriteErr_HidesInternalDetails(t *testing.T) {
	var logs bytes.Buffer
	req := httptest.NewRequest(http.MethodGet, "/api/receipts", nil)
	req = req.WithContext(logger.WithContext(req.Context(), zerolog.New(&logs)))
	rec := httptest.NewRecorder()

	WriteErr(rec, req, errors.New("database is locked"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
	assert.Contains(t, logs.String(), "database is locked")
}

type sample struct {
	Email string `json:"email" validate:"required,email"`
	Kind  string `json:"kind" validate:"omitempty,oneof=monthly weekly"`
}

func decodeBody(body string) (sample, error) {
	var s sample
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	err := DecodeJSON(httptest.NewRecorder(), req, &s)
	return s, err
}

func TestDecodeJSON(t *testing.T) {
	s, err := decodeBody(`{"email":"sam@example.com","kind":"weekly"}`)
	require.NoError(t, err)
	assert.Equal(t, "weekly", s.Kind)

	for name, body := range map[string]string{
		"empty":         ``,
		"unknown field": `{"email":"sam@example.com","extra":true}`,
		"trailing data": `{"email":"sam@example.com"}{}`,
		"bad json":      `{"email":`,
	} {
		_, err := decodeBody(body)
		assert.ErrorIs(t, err, domain.ErrValidation, name)
	}

	_, err = decodeBody(`{}`)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "email is required")

	_, err = decodeBody(`{"email":"nope","kind":"daily"}`)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "email must be a valid email address")
	assert.Contains(t, err.Error(), "kind must be one of [monthly weekly]")
}

func TestRecovery(t *testing.T) {
	h := Recovery(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestRequestIDAndLogger(t *testing.T) {
	var logs bytes.Buffer
	var seen string
	h := RequestID(Logger(zerolog.New(&logs))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
		log := logger.FromContext(r.Context())
		log.Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, 2, strings.Count(logs.String(), `"request_id":"req-42"`))
	assert.Contains(t, logs.String(), `"status":418`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type recordedRequest struct {
	method, route string
	code          int
}

type requestRecorder []recordedRequest

func (r *requestRecorder) ObserveRequest(method, route string, code int, _ time.Duration) {
	*r = append(*r, recordedRequest{method, route, code})
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/receipts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	var seen requestRecorder
	h := Metrics(&seen)(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/receipts/abc", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, seen, 2)
	assert.Equal(t, recordedRequest{"GET", "GET /api/receipts/{id}", http.StatusNoContent}, seen[0])
	assert.Equal(t, recordedRequest{"GET", "unmatched", http.StatusNotFound}, seen[1])
}
