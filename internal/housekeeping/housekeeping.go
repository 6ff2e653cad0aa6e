// Package housekeeping implements the account, household, budget, reporting
// and OCR-review operations exposed as RPC functions.
package housekeeping

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/mail"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// Result statuses returned to RPC callers.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// StatusResult is the generic {status, message} RPC answer.
type StatusResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// FeedbackAnalyzer summarizes OCR quality logs.
type FeedbackAnalyzer interface {
	AnalyzeFeedback(ctx context.Context, logs []*domain.OCRQualityLog) (*domain.FeedbackAnalysis, error)
}

// AggregateMirror copies aggregated price rows to an analytics warehouse.
type AggregateMirror interface {
	MirrorAggregates(ctx context.Context, rows []*domain.AggregatedGroceryData) error
}

// Service runs housekeeping operations against the document store.
type Service struct {
	store    storage.Store
	mailer   mail.Sender
	analyzer FeedbackAnalyzer
	mirror   AggregateMirror
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMirror mirrors aggregation output to m.
func WithMirror(m AggregateMirror) Option {
	return func(s *Service) { s.mirror = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(store storage.Store, mailer mail.Sender, analyzer FeedbackAnalyzer, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		mailer:   mailer,
		analyzer: analyzer,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("component", "housekeeping").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// sendBestEffort delivers msg and reports whether it went out. Failures are logged, never returned.
func (s *Service) sendBestEffort(ctx context.Context, msg mail.Message) bool {
	if s.mailer == nil {
		return false
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Warn().Err(err).Str("to", msg.To).Str("subject", msg.Subject).Msg("email not delivered")
		return false
	}
	return true
}
