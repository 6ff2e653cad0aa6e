package housekeeping

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// creditReportLimit caps how many logs one report reads.
const creditReportLimit = 10000

// CreditReport aggregates credit logs with timestamps in [from, to]. A nil
// bound leaves that side open.
func (s *Service) CreditReport(ctx context.Context, from, to *time.Time) (*domain.CreditReport, error) {
	filter := storage.CreditLogFilter{Limit: creditReportLimit}
	if from != nil {
		filter.From = *from
	}
	if to != nil {
		filter.To = *to
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, fmt.Errorf("%w: end_date is before start_date", domain.ErrValidation)
	}

	logs, err := s.store.ListCreditLogs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list credit logs: %w", err)
	}

	flat := make([]domain.CreditLog, len(logs))
	for i, l := range logs {
		flat[i] = *l
	}
	return domain.BuildCreditReport(flat), nil
}
