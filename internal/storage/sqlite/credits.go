package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// CreateCreditLog appends a ledger entry. Entries are never updated.
func (s *SQLiteStore) CreateCreditLog(ctx context.Context, l *domain.CreditLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	return insertDoc(ctx, s.db, tableCreditLogs, l.ID, l.Timestamp, l)
}

func (s *SQLiteStore) ListCreditLogs(ctx context.Context, filter storage.CreditLogFilter) ([]*domain.CreditLog, error) {
	w := &where{}
	w.eqIf("household_id", filter.HouseholdID)
	w.eqIf("user_email", filter.UserEmail)
	if !filter.From.IsZero() {
		w.timeAfter("timestamp", filter.From)
	}
	if !filter.To.IsZero() {
		w.timeBefore("timestamp", filter.To)
	}
	return findDocs[domain.CreditLog](ctx, s.db, tableCreditLogs, w, filter.Limit)
}

func (s *SQLiteStore) DeleteCreditLogsByUser(ctx context.Context, userEmail string) (int64, error) {
	return deleteWhere(ctx, s.db, tableCreditLogs, (&where{}).eq("user_email", userEmail))
}
