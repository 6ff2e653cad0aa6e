package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

func (s *SQLiteStore) CreateTestRun(ctx context.Context, tr *domain.TestRun) error {
	stamp(&tr.ID, &tr.CreatedDate, &tr.UpdatedDate)
	return insertDoc(ctx, s.db, tableTestRuns, tr.ID, tr.CreatedDate, tr)
}

func (s *SQLiteStore) GetTestRun(ctx context.Context, id string) (*domain.TestRun, error) {
	return getDoc[domain.TestRun](ctx, s.db, tableTestRuns, id)
}

// UpdateTestRun applies fn to the stored test run and writes it back in one transaction.
func (s *SQLiteStore) UpdateTestRun(ctx context.Context, id string, fn func(*domain.TestRun) error) (*domain.TestRun, error) {
	var updated *domain.TestRun
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		tr, err := getDoc[domain.TestRun](ctx, tx, tableTestRuns, id)
		if err != nil {
			return err
		}
		if err := fn(tr); err != nil {
			return err
		}
		tr.UpdatedDate = time.Now().UTC()
		if err := replaceDoc(ctx, tx, tableTestRuns, id, tr); err != nil {
			return err
		}
		updated = tr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLiteStore) CreateQualityLogs(ctx context.Context, logs []*domain.OCRQualityLog) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, l := range logs {
			if l.ID == "" {
				l.ID = uuid.NewString()
			}
			if l.Timestamp.IsZero() {
				l.Timestamp = time.Now().UTC()
			}
			if err := insertDoc(ctx, tx, tableQualityLogs, l.ID, l.Timestamp, l); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListQualityLogs(ctx context.Context, testRunID string, limit int) ([]*domain.OCRQualityLog, error) {
	return findDocs[domain.OCRQualityLog](ctx, s.db, tableQualityLogs, (&where{}).eqIf("test_run_id", testRunID), limit)
}
