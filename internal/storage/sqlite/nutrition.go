package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

func (s *SQLiteStore) FindNutritionFact(ctx context.Context, householdID, canonicalName string) (*domain.NutritionFact, error) {
	w := (&where{}).eq("household_id", householdID).eq("canonical_name", canonicalName)
	return findOne[domain.NutritionFact](ctx, s.db, tableNutritionFacts, w)
}

// CreateNutritionFact fails with domain.ErrConflict when the household already
// has a fact for the same canonical name.
func (s *SQLiteStore) CreateNutritionFact(ctx context.Context, f *domain.NutritionFact) error {
	stamp(&f.ID, &f.CreatedDate, &f.UpdatedDate)
	return insertDoc(ctx, s.db, tableNutritionFacts, f.ID, f.CreatedDate, f)
}

func (s *SQLiteStore) ListNutritionFacts(ctx context.Context, householdID string, limit int) ([]*domain.NutritionFact, error) {
	return findDocs[domain.NutritionFact](ctx, s.db, tableNutritionFacts, (&where{}).eqIf("household_id", householdID), limit)
}

func (s *SQLiteStore) DeleteNutritionFactsByUser(ctx context.Context, userEmail string) (int64, error) {
	return deleteWhere(ctx, s.db, tableNutritionFacts, (&where{}).eq("user_email", userEmail))
}

func (s *SQLiteStore) RecordFailedLookup(ctx context.Context, l *domain.FailedNutritionLookup) (*domain.FailedNutritionLookup, error) {
	var recorded *domain.FailedNutritionLookup
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		w := (&where{}).eq("household_id", l.HouseholdID).eq("canonical_name", l.CanonicalName)
		existing, err := findOne[domain.FailedNutritionLookup](ctx, tx, tableFailedLookups, w)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if l.AttemptCount == 0 {
				l.AttemptCount = 1
			}
			if l.LastAttemptDate.IsZero() {
				l.LastAttemptDate = time.Now().UTC()
			}
			stamp(&l.ID, &l.CreatedDate, &l.UpdatedDate)
			if err := insertDoc(ctx, tx, tableFailedLookups, l.ID, l.CreatedDate, l); err != nil {
				return err
			}
			recorded = l
			return nil
		case err != nil:
			return err
		}

		existing.AttemptCount++
		existing.LastAttemptDate = time.Now().UTC()
		if l.Source != "" {
			existing.Source = l.Source
		}
		existing.UpdatedDate = existing.LastAttemptDate
		if err := replaceDoc(ctx, tx, tableFailedLookups, existing.ID, existing); err != nil {
			return err
		}
		recorded = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}
