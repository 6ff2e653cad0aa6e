package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// CreateBudget stores a new budget. A second active budget for the same
// household fails with domain.ErrConflict.
func (s *SQLiteStore) CreateBudget(ctx context.Context, b *domain.Budget) error {
	stamp(&b.ID, &b.CreatedDate, &b.UpdatedDate)
	return insertDoc(ctx, s.db, tableBudgets, b.ID, b.CreatedDate, b)
}

func (s *SQLiteStore) GetBudget(ctx context.Context, id string) (*domain.Budget, error) {
	return getDoc[domain.Budget](ctx, s.db, tableBudgets, id)
}

func (s *SQLiteStore) ListBudgets(ctx context.Context, filter storage.BudgetFilter) ([]*domain.Budget, error) {
	w := &where{}
	w.eqIf("household_id", filter.HouseholdID)
	w.eqIf("user_email", filter.UserEmail)
	if filter.Active != nil {
		w.eq("is_active", *filter.Active)
	}
	if filter.EndedBefore.IsValid() {
		w.lessThan("period_end", filter.EndedBefore.String())
	}
	return findDocs[domain.Budget](ctx, s.db, tableBudgets, w, filter.Limit)
}

func (s *SQLiteStore) SaveBudget(ctx context.Context, b *domain.Budget) error {
	b.UpdatedDate = time.Now().UTC()
	return replaceDoc(ctx, s.db, tableBudgets, b.ID, b)
}

func (s *SQLiteStore) DeleteBudget(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db, tableBudgets, id)
}

func (s *SQLiteStore) DeleteBudgetsByUser(ctx context.Context, userEmail string) (int64, error) {
	return deleteWhere(ctx, s.db, tableBudgets, (&where{}).eq("user_email", userEmail))
}

func (s *SQLiteStore) AssignBudgetsHousehold(ctx context.Context, userEmail, householdID string) (int64, error) {
	w := (&where{}).eq("user_email", userEmail).absent("household_id")
	return setFieldWhere(ctx, s.db, tableBudgets, "household_id", householdID, w)
}

func (s *SQLiteStore) RolloverBudget(ctx context.Context, householdID string, next func(active *domain.Budget) *domain.Budget) (old, created *domain.Budget, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		w := (&where{}).eq("household_id", householdID).eq("is_active", true)
		active, err := findOne[domain.Budget](ctx, tx, tableBudgets, w)
		if err != nil {
			return err
		}

		active.IsActive = false
		active.UpdatedDate = time.Now().UTC()
		if err := replaceDoc(ctx, tx, tableBudgets, active.ID, active); err != nil {
			return err
		}

		nb := next(active)
		stamp(&nb.ID, &nb.CreatedDate, &nb.UpdatedDate)
		if err := insertDoc(ctx, tx, tableBudgets, nb.ID, nb.CreatedDate, nb); err != nil {
			return err
		}
		old, created = active, nb
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return old, created, nil
}
