package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

func (s *SQLiteStore) CreateRecipe(ctx context.Context, r *domain.Recipe) error {
	stamp(&r.ID, &r.CreatedDate, &r.UpdatedDate)
	return insertDoc(ctx, s.db, tableRecipes, r.ID, r.CreatedDate, r)
}

func (s *SQLiteStore) ListRecipes(ctx context.Context, limit int) ([]*domain.Recipe, error) {
	return findDocs[domain.Recipe](ctx, s.db, tableRecipes, nil, limit)
}

func (s *SQLiteStore) GetAggregate(ctx context.Context, storeName, canonicalName string) (*domain.AggregatedGroceryData, error) {
	w := (&where{}).eq("store_name", storeName).eq("item_canonical_name", canonicalName)
	return findOne[domain.AggregatedGroceryData](ctx, s.db, tableAggregates, w)
}

// SaveAggregate inserts or overwrites an aggregate by ID.
func (s *SQLiteStore) SaveAggregate(ctx context.Context, a *domain.AggregatedGroceryData) error {
	stamp(&a.ID, &a.CreatedDate, &a.UpdatedDate)
	return upsertDoc(ctx, s.db, tableAggregates, a.ID, a.CreatedDate, a)
}

func (s *SQLiteStore) ListAggregates(ctx context.Context, limit int) ([]*domain.AggregatedGroceryData, error) {
	return findDocs[domain.AggregatedGroceryData](ctx, s.db, tableAggregates, nil, limit)
}

func (s *SQLiteStore) CreateFailedScanLog(ctx context.Context, l *domain.FailedScanLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	return insertDoc(ctx, s.db, tableFailedScanLogs, l.ID, l.Timestamp, l)
}
