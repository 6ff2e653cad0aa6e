package sqlite

import (
	"context"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

func (s *SQLiteStore) CreateHousehold(ctx context.Context, h *domain.Household) error {
	stamp(&h.ID, &h.CreatedDate, &h.UpdatedDate)
	return insertDoc(ctx, s.db, tableHouseholds, h.ID, h.CreatedDate, h)
}

func (s *SQLiteStore) GetHousehold(ctx context.Context, id string) (*domain.Household, error) {
	return getDoc[domain.Household](ctx, s.db, tableHouseholds, id)
}

func (s *SQLiteStore) ListHouseholds(ctx context.Context, limit int) ([]*domain.Household, error) {
	return findDocs[domain.Household](ctx, s.db, tableHouseholds, nil, limit)
}

func (s *SQLiteStore) CreateInvitation(ctx context.Context, inv *domain.HouseholdInvitation) error {
	stamp(&inv.ID, &inv.CreatedDate, &inv.UpdatedDate)
	return insertDoc(ctx, s.db, tableInvitations, inv.ID, inv.CreatedDate, inv)
}

func (s *SQLiteStore) DeleteInvitationsByInvitee(ctx context.Context, email string) (int64, error) {
	return deleteWhere(ctx, s.db, tableInvitations, (&where{}).eq("invitee_email", email))
}
