package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

func receiptWhere(f storage.ReceiptFilter) *where {
	w := &where{}
	w.eqIf("household_id", f.HouseholdID)
	w.eqIf("user_email", f.UserEmail)
	w.eqIf("validation_status", string(f.Status))
	if f.IsTestData != nil {
		w.eq("is_test_data", *f.IsTestData)
	}
	if !f.UpdatedBefore.IsZero() {
		w.timeBefore("updated_date", f.UpdatedBefore)
	}
	return w
}

// CreateReceipt stores a new receipt, assigning an ID when it has none.
func (s *SQLiteStore) CreateReceipt(ctx context.Context, r *domain.Receipt) error {
	stamp(&r.ID, &r.CreatedDate, &r.UpdatedDate)
	return insertDoc(ctx, s.db, tableReceipts, r.ID, r.CreatedDate, r)
}

// CreateReceipts stores all receipts or none of them.
func (s *SQLiteStore) CreateReceipts(ctx context.Context, rs []*domain.Receipt) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rs {
			stamp(&r.ID, &r.CreatedDate, &r.UpdatedDate)
			if err := insertDoc(ctx, tx, tableReceipts, r.ID, r.CreatedDate, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetReceipt(ctx context.Context, id string) (*domain.Receipt, error) {
	return getDoc[domain.Receipt](ctx, s.db, tableReceipts, id)
}

func (s *SQLiteStore) ListReceipts(ctx context.Context, filter storage.ReceiptFilter) ([]*domain.Receipt, error) {
	return findDocs[domain.Receipt](ctx, s.db, tableReceipts, receiptWhere(filter), filter.Limit)
}

func (s *SQLiteStore) SaveReceipt(ctx context.Context, r *domain.Receipt) error {
	r.UpdatedDate = time.Now().UTC()
	return replaceDoc(ctx, s.db, tableReceipts, r.ID, r)
}

func (s *SQLiteStore) UpdateReceiptIf(ctx context.Context, id string, from domain.ValidationStatus, fn func(*domain.Receipt) error) (*domain.Receipt, error) {
	var updated *domain.Receipt
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		r, err := getDoc[domain.Receipt](ctx, tx, tableReceipts, id)
		if err != nil {
			return err
		}
		if r.ValidationStatus != from {
			return fmt.Errorf("receipt %s is %s, expected %s: %w", id, r.ValidationStatus, from, domain.ErrConflict)
		}
		if err := fn(r); err != nil {
			return err
		}
		r.UpdatedDate = time.Now().UTC()

		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode receipt document: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE receipts SET doc = ? WHERE id = ? AND "+field("validation_status")+" = ?",
			string(data), id, string(from),
		)
		if err != nil {
			return storeErr("update", tableReceipts, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return storeErr("update", tableReceipts, err)
		} else if n == 0 {
			return fmt.Errorf("receipt %s changed status: %w", id, domain.ErrConflict)
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLiteStore) DeleteReceipt(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db, tableReceipts, id)
}

// DeleteReceipts removes every receipt matching filter; Limit is ignored.
func (s *SQLiteStore) DeleteReceipts(ctx context.Context, filter storage.ReceiptFilter) (int64, error) {
	return deleteWhere(ctx, s.db, tableReceipts, receiptWhere(filter))
}

func (s *SQLiteStore) AssignReceiptsHousehold(ctx context.Context, userEmail, householdID string) (int64, error) {
	w := (&where{}).eq("user_email", userEmail).absent("household_id")
	return setFieldWhere(ctx, s.db, tableReceipts, "household_id", householdID, w)
}
