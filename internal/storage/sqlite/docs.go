package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

// Collection table names.
const (
	tableReceipts       = "receipts"
	tableBudgets        = "budgets"
	tableHouseholds     = "households"
	tableInvitations    = "household_invitations"
	tableCreditLogs     = "credit_logs"
	tableNutritionFacts = "nutrition_facts"
	tableFailedLookups  = "failed_nutrition_lookups"
	tableTestRuns       = "test_runs"
	tableQualityLogs    = "ocr_quality_logs"
	tableRecipes        = "recipes"
	tableAggregates     = "aggregated_grocery_data"
	tableFailedScanLogs = "failed_scan_logs"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// where accumulates json_extract conditions on a document.
type where struct {
	conds []string
	args  []any
}

func field(name string) string {
	return "json_extract(doc, '$." + name + "')"
}

// eq adds field = v. Booleans are compared as the integers json_extract returns.
func (w *where) eq(name string, v any) *where {
	if b, ok := v.(bool); ok {
		if b {
			v = 1
		} else {
			v = 0
		}
	}
	w.conds = append(w.conds, field(name)+" = ?")
	w.args = append(w.args, v)
	return w
}

// eqIf adds field = v only when v is not empty.
func (w *where) eqIf(name, v string) *where {
	if v != "" {
		w.eq(name, v)
	}
	return w
}

// absent matches documents where the field is missing, null or empty.
func (w *where) absent(name string) *where {
	w.conds = append(w.conds, "("+field(name)+" IS NULL OR "+field(name)+" = '')")
	return w
}

// timeAfter and timeBefore compare RFC 3339 timestamps as julian days, so
// differing fractional-second precision sorts correctly.
func (w *where) timeAfter(name string, t time.Time) *where {
	w.conds = append(w.conds, "julianday("+field(name)+") >= julianday(?)")
	w.args = append(w.args, t.UTC().Format(time.RFC3339Nano))
	return w
}

func (w *where) timeBefore(name string, t time.Time) *where {
	w.conds = append(w.conds, "julianday("+field(name)+") <= julianday(?)")
	w.args = append(w.args, t.UTC().Format(time.RFC3339Nano))
	return w
}

// lessThan compares the field as text; used for YYYY-MM-DD dates.
func (w *where) lessThan(name string, v string) *where {
	w.conds = append(w.conds, field(name)+" < ?")
	w.args = append(w.args, v)
	return w
}

func (w *where) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

// storeErr wraps a driver error as a store failure, or as a conflict when a
// uniqueness rule was violated.
func storeErr(op, table string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s %s: %w: %v", op, table, domain.ErrConflict, err)
	}
	return fmt.Errorf("%s %s: %w: %v", op, table, domain.ErrStore, err)
}

func notFound(table, id string) error {
	return fmt.Errorf("%s %s: %w", strings.TrimSuffix(table, "s"), id, domain.ErrNotFound)
}

// stamp fills in a missing ID and creation time and refreshes the update time.
func stamp(id *string, created, updated *time.Time) {
	now := time.Now().UTC()
	if *id == "" {
		*id = uuid.NewString()
	}
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

func insertDoc(ctx context.Context, q querier, table, id string, createdAt time.Time, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", table, err)
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO "+table+" (id, created_at, doc) VALUES (?, ?, ?)",
		id, createdAt.UnixNano(), string(data),
	)
	if err != nil {
		return storeErr("insert into", table, err)
	}
	return nil
}

// upsertDoc inserts the document or overwrites the one stored under the same ID.
func upsertDoc(ctx context.Context, q querier, table, id string, createdAt time.Time, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", table, err)
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO "+table+" (id, created_at, doc) VALUES (?, ?, ?) ON CONFLICT (id) DO UPDATE SET doc = excluded.doc",
		id, createdAt.UnixNano(), string(data),
	)
	if err != nil {
		return storeErr("upsert into", table, err)
	}
	return nil
}

// replaceDoc overwrites an existing document.
func replaceDoc(ctx context.Context, q querier, table, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", table, err)
	}
	res, err := q.ExecContext(ctx, "UPDATE "+table+" SET doc = ? WHERE id = ?", string(data), id)
	if err != nil {
		return storeErr("update", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("update", table, err)
	}
	if n == 0 {
		return notFound(table, id)
	}
	return nil
}

func getDoc[T any](ctx context.Context, q querier, table, id string) (*T, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT doc FROM "+table+" WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(table, id)
	}
	if err != nil {
		return nil, storeErr("select from", table, err)
	}
	return decodeDoc[T](table, raw)
}

// findOne returns the newest document matching w, or domain.ErrNotFound.
func findOne[T any](ctx context.Context, q querier, table string, w *where) (*T, error) {
	docs, err := findDocs[T](ctx, q, table, w, 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s: %w", table, domain.ErrNotFound)
	}
	return docs[0], nil
}

// findDocs returns documents matching w, newest first. limit <= 0 means no limit.
func findDocs[T any](ctx context.Context, q querier, table string, w *where, limit int) ([]*T, error) {
	if w == nil {
		w = &where{}
	}
	query := "SELECT doc FROM " + table + w.clause() + " ORDER BY created_at DESC, id"
	args := w.args
	if limit > 0 {
		query += " LIMIT ?"
		args = append(append([]any(nil), args...), limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("select from", table, err)
	}
	defer rows.Close()

	docs := []*T{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, storeErr("scan", table, err)
		}
		doc, err := decodeDoc[T](table, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate", table, err)
	}
	return docs, nil
}

func decodeDoc[T any](table, raw string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode %s document: %w: %v", table, domain.ErrStore, err)
	}
	return &v, nil
}

func deleteByID(ctx context.Context, q querier, table, id string) error {
	res, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return storeErr("delete from", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete from", table, err)
	}
	if n == 0 {
		return notFound(table, id)
	}
	return nil
}

func deleteWhere(ctx context.Context, q querier, table string, w *where) (int64, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM "+table+w.clause(), w.args...)
	if err != nil {
		return 0, storeErr("delete from", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("delete from", table, err)
	}
	return n, nil
}

// setFieldWhere sets one top-level field, plus updated_date, on every matching document.
func setFieldWhere(ctx context.Context, q querier, table, name string, value any, w *where) (int64, error) {
	args := append([]any{value, time.Now().UTC().Format(time.RFC3339Nano)}, w.args...)
	res, err := q.ExecContext(ctx,
		"UPDATE "+table+" SET doc = json_set(doc, '$."+name+"', ?, '$.updated_date', ?)"+w.clause(),
		args...,
	)
	if err != nil {
		return 0, storeErr("update", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("update", table, err)
	}
	return n, nil
}

// inTx runs fn inside a transaction, committing when fn returns nil.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w: %v", domain.ErrStore, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w: %v", domain.ErrStore, err)
	}
	return nil
}
