// Package storage defines the document-store abstraction the rest of the service is written against.
package storage

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/grocery-tracker/internal/domain"
)

// ReceiptFilter selects receipts. Zero-valued fields do not filter.
type ReceiptFilter struct {
	HouseholdID   string
	UserEmail     string
	Status        domain.ValidationStatus
	IsTestData    *bool
	UpdatedBefore time.Time

	// Limit caps the number of results; receipts come back newest first.
	Limit int
}

// BudgetFilter selects budgets. Zero-valued fields do not filter.
type BudgetFilter struct {
	HouseholdID string
	UserEmail   string
	Active      *bool
	EndedBefore civil.Date
	Limit       int
}

// CreditLogFilter selects credit logs. A zero From or To leaves that side of the range open.
type CreditLogFilter struct {
	HouseholdID string
	UserEmail   string
	From        time.Time
	To          time.Time
	Limit       int
}

// ReceiptStore persists receipts.
type ReceiptStore interface {
	CreateReceipt(ctx context.Context, r *domain.Receipt) error
	CreateReceipts(ctx context.Context, rs []*domain.Receipt) error
	GetReceipt(ctx context.Context, id string) (*domain.Receipt, error)
	ListReceipts(ctx context.Context, filter ReceiptFilter) ([]*domain.Receipt, error)

	// SaveReceipt overwrites the stored document (last write wins).
	SaveReceipt(ctx context.Context, r *domain.Receipt) error

	// UpdateReceiptIf loads the receipt, applies fn and writes the result back
	// only while the stored validation status still equals from. It returns
	// domain.ErrConflict when the status differs, and fn's error unchanged when fn fails.
	UpdateReceiptIf(ctx context.Context, id string, from domain.ValidationStatus, fn func(*domain.Receipt) error) (*domain.Receipt, error)

	DeleteReceipt(ctx context.Context, id string) error
	DeleteReceipts(ctx context.Context, filter ReceiptFilter) (int64, error)

	// AssignReceiptsHousehold sets householdID on the user's receipts that have none.
	AssignReceiptsHousehold(ctx context.Context, userEmail, householdID string) (int64, error)
}

// BudgetStore persists budgets.
type BudgetStore interface {
	CreateBudget(ctx context.Context, b *domain.Budget) error
	GetBudget(ctx context.Context, id string) (*domain.Budget, error)
	ListBudgets(ctx context.Context, filter BudgetFilter) ([]*domain.Budget, error)
	SaveBudget(ctx context.Context, b *domain.Budget) error
	DeleteBudget(ctx context.Context, id string) error
	DeleteBudgetsByUser(ctx context.Context, userEmail string) (int64, error)
	AssignBudgetsHousehold(ctx context.Context, userEmail, householdID string) (int64, error)

	// RolloverBudget deactivates the household's active budget and inserts the
	// budget returned by next in one transaction. It returns domain.ErrNotFound
	// when the household has no active budget.
	RolloverBudget(ctx context.Context, householdID string, next func(active *domain.Budget) *domain.Budget) (old, created *domain.Budget, err error)
}

// HouseholdStore persists households and their invitations.
type HouseholdStore interface {
	CreateHousehold(ctx context.Context, h *domain.Household) error
	GetHousehold(ctx context.Context, id string) (*domain.Household, error)
	ListHouseholds(ctx context.Context, limit int) ([]*domain.Household, error)

	CreateInvitation(ctx context.Context, inv *domain.HouseholdInvitation) error
	DeleteInvitationsByInvitee(ctx context.Context, email string) (int64, error)
}

// CreditLogStore persists the append-only credit ledger.
type CreditLogStore interface {
	CreateCreditLog(ctx context.Context, l *domain.CreditLog) error
	ListCreditLogs(ctx context.Context, filter CreditLogFilter) ([]*domain.CreditLog, error)
	DeleteCreditLogsByUser(ctx context.Context, userEmail string) (int64, error)
}

// NutritionStore persists nutrition facts and failed lookups.
type NutritionStore interface {
	FindNutritionFact(ctx context.Context, householdID, canonicalName string) (*domain.NutritionFact, error)
	CreateNutritionFact(ctx context.Context, f *domain.NutritionFact) error
	ListNutritionFacts(ctx context.Context, householdID string, limit int) ([]*domain.NutritionFact, error)
	DeleteNutritionFactsByUser(ctx context.Context, userEmail string) (int64, error)

	// RecordFailedLookup inserts a failed lookup or bumps the attempt count of
	// the existing one for the same household and name.
	RecordFailedLookup(ctx context.Context, l *domain.FailedNutritionLookup) (*domain.FailedNutritionLookup, error)
}

// TestRunStore persists OCR quality test runs and their logs.
type TestRunStore interface {
	CreateTestRun(ctx context.Context, tr *domain.TestRun) error
	GetTestRun(ctx context.Context, id string) (*domain.TestRun, error)
	UpdateTestRun(ctx context.Context, id string, fn func(*domain.TestRun) error) (*domain.TestRun, error)

	CreateQualityLogs(ctx context.Context, logs []*domain.OCRQualityLog) error
	ListQualityLogs(ctx context.Context, testRunID string, limit int) ([]*domain.OCRQualityLog, error)
}

// CatalogStore persists recipes, aggregated price data and failed scans.
type CatalogStore interface {
	CreateRecipe(ctx context.Context, r *domain.Recipe) error
	ListRecipes(ctx context.Context, limit int) ([]*domain.Recipe, error)

	GetAggregate(ctx context.Context, storeName, canonicalName string) (*domain.AggregatedGroceryData, error)
	SaveAggregate(ctx context.Context, a *domain.AggregatedGroceryData) error
	ListAggregates(ctx context.Context, limit int) ([]*domain.AggregatedGroceryData, error)

	CreateFailedScanLog(ctx context.Context, l *domain.FailedScanLog) error
}

// Store is the full document store.
type Store interface {
	ReceiptStore
	BudgetStore
	HouseholdStore
	CreditLogStore
	NutritionStore
	TestRunStore
	CatalogStore

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	Close() error
}
