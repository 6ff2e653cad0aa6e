package housekeeping

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// RolloverResult is the output of RolloverBudget.
type RolloverResult struct {
	Status           string         `json:"status"`
	Message          string         `json:"message"`
	PreviousBudgetID string         `json:"previous_budget_id,omitempty"`
	Budget           *domain.Budget `json:"budget,omitempty"`
}

// RolloverBudget closes the household's active budget and opens the next
// period with the same amount, limits and currency.
func (s *Service) RolloverBudget(ctx context.Context, householdID, userEmail string) (*RolloverResult, error) {
	now := s.now()
	old, created, err := s.store.RolloverBudget(ctx, householdID, func(active *domain.Budget) *domain.Budget {
		next := active.Rollover("", now)
		if userEmail != "" {
			next.UserEmail = userEmail
		}
		return next
	})
	if errors.Is(err, domain.ErrNotFound) {
		return &RolloverResult{Status: StatusError, Message: "No active budget found"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rollover budget: %w", err)
	}

	s.log.Info().
		Str("household_id", householdID).
		Str("previous_budget_id", old.ID).
		Str("budget_id", created.ID).
		Str("period_start", created.PeriodStart.String()).
		Msg("budget rolled over")
	return &RolloverResult{
		Status:           StatusSuccess,
		Message:          "Budget rolled over",
		PreviousBudgetID: old.ID,
		Budget:           created,
	}, nil
}

// RolloverExpiredBudgets rolls over every active budget whose period ended
// before today. It returns how many budgets were rolled over.
func (s *Service) RolloverExpiredBudgets(ctx context.Context) (int, error) {
	active := true
	today := civil.DateOf(s.now())
	expired, err := s.store.ListBudgets(ctx, storage.BudgetFilter{Active: &active, EndedBefore: today})
	if err != nil {
		return 0, fmt.Errorf("list expired budgets: %w", err)
	}

	n := 0
	var errs []error
	for _, b := range expired {
		if b.HouseholdID == "" {
			continue
		}
		// A budget may have ended several periods ago; roll until the current period is reached.
		for current := b; current != nil && current.PeriodEnd.Before(today); {
			res, err := s.RolloverBudget(ctx, current.HouseholdID, "")
			if err != nil {
				errs = append(errs, err)
				break
			}
			if res.Budget == nil {
				break
			}
			n++
			current = res.Budget
		}
	}
	return n, errors.Join(errs...)
}

// AssignResult is the output of AssignHouseholdToOldReceipts.
type AssignResult struct {
	Status          string `json:"status"`
	ReceiptsUpdated int64  `json:"receipts_updated"`
	BudgetsUpdated  int64  `json:"budgets_updated"`
}

// AssignHouseholdToOldReceipts attaches the user's household-less receipts and budgets to householdID.
func (s *Service) AssignHouseholdToOldReceipts(ctx context.Context, userEmail, householdID string) (*AssignResult, error) {
	receipts, err := s.store.AssignReceiptsHousehold(ctx, userEmail, householdID)
	if err != nil {
		return nil, fmt.Errorf("assign receipts: %w", err)
	}
	budgets, err := s.store.AssignBudgetsHousehold(ctx, userEmail, householdID)
	if err != nil {
		return nil, fmt.Errorf("assign budgets: %w", err)
	}
	return &AssignResult{Status: StatusSuccess, ReceiptsUpdated: receipts, BudgetsUpdated: budgets}, nil
}
