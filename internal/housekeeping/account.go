package housekeeping

import (
	"context"
	"fmt"

	"github.com/dvloznov/grocery-tracker/internal/mail"
)

// DeletionSummary counts the documents removed per collection.
type DeletionSummary struct {
	Receipts             int64 `json:"receipts"`
	Budgets              int64 `json:"budgets"`
	HouseholdInvitations int64 `json:"household_invitations"`
	NutritionFacts       int64 `json:"nutrition_facts"`
	CreditLogs           int64 `json:"credit_logs"`
}

// AccountDeletionResult is the output of DeleteUserAccount.
type AccountDeletionResult struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Summary DeletionSummary `json:"summary"`
}

// DeleteUserAccount removes everything owned by userEmail. Running it again
// succeeds with zero counts.
func (s *Service) DeleteUserAccount(ctx context.Context, userID, userEmail string) (*AccountDeletionResult, error) {
	var (
		sum DeletionSummary
		err error
	)
	if sum.Receipts, err = s.store.DeleteReceipts(ctx, receiptsOf(userEmail)); err != nil {
		return nil, fmt.Errorf("delete receipts: %w", err)
	}
	if sum.Budgets, err = s.store.DeleteBudgetsByUser(ctx, userEmail); err != nil {
		return nil, fmt.Errorf("delete budgets: %w", err)
	}
	if sum.HouseholdInvitations, err = s.store.DeleteInvitationsByInvitee(ctx, userEmail); err != nil {
		return nil, fmt.Errorf("delete invitations: %w", err)
	}
	if sum.NutritionFacts, err = s.store.DeleteNutritionFactsByUser(ctx, userEmail); err != nil {
		return nil, fmt.Errorf("delete nutrition facts: %w", err)
	}
	if sum.CreditLogs, err = s.store.DeleteCreditLogsByUser(ctx, userEmail); err != nil {
		return nil, fmt.Errorf("delete credit logs: %w", err)
	}

	s.sendBestEffort(ctx, mail.Message{
		To:      userEmail,
		Subject: "Account Deleted",
		Body: fmt.Sprintf(
			"Your account has been deleted. Removed %d receipts, %d budgets, %d invitations, %d nutrition facts and %d credit logs.",
			sum.Receipts, sum.Budgets, sum.HouseholdInvitations, sum.NutritionFacts, sum.CreditLogs,
		),
	})

	s.log.Info().Str("user_id", userID).Interface("summary", sum).Msg("account deleted")
	return &AccountDeletionResult{
		Status:  StatusSuccess,
		Message: "Account deleted successfully",
		Summary: sum,
	}, nil
}
