package housekeeping

import (
	"context"
	"fmt"
	"math/rand/v2"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// Modeled data actions.
const (
	ActionGenerate = "generate"
	ActionRemove   = "remove"
)

const modeledReceiptCount = 10

func receiptsOf(userEmail string) storage.ReceiptFilter {
	return storage.ReceiptFilter{UserEmail: userEmail}
}

// GenerateModeledData inserts or removes synthetic receipts for a user.
// Unknown actions yield an error status rather than an error.
func (s *Service) GenerateModeledData(ctx context.Context, action, userEmail, householdID string) (*StatusResult, error) {
	switch action {
	case ActionGenerate:
		receipts := s.modeledReceipts(userEmail, householdID)
		if err := s.store.CreateReceipts(ctx, receipts); err != nil {
			return nil, fmt.Errorf("insert modeled receipts: %w", err)
		}
		return &StatusResult{Status: StatusSuccess, Message: fmt.Sprintf("Generated %d test receipts", len(receipts))}, nil

	case ActionRemove:
		isTest := true
		filter := receiptsOf(userEmail)
		filter.IsTestData = &isTest
		n, err := s.store.DeleteReceipts(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("remove modeled receipts: %w", err)
		}
		return &StatusResult{Status: StatusSuccess, Message: fmt.Sprintf("Removed %d test receipts", n)}, nil
	}
	return &StatusResult{Status: StatusError, Message: "Invalid action"}, nil
}

func (s *Service) modeledReceipts(userEmail, householdID string) []*domain.Receipt {
	now := s.now()
	today := civil.DateOf(now)
	out := make([]*domain.Receipt, 0, modeledReceiptCount)
	for i := 0; i < modeledReceiptCount; i++ {
		r := &domain.Receipt{
			Supermarket:      fmt.Sprintf("Test Store %d", i+1),
			PurchaseDate:     today.AddDays(-3 * i),
			TotalAmount:      randomTotal(),
			HouseholdID:      householdID,
			UserEmail:        userEmail,
			IsTestData:       true,
			ValidationStatus: domain.StatusReviewInsights,
			Currency:         domain.DefaultCurrency,
			CreatedDate:      now,
		}
		r.ApplyDefaults()
		out = append(out, r)
	}
	return out
}

// randomTotal returns an amount in [20, 150] with two decimal places.
func randomTotal() decimal.Decimal {
	return decimal.NewFromFloat(20 + rand.Float64()*130).Round(2)
}
