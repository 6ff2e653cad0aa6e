package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// AggregationResult is the output of AggregateGroceryData.
type AggregationResult struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	ReceiptsScanned   int    `json:"receipts_scanned"`
	ItemsProcessed    int    `json:"items_processed"`
	AggregatesUpdated int    `json:"aggregates_updated"`
	Mirrored          bool   `json:"mirrored"`
}

type aggregateKey struct {
	store, item string
}

// AggregateGroceryData folds the prices of reviewed receipt items into
// per-store, per-item price histories. Each receipt contributes at most one
// observation per item, so re-running is safe.
func (s *Service) AggregateGroceryData(ctx context.Context) (*AggregationResult, error) {
	notTest := false
	receipts, err := s.store.ListReceipts(ctx, storage.ReceiptFilter{
		Status:     domain.StatusReviewInsights,
		IsTestData: &notTest,
	})
	if err != nil {
		return nil, fmt.Errorf("list reviewed receipts: %w", err)
	}

	now := s.now()
	res := &AggregationResult{Status: StatusSuccess, ReceiptsScanned: len(receipts)}
	touched := map[aggregateKey]*domain.AggregatedGroceryData{}
	var dirty []aggregateKey
	isDirty := map[aggregateKey]bool{}

	for _, r := range receipts {
		for _, item := range r.Items {
			price, ok := observedPrice(item)
			if !ok {
				continue
			}
			key := aggregateKey{store: r.Supermarket, item: canonicalName(item)}

			agg, err := s.aggregateFor(ctx, key, touched)
			if err != nil {
				return nil, err
			}
			if agg.Observed(r.ID) {
				continue
			}

			agg.PriceObservations = append(agg.PriceObservations, domain.PriceObservation{
				ReceiptID:    r.ID,
				Price:        price,
				PurchaseDate: r.PurchaseDate,
			})
			if agg.LocationCity == "" {
				agg.LocationCity = r.StoreLocation
			}
			if item.Category != "" {
				agg.Category = item.Category
			}
			if !isDirty[key] {
				isDirty[key] = true
				dirty = append(dirty, key)
			}
			agg.LatestPrice = latestPrice(agg.PriceObservations)
			agg.LastUpdatedDate = now
			res.ItemsProcessed++
		}
	}

	rows := make([]*domain.AggregatedGroceryData, 0, len(dirty))
	for _, key := range dirty {
		agg := touched[key]
		if err := s.store.SaveAggregate(ctx, agg); err != nil {
			return nil, fmt.Errorf("save aggregate %s/%s: %w", agg.StoreName, agg.ItemCanonicalName, err)
		}
		rows = append(rows, agg)
	}
	res.AggregatesUpdated = len(rows)

	if s.mirror != nil && len(rows) > 0 {
		if err := s.mirror.MirrorAggregates(ctx, rows); err != nil {
			// The store is the source of truth; the warehouse catches up on the next run.
			s.log.Error().Err(err).Int("rows", len(rows)).Msg("mirror aggregates")
		} else {
			res.Mirrored = true
		}
	}

	res.Message = fmt.Sprintf("Aggregation completed: %d items from %d receipts", res.ItemsProcessed, res.ReceiptsScanned)
	s.log.Info().Int("items", res.ItemsProcessed).Int("aggregates", res.AggregatesUpdated).Msg("grocery data aggregated")
	return res, nil
}

func (s *Service) aggregateFor(ctx context.Context, key aggregateKey, touched map[aggregateKey]*domain.AggregatedGroceryData) (*domain.AggregatedGroceryData, error) {
	if agg, ok := touched[key]; ok {
		return agg, nil
	}
	agg, err := s.store.GetAggregate(ctx, key.store, key.item)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		agg = &domain.AggregatedGroceryData{
			StoreName:         key.store,
			ItemCanonicalName: key.item,
			Category:          domain.CategoryOther,
			PriceObservations: []domain.PriceObservation{},
		}
	case err != nil:
		return nil, fmt.Errorf("load aggregate %s/%s: %w", key.store, key.item, err)
	}
	touched[key] = agg
	return agg, nil
}

// observedPrice picks the unit price of an item, falling back to the line
// total. Rejected items, whole-receipt placeholders and items without a price
// do not count.
func observedPrice(item domain.ReceiptItem) (decimal.Decimal, bool) {
	if item.ApprovalState == domain.ApprovalRejected || item.CoversWholeReceipt() || canonicalName(item) == "" {
		return decimal.Zero, false
	}
	switch {
	case item.UnitPrice != nil && item.UnitPrice.IsPositive():
		return *item.UnitPrice, true
	case item.TotalPrice != nil && item.TotalPrice.IsPositive():
		return *item.TotalPrice, true
	}
	return decimal.Zero, false
}

func canonicalName(item domain.ReceiptItem) string {
	if name := strings.TrimSpace(item.CanonicalName); name != "" {
		return name
	}
	return strings.TrimSpace(item.Name)
}

// latestPrice returns the price of the most recent purchase; ties go to the later observation.
func latestPrice(obs []domain.PriceObservation) decimal.Decimal {
	var latest domain.PriceObservation
	for i, o := range obs {
		if i == 0 || !o.PurchaseDate.Before(latest.PurchaseDate) {
			latest = o
		}
	}
	return latest.Price
}
