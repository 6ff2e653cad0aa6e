package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

// AggregateRow is one snapshot of an item's price history.
type AggregateRow struct {
	AggregateID       string                `bigquery:"aggregate_id"`        // REQUIRED
	StoreName         string                `bigquery:"store_name"`          // REQUIRED
	LocationCity      bigquery.NullString   `bigquery:"location_city"`       // NULLABLE
	ItemCanonicalName string                `bigquery:"item_canonical_name"` // REQUIRED
	Category          string                `bigquery:"category"`            // REQUIRED
	LatestPrice       *big.Rat              `bigquery:"latest_price"`        // NUMERIC, REQUIRED
	ObservationCount  int64                 `bigquery:"observation_count"`   // REQUIRED
	PriceObservations []PriceObservationRow `bigquery:"price_observations"`  // REPEATED RECORD
	LastUpdatedTS     time.Time             `bigquery:"last_updated_ts"`     // REQUIRED
	MirroredTS        time.Time             `bigquery:"mirrored_ts"`         // REQUIRED
}

// PriceObservationRow is one element of AggregateRow.PriceObservations.
type PriceObservationRow struct {
	ReceiptID    string     `bigquery:"receipt_id"`
	Price        *big.Rat   `bigquery:"price"` // NUMERIC
	PurchaseDate civil.Date `bigquery:"purchase_date"`
}

// inserter is the streaming-insert surface of a BigQuery table.
type inserter interface {
	Put(ctx context.Context, src interface{}) error
}

// Mirror streams aggregate snapshots into the analytics table.
type Mirror struct {
	client   *Client
	inserter inserter
	now      func() time.Time
}

// NewMirror creates a Mirror writing to the configured aggregates table.
func NewMirror(c *Client) *Mirror {
	return &Mirror{
		client:   c,
		inserter: c.bq.Dataset(c.datasetID).Table(c.table).Inserter(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// MirrorAggregates inserts one snapshot row per aggregate. Rows carry an
// insert ID derived from the aggregate and its update time, so retrying the
// same batch does not duplicate rows within BigQuery's dedup window.
func (m *Mirror) MirrorAggregates(ctx context.Context, aggs []*domain.AggregatedGroceryData) error {
	if len(aggs) == 0 {
		return nil
	}
	mirrored := m.now()
	savers := make([]*bigquery.StructSaver, 0, len(aggs))
	for _, a := range aggs {
		row := toAggregateRow(a, mirrored)
		savers = append(savers, &bigquery.StructSaver{
			Struct:   row,
			InsertID: fmt.Sprintf("%s/%d", row.AggregateID, a.LastUpdatedDate.UnixNano()),
		})
	}
	if err := m.inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("MirrorAggregates: inserting %d rows: %w", len(savers), err)
	}
	m.client.log.Debug().Int("rows", len(savers)).Msg("aggregates mirrored")
	return nil
}

func toAggregateRow(a *domain.AggregatedGroceryData, mirrored time.Time) *AggregateRow {
	id := a.ID
	if id == "" {
		id = a.StoreName + "|" + a.ItemCanonicalName
	}
	obs := make([]PriceObservationRow, len(a.PriceObservations))
	for i, o := range a.PriceObservations {
		obs[i] = PriceObservationRow{
			ReceiptID:    o.ReceiptID,
			Price:        numeric(o.Price),
			PurchaseDate: o.PurchaseDate,
		}
	}
	return &AggregateRow{
		AggregateID:       id,
		StoreName:         a.StoreName,
		LocationCity:      bigquery.NullString{StringVal: a.LocationCity, Valid: a.LocationCity != ""},
		ItemCanonicalName: a.ItemCanonicalName,
		Category:          string(a.Category),
		LatestPrice:       numeric(a.LatestPrice),
		ObservationCount:  int64(len(a.PriceObservations)),
		PriceObservations: obs,
		LastUpdatedTS:     a.LastUpdatedDate,
		MirroredTS:        mirrored,
	}
}

// numeric converts to BigQuery's NUMERIC representation, which holds at most nine decimal places.
func numeric(d decimal.Decimal) *big.Rat {
	return d.Round(9).Rat()
}
