package domain

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Recipe is a stored recipe. It has no processing logic.
type Recipe struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	Ingredients     []json.RawMessage `json:"ingredients"`
	Servings        *int              `json:"servings,omitempty"`
	PrepTimeMinutes *int              `json:"prep_time_minutes,omitempty"`
	CookTimeMinutes *int              `json:"cook_time_minutes,omitempty"`
	Tags            []string          `json:"tags"`
	Allergens       []string          `json:"allergens"`
	ImageURL        string            `json:"image_url,omitempty"`
	SourceURL       string            `json:"source_url,omitempty"`
	ExternalID      string            `json:"external_id,omitempty"`
	IsCurated       bool              `json:"is_curated"`
	Canonicalized   bool              `json:"canonicalized"`
	CreatedDate     time.Time         `json:"created_date"`
	UpdatedDate     time.Time         `json:"updated_date"`
}

// PriceObservation is one sighting of an item's price on a receipt.
type PriceObservation struct {
	ReceiptID    string          `json:"receipt_id"`
	Price        decimal.Decimal `json:"price"`
	PurchaseDate civil.Date      `json:"purchase_date"`
}

// AggregatedGroceryData tracks the price history of one item at one store.
type AggregatedGroceryData struct {
	ID                string             `json:"id"`
	StoreName         string             `json:"store_name"`
	LocationCity      string             `json:"location_city,omitempty"`
	ItemCanonicalName string             `json:"item_canonical_name"`
	Category          Category           `json:"category"`
	LatestPrice       decimal.Decimal    `json:"latest_price"`
	PriceObservations []PriceObservation `json:"price_observations"`
	LastUpdatedDate   time.Time          `json:"last_updated_date"`
	CreatedDate       time.Time          `json:"created_date"`
	UpdatedDate       time.Time          `json:"updated_date"`
}

// Observed reports whether the receipt already contributed an observation.
func (a *AggregatedGroceryData) Observed(receiptID string) bool {
	for _, o := range a.PriceObservations {
		if o.ReceiptID == receiptID {
			return true
		}
	}
	return false
}

// FailedScanStage names the pipeline stage a scan failed in.
type FailedScanStage string

const (
	StageUpload         FailedScanStage = "upload"
	StageOCR            FailedScanStage = "ocr"
	StageLLMEnhancement FailedScanStage = "llm_enhancement"
)

// FailedScanLog records a receipt scan that did not make it through the pipeline.
type FailedScanLog struct {
	ID           string          `json:"id"`
	ReceiptID    string          `json:"receipt_id,omitempty"`
	UserEmail    string          `json:"user_email"`
	HouseholdID  string          `json:"household_id"`
	ImageURLs    []string        `json:"image_urls"`
	ErrorMessage string          `json:"error_message"`
	ErrorStage   FailedScanStage `json:"error_stage"`
	Timestamp    time.Time       `json:"timestamp"`
}
