package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ValidationStatus marks the pipeline stage of a receipt.
type ValidationStatus string

const (
	// StatusProcessing is the initial state; the pipeline has not finished yet.
	StatusProcessing ValidationStatus = "processing_background"
	// StatusReviewInsights means enhancement succeeded and the items await human review.
	StatusReviewInsights ValidationStatus = "review_insights"
	// StatusError means the pipeline failed; see Receipt.ProcessingError.
	StatusError ValidationStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s ValidationStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusReviewInsights, StatusError:
		return true
	}
	return false
}

// CanReprocess reports whether a receipt in status s may be sent back through the pipeline.
// A reviewed receipt is only reprocessed when forced, since it discards human edits.
func (s ValidationStatus) CanReprocess(force bool) bool {
	switch s {
	case StatusError:
		return true
	case StatusReviewInsights:
		return force
	}
	return false
}

// ApprovalState is the human-review outcome of one line item.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// Category is the closed set of grocery categories.
type Category string

const (
	CategoryVegetables   Category = "Vegetables"
	CategoryFruits       Category = "Fruits"
	CategoryDairy        Category = "Dairy"
	CategoryMeatFish     Category = "Meat & Fish"
	CategoryGrainsBakery Category = "Grains & Bakery"
	CategorySnacks       Category = "Snacks"
	CategoryBeverages    Category = "Beverages"
	CategoryHousehold    Category = "Household"
	CategoryOther        Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryVegetables,
	CategoryFruits,
	CategoryDairy,
	CategoryMeatFish,
	CategoryGrainsBakery,
	CategorySnacks,
	CategoryBeverages,
	CategoryHousehold,
	CategoryOther,
}

var categoryIndex = func() map[string]Category {
	m := make(map[string]Category, len(Categories))
	for _, c := range Categories {
		m[normalizeCategory(string(c))] = c
	}
	return m
}()

// normalizeCategory folds case and surrounding whitespace for comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// ParseCategory maps free text onto the closed category set.
// Unknown names map to CategoryOther with ok == false.
func ParseCategory(name string) (c Category, ok bool) {
	if c, ok := categoryIndex[normalizeCategory(name)]; ok {
		return c, true
	}
	return CategoryOther, false
}

// ReceiptItem is one line of a receipt.
type ReceiptItem struct {
	Name             string           `json:"name"`
	CanonicalName    string           `json:"canonical_name,omitempty"`
	Category         Category         `json:"category,omitempty"`
	Quantity         *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice        *decimal.Decimal `json:"unit_price,omitempty"`
	TotalPrice       *decimal.Decimal `json:"total_price,omitempty"`
	PackSize         string           `json:"pack_size,omitempty"`
	PricePerUnit     *decimal.Decimal `json:"price_per_unit,omitempty"`
	DiscountApplied  bool             `json:"discount_applied"`
	OfferDescription *string          `json:"offer_description"`
	ApprovalState    ApprovalState    `json:"approval_state"`
	ApprovedAt       *time.Time       `json:"approved_at,omitempty"`
}

// ReceiptTotalPackSize marks the placeholder item that stands for the whole
// receipt when its lines could not be itemized.
const ReceiptTotalPackSize = "Receipt total"

// CoversWholeReceipt reports whether the item is the whole-receipt placeholder
// rather than a real line.
func (i ReceiptItem) CoversWholeReceipt() bool {
	return i.PackSize == ReceiptTotalPackSize
}

// ReceiptInsights is the short natural-language summary produced by enhancement.
type ReceiptInsights struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
}

// Receipt is one shopping trip.
type Receipt struct {
	ID               string           `json:"id"`
	Supermarket      string           `json:"supermarket"`
	StoreLocation    string           `json:"store_location,omitempty"`
	PurchaseDate     civil.Date       `json:"purchase_date"`
	TotalAmount      decimal.Decimal  `json:"total_amount"`
	Items            []ReceiptItem    `json:"items"`
	ReceiptImageURLs []string         `json:"receipt_image_urls"`
	Currency         string           `json:"currency"`
	Notes            string           `json:"notes,omitempty"`
	IsTestData       bool             `json:"is_test_data"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	ReceiptInsights  *ReceiptInsights `json:"receipt_insights,omitempty"`
	HouseholdID      string           `json:"household_id,omitempty"`
	UserEmail        string           `json:"user_email"`

	// Pipeline bookkeeping.
	TextractData    *OCRResult `json:"textract_data,omitempty"`
	ProcessingError string     `json:"processing_error,omitempty"`
	ProcessingJobID string     `json:"processing_job_id,omitempty"`

	CreatedDate time.Time `json:"created_date"`
	UpdatedDate time.Time `json:"updated_date"`
}

// ApplyDefaults fills the defaults a freshly submitted receipt is created with.
func (r *Receipt) ApplyDefaults() {
	if r.Currency == "" {
		r.Currency = DefaultCurrency
	}
	if r.ValidationStatus == "" {
		r.ValidationStatus = StatusProcessing
	}
	if r.Items == nil {
		r.Items = []ReceiptItem{}
	}
	if r.ReceiptImageURLs == nil {
		r.ReceiptImageURLs = []string{}
	}
	for i := range r.Items {
		if r.Items[i].ApprovalState == "" {
			r.Items[i].ApprovalState = ApprovalPending
		}
		if c, ok := ParseCategory(string(r.Items[i].Category)); ok {
			r.Items[i].Category = c
		}
	}
}

// Validate checks the invariants every stored receipt must satisfy.
func (r *Receipt) Validate() error {
	if strings.TrimSpace(r.Supermarket) == "" {
		return fmt.Errorf("%w: supermarket is required", ErrValidation)
	}
	if r.UserEmail == "" {
		return fmt.Errorf("%w: user_email is required", ErrValidation)
	}
	if !r.PurchaseDate.IsValid() {
		return fmt.Errorf("%w: purchase_date is required", ErrValidation)
	}
	if !r.ValidationStatus.Valid() {
		return fmt.Errorf("%w: unknown validation_status %q", ErrValidation, r.ValidationStatus)
	}
	if r.TotalAmount.IsNegative() {
		return fmt.Errorf("%w: total_amount must not be negative", ErrValidation)
	}
	for i, item := range r.Items {
		if item.Category != "" {
			if _, ok := ParseCategory(string(item.Category)); !ok {
				return fmt.Errorf("%w: item %d has unknown category %q", ErrValidation, i, item.Category)
			}
		}
	}
	return nil
}

// ProcessingRequest carries what the pipeline needs to process one receipt.
type ProcessingRequest struct {
	ReceiptID   string          `json:"receipt_id"`
	ImageURLs   []string        `json:"image_urls"`
	StoreName   string          `json:"store_name"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	HouseholdID string          `json:"household_id"`
	UserEmail   string          `json:"user_email"`
}

// ProcessingRequestFor builds the pipeline input from a stored receipt.
func ProcessingRequestFor(r *Receipt) ProcessingRequest {
	return ProcessingRequest{
		ReceiptID:   r.ID,
		ImageURLs:   append([]string(nil), r.ReceiptImageURLs...),
		StoreName:   r.Supermarket,
		TotalAmount: r.TotalAmount,
		Currency:    r.Currency,
		HouseholdID: r.HouseholdID,
		UserEmail:   r.UserEmail,
	}
}
