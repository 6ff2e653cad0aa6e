// Package enhance turns raw OCR text into categorized receipt items using an LLM.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

// Metadata is the user-entered receipt context passed alongside the OCR text.
type Metadata struct {
	StoreName string
	Total     decimal.Decimal
	Currency  string
}

// Result is the enhancement output for one receipt.
type Result struct {
	Items    []domain.ReceiptItem
	Insights domain.ReceiptInsights
	// Fallback is set when the model output was unusable and a single
	// whole-receipt item was substituted.
	Fallback bool
}

// Enhancer calls the model and converts its answer into domain items.
type Enhancer struct {
	gen     Generator
	timeout time.Duration
	log     zerolog.Logger
}

// NewEnhancer builds an enhancer. A nil generator always yields the fallback result,
// which keeps local setups without an API key usable.
func NewEnhancer(gen Generator, timeout time.Duration, log zerolog.Logger) *Enhancer {
	return &Enhancer{
		gen:     gen,
		timeout: timeout,
		log:     log.With().Str("component", "enhance").Logger(),
	}
}

// Enhance extracts items and insights. Network and auth failures are returned;
// unparseable model output degrades to the fallback result.
func (e *Enhancer) Enhance(ctx context.Context, ocr *domain.OCRResult, meta Metadata) (*Result, error) {
	if e.gen == nil {
		e.log.Warn().Str("store", meta.StoreName).Msg("no model configured, using fallback")
		return Fallback(meta), nil
	}

	text, err := e.generate(ctx, buildReceiptPrompt(ocr, meta))
	if err != nil {
		if !errors.Is(err, domain.ErrMalformedResponse) {
			return nil, fmt.Errorf("enhance receipt: %w", err)
		}
		e.log.Warn().Err(err).Str("store", meta.StoreName).Msg("model call rejected, using fallback")
		return Fallback(meta), nil
	}

	raw, err := decodeModelOutput(text)
	if err == nil {
		var items []domain.ReceiptItem
		var insights domain.ReceiptInsights
		items, insights, err = transformModelOutputToItems(raw)
		if err == nil {
			e.log.Info().Str("store", meta.StoreName).Int("items", len(items)).Msg("receipt enhanced")
			return &Result{Items: items, Insights: insights}, nil
		}
	}

	e.log.Warn().Err(err).Str("store", meta.StoreName).Msg("model output did not parse, using fallback")
	return Fallback(meta), nil
}

func (e *Enhancer) generate(ctx context.Context, prompt string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.gen.Generate(ctx, prompt)
}

// Fallback is the degraded single-item result used when the model cannot help.
func Fallback(meta Metadata) *Result {
	total := meta.Total
	one := decimal.NewFromInt(1)
	return &Result{
		Items: []domain.ReceiptItem{{
			Name:          "Receipt from " + meta.StoreName,
			CanonicalName: "Groceries from " + meta.StoreName,
			Category:      domain.CategoryOther,
			Quantity:      &one,
			UnitPrice:     &total,
			TotalPrice:    &total,
			PackSize:      domain.ReceiptTotalPackSize,
			PricePerUnit:  &total,
			ApprovalState: domain.ApprovalPending,
		}},
		Insights: domain.ReceiptInsights{
			Summary:    fmt.Sprintf("Receipt from %s - automated analysis unavailable", meta.StoreName),
			Highlights: []string{fmt.Sprintf("Total: %s %s", meta.Currency, total.StringFixed(2))},
		},
		Fallback: true,
	}
}
