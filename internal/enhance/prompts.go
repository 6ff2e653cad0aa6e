package enhance

import (
	"fmt"
	"strings"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

const receiptPromptHeader = `You are a grocery receipt analysis expert.
Analyze this receipt from %s with total amount %s %s.

The OCR text, one detected line per row:
`

const receiptPromptSchema = `
Extract and standardize the purchased items. Return ONLY valid JSON in this exact format:

{
  "items": [
    {
      "name": "original item name from receipt",
      "canonical_name": "standardized product name",
      "category": "one of the categories listed below",
      "quantity": 1,
      "unit_price": 0.00,
      "total_price": 0.00,
      "pack_size": "size info if available",
      "price_per_unit": 0.00,
      "discount_applied": false,
      "offer_description": null
    }
  ],
  "receipt_insights": {
    "summary": "brief analysis of this shopping trip",
    "highlights": ["key insight about spending", "category breakdown", "any deals or savings"]
  }
}

Rules:
- Prices are plain numbers without currency symbols.
- Skip subtotal, total, payment, change and VAT lines; they are not items.
- Attach multi-buy and clubcard savings to the discounted item via discount_applied and offer_description.
- Return only the JSON object, no commentary and no markdown fences.
`

// buildReceiptPrompt assembles the enhancement prompt for one receipt.
func buildReceiptPrompt(ocr *domain.OCRResult, meta Metadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, receiptPromptHeader, meta.StoreName, meta.Currency, meta.Total.StringFixed(2))

	b.WriteString("---\n")
	if ocr != nil {
		for _, line := range ocr.Text() {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteString("---\n")

	b.WriteString(receiptPromptSchema)
	b.WriteString("\n")
	b.WriteString(categoriesPrompt())
	return b.String()
}

// categoriesPrompt lists the closed category set for the model.
func categoriesPrompt() string {
	var b strings.Builder
	b.WriteString("Use ONLY the following categories:\n")
	for _, c := range domain.Categories {
		b.WriteString("  - " + string(c) + "\n")
	}
	b.WriteString("Category must be EXACTLY one of the names above. If you are unsure, use \"Other\".\n")
	return b.String()
}

const feedbackPromptHeader = `You are reviewing OCR quality feedback for a grocery receipt scanner.
Each row below is one discrepancy a reviewer found between the scanned output and the real receipt.

`

const feedbackPromptSchema = `
Identify recurring problems and suggest concrete fixes to the scanning pipeline.
Return ONLY valid JSON in this exact format:

{
  "summary": "short overview of the quality of this batch",
  "common_errors": ["recurring error pattern"],
  "recommendations": ["actionable improvement"]
}
`

// buildFeedbackPrompt renders quality logs as a compact table for the model.
func buildFeedbackPrompt(logs []*domain.OCRQualityLog) string {
	var b strings.Builder
	b.WriteString(feedbackPromptHeader)
	b.WriteString("store | origin | type | original | corrected | critical | quality | comment\n")
	for _, l := range logs {
		fmt.Fprintf(&b, "%s | %s | %s | %q | %q | %t | %s | %s\n",
			l.StoreName, l.ErrorOrigin, l.ErrorType, l.OriginalValue, l.CorrectedValue,
			l.IsCriticalError, l.ReceiptQuality, l.Comment)
	}
	b.WriteString(feedbackPromptSchema)
	return b.String()
}
