package enhance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func fixed(text string, err error) generatorFunc {
	return func(context.Context, string) (string, error) { return text, err }
}

var tescoMeta = Metadata{
	StoreName: "Tesco",
	Total:     decimal.RequireFromString("12.50"),
	Currency:  "GBP",
}

func tescoOCR() *domain.OCRResult {
	return &domain.OCRResult{
		TotalImages: 1,
		Results: []domain.OCRImageResult{{
			ImageURL: "/uploads/receipts/a.jpg",
			Status:   domain.OCRStatusSuccess,
			Lines: []domain.OCRLine{
				{Text: "TESCO MILK 2L 1.20", Confidence: 98},
				{Text: "BANANAS LOOSE 0.85", Confidence: 97},
			},
		}},
	}
}

const modelAnswer = "```json\n" + `{
  "items": [
    {"name": "TESCO MILK 2L", "canonical_name": "Semi Skimmed Milk", "category": "dairy",
     "quantity": 1, "unit_price": "£1.20", "total_price": 1.20, "pack_size": "2L",
     "price_per_unit": 0.60, "discount_applied": false, "offer_description": null},
    {"name": "BANANAS LOOSE", "category": "Produce", "quantity": 5, "total_price": 0.85,
     "discount_applied": true, "offer_description": "Clubcard price"}
  ],
  "receipt_insights": {"summary": "Small top-up shop", "highlights": ["Mostly dairy", ""]}
}` + "\n```"

func TestEnhance_ParsesModelOutput(t *testing.T) {
	var prompt string
	gen := generatorFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return modelAnswer, nil
	})
	e := NewEnhancer(gen, 0, zerolog.Nop())

	res, err := e.Enhance(context.Background(), tescoOCR(), tescoMeta)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	require.Len(t, res.Items, 2)

	milk := res.Items[0]
	assert.Equal(t, "Semi Skimmed Milk", milk.CanonicalName)
	assert.Equal(t, domain.CategoryDairy, milk.Category)
	assert.Equal(t, "1.2", milk.UnitPrice.String())
	assert.Equal(t, "0.6", milk.PricePerUnit.String())
	assert.Equal(t, domain.ApprovalPending, milk.ApprovalState)
	assert.Nil(t, milk.OfferDescription)

	bananas := res.Items[1]
	assert.Equal(t, "BANANAS LOOSE", bananas.CanonicalName)
	assert.Equal(t, domain.CategoryOther, bananas.Category)
	assert.Nil(t, bananas.UnitPrice)
	assert.True(t, bananas.DiscountApplied)
	require.NotNil(t, bananas.OfferDescription)
	assert.Equal(t, "Clubcard price", *bananas.OfferDescription)

	assert.Equal(t, "Small top-up shop", res.Insights.Summary)
	assert.Equal(t, []string{"Mostly dairy"}, res.Insights.Highlights)

	assert.Contains(t, prompt, "Tesco")
	assert.Contains(t, prompt, "GBP 12.50")
	assert.Contains(t, prompt, "BANANAS LOOSE 0.85\n")
	assert.Contains(t, prompt, "  - Meat & Fish\n")
}

func assertFallback(t *testing.T, res *Result) {
	t.Helper()
	require.True(t, res.Fallback)
	require.Len(t, res.Items, 1)
	item := res.Items[0]
	assert.Equal(t, "Receipt from Tesco", item.Name)
	assert.Equal(t, "Groceries from Tesco", item.CanonicalName)
	assert.Equal(t, domain.CategoryOther, item.Category)
	assert.Equal(t, "1", item.Quantity.String())
	assert.True(t, item.UnitPrice.Equal(tescoMeta.Total))
	assert.True(t, item.TotalPrice.Equal(tescoMeta.Total))
	assert.True(t, item.PricePerUnit.Equal(tescoMeta.Total))
	assert.Equal(t, "Receipt total", item.PackSize)
	assert.Equal(t, domain.ApprovalPending, item.ApprovalState)
	assert.Equal(t, "Receipt from Tesco - automated analysis unavailable", res.Insights.Summary)
	assert.Equal(t, []string{"Total: GBP 12.50"}, res.Insights.Highlights)
}

func TestEnhance_Fallback(t *testing.T) {
	tests := []struct {
		name string
		gen  Generator
	}{
		{"not json", fixed("I could not read this receipt.", nil)},
		{"no items", fixed(`{"items": [], "receipt_insights": {"summary": "x"}}`, nil)},
		{"item without name", fixed(`{"items": [{"category": "Dairy"}]}`, nil)},
		{"bad number", fixed(`{"items": [{"name": "Milk", "total_price": "one pound"}]}`, nil)},
		{"malformed upstream", fixed("", domain.ErrMalformedResponse)},
		{"no model", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEnhancer(tt.gen, 0, zerolog.Nop())
			res, err := e.Enhance(context.Background(), tescoOCR(), tescoMeta)
			require.NoError(t, err)
			assertFallback(t, res)
		})
	}
}

func TestEnhance_UpstreamErrorsAreReturned(t *testing.T) {
	for _, kind := range []error{domain.ErrNetwork, domain.ErrAuth} {
		e := NewEnhancer(fixed("", kind), 0, zerolog.Nop())
		res, err := e.Enhance(context.Background(), tescoOCR(), tescoMeta)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, kind)
	}
}

func TestEnhance_AppliesTimeout(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, _ string) (string, error) {
		_, ok := ctx.Deadline()
		if !ok {
			return "", errors.New("no deadline")
		}
		return modelAnswer, nil
	})
	e := NewEnhancer(gen, 5*time.Second, zerolog.Nop())
	res, err := e.Enhance(context.Background(), tescoOCR(), tescoMeta)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"Here you go: {\"a\":{\"b\":2}} hope it helps", `{"a":{"b":2}}`},
		{"```", "```"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanModelJSON(tt.in), tt.in)
	}
}

func qualityLogs() []*domain.OCRQualityLog {
	return []*domain.OCRQualityLog{
		{ErrorOrigin: "ocr", ErrorType: "price_mismatch", IsCriticalError: true, StoreName: "Tesco"},
		{ErrorOrigin: "ocr", ErrorType: "price_mismatch", StoreName: "Tesco"},
		{ErrorOrigin: "llm", ErrorType: "wrong_category", StoreName: "Aldi"},
	}
}

func TestAnalyzeFeedback_Model(t *testing.T) {
	var prompt string
	gen := generatorFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return `{"summary": "Prices misread", "common_errors": ["decimal point dropped"], "recommendations": ["raise contrast", 3]}`, nil
	})
	e := NewEnhancer(gen, 0, zerolog.Nop())

	got, err := e.AnalyzeFeedback(context.Background(), qualityLogs())
	require.NoError(t, err)
	assert.Equal(t, "Prices misread", got.Summary)
	assert.Equal(t, []string{"decimal point dropped"}, got.CommonErrors)
	assert.Equal(t, []string{"raise contrast"}, got.Recommendations)
	assert.Equal(t, 3, got.LogsAnalyzed)
	assert.Contains(t, prompt, "wrong_category")
}

func TestAnalyzeFeedback_Errors(t *testing.T) {
	e := NewEnhancer(fixed("no idea", nil), 0, zerolog.Nop())
	_, err := e.AnalyzeFeedback(context.Background(), qualityLogs())
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)

	e = NewEnhancer(fixed("", domain.ErrNetwork), 0, zerolog.Nop())
	_, err = e.AnalyzeFeedback(context.Background(), qualityLogs())
	assert.ErrorIs(t, err, domain.ErrNetwork)

	_, err = e.AnalyzeFeedback(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAnalyzeFeedback_Local(t *testing.T) {
	e := NewEnhancer(nil, 0, zerolog.Nop())
	got, err := e.AnalyzeFeedback(context.Background(), qualityLogs())
	require.NoError(t, err)
	assert.Equal(t, "3 issues across 2 error types, 1 critical", got.Summary)
	assert.Equal(t, []string{"price_mismatch (2)", "wrong_category (1)"}, got.CommonErrors)
	require.Len(t, got.Recommendations, 2)
	assert.True(t, strings.HasPrefix(got.Recommendations[0], "Review ocr handling"))
}

func TestClassifyGenAI(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorized", genai.APIError{Code: 401, Message: "denied"}, domain.ErrAuth},
		{"bad key", genai.APIError{Code: 400, Message: "API key not valid"}, domain.ErrAuth},
		{"rate limited", genai.APIError{Code: 429}, domain.ErrNetwork},
		{"unavailable", genai.APIError{Code: 503}, domain.ErrNetwork},
		{"bad request", genai.APIError{Code: 400, Message: "invalid argument"}, domain.ErrMalformedResponse},
		{"transport", errors.New("dial tcp: connection refused"), domain.ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyGenAI(tt.err), tt.want)
		})
	}
}
