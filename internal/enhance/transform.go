package enhance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

// decodeModelOutput parses cleaned model text, keeping numbers exact.
func decodeModelOutput(text string) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(cleanModelJSON(text))))
	dec.UseNumber()

	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return out, nil
}

// transformModelOutputToItems converts raw model output into receipt items and insights.
func transformModelOutputToItems(raw map[string]interface{}) ([]domain.ReceiptItem, domain.ReceiptInsights, error) {
	var insights domain.ReceiptInsights

	itemsAny, ok := raw["items"]
	if !ok {
		return nil, insights, fmt.Errorf("missing 'items' key in model output")
	}
	itemSlice, ok := itemsAny.([]interface{})
	if !ok {
		return nil, insights, fmt.Errorf("'items' is %T, want []interface{}", itemsAny)
	}

	items := make([]domain.ReceiptItem, 0, len(itemSlice))
	for i, entry := range itemSlice {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			return nil, insights, fmt.Errorf("item %d is %T, want object", i, entry)
		}
		item, err := transformItem(obj)
		if err != nil {
			return nil, insights, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, insights, fmt.Errorf("model output has no items")
	}

	if obj, ok := raw["receipt_insights"].(map[string]interface{}); ok {
		insights.Summary, _ = getStringField(obj, "summary", false)
		if hl, ok := obj["highlights"].([]interface{}); ok {
			for _, h := range hl {
				if s, ok := h.(string); ok && strings.TrimSpace(s) != "" {
					insights.Highlights = append(insights.Highlights, s)
				}
			}
		}
	}
	if insights.Highlights == nil {
		insights.Highlights = []string{}
	}
	return items, insights, nil
}

func transformItem(obj map[string]interface{}) (domain.ReceiptItem, error) {
	var item domain.ReceiptItem

	name, err := getStringField(obj, "name", true)
	if err != nil {
		return item, err
	}
	canonical, err := getStringField(obj, "canonical_name", false)
	if err != nil {
		return item, err
	}
	if canonical == "" {
		canonical = name
	}
	category, err := getStringField(obj, "category", false)
	if err != nil {
		return item, err
	}
	packSize, err := getStringField(obj, "pack_size", false)
	if err != nil {
		return item, err
	}
	offer, err := getOptionalStringField(obj, "offer_description")
	if err != nil {
		return item, err
	}

	item = domain.ReceiptItem{
		Name:             name,
		CanonicalName:    canonical,
		PackSize:         packSize,
		OfferDescription: offer,
		ApprovalState:    domain.ApprovalPending,
	}
	// Unknown categories fold into Other.
	item.Category, _ = domain.ParseCategory(category)

	for key, dst := range map[string]**decimal.Decimal{
		"quantity":       &item.Quantity,
		"unit_price":     &item.UnitPrice,
		"total_price":    &item.TotalPrice,
		"price_per_unit": &item.PricePerUnit,
	} {
		v, err := getOptionalDecimalField(obj, key)
		if err != nil {
			return item, err
		}
		*dst = v
	}

	if b, ok := obj["discount_applied"].(bool); ok {
		item.DiscountApplied = b
	}
	return item, nil
}

func getStringField(obj map[string]interface{}, key string, required bool) (string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, want string", key, v)
	}
	s = strings.TrimSpace(s)
	if required && s == "" {
		return "", fmt.Errorf("field %q is empty", key)
	}
	return s, nil
}

func getOptionalStringField(obj map[string]interface{}, key string) (*string, error) {
	s, err := getStringField(obj, key, false)
	if err != nil || s == "" {
		return nil, err
	}
	return &s, nil
}

// getOptionalDecimalField accepts JSON numbers and numeric strings such as "£1.20".
func getOptionalDecimalField(obj map[string]interface{}, key string) (*decimal.Decimal, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, nil
	}

	var raw string
	switch t := v.(type) {
	case json.Number:
		raw = t.String()
	case string:
		raw = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), "£$€"))
		if raw == "" {
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("field %q is %T, want number", key, v)
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("field %q: invalid number %q: %w", key, raw, err)
	}
	return &d, nil
}
