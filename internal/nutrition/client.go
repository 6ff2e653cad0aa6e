// Package nutrition looks up nutrition facts from CalorieNinjas and caches
// them per household.
package nutrition

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

// DefaultBaseURL is the CalorieNinjas API root.
const DefaultBaseURL = "https://api.calorieninjas.com/v1"

// Client calls the CalorieNinjas nutrition endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

type apiItem struct {
	Calories      *float64 `json:"calories"`
	ProteinG      *float64 `json:"protein_g"`
	Carbohydrates *float64 `json:"carbohydrates_total_g"`
	FatTotalG     *float64 `json:"fat_total_g"`
	FiberG        *float64 `json:"fiber_g"`
	SugarG        *float64 `json:"sugar_g"`
	SodiumMg      *float64 `json:"sodium_mg"`
	ServingSizeG  *float64 `json:"serving_size_g"`
}

type apiResponse struct {
	Items []apiItem `json:"items"`
}

// Lookup returns the nutrients of the first matching item. found is false
// when the API knows nothing about the name.
func (c *Client) Lookup(ctx context.Context, canonicalName string) (n domain.Nutrients, found bool, err error) {
	if c.apiKey == "" {
		return n, false, fmt.Errorf("calorieninjas: api key not configured: %w", domain.ErrAuth)
	}

	endpoint := c.baseURL + "/nutrition?query=" + url.QueryEscape(canonicalName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return n, false, fmt.Errorf("calorieninjas: build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return n, false, fmt.Errorf("calorieninjas: %w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return n, false, fmt.Errorf("calorieninjas: status %d: %w", resp.StatusCode, domain.ErrAuth)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return n, false, fmt.Errorf("calorieninjas: status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), domain.ErrNetwork)
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return n, false, fmt.Errorf("calorieninjas: decode response: %w: %v", domain.ErrMalformedResponse, err)
	}
	if len(payload.Items) == 0 {
		return n, false, nil
	}

	item := payload.Items[0]
	return domain.Nutrients{
		Calories:      valueOr(item.Calories, 0),
		ProteinG:      valueOr(item.ProteinG, 0),
		CarbohydrateG: valueOr(item.Carbohydrates, 0),
		FatG:          valueOr(item.FatTotalG, 0),
		FiberG:        valueOr(item.FiberG, 0),
		SugarG:        valueOr(item.SugarG, 0),
		SodiumMg:      valueOr(item.SodiumMg, 0),
		ServingSizeG:  valueOr(item.ServingSizeG, domain.DefaultServingSizeG),
	}, true, nil
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
