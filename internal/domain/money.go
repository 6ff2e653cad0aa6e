package domain

import "github.com/shopspring/decimal"

func init() {
	// Money is exchanged as plain JSON numbers with clients and in stored documents.
	decimal.MarshalJSONWithoutQuotes = true
}

// DefaultCurrency is applied to receipts and budgets created without one.
const DefaultCurrency = "GBP"
