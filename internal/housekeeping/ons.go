package housekeeping

// InflationPoint is one month of the UK CPI inflation series.
type InflationPoint struct {
	Date          string  `json:"date"`
	InflationRate float64 `json:"inflation_rate"`
}

// ONSInflation returns the bundled UK inflation series.
func ONSInflation() []InflationPoint {
	return []InflationPoint{
		{Date: "2024-01", InflationRate: 4.0},
		{Date: "2024-02", InflationRate: 3.8},
		{Date: "2024-03", InflationRate: 3.5},
	}
}
