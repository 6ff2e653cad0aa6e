package domain

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// BudgetType is the length of a budget period.
type BudgetType string

const (
	BudgetMonthly BudgetType = "monthly"
	BudgetWeekly  BudgetType = "weekly"
)

// Budget is a spending cap for a household over one period.
type Budget struct {
	ID             string                       `json:"id"`
	HouseholdID    string                       `json:"household_id,omitempty"`
	UserEmail      string                       `json:"user_email"`
	Type           BudgetType                   `json:"type"`
	Amount         decimal.Decimal              `json:"amount"`
	Currency       string                       `json:"currency"`
	PeriodStart    civil.Date                   `json:"period_start"`
	PeriodEnd      civil.Date                   `json:"period_end"`
	StartDay       *int                         `json:"start_day,omitempty"`
	CategoryLimits map[Category]decimal.Decimal `json:"category_limits,omitempty"`
	IsActive       bool                         `json:"is_active"`
	TotalSpent     decimal.Decimal              `json:"total_spent"`
	IsTestData     bool                         `json:"is_test_data"`
	CreatedDate    time.Time                    `json:"created_date"`
	UpdatedDate    time.Time                    `json:"updated_date"`
}

// ApplyDefaults fills the defaults a new budget is created with.
func (b *Budget) ApplyDefaults() {
	if b.Type == "" {
		b.Type = BudgetMonthly
	}
	if b.Currency == "" {
		b.Currency = DefaultCurrency
	}
	b.canonicalizeLimits()
}

// canonicalizeLimits rewrites category limit keys to their canonical spelling.
// When two spellings name the same category the canonical one wins; unknown
// keys are kept for Validate to reject.
func (b *Budget) canonicalizeLimits() {
	if len(b.CategoryLimits) == 0 {
		return
	}
	limits := make(map[Category]decimal.Decimal, len(b.CategoryLimits))
	for k, v := range b.CategoryLimits {
		if c, ok := ParseCategory(string(k)); ok && c == k {
			limits[c] = v
		}
	}
	for k, v := range b.CategoryLimits {
		c, ok := ParseCategory(string(k))
		switch {
		case !ok:
			limits[k] = v
		case c != k:
			if _, exists := limits[c]; !exists {
				limits[c] = v
			}
		}
	}
	b.CategoryLimits = limits
}

// Validate checks the budget invariants.
func (b *Budget) Validate() error {
	if b.Type != BudgetMonthly && b.Type != BudgetWeekly {
		return fmt.Errorf("%w: budget type must be monthly or weekly", ErrValidation)
	}
	if !b.PeriodStart.IsValid() || !b.PeriodEnd.IsValid() {
		return fmt.Errorf("%w: period_start and period_end are required", ErrValidation)
	}
	if b.PeriodEnd.Before(b.PeriodStart) {
		return fmt.Errorf("%w: period_end is before period_start", ErrValidation)
	}
	if b.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	for c := range b.CategoryLimits {
		if _, ok := ParseCategory(string(c)); !ok {
			return fmt.Errorf("%w: unknown category limit %q", ErrValidation, c)
		}
	}
	return nil
}

// NextPeriod returns the period that follows the budget's current one. The
// next period always starts the day after PeriodEnd. Weekly budgets keep
// their length. Monthly budgets end the day before the next occurrence of
// the anchor day, clamped to the month's length; the anchor is StartDay or,
// when unset, the day PeriodStart falls on.
func (b *Budget) NextPeriod() (start, end civil.Date) {
	start = b.PeriodEnd.AddDays(1)
	if b.Type == BudgetWeekly {
		return start, start.AddDays(b.PeriodEnd.DaysSince(b.PeriodStart))
	}
	boundary := anchorIn(start.Year, start.Month, b.anchorDay())
	if !boundary.After(start) {
		year, month := start.Year, start.Month+1
		if month > time.December {
			month = time.January
			year++
		}
		boundary = anchorIn(year, month, b.anchorDay())
	}
	return start, boundary.AddDays(-1)
}

func (b *Budget) anchorDay() int {
	if b.StartDay != nil && *b.StartDay >= 1 && *b.StartDay <= 31 {
		return *b.StartDay
	}
	return b.PeriodStart.Day
}

func anchorIn(year int, month time.Month, day int) civil.Date {
	if last := daysIn(year, month); day > last {
		day = last
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Rollover builds the successor of an active budget for the next period.
func (b *Budget) Rollover(id string, now time.Time) *Budget {
	start, end := b.NextPeriod()
	startDay := b.StartDay
	if startDay == nil && b.Type == BudgetMonthly {
		anchor := b.anchorDay()
		startDay = &anchor
	}
	limits := make(map[Category]decimal.Decimal, len(b.CategoryLimits))
	for k, v := range b.CategoryLimits {
		limits[k] = v
	}
	return &Budget{
		ID:             id,
		HouseholdID:    b.HouseholdID,
		UserEmail:      b.UserEmail,
		Type:           b.Type,
		Amount:         b.Amount,
		Currency:       b.Currency,
		PeriodStart:    start,
		PeriodEnd:      end,
		StartDay:       startDay,
		CategoryLimits: limits,
		IsActive:       true,
		TotalSpent:     decimal.Zero,
		IsTestData:     b.IsTestData,
		CreatedDate:    now,
		UpdatedDate:    now,
	}
}
