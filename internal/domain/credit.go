package domain

import "time"

// CreditLog is an append-only ledger entry for one metered-usage event.
type CreditLog struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	UserEmail       string    `json:"user_email"`
	HouseholdID     string    `json:"household_id"`
	EventType       string    `json:"event_type"`
	CreditsConsumed int64     `json:"credits_consumed"`
	ReferenceID     string    `json:"reference_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// UnknownBucket groups credit logs with no event type or user email.
const UnknownBucket = "unknown"

// EventTypeUsage aggregates credit logs of one event type.
type EventTypeUsage struct {
	Count   int   `json:"count"`
	Credits int64 `json:"credits"`
}

// UserUsage aggregates credit logs of one user.
type UserUsage struct {
	Events  int   `json:"events"`
	Credits int64 `json:"credits"`
}

// CreditReport summarizes credit usage over a time range.
type CreditReport struct {
	TotalCreditsConsumed int64                     `json:"total_credits_consumed"`
	TotalEvents          int                       `json:"total_events"`
	ByEventType          map[string]EventTypeUsage `json:"by_event_type"`
	ByUser               map[string]UserUsage      `json:"by_user"`
}

// BuildCreditReport folds logs into a report. Per-type and per-user credit sums
// each partition TotalCreditsConsumed.
func BuildCreditReport(logs []CreditLog) *CreditReport {
	report := &CreditReport{
		ByEventType: make(map[string]EventTypeUsage),
		ByUser:      make(map[string]UserUsage),
	}
	for _, l := range logs {
		eventType := l.EventType
		if eventType == "" {
			eventType = UnknownBucket
		}
		user := l.UserEmail
		if user == "" {
			user = UnknownBucket
		}

		report.TotalCreditsConsumed += l.CreditsConsumed
		report.TotalEvents++

		et := report.ByEventType[eventType]
		et.Count++
		et.Credits += l.CreditsConsumed
		report.ByEventType[eventType] = et

		u := report.ByUser[user]
		u.Events++
		u.Credits += l.CreditsConsumed
		report.ByUser[user] = u
	}
	return report
}
