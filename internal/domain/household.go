package domain

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Household is the sharing boundary for receipts, budgets, nutrition facts and credit usage.
type Household struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	AdminID     string    `json:"admin_id"`
	CreatedDate time.Time `json:"created_date"`
	UpdatedDate time.Time `json:"updated_date"`
}

// InvitationStatus is the lifecycle state of a household invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// InvitationTTL is how long an invitation token stays valid.
const InvitationTTL = 7 * 24 * time.Hour

// InvitationTokenLength is the number of characters in an invitation token.
const InvitationTokenLength = 32

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// HouseholdInvitation invites an email address to join a household.
type HouseholdInvitation struct {
	ID           string           `json:"id"`
	HouseholdID  string           `json:"household_id"`
	InviteeEmail string           `json:"invitee_email"`
	InviterName  string           `json:"inviter_name"`
	Token        string           `json:"token"`
	Status       InvitationStatus `json:"status"`
	ExpiresAt    time.Time        `json:"expires_at"`
	CreatedDate  time.Time        `json:"created_date"`
	UpdatedDate  time.Time        `json:"updated_date"`
}

// Expired reports whether the invitation is past its expiry at now.
func (i *HouseholdInvitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// NewInvitationToken returns a random alphanumeric token of InvitationTokenLength characters.
func NewInvitationToken() (string, error) {
	b := make([]byte, InvitationTokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = tokenAlphabet[n.Int64()]
	}
	return string(b), nil
}
