package housekeeping

import (
	"context"
	"fmt"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/mail"
)

// InvitationRequest is the input of SendInvitation.
type InvitationRequest struct {
	InviteeEmail   string `json:"invitee_email" validate:"required,email"`
	InviterName    string `json:"inviter_name" validate:"required"`
	InvitationLink string `json:"invitation_link" validate:"required,url"`
	HouseholdID    string `json:"household_id" validate:"required"`
}

// InvitationResult is the output of SendInvitation.
type InvitationResult struct {
	InvitationID string                  `json:"invitation_id"`
	Token        string                  `json:"token"`
	EmailSent    bool                    `json:"email_sent"`
	Status       domain.InvitationStatus `json:"status"`
}

// SendInvitation persists a pending invitation and emails the join link.
func (s *Service) SendInvitation(ctx context.Context, req InvitationRequest) (*InvitationResult, error) {
	token, err := domain.NewInvitationToken()
	if err != nil {
		return nil, fmt.Errorf("generate invitation token: %w", err)
	}

	now := s.now()
	inv := &domain.HouseholdInvitation{
		HouseholdID:  req.HouseholdID,
		InviteeEmail: req.InviteeEmail,
		InviterName:  req.InviterName,
		Token:        token,
		Status:       domain.InvitationPending,
		ExpiresAt:    now.Add(domain.InvitationTTL),
		CreatedDate:  now,
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	sent := s.sendBestEffort(ctx, mail.Message{
		To:      req.InviteeEmail,
		Subject: fmt.Sprintf("You're invited to join %s's household", req.InviterName),
		Body:    fmt.Sprintf("Click here to join: %s?token=%s", req.InvitationLink, token),
	})

	s.log.Info().Str("household_id", req.HouseholdID).Str("invitation_id", inv.ID).Bool("email_sent", sent).Msg("invitation created")
	return &InvitationResult{
		InvitationID: inv.ID,
		Token:        token,
		EmailSent:    sent,
		Status:       domain.InvitationPending,
	}, nil
}
