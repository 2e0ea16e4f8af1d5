package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pulselink/emergency-alert-backend/internal/model"
)

// InvitationStore persists link invitations and the terminal marking
// of the link-request trigger records.
type InvitationStore interface {
	Upsert(ctx context.Context, inv model.LinkInvitation) error
	MarkRequestProcessed(ctx context.Context, id uint64, ok bool, errMsg string) error
}

// InvitationService turns link-request events into live invitations
// with a fixed 24-hour lifetime.
type InvitationService struct {
	invitations InvitationStore
	logger      *zap.Logger
	now         func() time.Time
}

// NewInvitationService wires an InvitationService.
func NewInvitationService(invitations InvitationStore, logger *zap.Logger) *InvitationService {
	return &InvitationService{
		invitations: invitations,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// HandleLinkRequest issues the invitation described by one link
// request and terminally marks the request processed true/false,
// mirroring the emergency processor's marking guarantee. Uniqueness of
// the code is the generator's concern; an existing row under the same
// code is overwritten.
func (s *InvitationService) HandleLinkRequest(ctx context.Context, req model.LinkRequest) error {
	createdAt := s.now()
	inv := model.LinkInvitation{
		InvitationCode:   req.InvitationCode,
		InviterUserID:    req.InviterUserID,
		InviterFirstName: req.InviterFirstName,
		CreatedAt:        createdAt,
		ExpiresAt:        createdAt.Add(model.InvitationTTL),
		Used:             false,
	}

	if err := s.invitations.Upsert(ctx, inv); err != nil {
		s.markRequest(ctx, req.ID, false, err.Error())
		return err
	}

	s.markRequest(ctx, req.ID, true, "")
	s.logger.Info("link invitation issued",
		zap.String("inviter_user_id", req.InviterUserID),
		zap.Time("expires_at", inv.ExpiresAt),
	)
	return nil
}

func (s *InvitationService) markRequest(ctx context.Context, id uint64, ok bool, errMsg string) {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.invitations.MarkRequestProcessed(markCtx, id, ok, errMsg); err != nil {
		s.logger.Error("failed to mark link request",
			zap.Uint64("link_request_id", id),
			zap.Error(err),
		)
	}
}
