package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulselink/emergency-alert-backend/internal/repository"
)

// ErrSelfLink is returned when a user tries to consume their own
// invitation. Handlers should translate it into a failed-precondition
// response like the expiry errors.
var ErrSelfLink = errors.New("cannot link with yourself")

// ErrAlreadyLinked is returned when the two parties are linked already.
var ErrAlreadyLinked = errors.New("contact already linked")

// ContactLinker consumes a valid invitation code and establishes the
// bidirectional contact relationship. The whole consume-and-link step
// commits as one SQL transaction so a crash can never leave an
// asymmetric link where A knows B but B does not know A.
type ContactLinker struct {
	db          *sql.DB
	invitations *repository.InvitationRepo
	contacts    *repository.ContactRepo
	logger      *zap.Logger
	now         func() time.Time
}

// NewContactLinker wires a ContactLinker over the shared database
// handle and the invitation/contact repositories.
func NewContactLinker(db *sql.DB, invitations *repository.InvitationRepo, contacts *repository.ContactRepo, logger *zap.Logger) *ContactLinker {
	return &ContactLinker{
		db:          db,
		invitations: invitations,
		contacts:    contacts,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Link validates the invitation and, on success, atomically inserts
// both sides of the contact pair and marks the invitation used. It
// returns the inviter's first name so the client can show who the
// caller just linked with.
//
// Failure modes, checked in order: repository.ErrInvitationNotFound,
// ErrSelfLink, repository.ErrInvitationExpiredOrUsed (used covers both
// a consumed code and a past expiry), ErrAlreadyLinked. Concurrent
// calls with the same code serialize on the invitation row lock, so
// exactly one succeeds and the rest observe used = true.
func (l *ContactLinker) Link(ctx context.Context, code, requesterID, requesterFirstName, requesterPushToken string) (string, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	inv, err := l.invitations.GetForUpdateTx(ctx, tx, code)
	if err != nil {
		return "", err
	}
	if inv.InviterUserID == requesterID {
		return "", ErrSelfLink
	}
	if inv.Used {
		return "", fmt.Errorf("%w: code already consumed", repository.ErrInvitationExpiredOrUsed)
	}
	if !l.now().Before(inv.ExpiresAt) {
		return "", fmt.Errorf("%w: code expired at %s", repository.ErrInvitationExpiredOrUsed, inv.ExpiresAt.Format(time.RFC3339))
	}

	linked, err := l.contacts.Linked(ctx, inv.InviterUserID, requesterID)
	if err != nil {
		return "", err
	}
	if linked {
		return "", ErrAlreadyLinked
	}

	inviterSide, requesterSide := repository.PairRecords(
		inv.InviterUserID, inv.InviterFirstName,
		requesterID, requesterFirstName, requesterPushToken,
		l.now(),
	)
	if err := l.contacts.InsertTx(ctx, tx, inviterSide); err != nil {
		return "", err
	}
	if err := l.contacts.InsertTx(ctx, tx, requesterSide); err != nil {
		return "", err
	}
	if err := l.invitations.MarkUsedTx(ctx, tx, code); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	l.logger.Info("contacts linked",
		zap.String("inviter_user_id", inv.InviterUserID),
		zap.String("requester_user_id", requesterID),
	)
	return inv.InviterFirstName, nil
}
