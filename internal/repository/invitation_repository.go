package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pulselink/emergency-alert-backend/internal/model"
)

// InvitationRepo provides data access to the `link_invitations` and
// `link_requests` tables. Invitations are short-lived single-use
// records keyed by the invitation code itself; link requests are the
// append-only trigger records that cause invitations to be issued.
// All expiry comparisons are performed in UTC.
type InvitationRepo struct {
	db *sql.DB
}

// NewInvitationRepo returns a new InvitationRepo bound to the provided database.
func NewInvitationRepo(db *sql.DB) *InvitationRepo { return &InvitationRepo{db: db} }

// Upsert writes a link invitation keyed by its code. An existing row
// with the same code is silently overwritten: code uniqueness is the
// generator's responsibility, and the entropy of server-generated codes
// makes a live collision negligible.
func (r *InvitationRepo) Upsert(ctx context.Context, inv model.LinkInvitation) error {
	const q = `INSERT INTO link_invitations
	           (invitation_code, inviter_user_id, inviter_first_name, created_at, expires_at, used)
	           VALUES (?, ?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE
	             inviter_user_id = VALUES(inviter_user_id),
	             inviter_first_name = VALUES(inviter_first_name),
	             created_at = VALUES(created_at),
	             expires_at = VALUES(expires_at),
	             used = VALUES(used)`
	_, err := r.db.ExecContext(ctx, q,
		inv.InvitationCode, inv.InviterUserID, inv.InviterFirstName,
		inv.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		inv.ExpiresAt.UTC().Format("2006-01-02 15:04:05"),
		inv.Used)
	return err
}

// GetForUpdateTx fetches an invitation by code with a row lock so that
// two concurrent link attempts on the same code serialize: the second
// transaction blocks until the first commits and then observes
// used = true. Returns ErrInvitationNotFound when no row matches.
// The caller must commit or roll back the transaction.
func (r *InvitationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, code string) (model.LinkInvitation, error) {
	const q = `SELECT invitation_code, inviter_user_id, inviter_first_name, created_at, expires_at, used
	           FROM link_invitations WHERE invitation_code = ? FOR UPDATE`
	var inv model.LinkInvitation
	err := tx.QueryRowContext(ctx, q, code).Scan(
		&inv.InvitationCode, &inv.InviterUserID, &inv.InviterFirstName,
		&inv.CreatedAt, &inv.ExpiresAt, &inv.Used)
	if err == sql.ErrNoRows {
		return model.LinkInvitation{}, ErrInvitationNotFound
	}
	if err != nil {
		return model.LinkInvitation{}, err
	}
	return inv, nil
}

// MarkUsedTx flips the used flag within the provided transaction.
func (r *InvitationRepo) MarkUsedTx(ctx context.Context, tx *sql.Tx, code string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE link_invitations SET used = TRUE WHERE invitation_code = ?`, code)
	return err
}

// DeleteExpired removes every invitation whose expiry has passed,
// regardless of the used flag, and returns the number of rows removed.
// A failed run is harmless: the next sweep retries the remainder.
func (r *InvitationRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM link_invitations WHERE expires_at < UTC_TIMESTAMP()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateRequest appends a link-request trigger record and returns its
// generated id. The row starts with processed = NULL (pending).
func (r *InvitationRepo) CreateRequest(ctx context.Context, req model.LinkRequest) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO link_requests (inviter_user_id, inviter_first_name, invitation_code, ts)
		 VALUES (?, ?, ?, ?)`,
		req.InviterUserID, req.InviterFirstName, req.InvitationCode,
		req.Timestamp.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// MarkRequestProcessed terminally marks a link request. On success
// errMsg is empty and processed becomes true; on failure processed
// becomes false and the captured error message is stored. The record
// is never touched again after this write.
func (r *InvitationRepo) MarkRequestProcessed(ctx context.Context, id uint64, ok bool, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE link_requests SET processed = ?, processed_at = UTC_TIMESTAMP(), error = ? WHERE id = ?`,
		ok, errMsg, id)
	return err
}

// ExpiresIn reports how long an invitation created now remains valid.
// Exposed so handlers can echo the expiry back to the client without
// duplicating the TTL constant.
func ExpiresIn(createdAt time.Time) time.Time { return createdAt.Add(model.InvitationTTL) }
