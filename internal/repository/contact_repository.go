package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pulselink/emergency-alert-backend/internal/model"
)

// ContactRepo provides data access to the `linked_contacts` table.
// A contact link is always a symmetric pair of rows (A→B and B→A)
// created in the same transaction; the repo therefore exposes Tx
// variants for the writes that participate in linking. All timestamp
// fields are assumed to be stored in UTC.
type ContactRepo struct {
	db *sql.DB
}

// NewContactRepo returns a new ContactRepo bound to the provided database.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

// ListByUser returns every linked contact owned by the given user.
// An empty slice is not an error: a user with no contacts is a valid
// state (their emergency reports are still recorded, just not fanned
// out to anyone).
func (r *ContactRepo) ListByUser(ctx context.Context, userID string) ([]model.LinkedContact, error) {
	const q = `SELECT user_id, contact_user_id, contact_first_name, push_token, linked_at,
	                  share_location_with_me, share_my_location_with_them
	           FROM linked_contacts WHERE user_id = ?`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var contacts []model.LinkedContact
	for rows.Next() {
		var c model.LinkedContact
		if err := rows.Scan(&c.UserID, &c.ContactUserID, &c.ContactFirstName, &c.PushToken,
			&c.LinkedAt, &c.ShareLocationWithMe, &c.ShareMyLocationWithThem); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return contacts, nil
}

// InsertTx inserts one side of a contact link within the provided
// transaction. The caller must commit or roll back. linked_at is
// supplied explicitly so both sides of a pair carry the same value.
func (r *ContactRepo) InsertTx(ctx context.Context, tx *sql.Tx, c model.LinkedContact) error {
	const q = `INSERT INTO linked_contacts
	           (user_id, contact_user_id, contact_first_name, push_token, linked_at,
	            share_location_with_me, share_my_location_with_them)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		c.UserID, c.ContactUserID, c.ContactFirstName, c.PushToken,
		c.LinkedAt.UTC().Format("2006-01-02 15:04:05"),
		c.ShareLocationWithMe, c.ShareMyLocationWithThem)
	return err
}

// UpdateConsent sets the caller's "share my location with them" flag
// for one contact and mirrors it into the contact's row as "share
// location with me". The two rows describe the same consent from
// opposite perspectives, so they are updated in one transaction.
// Returns ErrContactNotFound when the caller is not linked with the
// named contact.
func (r *ContactRepo) UpdateConsent(ctx context.Context, userID, contactUserID string, share bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE linked_contacts SET share_my_location_with_them = ? WHERE user_id = ? AND contact_user_id = ?`,
		share, userID, contactUserID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrContactNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE linked_contacts SET share_location_with_me = ? WHERE user_id = ? AND contact_user_id = ?`,
		share, contactUserID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// Linked reports whether userID already holds a contact entry for
// contactUserID. Used to keep a repeated link attempt from creating
// duplicate rows.
func (r *ContactRepo) Linked(ctx context.Context, userID, contactUserID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM linked_contacts WHERE user_id = ? AND contact_user_id = ? LIMIT 1`,
		userID, contactUserID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PairRecords builds the two symmetric rows for a new link between an
// inviter and a requester. The requester side gets the inviter's name
// but an empty push token: the inviter's token is not known to the
// linking operation and is propagated later when the inviter's client
// next updates it. Both consent flags start false on both sides.
func PairRecords(inviterID, inviterFirstName, requesterID, requesterFirstName, requesterPushToken string, linkedAt time.Time) (inviterSide, requesterSide model.LinkedContact) {
	inviterSide = model.LinkedContact{
		UserID:           inviterID,
		ContactUserID:    requesterID,
		ContactFirstName: requesterFirstName,
		PushToken:        requesterPushToken,
		LinkedAt:         linkedAt,
	}
	requesterSide = model.LinkedContact{
		UserID:           requesterID,
		ContactUserID:    inviterID,
		ContactFirstName: inviterFirstName,
		PushToken:        "",
		LinkedAt:         linkedAt,
	}
	return inviterSide, requesterSide
}
