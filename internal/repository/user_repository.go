package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pulselink/emergency-alert-backend/internal/model"
)

// UserRepo provides data access to the `users` table. Accounts are
// anonymous: the id is a server-generated UUID and the only credential
// is a bcrypt hash of the client's device secret.
type UserRepo struct{ DB *sql.DB }

// NewUserRepo returns a new UserRepo bound to the provided database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// CreateAnonymous inserts a new anonymous account and returns its
// generated id. FirstName may be empty at sign-in time; the client
// typically sets it afterwards via the profile endpoint.
func (r *UserRepo) CreateAnonymous(ctx context.Context, firstName, secretHash string) (string, error) {
	id := uuid.NewString()
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id, first_name, push_token, device_secret_hash) VALUES (?,?,?,?)",
		id, strings.TrimSpace(firstName), "", secretHash)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetByID fetches a user by account id. Returns ErrUserNotFound when
// no row matches.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, first_name, push_token, device_secret_hash, created_at, updated_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.FirstName, &u.PushToken, &u.DeviceSecretHash, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrUserNotFound
	}
	return u, err
}

// UpdateFirstName sets the display name of an account.
func (r *UserRepo) UpdateFirstName(ctx context.Context, id, firstName string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET first_name=?, updated_at=UTC_TIMESTAMP() WHERE id=?",
		strings.TrimSpace(firstName), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePushToken records the account's current push token and
// propagates it into every linked_contacts row that addresses this
// account. Propagation is what eventually fills the empty token left
// on the inviter side of a fresh link, so both writes happen in one
// transaction.
func (r *UserRepo) UpdatePushToken(ctx context.Context, id, token string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE users SET push_token=?, updated_at=UTC_TIMESTAMP() WHERE id=?", token, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE linked_contacts SET push_token=? WHERE contact_user_id=?", token, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Touch updates the updated_at column, used when a client checks in
// without changing any field.
func (r *UserRepo) Touch(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET updated_at=? WHERE id=?", time.Now().UTC(), id)
	return err
}
