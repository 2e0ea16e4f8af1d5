package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulselink/emergency-alert-backend/internal/repository"
)

func setupLinker(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *ContactLinker) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	linker := NewContactLinker(db, repository.NewInvitationRepo(db), repository.NewContactRepo(db), zap.NewNop())
	return db, mock, linker
}

func invitationRow(code, inviterID, inviterName string, createdAt, expiresAt time.Time, used bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"invitation_code", "inviter_user_id", "inviter_first_name", "created_at", "expires_at", "used",
	}).AddRow(code, inviterID, inviterName, createdAt, expiresAt, used)
}

func TestLink_Success(t *testing.T) {
	db, mock, linker := setupLinker(t)
	defer db.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	linker.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM link_invitations WHERE invitation_code = \? FOR UPDATE`).
		WithArgs("ABC123").
		WillReturnRows(invitationRow("ABC123", "u1", "Alice", now.Add(-time.Hour), now.Add(23*time.Hour), false))
	mock.ExpectQuery(`SELECT 1 FROM linked_contacts`).
		WithArgs("u1", "u2").
		WillReturnError(sql.ErrNoRows)
	// Inviter side carries the requester's name and token.
	mock.ExpectExec(`INSERT INTO linked_contacts`).
		WithArgs("u1", "u2", "Bob", "token123", now.Format("2006-01-02 15:04:05"), false, false).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// Requester side carries the inviter's name and an empty token.
	mock.ExpectExec(`INSERT INTO linked_contacts`).
		WithArgs("u2", "u1", "Alice", "", now.Format("2006-01-02 15:04:05"), false, false).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(`UPDATE link_invitations SET used = TRUE`).
		WithArgs("ABC123").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	linkedWith, err := linker.Link(context.Background(), "ABC123", "u2", "Bob", "token123")

	require.NoError(t, err)
	assert.Equal(t, "Alice", linkedWith)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLink_NotFound(t *testing.T) {
	db, mock, linker := setupLinker(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM link_invitations`).
		WithArgs("NOPE").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := linker.Link(context.Background(), "NOPE", "u2", "Bob", "tok")

	assert.ErrorIs(t, err, repository.ErrInvitationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLink_AlreadyUsed(t *testing.T) {
	db, mock, linker := setupLinker(t)
	defer db.Close()

	now := time.Now().UTC()
	linker.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM link_invitations`).
		WithArgs("ABC123").
		WillReturnRows(invitationRow("ABC123", "u1", "Alice", now.Add(-time.Hour), now.Add(23*time.Hour), true))
	mock.ExpectRollback()

	_, err := linker.Link(context.Background(), "ABC123", "u2", "Bob", "tok")

	assert.ErrorIs(t, err, repository.ErrInvitationExpiredOrUsed)
	assert.Contains(t, err.Error(), "consumed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLink_Expired(t *testing.T) {
	db, mock, linker := setupLinker(t)
	defer db.Close()

	now := time.Now().UTC()
	linker.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM link_invitations`).
		WithArgs("ABC123").
		WillReturnRows(invitationRow("ABC123", "u1", "Alice", now.Add(-25*time.Hour), now.Add(-time.Hour), false))
	mock.ExpectRollback()

	_, err := linker.Link(context.Background(), "ABC123", "u2", "Bob", "tok")

	assert.ErrorIs(t, err, repository.ErrInvitationExpiredOrUsed)
	assert.Contains(t, err.Error(), "expired")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLink_SelfLinkRejected(t *testing.T) {
	db, mock, linker := setupLinker(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM link_invitations`).
		WithArgs("ABC123").
		WillReturnRows(invitationRow("ABC123", "u1", "Alice", now, now.Add(24*time.Hour), false))
	mock.ExpectRollback()

	_, err := linker.Link(context.Background(), "ABC123", "u1", "Alice", "tok")

	assert.ErrorIs(t, err, ErrSelfLink)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLink_AlreadyLinkedRejected(t *testing.T) {
	db, mock, linker := setupLinker(t)
	defer db.Close()

	now := time.Now().UTC()
	linker.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM link_invitations`).
		WithArgs("DEF456").
		WillReturnRows(invitationRow("DEF456", "u1", "Alice", now, now.Add(24*time.Hour), false))
	mock.ExpectQuery(`SELECT 1 FROM linked_contacts`).
		WithArgs("u1", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	_, err := linker.Link(context.Background(), "DEF456", "u2", "Bob", "tok")

	assert.ErrorIs(t, err, ErrAlreadyLinked)
	assert.NoError(t, mock.ExpectationsWereMet())
}
