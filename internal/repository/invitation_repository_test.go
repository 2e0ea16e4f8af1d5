package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulselink/emergency-alert-backend/internal/model"
)

func setupInvitationRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *InvitationRepo) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewInvitationRepo(db)
}

func TestUpsert_WritesAllFields(t *testing.T) {
	db, mock, repo := setupInvitationRepo(t)
	defer db.Close()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inv := model.LinkInvitation{
		InvitationCode:   "ABC123",
		InviterUserID:    "u1",
		InviterFirstName: "Alice",
		CreatedAt:        created,
		ExpiresAt:        created.Add(model.InvitationTTL),
		Used:             false,
	}

	mock.ExpectExec(`INSERT INTO link_invitations`).
		WithArgs("ABC123", "u1", "Alice", "2025-06-01 12:00:00", "2025-06-02 12:00:00", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), inv)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetForUpdateTx_NotFound(t *testing.T) {
	db, mock, repo := setupInvitationRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM link_invitations WHERE invitation_code = \? FOR UPDATE`).
		WithArgs("MISSING").
		WillReturnError(sql.ErrNoRows)

	tx, err := db.Begin()
	require.NoError(t, err)

	_, err = repo.GetForUpdateTx(context.Background(), tx, "MISSING")

	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestDeleteExpired_ReturnsCount(t *testing.T) {
	db, mock, repo := setupInvitationRepo(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM link_invitations WHERE expires_at < UTC_TIMESTAMP\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteExpired(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRequestProcessed_Failure(t *testing.T) {
	db, mock, repo := setupInvitationRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE link_requests SET processed = \?`).
		WithArgs(false, "enqueue failed: broker down", uint64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkRequestProcessed(context.Background(), 12, false, "enqueue failed: broker down")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequest_ReturnsID(t *testing.T) {
	db, mock, repo := setupInvitationRepo(t)
	defer db.Close()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO link_requests`).
		WithArgs("u1", "Alice", "ABC123", "2025-06-01 12:00:00").
		WillReturnResult(sqlmock.NewResult(42, 1))

	id, err := repo.CreateRequest(context.Background(), model.LinkRequest{
		InviterUserID:    "u1",
		InviterFirstName: "Alice",
		InvitationCode:   "ABC123",
		Timestamp:        ts,
	})

	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}
