package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulselink/emergency-alert-backend/internal/model"
)

type fakeInvitationStore struct {
	upserted  []model.LinkInvitation
	upsertErr error
	markedID  uint64
	markedOK  *bool
	markedErr string
}

func (f *fakeInvitationStore) Upsert(_ context.Context, inv model.LinkInvitation) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, inv)
	return nil
}

func (f *fakeInvitationStore) MarkRequestProcessed(_ context.Context, id uint64, ok bool, errMsg string) error {
	f.markedID = id
	f.markedOK = &ok
	f.markedErr = errMsg
	return nil
}

func TestHandleLinkRequest_IssuesInvitation(t *testing.T) {
	store := &fakeInvitationStore{}
	svc := NewInvitationService(store, zap.NewNop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	err := svc.HandleLinkRequest(context.Background(), model.LinkRequest{
		ID:               7,
		InviterUserID:    "u1",
		InviterFirstName: "Alice",
		InvitationCode:   "ABC123",
		Timestamp:        now,
	})

	require.NoError(t, err)
	require.Len(t, store.upserted, 1)
	inv := store.upserted[0]
	assert.Equal(t, "ABC123", inv.InvitationCode)
	assert.Equal(t, "u1", inv.InviterUserID)
	assert.Equal(t, "Alice", inv.InviterFirstName)
	assert.Equal(t, now.Add(24*time.Hour), inv.ExpiresAt)
	assert.False(t, inv.Used)
	require.NotNil(t, store.markedOK)
	assert.True(t, *store.markedOK)
	assert.Equal(t, uint64(7), store.markedID)
}

func TestHandleLinkRequest_StoreFailureMarksRequestFailed(t *testing.T) {
	store := &fakeInvitationStore{upsertErr: errors.New("disk full")}
	svc := NewInvitationService(store, zap.NewNop())

	err := svc.HandleLinkRequest(context.Background(), model.LinkRequest{ID: 9, InvitationCode: "X"})

	assert.Error(t, err)
	require.NotNil(t, store.markedOK, "request must still be terminally marked")
	assert.False(t, *store.markedOK)
	assert.Contains(t, store.markedErr, "disk full")
	assert.Equal(t, uint64(9), store.markedID)
}
