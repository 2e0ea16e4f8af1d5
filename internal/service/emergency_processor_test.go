package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulselink/emergency-alert-backend/internal/model"
	"github.com/pulselink/emergency-alert-backend/internal/notify"
	"github.com/pulselink/emergency-alert-backend/internal/repository"
)

// ----- fakes -----

type fakeUserStore struct {
	users map[string]model.User
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

type fakeContactStore struct {
	contacts map[string][]model.LinkedContact
	err      error
}

func (f *fakeContactStore) ListByUser(_ context.Context, userID string) ([]model.LinkedContact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.contacts[userID], nil
}

// fakeEmergencyStore records the event write and every terminal
// marking so tests can assert the marking invariant.
type fakeEmergencyStore struct {
	mu        sync.Mutex
	events    []model.EmergencyEvent
	eventErr  error
	markOK    *bool
	markRes   map[string]string
	markErr   string
	markCount int
}

func (f *fakeEmergencyStore) CreateEvent(_ context.Context, ev model.EmergencyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.eventErr != nil {
		return f.eventErr
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEmergencyStore) MarkRequestProcessed(_ context.Context, _ string, ok bool, results map[string]string, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markOK = &ok
	f.markRes = results
	f.markErr = errMsg
	f.markCount++
	return nil
}

// fakeDispatcher fails for the contact ids listed in failFor.
type fakeDispatcher struct {
	mu      sync.Mutex
	sends   []string
	failFor map[string]error
}

func (f *fakeDispatcher) Send(_ context.Context, c model.LinkedContact, _ model.EmergencyRequest, _ string) error {
	f.mu.Lock()
	f.sends = append(f.sends, c.ContactUserID)
	f.mu.Unlock()
	if err, ok := f.failFor[c.ContactUserID]; ok {
		return err
	}
	return nil
}

func contact(id, token string, consent bool) model.LinkedContact {
	return model.LinkedContact{
		UserID:              "u1",
		ContactUserID:       id,
		ContactFirstName:    "Contact " + id,
		PushToken:           token,
		ShareLocationWithMe: consent,
	}
}

func request() model.EmergencyRequest {
	return model.EmergencyRequest{
		EmergencyEventID: "evt-1",
		UserID:           "u1",
		UserFirstName:    "Alice",
		HeartRate:        165,
		Severity:         model.SeverityCritical,
		Timestamp:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Location:         &model.Location{Latitude: 40.0, Longitude: -73.0},
		ShareLocation:    true,
	}
}

func newProcessor(users *fakeUserStore, contacts *fakeContactStore, store *fakeEmergencyStore, disp *fakeDispatcher) *EmergencyProcessor {
	return NewEmergencyProcessor(users, contacts, store, disp, zap.NewNop())
}

// ----- tests -----

func TestProcess_SingleContactEndToEnd(t *testing.T) {
	users := &fakeUserStore{users: map[string]model.User{"u1": {ID: "u1", FirstName: "Alice"}}}
	contacts := &fakeContactStore{contacts: map[string][]model.LinkedContact{
		"u1": {contact("c1", "tok-1", true)},
	}}
	store := &fakeEmergencyStore{}
	disp := &fakeDispatcher{}

	err := newProcessor(users, contacts, store, disp).Process(context.Background(), request())

	require.NoError(t, err)
	require.Len(t, store.events, 1)
	ev := store.events[0]
	assert.Equal(t, []string{"c1"}, ev.ContactsNotified)
	assert.Equal(t, map[string]string{"c1": model.OutcomeSent}, ev.NotificationStatus)
	require.NotNil(t, store.markOK)
	assert.True(t, *store.markOK)
	assert.Equal(t, map[string]string{"c1": model.OutcomeSent}, store.markRes)
}

func TestProcess_FanOutIndependence(t *testing.T) {
	users := &fakeUserStore{users: map[string]model.User{"u1": {ID: "u1", FirstName: "Alice"}}}
	contacts := &fakeContactStore{contacts: map[string][]model.LinkedContact{
		"u1": {
			contact("c1", "tok-1", true),
			contact("c2", "", true), // never registered a token
			contact("c3", "tok-3", false),
		},
	}}
	store := &fakeEmergencyStore{}
	disp := &fakeDispatcher{failFor: map[string]error{"c2": notify.ErrMissingPushToken}}

	err := newProcessor(users, contacts, store, disp).Process(context.Background(), request())

	require.NoError(t, err)
	assert.Len(t, disp.sends, 3, "every contact must be attempted")
	require.Len(t, store.events, 1)
	ev := store.events[0]
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, ev.ContactsNotified)
	assert.Equal(t, model.OutcomeSent, ev.NotificationStatus["c1"])
	assert.Equal(t, model.OutcomeFailed, ev.NotificationStatus["c2"])
	assert.Equal(t, model.OutcomeSent, ev.NotificationStatus["c3"])
	require.NotNil(t, store.markOK)
	assert.True(t, *store.markOK, "per-contact failures must not fail the request")
}

func TestProcess_TimeoutClassifiedSeparately(t *testing.T) {
	users := &fakeUserStore{users: map[string]model.User{"u1": {ID: "u1"}}}
	contacts := &fakeContactStore{contacts: map[string][]model.LinkedContact{
		"u1": {contact("c1", "tok-1", true)},
	}}
	store := &fakeEmergencyStore{}
	disp := &fakeDispatcher{failFor: map[string]error{"c1": context.DeadlineExceeded}}

	err := newProcessor(users, contacts, store, disp).Process(context.Background(), request())

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeTimeout, store.events[0].NotificationStatus["c1"])
}

func TestProcess_NoContactsStillRecordsEvent(t *testing.T) {
	users := &fakeUserStore{users: map[string]model.User{"u1": {ID: "u1"}}}
	contacts := &fakeContactStore{contacts: map[string][]model.LinkedContact{}}
	store := &fakeEmergencyStore{}
	disp := &fakeDispatcher{}

	err := newProcessor(users, contacts, store, disp).Process(context.Background(), request())

	require.NoError(t, err)
	require.Len(t, store.events, 1)
	assert.Empty(t, store.events[0].ContactsNotified)
	assert.Empty(t, disp.sends)
	require.NotNil(t, store.markOK)
	assert.True(t, *store.markOK)
}

func TestProcess_UserNotFoundMarksFailed(t *testing.T) {
	users := &fakeUserStore{users: map[string]model.User{}}
	contacts := &fakeContactStore{}
	store := &fakeEmergencyStore{}
	disp := &fakeDispatcher{}

	err := newProcessor(users, contacts, store, disp).Process(context.Background(), request())

	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	assert.Empty(t, store.events, "no partial side effects on failure")
	assert.Empty(t, disp.sends)
	require.NotNil(t, store.markOK, "terminal marking must happen on every path")
	assert.False(t, *store.markOK)
	assert.Contains(t, store.markErr, "user not found")
}

func TestProcess_EventWriteFailureMarksFailed(t *testing.T) {
	users := &fakeUserStore{users: map[string]model.User{"u1": {ID: "u1"}}}
	contacts := &fakeContactStore{contacts: map[string][]model.LinkedContact{
		"u1": {contact("c1", "tok-1", true)},
	}}
	store := &fakeEmergencyStore{eventErr: errors.New("write quota exceeded")}
	disp := &fakeDispatcher{}

	err := newProcessor(users, contacts, store, disp).Process(context.Background(), request())

	assert.Error(t, err)
	require.NotNil(t, store.markOK)
	assert.False(t, *store.markOK)
	assert.Contains(t, store.markErr, "write quota exceeded")
}

func TestProcess_TerminalMarkingAlwaysExactlyOnce(t *testing.T) {
	cases := []struct {
		name     string
		users    *fakeUserStore
		contacts *fakeContactStore
		store    *fakeEmergencyStore
	}{
		{
			name:     "success",
			users:    &fakeUserStore{users: map[string]model.User{"u1": {ID: "u1"}}},
			contacts: &fakeContactStore{},
			store:    &fakeEmergencyStore{},
		},
		{
			name:     "user missing",
			users:    &fakeUserStore{users: map[string]model.User{}},
			contacts: &fakeContactStore{},
			store:    &fakeEmergencyStore{},
		},
		{
			name:     "contact list failure",
			users:    &fakeUserStore{users: map[string]model.User{"u1": {ID: "u1"}}},
			contacts: &fakeContactStore{err: errors.New("store offline")},
			store:    &fakeEmergencyStore{},
		},
		{
			name:     "event write failure",
			users:    &fakeUserStore{users: map[string]model.User{"u1": {ID: "u1"}}},
			contacts: &fakeContactStore{},
			store:    &fakeEmergencyStore{eventErr: errors.New("boom")},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_ = newProcessor(tc.users, tc.contacts, tc.store, &fakeDispatcher{}).Process(context.Background(), request())
			assert.Equal(t, 1, tc.store.markCount, "request must be terminally marked exactly once")
			require.NotNil(t, tc.store.markOK)
		})
	}
}

func TestProcess_LargeContactListBounded(t *testing.T) {
	var list []model.LinkedContact
	for i := 0; i < 50; i++ {
		list = append(list, contact(string(rune('a'+i%26))+string(rune('0'+i/26)), "tok", true))
	}
	users := &fakeUserStore{users: map[string]model.User{"u1": {ID: "u1"}}}
	contacts := &fakeContactStore{contacts: map[string][]model.LinkedContact{"u1": list}}
	store := &fakeEmergencyStore{}
	disp := &fakeDispatcher{}

	err := newProcessor(users, contacts, store, disp).Process(context.Background(), request())

	require.NoError(t, err)
	assert.Len(t, disp.sends, 50)
	assert.Len(t, store.events[0].NotificationStatus, 50)
}
