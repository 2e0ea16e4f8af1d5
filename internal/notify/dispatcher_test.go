package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulselink/emergency-alert-backend/internal/model"
	"github.com/pulselink/emergency-alert-backend/internal/push"
)

// fakeSender records every message it is asked to deliver and returns
// a scripted error.
type fakeSender struct {
	sent []push.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg push.Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func testRequest() model.EmergencyRequest {
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

func testContact(token string, consent bool) model.LinkedContact {
	return model.LinkedContact{
		UserID:              "u1",
		ContactUserID:       "c1",
		ContactFirstName:    "Bob",
		PushToken:           token,
		ShareLocationWithMe: consent,
	}
}

func TestSend_MissingPushToken(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, time.Second, zap.NewNop())

	err := d.Send(context.Background(), testContact("", true), testRequest(), "n1")

	assert.ErrorIs(t, err, ErrMissingPushToken)
	assert.Empty(t, sender.sent, "no provider call should be made without a token")
}

func TestSend_DeliversWithLocation(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, time.Second, zap.NewNop())

	err := d.Send(context.Background(), testContact("tok-1", true), testRequest(), "n1")

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "tok-1", msg.Token)
	assert.Equal(t, "high", msg.Priority)
	assert.Contains(t, msg.Body, "165")
	assert.Contains(t, msg.Body, "40.000000")
	assert.Contains(t, msg.Body, "-73.000000")
	assert.Equal(t, "emergency_alert", msg.Data["type"])
	assert.Equal(t, "evt-1", msg.Data["emergencyEventId"])
	assert.Equal(t, "true", msg.Data["hasLocation"])
	assert.Equal(t, "40.000000", msg.Data["latitude"])
	assert.Equal(t, "-73.000000", msg.Data["longitude"])
	assert.Equal(t, "n1", msg.Data["notificationId"])
}

func TestSend_ConsentGateWithholdsLocation(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, time.Second, zap.NewNop())

	// The event shares location and carries coordinates, but this
	// contact never consented to receiving them.
	err := d.Send(context.Background(), testContact("tok-1", false), testRequest(), "n1")

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.NotContains(t, msg.Body, "40.0")
	assert.NotContains(t, msg.Body, "Location")
	assert.Equal(t, "false", msg.Data["hasLocation"])
	assert.Equal(t, "", msg.Data["latitude"])
	assert.Equal(t, "", msg.Data["longitude"])
}

func TestSend_ReporterGateWithholdsLocation(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, time.Second, zap.NewNop())

	req := testRequest()
	req.ShareLocation = false // reporter opted out for this event

	err := d.Send(context.Background(), testContact("tok-1", true), req, "n1")

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "", sender.sent[0].Data["latitude"])
	assert.Equal(t, "", sender.sent[0].Data["longitude"])
}

func TestSend_NoCoordinatesRecorded(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, time.Second, zap.NewNop())

	req := testRequest()
	req.Location = nil

	err := d.Send(context.Background(), testContact("tok-1", true), req, "n1")

	require.NoError(t, err)
	assert.Equal(t, "false", sender.sent[0].Data["hasLocation"])
}

func TestSend_ProviderErrorPropagates(t *testing.T) {
	sender := &fakeSender{err: errors.New("invalid registration token")}
	d := NewDispatcher(sender, time.Second, zap.NewNop())

	err := d.Send(context.Background(), testContact("tok-1", true), testRequest(), "n1")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid registration token")
}

func TestCompose_SeverityMarkers(t *testing.T) {
	cases := []struct {
		severity model.Severity
		marker   string
	}{
		{model.SeverityCritical, "🚨"},
		{model.SeverityHigh, "⚠️"},
		{model.SeverityModerate, "⚡"},
	}
	for _, tc := range cases {
		req := testRequest()
		req.Severity = tc.severity
		msg := Compose(testContact("tok-1", true), req)
		assert.True(t, strings.HasPrefix(msg.Title, tc.marker), "severity %s should use marker %s", tc.severity, tc.marker)
		assert.Equal(t, string(tc.severity), msg.Data["severity"])
	}
}
