// Package notify composes and dispatches emergency-alert push messages
// to linked contacts. One dispatcher call handles exactly one
// (event, contact) pair; fan-out across contacts is the caller's job.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pulselink/emergency-alert-backend/internal/model"
	"github.com/pulselink/emergency-alert-backend/internal/push"
)

// ErrMissingPushToken is returned when the contact has never registered
// a push token. It is a per-contact failure, not a system error: the
// fan-out records it and carries on with the remaining contacts.
var ErrMissingPushToken = errors.New("contact has no push token")

// Dispatcher sends one emergency alert to one contact through the
// configured push sender.
type Dispatcher struct {
	sender      push.Sender
	sendTimeout time.Duration
	logger      *zap.Logger
}

// NewDispatcher returns a dispatcher over the given sender. Each send
// runs under its own deadline so one slow provider call cannot hold a
// fan-out slot indefinitely.
func NewDispatcher(sender push.Sender, sendTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, sendTimeout: sendTimeout, logger: logger}
}

// Send composes the alert message for a single contact and awaits the
// provider acknowledgment. It fails fast with ErrMissingPushToken when
// the contact cannot be addressed. The location line is appended only
// when the reporting client shared it AND this specific contact has
// consent to receive it AND coordinates are present; the check is
// re-evaluated per contact so one contact's consent never leaks
// coordinates to another. Errors are returned to the caller, never
// swallowed; there is no retry at this layer.
func (d *Dispatcher) Send(ctx context.Context, contact model.LinkedContact, req model.EmergencyRequest, notificationID string) error {
	if contact.PushToken == "" {
		return ErrMissingPushToken
	}

	msg := Compose(contact, req)
	msg.Data["notificationId"] = notificationID

	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		d.logger.Warn("push send failed",
			zap.String("emergency_event_id", req.EmergencyEventID),
			zap.String("contact_user_id", contact.ContactUserID),
			zap.Error(err),
		)
		return err
	}
	d.logger.Info("push send acknowledged",
		zap.String("emergency_event_id", req.EmergencyEventID),
		zap.String("contact_user_id", contact.ContactUserID),
	)
	return nil
}

// Compose builds the push message for one contact. Severity selects
// the urgency marker on the title only; it never influences whether
// the message is sent. The data payload always carries the full set of
// keys so the client can parse it uniformly, with latitude/longitude
// left as empty strings when location is withheld.
func Compose(contact model.LinkedContact, req model.EmergencyRequest) push.Message {
	shareLocation := req.ShareLocation && contact.ShareLocationWithMe && req.Location != nil

	body := fmt.Sprintf("%s needs help! Heart rate: %d BPM", req.UserFirstName, req.HeartRate)
	lat, lng := "", ""
	if shareLocation {
		lat = strconv.FormatFloat(req.Location.Latitude, 'f', 6, 64)
		lng = strconv.FormatFloat(req.Location.Longitude, 'f', 6, 64)
		body += fmt.Sprintf("\nLocation: %s, %s", lat, lng)
	}

	return push.Message{
		Token:    contact.PushToken,
		Title:    fmt.Sprintf("%s Emergency Alert: %s", req.Severity.Marker(), req.UserFirstName),
		Body:     body,
		Priority: "high",
		Data: map[string]string{
			"type":             "emergency_alert",
			"emergencyEventId": req.EmergencyEventID,
			"userId":           req.UserID,
			"userFirstName":    req.UserFirstName,
			"heartRate":        strconv.Itoa(req.HeartRate),
			"severity":         string(req.Severity),
			"timestamp":        req.Timestamp.UTC().Format(time.RFC3339),
			"hasLocation":      strconv.FormatBool(shareLocation),
			"latitude":         lat,
			"longitude":        lng,
		},
	}
}
