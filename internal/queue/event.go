// Package queue defines message payloads exchanged over the message
// broker and the consumers that turn them into core-logic invocations.
// Record creation is the trigger model of this system: ingestion
// endpoints persist a row, publish a small event, and the consumers
// pick the work up asynchronously.
package queue

import "time"

// Queue names. Both queues are declared durable and messages are
// published persistent, so a broker restart does not drop triggers.
const (
	EmergencyRequestQueue = "emergency.request.created"
	LinkRequestQueue      = "link.request.created"
)

// EmergencyRequestCreated announces that a new emergency request row
// exists. It deliberately carries only the identifiers: the consumer
// re-reads the authoritative row from the store, which also lets it
// skip redeliveries of already-processed requests.
type EmergencyRequestCreated struct {
	EmergencyEventID string `json:"emergency_event_id"`
	UserID           string `json:"user_id"`
}

// LinkRequestCreated announces a new link-request row. The full
// payload travels in the message so the invitation store can issue the
// invitation without another read.
type LinkRequestCreated struct {
	ID               uint64    `json:"id"`
	InviterUserID    string    `json:"inviter_user_id"`
	InviterFirstName string    `json:"inviter_first_name"`
	InvitationCode   string    `json:"invitation_code"`
	Timestamp        time.Time `json:"timestamp"`
}
