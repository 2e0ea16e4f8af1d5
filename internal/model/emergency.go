package model

import "time"

// Severity classifies how far a detected heart-rate anomaly deviated
// from the patient's thresholds.  It is a display concern only: every
// severity is dispatched to contacts identically.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityModerate Severity = "moderate"
)

// Valid reports whether s is one of the known severity values.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityModerate:
		return true
	}
	return false
}

// Marker returns the urgency marker prepended to the push title for
// this severity.
func (s Severity) Marker() string {
	switch s {
	case SeverityCritical:
		return "🚨"
	case SeverityHigh:
		return "⚠️"
	default:
		return "⚡"
	}
}

// Location is a latitude/longitude pair attached to an emergency
// report when the reporting client chose to share it.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Delivery outcomes recorded per contact in an emergency event's
// notification status map.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
)

// EmergencyRequest mirrors the append-only `emergency_requests` table.
// A row is written once by the reporting client, read exactly once by
// the processor, then terminally marked processed (true or false) and
// never mutated again.  Processed is nil while the request is pending.
//
// Fields:
//  EmergencyEventID – unique id of the detected event (client supplied).
//  UserID           – account id of the reporting user.
//  UserFirstName    – display name embedded in outbound messages.
//  HeartRate        – measured heart rate in BPM.
//  Severity         – critical | high | moderate.
//  Timestamp        – when the client detected the event.
//  Location         – optional coordinates (nil when not captured).
//  ShareLocation    – consent gate set by the reporting client.
//  Processed        – nil = pending, true = handled, false = failed.
//  ProcessedAt      – when the terminal marking happened.
//  Results          – per-contact outcome map (set on success).
//  Error            – captured error message (set on failure).
type EmergencyRequest struct {
	EmergencyEventID string
	UserID           string
	UserFirstName    string
	HeartRate        int
	Severity         Severity
	Timestamp        time.Time
	Location         *Location
	ShareLocation    bool
	Processed        *bool
	ProcessedAt      *time.Time
	Results          map[string]string
	Error            string
}

// EmergencyEvent is the derived record persisted once per processed
// request.  It mirrors the request's medical fields and adds the
// notification outcome; after creation only the resolved flag may flip,
// by an explicit user action.
type EmergencyEvent struct {
	EmergencyEventID   string
	UserID             string
	UserFirstName      string
	HeartRate          int
	Severity           Severity
	Timestamp          time.Time
	Location           *Location
	ShareLocation      bool
	ContactsNotified   []string          // every contact id attempted, not just successes
	NotificationStatus map[string]string // contact id -> sent | failed | timeout
	Resolved           bool
	ResolvedAt         *time.Time
	CreatedAt          time.Time
}
