package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pulselink/emergency-alert-backend/internal/model"
)

// EmergencyRepo provides data access to the `emergency_requests` and
// `emergency_events` tables. Requests are append-only trigger records
// with a tri-state processed column (NULL = pending); events are the
// derived per-alert records whose only mutable field is the resolved
// flag. Per-contact outcome maps are stored as JSON text columns.
type EmergencyRepo struct {
	db *sql.DB
}

// NewEmergencyRepo returns a new EmergencyRepo bound to the provided database.
func NewEmergencyRepo(db *sql.DB) *EmergencyRepo { return &EmergencyRepo{db: db} }

// CreateRequest appends an emergency request row with processed = NULL.
// Returns ErrDuplicateEvent when the event id was already ingested.
func (r *EmergencyRepo) CreateRequest(ctx context.Context, req model.EmergencyRequest) error {
	var lat, lng interface{}
	if req.Location != nil {
		lat, lng = req.Location.Latitude, req.Location.Longitude
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO emergency_requests
		 (emergency_event_id, user_id, user_first_name, heart_rate, severity, ts, latitude, longitude, share_location)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.EmergencyEventID, req.UserID, req.UserFirstName, req.HeartRate, string(req.Severity),
		req.Timestamp.UTC().Format("2006-01-02 15:04:05"), lat, lng, req.ShareLocation)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}

// GetRequest fetches one emergency request by event id. Returns
// ErrEventNotFound when no row matches.
func (r *EmergencyRepo) GetRequest(ctx context.Context, eventID string) (model.EmergencyRequest, error) {
	const q = `SELECT emergency_event_id, user_id, user_first_name, heart_rate, severity, ts,
	                  latitude, longitude, share_location, processed, processed_at, results, error
	           FROM emergency_requests WHERE emergency_event_id = ? LIMIT 1`
	var (
		req        model.EmergencyRequest
		sev        string
		lat, lng   sql.NullFloat64
		processed  sql.NullBool
		procAt     sql.NullTime
		resultsRaw sql.NullString
		errMsg     sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, eventID).Scan(
		&req.EmergencyEventID, &req.UserID, &req.UserFirstName, &req.HeartRate, &sev, &req.Timestamp,
		&lat, &lng, &req.ShareLocation, &processed, &procAt, &resultsRaw, &errMsg)
	if err == sql.ErrNoRows {
		return model.EmergencyRequest{}, ErrEventNotFound
	}
	if err != nil {
		return model.EmergencyRequest{}, err
	}
	req.Severity = model.Severity(sev)
	if lat.Valid && lng.Valid {
		req.Location = &model.Location{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	if processed.Valid {
		p := processed.Bool
		req.Processed = &p
	}
	if procAt.Valid {
		t := procAt.Time
		req.ProcessedAt = &t
	}
	if resultsRaw.Valid && resultsRaw.String != "" {
		if err := json.Unmarshal([]byte(resultsRaw.String), &req.Results); err != nil {
			return model.EmergencyRequest{}, err
		}
	}
	if errMsg.Valid {
		req.Error = errMsg.String
	}
	return req, nil
}

// MarkRequestProcessed terminally marks an emergency request. On
// success the per-contact results map is stored as JSON and processed
// becomes true; on failure processed becomes false and the captured
// error message is stored. This write must happen exactly once for
// every request, on every processing path.
func (r *EmergencyRepo) MarkRequestProcessed(ctx context.Context, eventID string, ok bool, results map[string]string, errMsg string) error {
	var resultsJSON interface{}
	if results != nil {
		b, err := json.Marshal(results)
		if err != nil {
			return err
		}
		resultsJSON = string(b)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE emergency_requests
		 SET processed = ?, processed_at = UTC_TIMESTAMP(), results = ?, error = ?
		 WHERE emergency_event_id = ?`,
		ok, resultsJSON, errMsg, eventID)
	return err
}

// CreateEvent persists the derived emergency event in a single write.
// ContactsNotified must contain every contact id attempted, not just
// the successful ones.
func (r *EmergencyRepo) CreateEvent(ctx context.Context, ev model.EmergencyEvent) error {
	notified, err := json.Marshal(ev.ContactsNotified)
	if err != nil {
		return err
	}
	status, err := json.Marshal(ev.NotificationStatus)
	if err != nil {
		return err
	}
	var lat, lng interface{}
	if ev.Location != nil {
		lat, lng = ev.Location.Latitude, ev.Location.Longitude
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO emergency_events
		 (emergency_event_id, user_id, user_first_name, heart_rate, severity, ts,
		  latitude, longitude, share_location, contacts_notified, notification_status, resolved)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE)`,
		ev.EmergencyEventID, ev.UserID, ev.UserFirstName, ev.HeartRate, string(ev.Severity),
		ev.Timestamp.UTC().Format("2006-01-02 15:04:05"), lat, lng, ev.ShareLocation,
		string(notified), string(status))
	return err
}

// GetEvent fetches one emergency event by id. Returns ErrEventNotFound
// when no row matches.
func (r *EmergencyRepo) GetEvent(ctx context.Context, eventID string) (model.EmergencyEvent, error) {
	const q = `SELECT emergency_event_id, user_id, user_first_name, heart_rate, severity, ts,
	                  latitude, longitude, share_location, contacts_notified, notification_status,
	                  resolved, resolved_at, created_at
	           FROM emergency_events WHERE emergency_event_id = ? LIMIT 1`
	var (
		ev          model.EmergencyEvent
		sev         string
		lat, lng    sql.NullFloat64
		notifiedRaw string
		statusRaw   string
		resolvedAt  sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, eventID).Scan(
		&ev.EmergencyEventID, &ev.UserID, &ev.UserFirstName, &ev.HeartRate, &sev, &ev.Timestamp,
		&lat, &lng, &ev.ShareLocation, &notifiedRaw, &statusRaw, &ev.Resolved, &resolvedAt, &ev.CreatedAt)
	if err == sql.ErrNoRows {
		return model.EmergencyEvent{}, ErrEventNotFound
	}
	if err != nil {
		return model.EmergencyEvent{}, err
	}
	ev.Severity = model.Severity(sev)
	if lat.Valid && lng.Valid {
		ev.Location = &model.Location{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	if err := json.Unmarshal([]byte(notifiedRaw), &ev.ContactsNotified); err != nil {
		return model.EmergencyEvent{}, err
	}
	if err := json.Unmarshal([]byte(statusRaw), &ev.NotificationStatus); err != nil {
		return model.EmergencyEvent{}, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		ev.ResolvedAt = &t
	}
	return ev, nil
}

// ResolveEvent flips the resolved flag on the caller's own event.
// Returns ErrEventNotFound when the event does not exist or belongs to
// a different user; resolving an already-resolved event is a no-op
// that still succeeds.
func (r *EmergencyRepo) ResolveEvent(ctx context.Context, eventID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE emergency_events SET resolved = TRUE, resolved_at = UTC_TIMESTAMP()
		 WHERE emergency_event_id = ? AND user_id = ? AND resolved = FALSE`,
		eventID, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Either unknown/foreign id or already resolved; distinguish.
		var one int
		err := r.db.QueryRowContext(ctx,
			`SELECT 1 FROM emergency_events WHERE emergency_event_id = ? AND user_id = ? LIMIT 1`,
			eventID, userID).Scan(&one)
		if err == sql.ErrNoRows {
			return ErrEventNotFound
		}
		return err
	}
	return nil
}

// DeleteProcessedRequestsBefore removes emergency requests older than
// the cutoff that were processed successfully. Requests with
// processed = FALSE or still pending are retained on purpose: they
// record a prior failure and must stay visible for diagnosis.
func (r *EmergencyRepo) DeleteProcessedRequestsBefore(ctx context.Context, cutoffDays int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM emergency_requests
		 WHERE processed = TRUE AND ts < UTC_TIMESTAMP() - INTERVAL ? DAY`,
		cutoffDays)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
