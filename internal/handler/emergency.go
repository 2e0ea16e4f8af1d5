package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/pulselink/emergency-alert-backend/internal/model"
	"github.com/pulselink/emergency-alert-backend/internal/queue"
	"github.com/pulselink/emergency-alert-backend/internal/repository"
)

// EmergencyHandler ingests emergency reports from the watch client and
// exposes the event read/resolve operations. Ingestion is deliberately
// thin: persist the append-only request row, publish the trigger event
// and return 202; all real work happens in the queue consumer.
type EmergencyHandler struct {
	Users       *repository.UserRepo
	Emergencies *repository.EmergencyRepo
	Publisher   *queue.Publisher
	Logger      *zap.Logger
}

func NewEmergencyHandler(users *repository.UserRepo, emergencies *repository.EmergencyRepo, publisher *queue.Publisher, logger *zap.Logger) *EmergencyHandler {
	return &EmergencyHandler{Users: users, Emergencies: emergencies, Publisher: publisher, Logger: logger}
}

type reportReq struct {
	EmergencyEventID string          `json:"emergency_event_id"`
	HeartRate        int             `json:"heart_rate"`
	Severity         string          `json:"severity"`
	Timestamp        time.Time       `json:"timestamp"`
	Location         *model.Location `json:"location"`
	ShareLocation    bool            `json:"share_location"`
}

// Report ingests one emergency request. The client supplies the event
// id so an on-device retry of the same detection cannot produce two
// events; a missing id gets a server-generated UUID.
func (h *EmergencyHandler) Report(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "missing identity"})
	}
	var req reportReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "invalid body"})
	}
	if req.HeartRate <= 0 || req.HeartRate > 400 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "heart_rate out of range"})
	}
	sev := model.Severity(req.Severity)
	if !sev.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "severity must be critical, high or moderate"})
	}
	if req.EmergencyEventID == "" {
		req.EmergencyEventID = uuid.NewString()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not-found", "message": "unknown account"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "lookup failed"})
	}

	record := model.EmergencyRequest{
		EmergencyEventID: req.EmergencyEventID,
		UserID:           uid,
		UserFirstName:    u.FirstName,
		HeartRate:        req.HeartRate,
		Severity:         sev,
		Timestamp:        req.Timestamp,
		Location:         req.Location,
		ShareLocation:    req.ShareLocation,
	}
	if err := h.Emergencies.CreateRequest(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateEvent) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "conflict", "message": "emergency event already reported"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "persist request failed"})
	}

	ev := queue.EmergencyRequestCreated{EmergencyEventID: record.EmergencyEventID, UserID: uid}
	if err := h.Publisher.Publish(ctx, queue.EmergencyRequestQueue, ev); err != nil {
		// The row exists but no consumer will ever see it; mark it
		// failed now so the terminal-marking invariant holds.
		if markErr := h.Emergencies.MarkRequestProcessed(ctx, record.EmergencyEventID, false, nil, "enqueue failed: "+err.Error()); markErr != nil {
			h.Logger.Error("failed to mark unqueued emergency request",
				zap.String("emergency_event_id", record.EmergencyEventID),
				zap.Error(markErr),
			)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "enqueue failed"})
	}

	return c.JSON(http.StatusAccepted, echo.Map{
		"emergency_event_id": record.EmergencyEventID,
		"status":             "accepted",
	})
}

// Get returns the caller's emergency event, including the per-contact
// notification status the client shows as delivery confirmation.
func (h *EmergencyHandler) Get(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "missing identity"})
	}
	eventID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ev, err := h.Emergencies.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not-found", "message": "unknown emergency event"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "lookup failed"})
	}
	if ev.UserID != uid {
		// Events are visible to their reporter only.
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not-found", "message": "unknown emergency event"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"emergency_event_id":  ev.EmergencyEventID,
		"heart_rate":          ev.HeartRate,
		"severity":            ev.Severity,
		"timestamp":           ev.Timestamp,
		"contacts_notified":   ev.ContactsNotified,
		"notification_status": ev.NotificationStatus,
		"resolved":            ev.Resolved,
		"resolved_at":         ev.ResolvedAt,
	})
}

// Resolve marks the caller's emergency event as resolved ("I'm OK").
func (h *EmergencyHandler) Resolve(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "missing identity"})
	}
	eventID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Emergencies.ResolveEvent(ctx, eventID, uid); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not-found", "message": "unknown emergency event"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "resolve failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
