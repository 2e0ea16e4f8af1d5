package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/pulselink/emergency-alert-backend/internal/model"
	"github.com/pulselink/emergency-alert-backend/internal/queue"
	"github.com/pulselink/emergency-alert-backend/internal/repository"
	"github.com/pulselink/emergency-alert-backend/internal/service"
	"github.com/pulselink/emergency-alert-backend/internal/utils"
)

// LinkHandler exposes the contact-linking protocol: issuing invitation
// codes, consuming them, and managing the resulting contact list.
type LinkHandler struct {
	Users       *repository.UserRepo
	Invitations *repository.InvitationRepo
	Contacts    *repository.ContactRepo
	Linker      *service.ContactLinker
	Publisher   *queue.Publisher
	Logger      *zap.Logger
}

func NewLinkHandler(users *repository.UserRepo, invitations *repository.InvitationRepo, contacts *repository.ContactRepo, linker *service.ContactLinker, publisher *queue.Publisher, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{Users: users, Invitations: invitations, Contacts: contacts, Linker: linker, Publisher: publisher, Logger: logger}
}

// ----- DTOs -----

type linkContactsReq struct {
	InvitationCode   string `json:"invitation_code"`
	ContactFirstName string `json:"contact_first_name"`
	ContactPushToken string `json:"contact_push_token"`
}

type tokenUpdateReq struct {
	PushToken string `json:"push_token"`
}

type consentReq struct {
	ShareMyLocation bool `json:"share_my_location"`
}

type contactPart struct {
	ContactUserID           string    `json:"contact_user_id"`
	ContactFirstName        string    `json:"contact_first_name"`
	LinkedAt                time.Time `json:"linked_at"`
	ShareLocationWithMe     bool      `json:"share_location_with_me"`
	ShareMyLocationWithThem bool      `json:"share_my_location_with_them"`
}

// CreateInvitation issues a new invitation code for the caller. The
// code is generated server-side from crypto/rand, the link-request row
// is appended, and the trigger event is published; the invitation
// itself materializes when the consumer handles the event. The expiry
// echoed back is authoritative: the store computes the same fixed TTL.
func (h *LinkHandler) CreateInvitation(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "missing identity"})
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
	if u.FirstName == "" {
		return c.JSON(http.StatusPreconditionFailed, echo.Map{"error": "failed-precondition", "message": "set your first name before inviting contacts"})
	}

	code, err := utils.NewInvitationCode()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "code generation failed"})
	}

	now := time.Now().UTC()
	req := model.LinkRequest{
		InviterUserID:    uid,
		InviterFirstName: u.FirstName,
		InvitationCode:   code,
		Timestamp:        now,
	}
	id, err := h.Invitations.CreateRequest(ctx, req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "persist request failed"})
	}

	ev := queue.LinkRequestCreated{
		ID:               id,
		InviterUserID:    uid,
		InviterFirstName: u.FirstName,
		InvitationCode:   code,
		Timestamp:        now,
	}
	if err := h.Publisher.Publish(ctx, queue.LinkRequestQueue, ev); err != nil {
		if markErr := h.Invitations.MarkRequestProcessed(ctx, id, false, "enqueue failed: "+err.Error()); markErr != nil {
			h.Logger.Error("failed to mark unqueued link request",
				zap.Uint64("link_request_id", id),
				zap.Error(markErr),
			)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "enqueue failed"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"invitation_code": code,
		"expires_at":      now.Add(model.InvitationTTL),
	})
}

// LinkContacts is the callable linking operation: the invited party
// presents a code plus their own name and push token and, on success,
// both accounts hold each other as linked contacts.
func (h *LinkHandler) LinkContacts(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "missing identity"})
	}
	var req linkContactsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "invalid body"})
	}
	req.InvitationCode = strings.TrimSpace(req.InvitationCode)
	req.ContactFirstName = strings.TrimSpace(req.ContactFirstName)
	if req.InvitationCode == "" || req.ContactFirstName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "invitation_code and contact_first_name required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	inviterName, err := h.Linker.Link(ctx, req.InvitationCode, uid, req.ContactFirstName, req.ContactPushToken)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvitationNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not-found", "message": "invitation code not found"})
		case errors.Is(err, repository.ErrInvitationExpiredOrUsed):
			return c.JSON(http.StatusPreconditionFailed, echo.Map{"error": "failed-precondition", "message": err.Error()})
		case errors.Is(err, service.ErrSelfLink), errors.Is(err, service.ErrAlreadyLinked):
			return c.JSON(http.StatusPreconditionFailed, echo.Map{"error": "failed-precondition", "message": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "linking failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"linked_with": inviterName,
		"message":     fmt.Sprintf("You are now linked with %s", inviterName),
	})
}

// ListContacts returns the caller's linked contacts. Push tokens are
// not echoed back: they address devices and have no business on the
// client of a different user.
func (h *LinkHandler) ListContacts(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "missing identity"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	contacts, err := h.Contacts.ListByUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "list failed"})
	}
	out := make([]contactPart, 0, len(contacts))
	for _, ct := range contacts {
		out = append(out, contactPart{
			ContactUserID:           ct.ContactUserID,
			ContactFirstName:        ct.ContactFirstName,
			LinkedAt:                ct.LinkedAt,
			ShareLocationWithMe:     ct.ShareLocationWithMe,
			ShareMyLocationWithThem: ct.ShareMyLocationWithThem,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"contacts": out})
}

// UpdateToken registers the caller's current push token and propagates
// it to every contact entry that addresses the caller.
func (h *LinkHandler) UpdateToken(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "missing identity"})
	}
	var req tokenUpdateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "invalid body"})
	}
	if req.PushToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "push_token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.UpdatePushToken(ctx, uid, req.PushToken); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not-found", "message": "unknown account"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "update failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// UpdateConsent sets whether the caller shares their location with one
// specific contact during an emergency. The mirrored flag on the
// contact's side is updated in the same transaction.
func (h *LinkHandler) UpdateConsent(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "missing identity"})
	}
	contactID := c.Param("contactId")
	var req consentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Contacts.UpdateConsent(ctx, uid, contactID, req.ShareMyLocation); err != nil {
		if errors.Is(err, repository.ErrContactNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not-found", "message": "unknown contact"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "update failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
