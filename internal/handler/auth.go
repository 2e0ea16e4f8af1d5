package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pulselink/emergency-alert-backend/internal/config"
	"github.com/pulselink/emergency-alert-backend/internal/repository"
	"github.com/pulselink/emergency-alert-backend/internal/utils"
)

// AuthHandler bundles dependencies for the anonymous-identity
// endpoints. There are no emails or passwords: a device generates a
// secret once, signs in anonymously, and re-authenticates the same
// account by presenting the secret again.
type AuthHandler struct {
	Cfg   config.Config
	Users *repository.UserRepo
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u}
}

// ----- DTOs -----

type anonymousReq struct {
	UserID       string `json:"user_id"` // empty on first sign-in
	FirstName    string `json:"first_name"`
	DeviceSecret string `json:"device_secret"`
}

type profileReq struct {
	FirstName string `json:"first_name"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
}
type authResp struct {
	User   userPart  `json:"user"`
	Access tokenPart `json:"access"`
}

// Anonymous signs a device in. Without a user_id it creates a fresh
// account; with one it verifies the device secret against the stored
// hash and reissues a token for the existing account. Either way the
// response carries the account and a signed access token.
func (h *AuthHandler) Anonymous(c echo.Context) error {
	var req anonymousReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "invalid body"})
	}
	if req.DeviceSecret == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "device_secret required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if req.UserID == "" {
		return h.signUp(c, ctx, req)
	}
	return h.signIn(c, ctx, req)
}

func (h *AuthHandler) signUp(c echo.Context, ctx context.Context, req anonymousReq) error {
	hash, err := utils.HashDeviceSecret(req.DeviceSecret, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "hash secret failed"})
	}
	uid, err := h.Users.CreateAnonymous(ctx, req.FirstName, hash)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "create user failed"})
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, uid, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "issue token failed"})
	}
	return c.JSON(http.StatusCreated, authResp{
		User:   userPart{ID: uid, FirstName: strings.TrimSpace(req.FirstName)},
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

func (h *AuthHandler) signIn(c echo.Context, ctx context.Context, req anonymousReq) error {
	u, err := h.Users.GetByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "unknown account"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "lookup failed"})
	}
	if !utils.VerifyDeviceSecret(u.DeviceSecretHash, req.DeviceSecret) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "invalid device secret"})
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "issue token failed"})
	}
	return c.JSON(http.StatusOK, authResp{
		User:   userPart{ID: u.ID, FirstName: u.FirstName},
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// UpdateProfile sets the caller's first name. Alerts and invitations
// embed this server-side copy, so the client keeps it in sync with the
// name the patient chose in settings.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "missing identity"})
	}
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "invalid body"})
	}
	if strings.TrimSpace(req.FirstName) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "first_name required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.UpdateFirstName(ctx, uid, req.FirstName); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not-found", "message": "unknown account"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "update failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
