package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/pulselink/emergency-alert-backend/internal/config"
	"github.com/pulselink/emergency-alert-backend/internal/handler"    // import the handlers that implement business logic
	"github.com/pulselink/emergency-alert-backend/internal/middleware" // import middleware for JWT authentication and rate limiting
)

// Register wires every route of the service onto the provided Echo
// instance. Unauthenticated surface: the health check and anonymous
// sign-in. Everything else lives under /v1 behind JWT auth, with the
// Redis token bucket applied across the whole group.
func Register(e *echo.Echo, cfg config.Config, rdb *redis.Client, auth *handler.AuthHandler, emergencies *handler.EmergencyHandler, links *handler.LinkHandler) {
	// Health check for load balancers and monitoring.
	e.GET("/healthz", handler.Health)

	rl := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	// Anonymous sign-in does not require an existing token; it is
	// still rate limited to blunt brute-force guessing of account
	// ids and device secrets.
	e.POST("/v1/auth/anonymous", auth.Anonymous, rl)

	// All remaining endpoints require a valid access token.
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(cfg.JWTSecret))
	g.Use(rl)

	g.POST("/profile", auth.UpdateProfile)

	// Emergency reporting and follow-up.
	g.POST("/emergencies", emergencies.Report)
	g.GET("/emergencies/:id", emergencies.Get)
	g.POST("/emergencies/:id/resolve", emergencies.Resolve)

	// Contact linking protocol.
	g.POST("/link/invitations", links.CreateInvitation)
	g.POST("/link/contacts", links.LinkContacts)
	g.GET("/contacts", links.ListContacts)
	g.PUT("/contacts/:contactId/consent", links.UpdateConsent)
	g.PUT("/devices/token", links.UpdateToken)
}
