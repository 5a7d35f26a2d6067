package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/tmcarvalho/gatehouse/internal/handlers"
	"github.com/tmcarvalho/gatehouse/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	authenticator middleware.SessionAuthenticator,
) {
	// Coarse per-IP request cap on the auth surface; the fine-grained
	// per-identifier login limiter runs inside the handlers
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/verify", authHandler.Verify)
	router.Post("/logout", authHandler.Logout)

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(authenticator))

		r.Get("/me", userHandler.Me)
	})
}
