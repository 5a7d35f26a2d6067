package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tmcarvalho/gatehouse/internal/auth"
	"github.com/tmcarvalho/gatehouse/internal/models"
	"github.com/tmcarvalho/gatehouse/internal/ratelimit"
	"github.com/tmcarvalho/gatehouse/internal/services"
	pkghttp "github.com/tmcarvalho/gatehouse/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string, client services.ClientInfo) (*services.LoginResult, error)
	Verify(ctx context.Context, userID, code string, client services.ClientInfo) (*models.Session, error)
	Logout(ctx context.Context, token string, client services.ClientInfo) error
}

// RateLimiterInterface covers the limiter operations the handler drives
type RateLimiterInterface interface {
	Check(ctx context.Context, identifier, action string) (ratelimit.Decision, error)
	Record(ctx context.Context, identifier, action string) error
	Reset(ctx context.Context, identifier, action string) error
}

// AuthHandler handles the login, verify and logout endpoints. The rate
// limiter is driven here rather than inside the service: validation
// failures never touch the limiter, credential and code failures are
// recorded before responding, and the counter is cleared only once the
// full password-plus-code flow succeeds.
type AuthHandler struct {
	service      AuthServiceInterface
	limiter      RateLimiterInterface
	cookieConfig auth.CookieConfig
	logger       *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, limiter RateLimiterInterface, cookieConfig auth.CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:      service,
		limiter:      limiter,
		cookieConfig: cookieConfig,
		logger:       logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// VerifyRequest represents the request body for code verification
type VerifyRequest struct {
	UserID string `json:"userId" validate:"required"`
	Code   string `json:"code" validate:"required"`
}

// LoginResponse is returned when the password step succeeds
type LoginResponse struct {
	Success              bool   `json:"success"`
	UserID               string `json:"userId"`
	RequiresVerification bool   `json:"requiresVerification"`
}

// VerifyResponse is returned when code verification succeeds
type VerifyResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
}

// Login handles the password step: gate on the rate limiter, check
// credentials, and on success issue an emailed verification code.
// No cookie is set at this stage.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	// Validation rejects before the limiter is consulted
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	identifier := pkghttp.ResolveClientIP(r)
	client := services.ClientInfo{
		IPAddress: identifier,
		UserAgent: r.Header.Get("User-Agent"),
	}

	if !h.allow(r.Context(), w, identifier) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password, client)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrValidation):
			pkghttp.WriteBadRequest(w, "Invalid email or password format")
		case errors.Is(err, models.ErrUnauthorized):
			// The failed attempt counts before the response goes out
			h.record(r.Context(), identifier)
			pkghttp.WriteUnauthorized(w, "Invalid credentials")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Success:              true,
		UserID:               result.UserID,
		RequiresVerification: result.RequiresVerification,
	})
}

// Verify handles the code step. On success the limiter entry for this
// client is cleared, a session cookie is set and the login is complete.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	identifier := pkghttp.ResolveClientIP(r)
	client := services.ClientInfo{
		IPAddress: identifier,
		UserAgent: r.Header.Get("User-Agent"),
	}

	if !h.allow(r.Context(), w, identifier) {
		return
	}

	session, err := h.service.Verify(r.Context(), req.UserID, req.Code, client)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrValidation):
			pkghttp.WriteBadRequest(w, "Invalid verification request")
		case errors.Is(err, models.ErrUnauthorized):
			h.record(r.Context(), identifier)
			pkghttp.WriteUnauthorized(w, "Invalid credentials")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	// Full login success forgives prior failed attempts
	if err := h.limiter.Reset(r.Context(), identifier, ratelimit.ActionLogin); err != nil {
		h.logger.Error("failed to reset rate limit", slog.String("identifier", identifier), slog.Any("error", err))
	}

	auth.SetAuthTokenCookie(w, session.Token, session.ExpiresAt, h.cookieConfig)
	pkghttp.WriteJSON(w, http.StatusOK, VerifyResponse{
		Success: true,
		UserID:  session.UserID,
	})
}

// Logout invalidates the session named by the auth_token cookie and
// clears the cookie. A missing or unknown cookie still succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	client := services.ClientInfo{
		IPAddress: pkghttp.ResolveClientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
	}

	token, err := auth.GetAuthTokenCookie(r)
	if err == nil && token != "" {
		if err := h.service.Logout(r.Context(), token, client); err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
	}

	auth.ClearAuthTokenCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

// allow consults the limiter and writes the 429 response itself when the
// client is blocked. Limiter errors fail open with a log line; a broken
// limiter backend should not take logins down with it.
func (h *AuthHandler) allow(ctx context.Context, w http.ResponseWriter, identifier string) bool {
	decision, err := h.limiter.Check(ctx, identifier, ratelimit.ActionLogin)
	if err != nil {
		h.logger.Error("rate limit check failed", slog.String("identifier", identifier), slog.Any("error", err))
		return true
	}
	if !decision.Allowed {
		minutes := decision.BlockedMinutes
		unit := "minutes"
		if minutes == 1 {
			unit = "minute"
		}
		pkghttp.WriteRateLimited(w, fmt.Sprintf("Too many attempts. Try again in %d %s.", minutes, unit))
		return false
	}
	return true
}

func (h *AuthHandler) record(ctx context.Context, identifier string) {
	if err := h.limiter.Record(ctx, identifier, ratelimit.ActionLogin); err != nil {
		h.logger.Error("failed to record rate limit attempt", slog.String("identifier", identifier), slog.Any("error", err))
	}
}
