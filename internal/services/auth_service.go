package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tmcarvalho/gatehouse/internal/auth"
	"github.com/tmcarvalho/gatehouse/internal/clock"
	"github.com/tmcarvalho/gatehouse/internal/models"
	"github.com/tmcarvalho/gatehouse/internal/sessions"
	pkgauth "github.com/tmcarvalho/gatehouse/pkg/auth"
	pkglogger "github.com/tmcarvalho/gatehouse/pkg/logger"
)

// UserRepository defines the user lookup operations the auth service needs
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// AuthConfig holds the tunable parameters of the login flow
type AuthConfig struct {
	CodeTTL      time.Duration // how long a verification code stays valid
	CodeAttempts int           // wrong-code guesses allowed per pending login
	SessionTTL   time.Duration
	EmailTimeout time.Duration // upper bound on the SES call
}

// DefaultAuthConfig returns the production defaults
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		CodeTTL:      10 * time.Minute,
		CodeAttempts: 5,
		SessionTTL:   24 * time.Hour,
		EmailTimeout: 10 * time.Second,
	}
}

// AuthService implements the two-step login flow: password check, then
// verification of an emailed one-time code, then session issuance.
//
// All credential failures (unknown email, wrong password, bad or expired
// code) surface as models.ErrUnauthorized so responses stay uniform and
// leak nothing about which step failed. The distinction lives only in
// logs and audit events.
type AuthService struct {
	users       UserRepository
	pending     PendingLoginStore
	sessions    sessions.Store
	email       EmailSender
	clock       clock.Clock
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	config      AuthConfig
}

// NewAuthService creates a new AuthService. timing may be nil to disable
// response-time normalization (tests do this to stay fast).
func NewAuthService(
	users UserRepository,
	pending PendingLoginStore,
	sessionStore sessions.Store,
	email EmailSender,
	clk clock.Clock,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	config AuthConfig,
) *AuthService {
	return &AuthService{
		users:       users,
		pending:     pending,
		sessions:    sessionStore,
		email:       email,
		clock:       clk,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
		config:      config,
	}
}

// LoginResult is returned when the password step succeeds and a code has
// been issued. No session exists yet.
type LoginResult struct {
	UserID               string `json:"userId"`
	RequiresVerification bool   `json:"requiresVerification"`
}

// ClientInfo carries request metadata into audit events
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// Login checks the password and, on success, issues a fresh verification
// code and emails it to the user. A prior pending login for the same user
// is superseded. The caller decides whether to count a failure against
// the rate limiter; ErrUnauthorized is the signal for that.
func (s *AuthService) Login(ctx context.Context, email, password string, client ClientInfo) (*LoginResult, error) {
	start := time.Now()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.ErrValidation
	}
	if len(password) > pkgauth.MaxPasswordLen {
		return nil, models.ErrValidation
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("login failed: invalid credentials")
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				IPAddress:     client.IPAddress,
				UserAgent:     client.UserAgent,
				Device:        auth.DeviceSummary(client.UserAgent),
				FailureReason: "invalid_credentials",
				Success:       false,
			})
			s.waitFrom(start, false)
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.Status != "active" {
		// Same outward failure as bad credentials; the reason is audit-only
		s.logger.Info("login blocked due to account state",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status))
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     client.IPAddress,
			UserAgent:     client.UserAgent,
			Device:        auth.DeviceSummary(client.UserAgent),
			FailureReason: "account_disabled",
			Success:       false,
		})
		s.waitFrom(start, false)
		return nil, models.ErrUnauthorized
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.logger.Info("login failed: invalid credentials")
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     client.IPAddress,
			UserAgent:     client.UserAgent,
			Device:        auth.DeviceSummary(client.UserAgent),
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		s.waitFrom(start, false)
		return nil, models.ErrUnauthorized
	}

	code, err := pkgauth.GenerateVerificationCode()
	if err != nil {
		s.logger.Error("failed to generate verification code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.clock.Now()
	pending := &models.PendingLogin{
		UserID:            user.ID,
		Email:             user.Email,
		Code:              code,
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.config.CodeTTL),
		AttemptsRemaining: s.config.CodeAttempts,
	}
	if err := s.pending.Upsert(ctx, pending); err != nil {
		s.logger.Error("failed to store pending login", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// The pending login survives a failed send; the client may retry the
	// whole login, which supersedes it with a fresh code anyway.
	emailCtx, cancel := context.WithTimeout(ctx, s.config.EmailTimeout)
	defer cancel()
	if err := s.email.SendVerificationCode(emailCtx, user.Email, code, pending.ExpiresAt); err != nil {
		s.logger.Error("failed to send verification code",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("password verified, code issued", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "password_verified",
		UserID:    user.ID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Device:    auth.DeviceSummary(client.UserAgent),
		Success:   true,
	})
	s.waitFrom(start, true)

	return &LoginResult{UserID: user.ID, RequiresVerification: true}, nil
}

// Verify checks the emailed code for a pending login and, on a match,
// consumes the pending login and issues a session. A wrong guess burns
// one attempt; running out of attempts or expiry invalidates the pending
// login entirely.
func (s *AuthService) Verify(ctx context.Context, userID, code string, client ClientInfo) (*models.Session, error) {
	start := time.Now()

	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" || code == "" {
		return nil, models.ErrValidation
	}

	pending, err := s.pending.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("verify failed: no pending login", slog.String("user_id", userID))
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "verify_failed",
				UserID:        userID,
				IPAddress:     client.IPAddress,
				UserAgent:     client.UserAgent,
				FailureReason: "no_pending_login",
				Success:       false,
			})
			s.waitFrom(start, false)
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get pending login", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.clock.Now()
	if pending.IsExpired(now) {
		if err := s.pending.Delete(ctx, userID); err != nil {
			s.logger.Error("failed to delete expired pending login", slog.String("user_id", userID), slog.Any("error", err))
		}
		s.logger.Info("verify failed: code expired", slog.String("user_id", userID))
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "verify_failed",
			UserID:        userID,
			IPAddress:     client.IPAddress,
			UserAgent:     client.UserAgent,
			FailureReason: "code_expired",
			Success:       false,
		})
		s.waitFrom(start, false)
		return nil, models.ErrUnauthorized
	}

	if subtle.ConstantTimeCompare([]byte(pending.Code), []byte(code)) != 1 {
		pending.AttemptsRemaining--
		reason := "invalid_code"
		if pending.AttemptsRemaining <= 0 {
			if err := s.pending.Delete(ctx, userID); err != nil {
				s.logger.Error("failed to delete exhausted pending login", slog.String("user_id", userID), slog.Any("error", err))
			}
			reason = "attempts_exhausted"
		} else if err := s.pending.Upsert(ctx, pending); err != nil {
			s.logger.Error("failed to update pending login attempts", slog.String("user_id", userID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.logger.Info("verify failed", slog.String("user_id", userID), slog.String("reason", reason))
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "verify_failed",
			UserID:        userID,
			IPAddress:     client.IPAddress,
			UserAgent:     client.UserAgent,
			FailureReason: reason,
			Success:       false,
		})
		s.waitFrom(start, false)
		return nil, models.ErrUnauthorized
	}

	// Code matched; the pending login is consumed before the session exists
	// so the same code can never be redeemed twice.
	if err := s.pending.Delete(ctx, userID); err != nil {
		s.logger.Error("failed to consume pending login", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	token, err := pkgauth.GenerateSessionToken()
	if err != nil {
		s.logger.Error("failed to generate session token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	session := &models.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		s.logger.Error("failed to create session", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", userID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    userID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Device:    auth.DeviceSummary(client.UserAgent),
		Success:   true,
	})
	s.waitFrom(start, true)

	return session, nil
}

// Logout deletes the session for the given token. Unknown or already
// deleted tokens are not an error; logout is idempotent.
func (s *AuthService) Logout(ctx context.Context, token string, client ClientInfo) error {
	if token = strings.TrimSpace(token); token == "" {
		return nil
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to look up session for logout", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.sessions.Delete(ctx, token); err != nil {
		s.logger.Error("failed to delete session", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if session != nil {
		s.logger.Info("user logged out", slog.String("user_id", session.UserID))
		s.auditLogger.LogSessionEvent("logout", session.UserID, client.IPAddress)
	}
	return nil
}

// Authenticate resolves a session token to its user, rejecting expired
// sessions. Used by middleware guarding authenticated routes.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, *models.Session, error) {
	if token = strings.TrimSpace(token); token == "" {
		return nil, nil, models.ErrUnauthorized
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to look up session", slog.Any("error", err))
		return nil, nil, models.ErrInternalServer
	}

	if session.IsExpired(s.clock.Now()) {
		if err := s.sessions.Delete(ctx, token); err != nil {
			s.logger.Error("failed to delete expired session", slog.Any("error", err))
		}
		return nil, nil, models.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for session", slog.String("user_id", session.UserID), slog.Any("error", err))
		return nil, nil, models.ErrInternalServer
	}

	if user.Status != "active" {
		return nil, nil, models.ErrUnauthorized
	}
	return user, session, nil
}

func (s *AuthService) waitFrom(start time.Time, success bool) {
	if s.timing != nil {
		s.timing.WaitFrom(start, success)
	}
}
