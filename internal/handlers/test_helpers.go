package handlers

import (
	"context"
	"io"
	"log/slog"

	"github.com/tmcarvalho/gatehouse/internal/auth"
	"github.com/tmcarvalho/gatehouse/internal/models"
	"github.com/tmcarvalho/gatehouse/internal/ratelimit"
	"github.com/tmcarvalho/gatehouse/internal/services"
)

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc  func(ctx context.Context, email, password string, client services.ClientInfo) (*services.LoginResult, error)
	VerifyFunc func(ctx context.Context, userID, code string, client services.ClientInfo) (*models.Session, error)
	LogoutFunc func(ctx context.Context, token string, client services.ClientInfo) error
}

func (m *MockAuthService) Login(ctx context.Context, email, password string, client services.ClientInfo) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password, client)
	}
	return nil, models.ErrUnauthorized
}

func (m *MockAuthService) Verify(ctx context.Context, userID, code string, client services.ClientInfo) (*models.Session, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, userID, code, client)
	}
	return nil, models.ErrUnauthorized
}

func (m *MockAuthService) Logout(ctx context.Context, token string, client services.ClientInfo) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token, client)
	}
	return nil
}

// MockRateLimiter implements RateLimiterInterface and records the calls
// made against it so tests can assert limiter interaction.
type MockRateLimiter struct {
	CheckFunc func(ctx context.Context, identifier, action string) (ratelimit.Decision, error)

	Recorded []string // identifiers passed to Record
	Resets   []string // identifiers passed to Reset
}

func (m *MockRateLimiter) Check(ctx context.Context, identifier, action string) (ratelimit.Decision, error) {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, identifier, action)
	}
	return ratelimit.Decision{Allowed: true, Remaining: 5}, nil
}

func (m *MockRateLimiter) Record(_ context.Context, identifier, _ string) error {
	m.Recorded = append(m.Recorded, identifier)
	return nil
}

func (m *MockRateLimiter) Reset(_ context.Context, identifier, _ string) error {
	m.Resets = append(m.Resets, identifier)
	return nil
}

func newTestAuthHandler(service *MockAuthService, limiter *MockRateLimiter) *AuthHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthHandler(service, limiter, auth.CookieConfig{}, logger)
}
