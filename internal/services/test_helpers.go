package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/tmcarvalho/gatehouse/internal/clock"
	"github.com/tmcarvalho/gatehouse/internal/models"
	"github.com/tmcarvalho/gatehouse/internal/sessions"
	pkglogger "github.com/tmcarvalho/gatehouse/pkg/logger"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	GetByIDFunc    func(ctx context.Context, id string) (*models.User, error)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

// MockEmailSender implements EmailSender for testing
type MockEmailSender struct {
	SendVerificationCodeFunc func(ctx context.Context, email, code string, expiresAt time.Time) error

	// Sent records every successful call for assertions
	Sent []SentCode
}

// SentCode captures one SendVerificationCode call
type SentCode struct {
	Email string
	Code  string
}

func (m *MockEmailSender) SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	if m.SendVerificationCodeFunc != nil {
		if err := m.SendVerificationCodeFunc(ctx, email, code, expiresAt); err != nil {
			return err
		}
	}
	m.Sent = append(m.Sent, SentCode{Email: email, Code: code})
	return nil
}

// testLogger returns a logger that discards output
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// authServiceFixture bundles an AuthService with its collaborators so
// tests can drive the flow end to end and inspect stores directly.
type authServiceFixture struct {
	service  *AuthService
	users    *MockUserRepository
	pending  *MemoryPendingLoginStore
	sessions *sessions.MemoryStore
	email    *MockEmailSender
	clock    *clock.Fake
}

func newAuthServiceFixture(users *MockUserRepository) *authServiceFixture {
	fixture := &authServiceFixture{
		users:    users,
		pending:  NewMemoryPendingLoginStore(),
		sessions: sessions.NewMemoryStore(),
		email:    &MockEmailSender{},
		clock:    clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	log := testLogger()
	fixture.service = NewAuthService(
		fixture.users,
		fixture.pending,
		fixture.sessions,
		fixture.email,
		fixture.clock,
		nil, // no timing delay in tests
		log,
		pkglogger.NewAuditLogger(log),
		DefaultAuthConfig(),
	)
	return fixture
}
