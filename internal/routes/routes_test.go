package routes

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmcarvalho/gatehouse/internal/auth"
	"github.com/tmcarvalho/gatehouse/internal/clock"
	"github.com/tmcarvalho/gatehouse/internal/handlers"
	"github.com/tmcarvalho/gatehouse/internal/models"
	"github.com/tmcarvalho/gatehouse/internal/ratelimit"
	"github.com/tmcarvalho/gatehouse/internal/services"
	"github.com/tmcarvalho/gatehouse/internal/sessions"
	pkgauth "github.com/tmcarvalho/gatehouse/pkg/auth"
	pkglogger "github.com/tmcarvalho/gatehouse/pkg/logger"
)

// loginFlow wires the real limiter, stores and auth service behind the
// router so the whole password-code-session protocol runs in process.
type loginFlow struct {
	router  chi.Router
	limiter *ratelimit.Limiter
	email   *services.MockEmailSender
	clock   *clock.Fake
	user    *models.User
}

const flowPassword = "correct-horse-battery"

func newLoginFlow(t *testing.T) *loginFlow {
	t.Helper()

	hash, err := pkgauth.HashPassword(flowPassword)
	require.NoError(t, err)
	user := &models.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Name:         "Alice",
		Role:         "user",
		Status:       "active",
		CreatedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	users := &services.MockUserRepository{
		GetByEmailFunc: func(_ context.Context, email string) (*models.User, error) {
			if email == user.Email {
				copied := *user
				return &copied, nil
			}
			return nil, models.ErrNotFound
		},
		GetByIDFunc: func(_ context.Context, id string) (*models.User, error) {
			if id == user.ID {
				copied := *user
				return &copied, nil
			}
			return nil, models.ErrNotFound
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	email := &services.MockEmailSender{}

	authService := services.NewAuthService(
		users,
		services.NewMemoryPendingLoginStore(),
		sessions.NewMemoryStore(),
		email,
		clk,
		nil,
		logger,
		pkglogger.NewAuditLogger(logger),
		services.DefaultAuthConfig(),
	)

	limiter, err := ratelimit.NewLimiter(
		ratelimit.NewMemoryStore(),
		ratelimit.Presets{ratelimit.ActionLogin: {MaxAttempts: 5, Window: 15 * time.Minute}},
		clk,
	)
	require.NoError(t, err)

	router := chi.NewRouter()
	RegisterRoutes(router,
		handlers.NewAuthHandler(authService, limiter, auth.CookieConfig{}, logger),
		handlers.NewUserHandler(),
		authService,
	)

	return &loginFlow{router: router, limiter: limiter, email: email, clock: clk, user: user}
}

func (f *loginFlow) post(path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *loginFlow) remaining(t *testing.T) int {
	t.Helper()
	decision, err := f.limiter.Check(context.Background(), "198.51.100.9", ratelimit.ActionLogin)
	require.NoError(t, err)
	return decision.Remaining
}

func TestLoginFlow_FailuresThenFullSuccessResetsLimiter(t *testing.T) {
	flow := newLoginFlow(t)

	// two failed password attempts leave three of five
	for i := 0; i < 2; i++ {
		rec := flow.post("/login", `{"email":"alice@example.com","password":"wrong-password"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	assert.Equal(t, 3, flow.remaining(t))

	// password success does not reset the limiter yet
	rec := flow.post("/login", `{"email":"alice@example.com","password":"`+flowPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, flow.remaining(t))

	require.Len(t, flow.email.Sent, 1)
	code := flow.email.Sent[0].Code

	// code success completes the login and restores full quota
	rec = flow.post("/verify", `{"userId":"user-1","code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, flow.remaining(t))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	sessionCookie := cookies[0]
	assert.Equal(t, auth.AuthTokenCookie, sessionCookie.Name)

	// the session cookie opens the protected surface
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(sessionCookie)
	meRec := httptest.NewRecorder()
	flow.router.ServeHTTP(meRec, req)
	require.Equal(t, http.StatusOK, meRec.Code)

	var info handlers.SessionInfoResponse
	require.NoError(t, json.NewDecoder(meRec.Body).Decode(&info))
	assert.Equal(t, "alice@example.com", info.User.Email)

	// logout invalidates the session
	rec = flow.post("/logout", "", sessionCookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(sessionCookie)
	meRec = httptest.NewRecorder()
	flow.router.ServeHTTP(meRec, req)
	assert.Equal(t, http.StatusUnauthorized, meRec.Code)
}

func TestLoginFlow_BlockedAfterExhaustingAttempts(t *testing.T) {
	flow := newLoginFlow(t)

	for i := 0; i < 5; i++ {
		rec := flow.post("/login", `{"email":"alice@example.com","password":"wrong-password"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// sixth attempt hits the wall even with the right password
	rec := flow.post("/login", `{"email":"alice@example.com","password":"`+flowPassword+`"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp struct {
		Message string `json:"message"`
		Blocked bool   `json:"blocked"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Blocked)
	assert.Contains(t, resp.Message, "Try again in 15 minutes")

	// the window expiring restores access
	flow.clock.Advance(15*time.Minute + time.Second)
	rec = flow.post("/login", `{"email":"alice@example.com","password":"`+flowPassword+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}
