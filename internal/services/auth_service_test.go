package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmcarvalho/gatehouse/internal/models"
	pkgauth "github.com/tmcarvalho/gatehouse/pkg/auth"
)

const testPassword = "correct-horse-battery"

func testUser(t *testing.T) *models.User {
	t.Helper()
	hash, err := pkgauth.HashPassword(testPassword)
	require.NoError(t, err)
	return &models.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Name:         "Alice",
		Role:         "user",
		Status:       "active",
	}
}

func fixtureWithUser(t *testing.T) (*authServiceFixture, *models.User) {
	t.Helper()
	user := testUser(t)
	users := &MockUserRepository{
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
	return newAuthServiceFixture(users), user
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	client := ClientInfo{IPAddress: "192.168.1.1", UserAgent: "test-agent"}

	t.Run("correct password issues a verification code", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)

		result, err := fixture.service.Login(ctx, user.Email, testPassword, client)
		require.NoError(t, err)
		assert.Equal(t, user.ID, result.UserID)
		assert.True(t, result.RequiresVerification)

		require.Len(t, fixture.email.Sent, 1)
		assert.Equal(t, user.Email, fixture.email.Sent[0].Email)
		assert.Len(t, fixture.email.Sent[0].Code, 6)

		pending, err := fixture.pending.Get(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, fixture.email.Sent[0].Code, pending.Code)
		assert.Equal(t, 5, pending.AttemptsRemaining)
		assert.Equal(t, fixture.clock.Now().Add(10*time.Minute), pending.ExpiresAt)
	})

	t.Run("email casing and whitespace are normalized", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)

		result, err := fixture.service.Login(ctx, "  ALICE@Example.COM ", testPassword, client)
		require.NoError(t, err)
		assert.Equal(t, user.ID, result.UserID)
	})

	t.Run("unknown email fails like a wrong password", func(t *testing.T) {
		fixture, _ := fixtureWithUser(t)

		result, err := fixture.service.Login(ctx, "nobody@example.com", testPassword, client)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
		assert.Empty(t, fixture.email.Sent)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)

		result, err := fixture.service.Login(ctx, user.Email, "wrong-password", client)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
		assert.Empty(t, fixture.email.Sent)
	})

	t.Run("disabled account fails uniformly", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)
		user.Status = "disabled"

		_, err := fixture.service.Login(ctx, user.Email, testPassword, client)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("missing fields are a validation error", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)

		_, err := fixture.service.Login(ctx, "", testPassword, client)
		assert.ErrorIs(t, err, models.ErrValidation)

		_, err = fixture.service.Login(ctx, user.Email, "", client)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("second login supersedes the earlier code", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)

		_, err := fixture.service.Login(ctx, user.Email, testPassword, client)
		require.NoError(t, err)
		firstCode := fixture.email.Sent[0].Code

		_, err = fixture.service.Login(ctx, user.Email, testPassword, client)
		require.NoError(t, err)
		require.Len(t, fixture.email.Sent, 2)

		pending, err := fixture.pending.Get(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, fixture.email.Sent[1].Code, pending.Code)

		if firstCode != pending.Code {
			_, err = fixture.service.Verify(ctx, user.ID, firstCode, client)
			assert.ErrorIs(t, err, models.ErrUnauthorized)
		}
	})

	t.Run("email failure keeps the pending login", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)
		fixture.email.SendVerificationCodeFunc = func(context.Context, string, string, time.Time) error {
			return errors.New("ses unavailable")
		}

		result, err := fixture.service.Login(ctx, user.Email, testPassword, client)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, models.ErrInternalServer)

		_, err = fixture.pending.Get(ctx, user.ID)
		assert.NoError(t, err)
	})
}

func TestAuthService_Verify(t *testing.T) {
	ctx := context.Background()
	client := ClientInfo{IPAddress: "192.168.1.1", UserAgent: "test-agent"}

	login := func(t *testing.T, fixture *authServiceFixture, user *models.User) string {
		t.Helper()
		_, err := fixture.service.Login(ctx, user.Email, testPassword, client)
		require.NoError(t, err)
		return fixture.email.Sent[len(fixture.email.Sent)-1].Code
	}

	t.Run("correct code issues a session and consumes the pending login", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)
		code := login(t, fixture, user)

		session, err := fixture.service.Verify(ctx, user.ID, code, client)
		require.NoError(t, err)
		assert.Equal(t, user.ID, session.UserID)
		assert.NotEmpty(t, session.Token)
		assert.Equal(t, fixture.clock.Now().Add(24*time.Hour), session.ExpiresAt)

		stored, err := fixture.sessions.GetByToken(ctx, session.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, stored.UserID)

		// same code cannot be redeemed twice
		_, err = fixture.service.Verify(ctx, user.ID, code, client)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("wrong code burns an attempt", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)
		code := login(t, fixture, user)

		_, err := fixture.service.Verify(ctx, user.ID, "000000", client)
		assert.ErrorIs(t, err, models.ErrUnauthorized)

		pending, err := fixture.pending.Get(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, pending.AttemptsRemaining)

		// the real code still works afterwards
		_, err = fixture.service.Verify(ctx, user.ID, code, client)
		assert.NoError(t, err)
	})

	t.Run("exhausting attempts invalidates the pending login", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)
		code := login(t, fixture, user)

		for i := 0; i < 5; i++ {
			_, err := fixture.service.Verify(ctx, user.ID, "000000", client)
			assert.ErrorIs(t, err, models.ErrUnauthorized)
		}

		// even the correct code is dead now
		_, err := fixture.service.Verify(ctx, user.ID, code, client)
		assert.ErrorIs(t, err, models.ErrUnauthorized)

		_, err = fixture.pending.Get(ctx, user.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("expired code is rejected and removed", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)
		code := login(t, fixture, user)

		fixture.clock.Advance(10*time.Minute + time.Second)

		_, err := fixture.service.Verify(ctx, user.ID, code, client)
		assert.ErrorIs(t, err, models.ErrUnauthorized)

		_, err = fixture.pending.Get(ctx, user.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("no pending login fails uniformly", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)

		_, err := fixture.service.Verify(ctx, user.ID, "123456", client)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("missing fields are a validation error", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)

		_, err := fixture.service.Verify(ctx, "", "123456", client)
		assert.ErrorIs(t, err, models.ErrValidation)

		_, err = fixture.service.Verify(ctx, user.ID, "", client)
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestAuthService_Logout(t *testing.T) {
	ctx := context.Background()
	client := ClientInfo{IPAddress: "192.168.1.1", UserAgent: "test-agent"}

	t.Run("deletes the session", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)
		_, err := fixture.service.Login(ctx, user.Email, testPassword, client)
		require.NoError(t, err)
		code := fixture.email.Sent[0].Code
		session, err := fixture.service.Verify(ctx, user.ID, code, client)
		require.NoError(t, err)

		require.NoError(t, fixture.service.Logout(ctx, session.Token, client))

		_, err = fixture.sessions.GetByToken(ctx, session.Token)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("is idempotent", func(t *testing.T) {
		fixture, _ := fixtureWithUser(t)

		assert.NoError(t, fixture.service.Logout(ctx, "never-issued", client))
		assert.NoError(t, fixture.service.Logout(ctx, "", client))
	})
}

func TestAuthService_Authenticate(t *testing.T) {
	ctx := context.Background()
	client := ClientInfo{IPAddress: "192.168.1.1", UserAgent: "test-agent"}

	issueSession := func(t *testing.T, fixture *authServiceFixture, user *models.User) *models.Session {
		t.Helper()
		_, err := fixture.service.Login(ctx, user.Email, testPassword, client)
		require.NoError(t, err)
		code := fixture.email.Sent[len(fixture.email.Sent)-1].Code
		session, err := fixture.service.Verify(ctx, user.ID, code, client)
		require.NoError(t, err)
		return session
	}

	t.Run("valid token resolves the user", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)
		session := issueSession(t, fixture, user)

		gotUser, gotSession, err := fixture.service.Authenticate(ctx, session.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, gotUser.ID)
		assert.Equal(t, session.Token, gotSession.Token)
	})

	t.Run("expired session is rejected and deleted", func(t *testing.T) {
		fixture, user := fixtureWithUser(t)
		session := issueSession(t, fixture, user)

		fixture.clock.Advance(24*time.Hour + time.Second)

		_, _, err := fixture.service.Authenticate(ctx, session.Token)
		assert.ErrorIs(t, err, models.ErrUnauthorized)

		_, err = fixture.sessions.GetByToken(ctx, session.Token)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("unknown or empty token is rejected", func(t *testing.T) {
		fixture, _ := fixtureWithUser(t)

		_, _, err := fixture.service.Authenticate(ctx, "bogus")
		assert.ErrorIs(t, err, models.ErrUnauthorized)

		_, _, err = fixture.service.Authenticate(ctx, "")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})
}

func TestMemoryPendingLoginStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPendingLoginStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, &models.PendingLogin{UserID: "stale", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, store.Upsert(ctx, &models.PendingLogin{UserID: "live", ExpiresAt: now.Add(time.Minute)}))

	deleted, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.Get(ctx, "stale")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = store.Get(ctx, "live")
	assert.NoError(t, err)
}
