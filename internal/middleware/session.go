package middleware

import (
	"context"
	"net/http"

	"github.com/tmcarvalho/gatehouse/internal/auth"
	"github.com/tmcarvalho/gatehouse/internal/models"
	pkghttp "github.com/tmcarvalho/gatehouse/pkg/http"
)

// SessionAuthenticator resolves a session token to its user
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, *models.Session, error)
}

// RequireSession guards routes that need a completed login. The session
// token is read from the auth_token cookie; anything short of a live
// session for an active user is a 401.
func RequireSession(authenticator SessionAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.GetAuthTokenCookie(r)
			if err != nil || token == "" {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			user, session, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user, session)))
		})
	}
}
