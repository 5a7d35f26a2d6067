package handlers

import (
	"net/http"
	"time"

	"github.com/tmcarvalho/gatehouse/internal/auth"
	pkghttp "github.com/tmcarvalho/gatehouse/pkg/http"
)

// UserResponse represents the authenticated user in HTTP responses
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

// SessionInfoResponse pairs the user with the session backing the request
type SessionInfoResponse struct {
	User             UserResponse `json:"user"`
	SessionExpiresAt string       `json:"sessionExpiresAt"`
}

// UserHandler serves session-scoped user endpoints
type UserHandler struct{}

// NewUserHandler creates a new UserHandler
func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// Me returns the user and session behind the auth_token cookie
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	session := auth.SessionFromContext(r.Context())
	if user == nil || session == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SessionInfoResponse{
		User: UserResponse{
			ID:        user.ID,
			Email:     user.Email,
			Name:      user.Name,
			Role:      user.Role,
			CreatedAt: user.CreatedAt.Format(time.RFC3339),
		},
		SessionExpiresAt: session.ExpiresAt.Format(time.RFC3339),
	})
}
