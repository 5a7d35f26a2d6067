package auth

import (
	"net/http"
	"time"
)

// AuthTokenCookie is the cookie carrying the session token, the sole bearer
// credential once login completes.
const AuthTokenCookie = "auth_token"

// CookieConfig holds cookie security settings
type CookieConfig struct {
	Domain string // Empty string = current host only
	Secure bool   // HTTPS only; on in production
}

// SetAuthTokenCookie sets the session token in an httpOnly, SameSite=Strict
// cookie. HttpOnly keeps the token away from page scripts; Strict keeps it
// off cross-site requests entirely.
func SetAuthTokenCookie(w http.ResponseWriter, token string, expiresAt time.Time, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthTokenCookie,
		Value:    token,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearAuthTokenCookie expires the session cookie immediately.
func ClearAuthTokenCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthTokenCookie,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// GetAuthTokenCookie retrieves the session token from the request cookies.
func GetAuthTokenCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(AuthTokenCookie)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
