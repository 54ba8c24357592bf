package security

import (
	"net/http"
	"time"
)

const (
	RefreshTokenCookie = "refresh_token"
	AccessTokenCookie  = "access_token"
)

type CookieManager struct {
	secure bool
	domain string
}

func NewCookieManager(secure bool, domain string) *CookieManager {
	return &CookieManager{secure: secure, domain: domain}
}

// SetRefreshToken writes the refresh cookie. Without remember-me the cookie
// has no Max-Age and dies with the browser session.
func (m *CookieManager) SetRefreshToken(w http.ResponseWriter, token string, rememberMe bool, ttl time.Duration) {
	c := &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    token,
		Path:     "/",
		Domain:   m.domain,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if rememberMe {
		c.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, c)
}

func (m *CookieManager) Clear(w http.ResponseWriter, names ...string) {
	for _, name := range names {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   m.domain,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   m.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
