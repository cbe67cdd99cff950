package auth

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CookieSettings controls how the session cookie is written.
type CookieSettings struct {
	Name string
	// Secure indicates whether the cookie should only be sent over HTTPS.
	Secure bool
	// Domain is the cookie domain scope; empty means host-only.
	Domain   string
	SameSite http.SameSite
}

// DeriveCookieSettings determines cookie security settings from the base URL:
//   - http://localhost:8000 → Secure: false
//   - https://intake.forensic-testing.co.uk → Secure: true
//
// configCookieDomain and sameSite come straight from configuration.
func DeriveCookieSettings(baseURL, name, configCookieDomain, sameSite string) CookieSettings {
	return CookieSettings{
		Name:     name,
		Secure:   isHTTPS(baseURL),
		Domain:   configCookieDomain,
		SameSite: parseSameSite(sameSite),
	}
}

// SetSessionCookie writes token as an HttpOnly session cookie expiring at expires.
func (c CookieSettings) SetSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		Domain:   c.Domain,
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// ClearSessionCookie expires the session cookie.
func (c CookieSettings) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// isHTTPS determines if the given base URL uses HTTPS protocol.
// Returns true for HTTPS, false for HTTP, true for empty/invalid URLs (safe default).
func isHTTPS(baseURL string) bool {
	if baseURL == "" {
		return true
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return true
	}

	return parsedURL.Scheme != "http"
}
