package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveCookieSettings(t *testing.T) {
	tests := []struct {
		name       string
		baseURL    string
		domain     string
		sameSite   string
		wantSecure bool
		wantSite   http.SameSite
	}{
		{"localhost http", "http://localhost:8000", "", "lax", false, http.SameSiteLaxMode},
		{"production https", "https://intake.forensic-testing.co.uk", ".forensic-testing.co.uk", "strict", true, http.SameSiteStrictMode},
		{"empty base url is secure", "", "", "none", true, http.SameSiteNoneMode},
		{"unknown samesite falls back to lax", "https://x.example", "", "bogus", true, http.SameSiteLaxMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveCookieSettings(tt.baseURL, "fts_session", tt.domain, tt.sameSite)
			assert.Equal(t, "fts_session", got.Name)
			assert.Equal(t, tt.wantSecure, got.Secure)
			assert.Equal(t, tt.domain, got.Domain)
			assert.Equal(t, tt.wantSite, got.SameSite)
		})
	}
}

func TestCookieSettings_SetAndClear(t *testing.T) {
	c := DeriveCookieSettings("https://intake.example", "fts_session", "", "lax")

	rec := httptest.NewRecorder()
	c.SetSessionCookie(rec, "tok", time.Now().Add(time.Hour))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "fts_session", cookies[0].Name)
	assert.Equal(t, "tok", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Greater(t, cookies[0].MaxAge, 3500)

	rec = httptest.NewRecorder()
	c.ClearSessionCookie(rec)
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}
