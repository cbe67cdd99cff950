package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/apperrors"
	"github.com/forensic-testing/fts-intake/pkg/models"
)

// mockUserLookup is a map-backed UserLookup.
type mockUserLookup struct {
	users map[uuid.UUID]*models.User
}

func (m *mockUserLookup) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.NotFound("user_not_found", "User not found")
	}
	return u, nil
}

type fixture struct {
	sessions SessionManager
	users    *mockUserLookup
	mw       *Middleware
	cookie   CookieSettings
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sessions := NewSessionManager("test-secret", time.Hour)
	users := &mockUserLookup{users: map[uuid.UUID]*models.User{}}
	cookie := DeriveCookieSettings("http://localhost:8000", "fts_session", "", "lax")
	svc := NewAuthService(sessions, users, cookie.Name, zap.NewNop())
	return &fixture{
		sessions: sessions,
		users:    users,
		cookie:   cookie,
		mw:       NewMiddleware(svc, sessions, cookie, zap.NewNop()),
	}
}

func (f *fixture) addUser(role string, active bool) *models.User {
	u := &models.User{ID: uuid.New(), Email: role + "@forensic-testing.co.uk", Role: role, IsActive: active}
	f.users.users[u.ID] = u
	return u
}

func (f *fixture) token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, _, err := f.sessions.Issue(u.ID, u.Role)
	require.NoError(t, err)
	return tok
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestMiddleware_RequireAuth_BearerToken(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(models.RoleUser, true)

	var got *Principal
	handler := f.mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/questionnaires", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, u))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Email, got.Email)
	assert.Empty(t, rec.Result().Cookies(), "bearer sessions are not re-issued as cookies")
}

func TestMiddleware_RequireAuth_CookieIsRefreshed(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(models.RoleUser, true)

	handler := f.mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "fts_session", Value: f.token(t, u)})
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "fts_session", cookies[0].Name)

	claims, err := f.sessions.Parse(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), claims.Subject)
}

func TestMiddleware_RequireAuth_Rejections(t *testing.T) {
	f := newFixture(t)
	inactive := f.addUser(models.RoleUser, false)
	deleted := &models.User{ID: uuid.New(), Role: models.RoleUser, IsActive: true}

	tests := []struct {
		name   string
		header string
	}{
		{"no credentials", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not-a-token"},
		{"inactive user", "Bearer " + f.token(t, inactive)},
		{"deleted user", "Bearer " + f.token(t, deleted)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := f.mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			})

			req := httptest.NewRequest(http.MethodGet, "/api/questionnaires", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "unauthorized", decodeError(t, rec)["error"])
		})
	}
}

func TestMiddleware_RequireAdmin(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		role string
		want int
	}{
		{models.RoleUser, http.StatusForbidden},
		{models.RoleAdmin, http.StatusOK},
		{models.RoleSuperadmin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			u := f.addUser(tt.role, true)
			handler := f.mw.RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
			req.Header.Set("Authorization", "Bearer "+f.token(t, u))
			rec := httptest.NewRecorder()
			handler(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequirePrincipal(t *testing.T) {
	_, err := RequirePrincipal(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
	assert.Equal(t, "", GetUserIDFromContext(context.Background()))

	p := &Principal{ID: uuid.New(), Role: models.RoleAdmin}
	ctx := WithPrincipal(context.Background(), p)
	got, err := RequirePrincipal(ctx)
	require.NoError(t, err)
	assert.Same(t, p, got)
	assert.Equal(t, p.ID.String(), GetUserIDFromContext(ctx))
	assert.True(t, got.IsAdmin())
	assert.False(t, got.IsSuperadmin())
}
