package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/apperrors"
	"github.com/forensic-testing/fts-intake/pkg/auth"
	"github.com/forensic-testing/fts-intake/pkg/blob"
	"github.com/forensic-testing/fts-intake/pkg/export"
	"github.com/forensic-testing/fts-intake/pkg/models"
	"github.com/forensic-testing/fts-intake/pkg/services"
	"github.com/forensic-testing/fts-intake/pkg/testhelpers"
)

// stubUserLookup resolves session subjects for the auth middleware.
type stubUserLookup struct {
	users map[uuid.UUID]*models.User
}

func (s *stubUserLookup) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.NotFound("user_not_found", "User not found")
	}
	return u, nil
}

func testUser(role string) *models.User {
	return &models.User{
		ID:        uuid.New(),
		Email:     role + "@forensic-testing.co.uk",
		Role:      role,
		IsActive:  true,
		CreatedAt: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

// testAuth wires the real auth middleware over a fixed set of users.
type testAuth struct {
	sessions   auth.SessionManager
	middleware *auth.Middleware
	cookie     auth.CookieSettings
}

func newTestAuth(users ...*models.User) *testAuth {
	lookup := &stubUserLookup{users: map[uuid.UUID]*models.User{}}
	for _, u := range users {
		lookup.users[u.ID] = u
	}
	sessions := testhelpers.NewSessionManager()
	cookie := auth.DeriveCookieSettings("http://localhost:8000", "fts_session", "", "lax")
	authService := auth.NewAuthService(sessions, lookup, cookie.Name, zap.NewNop())
	return &testAuth{
		sessions:   sessions,
		middleware: auth.NewMiddleware(authService, sessions, cookie, zap.NewNop()),
		cookie:     cookie,
	}
}

// request builds a request authenticated as user (nil for anonymous).
func (a *testAuth) request(t *testing.T, user *models.User, method, target string, body any) *http.Request {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		token := testhelpers.SessionToken(t, a.sessions, user.ID, user.Role)
		req.Header.Set("Authorization", testhelpers.BearerHeader(token))
	}
	return req
}

func serve(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// mockQuestionnaireService records its inputs and returns canned results.
type mockQuestionnaireService struct {
	record  *models.Questionnaire
	list    []models.QuestionnaireSummary
	err     error
	lastID  uuid.UUID
	data    map[string]any
	status  string
	owner   *auth.Principal
	listCNs []string
}

var _ services.QuestionnaireService = (*mockQuestionnaireService)(nil)

func (m *mockQuestionnaireService) Create(ctx context.Context, data map[string]any, requestedStatus string, owner *auth.Principal) (*models.Questionnaire, error) {
	m.data, m.status, m.owner = data, requestedStatus, owner
	return m.record, m.err
}

func (m *mockQuestionnaireService) Update(ctx context.Context, id uuid.UUID, data map[string]any, requestedStatus string) error {
	m.lastID, m.data, m.status = id, data, requestedStatus
	return m.err
}

func (m *mockQuestionnaireService) Finalize(ctx context.Context, id uuid.UUID) (*models.Questionnaire, error) {
	m.lastID = id
	return m.record, m.err
}

func (m *mockQuestionnaireService) Redo(ctx context.Context, id uuid.UUID, owner *auth.Principal) (*models.Questionnaire, error) {
	m.lastID, m.owner = id, owner
	return m.record, m.err
}

func (m *mockQuestionnaireService) Delete(ctx context.Context, id uuid.UUID) error {
	m.lastID = id
	return m.err
}

func (m *mockQuestionnaireService) Get(ctx context.Context, id uuid.UUID) (*models.Questionnaire, error) {
	m.lastID = id
	return m.record, m.err
}

func (m *mockQuestionnaireService) List(ctx context.Context) ([]models.QuestionnaireSummary, error) {
	return m.list, m.err
}

func (m *mockQuestionnaireService) Versions(ctx context.Context, caseNumber string) ([]models.QuestionnaireSummary, error) {
	m.listCNs = append(m.listCNs, caseNumber)
	return m.list, m.err
}

// mockExportService returns canned export results.
type mockExportService struct {
	schema   *export.Schema
	options  map[string][]string
	result   *services.ExportResult
	search   *services.SearchResult
	archives []blob.ArchiveEntry
	err      error

	exportFormat string
	searchReq    services.SearchRequest
	archiveName  string
	exportCalls  int
}

var _ services.ExportService = (*mockExportService)(nil)

func (m *mockExportService) Schema() *export.Schema { return m.schema }

func (m *mockExportService) ParseParams(q url.Values) (export.Params, error) {
	params, err := export.ParseParams(m.schema, q)
	if err != nil {
		return export.Params{}, apperrors.Validation("invalid_filter", "%s", err.Error())
	}
	return params, nil
}

func (m *mockExportService) Options(ctx context.Context) (map[string][]string, error) {
	return m.options, m.err
}

func (m *mockExportService) Export(ctx context.Context, format string, params export.Params) (*services.ExportResult, error) {
	m.exportCalls++
	m.exportFormat = format
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockExportService) Search(ctx context.Context, req services.SearchRequest) (*services.SearchResult, error) {
	m.searchReq = req
	return m.search, m.err
}

func (m *mockExportService) ExportSearch(ctx context.Context, req services.SearchRequest) (*services.ExportResult, error) {
	m.exportCalls++
	m.searchReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockExportService) OwnerCounts(ctx context.Context) (map[string]export.OwnerCounts, error) {
	return map[string]export.OwnerCounts{}, m.err
}

func (m *mockExportService) ArchiveEnabled() bool { return m.archives != nil }

func (m *mockExportService) ListArchives(ctx context.Context) ([]blob.ArchiveEntry, error) {
	return m.archives, m.err
}

func (m *mockExportService) OpenArchive(ctx context.Context, name string) (*services.ExportResult, error) {
	m.archiveName = name
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockUserService records the requester and returns canned results.
type mockUserService struct {
	users        []*models.UserWithCounts
	user         *models.User
	tempPassword string
	err          error

	requester *auth.Principal
	email     string
	role      string
	targetID  uuid.UUID
}

var _ services.UserService = (*mockUserService)(nil)

func (m *mockUserService) List(ctx context.Context) ([]*models.UserWithCounts, error) {
	return m.users, m.err
}

func (m *mockUserService) Create(ctx context.Context, requester *auth.Principal, email, role string) (*models.User, string, error) {
	m.requester, m.email, m.role = requester, email, role
	if m.err != nil {
		return nil, "", m.err
	}
	return m.user, m.tempPassword, nil
}

func (m *mockUserService) UpdateRole(ctx context.Context, requester *auth.Principal, id uuid.UUID, role string) (*models.User, error) {
	m.requester, m.targetID, m.role = requester, id, role
	if m.err != nil {
		return nil, m.err
	}
	return m.user, nil
}

func (m *mockUserService) Delete(ctx context.Context, requester *auth.Principal, id uuid.UUID) error {
	m.requester, m.targetID = requester, id
	return m.err
}

// mockSessionService returns canned sessions.
type mockSessionService struct {
	session *services.Session
	err     error

	email     string
	password  string
	principal *auth.Principal
	changes   []string
}

var _ services.SessionService = (*mockSessionService)(nil)

func (m *mockSessionService) Login(ctx context.Context, email, password string) (*services.Session, error) {
	m.email, m.password = email, password
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func (m *mockSessionService) ChangePassword(ctx context.Context, principal *auth.Principal, current, newPassword, confirm string) error {
	m.principal = principal
	m.changes = []string{current, newPassword, confirm}
	return m.err
}

func (m *mockSessionService) SeedSuperadmin(ctx context.Context, email, password string) (bool, error) {
	return false, m.err
}
