package testhelpers

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/forensic-testing/fts-intake/pkg/auth"
)

// TestSessionSecret signs session tokens in tests.
const TestSessionSecret = "test-session-secret"

// NewSessionManager returns a SessionManager signing with TestSessionSecret.
func NewSessionManager() auth.SessionManager {
	return auth.NewSessionManager(TestSessionSecret, time.Hour)
}

// SessionToken issues a valid session token for userID.
func SessionToken(t *testing.T, sessions auth.SessionManager, userID uuid.UUID, role string) string {
	t.Helper()
	token, _, err := sessions.Issue(userID, role)
	if err != nil {
		t.Fatalf("failed to issue session token: %v", err)
	}
	return token
}

// BearerHeader returns token with "Bearer " prefix for the Authorization header.
func BearerHeader(token string) string {
	return "Bearer " + token
}
