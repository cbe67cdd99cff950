package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/forensic-testing/fts-intake/pkg/auth"
)

// setupTestLogger creates a test logger with an observer to capture log entries.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

func adminContext(id uuid.UUID) context.Context {
	return auth.WithPrincipal(context.Background(), &auth.Principal{ID: id, Email: "admin@forensic-testing.co.uk", Role: "admin"})
}

func decodeEvent(t *testing.T, entry observer.LoggedEntry) SecurityEvent {
	t.Helper()
	raw, ok := entry.ContextMap()["event_json"].(string)
	require.True(t, ok, "event_json field missing")
	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	return event
}

func TestNewSecurityAuditor_UsesNamedLogger(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogPasswordChanged(context.Background(), "10.0.0.1")

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "security_audit", logs[0].LoggerName)
}

func TestLogLogin(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogLogin(context.Background(), "jane@forensic-testing.co.uk", false, "bad_password", "10.0.0.1")
	auditor.LogLogin(context.Background(), "jane@forensic-testing.co.uk", true, "", "10.0.0.1")

	logs := recorded.All()
	require.Len(t, logs, 2)

	failed := logs[0]
	assert.Equal(t, zapcore.WarnLevel, failed.Level)
	event := decodeEvent(t, failed)
	assert.Equal(t, EventLoginFailed, event.EventType)
	assert.Equal(t, SeverityWarning, event.Severity)
	details := event.Details.(map[string]any)
	assert.Equal(t, "j***@forensic-testing.co.uk", details["email"])
	assert.Equal(t, "bad_password", details["reason"])
	assert.NotContains(t, failed.ContextMap()["event_json"], "jane@")

	ok := logs[1]
	assert.Equal(t, zapcore.InfoLevel, ok.Level)
	assert.Equal(t, EventLoginSucceeded, decodeEvent(t, ok).EventType)
}

func TestLogAccountChange_RecordsActor(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	actor := uuid.New()
	target := uuid.New()
	auditor.LogAccountChange(adminContext(actor), EventAccountRoleChange,
		map[string]string{"target_id": target.String(), "role": "admin"}, "192.168.1.5")

	logs := recorded.All()
	require.Len(t, logs, 1)
	event := decodeEvent(t, logs[0])
	assert.Equal(t, EventAccountRoleChange, event.EventType)
	assert.Equal(t, actor.String(), event.UserID)
	assert.Equal(t, "192.168.1.5", event.ClientIP)
	assert.Equal(t, actor.String(), logs[0].ContextMap()["user_id"])
}

func TestLogExport(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogExport(adminContext(uuid.New()), ExportDetails{
		Format:  "csv",
		Count:   12,
		Filters: map[string]string{"sex_at_birth": "Female"},
		Archive: "exports/20250101T000000Z-abc.csv",
	}, "127.0.0.1")

	logs := recorded.All()
	require.Len(t, logs, 1)
	event := decodeEvent(t, logs[0])
	assert.Equal(t, EventExportPerformed, event.EventType)
	details := event.Details.(map[string]any)
	assert.Equal(t, "csv", details["format"])
	assert.Equal(t, float64(12), details["count"])
}

func TestLogInjectionAttempt(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogInjectionAttempt(context.Background(), InjectionDetails{
		ParamName:   "testing_type",
		ParamValue:  "1' OR '1'='1",
		Kind:        KindSQLi,
		Fingerprint: "s&sos",
	}, "203.0.113.9")

	logs := recorded.All()
	require.Len(t, logs, 1)
	entry := logs[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "Injection attempt detected", entry.Message)
	assert.Equal(t, "testing_type", entry.ContextMap()["param_name"])
	assert.Equal(t, "s&sos", entry.ContextMap()["fingerprint"])
	assert.Equal(t, SeverityCritical, decodeEvent(t, entry).Severity)
	assert.Equal(t, "", decodeEvent(t, entry).UserID)
}
