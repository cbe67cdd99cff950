// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/forensic-testing/fts-intake/pkg/auth"
	"github.com/forensic-testing/fts-intake/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	EventLoginSucceeded    SecurityEventType = "login_succeeded"
	EventLoginFailed       SecurityEventType = "login_failed"
	EventPasswordChanged   SecurityEventType = "password_changed"
	EventAccountCreated    SecurityEventType = "account_created"
	EventAccountRoleChange SecurityEventType = "account_role_changed"
	EventAccountDeleted    SecurityEventType = "account_deleted"
	// EventExportPerformed is logged for every admin export of submitted records.
	EventExportPerformed SecurityEventType = "export_performed"
	// EventInjectionAttempt is logged when libinjection flags an export filter value.
	EventInjectionAttempt SecurityEventType = "injection_attempt"
)

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"` // acting user
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
// The logger is automatically configured with "security_audit" namespace for easy
// filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogLogin records a sign-in attempt. Failed attempts are logged at WARN with
// the email masked; reason is a short machine string such as "bad_password".
func (a *SecurityAuditor) LogLogin(ctx context.Context, email string, success bool, reason, clientIP string) {
	details := map[string]string{"email": logging.MaskEmail(email)}
	if !success {
		details["reason"] = reason
		a.log(ctx, EventLoginFailed, SeverityWarning, "Login failed", details, clientIP)
		return
	}
	a.log(ctx, EventLoginSucceeded, SeverityInfo, "Login succeeded", details, clientIP)
}

// LogPasswordChanged records a self-service password change.
func (a *SecurityAuditor) LogPasswordChanged(ctx context.Context, clientIP string) {
	a.log(ctx, EventPasswordChanged, SeverityInfo, "Password changed", map[string]string{}, clientIP)
}

// LogAccountChange records an admin action on another account.
// details should carry the target id and, where relevant, the new role.
func (a *SecurityAuditor) LogAccountChange(ctx context.Context, event SecurityEventType, details map[string]string, clientIP string) {
	a.log(ctx, event, SeverityInfo, "Account changed", details, clientIP)
}

// ExportDetails describes a completed export.
type ExportDetails struct {
	Format  string            `json:"format"`
	Count   int               `json:"count"`
	Filters map[string]string `json:"filters,omitempty"`
	Archive string            `json:"archive,omitempty"`
}

// LogExport records an export of submitted records.
func (a *SecurityAuditor) LogExport(ctx context.Context, details ExportDetails, clientIP string) {
	a.log(ctx, EventExportPerformed, SeverityInfo, "Export performed", details, clientIP)
}

// LogInjectionAttempt records a rejected filter value at ERROR level with
// "critical" severity for immediate alerting.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, details InjectionDetails, clientIP string) {
	a.log(ctx, EventInjectionAttempt, SeverityCritical, "Injection attempt detected", details, clientIP,
		zap.String("param_name", details.ParamName),
		zap.String("fingerprint", details.Fingerprint),
	)
}

func (a *SecurityAuditor) log(ctx context.Context, eventType SecurityEventType, severity, msg string, details any, clientIP string, extra ...zap.Field) {
	userID := auth.GetUserIDFromContext(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		ClientIP:  clientIP,
		Details:   details,
		Severity:  severity,
	}

	// Marshaling known types should never fail
	eventJSON, _ := json.Marshal(event)

	fields := append([]zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(eventType)),
		zap.String("user_id", userID),
		zap.String("client_ip", clientIP),
		zap.String("severity", severity),
	}, extra...)

	level := zapcore.InfoLevel
	switch severity {
	case SeverityWarning:
		level = zapcore.WarnLevel
	case SeverityCritical:
		level = zapcore.ErrorLevel
	}
	a.logger.Log(level, msg, fields...)
}
