package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forensic-testing/fts-intake/pkg/jsonutil"
)

// Questionnaire statuses. A record moves from draft to submitted exactly once.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
)

// TimestampLayout is the fixed-width UTC layout used when records are
// rendered as maps. Fixed width keeps string comparison in date order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Questionnaire is one versioned intake record for a case.
type Questionnaire struct {
	ID          uuid.UUID      `json:"id"`
	CaseNumber  string         `json:"case_number"`
	Version     int            `json:"version"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	SubmittedAt *time.Time     `json:"submitted_at"`
	RedoOfID    *uuid.UUID     `json:"redo_of_id"`
	OwnerUserID *uuid.UUID     `json:"owner_user_id,omitempty"`
	OwnerEmail  string         `json:"owner_email,omitempty"`
	Data        map[string]any `json:"data"`
}

// QuestionnaireSummary is the index view of a questionnaire, without its data.
type QuestionnaireSummary struct {
	ID          uuid.UUID  `json:"id"`
	CaseNumber  string     `json:"case_number"`
	Version     int        `json:"version"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	RedoOfID    *uuid.UUID `json:"redo_of_id"`
	OwnerUserID *uuid.UUID `json:"owner_user_id,omitempty"`
	OwnerEmail  string     `json:"owner_email,omitempty"`
}

// IsSubmitted reports whether the record is frozen.
func (q *Questionnaire) IsSubmitted() bool {
	return strings.EqualFold(q.Status, StatusSubmitted)
}

// Summary returns the index view of q.
func (q *Questionnaire) Summary() QuestionnaireSummary {
	return QuestionnaireSummary{
		ID:          q.ID,
		CaseNumber:  q.CaseNumber,
		Version:     q.Version,
		Status:      q.Status,
		CreatedAt:   q.CreatedAt,
		UpdatedAt:   q.UpdatedAt,
		SubmittedAt: q.SubmittedAt,
		RedoOfID:    q.RedoOfID,
		OwnerUserID: q.OwnerUserID,
		OwnerEmail:  q.OwnerEmail,
	}
}

// ResolvedCaseNumber returns the stored case number, falling back to the one in data.
func (q *Questionnaire) ResolvedCaseNumber() string {
	if cn := NormalizeCaseNumber(q.CaseNumber); cn != "" {
		return cn
	}
	return CaseNumberFromData(q.Data)
}

// AsMap renders q as a generic document: the shape filter rules and
// exports operate on. Data is shared, not copied.
func (q *Questionnaire) AsMap() map[string]any {
	m := map[string]any{
		"id":           q.ID.String(),
		"case_number":  q.CaseNumber,
		"version":      q.Version,
		"status":       q.Status,
		"created_at":   FormatTimestamp(q.CreatedAt),
		"updated_at":   FormatTimestamp(q.UpdatedAt),
		"submitted_at": nil,
		"redo_of_id":   nil,
		"data":         q.Data,
	}
	if q.SubmittedAt != nil {
		m["submitted_at"] = FormatTimestamp(*q.SubmittedAt)
	}
	if q.RedoOfID != nil {
		m["redo_of_id"] = q.RedoOfID.String()
	}
	if q.OwnerUserID != nil {
		m["owner_user_id"] = q.OwnerUserID.String()
	}
	if q.OwnerEmail != "" {
		m["owner_email"] = q.OwnerEmail
	}
	if m["data"] == nil {
		m["data"] = map[string]any{}
	}
	return m
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// NormalizeCaseNumber trims surrounding whitespace from a case number.
func NormalizeCaseNumber(cn string) string {
	return strings.TrimSpace(cn)
}

// CaseNumberFromData extracts the normalized case number from a questionnaire payload.
func CaseNumberFromData(data map[string]any) string {
	if data == nil {
		return ""
	}
	return NormalizeCaseNumber(jsonutil.StringValue(data["case_number"]))
}

// SameCaseNumber compares case numbers ignoring surrounding whitespace and letter case.
func SameCaseNumber(a, b string) bool {
	return strings.EqualFold(NormalizeCaseNumber(a), NormalizeCaseNumber(b))
}

// NormalizeStatus maps a requested status to a valid initial status.
// Anything other than "submitted" becomes a draft.
func NormalizeStatus(requested string) string {
	if strings.EqualFold(strings.TrimSpace(requested), StatusSubmitted) {
		return StatusSubmitted
	}
	return StatusDraft
}

// OwnerKey identifies the owner of a questionnaire for per-user counts.
// User ids take precedence over emails. Returns "" when the record has no owner.
func OwnerKey(ownerUserID *uuid.UUID, ownerEmail string) string {
	if ownerUserID != nil && *ownerUserID != uuid.Nil {
		return "user_id:" + ownerUserID.String()
	}
	if email := NormalizeEmail(ownerEmail); email != "" {
		return "user_email:" + email
	}
	return ""
}
