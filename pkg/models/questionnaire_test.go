package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionnaire_AsMap(t *testing.T) {
	submitted := time.Date(2024, 3, 5, 14, 30, 0, 120000000, time.UTC)
	redoOf := uuid.New()
	q := &Questionnaire{
		ID:          uuid.New(),
		CaseNumber:  "C-100",
		Version:     2,
		Status:      StatusSubmitted,
		CreatedAt:   submitted.Add(-time.Hour),
		UpdatedAt:   submitted,
		SubmittedAt: &submitted,
		RedoOfID:    &redoOf,
		Data:        map[string]any{"case_number": "C-100"},
	}

	m := q.AsMap()

	assert.Equal(t, q.ID.String(), m["id"])
	assert.Equal(t, 2, m["version"])
	assert.Equal(t, "2024-03-05T14:30:00.120000Z", m["submitted_at"])
	assert.Equal(t, "2024-03-05T13:30:00.120000Z", m["created_at"])
	assert.Equal(t, redoOf.String(), m["redo_of_id"])
	_, hasOwner := m["owner_user_id"]
	assert.False(t, hasOwner)
}

func TestQuestionnaire_AsMap_DraftHasNilSubmittedAt(t *testing.T) {
	q := &Questionnaire{ID: uuid.New(), Status: StatusDraft}

	m := q.AsMap()

	assert.Nil(t, m["submitted_at"])
	assert.Nil(t, m["redo_of_id"])
	require.IsType(t, map[string]any{}, m["data"])
}

func TestFormatTimestamp_SortsChronologically(t *testing.T) {
	early := FormatTimestamp(time.Date(2024, 1, 9, 23, 0, 0, 0, time.UTC))
	late := FormatTimestamp(time.Date(2024, 1, 10, 3, 0, 0, 0, time.FixedZone("x", 2*3600)))

	assert.Less(t, early, late)
}

func TestCaseNumberFromData(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{"trimmed string", map[string]any{"case_number": "  C-1 "}, "C-1"},
		{"number", map[string]any{"case_number": float64(42)}, "42"},
		{"blank", map[string]any{"case_number": "   "}, ""},
		{"missing", map[string]any{}, ""},
		{"nil data", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CaseNumberFromData(tt.data))
		})
	}
}

func TestQuestionnaire_ResolvedCaseNumber(t *testing.T) {
	q := &Questionnaire{Data: map[string]any{"case_number": " FROM-DATA "}}
	assert.Equal(t, "FROM-DATA", q.ResolvedCaseNumber())

	q.CaseNumber = "STORED"
	assert.Equal(t, "STORED", q.ResolvedCaseNumber())
}

func TestSameCaseNumber(t *testing.T) {
	assert.True(t, SameCaseNumber(" ab-1", "AB-1 "))
	assert.False(t, SameCaseNumber("AB-1", "AB-2"))
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, StatusSubmitted, NormalizeStatus("submitted"))
	assert.Equal(t, StatusSubmitted, NormalizeStatus(" Submitted "))
	assert.Equal(t, StatusDraft, NormalizeStatus(""))
	assert.Equal(t, StatusDraft, NormalizeStatus("archived"))
}

func TestOwnerKey(t *testing.T) {
	id := uuid.New()

	assert.Equal(t, "user_id:"+id.String(), OwnerKey(&id, "someone@example.com"))
	assert.Equal(t, "user_email:someone@example.com", OwnerKey(nil, "  Someone@Example.com "))
	assert.Equal(t, "", OwnerKey(nil, ""))
	nilID := uuid.Nil
	assert.Equal(t, "", OwnerKey(&nilID, ""))
}

func TestIsAssignableRole(t *testing.T) {
	assert.True(t, IsAssignableRole(RoleUser))
	assert.True(t, IsAssignableRole(RoleAdmin))
	assert.False(t, IsAssignableRole(RoleSuperadmin))
	assert.False(t, IsAssignableRole("data"))
}
