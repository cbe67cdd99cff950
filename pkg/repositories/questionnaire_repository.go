package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forensic-testing/fts-intake/pkg/apperrors"
	"github.com/forensic-testing/fts-intake/pkg/database"
	"github.com/forensic-testing/fts-intake/pkg/models"
)

// ScanFunc receives each record visited by QuestionnaireRepository.Scan.
// When a record's data cannot be decoded, q carries the record with nil
// Data and err describes the failure.
type ScanFunc func(q *models.Questionnaire, err error)

// QuestionnaireRepository provides data access for questionnaires.
type QuestionnaireRepository interface {
	Create(ctx context.Context, q *models.Questionnaire) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Questionnaire, error)
	// Update persists status, timestamps and data of a draft. Submitted
	// records are rejected with ErrConflict.
	Update(ctx context.Context, q *models.Questionnaire) error
	// Delete removes a draft. Submitted records are rejected with ErrConflict.
	Delete(ctx context.Context, id uuid.UUID) error
	// MaxVersion returns the highest version stored for caseNumber, or 0.
	MaxVersion(ctx context.Context, caseNumber string) (int, error)
	ListByCase(ctx context.Context, caseNumber string) ([]*models.Questionnaire, error)
	// ListIndex returns summaries of every record in insertion order.
	ListIndex(ctx context.Context) ([]models.QuestionnaireSummary, error)
	// Scan visits every record, optionally restricted to one status, in insertion order.
	Scan(ctx context.Context, status string, fn ScanFunc) error
}

type questionnaireRepository struct {
	db *database.DB
}

// NewQuestionnaireRepository creates a PostgreSQL-backed QuestionnaireRepository.
func NewQuestionnaireRepository(db *database.DB) QuestionnaireRepository {
	return &questionnaireRepository{db: db}
}

var _ QuestionnaireRepository = (*questionnaireRepository)(nil)

const questionnaireColumns = `id, case_number, version, status, created_at, updated_at,
	submitted_at, redo_of_id, owner_user_id, owner_email`

func (r *questionnaireRepository) Create(ctx context.Context, q *models.Questionnaire) error {
	data, err := encodeData(q.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO questionnaires (` + questionnaireColumns + `, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.Exec(ctx, query,
		q.ID, q.CaseNumber, q.Version, q.Status, q.CreatedAt, q.UpdatedAt,
		q.SubmittedAt, q.RedoOfID, q.OwnerUserID, nullString(q.OwnerEmail), data)
	if err != nil {
		if isUniqueViolation(err) {
			return versionConflict(q)
		}
		return fmt.Errorf("failed to create questionnaire: %w", err)
	}
	return nil
}

func (r *questionnaireRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Questionnaire, error) {
	query := `SELECT ` + questionnaireColumns + `, data FROM questionnaires WHERE id = $1`

	q, err := scanPgQuestionnaire(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, questionnaireNotFound(id)
		}
		return nil, fmt.Errorf("failed to get questionnaire: %w", err)
	}
	return q, nil
}

func (r *questionnaireRepository) Update(ctx context.Context, q *models.Questionnaire) error {
	data, err := encodeData(q.Data)
	if err != nil {
		return err
	}

	query := `
		UPDATE questionnaires
		SET status = $2, updated_at = $3, submitted_at = $4, data = $5
		WHERE id = $1 AND status = 'draft'`

	tag, err := r.db.Exec(ctx, query, q.ID, q.Status, q.UpdatedAt, q.SubmittedAt, data)
	if err != nil {
		return fmt.Errorf("failed to update questionnaire: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.explainNoDraft(ctx, q.ID)
	}
	return nil
}

func (r *questionnaireRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM questionnaires WHERE id = $1 AND status = 'draft'`, id)
	if err != nil {
		return fmt.Errorf("failed to delete questionnaire: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.explainNoDraft(ctx, id)
	}
	return nil
}

// explainNoDraft distinguishes a missing record from a submitted one after a
// draft-guarded statement matched nothing.
func (r *questionnaireRepository) explainNoDraft(ctx context.Context, id uuid.UUID) error {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM questionnaires WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return questionnaireNotFound(id)
		}
		return fmt.Errorf("failed to check questionnaire status: %w", err)
	}
	return alreadySubmitted()
}

func (r *questionnaireRepository) MaxVersion(ctx context.Context, caseNumber string) (int, error) {
	var max int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM questionnaires WHERE case_number = $1`,
		caseNumber).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to get max version: %w", err)
	}
	return max, nil
}

func (r *questionnaireRepository) ListByCase(ctx context.Context, caseNumber string) ([]*models.Questionnaire, error) {
	query := `
		SELECT ` + questionnaireColumns + `, data
		FROM questionnaires
		WHERE case_number = $1
		ORDER BY version ASC`

	rows, err := r.db.Query(ctx, query, caseNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list questionnaires by case: %w", err)
	}
	defer rows.Close()

	var out []*models.Questionnaire
	for rows.Next() {
		q, err := scanPgQuestionnaire(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan questionnaire: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questionnaires: %w", err)
	}
	return out, nil
}

func (r *questionnaireRepository) ListIndex(ctx context.Context) ([]models.QuestionnaireSummary, error) {
	query := `SELECT ` + questionnaireColumns + ` FROM questionnaires ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list questionnaires: %w", err)
	}
	defer rows.Close()

	out := make([]models.QuestionnaireSummary, 0)
	for rows.Next() {
		var s models.QuestionnaireSummary
		var ownerEmail *string
		if err := rows.Scan(&s.ID, &s.CaseNumber, &s.Version, &s.Status, &s.CreatedAt, &s.UpdatedAt,
			&s.SubmittedAt, &s.RedoOfID, &s.OwnerUserID, &ownerEmail); err != nil {
			return nil, fmt.Errorf("failed to scan questionnaire summary: %w", err)
		}
		s.OwnerEmail = derefString(ownerEmail)
		s.CreatedAt = s.CreatedAt.UTC()
		s.UpdatedAt = s.UpdatedAt.UTC()
		if s.SubmittedAt != nil {
			t := s.SubmittedAt.UTC()
			s.SubmittedAt = &t
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questionnaires: %w", err)
	}
	return out, nil
}

func (r *questionnaireRepository) Scan(ctx context.Context, status string, fn ScanFunc) error {
	query := `SELECT ` + questionnaireColumns + `, data FROM questionnaires`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to scan questionnaires: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		q, raw, err := scanPgQuestionnaireRaw(rows)
		if err != nil {
			return fmt.Errorf("failed to scan questionnaire: %w", err)
		}
		data, decodeErr := decodeData(raw)
		q.Data = data
		fn(q, decodeErr)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating questionnaires: %w", err)
	}
	return nil
}

func scanPgQuestionnaire(row pgx.Row) (*models.Questionnaire, error) {
	q, raw, err := scanPgQuestionnaireRaw(row)
	if err != nil {
		return nil, err
	}
	if q.Data, err = decodeData(raw); err != nil {
		return nil, err
	}
	return q, nil
}

func scanPgQuestionnaireRaw(row pgx.Row) (*models.Questionnaire, []byte, error) {
	var q models.Questionnaire
	var ownerEmail *string
	var raw []byte
	err := row.Scan(&q.ID, &q.CaseNumber, &q.Version, &q.Status, &q.CreatedAt, &q.UpdatedAt,
		&q.SubmittedAt, &q.RedoOfID, &q.OwnerUserID, &ownerEmail, &raw)
	if err != nil {
		return nil, nil, err
	}
	q.OwnerEmail = derefString(ownerEmail)
	q.CreatedAt = q.CreatedAt.UTC()
	q.UpdatedAt = q.UpdatedAt.UTC()
	if q.SubmittedAt != nil {
		t := q.SubmittedAt.UTC()
		q.SubmittedAt = &t
	}
	return &q, raw, nil
}

// encodeData serialises a questionnaire payload. A nil payload is stored as {}.
func encodeData(data map[string]any) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode questionnaire data: %w", err)
	}
	return b, nil
}

// decodeData parses a stored payload. Empty and null payloads decode to {}.
func decodeData(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode questionnaire data: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

func questionnaireNotFound(id uuid.UUID) error {
	return apperrors.NotFound("questionnaire_not_found", "Questionnaire %s not found", id)
}

func alreadySubmitted() error {
	return apperrors.Conflict("already_submitted", "Questionnaire is already submitted")
}

func versionConflict(q *models.Questionnaire) error {
	return apperrors.Conflict("version_conflict",
		"Version %d of case %s was created concurrently, retry", q.Version, q.CaseNumber)
}
