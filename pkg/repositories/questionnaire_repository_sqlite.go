package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forensic-testing/fts-intake/pkg/models"
)

type sqliteQuestionnaireRepository struct {
	db *sql.DB
}

// NewSQLiteQuestionnaireRepository creates a QuestionnaireRepository over a
// SQLite database opened with database.OpenSQLite.
func NewSQLiteQuestionnaireRepository(db *sql.DB) QuestionnaireRepository {
	return &sqliteQuestionnaireRepository{db: db}
}

var _ QuestionnaireRepository = (*sqliteQuestionnaireRepository)(nil)

func (r *sqliteQuestionnaireRepository) Create(ctx context.Context, q *models.Questionnaire) error {
	data, err := encodeData(q.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO questionnaires (` + questionnaireColumns + `, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		q.ID.String(), q.CaseNumber, q.Version, q.Status, formatTime(q.CreatedAt), formatTime(q.UpdatedAt),
		nullTimeText(q.SubmittedAt), nullUUIDText(q.RedoOfID), nullUUIDText(q.OwnerUserID),
		nullString(q.OwnerEmail), string(data))
	if err != nil {
		if isUniqueViolation(err) {
			return versionConflict(q)
		}
		return fmt.Errorf("failed to create questionnaire: %w", err)
	}
	return nil
}

func (r *sqliteQuestionnaireRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Questionnaire, error) {
	query := `SELECT ` + questionnaireColumns + `, data FROM questionnaires WHERE id = ?`

	q, raw, err := scanSQLiteQuestionnaire(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, questionnaireNotFound(id)
		}
		return nil, fmt.Errorf("failed to get questionnaire: %w", err)
	}
	if q.Data, err = decodeData(raw); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *sqliteQuestionnaireRepository) Update(ctx context.Context, q *models.Questionnaire) error {
	data, err := encodeData(q.Data)
	if err != nil {
		return err
	}

	query := `
		UPDATE questionnaires
		SET status = ?, updated_at = ?, submitted_at = ?, data = ?
		WHERE id = ? AND status = 'draft'`

	res, err := r.db.ExecContext(ctx, query,
		q.Status, formatTime(q.UpdatedAt), nullTimeText(q.SubmittedAt), string(data), q.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update questionnaire: %w", err)
	}
	return r.checkDraftAffected(ctx, res, q.ID)
}

func (r *sqliteQuestionnaireRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM questionnaires WHERE id = ? AND status = 'draft'`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete questionnaire: %w", err)
	}
	return r.checkDraftAffected(ctx, res, id)
}

func (r *sqliteQuestionnaireRepository) checkDraftAffected(ctx context.Context, res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM questionnaires WHERE id = ?`, id.String()).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return questionnaireNotFound(id)
		}
		return fmt.Errorf("failed to check questionnaire status: %w", err)
	}
	return alreadySubmitted()
}

func (r *sqliteQuestionnaireRepository) MaxVersion(ctx context.Context, caseNumber string) (int, error) {
	var max int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM questionnaires WHERE case_number = ?`,
		caseNumber).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to get max version: %w", err)
	}
	return max, nil
}

func (r *sqliteQuestionnaireRepository) ListByCase(ctx context.Context, caseNumber string) ([]*models.Questionnaire, error) {
	query := `
		SELECT ` + questionnaireColumns + `, data
		FROM questionnaires
		WHERE case_number = ?
		ORDER BY version ASC`

	rows, err := r.db.QueryContext(ctx, query, caseNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list questionnaires by case: %w", err)
	}
	defer rows.Close()

	var out []*models.Questionnaire
	for rows.Next() {
		q, raw, err := scanSQLiteQuestionnaire(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan questionnaire: %w", err)
		}
		if q.Data, err = decodeData(raw); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questionnaires: %w", err)
	}
	return out, nil
}

func (r *sqliteQuestionnaireRepository) ListIndex(ctx context.Context) ([]models.QuestionnaireSummary, error) {
	query := `SELECT ` + questionnaireColumns + `, NULL FROM questionnaires ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list questionnaires: %w", err)
	}
	defer rows.Close()

	out := make([]models.QuestionnaireSummary, 0)
	for rows.Next() {
		q, _, err := scanSQLiteQuestionnaire(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan questionnaire summary: %w", err)
		}
		out = append(out, q.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questionnaires: %w", err)
	}
	return out, nil
}

func (r *sqliteQuestionnaireRepository) Scan(ctx context.Context, status string, fn ScanFunc) error {
	query := `SELECT ` + questionnaireColumns + `, data FROM questionnaires`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to scan questionnaires: %w", err)
	}
	defer rows.Close()

	// Buffer first: the store has a single connection, and fn may call back into it.
	type scanned struct {
		q   *models.Questionnaire
		raw []byte
	}
	var batch []scanned
	for rows.Next() {
		q, raw, err := scanSQLiteQuestionnaire(rows)
		if err != nil {
			return fmt.Errorf("failed to scan questionnaire: %w", err)
		}
		batch = append(batch, scanned{q: q, raw: raw})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating questionnaires: %w", err)
	}
	rows.Close()

	for _, s := range batch {
		data, decodeErr := decodeData(s.raw)
		s.q.Data = data
		fn(s.q, decodeErr)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteQuestionnaire(row rowScanner) (*models.Questionnaire, []byte, error) {
	var (
		q                     models.Questionnaire
		createdAt, updatedAt  string
		submittedAt           sql.NullString
		redoOfID, ownerUserID sql.NullString
		ownerEmail            sql.NullString
		data                  sql.NullString
	)
	err := row.Scan(&q.ID, &q.CaseNumber, &q.Version, &q.Status, &createdAt, &updatedAt,
		&submittedAt, &redoOfID, &ownerUserID, &ownerEmail, &data)
	if err != nil {
		return nil, nil, err
	}

	if q.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, nil, fmt.Errorf("invalid created_at: %w", err)
	}
	if q.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, nil, fmt.Errorf("invalid updated_at: %w", err)
	}
	if submittedAt.Valid {
		if q.SubmittedAt, err = parseNullTime(&submittedAt.String); err != nil {
			return nil, nil, fmt.Errorf("invalid submitted_at: %w", err)
		}
	}
	if q.RedoOfID, err = parseNullUUID(redoOfID); err != nil {
		return nil, nil, fmt.Errorf("invalid redo_of_id: %w", err)
	}
	if q.OwnerUserID, err = parseNullUUID(ownerUserID); err != nil {
		return nil, nil, fmt.Errorf("invalid owner_user_id: %w", err)
	}
	q.OwnerEmail = ownerEmail.String

	var raw []byte
	if data.Valid {
		raw = []byte(data.String)
	}
	return &q, raw, nil
}

func nullTimeText(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func nullUUIDText(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseNullUUID(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
