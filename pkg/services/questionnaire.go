package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/apperrors"
	"github.com/forensic-testing/fts-intake/pkg/auth"
	"github.com/forensic-testing/fts-intake/pkg/jsonutil"
	"github.com/forensic-testing/fts-intake/pkg/metrics"
	"github.com/forensic-testing/fts-intake/pkg/models"
	"github.com/forensic-testing/fts-intake/pkg/repositories"
)

// QuestionnaireService runs the draft/submit lifecycle of questionnaire
// records. Versions are numbered per case number; a submitted record never
// changes again.
type QuestionnaireService interface {
	Create(ctx context.Context, data map[string]any, requestedStatus string, owner *auth.Principal) (*models.Questionnaire, error)
	Update(ctx context.Context, id uuid.UUID, data map[string]any, requestedStatus string) error
	Finalize(ctx context.Context, id uuid.UUID) (*models.Questionnaire, error)
	Redo(ctx context.Context, id uuid.UUID, owner *auth.Principal) (*models.Questionnaire, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.Questionnaire, error)
	List(ctx context.Context) ([]models.QuestionnaireSummary, error)
	// Versions returns every version stored for a case number, oldest first.
	Versions(ctx context.Context, caseNumber string) ([]models.QuestionnaireSummary, error)
}

type questionnaireService struct {
	repo     repositories.QuestionnaireRepository
	recorder metrics.Recorder
	now      func() time.Time
	logger   *zap.Logger
}

// NewQuestionnaireService creates a QuestionnaireService. A nil recorder disables metrics.
func NewQuestionnaireService(repo repositories.QuestionnaireRepository, recorder metrics.Recorder, logger *zap.Logger) QuestionnaireService {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &questionnaireService{
		repo:     repo,
		recorder: recorder,
		now:      now,
		logger:   logger,
	}
}

var _ QuestionnaireService = (*questionnaireService)(nil)

// now returns the current UTC time at the precision both stores keep.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// observe is deferred with a pointer to the named error result so the
// outcome is read when the operation returns.
func (s *questionnaireService) observe(ctx context.Context, op string, start time.Time, errp *error) {
	s.recorder.Observe(ctx, op, *errp == nil, time.Since(start))
}

func missingCaseNumber() error {
	return apperrors.Missing("missing_case_number", "case_number is required")
}

func (s *questionnaireService) Create(ctx context.Context, data map[string]any, requestedStatus string, owner *auth.Principal) (q *models.Questionnaire, err error) {
	defer s.observe(ctx, "questionnaire.create", time.Now(), &err)

	caseNumber := models.CaseNumberFromData(data)
	if caseNumber == "" {
		return nil, missingCaseNumber()
	}

	maxVersion, err := s.repo.MaxVersion(ctx, caseNumber)
	if err != nil {
		return nil, err
	}

	ts := s.now()
	q = &models.Questionnaire{
		ID:         uuid.New(),
		CaseNumber: caseNumber,
		Version:    maxVersion + 1,
		Status:     models.NormalizeStatus(requestedStatus),
		CreatedAt:  ts,
		UpdatedAt:  ts,
		Data:       data,
	}
	if q.Status == models.StatusSubmitted {
		q.SubmittedAt = &ts
	}
	setOwner(q, owner)

	if err = s.repo.Create(ctx, q); err != nil {
		return nil, err
	}

	s.logger.Info("Questionnaire created",
		zap.String("id", q.ID.String()),
		zap.String("case_number", q.CaseNumber),
		zap.Int("version", q.Version),
		zap.String("status", q.Status))
	return q, nil
}

func (s *questionnaireService) Update(ctx context.Context, id uuid.UUID, data map[string]any, requestedStatus string) (err error) {
	defer s.observe(ctx, "questionnaire.update", time.Now(), &err)

	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if q.IsSubmitted() {
		return apperrors.Conflict("already_submitted", "Questionnaire is already submitted")
	}

	caseNumber := models.CaseNumberFromData(data)
	if caseNumber == "" {
		return missingCaseNumber()
	}
	if !models.SameCaseNumber(caseNumber, q.CaseNumber) {
		return apperrors.Validation("case_number_mismatch",
			"case_number cannot change from %s to %s", q.CaseNumber, caseNumber)
	}

	ts := s.now()
	q.Data = data
	q.UpdatedAt = ts
	if models.NormalizeStatus(requestedStatus) == models.StatusSubmitted {
		q.Status = models.StatusSubmitted
		q.SubmittedAt = &ts
	}

	if err = s.repo.Update(ctx, q); err != nil {
		return err
	}

	s.logger.Debug("Questionnaire updated",
		zap.String("id", id.String()),
		zap.String("status", q.Status))
	return nil
}

func (s *questionnaireService) Finalize(ctx context.Context, id uuid.UUID) (q *models.Questionnaire, err error) {
	defer s.observe(ctx, "questionnaire.finalize", time.Now(), &err)

	q, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.IsSubmitted() {
		return nil, apperrors.Conflict("already_submitted", "Questionnaire is already submitted")
	}
	if q.ResolvedCaseNumber() == "" {
		return nil, missingCaseNumber()
	}

	ts := s.now()
	q.Status = models.StatusSubmitted
	q.SubmittedAt = &ts
	q.UpdatedAt = ts

	if err = s.repo.Update(ctx, q); err != nil {
		return nil, err
	}

	s.logger.Info("Questionnaire submitted",
		zap.String("id", q.ID.String()),
		zap.String("case_number", q.CaseNumber),
		zap.Int("version", q.Version))
	return q, nil
}

func (s *questionnaireService) Redo(ctx context.Context, id uuid.UUID, owner *auth.Principal) (q *models.Questionnaire, err error) {
	defer s.observe(ctx, "questionnaire.redo", time.Now(), &err)

	source, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	caseNumber := source.ResolvedCaseNumber()
	if caseNumber == "" {
		return nil, apperrors.Validation("missing_case_number", "Source questionnaire has no case_number")
	}

	maxVersion, err := s.repo.MaxVersion(ctx, caseNumber)
	if err != nil {
		return nil, err
	}

	ts := s.now()
	redoOf := source.ID
	q = &models.Questionnaire{
		ID:         uuid.New(),
		CaseNumber: caseNumber,
		Version:    maxVersion + 1,
		Status:     models.StatusDraft,
		CreatedAt:  ts,
		UpdatedAt:  ts,
		RedoOfID:   &redoOf,
		Data:       jsonutil.Clone(source.Data),
	}
	setOwner(q, owner)

	if err = s.repo.Create(ctx, q); err != nil {
		return nil, err
	}

	s.logger.Info("Questionnaire redone",
		zap.String("id", q.ID.String()),
		zap.String("redo_of_id", source.ID.String()),
		zap.String("case_number", q.CaseNumber),
		zap.Int("version", q.Version))
	return q, nil
}

func (s *questionnaireService) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer s.observe(ctx, "questionnaire.delete", time.Now(), &err)

	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if q.IsSubmitted() {
		return apperrors.Conflict("already_submitted", "Submitted questionnaires cannot be deleted")
	}
	if err = s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Questionnaire deleted", zap.String("id", id.String()))
	return nil
}

func (s *questionnaireService) Get(ctx context.Context, id uuid.UUID) (*models.Questionnaire, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *questionnaireService) List(ctx context.Context) ([]models.QuestionnaireSummary, error) {
	return s.repo.ListIndex(ctx)
}

func (s *questionnaireService) Versions(ctx context.Context, caseNumber string) ([]models.QuestionnaireSummary, error) {
	caseNumber = models.NormalizeCaseNumber(caseNumber)
	if caseNumber == "" {
		return nil, missingCaseNumber()
	}
	records, err := s.repo.ListByCase(ctx, caseNumber)
	if err != nil {
		return nil, err
	}
	out := make([]models.QuestionnaireSummary, 0, len(records))
	for _, q := range records {
		out = append(out, q.Summary())
	}
	return out, nil
}

func setOwner(q *models.Questionnaire, owner *auth.Principal) {
	if owner == nil {
		return
	}
	if owner.ID != uuid.Nil {
		id := owner.ID
		q.OwnerUserID = &id
	}
	q.OwnerEmail = models.NormalizeEmail(owner.Email)
}
