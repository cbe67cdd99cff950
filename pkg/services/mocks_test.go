package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forensic-testing/fts-intake/pkg/apperrors"
	"github.com/forensic-testing/fts-intake/pkg/jsonutil"
	"github.com/forensic-testing/fts-intake/pkg/models"
	"github.com/forensic-testing/fts-intake/pkg/repositories"
)

// memQuestionnaireRepo is an in-memory QuestionnaireRepository that keeps
// insertion order and enforces the (case_number, version) uniqueness.
type memQuestionnaireRepo struct {
	mu      sync.Mutex
	order   []uuid.UUID
	records map[uuid.UUID]*models.Questionnaire
	// broken ids fail to decode during Scan.
	broken map[uuid.UUID]bool

	createErr error
	scanErr   error
}

func newMemQuestionnaireRepo() *memQuestionnaireRepo {
	return &memQuestionnaireRepo{
		records: map[uuid.UUID]*models.Questionnaire{},
		broken:  map[uuid.UUID]bool{},
	}
}

var _ repositories.QuestionnaireRepository = (*memQuestionnaireRepo)(nil)

func copyRecord(q *models.Questionnaire) *models.Questionnaire {
	c := *q
	c.Data = jsonutil.Clone(q.Data)
	if c.Data == nil {
		c.Data = map[string]any{}
	}
	return &c
}

func (m *memQuestionnaireRepo) Create(ctx context.Context, q *models.Questionnaire) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.records {
		if existing.CaseNumber == q.CaseNumber && existing.Version == q.Version {
			return apperrors.Conflict("version_conflict", "duplicate version")
		}
	}
	m.records[q.ID] = copyRecord(q)
	m.order = append(m.order, q.ID)
	return nil
}

func (m *memQuestionnaireRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Questionnaire, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.records[id]
	if !ok {
		return nil, apperrors.NotFound("questionnaire_not_found", "not found")
	}
	return copyRecord(q), nil
}

func (m *memQuestionnaireRepo) Update(ctx context.Context, q *models.Questionnaire) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.records[q.ID]
	if !ok {
		return apperrors.NotFound("questionnaire_not_found", "not found")
	}
	if existing.Status != models.StatusDraft {
		return apperrors.Conflict("already_submitted", "submitted")
	}
	existing.Status = q.Status
	existing.UpdatedAt = q.UpdatedAt
	existing.SubmittedAt = q.SubmittedAt
	existing.Data = jsonutil.Clone(q.Data)
	return nil
}

func (m *memQuestionnaireRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.records[id]
	if !ok {
		return apperrors.NotFound("questionnaire_not_found", "not found")
	}
	if existing.Status != models.StatusDraft {
		return apperrors.Conflict("already_submitted", "submitted")
	}
	delete(m.records, id)
	for _, q := range m.records {
		if q.RedoOfID != nil && *q.RedoOfID == id {
			q.RedoOfID = nil
		}
	}
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memQuestionnaireRepo) MaxVersion(ctx context.Context, caseNumber string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, q := range m.records {
		if q.CaseNumber == caseNumber && q.Version > max {
			max = q.Version
		}
	}
	return max, nil
}

func (m *memQuestionnaireRepo) ListByCase(ctx context.Context, caseNumber string) ([]*models.Questionnaire, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Questionnaire
	for _, id := range m.order {
		if q := m.records[id]; q.CaseNumber == caseNumber {
			out = append(out, copyRecord(q))
		}
	}
	return out, nil
}

func (m *memQuestionnaireRepo) ListIndex(ctx context.Context) ([]models.QuestionnaireSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.QuestionnaireSummary, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id].Summary())
	}
	return out, nil
}

func (m *memQuestionnaireRepo) Scan(ctx context.Context, status string, fn repositories.ScanFunc) error {
	if m.scanErr != nil {
		return m.scanErr
	}
	m.mu.Lock()
	var batch []*models.Questionnaire
	var broken []bool
	for _, id := range m.order {
		q := m.records[id]
		if status != "" && q.Status != status {
			continue
		}
		batch = append(batch, copyRecord(q))
		broken = append(broken, m.broken[id])
	}
	m.mu.Unlock()

	for i, q := range batch {
		if broken[i] {
			q.Data = nil
			fn(q, apperrors.Validation("bad_data", "failed to decode questionnaire data"))
			continue
		}
		fn(q, nil)
	}
	return nil
}

// put stores a record directly, bypassing the service.
func (m *memQuestionnaireRepo) put(q *models.Questionnaire) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[q.ID] = copyRecord(q)
	m.order = append(m.order, q.ID)
}

// memUserRepo is an in-memory UserRepository.
type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User

	listErr error
}

func newMemUserRepo(users ...*models.User) *memUserRepo {
	m := &memUserRepo{users: map[uuid.UUID]*models.User{}}
	for _, u := range users {
		c := *u
		m.users[u.ID] = &c
	}
	return m
}

var _ repositories.UserRepository = (*memUserRepo)(nil)

func (m *memUserRepo) List(ctx context.Context) ([]*models.User, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		c := *u
		out = append(out, &c)
	}
	// newest first
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.After(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (m *memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.NotFound("user_not_found", "User not found")
	}
	c := *u
	return &c, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == models.NormalizeEmail(email) {
			c := *u
			return &c, nil
		}
	}
	return nil, apperrors.NotFound("user_not_found", "User not found")
}

func (m *memUserRepo) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return apperrors.Conflict("email_taken", "exists")
		}
	}
	c := *user
	m.users[user.ID] = &c
	return nil
}

func (m *memUserRepo) UpdateRole(ctx context.Context, id uuid.UUID, role string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperrors.NotFound("user_not_found", "User not found")
	}
	u.Role = role
	u.UpdatedAt = updatedAt
	return nil
}

func (m *memUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperrors.NotFound("user_not_found", "User not found")
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = updatedAt
	return nil
}

func (m *memUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return apperrors.NotFound("user_not_found", "User not found")
	}
	delete(m.users, id)
	return nil
}

// plainHasher stores passwords with a marker prefix so tests stay fast.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Verify(hash, password string) bool { return hash == "hashed:"+password }

// recordingRecorder captures metric observations.
type recordingRecorder struct {
	mu       sync.Mutex
	ops      map[string][]bool
	exported map[string]int
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{ops: map[string][]bool{}, exported: map[string]int{}}
}

func (r *recordingRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op] = append(r.ops[op], success)
}

func (r *recordingRecorder) AddExported(format string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exported[format] += n
}

// fixedClock returns successive instants one second apart.
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Second)
		return t
	}
}
