package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edukita/assessment-engine/internal/models"
	"github.com/edukita/assessment-engine/internal/repository"
)

// In-memory fakes for the repository interfaces. Behavior mirrors the gorm
// implementations closely enough for service-level tests, including the
// conditional state transition and keyset pagination.

type fakeAssignmentRepo struct {
	mu          sync.Mutex
	assignments map[uint]models.Assignment
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{assignments: map[uint]models.Assignment{}}
}

func (r *fakeAssignmentRepo) GetByID(_ context.Context, id uint) (models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	assignment, ok := r.assignments[id]
	if !ok {
		return models.Assignment{}, gorm.ErrRecordNotFound
	}
	return assignment, nil
}

func (r *fakeAssignmentRepo) Create(_ context.Context, assignment *models.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if assignment.ID == 0 {
		assignment.ID = uint(len(r.assignments) + 1)
	}
	r.assignments[assignment.ID] = *assignment
	return nil
}

func (r *fakeAssignmentRepo) Update(_ context.Context, assignment *models.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[assignment.ID] = *assignment
	return nil
}

func (r *fakeAssignmentRepo) Archive(_ context.Context, id uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	assignment, ok := r.assignments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	assignment.ArchivedAt = &at
	r.assignments[id] = assignment
	return nil
}

type fakeQuestionRepo struct {
	mu        sync.Mutex
	questions map[uint]models.Question
}

func newFakeQuestionRepo() *fakeQuestionRepo {
	return &fakeQuestionRepo{questions: map[uint]models.Question{}}
}

func (r *fakeQuestionRepo) GetByID(_ context.Context, id uint) (models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	question, ok := r.questions[id]
	if !ok {
		return models.Question{}, gorm.ErrRecordNotFound
	}
	return question, nil
}

func (r *fakeQuestionRepo) ListByAssignment(_ context.Context, assignmentID uint) ([]models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Question
	for _, q := range r.questions {
		if q.AssignmentID == assignmentID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *fakeQuestionRepo) Create(_ context.Context, question *models.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if question.ID == 0 {
		question.ID = uint(len(r.questions) + 1)
	}
	r.questions[question.ID] = *question
	return nil
}

func (r *fakeQuestionRepo) UpdateAnswerKey(_ context.Context, id uint, key datatypes.JSON) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	question, ok := r.questions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	question.AnswerKey = key
	r.questions[id] = question
	return nil
}

type fakeSubmissionRepo struct {
	mu          sync.Mutex
	nextID      uint
	submissions map[uint]models.Submission
	assignments *fakeAssignmentRepo
	clock       func() time.Time
}

func newFakeSubmissionRepo(assignments *fakeAssignmentRepo) *fakeSubmissionRepo {
	return &fakeSubmissionRepo{
		submissions: map[uint]models.Submission{},
		assignments: assignments,
		clock:       time.Now,
	}
}

// withAssignment mimics the gorm repository's Assignment preload.
func (r *fakeSubmissionRepo) withAssignment(submission models.Submission) models.Submission {
	if r.assignments != nil {
		if a, ok := r.assignments.assignments[submission.AssignmentID]; ok {
			submission.Assignment = a
		}
	}
	return submission
}

func (r *fakeSubmissionRepo) GetByID(_ context.Context, id uint) (models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	submission, ok := r.submissions[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return r.withAssignment(submission), nil
}

func (r *fakeSubmissionRepo) ListByIDs(_ context.Context, ids []uint) ([]models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Submission
	for _, id := range ids {
		if submission, ok := r.submissions[id]; ok {
			out = append(out, r.withAssignment(submission))
		}
	}
	return out, nil
}

func (r *fakeSubmissionRepo) Create(_ context.Context, submission *models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	submission.ID = r.nextID
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = r.clock()
	}
	r.submissions[submission.ID] = *submission
	return nil
}

func (r *fakeSubmissionRepo) Update(_ context.Context, submission *models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.submissions[submission.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.submissions[submission.ID] = *submission
	return nil
}

func (r *fakeSubmissionRepo) TransitionState(_ context.Context, id uint, from, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	submission, ok := r.submissions[id]
	if !ok || submission.State != from {
		return false, nil
	}
	submission.State = to
	r.submissions[id] = submission
	return true, nil
}

func (r *fakeSubmissionRepo) CountAttempts(_ context.Context, assignmentID, studentID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, s := range r.submissions {
		if s.AssignmentID == assignmentID && s.StudentID == studentID {
			count++
		}
	}
	return count, nil
}

func (r *fakeSubmissionRepo) LatestAttempt(_ context.Context, assignmentID, studentID uint) (models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest models.Submission
	found := false
	for _, s := range r.submissions {
		if s.AssignmentID != assignmentID || s.StudentID != studentID {
			continue
		}
		if !found || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
			found = true
		}
	}
	if !found {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (r *fakeSubmissionRepo) HasReleased(_ context.Context, assignmentID, studentID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.submissions {
		if s.AssignmentID == assignmentID && s.StudentID == studentID && s.State == models.SubmissionStateReleased {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeSubmissionRepo) UpdateScore(_ context.Context, id uint, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	submission, ok := r.submissions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	submission.Score = &score
	r.submissions[id] = submission
	return nil
}

type fakeAnswerRepo struct {
	mu        sync.Mutex
	nextID    uint
	answers   map[uint]models.Answer
	questions *fakeQuestionRepo
}

func newFakeAnswerRepo(questions *fakeQuestionRepo) *fakeAnswerRepo {
	return &fakeAnswerRepo{answers: map[uint]models.Answer{}, questions: questions}
}

func (r *fakeAnswerRepo) withQuestion(answer models.Answer) models.Answer {
	if r.questions != nil {
		if q, ok := r.questions.questions[answer.QuestionID]; ok {
			answer.Question = q
		}
	}
	return answer
}

func (r *fakeAnswerRepo) ListBySubmission(_ context.Context, submissionID uint) ([]models.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Answer
	for _, a := range r.answers {
		if a.SubmissionID == submissionID {
			out = append(out, r.withQuestion(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeAnswerRepo) ListAutoGradedByQuestion(_ context.Context, questionID, afterID uint, limit int) ([]models.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Answer
	for _, a := range r.answers {
		if a.QuestionID == questionID && a.IsAutoGraded && a.ID > afterID {
			out = append(out, r.withQuestion(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeAnswerRepo) Upsert(_ context.Context, answer *models.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.answers {
		if existing.SubmissionID == answer.SubmissionID && existing.QuestionID == answer.QuestionID {
			existing.Content = answer.Content
			r.answers[id] = existing
			answer.ID = id
			return nil
		}
	}
	r.nextID++
	answer.ID = r.nextID
	r.answers[answer.ID] = *answer
	return nil
}

func (r *fakeAnswerRepo) Update(_ context.Context, answer *models.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.answers[answer.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.answers[answer.ID] = *answer
	return nil
}

func (r *fakeAnswerRepo) UpdateScore(_ context.Context, id uint, score float64, autoGraded bool, gradedBy *uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	answer, ok := r.answers[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	answer.Score = &score
	answer.IsAutoGraded = autoGraded
	answer.GradedBy = gradedBy
	r.answers[id] = answer
	return nil
}

type fakeGradeRepo struct {
	mu     sync.Mutex
	nextID uint
	grades map[uint]models.Grade // keyed by submission id
}

func newFakeGradeRepo() *fakeGradeRepo {
	return &fakeGradeRepo{grades: map[uint]models.Grade{}}
}

func (r *fakeGradeRepo) GetBySubmission(_ context.Context, submissionID uint) (models.Grade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	grade, ok := r.grades[submissionID]
	if !ok {
		return models.Grade{}, gorm.ErrRecordNotFound
	}
	return grade, nil
}

func (r *fakeGradeRepo) Create(_ context.Context, grade *models.Grade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.grades[grade.SubmissionID]; ok {
		return fmt.Errorf("grade already exists for submission %d", grade.SubmissionID)
	}
	r.nextID++
	grade.ID = r.nextID
	r.grades[grade.SubmissionID] = *grade
	return nil
}

func (r *fakeGradeRepo) Update(_ context.Context, grade *models.Grade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.grades[grade.SubmissionID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.grades[grade.SubmissionID] = *grade
	return nil
}

type fakeOverrideRepo struct {
	mu        sync.Mutex
	overrides []models.Override
}

func newFakeOverrideRepo() *fakeOverrideRepo { return &fakeOverrideRepo{} }

func (r *fakeOverrideRepo) Create(_ context.Context, override *models.Override) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	override.ID = uint(len(r.overrides) + 1)
	r.overrides = append(r.overrides, *override)
	return nil
}

func (r *fakeOverrideRepo) ListActive(_ context.Context, assignmentID, studentID uint, reference time.Time) ([]models.Override, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Override
	for _, o := range r.overrides {
		if o.AssignmentID == assignmentID && o.StudentID == studentID && o.Active(reference) {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeAppealRepo struct {
	mu      sync.Mutex
	nextID  uint
	appeals map[uint]models.Appeal
}

func newFakeAppealRepo() *fakeAppealRepo {
	return &fakeAppealRepo{appeals: map[uint]models.Appeal{}}
}

func (r *fakeAppealRepo) GetByID(_ context.Context, id uint) (models.Appeal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appeal, ok := r.appeals[id]
	if !ok {
		return models.Appeal{}, gorm.ErrRecordNotFound
	}
	return appeal, nil
}

func (r *fakeAppealRepo) GetBySubmission(_ context.Context, submissionID uint) (models.Appeal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appeals {
		if a.SubmissionID == submissionID {
			return a, nil
		}
	}
	return models.Appeal{}, gorm.ErrRecordNotFound
}

func (r *fakeAppealRepo) Create(_ context.Context, appeal *models.Appeal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	appeal.ID = r.nextID
	if appeal.Status == "" {
		appeal.Status = models.AppealStatusPending
	}
	r.appeals[appeal.ID] = *appeal
	return nil
}

func (r *fakeAppealRepo) Decide(_ context.Context, appeal *models.Appeal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.appeals[appeal.ID]
	if !ok || current.Status != models.AppealStatusPending {
		return false, nil
	}
	r.appeals[appeal.ID] = *appeal
	return true, nil
}

// recorderStub captures audit entries without a store behind it.
type recorderStub struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (r *recorderStub) Record(_ context.Context, entry AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recorderStub) actions() []models.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// capturePublisher records published events in order.
type capturePublisher struct {
	mu       sync.Mutex
	subjects []string
	events   []interface{}
}

func (p *capturePublisher) Publish(_ context.Context, subject string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.events = append(p.events, event)
	return nil
}

// captureQueue records enqueued jobs without running them.
type captureQueue struct {
	mu       sync.Mutex
	kinds    []string
	payloads []interface{}
}

func (q *captureQueue) Enqueue(_ context.Context, kind string, payload interface{}) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.kinds = append(q.kinds, kind)
	q.payloads = append(q.payloads, payload)
	return fmt.Sprintf("job-%d", len(q.kinds)), nil
}

// flakyAuditLogRepo fails a configured number of Create calls before
// succeeding, for exercising the audit retry path.
type flakyAuditLogRepo struct {
	mu       sync.Mutex
	failures int
	entries  []models.AuditLogEntry
}

func (r *flakyAuditLogRepo) Create(_ context.Context, entry *models.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return fmt.Errorf("store unavailable")
	}
	entry.ID = uint(len(r.entries) + 1)
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *flakyAuditLogRepo) Search(_ context.Context, _ repository.AuditLogFilter) ([]models.AuditLogEntry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]models.AuditLogEntry(nil), r.entries...)
	return out, int64(len(out)), nil
}
