package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edukita/assessment-engine/internal/models"
	"github.com/edukita/assessment-engine/internal/repository"
)

// questionSnapshot is the immutable record of what was presented, in order.
type questionSnapshot struct {
	QuestionIDs []uint `json:"question_ids"`
	Randomized  bool   `json:"randomized"`
}

// LifecycleService governs a submission's progress from creation to release.
type LifecycleService interface {
	Start(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	SaveAnswer(ctx context.Context, submissionID, questionID uint, content []byte) error
	Submit(ctx context.Context, submissionID uint) (models.Submission, error)
}

type lifecycleService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	answers     repository.AnswerRepository
	overrides   OverrideService
	grading     GradingService
	audit       AuditRecorder
	logger      zerolog.Logger
	now         func() time.Time
}

// NewLifecycleService constructs the submission lifecycle.
func NewLifecycleService(
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	answers repository.AnswerRepository,
	overrides OverrideService,
	grading GradingService,
	audit AuditRecorder,
	logger zerolog.Logger,
) LifecycleService {
	return &lifecycleService{
		assignments: assignments,
		submissions: submissions,
		answers:     answers,
		overrides:   overrides,
		grading:     grading,
		audit:       audit,
		logger:      logger.With().Str("component", "lifecycle_service").Logger(),
		now:         time.Now,
	}
}

// Start creates a new attempt after enforcing prerequisites, the attempt
// ceiling, the cooldown window, and the deadline, each folded with any
// active override.
func (s *lifecycleService) Start(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrAssignmentNotFound
		}
		return models.Submission{}, err
	}

	if assignment.IsArchived() {
		return models.Submission{}, ErrAssignmentArchived
	}

	now := s.now()

	prereq, err := s.overrides.CheckPrerequisites(ctx, assignmentID, studentID)
	if err != nil {
		return models.Submission{}, err
	}
	if !prereq.Satisfied {
		return models.Submission{}, NotEligible("prerequisites not met: %v", prereq.Missing)
	}

	attempts, err := s.submissions.CountAttempts(ctx, assignmentID, studentID)
	if err != nil {
		return models.Submission{}, err
	}

	allowed := assignment.MaxAttempts
	attemptsOverride, err := s.overrides.HasActiveOverride(ctx, assignmentID, studentID, models.OverrideTypeAttempts)
	if err != nil {
		return models.Submission{}, err
	}
	if attemptsOverride != nil {
		var value models.OverrideValue
		if err := json.Unmarshal(attemptsOverride.Value, &value); err != nil {
			return models.Submission{}, fmt.Errorf("malformed attempts override %d: %w", attemptsOverride.ID, err)
		}
		allowed += value.AdditionalAttempts
	}
	if assignment.MaxAttempts > 0 && attempts >= int64(allowed) {
		return models.Submission{}, NotEligible("attempt limit of %d reached", allowed)
	}

	// An attempts override also waives the cooldown between attempts.
	if attemptsOverride == nil && attempts > 0 && assignment.Cooldown() > 0 {
		latest, err := s.submissions.LatestAttempt(ctx, assignmentID, studentID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, err
		}
		if err == nil {
			nextAllowed := latest.CreatedAt.Add(assignment.Cooldown())
			if now.Before(nextAllowed) {
				return models.Submission{}, NotEligible("cooldown active until %s", nextAllowed.Format(time.RFC3339))
			}
		}
	}

	if assignment.IsPastDue(now) {
		extended, err := s.deadlineExtension(ctx, assignmentID, studentID)
		if err != nil {
			return models.Submission{}, err
		}
		if extended == nil || now.After(*extended) {
			return models.Submission{}, NotEligible("deadline passed at %s", assignment.EffectiveDeadline().Format(time.RFC3339))
		}
	}

	snapshot, err := s.snapshotQuestions(assignment)
	if err != nil {
		return models.Submission{}, err
	}

	submission := models.Submission{
		AssignmentID:  assignmentID,
		StudentID:     studentID,
		AttemptNumber: int(attempts) + 1,
		QuestionSet:   snapshot,
		State:         models.SubmissionStateInProgress,
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		return models.Submission{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, AuditEntry{
			Action:       models.AuditActionSubmissionCreated,
			Actor:        Actor{ID: studentID, Type: "student"},
			SubjectType:  "submission",
			SubjectID:    &submission.ID,
			AssignmentID: &assignmentID,
			StudentID:    &studentID,
			Context: map[string]interface{}{
				"attempt_number": submission.AttemptNumber,
			},
		})
	}

	s.logger.Info().
		Uint("assignment_id", assignmentID).
		Uint("student_id", studentID).
		Int("attempt", submission.AttemptNumber).
		Msg("submission started")

	return submission, nil
}

func (s *lifecycleService) SaveAnswer(ctx context.Context, submissionID, questionID uint, content []byte) error {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	if submission.State != models.SubmissionStateInProgress {
		return ErrInvalidTransition
	}

	var snapshot questionSnapshot
	if err := json.Unmarshal(submission.QuestionSet, &snapshot); err != nil {
		return fmt.Errorf("malformed question snapshot on submission %d: %w", submissionID, err)
	}
	if !containsID(snapshot.QuestionIDs, questionID) {
		return fmt.Errorf("question %d is not part of submission %d", questionID, submissionID)
	}

	answer := models.Answer{
		SubmissionID: submissionID,
		QuestionID:   questionID,
		Content:      content,
	}

	return s.answers.Upsert(ctx, &answer)
}

// Submit moves the submission to submitted and triggers the grading pass.
// A late submit without a deadline override marks the submission as rejected
// for lateness, which makes it appeal-eligible.
func (s *lifecycleService) Submit(ctx context.Context, submissionID uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}

	if submission.State != models.SubmissionStateInProgress {
		return models.Submission{}, ErrInvalidTransition
	}

	now := s.now()
	if submission.Assignment.IsPastDue(now) {
		extended, err := s.deadlineExtension(ctx, submission.AssignmentID, submission.StudentID)
		if err != nil {
			return models.Submission{}, err
		}
		if extended == nil || now.After(*extended) {
			submission.LateRejectedAt = &now
			if err := s.submissions.Update(ctx, &submission); err != nil {
				return models.Submission{}, err
			}
			return models.Submission{}, NotEligible("submitted after deadline; an appeal may be filed")
		}
	}

	var snapshot questionSnapshot
	if err := json.Unmarshal(submission.QuestionSet, &snapshot); err != nil {
		return models.Submission{}, fmt.Errorf("malformed question snapshot on submission %d: %w", submissionID, err)
	}

	answers, err := s.answers.ListBySubmission(ctx, submissionID)
	if err != nil {
		return models.Submission{}, err
	}
	answered := make(map[uint]struct{}, len(answers))
	for _, a := range answers {
		answered[a.QuestionID] = struct{}{}
	}
	var missing []uint
	for _, id := range snapshot.QuestionIDs {
		if _, ok := answered[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return models.Submission{}, fmt.Errorf("%w: questions %v", ErrMissingAnswers, missing)
	}

	ok, err := s.submissions.TransitionState(ctx, submissionID, models.SubmissionStateInProgress, models.SubmissionStateSubmitted)
	if err != nil {
		return models.Submission{}, err
	}
	if !ok {
		return models.Submission{}, ErrInvalidTransition
	}
	submission.State = models.SubmissionStateSubmitted
	submission.SubmittedAt = &now
	if err := s.submissions.Update(ctx, &submission); err != nil {
		return models.Submission{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, AuditEntry{
			Action:       models.AuditActionStateTransition,
			Actor:        Actor{ID: submission.StudentID, Type: "student"},
			SubjectType:  "submission",
			SubjectID:    &submissionID,
			AssignmentID: &submission.AssignmentID,
			StudentID:    &submission.StudentID,
			Context: map[string]interface{}{
				"from": models.SubmissionStateInProgress,
				"to":   models.SubmissionStateSubmitted,
			},
		})
	}

	return s.grading.AutoGrade(ctx, submissionID)
}

func (s *lifecycleService) deadlineExtension(ctx context.Context, assignmentID, studentID uint) (*time.Time, error) {
	override, err := s.overrides.HasActiveOverride(ctx, assignmentID, studentID, models.OverrideTypeDeadline)
	if err != nil {
		return nil, err
	}
	if override == nil {
		return nil, nil
	}

	var value models.OverrideValue
	if err := json.Unmarshal(override.Value, &value); err != nil {
		return nil, fmt.Errorf("malformed deadline override %d: %w", override.ID, err)
	}

	return value.ExtendedDeadline, nil
}

func (s *lifecycleService) snapshotQuestions(assignment models.Assignment) (datatypes.JSON, error) {
	if len(assignment.Questions) == 0 {
		return nil, fmt.Errorf("assignment %d has no questions", assignment.ID)
	}

	ids := make([]uint, 0, len(assignment.Questions))
	for _, q := range assignment.Questions {
		if strings.TrimSpace(string(q.Kind)) == "" || !q.Kind.Valid() {
			return nil, fmt.Errorf("question %d has invalid kind %q", q.ID, q.Kind)
		}
		ids = append(ids, q.ID)
	}

	if assignment.RandomizeQuestions {
		rand.Shuffle(len(ids), func(i, j int) {
			ids[i], ids[j] = ids[j], ids[i]
		})
	}

	payload, err := json.Marshal(questionSnapshot{QuestionIDs: ids, Randomized: assignment.RandomizeQuestions})
	if err != nil {
		return nil, err
	}

	return payload, nil
}

func containsID(ids []uint, target uint) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}
