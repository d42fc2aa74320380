package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/edukita/assessment-engine/internal/dto"
	"github.com/edukita/assessment-engine/internal/models"
	"github.com/edukita/assessment-engine/internal/observability"
	"github.com/edukita/assessment-engine/internal/repository"
	"github.com/edukita/assessment-engine/internal/scoring"
)

// GradingService aggregates per-question scores into submission scores and
// orchestrates auto- versus manual-grading routing.
type GradingService interface {
	AutoGrade(ctx context.Context, submissionID uint) (models.Submission, error)
	ManualGrade(ctx context.Context, submissionID uint, req dto.ManualGradeRequest, actor Actor) (models.Submission, error)
	SaveDraft(ctx context.Context, submissionID uint, req dto.DraftGradeRequest, actor Actor) error
	OverrideGrade(ctx context.Context, submissionID uint, req dto.OverrideGradeRequest, actor Actor) (models.Grade, error)
	ReleaseGrade(ctx context.Context, submissionID uint, instructor Actor) (models.Grade, error)
}

type gradingService struct {
	submissions repository.SubmissionRepository
	answers     repository.AnswerRepository
	grades      repository.GradeRepository
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	audit       AuditRecorder
	events      EventPublisher
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewGradingService constructs the grading engine.
func NewGradingService(
	submissions repository.SubmissionRepository,
	answers repository.AnswerRepository,
	grades repository.GradeRepository,
	validate *validator.Validate,
	audit AuditRecorder,
	events EventPublisher,
	logger zerolog.Logger,
) GradingService {
	return &gradingService{
		submissions: submissions,
		answers:     answers,
		grades:      grades,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		audit:       audit,
		events:      events,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		tracer:      otel.Tracer("github.com/edukita/assessment-engine/internal/service/grading"),
		now:         time.Now,
	}
}

// AggregateScore computes the weighted submission score on a 0-100 scale.
// Answers without a score are excluded from both sums. The second return is
// false when no answer contributed. A question with max score zero or a
// non-positive weight is rejected rather than guessed around.
func AggregateScore(answers []models.Answer) (float64, bool, error) {
	var weighted, weights float64
	for _, answer := range answers {
		if answer.Score == nil {
			continue
		}
		question := answer.Question
		if question.MaxScore <= 0 {
			return 0, false, ErrZeroMaxScore
		}
		if question.Weight <= 0 {
			return 0, false, fmt.Errorf("question %d has non-positive weight", question.ID)
		}
		normalized := *answer.Score / question.MaxScore * 100
		weighted += normalized * question.Weight
		weights += question.Weight
	}

	if weights == 0 {
		return 0, false, nil
	}

	return math.Round(weighted/weights*100) / 100, true, nil
}

func (s *gradingService) AutoGrade(ctx context.Context, submissionID uint) (models.Submission, error) {
	ctx, span := s.tracer.Start(ctx, "grading.auto", trace.WithAttributes(
		attribute.Int64("submission_id", int64(submissionID)),
	))
	defer span.End()

	started := s.now()
	defer func() {
		observability.GradingDuration().Observe(time.Since(started).Seconds())
	}()

	submission, err := s.getSubmission(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		return models.Submission{}, err
	}

	if submission.State != models.SubmissionStateSubmitted {
		span.SetStatus(codes.Error, "not_submitted")
		return models.Submission{}, ErrInvalidTransition
	}

	answers, err := s.answers.ListBySubmission(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		return models.Submission{}, err
	}

	allAuto := true
	for i := range answers {
		question := answers[i].Question
		if !question.Kind.AutoGradable() {
			allAuto = false
			continue
		}

		strategy, err := scoring.ForKind(question.Kind)
		if err != nil {
			span.RecordError(err)
			return models.Submission{}, err
		}

		result, err := strategy.Score(question, answers[i].Content)
		if err != nil {
			span.RecordError(err)
			return models.Submission{}, err
		}

		if err := s.answers.UpdateScore(ctx, answers[i].ID, result.Points, true, nil); err != nil {
			span.RecordError(err)
			return models.Submission{}, err
		}
		points := result.Points
		answers[i].Score = &points
		answers[i].IsAutoGraded = true
	}

	target := models.SubmissionStatePendingManual
	if allAuto {
		target = models.SubmissionStateAutoGraded
	}

	ok, err := s.submissions.TransitionState(ctx, submissionID, models.SubmissionStateSubmitted, target)
	if err != nil {
		span.RecordError(err)
		return models.Submission{}, err
	}
	if !ok {
		span.SetStatus(codes.Error, "transition_lost")
		return models.Submission{}, ErrInvalidTransition
	}
	submission.State = target

	score, hasScore, err := AggregateScore(answers)
	if err != nil {
		span.RecordError(err)
		return models.Submission{}, err
	}
	if hasScore {
		if err := s.submissions.UpdateScore(ctx, submissionID, score); err != nil {
			span.RecordError(err)
			return models.Submission{}, err
		}
		submission.Score = &score
	}

	if allAuto {
		if err := s.writeGrade(ctx, submissionID, score, "", models.GradeSourceAuto, nil, false); err != nil {
			span.RecordError(err)
			return models.Submission{}, err
		}
		s.publish(ctx, SubjectSubmissionGraded, SubmissionGraded{SubmissionID: submissionID, Score: score})
	}

	span.SetAttributes(
		attribute.Bool("all_auto", allAuto),
		attribute.String("state", submission.State),
	)
	s.logger.Info().
		Uint("submission_id", submissionID).
		Bool("all_auto", allAuto).
		Msg("auto grading pass completed")

	return submission, nil
}

func (s *gradingService) ManualGrade(ctx context.Context, submissionID uint, req dto.ManualGradeRequest, actor Actor) (models.Submission, error) {
	ctx, span := s.tracer.Start(ctx, "grading.manual", trace.WithAttributes(
		attribute.Int64("submission_id", int64(submissionID)),
		attribute.Int64("actor_id", int64(actor.ID)),
	))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.RecordError(err)
		return models.Submission{}, err
	}

	submission, err := s.getSubmission(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		return models.Submission{}, err
	}

	if !models.CanTransition(submission.State, models.SubmissionStateGraded) {
		span.SetStatus(codes.Error, "invalid_state")
		return models.Submission{}, ErrInvalidTransition
	}

	grade, err := s.grades.GetBySubmission(ctx, submissionID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		return models.Submission{}, err
	}
	if err == nil && grade.IsOverride {
		span.SetStatus(codes.Error, "grade_overridden")
		return models.Submission{}, ErrGradeOverridden
	}

	answers, err := s.answers.ListBySubmission(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		return models.Submission{}, err
	}

	if err := s.applyScores(ctx, answers, req.Scores, actor); err != nil {
		span.RecordError(err)
		return models.Submission{}, err
	}

	score, hasScore, err := AggregateScore(answers)
	if err != nil {
		span.RecordError(err)
		return models.Submission{}, err
	}
	if !hasScore {
		return models.Submission{}, fmt.Errorf("no scored answers on submission %d", submissionID)
	}

	ok, err := s.submissions.TransitionState(ctx, submissionID, submission.State, models.SubmissionStateGraded)
	if err != nil {
		span.RecordError(err)
		return models.Submission{}, err
	}
	if !ok {
		span.SetStatus(codes.Error, "transition_lost")
		return models.Submission{}, ErrInvalidTransition
	}
	submission.State = models.SubmissionStateGraded

	if err := s.submissions.UpdateScore(ctx, submissionID, score); err != nil {
		span.RecordError(err)
		return models.Submission{}, err
	}
	submission.Score = &score

	feedback := strings.TrimSpace(s.sanitizer.Sanitize(req.Feedback))
	gradedBy := actor.ID
	if err := s.writeGrade(ctx, submissionID, score, feedback, models.GradeSourceManual, &gradedBy, false); err != nil {
		span.RecordError(err)
		return models.Submission{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, AuditEntry{
			Action:       models.AuditActionGrading,
			Actor:        actor,
			SubjectType:  "submission",
			SubjectID:    &submissionID,
			AssignmentID: &submission.AssignmentID,
			StudentID:    &submission.StudentID,
			Context: map[string]interface{}{
				"score":  score,
				"manual": true,
			},
		})
	}

	s.publish(ctx, SubjectSubmissionGraded, SubmissionGraded{SubmissionID: submissionID, Score: score, Feedback: feedback})

	span.SetAttributes(attribute.Float64("score", score))

	return submission, nil
}

func (s *gradingService) SaveDraft(ctx context.Context, submissionID uint, req dto.DraftGradeRequest, actor Actor) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	submission, err := s.getSubmission(ctx, submissionID)
	if err != nil {
		return err
	}

	if submission.IsTerminal() {
		return ErrInvalidTransition
	}

	answers, err := s.answers.ListBySubmission(ctx, submissionID)
	if err != nil {
		return err
	}

	if err := s.applyScores(ctx, answers, req.Scores, actor); err != nil {
		return err
	}

	score, _, err := AggregateScore(answers)
	if err != nil {
		return err
	}

	feedback := strings.TrimSpace(s.sanitizer.Sanitize(req.Feedback))
	gradedBy := actor.ID
	if err := s.writeGrade(ctx, submissionID, score, feedback, models.GradeSourceManual, &gradedBy, true); err != nil {
		return err
	}

	s.logger.Info().Uint("submission_id", submissionID).Msg("draft grade saved")

	return nil
}

func (s *gradingService) OverrideGrade(ctx context.Context, submissionID uint, req dto.OverrideGradeRequest, actor Actor) (models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.Grade{}, err
	}
	if strings.TrimSpace(req.Reason) == "" {
		return models.Grade{}, ErrReasonRequired
	}

	submission, err := s.getSubmission(ctx, submissionID)
	if err != nil {
		return models.Grade{}, err
	}

	grade, err := s.grades.GetBySubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Grade{}, ErrGradeNotFound
		}
		return models.Grade{}, err
	}

	// The pre-override score is preserved exactly once.
	if !grade.IsOverride {
		original := grade.Score
		grade.OriginalScore = &original
		grade.IsOverride = true
	}

	grade.Score = req.Score
	grade.OverrideReason = strings.TrimSpace(s.sanitizer.Sanitize(req.Reason))
	grade.SourceKind = models.GradeSourceOverride
	gradedBy := actor.ID
	grade.GradedBy = &gradedBy

	if err := s.grades.Update(ctx, &grade); err != nil {
		return models.Grade{}, err
	}

	if err := s.submissions.UpdateScore(ctx, submissionID, req.Score); err != nil {
		return models.Grade{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, AuditEntry{
			Action:       models.AuditActionGradeOverride,
			Actor:        actor,
			SubjectType:  "grade",
			SubjectID:    &grade.ID,
			AssignmentID: &submission.AssignmentID,
			StudentID:    &submission.StudentID,
			Context: map[string]interface{}{
				"score":  req.Score,
				"reason": grade.OverrideReason,
			},
		})
	}

	s.logger.Info().
		Uint("submission_id", submissionID).
		Float64("score", req.Score).
		Msg("grade overridden")

	return grade, nil
}

func (s *gradingService) ReleaseGrade(ctx context.Context, submissionID uint, instructor Actor) (models.Grade, error) {
	grade, err := s.releaseOne(ctx, submissionID)
	if err != nil {
		return models.Grade{}, err
	}

	s.publish(ctx, SubjectGradesReleased, GradesReleased{SubmissionIDs: []uint{submissionID}, InstructorID: instructor.ID})

	if s.audit != nil {
		_ = s.audit.Record(ctx, AuditEntry{
			Action:      models.AuditActionStateTransition,
			Actor:       instructor,
			SubjectType: "submission",
			SubjectID:   &submissionID,
			Context: map[string]interface{}{
				"to": models.SubmissionStateReleased,
			},
		})
	}

	return grade, nil
}

func (s *gradingService) releaseOne(ctx context.Context, submissionID uint) (models.Grade, error) {
	return finalizeRelease(ctx, s.submissions, s.grades, submissionID, s.now)
}

// finalizeRelease makes one finalized grade visible to the student. Shared
// between single release and the bulk coordinator, which emits its own
// aggregate event.
func finalizeRelease(
	ctx context.Context,
	submissions repository.SubmissionRepository,
	grades repository.GradeRepository,
	submissionID uint,
	now func() time.Time,
) (models.Grade, error) {
	submission, err := submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Grade{}, ErrSubmissionNotFound
		}
		return models.Grade{}, err
	}

	grade, err := grades.GetBySubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Grade{}, ErrGradeNotFound
		}
		return models.Grade{}, err
	}

	if grade.IsDraft {
		return models.Grade{}, ErrDraftGrade
	}

	if grade.IsReleased() {
		return grade, nil
	}

	if !models.CanTransition(submission.State, models.SubmissionStateReleased) {
		return models.Grade{}, ErrInvalidTransition
	}

	ok, err := submissions.TransitionState(ctx, submissionID, submission.State, models.SubmissionStateReleased)
	if err != nil {
		return models.Grade{}, err
	}
	if !ok {
		return models.Grade{}, ErrInvalidTransition
	}

	releasedAt := now()
	grade.ReleasedAt = &releasedAt
	if err := grades.Update(ctx, &grade); err != nil {
		return models.Grade{}, err
	}

	observability.GradesReleased().Inc()

	return grade, nil
}

func (s *gradingService) applyScores(ctx context.Context, answers []models.Answer, scores map[uint]float64, actor Actor) error {
	byQuestion := make(map[uint]*models.Answer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	for questionID, score := range scores {
		answer, ok := byQuestion[questionID]
		if !ok {
			return fmt.Errorf("no answer for question %d on this submission", questionID)
		}
		question := answer.Question
		if question.MaxScore <= 0 {
			return ErrZeroMaxScore
		}
		if score < 0 || score > question.MaxScore {
			return fmt.Errorf("score %.2f out of range [0, %.2f] for question %d", score, question.MaxScore, questionID)
		}

		gradedBy := actor.ID
		if err := s.answers.UpdateScore(ctx, answer.ID, score, false, &gradedBy); err != nil {
			return err
		}
		value := score
		answer.Score = &value
		answer.IsAutoGraded = false
	}

	return nil
}

func (s *gradingService) writeGrade(ctx context.Context, submissionID uint, score float64, feedback, source string, gradedBy *uint, draft bool) error {
	grade, err := s.grades.GetBySubmission(ctx, submissionID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		grade = models.Grade{SubmissionID: submissionID}
	}

	// An instructor override is never silently replaced by a later pass.
	if grade.IsOverride {
		return nil
	}

	grade.Score = score
	grade.SourceKind = source
	grade.IsDraft = draft
	grade.GradedBy = gradedBy
	if feedback != "" {
		grade.Feedback = feedback
	}

	if grade.ID == 0 {
		return s.grades.Create(ctx, &grade)
	}

	return s.grades.Update(ctx, &grade)
}

func (s *gradingService) getSubmission(ctx context.Context, id uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}

	return submission, nil
}

func (s *gradingService) publish(ctx context.Context, subject string, event interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, subject, event); err != nil {
		s.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish domain event")
	}
}
