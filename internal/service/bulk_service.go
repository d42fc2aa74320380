package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/edukita/assessment-engine/internal/dto"
	"github.com/edukita/assessment-engine/internal/models"
	"github.com/edukita/assessment-engine/internal/observability"
	"github.com/edukita/assessment-engine/internal/repository"
)

// BulkService coordinates multi-submission operations. Every operation comes
// in a validate-only and an execute flavour; execution is per-item, so one
// bad submission never rolls back its neighbours.
type BulkService interface {
	ValidateRelease(ctx context.Context, submissionIDs []uint) (dto.BulkValidation, error)
	ExecuteRelease(ctx context.Context, submissionIDs []uint, instructor Actor) (dto.BulkResult, error)
	ValidateFeedback(ctx context.Context, items []dto.BulkFeedbackItem) (dto.BulkValidation, error)
	ExecuteFeedback(ctx context.Context, items []dto.BulkFeedbackItem, instructor Actor) (dto.BulkResult, error)
}

type bulkService struct {
	submissions repository.SubmissionRepository
	grades      repository.GradeRepository
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	audit       AuditRecorder
	events      EventPublisher
	logger      zerolog.Logger
	now         func() time.Time
}

// NewBulkService constructs the coordinator.
func NewBulkService(
	submissions repository.SubmissionRepository,
	grades repository.GradeRepository,
	v *validator.Validate,
	audit AuditRecorder,
	events EventPublisher,
	logger zerolog.Logger,
) BulkService {
	return &bulkService{
		submissions: submissions,
		grades:      grades,
		validator:   v,
		sanitizer:   bluemonday.StrictPolicy(),
		audit:       audit,
		events:      events,
		logger:      logger.With().Str("component", "bulk_service").Logger(),
		now:         time.Now,
	}
}

// ValidateRelease checks every submission without mutating anything, so an
// instructor can preview exactly which items an execution would reject.
func (s *bulkService) ValidateRelease(ctx context.Context, submissionIDs []uint) (dto.BulkValidation, error) {
	validation := dto.BulkValidation{Valid: true}
	if len(submissionIDs) == 0 {
		validation.Valid = false
		validation.Errors = append(validation.Errors, "no submissions given")
		return validation, nil
	}

	found, err := s.submissions.ListByIDs(ctx, submissionIDs)
	if err != nil {
		return dto.BulkValidation{}, err
	}
	byID := make(map[uint]models.Submission, len(found))
	for _, sub := range found {
		byID[sub.ID] = sub
	}

	for _, id := range submissionIDs {
		if reason := s.releaseProblem(ctx, byID, id); reason != "" {
			validation.Valid = false
			validation.Errors = append(validation.Errors, reason)
		}
	}

	return validation, nil
}

func (s *bulkService) releaseProblem(ctx context.Context, byID map[uint]models.Submission, id uint) string {
	submission, ok := byID[id]
	if !ok {
		return fmt.Sprintf("submission %d: not found", id)
	}
	if submission.State == models.SubmissionStateReleased {
		return ""
	}
	if !models.CanTransition(submission.State, models.SubmissionStateReleased) {
		return fmt.Sprintf("submission %d: cannot release from state %s", id, submission.State)
	}

	grade, err := s.grades.GetBySubmission(ctx, id)
	if err != nil {
		return fmt.Sprintf("submission %d: no grade on record", id)
	}
	if grade.IsDraft {
		return fmt.Sprintf("submission %d: grade is still a draft", id)
	}

	return ""
}

// ExecuteRelease releases all grades it can and reports the rest. Successes
// are announced in a single aggregate event rather than one per submission.
func (s *bulkService) ExecuteRelease(ctx context.Context, submissionIDs []uint, instructor Actor) (dto.BulkResult, error) {
	result := dto.BulkResult{}
	released := make([]uint, 0, len(submissionIDs))

	for _, id := range submissionIDs {
		if _, err := finalizeRelease(ctx, s.submissions, s.grades, id, s.now); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("submission %d: %v", id, err))
			observability.BulkItems().WithLabelValues("release", "failed").Inc()
			continue
		}
		result.Success++
		released = append(released, id)
		observability.BulkItems().WithLabelValues("release", "ok").Inc()
	}

	if len(released) > 0 {
		if s.events != nil {
			event := GradesReleased{SubmissionIDs: released, InstructorID: instructor.ID}
			if err := s.events.Publish(ctx, SubjectGradesReleased, event); err != nil {
				s.logger.Warn().Err(err).Msg("failed to publish bulk release event")
			}
		}
		if s.audit != nil {
			_ = s.audit.Record(ctx, AuditEntry{
				Action:      models.AuditActionStateTransition,
				Actor:       instructor,
				SubjectType: "submission_batch",
				Context: map[string]interface{}{
					"to":             models.SubmissionStateReleased,
					"submission_ids": released,
				},
			})
		}
	}

	s.logger.Info().
		Int("success", result.Success).
		Int("failed", result.Failed).
		Msg("bulk release completed")

	if result.Success == 0 && result.Failed > 0 {
		return result, ErrBulkAllFailed
	}
	return result, nil
}

// ValidateFeedback checks every item without writing anything.
func (s *bulkService) ValidateFeedback(ctx context.Context, items []dto.BulkFeedbackItem) (dto.BulkValidation, error) {
	validation := dto.BulkValidation{Valid: true}
	if len(items) == 0 {
		validation.Valid = false
		validation.Errors = append(validation.Errors, "no feedback items given")
		return validation, nil
	}

	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.SubmissionID)
	}
	found, err := s.submissions.ListByIDs(ctx, ids)
	if err != nil {
		return dto.BulkValidation{}, err
	}
	known := make(map[uint]struct{}, len(found))
	for _, sub := range found {
		known[sub.ID] = struct{}{}
	}

	for _, item := range items {
		if err := s.validator.Struct(item); err != nil {
			validation.Valid = false
			validation.Errors = append(validation.Errors, fmt.Sprintf("submission %d: %v", item.SubmissionID, err))
			continue
		}
		if _, ok := known[item.SubmissionID]; !ok {
			validation.Valid = false
			validation.Errors = append(validation.Errors, fmt.Sprintf("submission %d: not found", item.SubmissionID))
		}
	}

	return validation, nil
}

// ExecuteFeedback applies feedback to each submission's grade independently.
func (s *bulkService) ExecuteFeedback(ctx context.Context, items []dto.BulkFeedbackItem, instructor Actor) (dto.BulkResult, error) {
	result := dto.BulkResult{}

	for _, item := range items {
		if err := s.applyFeedback(ctx, item, instructor); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("submission %d: %v", item.SubmissionID, err))
			observability.BulkItems().WithLabelValues("feedback", "failed").Inc()
			continue
		}
		result.Success++
		observability.BulkItems().WithLabelValues("feedback", "ok").Inc()
	}

	s.logger.Info().
		Int("success", result.Success).
		Int("failed", result.Failed).
		Msg("bulk feedback completed")

	if result.Success == 0 && result.Failed > 0 {
		return result, ErrBulkAllFailed
	}
	return result, nil
}

func (s *bulkService) applyFeedback(ctx context.Context, item dto.BulkFeedbackItem, instructor Actor) error {
	if err := s.validator.Struct(item); err != nil {
		return err
	}

	grade, err := s.grades.GetBySubmission(ctx, item.SubmissionID)
	if err != nil {
		return ErrGradeNotFound
	}

	grade.Feedback = strings.TrimSpace(s.sanitizer.Sanitize(item.Feedback))
	gradedBy := instructor.ID
	grade.GradedBy = &gradedBy
	if err := s.grades.Update(ctx, &grade); err != nil {
		return err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, AuditEntry{
			Action:      models.AuditActionGrading,
			Actor:       instructor,
			SubjectType: "submission",
			SubjectID:   &item.SubmissionID,
			Context:     map[string]interface{}{"feedback": true},
		})
	}

	return nil
}
