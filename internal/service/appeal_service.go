package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/edukita/assessment-engine/internal/dto"
	"github.com/edukita/assessment-engine/internal/models"
	"github.com/edukita/assessment-engine/internal/repository"
)

// AppealService handles the reconsideration workflow for late-rejected
// submissions. Decisions are single-shot: once approved or denied an appeal
// never changes again.
type AppealService interface {
	Submit(ctx context.Context, req dto.AppealSubmitRequest) (models.Appeal, error)
	Approve(ctx context.Context, appealID uint, decider Actor) (models.Appeal, error)
	Deny(ctx context.Context, appealID uint, reason string, decider Actor) (models.Appeal, error)
}

type appealService struct {
	appeals     repository.AppealRepository
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	overrides   OverrideService
	extension   time.Duration
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	audit       AuditRecorder
	events      EventPublisher
	logger      zerolog.Logger
	now         func() time.Time
}

// NewAppealService constructs the workflow. extension is how far past the
// original deadline an approved appeal lets the student resubmit.
func NewAppealService(
	appeals repository.AppealRepository,
	submissions repository.SubmissionRepository,
	assignments repository.AssignmentRepository,
	overrides OverrideService,
	extension time.Duration,
	v *validator.Validate,
	audit AuditRecorder,
	events EventPublisher,
	logger zerolog.Logger,
) AppealService {
	if extension <= 0 {
		extension = 72 * time.Hour
	}
	return &appealService{
		appeals:     appeals,
		submissions: submissions,
		assignments: assignments,
		overrides:   overrides,
		extension:   extension,
		validator:   v,
		sanitizer:   bluemonday.StrictPolicy(),
		audit:       audit,
		events:      events,
		logger:      logger.With().Str("component", "appeal_service").Logger(),
		now:         time.Now,
	}
}

// Submit opens an appeal. Only submissions rejected for lateness qualify,
// and each submission carries at most one appeal.
func (s *appealService) Submit(ctx context.Context, req dto.AppealSubmitRequest) (models.Appeal, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.Appeal{}, err
	}

	submission, err := s.submissions.GetByID(ctx, req.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Appeal{}, ErrSubmissionNotFound
		}
		return models.Appeal{}, err
	}
	if submission.StudentID != req.StudentID || !submission.AppealEligible() {
		return models.Appeal{}, ErrNotAppealEligible
	}

	if existing, err := s.appeals.GetBySubmission(ctx, req.SubmissionID); err == nil {
		s.logger.Debug().Uint("appeal_id", existing.ID).Msg("appeal already exists for submission")
		return models.Appeal{}, NotEligible("an appeal is already on file for this submission")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Appeal{}, err
	}

	documents, err := json.Marshal(req.Documents)
	if err != nil {
		return models.Appeal{}, err
	}

	appeal := models.Appeal{
		SubmissionID: req.SubmissionID,
		StudentID:    req.StudentID,
		Reason:       strings.TrimSpace(s.sanitizer.Sanitize(req.Reason)),
		Documents:    documents,
		Status:       models.AppealStatusPending,
	}
	if err := s.appeals.Create(ctx, &appeal); err != nil {
		return models.Appeal{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, submission.AssignmentID)
	if err != nil {
		return models.Appeal{}, err
	}

	if s.events != nil {
		event := AppealSubmitted{AppealID: appeal.ID, InstructorID: assignment.CreatedBy}
		if err := s.events.Publish(ctx, SubjectAppealSubmitted, event); err != nil {
			s.logger.Warn().Err(err).Uint("appeal_id", appeal.ID).Msg("failed to publish appeal event")
		}
	}

	s.logger.Info().
		Uint("appeal_id", appeal.ID).
		Uint("submission_id", req.SubmissionID).
		Msg("appeal submitted")

	return appeal, nil
}

// Approve grants the appeal and issues a deadline override so the student
// can resubmit within the configured extension window.
func (s *appealService) Approve(ctx context.Context, appealID uint, decider Actor) (models.Appeal, error) {
	appeal, submission, err := s.loadPending(ctx, appealID)
	if err != nil {
		return models.Appeal{}, err
	}

	now := s.now()
	appeal.Status = models.AppealStatusApproved
	appeal.DecidedBy = &decider.ID
	appeal.DecidedAt = &now

	decided, err := s.appeals.Decide(ctx, &appeal)
	if err != nil {
		return models.Appeal{}, err
	}
	if !decided {
		return models.Appeal{}, ErrAlreadyDecided
	}

	extended := now.Add(s.extension)
	_, err = s.overrides.Grant(ctx, dto.GrantOverrideRequest{
		AssignmentID:     submission.AssignmentID,
		StudentID:        appeal.StudentID,
		Type:             string(models.OverrideTypeDeadline),
		Reason:           "appeal approved",
		ExtendedDeadline: &extended,
		ExpiresAt:        &extended,
	}, decider)
	if err != nil {
		return models.Appeal{}, err
	}

	s.finishDecision(ctx, appeal, submission, decider, "")

	return appeal, nil
}

// Deny rejects the appeal. A denial always carries a stated reason.
func (s *appealService) Deny(ctx context.Context, appealID uint, reason string, decider Actor) (models.Appeal, error) {
	reason = strings.TrimSpace(s.sanitizer.Sanitize(reason))
	if reason == "" {
		return models.Appeal{}, ErrReasonRequired
	}

	appeal, submission, err := s.loadPending(ctx, appealID)
	if err != nil {
		return models.Appeal{}, err
	}

	now := s.now()
	appeal.Status = models.AppealStatusDenied
	appeal.DecisionReason = reason
	appeal.DecidedBy = &decider.ID
	appeal.DecidedAt = &now

	decided, err := s.appeals.Decide(ctx, &appeal)
	if err != nil {
		return models.Appeal{}, err
	}
	if !decided {
		return models.Appeal{}, ErrAlreadyDecided
	}

	s.finishDecision(ctx, appeal, submission, decider, reason)

	return appeal, nil
}

func (s *appealService) loadPending(ctx context.Context, appealID uint) (models.Appeal, models.Submission, error) {
	appeal, err := s.appeals.GetByID(ctx, appealID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Appeal{}, models.Submission{}, ErrAppealNotFound
		}
		return models.Appeal{}, models.Submission{}, err
	}
	if appeal.Decided() {
		return models.Appeal{}, models.Submission{}, ErrAlreadyDecided
	}

	submission, err := s.submissions.GetByID(ctx, appeal.SubmissionID)
	if err != nil {
		return models.Appeal{}, models.Submission{}, err
	}

	return appeal, submission, nil
}

func (s *appealService) finishDecision(ctx context.Context, appeal models.Appeal, submission models.Submission, decider Actor, reason string) {
	if s.audit != nil {
		auditContext := map[string]interface{}{"decision": appeal.Status}
		if reason != "" {
			auditContext["reason"] = reason
		}
		_ = s.audit.Record(ctx, AuditEntry{
			Action:       models.AuditActionAppealDecision,
			Actor:        decider,
			SubjectType:  "appeal",
			SubjectID:    &appeal.ID,
			AssignmentID: &submission.AssignmentID,
			StudentID:    &appeal.StudentID,
			Context:      auditContext,
		})
	}

	if s.events != nil {
		event := AppealDecided{AppealID: appeal.ID, Decision: appeal.Status, Reason: reason}
		if err := s.events.Publish(ctx, SubjectAppealDecided, event); err != nil {
			s.logger.Warn().Err(err).Uint("appeal_id", appeal.ID).Msg("failed to publish appeal decision")
		}
	}

	s.logger.Info().
		Uint("appeal_id", appeal.ID).
		Str("decision", appeal.Status).
		Uint("decided_by", decider.ID).
		Msg("appeal decided")
}
