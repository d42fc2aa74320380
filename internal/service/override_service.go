package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/edukita/assessment-engine/internal/dto"
	"github.com/edukita/assessment-engine/internal/models"
	"github.com/edukita/assessment-engine/internal/repository"
)

// PrerequisiteCheck is the outcome of folding prerequisites with any active
// prerequisite override.
type PrerequisiteCheck struct {
	Satisfied bool
	Missing   []uint
}

// OverrideService grants and evaluates exceptions to prerequisites, attempt
// limits, and deadlines. Overrides are append-only; revocation does not exist,
// only natural expiry.
type OverrideService interface {
	Grant(ctx context.Context, req dto.GrantOverrideRequest, grantor Actor) (models.Override, error)
	HasActiveOverride(ctx context.Context, assignmentID, studentID uint, overrideType models.OverrideType) (*models.Override, error)
	CheckPrerequisites(ctx context.Context, assignmentID, studentID uint) (PrerequisiteCheck, error)
}

type overrideService struct {
	overrides   repository.OverrideRepository
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	cache       Cache
	cacheTTL    time.Duration
	validator   *validator.Validate
	audit       AuditRecorder
	logger      zerolog.Logger
	now         func() time.Time
}

// NewOverrideService constructs the override authority.
func NewOverrideService(
	overrides repository.OverrideRepository,
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	cache Cache,
	cacheTTL time.Duration,
	validate *validator.Validate,
	audit AuditRecorder,
	logger zerolog.Logger,
) OverrideService {
	return &overrideService{
		overrides:   overrides,
		assignments: assignments,
		submissions: submissions,
		cache:       cache,
		cacheTTL:    cacheTTL,
		validator:   validate,
		audit:       audit,
		logger:      logger.With().Str("component", "override_service").Logger(),
		now:         time.Now,
	}
}

func (s *overrideService) Grant(ctx context.Context, req dto.GrantOverrideRequest, grantor Actor) (models.Override, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.Override{}, err
	}

	overrideType := models.OverrideType(req.Type)
	value := models.OverrideValue{
		AdditionalAttempts:    req.AdditionalAttempts,
		ExtendedDeadline:      req.ExtendedDeadline,
		BypassedPrerequisites: req.BypassedPrerequisites,
	}

	switch overrideType {
	case models.OverrideTypeAttempts:
		if value.AdditionalAttempts < 1 {
			return models.Override{}, fmt.Errorf("attempts override requires additional_attempts >= 1")
		}
	case models.OverrideTypeDeadline:
		if value.ExtendedDeadline == nil || !value.ExtendedDeadline.After(s.now()) {
			return models.Override{}, fmt.Errorf("deadline override requires a future extended_deadline")
		}
	case models.OverrideTypePrerequisite:
		if len(value.BypassedPrerequisites) == 0 {
			return models.Override{}, fmt.Errorf("prerequisite override requires bypassed_prerequisites")
		}
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return models.Override{}, err
	}

	override := models.Override{
		AssignmentID: req.AssignmentID,
		StudentID:    req.StudentID,
		Type:         overrideType,
		Reason:       strings.TrimSpace(req.Reason),
		Value:        payload,
		GrantedBy:    grantor.ID,
		ExpiresAt:    req.ExpiresAt,
	}

	if err := s.overrides.Create(ctx, &override); err != nil {
		return models.Override{}, err
	}

	if s.cache != nil {
		key := overrideCacheKey(req.AssignmentID, req.StudentID)
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to invalidate override cache")
		}
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, AuditEntry{
			Action:       models.AuditActionOverrideGranted,
			Actor:        grantor,
			SubjectType:  "override",
			SubjectID:    &override.ID,
			AssignmentID: &req.AssignmentID,
			StudentID:    &req.StudentID,
			Context: map[string]interface{}{
				"type":   req.Type,
				"reason": override.Reason,
			},
		})
	}

	s.logger.Info().
		Uint("assignment_id", req.AssignmentID).
		Uint("student_id", req.StudentID).
		Str("type", req.Type).
		Msg("override granted")

	return override, nil
}

func (s *overrideService) HasActiveOverride(ctx context.Context, assignmentID, studentID uint, overrideType models.OverrideType) (*models.Override, error) {
	overrides, err := s.listActive(ctx, assignmentID, studentID)
	if err != nil {
		return nil, err
	}

	for i := range overrides {
		if overrides[i].Type == overrideType {
			return &overrides[i], nil
		}
	}

	return nil, nil
}

func (s *overrideService) CheckPrerequisites(ctx context.Context, assignmentID, studentID uint) (PrerequisiteCheck, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return PrerequisiteCheck{}, err
	}

	var required []uint
	if len(assignment.Prerequisites) > 0 {
		if err := json.Unmarshal(assignment.Prerequisites, &required); err != nil {
			return PrerequisiteCheck{}, fmt.Errorf("malformed prerequisite list on assignment %d: %w", assignmentID, err)
		}
	}

	if len(required) == 0 {
		return PrerequisiteCheck{Satisfied: true}, nil
	}

	bypassed := map[uint]struct{}{}
	if override, err := s.HasActiveOverride(ctx, assignmentID, studentID, models.OverrideTypePrerequisite); err != nil {
		return PrerequisiteCheck{}, err
	} else if override != nil {
		var value models.OverrideValue
		if err := json.Unmarshal(override.Value, &value); err == nil {
			for _, id := range value.BypassedPrerequisites {
				bypassed[id] = struct{}{}
			}
		}
	}

	check := PrerequisiteCheck{Satisfied: true}
	for _, prereqID := range required {
		if _, ok := bypassed[prereqID]; ok {
			continue
		}
		released, err := s.submissions.HasReleased(ctx, prereqID, studentID)
		if err != nil {
			return PrerequisiteCheck{}, err
		}
		if !released {
			check.Satisfied = false
			check.Missing = append(check.Missing, prereqID)
		}
	}

	return check, nil
}

func (s *overrideService) listActive(ctx context.Context, assignmentID, studentID uint) ([]models.Override, error) {
	key := overrideCacheKey(assignmentID, studentID)

	if s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to read override cache")
		} else if ok {
			var overrides []models.Override
			if unmarshalErr := json.Unmarshal([]byte(cached), &overrides); unmarshalErr == nil {
				return activeOnly(overrides, s.now()), nil
			}
		}
	}

	overrides, err := s.overrides.ListActive(ctx, assignmentID, studentID, s.now())
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(overrides); err == nil {
			if err := s.cache.Set(ctx, key, string(payload), s.cacheTTL); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("failed to store override cache")
			}
		}
	}

	return overrides, nil
}

// activeOnly re-applies expiry to cached rows so a stale cache never revives
// an expired override.
func activeOnly(overrides []models.Override, reference time.Time) []models.Override {
	out := overrides[:0]
	for _, o := range overrides {
		if o.Active(reference) {
			out = append(out, o)
		}
	}
	return out
}

func overrideCacheKey(assignmentID, studentID uint) string {
	return fmt.Sprintf("override:%d:%d", assignmentID, studentID)
}
