package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/edukita/assessment-engine/internal/dto"
	"github.com/edukita/assessment-engine/internal/models"
	"github.com/edukita/assessment-engine/internal/observability"
	"github.com/edukita/assessment-engine/internal/queue"
	"github.com/edukita/assessment-engine/internal/repository"
)

// JobKindAuditRetry re-persists an audit entry after a transient write failure.
const JobKindAuditRetry = "audit.retry"

// Actor is the already-authenticated identity performing an action. The core
// performs no authentication itself; a valid actor id is required for every
// audited action.
type Actor struct {
	ID   uint
	Type string
}

// AuditEntry captures one grading-relevant action for the append-only trail.
type AuditEntry struct {
	Action       models.AuditAction
	Actor        Actor
	SubjectType  string
	SubjectID    *uint
	AssignmentID *uint
	StudentID    *uint
	Context      map[string]interface{}
}

// AuditRecorder is the write half of the trail, consumed by the other services.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// AuditService appends to and searches the audit trail. There is no update
// and no delete, structurally.
type AuditService interface {
	AuditRecorder
	Search(ctx context.Context, req dto.AuditSearchRequest) ([]models.AuditLogEntry, int64, error)
	RetryHandler() queue.Handler
}

type auditService struct {
	repo   repository.AuditLogRepository
	queue  queue.Queue
	logger zerolog.Logger
}

// NewAuditService constructs the audit trail service. The queue is used to
// re-try entries that fail to persist; audit writes are fire-and-forget
// relative to the triggering operation but must not be lost.
func NewAuditService(repo repository.AuditLogRepository, q queue.Queue, logger zerolog.Logger) AuditService {
	return &auditService{
		repo:   repo,
		queue:  q,
		logger: logger.With().Str("component", "audit_service").Logger(),
	}
}

func (s *auditService) Record(ctx context.Context, entry AuditEntry) error {
	if !entry.Action.Valid() {
		return fmt.Errorf("unknown audit action %q", entry.Action)
	}
	if entry.Actor.ID == 0 {
		return fmt.Errorf("audit entry requires an actor id")
	}
	if entry.SubjectType == "" {
		return fmt.Errorf("audit entry requires a subject type")
	}

	model := models.AuditLogEntry{
		Action:       entry.Action,
		ActorID:      entry.Actor.ID,
		ActorType:    entry.Actor.Type,
		SubjectType:  entry.SubjectType,
		SubjectID:    entry.SubjectID,
		AssignmentID: entry.AssignmentID,
		StudentID:    entry.StudentID,
		Context:      toJSONMap(entry.Context),
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Warn().Err(err).Str("action", string(entry.Action)).Msg("audit write failed, queueing retry")
		observability.AuditWriteRetries().Inc()
		if s.queue == nil {
			return err
		}
		if _, enqueueErr := s.queue.Enqueue(ctx, JobKindAuditRetry, model); enqueueErr != nil {
			return fmt.Errorf("audit write failed and retry enqueue failed: %w", enqueueErr)
		}
	}

	return nil
}

func (s *auditService) Search(ctx context.Context, req dto.AuditSearchRequest) ([]models.AuditLogEntry, int64, error) {
	filter := repository.AuditLogFilter{
		ActorID:       req.ActorID,
		ActorType:     req.ActorType,
		SubjectID:     req.SubjectID,
		SubjectType:   req.SubjectType,
		AssignmentID:  req.AssignmentID,
		StudentID:     req.StudentID,
		ContextSearch: req.ContextSearch,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		Page:          req.Page,
		PageSize:      req.PageSize,
	}

	if req.Action != "" {
		filter.Actions = append(filter.Actions, models.AuditAction(req.Action))
	}
	for _, action := range req.Actions {
		filter.Actions = append(filter.Actions, models.AuditAction(action))
	}

	return s.repo.Search(ctx, filter)
}

// RetryHandler returns the queue handler that re-persists failed audit writes.
func (s *auditService) RetryHandler() queue.Handler {
	return queue.FuncHandler{
		HandleFunc: func(ctx context.Context, payload []byte) error {
			var entry models.AuditLogEntry
			if err := json.Unmarshal(payload, &entry); err != nil {
				return err
			}
			entry.ID = 0
			return s.repo.Create(ctx, &entry)
		},
		OnFailureFunc: func(_ context.Context, payload []byte, err error) {
			s.logger.Error().Err(err).RawJSON("entry", payload).Msg("audit entry lost after retries")
		},
	}
}

func toJSONMap(context map[string]interface{}) datatypes.JSONMap {
	if context == nil {
		return datatypes.JSONMap{}
	}

	out := datatypes.JSONMap{}
	for key, value := range context {
		out[key] = value
	}
	return out
}
