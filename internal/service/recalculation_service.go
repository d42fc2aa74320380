package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/edukita/assessment-engine/internal/models"
	"github.com/edukita/assessment-engine/internal/observability"
	"github.com/edukita/assessment-engine/internal/queue"
	"github.com/edukita/assessment-engine/internal/repository"
	"github.com/edukita/assessment-engine/internal/scoring"
)

// JobKindRecalculate re-scores history after an answer-key change.
const JobKindRecalculate = "grading.recalculate"

// scoreEpsilon is the smallest score movement worth an event; anything below
// is floating rounding noise.
const scoreEpsilon = 0.01

// RecalcPayload is the unit of work enqueued on an answer-key change.
type RecalcPayload struct {
	QuestionID uint            `json:"question_id"`
	OldKey     json.RawMessage `json:"old_key,omitempty"`
	NewKey     json.RawMessage `json:"new_key"`
	ActorID    uint            `json:"actor_id"`
}

// RecalculationService applies answer-key edits and cascades them across all
// affected historical answers and submissions. The cascade is idempotent: a
// re-run with an unchanged key produces zero deltas and zero events.
type RecalculationService interface {
	UpdateAnswerKey(ctx context.Context, questionID uint, newKey []byte, actor Actor) (string, error)
	Run(ctx context.Context, payload RecalcPayload) error
	Handler() queue.Handler
}

type recalculationService struct {
	questions   repository.QuestionRepository
	answers     repository.AnswerRepository
	submissions repository.SubmissionRepository
	grades      repository.GradeRepository
	queue       queue.Queue
	audit       AuditRecorder
	events      EventPublisher
	batchSize   int
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewRecalculationService constructs the cascade.
func NewRecalculationService(
	questions repository.QuestionRepository,
	answers repository.AnswerRepository,
	submissions repository.SubmissionRepository,
	grades repository.GradeRepository,
	q queue.Queue,
	audit AuditRecorder,
	events EventPublisher,
	batchSize int,
	logger zerolog.Logger,
) RecalculationService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &recalculationService{
		questions:   questions,
		answers:     answers,
		submissions: submissions,
		grades:      grades,
		queue:       q,
		audit:       audit,
		events:      events,
		batchSize:   batchSize,
		logger:      logger.With().Str("component", "recalculation_service").Logger(),
		tracer:      otel.Tracer("github.com/edukita/assessment-engine/internal/service/recalculation"),
	}
}

// UpdateAnswerKey validates and persists a new key, audits the change, and
// enqueues the cascade. An unchanged key is a no-op.
func (s *recalculationService) UpdateAnswerKey(ctx context.Context, questionID uint, newKey []byte, actor Actor) (string, error) {
	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrQuestionNotFound
		}
		return "", err
	}

	if err := scoring.ValidateKey(question.Kind, newKey); err != nil {
		return "", err
	}

	if jsonEqual(question.AnswerKey, newKey) {
		s.logger.Debug().Uint("question_id", questionID).Msg("answer key unchanged, skipping cascade")
		return "", nil
	}

	oldKey := append([]byte(nil), question.AnswerKey...)
	if err := s.questions.UpdateAnswerKey(ctx, questionID, newKey); err != nil {
		return "", err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, AuditEntry{
			Action:       models.AuditActionAnswerKeyChanged,
			Actor:        actor,
			SubjectType:  "question",
			SubjectID:    &questionID,
			AssignmentID: &question.AssignmentID,
			Context: map[string]interface{}{
				"old_key": string(oldKey),
				"new_key": string(newKey),
			},
		})
	}

	payload := RecalcPayload{
		QuestionID: questionID,
		OldKey:     oldKey,
		NewKey:     newKey,
		ActorID:    actor.ID,
	}

	jobID, err := s.queue.Enqueue(ctx, JobKindRecalculate, payload)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue recalculation for question %d: %w", questionID, err)
	}

	s.logger.Info().
		Uint("question_id", questionID).
		Str("job_id", jobID).
		Msg("recalculation cascade enqueued")

	return jobID, nil
}

// Run executes one cascade. Answers are processed in bounded batches so
// memory stays flat regardless of history size; each update is a single
// read-modify-write on its own row.
func (s *recalculationService) Run(ctx context.Context, payload RecalcPayload) error {
	ctx, span := s.tracer.Start(ctx, "grading.recalculate", trace.WithAttributes(
		attribute.Int64("question_id", int64(payload.QuestionID)),
	))
	defer span.End()

	question, err := s.questions.GetByID(ctx, payload.QuestionID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	strategy, err := scoring.ForKind(question.Kind)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !question.Kind.AutoGradable() {
		return nil
	}

	affected := map[uint]struct{}{}
	var afterID uint
	for {
		batch, err := s.answers.ListAutoGradedByQuestion(ctx, payload.QuestionID, afterID, s.batchSize)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if len(batch) == 0 {
			break
		}

		for _, answer := range batch {
			result, err := strategy.Score(question, answer.Content)
			if err != nil {
				span.RecordError(err)
				return err
			}

			if answer.Score != nil && *answer.Score == result.Points {
				continue
			}

			if err := s.answers.UpdateScore(ctx, answer.ID, result.Points, true, nil); err != nil {
				span.RecordError(err)
				return err
			}
			observability.AnswersRecalculated().Inc()
			affected[answer.SubmissionID] = struct{}{}
		}

		afterID = batch[len(batch)-1].ID
	}

	for submissionID := range affected {
		if err := s.reaggregate(ctx, submissionID); err != nil {
			span.RecordError(err)
			return err
		}
	}

	span.SetAttributes(attribute.Int("affected_submissions", len(affected)))
	s.logger.Info().
		Uint("question_id", payload.QuestionID).
		Int("affected_submissions", len(affected)).
		Msg("recalculation cascade completed")

	return nil
}

func (s *recalculationService) reaggregate(ctx context.Context, submissionID uint) error {
	// An instructor's explicit correction is never overwritten by cascade.
	grade, err := s.grades.GetBySubmission(ctx, submissionID)
	if err == nil && grade.IsOverride {
		return nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return err
	}

	answers, err := s.answers.ListBySubmission(ctx, submissionID)
	if err != nil {
		return err
	}

	newScore, hasScore, err := AggregateScore(answers)
	if err != nil {
		return err
	}
	if !hasScore {
		return nil
	}

	if err := s.submissions.UpdateScore(ctx, submissionID, newScore); err != nil {
		return err
	}

	if grade.ID != 0 {
		grade.Score = newScore
		if err := s.grades.Update(ctx, &grade); err != nil {
			return err
		}
	}

	if submission.Score != nil && math.Abs(*submission.Score-newScore) >= scoreEpsilon {
		observability.RecalcEvents().Inc()
		if s.events != nil {
			event := GradeRecalculated{SubmissionID: submissionID, OldScore: *submission.Score, NewScore: newScore}
			if err := s.events.Publish(ctx, SubjectGradeRecalced, event); err != nil {
				s.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("failed to publish recalculation event")
			}
		}
	}

	return nil
}

// Handler adapts the cascade to the queue contract. Errors propagate so the
// pool's retry and backoff apply; terminal failures are logged with full
// context for operator alerting.
func (s *recalculationService) Handler() queue.Handler {
	return queue.FuncHandler{
		HandleFunc: func(ctx context.Context, raw []byte) error {
			var payload RecalcPayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("malformed recalculation payload: %w", err)
			}
			return s.Run(ctx, payload)
		},
		OnFailureFunc: func(_ context.Context, raw []byte, err error) {
			var payload RecalcPayload
			_ = json.Unmarshal(raw, &payload)
			s.logger.Error().Err(err).
				Uint("question_id", payload.QuestionID).
				Uint("actor_id", payload.ActorID).
				Msg("recalculation cascade failed permanently")
		},
	}
}

func jsonEqual(a, b []byte) bool {
	var left, right interface{}
	if err := json.Unmarshal(bytes.TrimSpace(jsonOrNull(a)), &left); err != nil {
		return bytes.Equal(a, b)
	}
	if err := json.Unmarshal(bytes.TrimSpace(jsonOrNull(b)), &right); err != nil {
		return bytes.Equal(a, b)
	}

	normalizedA, _ := json.Marshal(left)
	normalizedB, _ := json.Marshal(right)
	return bytes.Equal(normalizedA, normalizedB)
}

func jsonOrNull(v []byte) []byte {
	if len(bytes.TrimSpace(v)) == 0 {
		return []byte("null")
	}
	return v
}
