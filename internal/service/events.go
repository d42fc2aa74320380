package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain event subjects consumed by the external notification collaborator.
const (
	SubjectSubmissionGraded = "submission.graded"
	SubjectGradesReleased   = "grades.released"
	SubjectGradeRecalced    = "grade.recalculated"
	SubjectAppealSubmitted  = "appeal.submitted"
	SubjectAppealDecided    = "appeal.decided"
)

// SubmissionGraded is published when a submission receives a full grading pass.
type SubmissionGraded struct {
	SubmissionID uint    `json:"submission_id"`
	Score        float64 `json:"score"`
	Feedback     string  `json:"feedback,omitempty"`
}

// GradesReleased is published once per release operation with every
// successfully released submission.
type GradesReleased struct {
	SubmissionIDs []uint `json:"submission_ids"`
	InstructorID  uint   `json:"instructor_id"`
}

// GradeRecalculated is published when a cascade moved a submission score by
// at least 0.01.
type GradeRecalculated struct {
	SubmissionID uint    `json:"submission_id"`
	OldScore     float64 `json:"old_score"`
	NewScore     float64 `json:"new_score"`
}

// AppealSubmitted notifies the responsible instructor of a new appeal.
type AppealSubmitted struct {
	AppealID     uint `json:"appeal_id"`
	InstructorID uint `json:"instructor_id"`
}

// AppealDecided notifies the student of an appeal decision.
type AppealDecided struct {
	AppealID uint   `json:"appeal_id"`
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

// EventPublisher publishes domain events to the notification collaborator.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event interface{}) error
}

type envelope struct {
	Subject string      `json:"subject"`
	Event   interface{} `json:"event"`
	SentAt  time.Time   `json:"sent_at"`
}

type brokerPublisher struct {
	nats        *nats.Conn
	natsPrefix  string
	redis       *redis.Client
	redisStream string
	logger      zerolog.Logger
}

// NewBrokerPublisher constructs a publisher that fans events out over NATS
// and mirrors them to a Redis channel. Either connection may be nil.
func NewBrokerPublisher(natsConn *nats.Conn, redisClient *redis.Client, channelBase string, logger zerolog.Logger) EventPublisher {
	prefix := ""
	stream := ""
	if channelBase != "" {
		prefix = strings.ReplaceAll(channelBase, ":", ".")
		stream = channelBase + ":events"
	}

	return &brokerPublisher{
		nats:        natsConn,
		natsPrefix:  prefix,
		redis:       redisClient,
		redisStream: stream,
		logger:      logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *brokerPublisher) Publish(ctx context.Context, subject string, event interface{}) error {
	payload, err := json.Marshal(envelope{Subject: subject, Event: event, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	if p.nats != nil && p.natsPrefix != "" {
		if err := p.nats.Publish(p.natsPrefix+"."+subject, payload); err != nil {
			return err
		}
	}

	if p.redis != nil && p.redisStream != "" {
		if err := p.redis.Publish(ctx, p.redisStream, payload).Err(); err != nil {
			p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to mirror event to redis")
		}
	}

	return nil
}

// NopPublisher discards events. Useful in tests and tooling.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
