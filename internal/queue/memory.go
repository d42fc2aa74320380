package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edukita/assessment-engine/internal/observability"
)

const defaultBuffer = 256

type job struct {
	id      string
	kind    string
	payload []byte
}

// WorkerPool is an in-process Queue implementation. Jobs run with a per-job
// timeout and bounded retries; handlers must be idempotent because a failed
// job can be re-enqueued safely.
type WorkerPool struct {
	workers     int
	maxAttempts int
	timeout     time.Duration
	retryDelay  time.Duration
	logger      zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	jobs chan job
	wg   sync.WaitGroup
}

// NewWorkerPool constructs a pool. Workers are not started until Start.
func NewWorkerPool(workers, maxAttempts int, timeout time.Duration, logger zerolog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &WorkerPool{
		workers:     workers,
		maxAttempts: maxAttempts,
		timeout:     timeout,
		retryDelay:  time.Second,
		logger:      logger.With().Str("component", "worker_pool").Logger(),
		handlers:    make(map[string]Handler),
		jobs:        make(chan job, defaultBuffer),
	}
}

// Register binds a handler to a job kind. Registering twice replaces the handler.
func (p *WorkerPool) Register(kind string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = handler
}

// Enqueue marshals the payload and schedules it. It never blocks the caller
// beyond the channel buffer; context cancellation aborts the hand-off.
func (p *WorkerPool) Enqueue(ctx context.Context, kind string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	j := job{id: uuid.NewString(), kind: kind, payload: data}

	select {
	case p.jobs <- j:
		observability.JobsEnqueued().WithLabelValues(kind).Inc()
		return j.id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Start launches the workers. They drain until ctx is cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j, ok := <-p.jobs:
					if !ok {
						return
					}
					p.process(ctx, j)
				}
			}
		}()
	}
}

// Wait blocks until all workers have exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) process(ctx context.Context, j job) {
	p.mu.RLock()
	handler, ok := p.handlers[j.kind]
	p.mu.RUnlock()

	if !ok {
		p.logger.Error().Str("job_id", j.id).Str("kind", j.kind).Msg("no handler registered for job kind")
		observability.JobsProcessed().WithLabelValues(j.kind, "dropped").Inc()
		return
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		lastErr = handler.Handle(attemptCtx, j.payload)
		cancel()

		if lastErr == nil {
			observability.JobsProcessed().WithLabelValues(j.kind, "ok").Inc()
			return
		}

		p.logger.Warn().Err(lastErr).
			Str("job_id", j.id).
			Str("kind", j.kind).
			Int("attempt", attempt).
			Msg("job attempt failed")
		observability.JobsProcessed().WithLabelValues(j.kind, "retry").Inc()

		if attempt < p.maxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * p.retryDelay):
			case <-ctx.Done():
				return
			}
		}
	}

	p.logger.Error().Err(lastErr).
		Str("job_id", j.id).
		Str("kind", j.kind).
		Int("attempts", p.maxAttempts).
		Msg("job failed permanently")
	observability.JobsProcessed().WithLabelValues(j.kind, "failed").Inc()
	handler.OnFailure(ctx, j.payload, lastErr)
}
