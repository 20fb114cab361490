package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-workflow-api/pkg/jobs"
	"github.com/noah-isme/civic-workflow-api/pkg/middleware/requestid"
)

const defaultSideEffectTimeout = 15 * time.Second

// SideEffectFunc is best-effort work triggered by a committed mutation.
type SideEffectFunc func(ctx context.Context) error

type sideEffect struct {
	ctx context.Context
	fn  SideEffectFunc
}

// resumable is a failure that knows which part of the work is still outstanding.
type resumable interface {
	Remaining() SideEffectFunc
}

// SideEffects runs best-effort work detached from the caller's cancellation. Failures are logged and
// counted, never returned. Without a queue the work runs inline, in submission order.
type SideEffects struct {
	queue   *jobs.Queue
	logger  *zap.Logger
	metrics *MetricsService
	timeout time.Duration
}

// NewSideEffects builds an inline runner.
func NewSideEffects(logger *zap.Logger, metrics *MetricsService) *SideEffects {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SideEffects{logger: logger, metrics: metrics, timeout: defaultSideEffectTimeout}
}

// QueueConfig returns worker settings whose exhaustion hook reports into this runner.
func (s *SideEffects) QueueConfig(workers, retries int, delay time.Duration) jobs.QueueConfig {
	return jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		RetryDelay: delay,
		Logger:     s.logger,
		OnExhausted: func(job jobs.Job, err error) {
			ctx := context.Background()
			if effect, ok := job.Payload.(*sideEffect); ok {
				ctx = effect.ctx
			}
			s.capture(ctx, job.Type, err)
		},
	}
}

// Handle executes a queued side effect. It is the jobs.Handler for the side effect queue.
// A partially completed effect is narrowed to its outstanding work before the queue retries it.
func (s *SideEffects) Handle(_ context.Context, job jobs.Job) error {
	effect, ok := job.Payload.(*sideEffect)
	if !ok {
		return fmt.Errorf("unexpected side effect payload %T", job.Payload)
	}
	err := s.run(*effect)
	var partial resumable
	if errors.As(err, &partial) {
		if rest := partial.Remaining(); rest != nil {
			effect.fn = rest
		}
	}
	return err
}

// UseQueue switches the runner to asynchronous execution on q.
func (s *SideEffects) UseQueue(q *jobs.Queue) {
	s.queue = q
}

// Go schedules fn. It never blocks on the outcome when a queue is configured.
func (s *SideEffects) Go(ctx context.Context, kind string, fn SideEffectFunc) {
	effect := sideEffect{ctx: context.WithoutCancel(ctx), fn: fn}
	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: kind, Payload: &effect})
		if err == nil {
			return
		}
		s.logger.Warn("side effect queue unavailable, running inline", zap.String("kind", kind), zap.Error(err))
	}
	if err := s.run(effect); err != nil {
		s.capture(effect.ctx, kind, err)
	}
}

func (s *SideEffects) run(effect sideEffect) (err error) {
	ctx, cancel := context.WithTimeout(effect.ctx, s.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("side effect panic: %v", r)
		}
	}()
	return effect.fn(ctx)
}

func (s *SideEffects) capture(ctx context.Context, kind string, err error) {
	if err == nil {
		return
	}
	fields := []zap.Field{zap.String("kind", kind), requestIDField(ctx), zap.Error(err)}
	var failures *DispatchFailures
	if errors.As(err, &failures) {
		fields = append(fields, zap.Strings("recipients", failures.Recipients()))
	}
	s.logger.Warn("side effect failed", fields...)
	s.metrics.RecordSideEffectFailure(kind)
}

// requestIDField tags log lines with the request id carried by ctx.
func requestIDField(ctx context.Context) zap.Field {
	return zap.String("request_id", requestid.FromContext(ctx))
}
