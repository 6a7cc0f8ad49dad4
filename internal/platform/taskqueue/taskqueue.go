// Package taskqueue runs fire-and-forget units of work off the request path:
// triage retries, email/SMS/Slack deliveries, and deferred notification
// re-attempts. Jobs run on their own goroutines so callers never block on
// delivery.
package taskqueue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is a single asynchronous unit of work.
type Job func(ctx context.Context) error

// Scheduler enqueues jobs for asynchronous execution.
type Scheduler interface {
	Enqueue(name string, job Job)
	EnqueueAfter(name string, delay time.Duration, job Job)
}

// Queue is an in-process Scheduler. Jobs inherit the queue's base context so
// shutdown cancels in-flight work after the drain deadline.
type Queue struct {
	logger zerolog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// New creates a running Queue.
func New(logger zerolog.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue schedules a job for immediate execution.
func (q *Queue) Enqueue(name string, job Job) {
	q.EnqueueAfter(name, 0, job)
}

// EnqueueAfter schedules a job to run after the given delay. Jobs enqueued
// after Shutdown are dropped with a warning.
func (q *Queue) EnqueueAfter(name string, delay time.Duration, job Job) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn().Str("job", name).Msg("task queue closed, dropping job")
		return
	}
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()

		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-q.ctx.Done():
				q.logger.Warn().Str("job", name).Msg("shutdown before delayed job fired")
				return
			}
		}

		start := time.Now()
		if err := job(q.ctx); err != nil {
			q.logger.Error().Err(err).Str("job", name).Dur("took", time.Since(start)).Msg("job failed")
			return
		}
		q.logger.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job done")
	}()
}

// Shutdown stops accepting jobs and waits for in-flight work until ctx
// expires, then cancels whatever is left.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}

// Inline is a Scheduler that runs jobs synchronously on the caller's
// goroutine, ignoring delays. Used by one-shot CLI commands and tests.
type Inline struct {
	logger zerolog.Logger
}

// NewInline creates an Inline scheduler.
func NewInline(logger zerolog.Logger) *Inline {
	return &Inline{logger: logger}
}

func (i *Inline) Enqueue(name string, job Job) {
	if err := job(context.Background()); err != nil {
		i.logger.Error().Err(err).Str("job", name).Msg("job failed")
	}
}

func (i *Inline) EnqueueAfter(name string, _ time.Duration, job Job) {
	i.Enqueue(name, job)
}
