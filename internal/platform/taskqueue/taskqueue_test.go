package taskqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestQueue_RunsJob(t *testing.T) {
	q := New(zerolog.Nop())
	var ran atomic.Bool

	q.Enqueue("test", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran.Load() {
		t.Error("expected job to run before shutdown returned")
	}
}

func TestQueue_DelayedJob(t *testing.T) {
	q := New(zerolog.Nop())
	start := time.Now()
	fired := make(chan time.Time, 1)

	q.EnqueueAfter("delayed", 20*time.Millisecond, func(ctx context.Context) error {
		fired <- time.Now()
		return nil
	})

	select {
	case at := <-fired:
		if at.Sub(start) < 20*time.Millisecond {
			t.Errorf("job fired after %v, expected at least 20ms", at.Sub(start))
		}
	case <-time.After(time.Second):
		t.Fatal("delayed job never fired")
	}
}

func TestQueue_DropsAfterShutdown(t *testing.T) {
	q := New(zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ran atomic.Bool
	q.Enqueue("late", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	time.Sleep(10 * time.Millisecond)
	if ran.Load() {
		t.Error("job enqueued after shutdown should not run")
	}
}

func TestInline_RunsSynchronously(t *testing.T) {
	s := NewInline(zerolog.Nop())
	ran := false
	s.EnqueueAfter("now", time.Hour, func(ctx context.Context) error {
		ran = true
		return errors.New("logged, not returned")
	})
	if !ran {
		t.Error("inline scheduler should run jobs immediately, ignoring delay")
	}
}
