// Package dispatch provides an owner loop: a single goroutine that runs posted
// callbacks one at a time, in the order they were posted.
//
// A [*Loop] satisfies [notify.Dispatcher], so notifiers and commands configured
// with it deliver their notifications on the loop's goroutine instead of the
// goroutine that produced them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/macropower/relay/pkg/log"
	"github.com/macropower/relay/pkg/notify"
)

// ErrStopped is returned by [Loop.Do] when the loop stopped before the
// callback ran.
var ErrStopped = errors.New("dispatch loop stopped")

var _ notify.Dispatcher = (*Loop)(nil)

// Loop serializes callbacks onto the goroutine calling [Loop.Run].
//
// The queue is unbounded, so [Loop.Dispatch] never blocks, including when it
// is called from a callback running on the loop.
type Loop struct {
	wake    chan struct{}
	stopped chan struct{}
	queue   []func()
	mu      sync.Mutex
	stop    sync.Once
}

// NewLoop creates a [Loop]. Callbacks queue until [Loop.Run] is called.
func NewLoop() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Dispatch queues fn. Callbacks posted after the loop stopped are dropped.
func (l *Loop) Dispatch(fn func()) {
	if fn == nil {
		return
	}

	select {
	case <-l.stopped:
		slog.Debug("dispatch loop stopped, dropping callback")

		return
	default:
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do queues fn and waits until it ran, ctx is done or the loop stopped.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})

	l.Dispatch(func() {
		defer close(done)

		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for callback: %w", ctx.Err())
	case <-l.stopped:
		return ErrStopped
	}
}

// Run executes queued callbacks until ctx is done. A callback that panics is
// logged and does not stop the loop. Run may only be called once.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop.Do(func() {
		close(l.stopped)
	})

	logger := log.WithContext(ctx)

	for {
		for _, fn := range l.drain() {
			l.call(ctx, logger, fn)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

// Len returns the number of queued callbacks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.queue)
}

func (l *Loop) drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.queue
	l.queue = nil

	return q
}

func (l *Loop) call(ctx context.Context, logger *slog.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "dispatched callback panicked", slog.Any("panic", r))
		}
	}()

	fn()
}
