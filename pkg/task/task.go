// Package task provides a handle for an asynchronous operation.
//
// A [Task] is the unit tracked by async commands: it has an identity (the
// pointer itself, plus a monotonically increasing [Task.Seq]), settles exactly
// once, and never lets a panic in the operation escape its goroutine.
package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a [Task].
type Status int32

const (
	// StatusPending indicates the task has not been started.
	StatusPending Status = iota
	// StatusRunning indicates the operation is in progress.
	StatusRunning
	// StatusSucceeded indicates the operation returned nil.
	StatusSucceeded
	// StatusFailed indicates the operation returned an error or panicked.
	StatusFailed
	// StatusCanceled indicates the operation returned a context cancellation.
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	}

	return "unknown"
}

// Settled reports whether s is a terminal status.
func (s Status) Settled() bool {
	return s >= StatusSucceeded
}

// Func is an asynchronous operation.
type Func func(ctx context.Context) error

// PanicError is the error a [Task] settles with when its operation panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}

	return nil
}

var seq atomic.Uint64

type contextKey struct{}

// FromContext returns the [Task] whose operation received ctx, or nil.
func FromContext(ctx context.Context) *Task {
	t, _ := ctx.Value(contextKey{}).(*Task)

	return t
}

// Task is a handle to an asynchronous operation.
type Task struct {
	err    error
	fn     Func
	done   chan struct{}
	id     string
	seq    uint64
	once   sync.Once
	status atomic.Int32
}

// New creates a pending [Task] that runs fn once started.
func New(fn Func) *Task {
	return &Task{
		fn:   fn,
		done: make(chan struct{}),
		id:   uuid.NewString(),
		seq:  seq.Add(1),
	}
}

// Go creates a [Task] for fn and starts it.
func Go(ctx context.Context, fn Func) *Task {
	t := New(fn)
	t.Start(ctx)

	return t
}

// Completed returns a [Task] that has already settled with err.
func Completed(err error) *Task {
	t := New(nil)
	t.once.Do(func() {
		t.settle(err)
	})

	return t
}

// Start runs the operation in a new goroutine. Only the first call has any
// effect.
func (t *Task) Start(ctx context.Context) {
	t.once.Do(func() {
		t.status.Store(int32(StatusRunning))

		go t.run(ctx)
	})
}

func (t *Task) run(ctx context.Context) {
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}

		t.settle(err)
	}()

	if t.fn != nil {
		err = t.fn(context.WithValue(ctx, contextKey{}, t))
	}
}

func (t *Task) settle(err error) {
	t.err = err

	switch {
	case err == nil:
		t.status.Store(int32(StatusSucceeded))
	case errors.Is(err, context.Canceled):
		t.status.Store(int32(StatusCanceled))
	default:
		t.status.Store(int32(StatusFailed))
	}

	close(t.done)
}

// Done returns a channel that is closed when the task settles.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the error the task settled with. It is nil while the task has
// not settled.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Status returns the current [Status].
func (t *Task) Status() Status {
	return Status(t.status.Load())
}

// IsCompleted reports whether the task has settled.
func (t *Task) IsCompleted() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task settles or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return fmt.Errorf("wait for task %s: %w", t.id, ctx.Err())
	}
}

// ID returns a unique identifier suitable for logs and external references.
func (t *Task) ID() string {
	return t.id
}

// Seq returns the task's creation sequence number. Later tasks have larger
// numbers.
func (t *Task) Seq() uint64 {
	return t.seq
}

func (t *Task) String() string {
	return fmt.Sprintf("task %d (%s)", t.seq, t.Status())
}
