// Package command provides invokable, inspectable command objects for
// view-models.
//
// A [Command] unifies synchronous and asynchronous actions behind one shape:
// [Command.CanRun] reports executability, [Command.Run] triggers the action,
// and subscribers are told when executability may have changed.
//
// Synchronous commands ([Sync], [SyncOf]) run on the caller's goroutine.
// Failures go to the exception handler when one is set, and are returned to
// the caller otherwise.
//
// Asynchronous commands ([Async], [AsyncOf]) start a [task.Task] and return
// immediately. They republish the tracked task under [PropertyExecutionTask]
// once when it starts and once when it settles, unless a newer run
// superseded it. Failures never reach the caller of Run.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/relay/pkg/log"
	"github.com/macropower/relay/pkg/notify"
	"github.com/macropower/relay/pkg/task"
)

// Property names published by asynchronous commands.
const (
	// PropertyExecutionTask is notified when a run starts and when the
	// current run settles.
	PropertyExecutionTask = "ExecutionTask"
	// PropertyIsExecuting is notified when the command becomes busy or idle.
	PropertyIsExecuting = "IsExecuting"
)

// Command is an invokable action with an executability predicate.
type Command interface {
	// Name returns the command's name, which may be empty.
	Name() string
	// CanRun reports whether Run would invoke the action for arg.
	CanRun(arg any) bool
	// Run invokes the action for arg if CanRun allows it.
	Run(arg any) error
	// SubscribeCanRunChanged registers fn to be told when CanRun may
	// return a different result.
	SubscribeCanRunChanged(fn func(CanRunChanged)) notify.Subscription
	// UnsubscribeCanRunChanged removes a subscriber.
	UnsubscribeCanRunChanged(id notify.Subscription)
}

// AsyncCommand is a [Command] whose action runs asynchronously.
type AsyncCommand interface {
	Command

	// RunAsync starts the action for arg and returns its task. A rejected
	// run returns an already settled task.
	RunAsync(ctx context.Context, arg any) *task.Task
	// IsExecuting reports whether any accepted run has not settled.
	IsExecuting() bool
	// ExecutionTask returns the most recently started task, or nil.
	ExecutionTask() *task.Task
	// Cancel cancels the current run of a cancellable command.
	Cancel()
	// Cancellable reports whether new runs cancel the previous run.
	Cancellable() bool
	// Reentrancy returns the overlapping-run policy.
	Reentrancy() Reentrancy
	// Subscribe registers fn for property change notifications.
	Subscribe(fn func(notify.PropertyChanged)) notify.Subscription
	// Unsubscribe removes a property change subscriber.
	Unsubscribe(id notify.Subscription)
}

// CanRunChanged signals that [Command.CanRun] may return a different result.
type CanRunChanged struct {
	Command Command
}

// ExceptionHandler receives failures raised by a command's action.
type ExceptionHandler func(err error)

// Reentrancy controls whether an asynchronous command may start a new run
// while a previous run is still executing.
type Reentrancy int

const (
	// ReentrancyBlock makes CanRun return false while the command executes.
	ReentrancyBlock Reentrancy = iota
	// ReentrancyAllow lets runs overlap; the newest run supersedes older ones.
	ReentrancyAllow
)

func (r Reentrancy) String() string {
	switch r {
	case ReentrancyBlock:
		return "block"
	case ReentrancyAllow:
		return "allow"
	}

	return fmt.Sprintf("Reentrancy(%d)", int(r))
}

// ParseReentrancy parses "block" or "allow". The empty string is "block".
func ParseReentrancy(s string) (Reentrancy, error) {
	switch strings.ToLower(s) {
	case "", "block":
		return ReentrancyBlock, nil
	case "allow":
		return ReentrancyAllow, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownReentrancy, s)
}

// Option configures a command.
type Option func(*options)

type options struct {
	ctx         context.Context //nolint:containedctx // Base context for Run.
	tracer      trace.Tracer
	dispatcher  notify.Dispatcher
	handler     ExceptionHandler
	name        string
	reentrancy  Reentrancy
	cancellable bool
}

func newOptions(opts []Option) *options {
	o := &options{
		ctx: context.Background(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// WithName sets the command's name, used in logs and traces.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithExceptionHandler sets the handler that receives action failures.
func WithExceptionHandler(h ExceptionHandler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// WithCancellation makes an asynchronous command cancel the previous run's
// context before starting a new run.
func WithCancellation() Option {
	return func(o *options) {
		o.cancellable = true
	}
}

// WithReentrancy sets the [Reentrancy] policy of an asynchronous command.
// The default is [ReentrancyBlock].
func WithReentrancy(r Reentrancy) Option {
	return func(o *options) {
		o.reentrancy = r
	}
}

// WithContext sets the parent context used by Run. It defaults to
// [context.Background].
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// WithTracer sets the tracer used for asynchronous runs.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithDispatcher delivers the command's notifications through d.
func WithDispatcher(d notify.Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// base holds what every command variant shares.
type base struct {
	self          Command
	canRunChanged *notify.Hub[CanRunChanged]
	handler       ExceptionHandler
	name          string
	handlerMu     sync.RWMutex
}

func (b *base) init(self Command, o *options) {
	b.self = self
	b.name = o.name
	b.handler = o.handler
	b.canRunChanged = notify.NewHub[CanRunChanged](o.dispatcher)
}

// Name returns the command's name.
func (b *base) Name() string {
	return b.name
}

// SubscribeCanRunChanged registers fn for [CanRunChanged] events.
func (b *base) SubscribeCanRunChanged(fn func(CanRunChanged)) notify.Subscription {
	return b.canRunChanged.Subscribe(fn)
}

// UnsubscribeCanRunChanged removes a [CanRunChanged] subscriber.
func (b *base) UnsubscribeCanRunChanged(id notify.Subscription) {
	b.canRunChanged.Unsubscribe(id)
}

// RaiseCanRunChanged tells subscribers that CanRun may have changed, e.g.
// because state read by the predicate changed.
func (b *base) RaiseCanRunChanged() {
	b.canRunChanged.Publish(CanRunChanged{Command: b.self})
}

func (b *base) setExceptionHandler(h ExceptionHandler) {
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()

	b.handler = h
}

func (b *base) exceptionHandler() ExceptionHandler {
	b.handlerMu.RLock()
	defer b.handlerMu.RUnlock()

	return b.handler
}

// invoke runs fn on the calling goroutine. With a handler set, errors and
// panics are forwarded to it and invoke returns nil. Without one, the error
// is returned and panics propagate.
func (b *base) invoke(fn func() error) (err error) {
	h := b.exceptionHandler()
	if h == nil {
		return fn()
	}

	defer func() {
		if r := recover(); r != nil {
			h(&task.PanicError{Value: r, Stack: debug.Stack()})

			err = nil
		}
	}()

	if fnErr := fn(); fnErr != nil {
		h(fnErr)
	}

	return nil
}

// handle forwards an asynchronous failure to the exception handler. A
// panicking handler is logged rather than allowed to crash the process.
func (b *base) handle(ctx context.Context, err error) {
	logger := log.WithContext(ctx)

	h := b.exceptionHandler()
	if h == nil {
		logger.DebugContext(ctx, "unhandled command error",
			slog.String("command", b.name),
			slog.Any("err", err),
		)

		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "exception handler panicked",
				slog.String("command", b.name),
				slog.Any("panic", r),
			)
		}
	}()

	h(err)
}
