package command

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/relay/pkg/log"
	"github.com/macropower/relay/pkg/notify"
	"github.com/macropower/relay/pkg/task"
)

var (
	_ AsyncCommand = (*Async)(nil)
	_ AsyncCommand = (*AsyncOf[string])(nil)
	_ Command      = (*Sync)(nil)
	_ Command      = (*SyncOf[string])(nil)
)

// token is the cancellation handle of one cancellable run.
type token struct {
	cancel context.CancelFunc
}

// engine implements the asynchronous execution model shared by [Async] and
// [AsyncOf].
type engine[T any] struct {
	*notify.Notifier
	base

	ctx     context.Context //nolint:containedctx // Base context for Run.
	tracer  trace.Tracer
	op      func(context.Context, T) error
	canRun  func(T) bool
	tracker *Tracker
	token   *token

	// Number of accepted runs that have not settled. Counting runs, rather
	// than keeping a flag, keeps IsExecuting true while a newer run is still
	// pending after an older one settled.
	inflight int

	reentrancy  Reentrancy
	mu          sync.Mutex
	cancellable bool
}

func (e *engine[T]) init(self Command, op func(context.Context, T) error, canRun func(T) bool, o *options) {
	e.base.init(self, o)

	e.Notifier = notify.New(self, PropertyIsExecuting, PropertyExecutionTask)
	e.Notifier.SetDispatcher(o.dispatcher)

	e.ctx = o.ctx
	e.tracer = o.tracer
	if e.tracer == nil {
		e.tracer = otel.Tracer("command")
	}

	e.op = op
	e.canRun = canRun
	e.reentrancy = o.reentrancy
	e.cancellable = o.cancellable
}

// IsExecuting reports whether any accepted run has not settled yet.
func (e *engine[T]) IsExecuting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.inflight > 0
}

// ExecutionTask returns the task of the most recent accepted run, or nil if
// the command never ran.
func (e *engine[T]) ExecutionTask() *task.Task {
	e.mu.Lock()
	tr := e.tracker
	e.mu.Unlock()

	if tr == nil {
		return nil
	}

	return tr.Current()
}

// Reentrancy returns the command's [Reentrancy] policy.
func (e *engine[T]) Reentrancy() Reentrancy {
	return e.reentrancy
}

// Cancellable reports whether new runs cancel the previous run.
func (e *engine[T]) Cancellable() bool {
	return e.cancellable
}

// Cancel cancels the context of the current run, if the command is
// cancellable and a run is live. Cancellation is cooperative: the operation
// must observe its context.
func (e *engine[T]) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token != nil {
		e.token.cancel()
		e.token = nil
	}
}

func (e *engine[T]) canRunWith(arg T) bool {
	if e.reentrancy == ReentrancyBlock && e.IsExecuting() {
		return false
	}

	return e.canRun == nil || e.canRun(arg)
}

func (e *engine[T]) runAsync(ctx context.Context, arg T) *task.Task {
	if e.op == nil || !e.canRunWith(arg) {
		return task.Completed(nil)
	}

	e.mu.Lock()

	// The predicate runs unlocked, so re-check the policy before accepting.
	if e.reentrancy == ReentrancyBlock && e.inflight > 0 {
		e.mu.Unlock()

		return task.Completed(nil)
	}

	var tok *token

	opCtx := ctx
	if e.cancellable {
		if e.token != nil {
			e.token.cancel()
		}

		var cancel context.CancelFunc

		opCtx, cancel = context.WithCancel(ctx)
		tok = &token{cancel: cancel}
		e.token = tok
	}

	if e.tracker == nil {
		e.tracker = NewTracker(e.Notifier, PropertyExecutionTask)
	}

	tracker := e.tracker

	e.inflight++
	becameBusy := e.inflight == 1

	e.mu.Unlock()

	opCtx, span := e.tracer.Start(opCtx, "run", trace.WithAttributes(
		attribute.String("command", e.name),
		attribute.Bool("cancellable", e.cancellable),
		attribute.String("reentrancy", e.reentrancy.String()),
	))

	t := task.New(func(ctx context.Context) error {
		return e.op(ctx, arg)
	})

	span.SetAttributes(attribute.String("task", t.ID()))

	log.WithContext(opCtx).DebugContext(opCtx, "run accepted",
		slog.String("command", e.name),
		slog.String("task", t.ID()),
		slog.Uint64("seq", t.Seq()),
	)

	tracker.mu.Lock()
	if becameBusy {
		tracker.queueLocked(PropertyIsExecuting)
	}

	tracker.assignLocked(t)
	tracker.mu.Unlock()

	tracker.flush()

	if becameBusy && e.reentrancy == ReentrancyBlock {
		e.RaiseCanRunChanged()
	}

	go e.await(opCtx, span, tok, t)

	t.Start(opCtx)

	return t
}

// await waits for t to settle, then releases the run: the in-flight count
// drops, the settle notification is published if t is still the tracked
// task, and IsExecuting is published if no other run is pending. The state
// change and both notifications are queued atomically, so a run started by a
// subscriber is ordered after them.
func (e *engine[T]) await(ctx context.Context, span trace.Span, tok *token, t *task.Task) {
	<-t.Done()

	e.mu.Lock()

	e.inflight--
	becameIdle := e.inflight == 0

	if tok != nil {
		if e.token == tok {
			e.token = nil
		}

		tok.cancel()
	}

	tracker := e.tracker

	tracker.mu.Lock()
	tracker.settleLocked(t)

	if becameIdle {
		tracker.queueLocked(PropertyIsExecuting)
	}

	tracker.mu.Unlock()
	e.mu.Unlock()

	tracker.flush()

	e.settled(ctx, span, t)
}

// settled ends the run's span and reports its error, after the settle
// notifications.
func (e *engine[T]) settled(ctx context.Context, span trace.Span, t *task.Task) {
	err := t.Err()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()

	log.WithContext(ctx).DebugContext(ctx, "run settled",
		slog.String("command", e.name),
		slog.String("task", t.ID()),
		slog.String("status", t.Status().String()),
	)

	if err != nil {
		e.handle(ctx, err)
	}

	e.RaiseCanRunChanged()
}

// Async is an [AsyncCommand] whose operation takes no argument.
type Async struct {
	*engine[any]
}

// NewAsync creates an [Async] command. A nil canRun always allows the
// operation.
//
// The operation receives the context passed to [Async.RunAsync] (or the
// command's base context for [Async.Run]). With [WithCancellation], that
// context is canceled when a newer run starts.
func NewAsync(op func(ctx context.Context) error, canRun func() bool, opts ...Option) *Async {
	c := &Async{engine: &engine[any]{}}

	var (
		wrappedOp  func(context.Context, any) error
		wrappedCan func(any) bool
	)

	if op != nil {
		wrappedOp = func(ctx context.Context, _ any) error {
			return op(ctx)
		}
	}

	if canRun != nil {
		wrappedCan = func(any) bool {
			return canRun()
		}
	}

	c.engine.init(c, wrappedOp, wrappedCan, newOptions(opts))

	return c
}

// SetExceptionHandler sets the handler that receives operation failures and
// returns the command.
func (c *Async) SetExceptionHandler(h ExceptionHandler) *Async {
	c.setExceptionHandler(h)

	return c
}

// CanRun reports whether a run would be accepted. The argument is ignored.
func (c *Async) CanRun(_ any) bool {
	return c.canRunWith(nil)
}

// Run starts the operation with the command's base context and returns
// immediately. It always returns nil: failures are reported to the exception
// handler.
func (c *Async) Run(arg any) error {
	c.RunAsync(c.ctx, arg)

	return nil
}

// RunAsync starts the operation and returns its task. If the run is
// rejected, the returned task has already settled.
func (c *Async) RunAsync(ctx context.Context, _ any) *task.Task {
	return c.runAsync(ctx, nil)
}

// AsyncOf is an [AsyncCommand] whose operation takes an argument of type T.
type AsyncOf[T any] struct {
	*engine[T]
}

// NewAsyncOf creates an [AsyncOf] command. A nil canRun always allows the
// operation. See [NewAsync] for how contexts are passed to op.
func NewAsyncOf[T any](op func(ctx context.Context, arg T) error, canRun func(T) bool, opts ...Option) *AsyncOf[T] {
	c := &AsyncOf[T]{engine: &engine[T]{}}
	c.engine.init(c, op, canRun, newOptions(opts))

	return c
}

// SetExceptionHandler sets the handler that receives operation failures and
// returns the command.
func (c *AsyncOf[T]) SetExceptionHandler(h ExceptionHandler) *AsyncOf[T] {
	c.setExceptionHandler(h)

	return c
}

// CanRun converts arg with [ArgAs] and reports [AsyncOf.CanRunWith].
// Arguments that do not convert to T are rejected.
func (c *AsyncOf[T]) CanRun(arg any) bool {
	v, ok := ArgAs[T](arg)
	if !ok {
		return false
	}

	return c.CanRunWith(v)
}

// Run converts arg with [ArgAs] and starts the operation with the command's
// base context. It always returns nil.
func (c *AsyncOf[T]) Run(arg any) error {
	c.RunAsync(c.ctx, arg)

	return nil
}

// RunAsync converts arg with [ArgAs] and calls [AsyncOf.RunWithAsync].
// Arguments that do not convert to T return an already settled task.
func (c *AsyncOf[T]) RunAsync(ctx context.Context, arg any) *task.Task {
	v, ok := ArgAs[T](arg)
	if !ok {
		return task.Completed(nil)
	}

	return c.RunWithAsync(ctx, v)
}

// CanRunWith reports whether a run with arg would be accepted.
func (c *AsyncOf[T]) CanRunWith(arg T) bool {
	return c.canRunWith(arg)
}

// RunWith starts the operation with arg and the command's base context.
func (c *AsyncOf[T]) RunWith(arg T) {
	c.RunWithAsync(c.ctx, arg)
}

// RunWithAsync starts the operation with arg and returns its task.
func (c *AsyncOf[T]) RunWithAsync(ctx context.Context, arg T) *task.Task {
	return c.runAsync(ctx, arg)
}
