package command

// Sync is a [Command] that runs its action on the calling goroutine.
type Sync struct {
	base

	action func() error
	canRun func() bool
}

// NewSync creates a [Sync] command. A nil canRun always allows the action.
func NewSync(action func() error, canRun func() bool, opts ...Option) *Sync {
	c := &Sync{
		action: action,
		canRun: canRun,
	}
	c.init(c, newOptions(opts))

	return c
}

// SetExceptionHandler sets the handler that receives action failures and
// returns the command.
func (c *Sync) SetExceptionHandler(h ExceptionHandler) *Sync {
	c.setExceptionHandler(h)

	return c
}

// CanRun reports the predicate's result. The argument is ignored.
func (c *Sync) CanRun(_ any) bool {
	return c.canRun == nil || c.canRun()
}

// Run invokes the action if [Sync.CanRun] allows it.
//
// If the action fails and an exception handler is set, the failure is
// forwarded to the handler and Run returns nil. Otherwise the error is
// returned.
func (c *Sync) Run(arg any) error {
	if !c.CanRun(arg) || c.action == nil {
		return nil
	}

	return c.invoke(c.action)
}

// SyncOf is a [Sync] command with an argument of type T.
type SyncOf[T any] struct {
	base

	action func(T) error
	canRun func(T) bool
}

// NewSyncOf creates a [SyncOf] command. A nil canRun always allows the action.
func NewSyncOf[T any](action func(T) error, canRun func(T) bool, opts ...Option) *SyncOf[T] {
	c := &SyncOf[T]{
		action: action,
		canRun: canRun,
	}
	c.init(c, newOptions(opts))

	return c
}

// SetExceptionHandler sets the handler that receives action failures and
// returns the command.
func (c *SyncOf[T]) SetExceptionHandler(h ExceptionHandler) *SyncOf[T] {
	c.setExceptionHandler(h)

	return c
}

// CanRun converts arg with [ArgAs] and reports [SyncOf.CanRunWith].
// Arguments that do not convert to T are rejected.
func (c *SyncOf[T]) CanRun(arg any) bool {
	v, ok := ArgAs[T](arg)
	if !ok {
		return false
	}

	return c.CanRunWith(v)
}

// Run converts arg with [ArgAs] and calls [SyncOf.RunWith].
// Arguments that do not convert to T are ignored.
func (c *SyncOf[T]) Run(arg any) error {
	v, ok := ArgAs[T](arg)
	if !ok {
		return nil
	}

	return c.RunWith(v)
}

// CanRunWith reports the predicate's result for arg.
func (c *SyncOf[T]) CanRunWith(arg T) bool {
	return c.canRun == nil || c.canRun(arg)
}

// RunWith invokes the action with arg if [SyncOf.CanRunWith] allows it.
// Failures are handled as in [Sync.Run].
func (c *SyncOf[T]) RunWith(arg T) error {
	if !c.CanRunWith(arg) || c.action == nil {
		return nil
	}

	return c.invoke(func() error {
		return c.action(arg)
	})
}
