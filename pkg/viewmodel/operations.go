package viewmodel

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/macropower/relay/pkg/execs"
	"github.com/macropower/relay/pkg/notify"
	"github.com/macropower/relay/pkg/task"
)

// PropertyOperations is raised whenever an operation starts or settles.
const PropertyOperations = "Operations"

// DefaultOperationCapacity is the number of operations kept by default.
const DefaultOperationCapacity = 100

// ErrUnknownOperation is returned for operation IDs that are not (or no
// longer) recorded.
var ErrUnknownOperation = errors.New("unknown operation")

// Operation is a snapshot of one command run.
type Operation struct {
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished,omitzero"`
	Result   *execs.Result `json:"result,omitempty"`
	ID       string        `json:"id"`
	Command  string        `json:"command"`
	Arg      string        `json:"arg,omitempty"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Done     bool          `json:"done"`
}

type record struct {
	started  time.Time
	finished time.Time
	task     *task.Task
	result   *execs.Result
	command  string
	arg      string
}

// Operations is a bounded log of command runs keyed by task ID. The oldest
// runs are evicted once capacity is reached.
type Operations struct {
	*notify.Notifier

	records  map[string]*record
	now      func() time.Time
	order    []string
	capacity int
	mu       sync.Mutex
}

// NewOperations creates an [Operations] log. A capacity below one uses
// [DefaultOperationCapacity].
func NewOperations(capacity int) *Operations {
	if capacity < 1 {
		capacity = DefaultOperationCapacity
	}

	o := &Operations{
		records:  make(map[string]*record),
		capacity: capacity,
		now:      time.Now,
	}
	o.Notifier = notify.New(o, PropertyOperations)

	return o
}

// Begin records t as a run of command. Recording the same task again is a
// no-op, so both the caller and the operation itself may record a run.
func (o *Operations) Begin(command string, arg any, t *task.Task) {
	if o == nil || t == nil {
		return
	}

	o.mu.Lock()

	if _, ok := o.records[t.ID()]; ok {
		o.mu.Unlock()

		return
	}

	o.records[t.ID()] = &record{
		started: o.now(),
		task:    t,
		command: command,
		arg:     argString(arg),
	}
	o.order = append(o.order, t.ID())

	for len(o.order) > o.capacity {
		delete(o.records, o.order[0])
		o.order = o.order[1:]
	}

	o.mu.Unlock()

	o.NotifyProperty(PropertyOperations)

	go o.watch(t)
}

// SetResult attaches process output to the run of t.
func (o *Operations) SetResult(t *task.Task, res *execs.Result) {
	if o == nil || t == nil || res == nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if r, ok := o.records[t.ID()]; ok {
		r.result = res
	}
}

// Get returns the operation with the given ID.
func (o *Operations) Get(id string) (Operation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.records[id]
	if !ok {
		return Operation{}, fmt.Errorf("%w: %q", ErrUnknownOperation, id)
	}

	return r.snapshot(), nil
}

// Task returns the task of the operation with the given ID.
func (o *Operations) Task(id string) (*task.Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, id)
	}

	return r.task, nil
}

// List returns all recorded operations, newest first.
func (o *Operations) List() []Operation {
	o.mu.Lock()
	defer o.mu.Unlock()

	ops := make([]Operation, 0, len(o.order))
	for _, id := range slices.Backward(o.order) {
		ops = append(ops, o.records[id].snapshot())
	}

	return ops
}

// Last returns the most recent operation of command.
func (o *Operations) Last(command string) (Operation, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, id := range slices.Backward(o.order) {
		if r := o.records[id]; r.command == command {
			return r.snapshot(), true
		}
	}

	return Operation{}, false
}

func (o *Operations) watch(t *task.Task) {
	<-t.Done()

	o.mu.Lock()

	r, ok := o.records[t.ID()]
	if ok {
		r.finished = o.now()
	}

	o.mu.Unlock()

	if ok {
		o.NotifyProperty(PropertyOperations)
	}
}

func (r *record) snapshot() Operation {
	op := Operation{
		ID:       r.task.ID(),
		Command:  r.command,
		Arg:      r.arg,
		Started:  r.started,
		Finished: r.finished,
		Result:   r.result,
		Status:   r.task.Status().String(),
		Done:     r.task.IsCompleted(),
	}

	if err := r.task.Err(); err != nil {
		op.Error = err.Error()
	}

	return op
}

func argString(arg any) string {
	switch v := arg.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
