package command

import (
	"sync"

	"github.com/macropower/relay/pkg/notify"
	"github.com/macropower/relay/pkg/task"
)

// Tracker publishes a task-valued property: it notifies once when a task is
// assigned and once more when that task settles, provided it is still the
// assigned task by then.
//
// Tasks are compared by identity, so a settled task that has been replaced
// by a newer one never produces a notification.
//
// Notifications are queued in the order the tracker's state changed and
// delivered one at a time. A notification raised while another is being
// delivered (by a subscriber, or by another goroutine) is delivered after it,
// by the goroutine already delivering.
type Tracker struct {
	notifier *notify.Notifier
	current  *task.Task
	property string
	pending  []string
	mu       sync.Mutex
	flushing bool
}

// NewTracker creates a [Tracker] that notifies property through n.
func NewTracker(n *notify.Notifier, property string) *Tracker {
	return &Tracker{
		notifier: n,
		property: property,
	}
}

// Current returns the assigned task, or nil.
func (tr *Tracker) Current() *task.Task {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return tr.current
}

// Property returns the name of the tracked property.
func (tr *Tracker) Property() string {
	return tr.property
}

// Set assigns t and notifies the property. It reports false, without
// notifying, if t is already the assigned task.
//
// callback, if not nil, is called with t once t has settled (immediately if
// t is nil or already settled), after any settle notification and whether or
// not t was superseded. If another goroutine was delivering at the time, the
// settle notification may still be queued behind its deliveries.
func (tr *Tracker) Set(t *task.Task, callback func(*task.Task)) bool {
	tr.mu.Lock()
	if tr.current == t {
		tr.mu.Unlock()

		return false
	}

	// Checked before assignment, so an already settled task skips the watcher.
	settled := t == nil || t.IsCompleted()
	tr.assignLocked(t)
	tr.mu.Unlock()

	tr.flush()

	if settled {
		if callback != nil {
			callback(t)
		}

		return true
	}

	go func() {
		<-t.Done()

		tr.mu.Lock()
		tr.settleLocked(t)
		tr.mu.Unlock()

		tr.flush()

		if callback != nil {
			callback(t)
		}
	}()

	return true
}

// assignLocked makes t current and queues the property notification.
func (tr *Tracker) assignLocked(t *task.Task) {
	tr.current = t
	tr.pending = append(tr.pending, tr.property)
}

// settleLocked queues the settle notification of t, unless t was replaced.
func (tr *Tracker) settleLocked(t *task.Task) {
	if tr.current == t {
		tr.pending = append(tr.pending, tr.property)
	}
}

// queueLocked queues notifications for other properties of the owner, so they
// are ordered with the tracked property.
func (tr *Tracker) queueLocked(names ...string) {
	tr.pending = append(tr.pending, names...)
}

// flush delivers queued notifications, unless another call is already doing
// so.
func (tr *Tracker) flush() {
	tr.mu.Lock()
	if tr.flushing {
		tr.mu.Unlock()

		return
	}

	tr.flushing = true
	tr.mu.Unlock()

	done := false

	// Reset if a subscriber panicked.
	defer func() {
		if !done {
			tr.mu.Lock()
			tr.flushing = false
			tr.mu.Unlock()
		}
	}()

	for {
		tr.mu.Lock()
		if len(tr.pending) == 0 {
			tr.pending = nil
			tr.flushing = false
			tr.mu.Unlock()

			done = true

			return
		}

		name := tr.pending[0]
		tr.pending = tr.pending[1:]
		tr.mu.Unlock()

		tr.notifier.NotifyProperty(name)
	}
}
