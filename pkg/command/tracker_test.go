package command_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/relay/pkg/command"
	"github.com/macropower/relay/pkg/notify"
	"github.com/macropower/relay/pkg/task"
)

type owner struct {
	*notify.Notifier
}

func newTracked(t *testing.T) (*command.Tracker, func() int) {
	t.Helper()

	o := &owner{}
	o.Notifier = notify.New(o, "Job")

	var (
		n  int
		mu sync.Mutex
	)

	o.Subscribe(func(e notify.PropertyChanged) {
		assert.Equal(t, "Job", e.Name)

		mu.Lock()
		n++
		mu.Unlock()
	})

	return command.NewTracker(o.Notifier, "Job"), func() int {
		mu.Lock()
		defer mu.Unlock()

		return n
	}
}

func TestTracker_SetAndSettle(t *testing.T) {
	t.Parallel()

	tr, count := newTracked(t)
	assert.Equal(t, "Job", tr.Property())
	assert.Nil(t, tr.Current())

	release := make(chan struct{})
	tk := task.New(func(context.Context) error {
		<-release

		return nil
	})

	done := make(chan *task.Task, 1)

	require.True(t, tr.Set(tk, func(t *task.Task) { done <- t }))
	assert.Equal(t, 1, count())
	assert.Same(t, tk, tr.Current())

	// Same task again is a no-op.
	assert.False(t, tr.Set(tk, nil))
	assert.Equal(t, 1, count())

	tk.Start(t.Context())
	close(release)

	assert.Same(t, tk, <-done)
	assert.Equal(t, 2, count())
}

func TestTracker_Superseded(t *testing.T) {
	t.Parallel()

	tr, count := newTracked(t)

	release := make(chan struct{})
	older := task.New(func(context.Context) error {
		<-release

		return nil
	})
	newer := task.New(func(ctx context.Context) error {
		<-ctx.Done()

		return ctx.Err()
	})

	done := make(chan *task.Task, 1)

	tr.Set(older, func(t *task.Task) { done <- t })
	tr.Set(newer, nil)
	assert.Equal(t, 2, count())

	older.Start(t.Context())
	close(release)

	// The callback still runs for the superseded task, after its (skipped)
	// notification.
	assert.Same(t, older, <-done)
	assert.Equal(t, 2, count())
	assert.Same(t, newer, tr.Current())
}

func TestTracker_AlreadySettled(t *testing.T) {
	t.Parallel()

	tr, count := newTracked(t)

	called := 0
	tk := task.Completed(nil)

	tr.Set(tk, func(*task.Task) { called++ })
	assert.Equal(t, 1, count())
	assert.Equal(t, 1, called)

	tr.Set(nil, func(got *task.Task) {
		assert.Nil(t, got)

		called++
	})
	assert.Equal(t, 2, count())
	assert.Equal(t, 2, called)
	assert.Nil(t, tr.Current())
}

func TestTracker_DeliveryIsSerialized(t *testing.T) {
	t.Parallel()

	t.Run("set from a subscriber", func(t *testing.T) {
		t.Parallel()

		o := &owner{}
		o.Notifier = notify.New(o, "Job")
		tr := command.NewTracker(o.Notifier, "Job")

		newer := task.Completed(nil)

		var (
			depth, maxDepth int
			seen            []*task.Task
			mu              sync.Mutex
		)

		o.Subscribe(func(notify.PropertyChanged) {
			cur := tr.Current()

			mu.Lock()
			depth++
			maxDepth = max(maxDepth, depth)
			seen = append(seen, cur)
			mu.Unlock()

			// Replace the task from inside its settle notification.
			if cur != newer && cur.IsCompleted() {
				tr.Set(newer, nil)
			}

			mu.Lock()
			depth--
			mu.Unlock()
		})

		release := make(chan struct{})
		older := task.New(func(context.Context) error {
			<-release

			return nil
		})

		done := make(chan struct{})

		tr.Set(older, func(*task.Task) { close(done) })
		older.Start(t.Context())
		close(release)
		<-done

		mu.Lock()
		defer mu.Unlock()

		assert.Equal(t, 1, maxDepth)
		assert.Equal(t, []*task.Task{older, older, newer}, seen)
	})

	t.Run("concurrent settle and set", func(t *testing.T) {
		t.Parallel()

		for range 50 {
			o := &owner{}
			o.Notifier = notify.New(o, "Job")
			tr := command.NewTracker(o.Notifier, "Job")

			var active, overlaps atomic.Int32

			o.Subscribe(func(notify.PropertyChanged) {
				if active.Add(1) > 1 {
					overlaps.Add(1)
				}

				time.Sleep(time.Microsecond)
				active.Add(-1)
			})

			release := make(chan struct{})
			older := task.New(func(context.Context) error {
				<-release

				return nil
			})

			done := make(chan struct{})

			tr.Set(older, func(*task.Task) { close(done) })
			older.Start(t.Context())

			close(release)
			tr.Set(task.Completed(nil), nil)
			<-done

			assert.Zero(t, overlaps.Load())
		}
	})
}
