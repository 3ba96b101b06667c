package task_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/relay/pkg/task"
)

func TestTask_Settle(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	tcs := map[string]struct {
		fn         task.Func
		wantErr    error
		wantStatus task.Status
	}{
		"success": {
			fn:         func(context.Context) error { return nil },
			wantStatus: task.StatusSucceeded,
		},
		"failure": {
			fn:         func(context.Context) error { return errBoom },
			wantErr:    errBoom,
			wantStatus: task.StatusFailed,
		},
		"canceled": {
			fn: func(context.Context) error {
				return fmt.Errorf("stopped: %w", context.Canceled)
			},
			wantErr:    context.Canceled,
			wantStatus: task.StatusCanceled,
		},
		"panic with error": {
			fn: func(context.Context) error {
				panic(errBoom)
			},
			wantErr:    errBoom,
			wantStatus: task.StatusFailed,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tk := task.Go(t.Context(), tc.fn)

			err := tk.Wait(t.Context())
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}

			assert.True(t, tk.IsCompleted())
			assert.Equal(t, tc.wantStatus, tk.Status())
			assert.True(t, tk.Status().Settled())
		})
	}
}

func TestTask_PanicValue(t *testing.T) {
	t.Parallel()

	tk := task.Go(t.Context(), func(context.Context) error {
		panic("oops")
	})

	err := tk.Wait(t.Context())

	var panicErr *task.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "oops", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
	assert.Equal(t, "panic: oops", err.Error())
}

func TestTask_Pending(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	tk := task.New(func(context.Context) error {
		close(started)
		return nil
	})

	assert.Equal(t, task.StatusPending, tk.Status())
	assert.False(t, tk.IsCompleted())
	require.NoError(t, tk.Err())

	select {
	case <-started:
		t.Fatal("task started before Start was called")
	case <-time.After(20 * time.Millisecond):
	}

	tk.Start(t.Context())
	tk.Start(t.Context())

	require.NoError(t, tk.Wait(t.Context()))
	<-started
}

func TestTask_Completed(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	ok := task.Completed(nil)
	assert.True(t, ok.IsCompleted())
	assert.Equal(t, task.StatusSucceeded, ok.Status())

	failed := task.Completed(errBoom)
	assert.Equal(t, task.StatusFailed, failed.Status())
	require.ErrorIs(t, failed.Err(), errBoom)

	// Starting an already settled task is a no-op.
	failed.Start(t.Context())
	require.ErrorIs(t, failed.Wait(t.Context()), errBoom)
}

func TestTask_WaitContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)

	tk := task.Go(t.Context(), func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()

	err := tk.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, task.StatusRunning, tk.Status())
}

func TestTask_Identity(t *testing.T) {
	t.Parallel()

	a := task.Completed(nil)
	b := task.Completed(nil)

	assert.NotSame(t, a, b)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Less(t, a.Seq(), b.Seq())
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	assert.Nil(t, task.FromContext(t.Context()))

	got := make(chan *task.Task, 1)

	tk := task.Go(t.Context(), func(ctx context.Context) error {
		got <- task.FromContext(ctx)

		return nil
	})

	require.NoError(t, tk.Wait(t.Context()))
	assert.Same(t, tk, <-got)
}
