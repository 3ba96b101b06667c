package viewmodel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/relay/pkg/command"
	"github.com/macropower/relay/pkg/config"
	"github.com/macropower/relay/pkg/notify"
	"github.com/macropower/relay/pkg/task"
	"github.com/macropower/relay/pkg/viewmodel"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := viewmodel.NewRegistry(viewmodel.NewOperations(0))

	var changes int

	r.Subscribe(func(e notify.PropertyChanged) {
		assert.Equal(t, viewmodel.PropertyCommands, e.Name)

		changes++
	})

	ran := 0
	sum := command.NewSyncOf(func(n int) error {
		ran += n

		return nil
	}, func(n int) bool {
		return n >= 0
	}, command.WithName("sum"))

	require.NoError(t, r.Register(viewmodel.Entry{Command: sum}))
	require.ErrorIs(t, r.Register(viewmodel.Entry{Command: sum}), viewmodel.ErrDuplicateCommand)
	assert.Equal(t, 1, changes)

	e, err := r.Get("sum")
	require.NoError(t, err)
	assert.Nil(t, e.Async())

	tk, err := r.Run(t.Context(), "sum", 2)
	require.NoError(t, err)
	assert.True(t, tk.IsCompleted())
	assert.Equal(t, 2, ran)

	_, err = r.Run(t.Context(), "sum", -1)
	require.ErrorIs(t, err, command.ErrRejected)

	_, err = r.Run(t.Context(), "sum", "two")
	require.ErrorIs(t, err, command.ErrRejected)

	_, err = r.Run(t.Context(), "nope", nil)
	require.ErrorIs(t, err, config.ErrUnknownCommand)
	require.ErrorIs(t, r.Cancel("nope"), config.ErrUnknownCommand)
	assert.NotContains(t, err.Error(), "did you mean")

	_, err = r.Run(t.Context(), "sm", nil)
	require.ErrorIs(t, err, config.ErrUnknownCommand)
	assert.Contains(t, err.Error(), `did you mean "sum"?`)

	op, err := r.Operations().Get(tk.ID())
	require.NoError(t, err)
	assert.Equal(t, "sum", op.Command)
	assert.Equal(t, "2", op.Arg)
}

func TestRegistry_Replace(t *testing.T) {
	t.Parallel()

	r := viewmodel.NewRegistry(viewmodel.NewOperations(0))

	started := make(chan struct{})

	slow := command.NewAsync(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()

		return ctx.Err()
	}, nil, command.WithName("slow"), command.WithCancellation())

	require.NoError(t, r.Register(viewmodel.Entry{Command: command.NewSync(nil, nil, command.WithName("keep"))}))
	require.NoError(t, r.Replace(viewmodel.SourceConfig, []viewmodel.Entry{{Command: slow}}))

	tk, err := r.Run(t.Context(), "slow", nil)
	require.NoError(t, err)
	<-started

	// Replacing the source cancels its removed commands.
	require.NoError(t, r.Replace(viewmodel.SourceConfig, nil))
	require.ErrorIs(t, tk.Wait(t.Context()), context.Canceled)
	assert.Equal(t, task.StatusCanceled, tk.Status())

	entries := r.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "keep", entries[0].Name)
}

func TestRegistry_Cancel(t *testing.T) {
	t.Parallel()

	r := viewmodel.NewRegistry(nil)

	slow := command.NewAsync(func(ctx context.Context) error {
		<-ctx.Done()

		return ctx.Err()
	}, nil, command.WithName("slow"), command.WithCancellation())

	require.NoError(t, r.Register(viewmodel.Entry{Command: slow, Description: "waits"}))

	tk, err := r.Run(t.Context(), "slow", nil)
	require.NoError(t, err)
	assert.True(t, slow.IsExecuting())

	require.NoError(t, r.Cancel("slow"))
	require.ErrorIs(t, tk.Wait(t.Context()), context.Canceled)
}
