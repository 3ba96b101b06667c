package viewmodel_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/relay/pkg/command"
	"github.com/macropower/relay/pkg/config"
	"github.com/macropower/relay/pkg/execs"
	"github.com/macropower/relay/pkg/expr"
	"github.com/macropower/relay/pkg/viewmodel"
)

func TestNewExternal(t *testing.T) {
	t.Parallel()

	env := expr.MustNewEnvironment()

	tcs := map[string]struct {
		cc      *config.CommandConfig
		arg     string
		stdout  string
		canRun  bool
		wantErr bool
	}{
		"echo with argument": {
			cc:     &config.CommandConfig{Name: "echo", Spec: execs.Spec{Command: "echo"}},
			arg:    `one "two three"`,
			canRun: true,
			stdout: "one two three\n",
		},
		"predicate allows": {
			cc: &config.CommandConfig{
				Name:   "echo",
				Spec:   execs.Spec{Command: "echo"},
				CanRun: `arg.matches("^[0-9]+$") && state.mode == "on"`,
			},
			arg:    "42",
			canRun: true,
			stdout: "42\n",
		},
		"predicate rejects": {
			cc: &config.CommandConfig{
				Name:   "echo",
				Spec:   execs.Spec{Command: "echo"},
				CanRun: `arg.matches("^[0-9]+$")`,
			},
			arg: "forty-two",
		},
		"predicate error rejects": {
			cc: &config.CommandConfig{
				Name:   "echo",
				Spec:   execs.Spec{Command: "echo"},
				CanRun: `state.missing == "x"`,
			},
		},
		"shell": {
			cc:     &config.CommandConfig{Name: "sh", Spec: execs.Spec{Shell: `sh -c 'echo "$0"'`}},
			arg:    "hi",
			canRun: true,
			stdout: "hi\n",
		},
		"failing process": {
			cc:      &config.CommandConfig{Name: "fail", Spec: execs.Spec{Shell: "sh -c 'exit 3'"}},
			canRun:  true,
			wantErr: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ops := viewmodel.NewOperations(0)

			var (
				mu   sync.Mutex
				errs []error
			)

			c, err := viewmodel.NewExternal(tc.cc, env, ops,
				func() map[string]any {
					return map[string]any{"mode": "on"}
				},
				command.WithExceptionHandler(func(err error) {
					mu.Lock()
					defer mu.Unlock()

					errs = append(errs, err)
				}),
			)
			require.NoError(t, err)
			assert.Equal(t, tc.cc.Name, c.Name())

			require.Equal(t, tc.canRun, c.CanRunWith(tc.arg))

			if !tc.canRun {
				assert.True(t, c.RunWithAsync(t.Context(), tc.arg).IsCompleted())
				assert.Empty(t, ops.List())

				return
			}

			tk := c.RunWithAsync(t.Context(), tc.arg)
			err = tk.Wait(t.Context())

			op, opErr := ops.Get(tk.ID())
			require.NoError(t, opErr)
			require.NotNil(t, op.Result)

			if tc.wantErr {
				require.ErrorIs(t, err, execs.ErrCommandExecution)
				assert.Equal(t, 3, op.Result.ExitCode)

				require.Eventually(t, func() bool {
					mu.Lock()
					defer mu.Unlock()

					return len(errs) == 1
				}, 5*time.Second, time.Millisecond)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.stdout, op.Result.Stdout)
		})
	}
}

func TestNewExternal_Policies(t *testing.T) {
	t.Parallel()

	env := expr.MustNewEnvironment()

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		c, err := viewmodel.NewExternal(&config.CommandConfig{
			Name:    "sleep",
			Spec:    execs.Spec{Command: "sleep"},
			Timeout: &config.Duration{Duration: 50 * time.Millisecond},
		}, env, nil, nil)
		require.NoError(t, err)

		err = c.RunWithAsync(t.Context(), "10").Wait(t.Context())
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("running variable", func(t *testing.T) {
		t.Parallel()

		c, err := viewmodel.NewExternal(&config.CommandConfig{
			Name:        "sleep",
			Spec:        execs.Spec{Command: "sleep"},
			CanRun:      `!running`,
			Reentrancy:  "allow",
			Cancellable: true,
		}, env, nil, nil)
		require.NoError(t, err)

		assert.Equal(t, command.ReentrancyAllow, c.Reentrancy())
		assert.True(t, c.Cancellable())
		require.True(t, c.CanRunWith("10"))

		tk := c.RunWithAsync(t.Context(), "10")
		assert.False(t, c.CanRunWith("10"))

		c.Cancel()
		require.ErrorIs(t, tk.Wait(t.Context()), context.Canceled)

		require.Eventually(t, func() bool {
			return c.CanRunWith("10")
		}, 5*time.Second, time.Millisecond)
	})

	t.Run("invalid predicate", func(t *testing.T) {
		t.Parallel()

		_, err := viewmodel.NewExternal(&config.CommandConfig{
			Name:   "bad",
			Spec:   execs.Spec{Command: "true"},
			CanRun: `arg +`,
		}, env, nil, nil)
		require.Error(t, err)
	})
}
