package viewmodel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/macropower/relay/pkg/command"
	"github.com/macropower/relay/pkg/config"
	"github.com/macropower/relay/pkg/execs"
	"github.com/macropower/relay/pkg/expr"
	"github.com/macropower/relay/pkg/task"
)

// StateFunc returns the view-model state exposed to canRun expressions as
// the state variable.
type StateFunc func() map[string]any

// NewExternal creates an asynchronous command for a configured external
// process. The string argument is split with shell quoting rules and
// appended to the process arguments.
//
// The process output is recorded in ops, if not nil, under the run's task ID.
func NewExternal(
	cc *config.CommandConfig,
	env *expr.Environment,
	ops *Operations,
	state StateFunc,
	opts ...command.Option,
) (*command.AsyncOf[string], error) {
	pred, err := cc.Predicate(env)
	if err != nil {
		return nil, fmt.Errorf("%s: canRun: %w", cc.Name, err)
	}

	reentrancy, err := cc.ReentrancyPolicy()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cc.Name, err)
	}

	executor := execs.NewExecutor(cc.Spec)
	timeout := cc.TimeoutDuration()

	op := func(ctx context.Context, arg string) error {
		t := task.FromContext(ctx)
		ops.Begin(cc.Name, arg, t)

		if timeout > 0 {
			var cancel context.CancelFunc

			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		args, err := execs.SplitArgs(arg)
		if err != nil {
			return err
		}

		res, err := executor.Exec(ctx, args...)
		ops.SetResult(t, res)

		return err
	}

	var c *command.AsyncOf[string]

	canRun := func(arg string) bool {
		if pred == nil {
			return true
		}

		in := expr.Input{
			Arg:     arg,
			Running: c.IsExecuting(),
		}
		if state != nil {
			in.State = state()
		}

		ok, err := pred.Eval(in)
		if err != nil {
			slog.Debug("evaluate canRun",
				slog.String("command", cc.Name),
				slog.Any("error", err),
			)

			return false
		}

		return ok
	}

	all := []command.Option{
		command.WithName(cc.Name),
		command.WithReentrancy(reentrancy),
	}
	if cc.Cancellable {
		all = append(all, command.WithCancellation())
	}

	c = command.NewAsyncOf(op, canRun, append(all, opts...)...)

	return c, nil
}
