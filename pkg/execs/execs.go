package execs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/relay/pkg/log"
)

// Result is the outcome of a process.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
	ExitCode int
}

// Executor runs a [Spec].
type Executor struct {
	tracer  trace.Tracer
	output  io.Writer
	spec    Spec
	environ []string
}

// ExecutorOpt configures an [Executor].
type ExecutorOpt func(*Executor)

// WithEnviron sets the caller environment passed to [Spec.Environ]. It
// defaults to [os.Environ].
func WithEnviron(environ []string) ExecutorOpt {
	return func(e *Executor) {
		e.environ = environ
	}
}

// WithOutput copies the process's combined output to w as it is produced.
func WithOutput(w io.Writer) ExecutorOpt {
	return func(e *Executor) {
		e.output = w
	}
}

// NewExecutor creates an [Executor] for spec.
func NewExecutor(spec Spec, opts ...ExecutorOpt) *Executor {
	e := &Executor{
		tracer: otel.Tracer("executor"),
		spec:   spec,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.environ == nil {
		e.environ = os.Environ()
	}

	return e
}

// Spec returns the executor's [Spec].
func (e *Executor) Spec() Spec {
	return e.spec
}

// Exec runs the process with extra arguments appended and waits for it.
// Canceling ctx kills the process.
//
// A failing process returns [ErrCommandExecution] together with the partial
// [Result], so callers can show its output.
func (e *Executor) Exec(ctx context.Context, extra ...string) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "exec", trace.WithAttributes(
		attribute.String("command", e.spec.String()),
		attribute.StringSlice("args", extra),
	))
	defer span.End()

	argv, err := e.spec.Argv()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	argv = append(argv, extra...)

	logger := log.WithContext(ctx).With(
		slog.String("command", strings.Join(argv, " ")),
	)

	//nolint:gosec // G204: Subprocess launched with configured arguments.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.spec.Dir
	cmd.Env = e.spec.Environ(e.environ)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if e.output != nil {
		cmd.Stdout = io.MultiWriter(&stdout, e.output)
		cmd.Stderr = io.MultiWriter(&stderr, e.output)
	}

	start := time.Now()
	err = cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		ExitCode: cmd.ProcessState.ExitCode(),
	}

	span.SetAttributes(attribute.Int("exit_code", result.ExitCode))

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}

		logger.DebugContext(ctx, "command failed",
			slog.Duration("duration", result.Duration),
			slog.Any("error", err),
		)

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return result, fmt.Errorf("%w %s: %w", ErrCommandExecution, argv[0], err)
	}

	logger.DebugContext(ctx, "command executed successfully",
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

// SplitArgs splits a command argument line with shell quoting rules.
func SplitArgs(line string) ([]string, error) {
	if strings.TrimSpace(line) == "" {
		return nil, nil
	}

	args, err := shellwords.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse arguments %q: %w", line, err)
	}

	return args, nil
}

// IsExitError reports whether err came from a process exiting unsuccessfully,
// as opposed to failing to start.
func IsExitError(err error) bool {
	var exitErr *exec.ExitError

	return errors.As(err, &exitErr)
}
