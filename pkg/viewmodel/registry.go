package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/macropower/relay/pkg/command"
	"github.com/macropower/relay/pkg/config"
	"github.com/macropower/relay/pkg/log"
	"github.com/macropower/relay/pkg/notify"
	"github.com/macropower/relay/pkg/task"
)

// PropertyCommands is raised when the set of registered commands changes.
const PropertyCommands = "Commands"

// Command sources.
const (
	SourceBuiltin = "builtin"
	SourceConfig  = "config"
)

// ErrDuplicateCommand is returned when registering a name twice.
var ErrDuplicateCommand = errors.New("command already registered")

// Entry is a named command in a [Registry].
type Entry struct {
	Command     command.Command
	Name        string
	Description string
	Source      string
}

// Async returns the entry's command as an [command.AsyncCommand], or nil.
func (e Entry) Async() command.AsyncCommand {
	ac, _ := e.Command.(command.AsyncCommand)

	return ac
}

// Registry holds commands by name, in registration order, and runs them on
// behalf of callers that only know the name.
type Registry struct {
	*notify.Notifier

	ops     *Operations
	entries []Entry
	mu      sync.RWMutex
}

// NewRegistry creates a [Registry] that records runs in ops.
func NewRegistry(ops *Operations) *Registry {
	r := &Registry{ops: ops}
	r.Notifier = notify.New(r, PropertyCommands)

	return r
}

// Register adds e. The entry's name defaults to the command's name.
func (r *Registry) Register(e Entry) error {
	if e.Name == "" {
		e.Name = e.Command.Name()
	}

	r.mu.Lock()

	if r.index(e.Name) >= 0 {
		r.mu.Unlock()

		return fmt.Errorf("%w: %q", ErrDuplicateCommand, e.Name)
	}

	r.entries = append(r.entries, e)
	r.mu.Unlock()

	r.NotifyProperty(PropertyCommands)

	return nil
}

// Replace swaps every entry from source for entries. Asynchronous commands
// that were removed are canceled. Entries whose names collide with another
// source are skipped and reported in the returned error.
func (r *Registry) Replace(source string, entries []Entry) error {
	r.mu.Lock()

	var removed []Entry

	r.entries = slices.DeleteFunc(r.entries, func(e Entry) bool {
		if e.Source == source {
			removed = append(removed, e)

			return true
		}

		return false
	})

	var errs []error

	for _, e := range entries {
		if e.Name == "" {
			e.Name = e.Command.Name()
		}

		e.Source = source

		if r.index(e.Name) >= 0 {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateCommand, e.Name))

			continue
		}

		r.entries = append(r.entries, e)
	}

	r.mu.Unlock()

	for _, e := range removed {
		if ac := e.Async(); ac != nil {
			ac.Cancel()
		}
	}

	r.NotifyProperty(PropertyCommands)

	return errors.Join(errs...)
}

// Get returns the entry named name.
func (r *Registry) Get(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.index(name)
	if i < 0 {
		if match := r.closest(name); match != "" {
			return Entry{}, fmt.Errorf("%w: %q, did you mean %q?", config.ErrUnknownCommand, name, match)
		}

		return Entry{}, fmt.Errorf("%w: %q", config.ErrUnknownCommand, name)
	}

	return r.entries[i], nil
}

// List returns all entries in registration order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.entries)
}

// Run runs the command named name with arg and returns the run's task.
//
// Asynchronous commands start with ctx and return immediately. Synchronous
// commands run to completion first and return a settled task. If the command
// cannot run with arg, Run returns [command.ErrRejected].
func (r *Registry) Run(ctx context.Context, name string, arg any) (*task.Task, error) {
	e, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	if !e.Command.CanRun(arg) {
		return nil, fmt.Errorf("%w: %s", command.ErrRejected, name)
	}

	log.WithContext(ctx).DebugContext(ctx, "run command",
		slog.String("command", name),
		slog.Any("arg", arg),
	)

	var t *task.Task

	if ac := e.Async(); ac != nil {
		t = ac.RunAsync(ctx, arg)
	} else {
		t = task.Completed(e.Command.Run(arg))
	}

	r.ops.Begin(name, arg, t)

	return t, nil
}

// Cancel cancels the current run of the command named name. Only
// cancellable asynchronous commands react.
func (r *Registry) Cancel(name string) error {
	e, err := r.Get(name)
	if err != nil {
		return err
	}

	if ac := e.Async(); ac != nil {
		ac.Cancel()
	}

	return nil
}

// Operations returns the log runs are recorded in.
func (r *Registry) Operations() *Operations {
	return r.ops
}

// closest returns the best fuzzy match for name among the registered
// commands, or "" if nothing matches.
func (r *Registry) closest(name string) string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}

	matches := fuzzy.Find(name, names)
	if len(matches) == 0 {
		return ""
	}

	sort.Stable(matches)

	return matches[0].Str
}

func (r *Registry) index(name string) int {
	return slices.IndexFunc(r.entries, func(e Entry) bool {
		return e.Name == name
	})
}
