// Package viewmodel contains relay's view-model: a list of items edited
// through commands, plus the commands declared in the configuration file.
//
// Views never call into the view-model directly. They hold command
// references, ask CanRun, call Run, and redraw when notified.
package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/atotto/clipboard"

	"github.com/macropower/relay/pkg/command"
	"github.com/macropower/relay/pkg/config"
	"github.com/macropower/relay/pkg/expr"
	"github.com/macropower/relay/pkg/notify"
)

// Observable properties of [Main].
const (
	PropertyText         = "Text"
	PropertySelectedItem = "SelectedItem"
	PropertyMessage      = "Message"
)

// Names of the built-in commands.
const (
	CommandShow   = "show"
	CommandAdd    = "add"
	CommandRemove = "remove"
	CommandCopy   = "copy"
)

// ErrEmptyClipboardText is returned when copying an empty string.
var ErrEmptyClipboardText = errors.New("nothing to copy")

// Option configures [Main].
type Option func(*mainOptions)

type mainOptions struct {
	ctx        context.Context //nolint:containedctx // Base context for commands.
	dispatcher notify.Dispatcher
	clipboard  func(string) error
	items      []string
	capacity   int
}

// WithDispatcher delivers every notification of the view-model, its
// collection and its commands through d.
func WithDispatcher(d notify.Dispatcher) Option {
	return func(o *mainOptions) {
		o.dispatcher = d
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(fn func(string) error) Option {
	return func(o *mainOptions) {
		o.clipboard = fn
	}
}

// WithItems sets the initial items.
func WithItems(items ...string) Option {
	return func(o *mainOptions) {
		o.items = items
	}
}

// WithOperationCapacity sets how many runs the operation log keeps.
func WithOperationCapacity(n int) Option {
	return func(o *mainOptions) {
		o.capacity = n
	}
}

// WithContext sets the base context of asynchronous commands.
func WithContext(ctx context.Context) Option {
	return func(o *mainOptions) {
		o.ctx = ctx
	}
}

// Main is the main view-model.
type Main struct {
	*notify.Notifier

	// Items is the list edited by Add and Remove.
	Items *notify.Collection[string]

	// Show publishes the current text as the message.
	Show *command.Sync
	// Add appends the current text to Items and clears the text.
	Add *command.Sync
	// Remove removes its argument, or the selected item, from Items.
	Remove *command.SyncOf[string]
	// Copy writes its argument, or the selected item, to the clipboard.
	Copy *command.AsyncOf[string]

	registry   *Registry
	dispatcher notify.Dispatcher
	ctx        context.Context //nolint:containedctx // Base context for commands.
	text       string
	selected   string
	message    string
	mu         sync.RWMutex
}

// NewMain creates the main view-model with its built-in commands registered.
func NewMain(opts ...Option) *Main {
	o := &mainOptions{
		ctx:       context.Background(),
		clipboard: clipboard.WriteAll,
	}
	for _, opt := range opts {
		opt(o)
	}

	m := &Main{
		Items:      notify.NewCollection(o.items...),
		registry:   NewRegistry(NewOperations(o.capacity)),
		dispatcher: o.dispatcher,
		ctx:        o.ctx,
	}
	m.Notifier = notify.New(m, PropertyText, PropertySelectedItem, PropertyMessage)

	m.Notifier.SetDispatcher(o.dispatcher)
	m.Items.SetDispatcher(o.dispatcher)
	m.registry.SetDispatcher(o.dispatcher)
	m.registry.Operations().SetDispatcher(o.dispatcher)

	m.Show = command.NewSync(m.show, m.hasText, m.commandOpts(CommandShow)...)
	m.Add = command.NewSync(m.add, m.canAdd, m.commandOpts(CommandAdd)...)
	m.Remove = command.NewSyncOf(m.remove, m.canRemove, m.commandOpts(CommandRemove)...)
	m.Copy = command.NewAsyncOf(func(_ context.Context, s string) error {
		return m.copy(o.clipboard, s)
	}, func(s string) bool {
		return m.target(s) != ""
	}, m.commandOpts(CommandCopy)...)

	m.Items.Subscribe(func(notify.PropertyChanged) {
		m.Add.RaiseCanRunChanged()
		m.Remove.RaiseCanRunChanged()
	})

	for _, e := range []Entry{
		{Command: m.Show, Description: "Show the current text"},
		{Command: m.Add, Description: "Add the current text to the list"},
		{Command: m.Remove, Description: "Remove an item (default: the selected item)"},
		{Command: m.Copy, Description: "Copy an item to the clipboard (default: the selected item)"},
	} {
		e.Source = SourceBuiltin
		if err := m.registry.Register(e); err != nil {
			panic(err)
		}
	}

	return m
}

// Registry returns the registry holding every command of the view-model.
func (m *Main) Registry() *Registry {
	return m.registry
}

// Operations returns the log of command runs.
func (m *Main) Operations() *Operations {
	return m.registry.Operations()
}

// Text returns the text being edited.
func (m *Main) Text() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.text
}

// SetText sets the text being edited.
func (m *Main) SetText(s string) {
	if m.set(&m.text, s, PropertyText) {
		m.Show.RaiseCanRunChanged()
		m.Add.RaiseCanRunChanged()
		m.Copy.RaiseCanRunChanged()
	}
}

// SelectedItem returns the selected item, or an empty string.
func (m *Main) SelectedItem() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.selected
}

// SetSelectedItem selects s.
func (m *Main) SetSelectedItem(s string) {
	if m.set(&m.selected, s, PropertySelectedItem) {
		m.Remove.RaiseCanRunChanged()
		m.Copy.RaiseCanRunChanged()
	}
}

// Message returns the last message published by a command.
func (m *Main) Message() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.message
}

// State returns the values exposed to canRun expressions.
func (m *Main) State() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]any{
		"text":     m.text,
		"selected": m.selected,
		"items":    m.Items.Items(),
	}
}

// LoadConfig replaces the configured commands with the commands declared in
// c. Predicates are compiled with env.
func (m *Main) LoadConfig(c *config.Config, env *expr.Environment) error {
	entries := make([]Entry, 0, len(c.Commands))

	for _, cc := range c.Commands {
		cmd, err := NewExternal(cc, env, m.Operations(), m.State, m.commandOpts(cc.Name)...)
		if err != nil {
			return err
		}

		entries = append(entries, Entry{
			Command:     cmd,
			Description: cc.Description,
		})
	}

	err := m.registry.Replace(SourceConfig, entries)
	if err != nil {
		return fmt.Errorf("register configured commands: %w", err)
	}

	return nil
}

func (m *Main) commandOpts(name string) []command.Option {
	return []command.Option{
		command.WithName(name),
		command.WithContext(m.ctx),
		command.WithDispatcher(m.dispatcher),
		command.WithExceptionHandler(func(err error) {
			m.fail(name, err)
		}),
	}
}

func (m *Main) set(field *string, v, name string) bool {
	m.mu.Lock()

	if *field == v {
		m.mu.Unlock()

		return false
	}

	*field = v
	m.mu.Unlock()

	m.NotifyProperty(name)

	return true
}

func (m *Main) fail(name string, err error) {
	slog.Warn("command failed",
		slog.String("command", name),
		slog.Any("error", err),
	)

	m.set(&m.message, fmt.Sprintf("%s: %v", name, err), PropertyMessage)
}

func (m *Main) hasText() bool {
	return m.Text() != ""
}

func (m *Main) show() error {
	m.set(&m.message, m.Text(), PropertyMessage)

	return nil
}

func (m *Main) canAdd() bool {
	text := m.Text()

	return text != "" && m.Items.IndexOf(text) < 0
}

func (m *Main) add() error {
	text := m.Text()

	m.Items.Add(text)
	m.SetText("")
	m.SetSelectedItem(text)

	return nil
}

// target resolves an item argument, defaulting to the selected item.
func (m *Main) target(s string) string {
	if s != "" {
		return s
	}

	return m.SelectedItem()
}

func (m *Main) canRemove(s string) bool {
	return m.Items.IndexOf(m.target(s)) >= 0
}

func (m *Main) remove(s string) error {
	item := m.target(s)

	i := m.Items.IndexOf(item)
	if !m.Items.RemoveAt(i) {
		return nil
	}

	if m.SelectedItem() == item {
		items := m.Items.Items()

		next := ""
		if len(items) > 0 {
			next = items[min(i, len(items)-1)]
		}

		m.SetSelectedItem(next)
	}

	return nil
}

func (m *Main) copy(write func(string) error, s string) error {
	item := m.target(s)
	if item == "" {
		return ErrEmptyClipboardText
	}

	if err := write(item); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}

	m.set(&m.message, "copied "+item, PropertyMessage)

	return nil
}
