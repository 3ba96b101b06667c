// Package ui provides the terminal UI of relay.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/macropower/relay/pkg/config"
	"github.com/macropower/relay/pkg/keys"
	"github.com/macropower/relay/pkg/log"
	"github.com/macropower/relay/pkg/viewmodel"
)

// Number of output lines shown for the selected command's last run.
const outputLines = 10

type focus int

const (
	focusCommands focus = iota
	focusItems
	focusInput
)

// Run shows vm until the user quits or ctx is done.
func Run(ctx context.Context, cfg *config.UIConfig, vm *viewmodel.Main, opts ...tea.ProgramOption) error {
	log.WithContext(ctx).DebugContext(ctx, "starting relay ui")

	m := NewModel(ctx, cfg, vm)

	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	p := tea.NewProgram(m, opts...)

	stop := m.Watch(p.Send)
	defer stop()

	_, err := p.Run()
	if err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return fmt.Errorf("run ui: %w", err)
	}

	return nil
}

// Model is the bubbletea model of the relay UI.
type Model struct {
	ctx       context.Context //nolint:containedctx // Base context for runs.
	vm        *viewmodel.Main
	kb        *keys.KeyBinds
	watcher   *watcher
	busySince map[string]time.Time
	now       func() time.Time
	styles    styles
	title     string
	status    string
	input     textinput.Model
	spinner   spinner.Model
	minDelay  time.Duration
	width     int
	height    int
	command   int
	item      int
	focus     focus
	compact   bool
	showHelp  bool
}

// NewModel creates a [Model] for vm. A nil cfg uses the defaults.
func NewModel(ctx context.Context, cfg *config.UIConfig, vm *viewmodel.Main) *Model {
	if cfg == nil {
		cfg = &config.UIConfig{}
	}

	cfg.EnsureDefaults()

	sp := spinner.New()
	sp.Spinner = spinner.Line

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "text or command arguments"

	m := &Model{
		ctx:       ctx,
		vm:        vm,
		kb:        cfg.KeyBinds,
		watcher:   newWatcher(vm),
		busySince: map[string]time.Time{},
		now:       time.Now,
		styles:    newStyles(),
		title:     cfg.Title,
		input:     ti,
		spinner:   sp,
		minDelay:  cfg.MinimumDelay.Duration,
		compact:   cfg.Compact,
		width:     80,
		height:    24,
	}

	m.spinner.Style = m.styles.Spinner
	m.input.SetValue(vm.Text())

	return m
}

// Watch sends a message with send whenever the view-model changes, until
// the returned function is called.
func (m *Model) Watch(send func(tea.Msg)) func() {
	m.watcher.start(send)

	return m.watcher.stop
}

// Init implements [tea.Model].
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements [tea.Model].
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-4)

	case changedMsg:
		m.watcher.ack()

		return m, m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd

		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.focus == focusInput {
		switch {
		case key == "ctrl+c":
			return m, tea.Quit

		case m.kb.Blur.Match(key):
			m.input.Blur()
			m.focus = focusCommands

			return m, nil

		case m.kb.Run.Match(key):
			return m, m.run()
		}

		var cmd tea.Cmd

		m.input, cmd = m.input.Update(msg)
		m.vm.SetText(m.input.Value())

		return m, cmd
	}

	switch {
	case m.kb.Quit.Match(key):
		return m, tea.Quit

	case m.kb.Help.Match(key):
		m.showHelp = !m.showHelp

	case m.kb.Up.Match(key):
		m.move(-1)

	case m.kb.Down.Match(key):
		m.move(1)

	case m.kb.Focus.Match(key):
		if m.focus == focusCommands {
			m.focus = focusItems
			m.move(0)
		} else {
			m.focus = focusCommands
		}

	case m.kb.Edit.Match(key):
		m.focus = focusInput

		return m, m.input.Focus()

	case m.kb.Run.Match(key):
		return m, m.run()

	case m.kb.Cancel.Match(key):
		if e, ok := m.selectedEntry(); ok {
			if err := m.vm.Registry().Cancel(e.Name); err != nil {
				m.status = err.Error()
			}
		}
	}

	return m, nil
}

// move moves the cursor of the focused list by delta.
func (m *Model) move(delta int) {
	switch m.focus {
	case focusCommands:
		n := len(m.vm.Registry().List())
		m.command = clamp(m.command+delta, n)

	case focusItems:
		items := m.vm.Items.Items()
		m.item = clamp(m.item+delta, len(items))

		if len(items) > 0 {
			m.vm.SetSelectedItem(items[m.item])
		}
	}
}

// run runs the selected command. Configured commands receive the input text
// as their argument. Built-in commands act on the view-model's own state.
func (m *Model) run() tea.Cmd {
	e, ok := m.selectedEntry()
	if !ok {
		return nil
	}

	var arg any = ""
	if e.Source == viewmodel.SourceConfig {
		arg = m.input.Value()
	}

	_, err := m.vm.Registry().Run(m.ctx, e.Name, arg)
	if err != nil {
		m.status = err.Error()

		log.WithContext(m.ctx).DebugContext(m.ctx, "run rejected",
			slog.String("command", e.Name),
			slog.Any("error", err),
		)

		return nil
	}

	m.status = ""

	// Built-in commands may have changed the text.
	if v := m.vm.Text(); v != m.input.Value() {
		m.input.SetValue(v)
	}

	return m.refresh()
}

// refresh syncs local state with the view-model. It returns a tick when a
// running indicator is held for the minimum delay.
func (m *Model) refresh() tea.Cmd {
	items := m.vm.Items.Items()
	if i := slices.Index(items, m.vm.SelectedItem()); i >= 0 {
		m.item = i
	}

	m.item = clamp(m.item, len(items))
	m.command = clamp(m.command, len(m.vm.Registry().List()))

	if m.focus != focusInput && m.vm.Text() != m.input.Value() {
		m.input.SetValue(m.vm.Text())
	}

	var wait time.Duration

	now := m.now()

	for _, e := range m.vm.Registry().List() {
		ac := e.Async()
		if ac == nil {
			continue
		}

		since, held := m.busySince[e.Name]

		switch {
		case ac.IsExecuting():
			if !held {
				m.busySince[e.Name] = now
			}

		case held:
			remaining := m.minDelay - now.Sub(since)
			if remaining <= 0 {
				delete(m.busySince, e.Name)

				continue
			}

			if wait == 0 || remaining < wait {
				wait = remaining
			}
		}
	}

	if wait == 0 {
		return nil
	}

	return tea.Tick(wait, func(time.Time) tea.Msg {
		return changedMsg{}
	})
}

func (m *Model) selectedEntry() (viewmodel.Entry, bool) {
	entries := m.vm.Registry().List()
	if m.command < 0 || m.command >= len(entries) {
		return viewmodel.Entry{}, false
	}

	return entries[m.command], true
}

func (m *Model) busy(e viewmodel.Entry) bool {
	if ac := e.Async(); ac != nil && ac.IsExecuting() {
		return true
	}

	_, held := m.busySince[e.Name]

	return held
}

// View implements [tea.Model].
func (m *Model) View() string {
	sections := []string{
		m.styles.Logo.Render(m.title),
		lipgloss.JoinHorizontal(lipgloss.Top,
			m.styles.Pane.Render(m.commandsView()),
			m.styles.Pane.Render(m.itemsView()),
		),
		m.inputView(),
	}

	if out := m.outputView(); out != "" {
		sections = append(sections, out)
	}

	if msg := m.vm.Message(); msg != "" {
		sections = append(sections, keys.Truncate(msg, m.width))
	}

	if m.status != "" {
		sections = append(sections, m.styles.ErrorTitle.Render("ERROR")+" "+m.styles.Error.Render(m.status))
	}

	sections = append(sections, m.helpView())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) commandsView() string {
	var sb strings.Builder

	sb.WriteString(m.heading("Commands", focusCommands))

	arg := m.input.Value()

	for i, e := range m.vm.Registry().List() {
		sb.WriteString("\n")

		cursor := "  "
		style := m.styles.Normal

		if i == m.command {
			cursor = "> "
			style = m.styles.Selected
		}

		var canRunArg any = ""
		if e.Source == viewmodel.SourceConfig {
			canRunArg = arg
		}

		if !e.Command.CanRun(canRunArg) && i != m.command {
			style = m.styles.Disabled
		}

		line := cursor + style.Render(e.Name)

		if m.busy(e) {
			line += " " + m.spinner.View()
		}

		if !m.compact && e.Description != "" {
			line += "  " + m.styles.Subtle.Render(e.Description)
		}

		sb.WriteString(line)
	}

	return sb.String()
}

func (m *Model) itemsView() string {
	var sb strings.Builder

	sb.WriteString(m.heading("Items", focusItems))

	items := m.vm.Items.Items()
	if len(items) == 0 {
		sb.WriteString("\n" + m.styles.Subtle.Render("  (empty)"))
	}

	selected := m.vm.SelectedItem()

	for _, item := range items {
		sb.WriteString("\n")

		if item == selected {
			sb.WriteString("> " + m.styles.Selected.Render(item))

			continue
		}

		sb.WriteString("  " + item)
	}

	return sb.String()
}

func (m *Model) inputView() string {
	return m.heading("Input", focusInput) + "\n" + m.input.View()
}

func (m *Model) outputView() string {
	e, ok := m.selectedEntry()
	if !ok {
		return ""
	}

	op, ok := m.vm.Operations().Last(e.Name)
	if !ok {
		return ""
	}

	statusStyle := m.styles.Subtle

	switch {
	case op.Error != "":
		statusStyle = m.styles.Error
	case op.Done:
		statusStyle = m.styles.Success
	}

	header := fmt.Sprintf("%s %s %s", op.Command, statusStyle.Render(op.Status), m.styles.Subtle.Render(humanize.Time(op.Started)))
	if op.Result != nil {
		header += m.styles.Subtle.Render(fmt.Sprintf(" in %s, exit %d", op.Result.Duration.Round(time.Millisecond), op.Result.ExitCode))
	}

	lines := []string{header}

	if op.Result != nil {
		lines = append(lines, lastLines(op.Result.Stdout+op.Result.Stderr, min(outputLines, max(1, m.height/3)), m.width-2)...)
	}

	if op.Error != "" {
		lines = append(lines, m.styles.Error.Render(keys.Truncate(op.Error, m.width-2)))
	}

	return m.styles.Output.Render(strings.Join(lines, "\n"))
}

func (m *Model) helpView() string {
	var r keys.Renderer

	if m.focus == focusInput {
		r.AddColumn(m.kb.Run, m.kb.Blur)
	} else {
		r.AddColumn(m.kb.Up, m.kb.Down, m.kb.Focus)
		r.AddColumn(m.kb.Run, m.kb.Cancel, m.kb.Edit)
		r.AddColumn(m.kb.Help, m.kb.Quit)
	}

	if m.showHelp {
		return m.styles.Subtle.Render(r.Full(m.width))
	}

	return m.styles.Subtle.Render(r.Short(m.width))
}

func (m *Model) heading(s string, f focus) string {
	if m.focus == f {
		return m.styles.Heading.Foreground(fuchsia).Render(s)
	}

	return m.styles.Heading.Render(s)
}

func lastLines(s string, n, width int) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}

	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	for i, l := range lines {
		lines[i] = keys.Truncate(l, width)
	}

	return lines
}

func clamp(i, n int) int {
	if n == 0 {
		return 0
	}

	return min(max(i, 0), n-1)
}
