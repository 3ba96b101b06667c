package uitest

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/muesli/termenv"

	tea "github.com/charmbracelet/bubbletea"
)

// Size is a terminal size.
type Size struct {
	Width  int
	Height int
}

// Terminal sizes for tests.
var (
	Compact  = Size{Width: 80, Height: 24}
	Standard = Size{Width: 120, Height: 40}
)

// DefaultTimeout bounds [WaitForText].
const DefaultTimeout = 3 * time.Second

// SetupColorProfile renders styles as TrueColor, so styled output does not
// depend on the terminal running the tests.
func SetupColorProfile() {
	lipgloss.SetColorProfile(termenv.TrueColor)
}

// NewTestModel starts m in a test program with the given terminal size.
func NewTestModel(tb testing.TB, m tea.Model, size Size) *teatest.TestModel {
	tb.Helper()

	return teatest.NewTestModel(tb, m, teatest.WithInitialTermSize(size.Width, size.Height))
}

// WaitForText waits until the program's output contains text, ignoring ANSI
// sequences, and returns the output read so far.
func WaitForText(tb testing.TB, tm *teatest.TestModel, text string) string {
	tb.Helper()

	var seen []byte

	teatest.WaitFor(tb, tm.Output(), func(b []byte) bool {
		seen = bytes.Clone(b)

		return strings.Contains(ansi.Strip(string(b)), text)
	}, teatest.WithDuration(DefaultTimeout), teatest.WithCheckInterval(10*time.Millisecond))

	return PlainText(string(seen))
}

// FinalOutput waits for the program to finish and returns its remaining
// output without ANSI sequences.
func FinalOutput(tb testing.TB, tm *teatest.TestModel, timeout time.Duration) string {
	tb.Helper()

	b, err := io.ReadAll(tm.FinalOutput(tb, teatest.WithFinalTimeout(timeout)))
	if err != nil {
		tb.Fatal(err)
	}

	return PlainText(string(b))
}

// PlainText strips ANSI sequences from s.
func PlainText(s string) string {
	return ansi.Strip(s)
}
