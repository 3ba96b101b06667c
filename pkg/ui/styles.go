package ui

import "github.com/charmbracelet/lipgloss"

// Colors.
var (
	gray        = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	brightGray  = lipgloss.AdaptiveColor{Light: "#847A85", Dark: "#979797"}
	cream       = lipgloss.AdaptiveColor{Light: "#FFFDF5", Dark: "#FFFDF5"}
	yellowGreen = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#ECFD65"}
	fuchsia     = lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}
	dullFuchsia = lipgloss.AdaptiveColor{Light: "#F793FF", Dark: "#AD58B4"}
	green       = lipgloss.Color("#04B575")
	red         = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
)

type styles struct {
	Logo       lipgloss.Style
	Heading    lipgloss.Style
	Selected   lipgloss.Style
	Normal     lipgloss.Style
	Disabled   lipgloss.Style
	Subtle     lipgloss.Style
	Success    lipgloss.Style
	Error      lipgloss.Style
	ErrorTitle lipgloss.Style
	Pane       lipgloss.Style
	Output     lipgloss.Style
	Spinner    lipgloss.Style
}

func newStyles() styles {
	return styles{
		Logo: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(fuchsia).
			Bold(true).
			Padding(0, 1),
		Heading:    lipgloss.NewStyle().Foreground(brightGray).Bold(true),
		Selected:   lipgloss.NewStyle().Foreground(fuchsia),
		Normal:     lipgloss.NewStyle(),
		Disabled:   lipgloss.NewStyle().Foreground(gray),
		Subtle:     lipgloss.NewStyle().Foreground(gray),
		Success:    lipgloss.NewStyle().Foreground(green),
		Error:      lipgloss.NewStyle().Foreground(red),
		ErrorTitle: lipgloss.NewStyle().Foreground(cream).Background(red).Padding(0, 1),
		Pane:       lipgloss.NewStyle().PaddingRight(2),
		Output: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(dullFuchsia).
			PaddingLeft(1),
		Spinner: lipgloss.NewStyle().Foreground(yellowGreen),
	}
}
