package cli

import (
	"image/color"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/exp/charmtone"
)

// ColorScheme returns the help and error colors of the relay command line,
// matching the terminal UI.
func ColorScheme(c lipgloss.LightDarkFunc) fang.ColorScheme {
	var (
		text    = c(charmtone.Charcoal, charmtone.Salt)
		subtle  = c(lipgloss.Color("#909090"), lipgloss.Color("#626262"))
		fuchsia = lipgloss.Color("#EE6FF8")
		dull    = c(lipgloss.Color("#F793FF"), lipgloss.Color("#AD58B4"))
		red     = c(lipgloss.Color("#FF4672"), lipgloss.Color("#ED567A"))
	)

	return fang.ColorScheme{
		Base:           text,
		Title:          fuchsia,
		Codeblock:      c(charmtone.Salt, lipgloss.Color("#2F2E36")),
		Program:        fuchsia,
		Command:        fuchsia,
		DimmedArgument: subtle,
		Comment:        subtle,
		Flag:           fuchsia,
		Argument:       text,
		Description:    text,
		FlagDefault:    dull,
		QuotedString:   text,
		ErrorHeader: [2]color.Color{
			lipgloss.Color("#FFFDF5"),
			red,
		},
	}
}
