package tui

import (
	"github.com/charmbracelet/lipgloss"
)

const (
	ThemeAuto  = "auto"
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Theme is the set of styles used to draw every view.
type Theme struct {
	Name string

	Header   lipgloss.Style
	Title    lipgloss.Style
	Dim      lipgloss.Style
	Selected lipgloss.Style

	P95      lipgloss.Style
	P50      lipgloss.Style
	Gap      lipgloss.Style
	Overflow lipgloss.Style
	Axis     lipgloss.Style

	Reporting lipgloss.Style
	Stale     lipgloss.Style
	Silent    lipgloss.Style
}

func DarkTheme() Theme {
	return Theme{
		Name: ThemeDark,
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("69")),
		Dim: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")),
		P95: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")),
		P50: lipgloss.NewStyle().
			Faint(true).
			Foreground(lipgloss.Color("110")),
		Gap: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		Overflow: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("208")),
		Axis: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		Reporting: lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")),
		Stale: lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")),
		Silent: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
	}
}

func LightTheme() Theme {
	return Theme{
		Name: ThemeLight,
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("25")),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("25")),
		Dim: lipgloss.NewStyle().
			Foreground(lipgloss.Color("246")),
		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("25")),
		P95: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("19")),
		P50: lipgloss.NewStyle().
			Faint(true).
			Foreground(lipgloss.Color("67")),
		Gap: lipgloss.NewStyle().
			Foreground(lipgloss.Color("248")),
		Overflow: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("166")),
		Axis: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		Reporting: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")),
		Stale: lipgloss.NewStyle().
			Foreground(lipgloss.Color("136")),
		Silent: lipgloss.NewStyle().
			Foreground(lipgloss.Color("160")),
	}
}

// ResolveTheme maps a configured theme name to a Theme. "auto" follows
// the terminal background.
func ResolveTheme(name string) Theme {
	switch name {
	case ThemeLight:
		return LightTheme()
	case ThemeDark:
		return DarkTheme()
	default:
		if lipgloss.HasDarkBackground() {
			return DarkTheme()
		}
		return LightTheme()
	}
}

// Toggle returns the opposite of t.
func (t Theme) Toggle() Theme {
	if t.Name == ThemeDark {
		return LightTheme()
	}
	return DarkTheme()
}
