package tui

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"
)

const (
	minWidth  = 40
	minHeight = 10

	// header, blank line, axis, cursor, dates, blank, tooltip, legend, help
	chartChrome = 10
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripAnsi(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// padRight pads a possibly styled string to w visible columns.
func padRight(s string, w int) string {
	if pad := w - lipgloss.Width(s); pad > 0 {
		return s + strings.Repeat(" ", pad)
	}
	return s
}

func (m Model) renderHeader(viewLabel string, keys help.KeyMap) string {
	title := " latency-top"
	indicators := m.headerIndicators()
	helpView := m.help.View(keys) + " "

	width := m.width
	if width < minWidth {
		width = minWidth
	}
	padding := width - lipgloss.Width(title) - lipgloss.Width(viewLabel) - lipgloss.Width(indicators) - lipgloss.Width(helpView)
	if padding < 0 {
		padding = 0
	}
	return m.theme.Header.Width(width).Render(
		title + viewLabel + indicators + strings.Repeat(" ", padding) + helpView)
}

// chartHeight returns the number of plot rows that fit the terminal,
// bounded by the configured chart height.
func (m Model) chartHeight() int {
	h := m.cfg.Display.ChartHeight
	if h < 3 {
		h = 3
	}
	if m.height >= minHeight {
		if avail := m.height - chartChrome; avail < h {
			h = avail
		}
	}
	if h < 3 {
		h = 3
	}
	return h
}
