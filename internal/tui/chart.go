package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/latency-top/internal/latency"
)

const (
	p95Glyph       = "█"
	p50Glyph       = "▒"
	gapMarker      = "┆"
	overflowMarker = "↑"
	cursorMarker   = "▲"

	yLabelWidth = 9
	slotWidth   = 2
)

// chartWindow returns the [start, end) range of points that fits in
// plotW columns while keeping cursor visible.
func chartWindow(n, cursor, plotW int) (int, int) {
	visible := plotW / slotWidth
	if visible < 1 {
		visible = 1
	}
	if n <= visible {
		return 0, n
	}
	start := n - visible
	if cursor < start {
		start = cursor
	}
	if start < 0 {
		start = 0
	}
	return start, start + visible
}

// fillLevel returns how many of h rows a value of v fills on an axis
// topping out at yMax.
func fillLevel(v, yMax float64, h int) int {
	if yMax <= 0 || v <= 0 {
		return 0
	}
	lvl := int(math.Round(v / yMax * float64(h)))
	if lvl > h {
		lvl = h
	}
	return lvl
}

// chartCell picks the glyph for one point at row b counted from the
// bottom (1..h). Clipped series leave a dotted gap topped by an arrow.
func (m Model) chartCell(p latency.PlotPoint, b, h int, yMax float64) string {
	p95Clipped := p.P95.Valid() && !p.P95Plot.Valid()
	p50Clipped := p.P50.Valid() && !p.P50Plot.Valid()

	var p95Lvl, p50Lvl int
	if v, ok := p.P95Plot.Get(); ok {
		p95Lvl = fillLevel(v, yMax, h)
	}
	if v, ok := p.P50Plot.Get(); ok {
		p50Lvl = fillLevel(v, yMax, h)
	}

	switch {
	case b == h && (p95Clipped || p50Clipped):
		return m.theme.Overflow.Render(overflowMarker)
	case b <= p50Lvl:
		return m.theme.P50.Render(p50Glyph)
	case b <= p95Lvl:
		return m.theme.P95.Render(p95Glyph)
	case p95Clipped:
		return m.theme.Gap.Render(gapMarker)
	default:
		return " "
	}
}

// renderChart draws the chart into w columns and h plot rows, followed by
// the x axis, a cursor line, date labels and a tooltip for the point
// under the cursor.
func (m Model) renderChart(c latency.Chart, w, h int) string {
	if c.Empty() {
		return m.theme.Dim.Render("  No latency data")
	}
	if h < 3 {
		h = 3
	}

	plotW := w - yLabelWidth - 1
	if plotW < slotWidth {
		plotW = slotWidth
	}

	cursor := m.pointCursor
	if cursor < 0 || cursor >= len(c.Points) {
		cursor = len(c.Points) - 1
	}
	start, end := chartWindow(len(c.Points), cursor, plotW)
	points := c.Points[start:end]

	yMax, hasCeiling := c.Ceiling.Get()
	if !hasCeiling {
		yMax = c.Max()
	}
	if yMax <= 0 {
		yMax = 1
	}

	var sb strings.Builder
	for r := 0; r < h; r++ {
		b := h - r

		var label string
		switch r {
		case 0:
			label = m.formatter.Latency(yMax)
		case h / 2:
			label = m.formatter.Latency(yMax * float64(b) / float64(h))
		}
		sb.WriteString(m.theme.Axis.Render(fmt.Sprintf("%*s ┤", yLabelWidth-2, label)))

		for _, p := range points {
			sb.WriteString(m.chartCell(p, b, h, yMax))
			sb.WriteString(strings.Repeat(" ", slotWidth-1))
		}
		sb.WriteByte('\n')
	}

	axisW := len(points) * slotWidth
	sb.WriteString(m.theme.Axis.Render(fmt.Sprintf("%*s └", yLabelWidth-2, "0") + strings.Repeat("─", axisW)))
	sb.WriteByte('\n')

	sb.WriteString(strings.Repeat(" ", yLabelWidth))
	sb.WriteString(strings.Repeat(" ", (cursor-start)*slotWidth))
	sb.WriteString(m.theme.Selected.Render(cursorMarker))
	sb.WriteByte('\n')

	first := m.formatter.Day(points[0].Day)
	last := m.formatter.Day(points[len(points)-1].Day)
	sb.WriteString(strings.Repeat(" ", yLabelWidth))
	if len(points) > 1 {
		gap := axisW - lipgloss.Width(first) - lipgloss.Width(last)
		if gap < 1 {
			gap = 1
		}
		sb.WriteString(m.theme.Dim.Render(first + strings.Repeat(" ", gap) + last))
	} else {
		sb.WriteString(m.theme.Dim.Render(first))
	}
	sb.WriteByte('\n')
	sb.WriteByte('\n')

	sb.WriteString(m.tooltip(c.Points[cursor], c.Ceiling))
	return sb.String()
}

// tooltip always shows the raw values, clipped or not.
func (m Model) tooltip(p latency.PlotPoint, ceiling latency.Value) string {
	parts := []string{
		m.theme.Title.Render(m.formatter.LongDay(p.Day)),
		m.theme.P95.Render("P95 " + m.formatValue(p.P95)),
		m.theme.P50.Render("P50 " + m.formatValue(p.P50)),
	}
	if c, ok := ceiling.Get(); ok && p.Clipped() {
		parts = append(parts, m.theme.Overflow.Render(overflowMarker+" above "+m.formatter.Latency(c)))
	}
	return "  " + strings.Join(parts, "  ")
}

func (m Model) formatValue(v latency.Value) string {
	if ms, ok := v.Get(); ok {
		return m.formatter.Latency(ms)
	}
	return "-"
}

func (m Model) legend() string {
	return m.theme.P95.Render(p95Glyph+" P95") + "  " +
		m.theme.P50.Render(p50Glyph+" P50") + "  " +
		m.theme.Gap.Render(gapMarker+" clipped") + "  " +
		m.theme.Overflow.Render(overflowMarker+" above ceiling")
}
