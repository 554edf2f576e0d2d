package tui

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/nixlim/latency-top/internal/state"
)

const monitorIDWidth = 28

func (m Model) statusStyle(s state.MonitorStatus) string {
	switch s {
	case state.StatusReporting:
		return m.theme.Reporting.Render("● " + string(s))
	case state.StatusStale:
		return m.theme.Stale.Render("◐ " + string(s))
	default:
		return m.theme.Silent.Render("○ " + string(s))
	}
}

// renderMonitorList draws one row per monitor with its status, sample
// count, last latency and how long ago it last reported.
func (m Model) renderMonitorList() string {
	var sb strings.Builder
	sb.WriteString(m.renderHeader(" [Monitors]", listHelp{m.keys}))
	sb.WriteByte('\n')

	monitors := m.getMonitors()
	if len(monitors) == 0 {
		sb.WriteByte('\n')
		sb.WriteString(m.theme.Dim.Render("  No monitors reporting yet"))
		sb.WriteByte('\n')
		sb.WriteString(m.theme.Dim.Render(fmt.Sprintf(
			"  Send OTLP latency metrics to %s:%d (gRPC) or %s:%d (HTTP)",
			m.cfg.Receiver.Bind, m.cfg.Receiver.GRPCPort, m.cfg.Receiver.Bind, m.cfg.Receiver.HTTPPort)))
		sb.WriteByte('\n')
		return sb.String()
	}

	sb.WriteByte('\n')
	sb.WriteString(m.theme.Dim.Render(fmt.Sprintf("  %-*s %-14s %10s %12s  %s",
		monitorIDWidth, "Monitor", "Status", "Samples", "Last", "Last seen")))
	sb.WriteByte('\n')
	sb.WriteString(m.theme.Dim.Render("  " + strings.Repeat("─", monitorIDWidth+56)))
	sb.WriteByte('\n')

	now := m.now()
	visibleH := m.height - 6
	if visibleH < 1 {
		visibleH = len(monitors)
	}
	start := 0
	if m.monitorCursor >= visibleH {
		start = m.monitorCursor - visibleH + 1
	}
	end := start + visibleH
	if end > len(monitors) {
		end = len(monitors)
	}

	for i := start; i < end; i++ {
		mon := monitors[i]

		lastSeen := "never"
		if !mon.LastSampleAt.IsZero() {
			lastSeen = humanize.RelTime(mon.LastSampleAt, now, "ago", "from now")
		}
		last := "-"
		if !mon.LastSampleAt.IsZero() {
			last = m.formatter.Latency(mon.LastLatencyMs)
		}

		id := padRight(state.TruncateMonitorID(mon.ID, monitorIDWidth), monitorIDWidth)
		row := fmt.Sprintf("%s %s %10s %12s  %s",
			id,
			padRight(m.statusStyle(mon.StatusAt(now)), 14),
			humanize.Comma(int64(mon.SampleCount)),
			last,
			lastSeen)

		if i == m.monitorCursor {
			sb.WriteString(m.theme.Selected.Render("> " + stripAnsi(row)))
		} else {
			sb.WriteString("  " + row)
		}
		sb.WriteByte('\n')
	}

	return sb.String()
}
