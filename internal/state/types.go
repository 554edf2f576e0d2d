package state

import (
	"time"

	"github.com/charmbracelet/x/ansi"
)

const UnknownMonitorID = "unknown"

// Sample is one latency measurement for a monitor.
type Sample struct {
	Monitor   string
	LatencyMs float64
	Timestamp time.Time
}

// MonitorInfo is a read-only summary of one monitor's recent samples.
type MonitorInfo struct {
	ID            string
	SampleCount   int
	FirstSampleAt time.Time
	LastSampleAt  time.Time
	LastLatencyMs float64
}

// Status classifies how recently the monitor reported.
func (m MonitorInfo) Status() MonitorStatus {
	return m.StatusAt(time.Now())
}

// StatusAt classifies the monitor relative to now.
func (m MonitorInfo) StatusAt(now time.Time) MonitorStatus {
	if m.LastSampleAt.IsZero() {
		return StatusSilent
	}
	elapsed := now.Sub(m.LastSampleAt)
	switch {
	case elapsed <= 5*time.Minute:
		return StatusReporting
	case elapsed <= time.Hour:
		return StatusStale
	default:
		return StatusSilent
	}
}

type MonitorStatus string

const (
	StatusReporting MonitorStatus = "reporting"
	StatusStale     MonitorStatus = "stale"
	StatusSilent    MonitorStatus = "silent"
)

// TruncateMonitorID returns a truncated monitor ID suitable for display.
// maxLen counts terminal cells; an ID wider than that is cut on a rune
// boundary and suffixed with "...".
func TruncateMonitorID(id string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if ansi.StringWidth(id) <= maxLen {
		return id
	}
	if maxLen <= 3 {
		return ansi.Truncate(id, maxLen, "")
	}
	return ansi.Truncate(id, maxLen, "...")
}
