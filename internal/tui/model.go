// Package tui is the terminal dashboard: a monitor list and a daily
// latency chart per monitor.
package tui

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/latency-top/internal/config"
	"github.com/nixlim/latency-top/internal/latency"
	"github.com/nixlim/latency-top/internal/state"
)

type ViewState int

const (
	ViewMonitors ViewState = iota
	ViewChart
)

type tickMsg time.Time

// StateProvider is the read side of the store used by the TUI.
type StateProvider interface {
	ListMonitors() []state.MonitorInfo
	QueryDayPoints(monitor string, days int) []latency.DayPoint
	DroppedWrites() int64
}

var defaultDayRanges = []int{7, 30, 90}

type Model struct {
	view     ViewState
	width    int
	height   int
	keys     KeyMap
	help     help.Model
	quitting bool

	cfg    config.Config
	state  StateProvider
	policy latency.Policy

	theme     Theme
	formatter Formatter

	monitorCursor int
	selected      string

	dayRanges []int
	daysIdx   int

	chart        latency.Chart
	pointCursor  int
	followLatest bool

	isPersistent bool
	refreshRate  time.Duration
	now          func() time.Time

	onShutdown func()
}

func NewModel(cfg config.Config, opts ...ModelOption) Model {
	ranges, idx := dayRangesFor(cfg.Display.HistoryDays)
	m := Model{
		view:         ViewMonitors,
		keys:         DefaultKeyMap(),
		help:         help.New(),
		cfg:          cfg,
		policy:       cfg.Scale.Policy(),
		theme:        ResolveTheme(cfg.Display.Theme),
		formatter:    NewFormatter(cfg.Display.Locale, nil),
		dayRanges:    ranges,
		daysIdx:      idx,
		followLatest: true,
		refreshRate:  time.Duration(cfg.Display.RefreshRateMS) * time.Millisecond,
		now:          time.Now,
	}
	if m.refreshRate <= 0 {
		m.refreshRate = time.Second
	}

	for _, opt := range opts {
		opt(&m)
	}

	return m
}

// dayRangesFor returns the ranges cycled by the days key, with the
// configured history window included, and the index of that window.
func dayRangesFor(days int) ([]int, int) {
	if days < 1 {
		days = 30
	}
	ranges := append([]int(nil), defaultDayRanges...)
	if !slices.Contains(ranges, days) {
		ranges = append(ranges, days)
		slices.Sort(ranges)
	}
	return ranges, slices.Index(ranges, days)
}

type ModelOption func(*Model)

func WithStateProvider(s StateProvider) ModelOption {
	return func(m *Model) { m.state = s }
}

func WithStartView(v ViewState) ModelOption {
	return func(m *Model) { m.view = v }
}

func WithOnShutdown(fn func()) ModelOption {
	return func(m *Model) { m.onShutdown = fn }
}

func WithPersistenceFlag(isPersistent bool) ModelOption {
	return func(m *Model) { m.isPersistent = isPersistent }
}

// WithLocation sets the location used to label days.
func WithLocation(loc *time.Location) ModelOption {
	return func(m *Model) { m.formatter = NewFormatter(m.cfg.Display.Locale, loc) }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) ModelOption {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTheme forces a theme instead of the configured one.
func WithTheme(t Theme) ModelOption {
	return func(m *Model) { m.theme = t }
}

func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		if m.view == ViewChart {
			m.refreshChart()
		}
		return m, m.tickCmd()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if m.onShutdown != nil {
			m.onShutdown()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Theme):
		m.theme = m.theme.Toggle()
		return m, nil
	}

	switch m.view {
	case ViewMonitors:
		return m.handleMonitorsKey(msg)
	case ViewChart:
		return m.handleChartKey(msg)
	}
	return m, nil
}

func (m Model) handleMonitorsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.monitorCursor > 0 {
			m.monitorCursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.monitorCursor < len(m.getMonitors())-1 {
			m.monitorCursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		monitors := m.getMonitors()
		if m.monitorCursor >= 0 && m.monitorCursor < len(monitors) {
			m.selected = monitors[m.monitorCursor].ID
			m.view = ViewChart
			m.followLatest = true
			m.refreshChart()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleChartKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Left):
		if m.pointCursor > 0 {
			m.pointCursor--
		}
		m.followLatest = m.pointCursor >= len(m.chart.Points)-1
		return m, nil

	case key.Matches(msg, m.keys.Right):
		if m.pointCursor < len(m.chart.Points)-1 {
			m.pointCursor++
		}
		m.followLatest = m.pointCursor >= len(m.chart.Points)-1
		return m, nil

	case key.Matches(msg, m.keys.Days):
		m.daysIdx = (m.daysIdx + 1) % len(m.dayRanges)
		m.followLatest = true
		m.refreshChart()
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		m.view = ViewMonitors
		m.selected = ""
		m.chart = latency.Chart{}
		return m, nil
	}
	return m, nil
}

// Days returns the current chart window in days.
func (m Model) Days() int { return m.dayRanges[m.daysIdx] }

// refreshChart rebuilds the chart of the selected monitor. The cursor
// stays on the newest day unless the user moved it away.
func (m *Model) refreshChart() {
	if m.state == nil || m.selected == "" {
		m.chart = latency.Chart{}
		return
	}
	m.chart = latency.BuildChart(m.state.QueryDayPoints(m.selected, m.Days()), m.policy)

	n := len(m.chart.Points)
	if m.followLatest || m.pointCursor >= n {
		m.pointCursor = n - 1
	}
	if m.pointCursor < 0 {
		m.pointCursor = 0
	}
}

func (m Model) getMonitors() []state.MonitorInfo {
	if m.state == nil {
		return nil
	}
	return m.state.ListMonitors()
}

func (m Model) headerIndicators() string {
	var parts []string
	if !m.isPersistent {
		parts = append(parts, "[No persistence]")
	}
	if m.state != nil && m.state.DroppedWrites() > 0 {
		parts = append(parts, "[!] Writes dropped")
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}

func (m Model) renderChartView() string {
	var sb strings.Builder

	label := " [Chart] " + state.TruncateMonitorID(m.selected, monitorIDWidth)
	sb.WriteString(m.renderHeader(label, chartHelp{m.keys}))
	sb.WriteByte('\n')

	scale := "auto scale"
	if c, ok := m.chart.Ceiling.Get(); ok {
		scale = "ceiling " + m.formatter.Latency(c)
	}
	sb.WriteString(m.theme.Dim.Render("  last " + strconv.Itoa(m.Days()) + " days · " + scale + " · " + m.theme.Name + " theme"))
	sb.WriteByte('\n')
	sb.WriteByte('\n')

	width := m.width
	if width < minWidth {
		width = minWidth
	}
	sb.WriteString(m.renderChart(m.chart, width, m.chartHeight()))
	sb.WriteByte('\n')
	if !m.chart.Empty() {
		sb.WriteString("  " + m.legend())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var output string
	switch m.view {
	case ViewMonitors:
		output = m.renderMonitorList()
	case ViewChart:
		output = m.renderChartView()
	}

	if m.height > 0 {
		lines := strings.Split(output, "\n")
		if len(lines) > m.height {
			lines = lines[:m.height]
			output = strings.Join(lines, "\n")
		}
	}

	return output
}
