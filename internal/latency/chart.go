package latency

// DayPoint is one aggregated day of latency statistics for a monitor.
// DayStartAt is the start of the day in unix seconds.
type DayPoint struct {
	DayStartAt int64 `json:"day_start_at"`
	P50        Value `json:"p50_latency_ms"`
	P95        Value `json:"p95_latency_ms"`
}

// PlotPoint is a DayPoint prepared for drawing. P50/P95 keep the raw
// values for tooltips; the Plot fields are absent where the raw value
// was clipped by the axis ceiling.
type PlotPoint struct {
	Day     int64 `json:"day"`
	P50     Value `json:"p50_latency_ms"`
	P95     Value `json:"p95_latency_ms"`
	P50Plot Value `json:"p50_latency_plot"`
	P95Plot Value `json:"p95_latency_plot"`
}

// Clipped reports whether either series has a gap at this point that
// was caused by the ceiling rather than by missing data.
func (p PlotPoint) Clipped() bool {
	return (p.P50.Valid() && !p.P50Plot.Valid()) || (p.P95.Valid() && !p.P95Plot.Valid())
}

// YAxis is the domain hint handed to the chart renderer. An empty YAxis
// means auto-scale.
type YAxis struct {
	Domain            []float64 `json:"domain,omitempty"`
	AllowDataOverflow bool      `json:"allow_data_overflow,omitempty"`
}

// Chart is the full, render-ready daily latency series.
type Chart struct {
	Points  []PlotPoint `json:"points"`
	Ceiling Value       `json:"ceiling"`
	YAxis   YAxis       `json:"y_axis"`
}

// Empty reports whether there is nothing to plot.
func (c Chart) Empty() bool { return len(c.Points) == 0 }

// Max returns the largest plotted value, or 0 for an empty chart.
func (c Chart) Max() float64 {
	var max float64
	for _, p := range c.Points {
		if v, ok := p.P95Plot.Get(); ok && v > max {
			max = v
		}
		if v, ok := p.P50Plot.Get(); ok && v > max {
			max = v
		}
	}
	return max
}

// Clip returns the value to plot for raw under ceiling c. A value above a
// present ceiling becomes a gap; it is never clamped.
func Clip(c, raw Value) Value {
	ceiling, ok := c.Get()
	if !ok {
		return raw
	}
	if v, present := raw.Get(); present && v > ceiling {
		return None()
	}
	return raw
}

// Samples flattens the P95 and P50 values of the points, skipping absent ones.
func Samples(points []DayPoint) []float64 {
	out := make([]float64, 0, len(points)*2)
	for _, p := range points {
		if v, ok := p.P95.Get(); ok {
			out = append(out, v)
		}
		if v, ok := p.P50.Get(); ok {
			out = append(out, v)
		}
	}
	return out
}

// BuildChart turns day points into a clipped chart. Negative, NaN and Inf
// values are treated as absent, and days without a P95 value are not
// plotted. Both series are clipped against one shared ceiling computed
// over every remaining sample.
func BuildChart(points []DayPoint, p Policy) Chart {
	kept := make([]DayPoint, 0, len(points))
	for _, dp := range points {
		dp.P50 = dp.P50.Usable()
		dp.P95 = dp.P95.Usable()
		if !dp.P95.Valid() {
			continue
		}
		kept = append(kept, dp)
	}

	ceiling := SuggestCeiling(Samples(kept), p)

	chart := Chart{
		Points:  make([]PlotPoint, 0, len(kept)),
		Ceiling: ceiling,
	}
	for _, dp := range kept {
		chart.Points = append(chart.Points, PlotPoint{
			Day:     dp.DayStartAt,
			P50:     dp.P50,
			P95:     dp.P95,
			P50Plot: Clip(ceiling, dp.P50),
			P95Plot: Clip(ceiling, dp.P95),
		})
	}
	if c, ok := ceiling.Get(); ok {
		chart.YAxis = YAxis{Domain: []float64{0, c}, AllowDataOverflow: true}
	}
	return chart
}
