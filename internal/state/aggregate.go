package state

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/nixlim/latency-top/internal/latency"
)

// DaySummary holds the latency percentiles of one calendar day.
type DaySummary struct {
	Date        string // 2006-01-02 in the aggregation location
	DayStartAt  int64  // unix seconds of local midnight
	P50Ms       float64
	P95Ms       float64
	SampleCount int
}

// Point converts the summary into a chart day point.
func (d DaySummary) Point() latency.DayPoint {
	return latency.DayPoint{
		DayStartAt: d.DayStartAt,
		P50:        latency.Some(d.P50Ms),
		P95:        latency.Some(d.P95Ms),
	}
}

// StartOfDay returns local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ValidLatency reports whether ms can take part in percentile statistics.
func ValidLatency(ms float64) bool {
	return ms >= 0 && !math.IsNaN(ms) && !math.IsInf(ms, 0)
}

// AggregateDays buckets samples by calendar day in loc and computes the
// P50 and P95 of each day. Invalid latencies are skipped. Days are
// returned oldest first; days without samples are omitted.
func AggregateDays(samples []Sample, loc *time.Location) []DaySummary {
	if loc == nil {
		loc = time.Local
	}

	byDay := make(map[int64][]float64)
	for _, s := range samples {
		if !ValidLatency(s.LatencyMs) || s.Timestamp.IsZero() {
			continue
		}
		day := StartOfDay(s.Timestamp, loc).Unix()
		byDay[day] = append(byDay[day], s.LatencyMs)
	}

	days := make([]int64, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	result := make([]DaySummary, 0, len(days))
	for _, d := range days {
		vals := byDay[d]
		sort.Float64s(vals)
		result = append(result, DaySummary{
			Date:        time.Unix(d, 0).In(loc).Format("2006-01-02"),
			DayStartAt:  d,
			P50Ms:       stat.Quantile(0.50, stat.Empirical, vals, nil),
			P95Ms:       stat.Quantile(0.95, stat.Empirical, vals, nil),
			SampleCount: len(vals),
		})
	}
	return result
}

// Points converts summaries into chart day points.
func Points(summaries []DaySummary) []latency.DayPoint {
	out := make([]latency.DayPoint, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, s.Point())
	}
	return out
}
