package receiver

import (
	"math"
	"strconv"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"

	"github.com/nixlim/latency-top/internal/config"
	"github.com/nixlim/latency-top/internal/state"
)

const serviceNameAttribute = "service.name"

// Extractor turns OTLP metric payloads into latency samples.
type Extractor struct {
	names       map[string]bool
	monitorAttr string
}

// NewExtractor builds an Extractor for cfg. An empty metric name list
// accepts every metric.
func NewExtractor(cfg config.IngestConfig) *Extractor {
	names := make(map[string]bool, len(cfg.MetricNames))
	for _, n := range cfg.MetricNames {
		names[n] = true
	}
	attr := cfg.MonitorAttribute
	if attr == "" {
		attr = "monitor.id"
	}
	return &Extractor{names: names, monitorAttr: attr}
}

// Extracted is a sample together with the metric it came from.
type Extracted struct {
	Metric string
	Sample state.Sample
}

// Extract returns the samples found in rms and the number of data points
// of matching metrics that carried no usable latency.
func (e *Extractor) Extract(rms []*metricspb.ResourceMetrics) ([]Extracted, int64) {
	var (
		out      []Extracted
		rejected int64
	)

	for _, rm := range rms {
		resAttrs := rm.GetResource().GetAttributes()
		resMonitor := attrString(resAttrs, e.monitorAttr)
		if resMonitor == "" {
			resMonitor = attrString(resAttrs, serviceNameAttribute)
		}

		for _, sm := range rm.GetScopeMetrics() {
			for _, m := range sm.GetMetrics() {
				if !e.accepts(m.GetName()) {
					continue
				}
				scale := unitScale(m.GetUnit())

				for _, p := range dataPoints(m) {
					if !p.ok {
						rejected++
						continue
					}
					ms := p.value * scale
					if !state.ValidLatency(ms) {
						rejected++
						continue
					}
					monitor := attrString(p.attrs, e.monitorAttr)
					if monitor == "" {
						monitor = resMonitor
					}
					out = append(out, Extracted{
						Metric: m.GetName(),
						Sample: state.Sample{
							Monitor:   monitor,
							LatencyMs: ms,
							Timestamp: nanosToTime(p.timeUnixNano),
						},
					})
				}
			}
		}
	}
	return out, rejected
}

func (e *Extractor) accepts(name string) bool {
	return len(e.names) == 0 || e.names[name]
}

type point struct {
	value        float64
	ok           bool
	timeUnixNano uint64
	attrs        []*commonpb.KeyValue
}

// dataPoints flattens the supported metric kinds. Histograms contribute
// their mean, sum divided by count.
func dataPoints(m *metricspb.Metric) []point {
	var out []point

	number := func(dps []*metricspb.NumberDataPoint) {
		for _, dp := range dps {
			p := point{timeUnixNano: dp.GetTimeUnixNano(), attrs: dp.GetAttributes(), ok: true}
			switch v := dp.GetValue().(type) {
			case *metricspb.NumberDataPoint_AsDouble:
				p.value = v.AsDouble
			case *metricspb.NumberDataPoint_AsInt:
				p.value = float64(v.AsInt)
			default:
				p.ok = false
			}
			out = append(out, p)
		}
	}

	switch {
	case m.GetGauge() != nil:
		number(m.GetGauge().GetDataPoints())
	case m.GetSum() != nil:
		number(m.GetSum().GetDataPoints())
	case m.GetHistogram() != nil:
		for _, dp := range m.GetHistogram().GetDataPoints() {
			p := point{timeUnixNano: dp.GetTimeUnixNano(), attrs: dp.GetAttributes()}
			if dp.Sum != nil && dp.GetCount() > 0 {
				p.value = dp.GetSum() / float64(dp.GetCount())
				p.ok = true
			}
			out = append(out, p)
		}
	case m.GetExponentialHistogram() != nil:
		for _, dp := range m.GetExponentialHistogram().GetDataPoints() {
			p := point{timeUnixNano: dp.GetTimeUnixNano(), attrs: dp.GetAttributes()}
			if dp.Sum != nil && dp.GetCount() > 0 {
				p.value = dp.GetSum() / float64(dp.GetCount())
				p.ok = true
			}
			out = append(out, p)
		}
	}
	return out
}

// unitScale returns the factor converting a value in unit to milliseconds.
// Unknown units are taken as milliseconds.
func unitScale(unit string) float64 {
	switch unit {
	case "s":
		return 1000
	case "us", "µs":
		return 1e-3
	case "ns":
		return 1e-6
	default:
		return 1
	}
}

func nanosToTime(ns uint64) time.Time {
	if ns == 0 || ns > math.MaxInt64 {
		return time.Time{}
	}
	return time.Unix(0, int64(ns))
}

func attrString(attrs []*commonpb.KeyValue, key string) string {
	for _, kv := range attrs {
		if kv.GetKey() != key {
			continue
		}
		switch v := kv.GetValue().GetValue().(type) {
		case *commonpb.AnyValue_StringValue:
			return v.StringValue
		case *commonpb.AnyValue_IntValue:
			return strconv.FormatInt(v.IntValue, 10)
		case *commonpb.AnyValue_DoubleValue:
			return strconv.FormatFloat(v.DoubleValue, 'f', -1, 64)
		case *commonpb.AnyValue_BoolValue:
			return strconv.FormatBool(v.BoolValue)
		}
		return ""
	}
	return ""
}
