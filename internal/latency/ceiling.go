// Package latency decides how a daily latency chart is scaled. It computes
// an adaptive Y-axis ceiling from P50/P95 samples and clips plotted values
// that exceed it. All functions are pure computations with no side effects.
package latency

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultQuantile   = 0.75
	DefaultMultiplier = 3.0
	DefaultMinSamples = 4
)

// Policy holds the tunable constants of the ceiling computation.
type Policy struct {
	// Quantile is the robust statistic taken over the samples (0-1).
	Quantile float64
	// Multiplier is applied to the statistic to get the proposed ceiling.
	// Values below 1 are treated as 1 so the ceiling never drops below
	// the statistic itself.
	Multiplier float64
	// MinSamples is the smallest sample count that is judged at all.
	MinSamples int
	// RoundNice rounds the proposed ceiling up to 1, 2, 3... × 10^n.
	RoundNice bool
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Quantile:   DefaultQuantile,
		Multiplier: DefaultMultiplier,
		MinSamples: DefaultMinSamples,
		RoundNice:  true,
	}
}

// SuggestCeiling returns the Y-axis ceiling for the given samples, or an
// absent Value when the axis should auto-scale to the data maximum.
// The input is not modified and its order does not matter.
func SuggestCeiling(samples []float64, p Policy) Value {
	sorted := usable(samples)
	minSamples := p.MinSamples
	if minSamples < 2 {
		minSamples = 2
	}
	if len(sorted) < minSamples {
		return None()
	}
	sort.Float64s(sorted)

	q := p.Quantile
	if q <= 0 || q > 1 || math.IsNaN(q) {
		q = DefaultQuantile
	}
	robust := stat.Quantile(q, stat.Empirical, sorted, nil)
	if robust <= 0 {
		return None()
	}

	mult := p.Multiplier
	if mult < 1 || math.IsNaN(mult) || math.IsInf(mult, 0) {
		mult = 1
	}
	ceiling := robust * mult
	if p.RoundNice {
		ceiling = niceCeil(ceiling)
	}
	if math.IsInf(ceiling, 0) {
		return None()
	}

	if floats.Max(sorted) <= ceiling {
		return None()
	}
	return Some(ceiling)
}

// usable copies the samples that can take part in statistics.
func usable(samples []float64) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// niceCeil rounds x up to the next multiple of its order of magnitude,
// e.g. 165 -> 200, 3 -> 3, 0.42 -> 0.5.
func niceCeil(x float64) float64 {
	if x <= 0 {
		return x
	}
	mag := math.Pow(10, math.Floor(math.Log10(x)))
	if mag <= 0 || math.IsInf(mag, 0) {
		return x
	}
	// tolerance keeps 3/1 from becoming 4 after float error
	return math.Ceil(x/mag-1e-9) * mag
}
