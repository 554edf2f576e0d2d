package latency

import (
	"encoding/json"
	"math"
	"strconv"
)

// Value is an optional latency in milliseconds. The zero Value is absent,
// which keeps "no value" distinct from a legitimate 0ms reading.
type Value struct {
	ms    float64
	valid bool
}

// Some returns a present Value.
func Some(ms float64) Value {
	return Value{ms: ms, valid: true}
}

// None returns an absent Value.
func None() Value {
	return Value{}
}

// FromPtr converts a nullable float into a Value. NaN and Inf are treated
// as absent.
func FromPtr(p *float64) Value {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return None()
	}
	return Some(*p)
}

// Usable returns v, or an absent Value when v is negative, NaN or Inf.
func (v Value) Usable() Value {
	if !v.valid || v.ms < 0 || math.IsNaN(v.ms) || math.IsInf(v.ms, 0) {
		return None()
	}
	return v
}

// Valid reports whether the value is present.
func (v Value) Valid() bool { return v.valid }

// Get returns the value and whether it is present.
func (v Value) Get() (float64, bool) { return v.ms, v.valid }

// Or returns the value, or def when absent.
func (v Value) Or(def float64) float64 {
	if !v.valid {
		return def
	}
	return v.ms
}

// Ptr returns a pointer to a copy of the value, or nil when absent.
func (v Value) Ptr() *float64 {
	if !v.valid {
		return nil
	}
	ms := v.ms
	return &ms
}

func (v Value) String() string {
	if !v.valid {
		return "-"
	}
	return strconv.FormatFloat(v.ms, 'f', -1, 64) + "ms"
}

// MarshalJSON encodes an absent or non-finite value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.valid || math.IsNaN(v.ms) || math.IsInf(v.ms, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v.ms)
}

// UnmarshalJSON decodes null (or a non-number) as absent.
func (v *Value) UnmarshalJSON(data []byte) error {
	var p *float64
	if err := json.Unmarshal(data, &p); err != nil {
		*v = None()
		return nil
	}
	*v = FromPtr(p)
	return nil
}
