// Package series holds the immutable numeric data handed to the renderer and
// the processing steps applied to it before level-of-detail reduction.
//
// A Series is never mutated after construction. Every operation in this
// package returns a new Series, so a snapshot can be shared between the
// ingestion worker and the render loop without copying.
package series

import "math"

// Series is an ordered, immutable sequence of samples.
//
// The zero value is an empty series.
type Series struct {
	values []float64
}

// New returns a Series holding a copy of values.
func New(values []float64) Series {
	if len(values) == 0 {
		return Series{}
	}
	v := make([]float64, len(values))
	copy(v, values)
	return Series{values: v}
}

// own wraps a slice that the caller guarantees is not referenced elsewhere.
func own(values []float64) Series {
	return Series{values: values}
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.values) }

// At returns the i-th sample. It panics if i is out of range.
func (s Series) At(i int) float64 { return s.values[i] }

// First returns the first sample and false if the series is empty.
func (s Series) First() (float64, bool) {
	if len(s.values) == 0 {
		return 0, false
	}
	return s.values[0], true
}

// Last returns the last sample and false if the series is empty.
func (s Series) Last() (float64, bool) {
	if len(s.values) == 0 {
		return 0, false
	}
	return s.values[len(s.values)-1], true
}

// Values returns a copy of the samples.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Range calls fn for each sample in order until fn returns false.
func (s Series) Range(fn func(i int, v float64) bool) {
	for i, v := range s.values {
		if !fn(i, v) {
			return
		}
	}
}

// Bounds returns the minimum and maximum finite samples. ok is false when
// the series has no finite sample.
func (s Series) Bounds() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range s.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

// Equal reports whether both series hold bit-identical samples.
func (s Series) Equal(o Series) bool {
	if len(s.values) != len(o.values) {
		return false
	}
	for i, v := range s.values {
		if math.Float64bits(v) != math.Float64bits(o.values[i]) {
			return false
		}
	}
	return true
}
