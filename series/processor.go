package series

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned by the processing functions.
var (
	// ErrEmpty is returned when an operation needs at least one sample.
	ErrEmpty = errors.New("series: empty series")

	// ErrInvalidSize is returned for a non-positive target size.
	ErrInvalidSize = errors.New("series: invalid target size")

	// ErrWouldReduce is returned when Interpolate is asked for fewer points
	// than the input has. Reduction belongs to the LOD sampler.
	ErrWouldReduce = errors.New("series: interpolation cannot reduce detail")
)

// Midpoint is where every sample of a constant series lands after
// normalization, and where non-finite samples are placed.
const Midpoint = 0.5

// Normalize linearly rescales s into [0, 1].
func Normalize(s Series) Series {
	return NormalizeRange(s, 0, 1)
}

// NormalizeRange linearly rescales s into [lo, hi], e.g. a device pixel
// range. A constant series maps every sample to the middle of the range
// instead of dividing by a zero span. Non-finite samples also map to the
// middle.
func NormalizeRange(s Series, lo, hi float64) Series {
	n := s.Len()
	if n == 0 {
		return Series{}
	}
	mid := lo + (hi-lo)*Midpoint
	out := make([]float64, n)

	minV, maxV, ok := s.Bounds()
	span := maxV - minV
	if !ok || span == 0 {
		for i := range out {
			out[i] = mid
		}
		return own(out)
	}

	scale := (hi - lo) / span
	for i, v := range s.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = mid
			continue
		}
		out[i] = lo + (v-minV)*scale
	}
	return own(out)
}

// Interpolate linearly resamples s to exactly targetSize points. The first
// and last samples are preserved. It upsamples only; asking for fewer points
// than s holds returns ErrWouldReduce.
func Interpolate(s Series, targetSize int) (Series, error) {
	n := s.Len()
	switch {
	case targetSize <= 0:
		return Series{}, fmt.Errorf("%w: %d", ErrInvalidSize, targetSize)
	case n == 0:
		return Series{}, ErrEmpty
	case targetSize < n:
		return Series{}, fmt.Errorf("%w: %d < %d", ErrWouldReduce, targetSize, n)
	case targetSize == n:
		return s, nil
	}

	out := make([]float64, targetSize)
	if n == 1 {
		for i := range out {
			out[i] = s.values[0]
		}
		return own(out), nil
	}

	step := float64(n-1) / float64(targetSize-1)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= n-1 {
			out[i] = s.values[n-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = s.values[j] + (s.values[j+1]-s.values[j])*frac
	}
	out[targetSize-1] = s.values[n-1]
	return own(out), nil
}

// Tween blends two snapshots for animation. The shorter series is first
// resampled to the length of the longer one; t is clamped to [0, 1] where 0
// yields from and 1 yields to.
func Tween(from, to Series, t float64) (Series, error) {
	if from.Len() == 0 || to.Len() == 0 {
		return Series{}, ErrEmpty
	}
	t = math.Max(0, math.Min(1, t))

	var err error
	switch {
	case from.Len() < to.Len():
		from, err = Interpolate(from, to.Len())
	case to.Len() < from.Len():
		to, err = Interpolate(to, from.Len())
	}
	if err != nil {
		return Series{}, fmt.Errorf("series: tween resample: %w", err)
	}

	out := make([]float64, from.Len())
	for i := range out {
		a, b := from.values[i], to.values[i]
		out[i] = a + (b-a)*t
	}
	return own(out), nil
}
