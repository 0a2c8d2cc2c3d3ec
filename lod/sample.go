package lod

import (
	"github.com/gogpu/chart/series"
)

// Point is a retained sample together with its index in the source series.
type Point struct {
	Index int
	Value float64
}

// Sampled is the reduced form of a series. It always holds the first and
// last source samples and never more points than the source.
type Sampled struct {
	Points    []Point
	SourceLen int
}

// Len returns the number of retained points.
func (s Sampled) Len() int { return len(s.Points) }

// Series returns the retained values as a new series.
func (s Sampled) Series() series.Series {
	v := make([]float64, len(s.Points))
	for i, p := range s.Points {
		v[i] = p.Value
	}
	return series.New(v)
}

// Sample reduces data to at most level.MaxVisiblePoints points using min/max
// bucket pairing. The first and last samples are always kept. Data that
// already fits is returned unreduced, so applying Sample to its own output
// under the same level yields the same points.
func Sample(level Level, data series.Series) Sampled {
	n := data.Len()
	if n == 0 {
		return Sampled{}
	}

	limit := max(level.MaxVisiblePoints, 2)
	if n <= limit {
		pts := make([]Point, n)
		for i := range pts {
			pts[i] = Point{Index: i, Value: data.At(i)}
		}
		return Sampled{Points: pts, SourceLen: n}
	}

	interior := n - 2
	pairs := (limit - 2) / 2
	pts := make([]Point, 0, limit)
	pts = append(pts, Point{Index: 0, Value: data.At(0)})

	if pairs > 0 {
		window := max(level.Stride, (interior+pairs-1)/pairs, 1)
		for start := 1; start < n-1; start += window {
			end := min(start+window, n-1)
			lo, hi := start, start
			for i := start + 1; i < end; i++ {
				v := data.At(i)
				if v < data.At(lo) {
					lo = i
				}
				if v > data.At(hi) {
					hi = i
				}
			}
			switch {
			case lo == hi:
				pts = append(pts, Point{Index: lo, Value: data.At(lo)})
			case lo < hi:
				pts = append(pts, Point{Index: lo, Value: data.At(lo)}, Point{Index: hi, Value: data.At(hi)})
			default:
				pts = append(pts, Point{Index: hi, Value: data.At(hi)}, Point{Index: lo, Value: data.At(lo)})
			}
		}
	}

	pts = append(pts, Point{Index: n - 1, Value: data.At(n - 1)})
	return Sampled{Points: pts, SourceLen: n}
}
