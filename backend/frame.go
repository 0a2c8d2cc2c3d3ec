// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"encoding/binary"
	"image/color"
	"math"

	"github.com/gogpu/chart/lod"
)

// Vertex layout shared by every tier: one position (vec2<f32>) in normalized
// device coordinates, six vertices (two triangles) per line segment.
const (
	VertexStride       = 8
	verticesPerSegment = 6
)

// DefaultLineWidth is the stroke width in pixels when a frame leaves it zero.
const DefaultLineWidth = 1.5

// Frame is one draw request: a sampled series with its styling.
type Frame struct {
	// Points are normalized to [0, 1] in value. Their Index over SourceLen
	// gives the horizontal position.
	Points    []lod.Point
	SourceLen int

	Color      color.NRGBA
	Background color.NRGBA
	LineWidth  float32
}

// VertexCount returns the number of vertices a frame of n points produces.
func VertexCount(n int) int {
	if n == 0 {
		return 0
	}
	return max(n-1, 1) * verticesPerSegment
}

// VertexBytes returns the arena space needed for n points.
func VertexBytes(n int) uint64 {
	return uint64(VertexCount(n)) * VertexStride
}

// tessellate appends the triangle list for f on a w x h target to dst.
// Every segment becomes a quad with square caps, so joints need no extra
// geometry.
func tessellate(dst []byte, f Frame, w, h uint32) []byte {
	n := len(f.Points)
	if n == 0 || w == 0 || h == 0 {
		return dst
	}
	hw := float64(f.LineWidth)
	if hw <= 0 {
		hw = DefaultLineWidth
	}
	hw /= 2

	fw, fh := float64(w), float64(h)
	toPixel := func(p lod.Point) (float64, float64) {
		x := 0.5
		if f.SourceLen > 1 {
			x = float64(p.Index) / float64(f.SourceLen-1)
		}
		y := p.Value
		if math.IsNaN(y) || math.IsInf(y, 0) {
			y = 0.5
		}
		return x * fw, (1 - y) * fh
	}
	put := func(px, py float64) {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(px/fw*2-1)))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(1-py/fh*2)))
	}
	quad := func(x0, y0, x1, y1 float64) {
		dx, dy := x1-x0, y1-y0
		l := math.Hypot(dx, dy)
		if l < 1e-9 {
			dx, dy, l = 1, 0, 1
		}
		dx, dy = dx/l*hw, dy/l*hw
		x0, y0, x1, y1 = x0-dx, y0-dy, x1+dx, y1+dy
		nx, ny := -dy, dx
		put(x0+nx, y0+ny)
		put(x0-nx, y0-ny)
		put(x1+nx, y1+ny)
		put(x0-nx, y0-ny)
		put(x1-nx, y1-ny)
		put(x1+nx, y1+ny)
	}

	if n == 1 {
		x, y := toPixel(f.Points[0])
		quad(x, y, x, y)
		return dst
	}
	px, py := toPixel(f.Points[0])
	for _, p := range f.Points[1:] {
		x, y := toPixel(p)
		quad(px, py, x, y)
		px, py = x, y
	}
	return dst
}

// premultiplied returns c as premultiplied float components.
func premultiplied(c color.NRGBA) [4]float32 {
	a := float32(c.A) / 255
	return [4]float32{
		float32(c.R) / 255 * a,
		float32(c.G) / 255 * a,
		float32(c.B) / 255 * a,
		a,
	}
}
