// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"encoding/binary"
	"image/color"
	"math"
	"testing"

	"github.com/gogpu/chart/lod"
)

func TestVertexCount(t *testing.T) {
	tests := []struct{ n, want int }{
		{0, 0},
		{1, 6},
		{2, 6},
		{3, 12},
		{1000, 999 * 6},
	}
	for _, tt := range tests {
		if got := VertexCount(tt.n); got != tt.want {
			t.Errorf("VertexCount(%d) = %d, want %d", tt.n, got, tt.want)
		}
		if got := VertexBytes(tt.n); got != uint64(tt.want)*VertexStride {
			t.Errorf("VertexBytes(%d) = %d", tt.n, got)
		}
	}
}

func decodeVerts(b []byte) [][2]float32 {
	out := make([][2]float32, len(b)/VertexStride)
	for i := range out {
		out[i][0] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*8:]))
		out[i][1] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*8+4:]))
	}
	return out
}

func TestTessellate(t *testing.T) {
	f := Frame{
		Points:    []lod.Point{{Index: 0, Value: 0}, {Index: 5, Value: 1}, {Index: 10, Value: math.NaN()}},
		SourceLen: 11,
		LineWidth: 2,
	}
	b := tessellate(nil, f, 100, 50)
	if len(b) != VertexCount(3)*VertexStride {
		t.Fatalf("len = %d, want %d", len(b), VertexCount(3)*VertexStride)
	}
	for i, v := range decodeVerts(b) {
		for _, c := range v {
			if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
				t.Fatalf("vertex %d = %v is not finite", i, v)
			}
			// Caps may reach one pixel past the edge.
			if c < -1.1 || c > 1.1 {
				t.Errorf("vertex %d = %v outside clip space", i, v)
			}
		}
	}
}

func TestTessellateSinglePoint(t *testing.T) {
	f := Frame{Points: []lod.Point{{Index: 0, Value: 0.5}}, SourceLen: 1}
	v := decodeVerts(tessellate(nil, f, 10, 10))
	if len(v) != 6 {
		t.Fatalf("single point produced %d vertices", len(v))
	}
	// A dot centred in the target.
	var cx, cy float32
	for _, p := range v {
		cx += p[0]
		cy += p[1]
	}
	if math.Abs(float64(cx/6)) > 1e-5 || math.Abs(float64(cy/6)) > 1e-5 {
		t.Errorf("dot centre = (%v, %v), want origin", cx/6, cy/6)
	}
	if got := tessellate(nil, Frame{}, 10, 10); len(got) != 0 {
		t.Errorf("empty frame produced %d bytes", len(got))
	}
}

func TestPremultiplied(t *testing.T) {
	got := premultiplied(color.NRGBA{R: 255, G: 0, B: 255, A: 0x80})
	a := float32(0x80) / 255
	want := [4]float32{a, 0, a, a}
	if got != want {
		t.Errorf("premultiplied = %v, want %v", got, want)
	}
}

func TestGPUMove(t *testing.T) {
	device, queue := createNoopDevice(t)
	d, err := newHalDevice(TagShared, device, queue, nil, false, 1024, 16, 16)
	if err != nil {
		t.Fatalf("newHalDevice: %v", err)
	}
	defer d.destroy()

	if err := d.write(0, make([]byte, 64)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := d.write(1000, make([]byte, 64)); err == nil {
		t.Error("write past the arena accepted")
	}
	if err := d.move(0, 512, 64); err != nil {
		t.Errorf("move: %v", err)
	}
}

func TestSPIRVCompile(t *testing.T) {
	words, err := compileSPIRV(lineShaderSource)
	if err != nil {
		t.Fatalf("compileSPIRV: %v", err)
	}
	if len(words) == 0 || words[0] != 0x07230203 {
		t.Errorf("missing SPIR-V magic, got %d words", len(words))
	}
}
