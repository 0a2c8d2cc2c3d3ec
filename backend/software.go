// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// cpuDevice is the software tier. Its arena is plain memory holding the same
// vertex bytes the GPU tiers upload.
type cpuDevice struct {
	arena  []byte
	raster *vector.Rasterizer
	width  uint32
	height uint32
}

func newCPUDevice(arenaSize uint64, w, h uint32) (*cpuDevice, error) {
	if arenaSize > math.MaxInt {
		return nil, deviceErr(TagSoftware, SurfaceCreation, fmt.Errorf("arena of %d bytes does not fit in memory", arenaSize))
	}
	d := &cpuDevice{arena: make([]byte, arenaSize)}
	d.resize(w, h)
	return d, nil
}

func (d *cpuDevice) resize(w, h uint32) {
	if d.raster != nil && d.width == w && d.height == h {
		return
	}
	d.raster = vector.NewRasterizer(int(w), int(h))
	d.width, d.height = w, h
}

func (d *cpuDevice) write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > uint64(len(d.arena)) {
		return fmt.Errorf("backend: write [%d, %d) outside arena of %d bytes", offset, offset+uint64(len(data)), len(d.arena))
	}
	copy(d.arena[offset:], data)
	return nil
}

func (d *cpuDevice) move(dst, src, size uint64) error {
	n := uint64(len(d.arena))
	if src+size > n || dst+size > n {
		return fmt.Errorf("backend: move of %d bytes outside arena of %d bytes", size, n)
	}
	copy(d.arena[dst:dst+size], d.arena[src:src+size])
	return nil
}

// draw rasterizes count vertices starting at offset as a triangle list.
func (d *cpuDevice) draw(offset uint64, count uint32, f Frame) (*image.RGBA, error) {
	end := offset + uint64(count)*VertexStride
	if end > uint64(len(d.arena)) {
		return nil, fmt.Errorf("backend: draw range [%d, %d) outside arena", offset, end)
	}
	img := image.NewRGBA(image.Rect(0, 0, int(d.width), int(d.height)))
	draw.Draw(img, img.Bounds(), image.NewUniform(f.Background), image.Point{}, draw.Src)
	if count < 3 {
		return img, nil
	}

	fw, fh := float32(d.width), float32(d.height)
	vertex := func(i uint32) (float32, float32) {
		p := offset + uint64(i)*VertexStride
		x := math.Float32frombits(binary.LittleEndian.Uint32(d.arena[p:]))
		y := math.Float32frombits(binary.LittleEndian.Uint32(d.arena[p+4:]))
		return (x + 1) / 2 * fw, (1 - y) / 2 * fh
	}

	r := d.raster
	r.Reset(int(d.width), int(d.height))
	for i := uint32(0); i+2 < count; i += 3 {
		ax, ay := vertex(i)
		bx, by := vertex(i + 1)
		cx, cy := vertex(i + 2)
		r.MoveTo(ax, ay)
		r.LineTo(bx, by)
		r.LineTo(cx, cy)
		r.ClosePath()
	}
	r.Draw(img, img.Bounds(), image.NewUniform(f.Color), image.Point{})
	return img, nil
}

func (d *cpuDevice) destroy() {
	d.arena = nil
	d.raster = nil
}
