// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/wgpu/hal"
)

// device is the closed set of backend implementations. Exactly one of gpu
// and cpu is set; tag says which tier the gpu variant is.
type device struct {
	tag Tag
	gpu *halDevice
	cpu *cpuDevice
}

// openDevice acquires a device for tag within timeout and builds its
// pipeline and targets. Errors are *DeviceError.
func openDevice(ctx context.Context, tag Tag, t Target, arenaSize uint64, o surfaceOptions) (*device, error) {
	switch tag {
	case TagGPU:
		factory := t.Host.GPUInstance()
		if factory == nil {
			return nil, deviceErr(tag, DeviceInit, ErrNotSupported)
		}
		opened, err := acquire(ctx, o.acquireTimeout, func() (openedHAL, error) {
			return openNativeHAL(factory)
		}, openedHAL.release)
		if err != nil {
			return nil, deviceErr(tag, DeviceInit, err)
		}
		slogger().Debug("backend: adapter opened", "backend", tag, "adapter", opened.name)
		d, err := newHalDevice(tag, opened.device, opened.queue, opened.instance, true, arenaSize, t.Width, t.Height)
		if err != nil {
			return nil, err
		}
		d.fenceTimeout = o.fenceTimeout
		return &device{tag: tag, gpu: d}, nil

	case TagShared:
		type shared struct {
			device hal.Device
			queue  hal.Queue
		}
		s, err := acquire(ctx, o.acquireTimeout, func() (shared, error) {
			dev, q, ok := sharedHAL(t.Host.DeviceProvider())
			if !ok {
				return shared{}, ErrNotSupported
			}
			return shared{dev, q}, nil
		}, nil)
		if err != nil {
			return nil, deviceErr(tag, DeviceInit, err)
		}
		d, err := newHalDevice(tag, s.device, s.queue, nil, false, arenaSize, t.Width, t.Height)
		if err != nil {
			return nil, err
		}
		d.fenceTimeout = o.fenceTimeout
		return &device{tag: tag, gpu: d}, nil

	case TagSoftware:
		d, err := newCPUDevice(arenaSize, t.Width, t.Height)
		if err != nil {
			return nil, err
		}
		return &device{tag: tag, cpu: d}, nil
	}
	return nil, deviceErr(tag, DeviceInit, fmt.Errorf("unknown backend tag %d", tag))
}

// Move implements pool.Relocator by moving arena bytes on the device.
func (d *device) Move(dst, src, size uint64) error {
	switch d.tag {
	case TagGPU, TagShared:
		return d.gpu.move(dst, src, size)
	case TagSoftware:
		return d.cpu.move(dst, src, size)
	}
	return errors.ErrUnsupported
}

func (d *device) write(offset uint64, data []byte) error {
	switch d.tag {
	case TagGPU, TagShared:
		return d.gpu.write(offset, data)
	case TagSoftware:
		return d.cpu.write(offset, data)
	}
	return errors.ErrUnsupported
}

func (d *device) draw(offset uint64, count uint32, f Frame) (*image.RGBA, error) {
	switch d.tag {
	case TagGPU, TagShared:
		return d.gpu.draw(offset, count, f)
	case TagSoftware:
		return d.cpu.draw(offset, count, f)
	}
	return nil, errors.ErrUnsupported
}

func (d *device) resize(w, h uint32) error {
	switch d.tag {
	case TagGPU, TagShared:
		if err := d.gpu.ensureTargets(w, h); err != nil {
			return deviceErr(d.tag, SurfaceCreation, err)
		}
		return nil
	case TagSoftware:
		d.cpu.resize(w, h)
		return nil
	}
	return errors.ErrUnsupported
}

func (d *device) destroy() {
	switch d.tag {
	case TagGPU, TagShared:
		d.gpu.destroy()
	case TagSoftware:
		d.cpu.destroy()
	}
}

