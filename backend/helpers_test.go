// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/chart/pool"
)

// recordingPresenter keeps the last frame and can be told to fail.
type recordingPresenter struct {
	mu     sync.Mutex
	frames int
	last   *image.RGBA
	fail   error
}

func (p *recordingPresenter) Present(frame *image.RGBA) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.frames++
	p.last = frame
	return nil
}

func (p *recordingPresenter) setFail(err error) {
	p.mu.Lock()
	p.fail = err
	p.mu.Unlock()
}

var errBrokenInstance = errors.New("instance creation refused")

// failingInstances refuses to create an instance.
type failingInstances struct{}

func (failingInstances) CreateInstance(*hal.InstanceDescriptor) (hal.Instance, error) {
	return nil, errBrokenInstance
}

// blockingInstances never answers until release is closed.
type blockingInstances struct{ release chan struct{} }

func (b blockingInstances) CreateInstance(*hal.InstanceDescriptor) (hal.Instance, error) {
	<-b.release
	return nil, errBrokenInstance
}

// sharedProvider exposes a noop HAL device the way a host application would.
type sharedProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p *sharedProvider) Device() gpucontext.Device             { return nil }
func (p *sharedProvider) Queue() gpucontext.Queue               { return nil }
func (p *sharedProvider) Adapter() gpucontext.Adapter           { return nil }
func (p *sharedProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (p *sharedProvider) HalDevice() any                        { return p.device }
func (p *sharedProvider) HalQueue() any                         { return p.queue }

// createNoopDevice opens a noop device and queue.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

// opaqueProvider is a device provider with no HAL objects behind it.
type opaqueProvider struct{}

func (*opaqueProvider) Device() gpucontext.Device             { return nil }
func (*opaqueProvider) Queue() gpucontext.Queue               { return nil }
func (*opaqueProvider) Adapter() gpucontext.Adapter           { return nil }
func (*opaqueProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }

func newSharedProvider(t *testing.T) *sharedProvider {
	d, q := createNoopDevice(t)
	return &sharedProvider{device: d, queue: q}
}

func testSurface(opts ...SurfaceOption) *Surface {
	opts = append([]SurfaceOption{WithPoolConfig(pool.Config{Capacity: 1 << 20})}, opts...)
	return NewSurface(opts...)
}

func testTarget(h Host) Target {
	return Target{Host: h, Width: 64, Height: 32}
}
