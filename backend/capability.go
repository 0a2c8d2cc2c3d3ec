// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"fmt"
	"image"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// Presenter shows a finished frame. Returning an error marks the surface
// Lost.
type Presenter interface {
	Present(frame *image.RGBA) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(frame *image.RGBA) error

// Present calls f(frame).
func (f PresenterFunc) Present(frame *image.RGBA) error { return f(frame) }

// InstanceFactory creates HAL instances. Both hal.GetBackend results and
// the noop API satisfy it.
type InstanceFactory interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Host is the environment the renderer runs in. Every method is a plain
// query; a nil result means the corresponding tier is not offered.
type Host interface {
	// Presenter receives finished frames. Without one nothing can render.
	Presenter() Presenter

	// GPUInstance returns the factory for the native GPU tier.
	GPUInstance() InstanceFactory

	// DeviceProvider returns a device owned by the host application.
	DeviceProvider() gpucontext.DeviceProvider
}

// halProvider is implemented by device providers that expose HAL objects.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// CapabilitySet says which tiers a host can offer right now.
type CapabilitySet struct {
	GPU      bool
	Shared   bool
	Software bool
}

// Supports reports whether t is available.
func (c CapabilitySet) Supports(t Tag) bool {
	switch t {
	case TagGPU:
		return c.GPU
	case TagShared:
		return c.Shared
	case TagSoftware:
		return c.Software
	}
	return false
}

// Without returns c with t cleared.
func (c CapabilitySet) Without(t Tag) CapabilitySet {
	switch t {
	case TagGPU:
		c.GPU = false
	case TagShared:
		c.Shared = false
	case TagSoftware:
		c.Software = false
	}
	return c
}

// Any reports whether at least one tier is available.
func (c CapabilitySet) Any() bool { return c.GPU || c.Shared || c.Software }

func (c CapabilitySet) String() string {
	return fmt.Sprintf("gpu=%t shared=%t software=%t", c.GPU, c.Shared, c.Software)
}

// Detect queries h. It has no side effects and assumes nothing is available
// unless the host says so.
func Detect(h Host) CapabilitySet {
	if h == nil || h.Presenter() == nil {
		return CapabilitySet{}
	}
	_, _, shared := sharedHAL(h.DeviceProvider())
	return CapabilitySet{
		GPU:      h.GPUInstance() != nil,
		Shared:   shared,
		Software: true,
	}
}

// sharedHAL extracts the HAL device and queue behind a provider.
func sharedHAL(p gpucontext.DeviceProvider) (hal.Device, hal.Queue, bool) {
	if p == nil {
		return nil, nil, false
	}
	hp, ok := p.(halProvider)
	if !ok {
		return nil, nil, false
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, nil, false
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, nil, false
	}
	return device, queue, true
}

// Select returns the first tier in priority that caps supports.
func Select(caps CapabilitySet, priority []Tag) (Tag, error) {
	for _, t := range priority {
		if caps.Supports(t) {
			return t, nil
		}
	}
	return 0, ErrNoSupportedBackend
}
