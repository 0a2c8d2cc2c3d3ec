// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import "github.com/gogpu/gpucontext"

// StaticHost is a Host assembled from fixed parts. Nil fields are reported
// as unavailable.
type StaticHost struct {
	Present   Presenter
	Instances InstanceFactory
	Provider  gpucontext.DeviceProvider
}

// Presenter implements Host.
func (h *StaticHost) Presenter() Presenter { return h.Present }

// GPUInstance implements Host.
func (h *StaticHost) GPUInstance() InstanceFactory { return h.Instances }

// DeviceProvider implements Host.
func (h *StaticHost) DeviceProvider() gpucontext.DeviceProvider { return h.Provider }

// NewSystemHost returns a host that offers the native GPU tier when this
// build has a registered Vulkan HAL, the shared tier when provider is set,
// and the software tier always.
func NewSystemHost(p Presenter, provider gpucontext.DeviceProvider) *StaticHost {
	return &StaticHost{Present: p, Instances: systemInstances(), Provider: provider}
}
