// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package backend

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Register the Vulkan HAL for the native tier.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func systemInstances() InstanceFactory {
	b, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok || b == nil {
		return nil
	}
	return b
}
