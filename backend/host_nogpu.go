// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build nogpu

package backend

// systemInstances reports no native GPU in builds without a HAL.
func systemInstances() InstanceFactory { return nil }
