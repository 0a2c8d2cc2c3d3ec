// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend selects a graphics backend for the chart renderer and runs
// the surface that draws through it.
//
// Three tiers exist, highest capability first:
//
//	TagGPU      native GPU device acquired through the wgpu HAL
//	TagShared   GPU device shared by the host through gpucontext
//	TagSoftware CPU rasterizer (golang.org/x/image/vector)
//
// Detect queries a Host for the tiers it can offer and Select picks the first
// one present in a priority list. A Surface walks that list during
// Initialize, moving on whenever a tier fails to come up, and remembers the
// failures for the rest of the session. When presentation fails the surface
// becomes Lost; the next Initialize resumes below the lost tier instead of
// restarting from the top.
//
// All tiers render offscreen into the same triangle-list vertex layout and
// hand the finished frame to the host's Presenter.
package backend
