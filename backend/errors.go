// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrNoSupportedBackend is terminal: no candidate in the priority list
	// could be brought up.
	ErrNoSupportedBackend = errors.New("backend: no supported backend")

	// ErrDeviceInit matches DeviceError values of kind DeviceInit.
	ErrDeviceInit = errors.New("backend: device initialization failed")

	// ErrSurfaceCreation matches DeviceError values of kind SurfaceCreation.
	ErrSurfaceCreation = errors.New("backend: surface creation failed")

	// ErrPipelineCreation matches DeviceError values of kind PipelineCreation.
	ErrPipelineCreation = errors.New("backend: pipeline creation failed")

	// ErrSurfaceLost is returned by RenderPass when submission or
	// presentation failed. The surface is Lost afterwards.
	ErrSurfaceLost = errors.New("backend: surface lost")

	// ErrNotSupported marks a tier the host does not offer.
	ErrNotSupported = errors.New("backend: not supported by host")

	// ErrNotActive is returned by operations that need an Active surface.
	ErrNotActive = errors.New("backend: surface not active")

	// ErrInvalidDimensions is returned for a zero width or height.
	ErrInvalidDimensions = errors.New("backend: invalid surface dimensions")

	// ErrAcquireTimeout is the cause of a DeviceInit error when device
	// acquisition did not finish in time.
	ErrAcquireTimeout = errors.New("backend: device acquisition timed out")
)

// DeviceErrorKind classifies a failed backend bring-up.
type DeviceErrorKind uint8

const (
	DeviceInit DeviceErrorKind = iota + 1
	SurfaceCreation
	PipelineCreation
)

func (k DeviceErrorKind) String() string {
	switch k {
	case DeviceInit:
		return "device init"
	case SurfaceCreation:
		return "surface creation"
	case PipelineCreation:
		return "pipeline creation"
	default:
		return fmt.Sprintf("DeviceErrorKind(%d)", uint8(k))
	}
}

// DeviceError reports a failure while bringing up one backend. The surface
// recovers from it by moving to the next candidate.
type DeviceError struct {
	Backend Tag
	Kind    DeviceErrorKind
	Err     error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *DeviceError) Is(target error) bool {
	switch target {
	case ErrDeviceInit:
		return e.Kind == DeviceInit
	case ErrSurfaceCreation:
		return e.Kind == SurfaceCreation
	case ErrPipelineCreation:
		return e.Kind == PipelineCreation
	}
	return false
}

func deviceErr(tag Tag, kind DeviceErrorKind, err error) *DeviceError {
	return &DeviceError{Backend: tag, Kind: kind, Err: err}
}

// Attempt records one backend that was tried (or skipped) and why it did
// not become active.
type Attempt struct {
	Backend Tag
	Err     error
}

func (a Attempt) String() string {
	return fmt.Sprintf("%s: %v", a.Backend, a.Err)
}

// ExhaustedError is returned once every candidate has failed. It lists the
// attempts in order and unwraps to ErrNoSupportedBackend.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrNoSupportedBackend.Error()
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%v (tried %s)", ErrNoSupportedBackend, strings.Join(parts, "; "))
}

func (e *ExhaustedError) Unwrap() error { return ErrNoSupportedBackend }
