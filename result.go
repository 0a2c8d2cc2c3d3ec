package chart

import (
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/pool"
)

var (
	// ErrUnknownData is returned when a data reference has no snapshot.
	ErrUnknownData = errors.New("chart: unknown data reference")

	// ErrClosed is returned by a Renderer after Close.
	ErrClosed = errors.New("chart: renderer closed")
)

// Status classifies a RenderResult.
type Status uint8

const (
	// StatusOK means the frame was drawn and presented.
	StatusOK Status = iota

	// StatusWarning means this frame was not drawn but the renderer recovered
	// (buffer exhaustion, a lost surface with fallbacks left). Err says why.
	StatusWarning

	// StatusError means nothing can be rendered until something changes:
	// unknown data, a closed renderer, or every backend exhausted.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Viewport is the drawable area and its zoom. Scale multiplies the data
// size when choosing a level of detail; zero means 1.
type Viewport struct {
	Width  uint32
	Height uint32
	Scale  float64
}

// Encoding is the flattened styling of one series.
type Encoding struct {
	Color      color.NRGBA
	Background color.NRGBA
	LineWidth  float32
}

// DefaultColor is used when an Encoding leaves Color zero.
var DefaultColor = color.NRGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}

// RenderResult reports one Render call.
type RenderResult struct {
	Status Status

	// Backend is the tier that drew the frame, or the active tier when the
	// draw was skipped. Zero when no backend is active.
	Backend backend.Tag

	// LODLevel is the index of the level of detail used.
	LODLevel      int
	FrameDuration time.Duration

	// Points is the number of samples drawn, SourcePoints the size of the
	// series they were sampled from.
	Points       int
	SourcePoints int
	DrawCalls    int

	PoolStats pool.Stats

	// Attempts lists backend failures and losses that happened during this
	// call, oldest first.
	Attempts []backend.Attempt

	Err error
}

// FrameObserver receives every RenderResult, e.g. to export metrics.
type FrameObserver interface {
	ObserveFrame(RenderResult)
}
