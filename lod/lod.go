// Package lod selects a level of detail for a series and reduces the series
// to that level before upload.
//
// Levels are ordered from finest (index 0) to coarsest. A System picks the
// base level from the data size and viewport scale, then shifts it by a
// pressure offset driven by frame-time hysteresis decisions. Sample is a pure
// function of (level, data).
package lod

import (
	"errors"
	"fmt"
)

// Level is one detail tier.
type Level struct {
	// MaxVisiblePoints caps the number of points Sample may output.
	MaxVisiblePoints int `mapstructure:"max_visible_points" yaml:"max_visible_points"`

	// Stride is the minimum aggregation window used once reduction kicks in.
	Stride int `mapstructure:"stride" yaml:"stride"`
}

func (l Level) String() string {
	return fmt.Sprintf("max=%d stride=%d", l.MaxVisiblePoints, l.Stride)
}

// ErrInvalidLevels is returned by Validate and NewSystem.
var ErrInvalidLevels = errors.New("lod: invalid levels")

// DefaultLevels returns the four stock tiers.
func DefaultLevels() []Level {
	return []Level{
		{MaxVisiblePoints: 100_000, Stride: 1},
		{MaxVisiblePoints: 50_000, Stride: 2},
		{MaxVisiblePoints: 25_000, Stride: 4},
		{MaxVisiblePoints: 10_000, Stride: 10},
	}
}

// Validate checks that levels is non-empty, strictly decreasing in detail,
// and that every level can keep at least the two endpoints.
func Validate(levels []Level) error {
	if len(levels) == 0 {
		return fmt.Errorf("%w: no levels", ErrInvalidLevels)
	}
	for i, l := range levels {
		if l.MaxVisiblePoints < 2 {
			return fmt.Errorf("%w: level %d max_visible_points %d < 2", ErrInvalidLevels, i, l.MaxVisiblePoints)
		}
		if l.Stride < 1 {
			return fmt.Errorf("%w: level %d stride %d < 1", ErrInvalidLevels, i, l.Stride)
		}
		if i > 0 && l.MaxVisiblePoints >= levels[i-1].MaxVisiblePoints {
			return fmt.Errorf("%w: level %d is not coarser than level %d", ErrInvalidLevels, i, i-1)
		}
	}
	return nil
}

// Decision is a hysteresis verdict produced by the frame-time monitor.
type Decision int

const (
	// Hold keeps the current pressure.
	Hold Decision = iota
	// Coarsen moves one tier towards less detail.
	Coarsen
	// Refine moves one tier towards more detail.
	Refine
)

func (d Decision) String() string {
	switch d {
	case Hold:
		return "hold"
	case Coarsen:
		return "coarsen"
	case Refine:
		return "refine"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Selection is the outcome of System.Update.
type Selection struct {
	Index int
	Level Level
}

// System tracks the current level. It is owned by the render loop and is not
// safe for concurrent use.
type System struct {
	levels   []Level
	pressure int
	current  int
}

// NewSystem returns a System over levels, which must satisfy Validate.
func NewSystem(levels []Level) (*System, error) {
	if err := Validate(levels); err != nil {
		return nil, err
	}
	ls := make([]Level, len(levels))
	copy(ls, levels)
	return &System{levels: ls}, nil
}

// Levels returns a copy of the configured tiers.
func (s *System) Levels() []Level {
	out := make([]Level, len(s.levels))
	copy(out, s.levels)
	return out
}

// Current returns the last selection.
func (s *System) Current() Selection {
	return Selection{Index: s.current, Level: s.levels[s.current]}
}

// Pressure returns how many tiers the frame-time monitor has pushed the
// selection below the data-driven base level.
func (s *System) Pressure() int { return s.pressure }

// Base returns the finest level whose MaxVisiblePoints covers
// dataSize*viewportScale, or the coarsest level when none does.
func (s *System) Base(viewportScale float64, dataSize int) int {
	if viewportScale <= 0 {
		viewportScale = 1
	}
	need := float64(dataSize) * viewportScale
	for i, l := range s.levels {
		if float64(l.MaxVisiblePoints) >= need {
			return i
		}
	}
	return len(s.levels) - 1
}

// Update applies one hysteresis decision and selects the level for a frame.
// A single Coarsen or Refine moves at most one tier. Data that already fits
// the finest level always renders at level 0 and clears the pressure, so
// decisions made while it is small do not carry over once it grows.
func (s *System) Update(viewportScale float64, dataSize int, d Decision) Selection {
	last := len(s.levels) - 1
	base := s.Base(viewportScale, dataSize)

	small := dataSize <= s.levels[0].MaxVisiblePoints
	if small {
		d = Hold
		s.pressure = 0
	}
	switch d {
	case Coarsen:
		if base+s.pressure < last {
			s.pressure++
		}
	case Refine:
		if s.pressure > 0 {
			s.pressure--
		}
	}

	idx := min(base+s.pressure, last)
	if small {
		idx = 0
	}
	if idx != s.current {
		slogger().Debug("lod: level change",
			"from", s.current, "to", idx, "base", base, "pressure", s.pressure, "points", dataSize)
	}
	s.current = idx
	return s.Current()
}

// Reset drops the pressure offset and returns to level 0.
func (s *System) Reset() {
	s.pressure = 0
	s.current = 0
}
