// Package perf measures frame timing over a rolling window and turns it into
// level-of-detail hysteresis decisions.
package perf

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/gogpu/chart/lod"
)

// ErrInvalidConfig is returned by NewMonitor for unusable settings.
var ErrInvalidConfig = errors.New("perf: invalid config")

// Config holds the monitor's tunables.
type Config struct {
	// TargetFPS is the frame rate the hysteresis aims for.
	TargetFPS float64 `mapstructure:"target_fps" yaml:"target_fps"`

	// Window is the number of samples kept in the ring.
	Window int `mapstructure:"window" yaml:"window"`

	// CoarsenAfter is N: consecutive frames below target before a Coarsen.
	CoarsenAfter int `mapstructure:"coarsen_after" yaml:"coarsen_after"`

	// RefineAfter is M: consecutive frames above target*(1+RefineMargin)
	// before a Refine. Must be greater than CoarsenAfter.
	RefineAfter int `mapstructure:"refine_after" yaml:"refine_after"`

	// RefineMargin is the fractional headroom required to count a frame
	// towards refinement.
	RefineMargin float64 `mapstructure:"refine_margin" yaml:"refine_margin"`
}

// DefaultConfig returns 60 fps over a 60-frame window, N=10, M=60, 10% margin.
func DefaultConfig() Config {
	return Config{
		TargetFPS:    60,
		Window:       60,
		CoarsenAfter: 10,
		RefineAfter:  60,
		RefineMargin: 0.10,
	}
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	switch {
	case c.TargetFPS <= 0:
		return fmt.Errorf("%w: target fps %v", ErrInvalidConfig, c.TargetFPS)
	case c.Window < 1:
		return fmt.Errorf("%w: window %d", ErrInvalidConfig, c.Window)
	case c.CoarsenAfter < 1:
		return fmt.Errorf("%w: coarsen_after %d", ErrInvalidConfig, c.CoarsenAfter)
	case c.RefineAfter <= c.CoarsenAfter:
		return fmt.Errorf("%w: refine_after (%d) must exceed coarsen_after (%d)",
			ErrInvalidConfig, c.RefineAfter, c.CoarsenAfter)
	case c.RefineMargin < 0:
		return fmt.Errorf("%w: refine_margin %v", ErrInvalidConfig, c.RefineMargin)
	}
	return nil
}

// Sample is one recorded frame.
type Sample struct {
	At       time.Time
	Duration time.Duration
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the timestamp source used by Record.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// Monitor is a fixed-size ring of frame samples plus the consecutive
// miss/exceed counters behind Decision. It belongs to the render loop and is
// not safe for concurrent use.
type Monitor struct {
	cfg Config
	now func() time.Time

	ring  []Sample
	head  int
	count int
	sum   time.Duration

	misses   int
	exceeds  int
	recorded uint64
}

// NewMonitor returns a monitor for cfg.
func NewMonitor(cfg Config, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Monitor{
		cfg:  cfg,
		now:  time.Now,
		ring: make([]Sample, cfg.Window),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the monitor's settings.
func (m *Monitor) Config() Config { return m.cfg }

// Record appends a frame duration, evicting the oldest sample once the
// window is full, and updates the hysteresis counters.
func (m *Monitor) Record(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if m.count == len(m.ring) {
		m.sum -= m.ring[m.head].Duration
	} else {
		m.count++
	}
	m.ring[m.head] = Sample{At: m.now(), Duration: d}
	m.head = (m.head + 1) % len(m.ring)
	m.sum += d
	m.recorded++

	fps := instantFPS(d)
	switch {
	case fps < m.cfg.TargetFPS:
		m.misses++
		m.exceeds = 0
	case fps >= m.cfg.TargetFPS*(1+m.cfg.RefineMargin):
		m.exceeds++
		m.misses = 0
	default:
		m.misses = 0
		m.exceeds = 0
	}
}

func instantFPS(d time.Duration) float64 {
	if d <= 0 {
		return float64(time.Second)
	}
	return float64(time.Second) / float64(d)
}

// Len returns the number of samples in the window.
func (m *Monitor) Len() int { return m.count }

// Recorded returns the total number of frames ever recorded.
func (m *Monitor) Recorded() uint64 { return m.recorded }

// AverageFPS returns window size divided by the summed durations, or 0 when
// the window is empty.
func (m *Monitor) AverageFPS() float64 {
	if m.count == 0 || m.sum <= 0 {
		return 0
	}
	return float64(m.count) / m.sum.Seconds()
}

// IsTargetMet reports whether AverageFPS is at least targetFPS.
func (m *Monitor) IsTargetMet(targetFPS float64) bool {
	return m.AverageFPS() >= targetFPS
}

// Decision returns Coarsen once N consecutive frames have missed the target
// and Refine once M consecutive frames have beaten it by the margin. The
// matching counter restarts after a verdict, so each run of N misses moves
// the level by exactly one tier.
func (m *Monitor) Decision() lod.Decision {
	switch {
	case m.misses >= m.cfg.CoarsenAfter:
		m.misses = 0
		return lod.Coarsen
	case m.exceeds >= m.cfg.RefineAfter:
		m.exceeds = 0
		return lod.Refine
	default:
		return lod.Hold
	}
}

// Streak returns the current consecutive miss and exceed counts.
func (m *Monitor) Streak() (misses, exceeds int) { return m.misses, m.exceeds }

// Budget returns the per-frame duration that meets the target.
func (m *Monitor) Budget() time.Duration {
	return time.Duration(float64(time.Second) / m.cfg.TargetFPS)
}

// Samples returns the window contents, oldest first.
func (m *Monitor) Samples() []Sample {
	out := make([]Sample, 0, m.count)
	start := (m.head - m.count + len(m.ring)) % len(m.ring)
	for i := 0; i < m.count; i++ {
		out = append(out, m.ring[(start+i)%len(m.ring)])
	}
	return out
}

// Percentile returns the nearest-rank p-th percentile (0..100) of frame
// durations in the window, or 0 when empty.
func (m *Monitor) Percentile(p float64) time.Duration {
	if m.count == 0 {
		return 0
	}
	ds := make([]time.Duration, 0, m.count)
	for _, s := range m.Samples() {
		ds = append(ds, s.Duration)
	}
	slices.Sort(ds)
	p = min(max(p, 0), 100)
	// Smallest sample with at least p percent of the window at or below it.
	rank := int(math.Ceil(p / 100 * float64(len(ds))))
	return ds[min(max(rank-1, 0), len(ds)-1)]
}

// Reset clears the window and the hysteresis counters.
func (m *Monitor) Reset() {
	clear(m.ring)
	m.head, m.count, m.sum = 0, 0, 0
	m.misses, m.exceeds = 0, 0
}
