package chart

import (
	"log/slog"
	"time"

	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/cache"
	"github.com/gogpu/chart/lod"
	"github.com/gogpu/chart/perf"
	"github.com/gogpu/chart/pool"
)

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := chart.NewRenderer(host, store,
//	    chart.WithTargetFPS(30),
//	    chart.WithPriority(backend.TagShared, backend.TagSoftware),
//	)
type Option func(*options)

type options struct {
	priority       []backend.Tag
	levels         []lod.Level
	perf           perf.Config
	pool           pool.Config
	acquireTimeout time.Duration
	clock          func() time.Time
	observer       FrameObserver
	logger         *slog.Logger
	cacheSize      int
	presentMode    backend.PresentMode
}

func defaultOptions() options {
	return options{
		priority:       backend.DefaultPriority(),
		levels:         lod.DefaultLevels(),
		perf:           perf.DefaultConfig(),
		pool:           pool.DefaultConfig(),
		acquireTimeout: backend.DefaultAcquireTimeout,
		clock:          time.Now,
		cacheSize:      cache.DefaultCapacity,
	}
}

// WithPriority sets the backend fallback order, highest preference first.
func WithPriority(tags ...backend.Tag) Option {
	return func(o *options) {
		o.priority = append([]backend.Tag(nil), tags...)
	}
}

// WithLevels replaces the level-of-detail tiers, finest first.
func WithLevels(levels ...lod.Level) Option {
	return func(o *options) {
		o.levels = append([]lod.Level(nil), levels...)
	}
}

// WithTargetFPS sets the frame rate the level-of-detail hysteresis aims for.
func WithTargetFPS(fps float64) Option {
	return func(o *options) { o.perf.TargetFPS = fps }
}

// WithWindow sets how many frames the rolling average covers.
func WithWindow(frames int) Option {
	return func(o *options) { o.perf.Window = frames }
}

// WithHysteresis sets how many consecutive slow frames coarsen the level
// (n), how many consecutive fast frames refine it (m), and the headroom a
// frame needs over the target to count as fast. m must exceed n.
func WithHysteresis(n, m int, margin float64) Option {
	return func(o *options) {
		o.perf.CoarsenAfter = n
		o.perf.RefineAfter = m
		o.perf.RefineMargin = margin
	}
}

// WithPoolCapacity sets the vertex arena size in bytes.
func WithPoolCapacity(bytes uint64) Option {
	return func(o *options) { o.pool.Capacity = bytes }
}

// WithPoolConfig sets every allocator parameter at once.
func WithPoolConfig(c pool.Config) Option {
	return func(o *options) { o.pool = c }
}

// WithAcquireTimeout bounds device acquisition per backend.
func WithAcquireTimeout(d time.Duration) Option {
	return func(o *options) { o.acquireTimeout = d }
}

// WithPresentMode sets how the host paces frames.
func WithPresentMode(m backend.PresentMode) Option {
	return func(o *options) { o.presentMode = m }
}

// WithClock overrides the time source used to measure frames.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithMetrics reports every rendered frame to obs.
func WithMetrics(obs FrameObserver) Option {
	return func(o *options) { o.observer = obs }
}

// WithCacheSize sets how many normalized series are kept.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithLogger installs l as the package logger (see SetLogger) when the
// renderer is created.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
