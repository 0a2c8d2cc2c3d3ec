package chart

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"

	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/cache"
	"github.com/gogpu/chart/lod"
	"github.com/gogpu/chart/perf"
	"github.com/gogpu/chart/pool"
	"github.com/gogpu/chart/series"
)

// DataSource resolves data references to immutable snapshots. The version
// must change whenever the series does. source.Store implements it.
type DataSource interface {
	Snapshot(ref string) (s series.Series, version uint64, ok bool)
}

// Renderer is the entry point of the rendering core: it turns a data
// reference and a viewport into a presented frame. Render calls are
// serialized.
type Renderer struct {
	mu sync.Mutex

	host backend.Host
	data DataSource
	opts options

	surface  *backend.Surface
	lod      *lod.System
	monitor  *perf.Monitor
	cache    *cache.Series[string]
	resident *pool.Residency[string]
	epoch    uint64
	closed   bool
}

// NewRenderer validates opts and returns a renderer. No backend is touched
// until the first Render.
func NewRenderer(host backend.Host, data DataSource, opts ...Option) (*Renderer, error) {
	if data == nil {
		return nil, errors.New("chart: nil data source")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}
	if len(o.priority) == 0 {
		return nil, fmt.Errorf("chart: empty backend priority: %w", backend.ErrNoSupportedBackend)
	}

	ls, err := lod.NewSystem(o.levels)
	if err != nil {
		return nil, fmt.Errorf("chart: %w", err)
	}
	mon, err := perf.NewMonitor(o.perf, perf.WithClock(o.clock))
	if err != nil {
		return nil, fmt.Errorf("chart: %w", err)
	}
	if o.pool.Capacity == 0 {
		return nil, fmt.Errorf("chart: %w: zero pool capacity", pool.ErrInvalidConfig)
	}

	return &Renderer{
		host:    host,
		data:    data,
		opts:    o,
		lod:     ls,
		monitor: mon,
		cache:   cache.NewSeries[string](o.cacheSize),
		surface: backend.NewSurface(
			backend.WithAcquireTimeout(o.acquireTimeout),
			backend.WithPoolConfig(o.pool),
		),
	}, nil
}

// Render draws ref with enc into a viewport-sized frame and presents it.
func (r *Renderer) Render(enc Encoding, ref string, vp Viewport) RenderResult {
	return r.RenderContext(context.Background(), enc, ref, vp)
}

// RenderContext is Render with a context bounding backend initialization.
// A draw already submitted is not cancelled.
func (r *Renderer) RenderContext(ctx context.Context, enc Encoding, ref string, vp Viewport) RenderResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.opts.clock()
	res := r.render(ctx, enc, ref, vp)
	res.FrameDuration = r.opts.clock().Sub(start)

	if res.Status != StatusError {
		r.monitor.Record(res.FrameDuration)
	}
	if p := r.surface.Pool(); p != nil {
		res.PoolStats = p.Stats()
	}
	if res.Err != nil {
		Logger().Warn("chart: frame not drawn", "ref", ref, "status", res.Status, "err", res.Err)
	}
	if r.opts.observer != nil {
		r.opts.observer.ObserveFrame(res)
	}
	return res
}

func (r *Renderer) render(ctx context.Context, enc Encoding, ref string, vp Viewport) RenderResult {
	if r.closed {
		return RenderResult{Status: StatusError, Err: ErrClosed}
	}
	raw, version, ok := r.data.Snapshot(ref)
	if !ok {
		return RenderResult{Status: StatusError, Err: fmt.Errorf("%w: %q", ErrUnknownData, ref)}
	}

	attemptsBefore := len(r.surface.Attempts())
	res := r.frame(ctx, enc, ref, raw, version, vp)
	if all := r.surface.Attempts(); len(all) > attemptsBefore {
		res.Attempts = all[attemptsBefore:]
	}
	return res
}

func (r *Renderer) frame(ctx context.Context, enc Encoding, ref string, raw series.Series, version uint64, vp Viewport) RenderResult {
	if err := r.ensureSurface(ctx, vp); err != nil {
		if errors.Is(err, backend.ErrSurfaceLost) {
			return RenderResult{Status: StatusWarning, Err: err}
		}
		return RenderResult{Status: StatusError, Err: err}
	}
	res := RenderResult{Backend: r.surface.Config().Backend, SourcePoints: raw.Len()}

	normalized := r.cache.GetOrCompute(ref, version, func() series.Series {
		return series.Normalize(raw)
	})
	sel := r.lod.Update(vp.Scale, normalized.Len(), r.monitor.Decision())
	sampled := lod.Sample(sel.Level, normalized)
	res.LODLevel = sel.Index

	size := max(backend.VertexBytes(sampled.Len()), backend.VertexStride)
	h, _, err := r.resident.Acquire(ref, size)
	if err != nil {
		res.Status, res.Err = StatusWarning, fmt.Errorf("chart: buffer for %q: %w", ref, err)
		return res
	}

	if enc.Color == (color.NRGBA{}) {
		enc.Color = DefaultColor
	}
	pass, err := r.surface.RenderPass(backend.Frame{
		Points:     sampled.Points,
		SourceLen:  sampled.SourceLen,
		Color:      enc.Color,
		Background: enc.Background,
		LineWidth:  enc.LineWidth,
	}, h)
	if err != nil {
		res.Status, res.Err = StatusWarning, err
		if !errors.Is(err, backend.ErrSurfaceLost) {
			res.Status = StatusError
		}
		return res
	}
	res.Points = sampled.Len()
	res.DrawCalls = pass.DrawCalls
	return res
}

// ensureSurface (re)initializes the backend when needed, rebuilds the
// residency set after a backend switch and follows viewport resizes.
func (r *Renderer) ensureSurface(ctx context.Context, vp Viewport) error {
	if vp.Width == 0 || vp.Height == 0 {
		return fmt.Errorf("chart: %w: viewport %dx%d", backend.ErrInvalidDimensions, vp.Width, vp.Height)
	}
	if r.surface.State() != backend.StateActive {
		target := backend.Target{Host: r.host, Width: vp.Width, Height: vp.Height, PresentMode: r.opts.presentMode}
		if err := r.surface.Initialize(ctx, target, r.opts.priority); err != nil {
			return err
		}
	} else if cfg := r.surface.Config(); cfg.Width != vp.Width || cfg.Height != vp.Height {
		if err := r.surface.Reconfigure(vp.Width, vp.Height); err != nil {
			return err
		}
	}
	if e := r.surface.Epoch(); e != r.epoch {
		r.resident = pool.NewResidency[string](r.surface.Pool())
		r.epoch = e
	}
	return nil
}

// CapabilityQuery reports which backends the host offers right now.
func (r *Renderer) CapabilityQuery() backend.CapabilitySet {
	return backend.Detect(r.host)
}

// Active returns the current backend and surface state.
func (r *Renderer) Active() (backend.Tag, backend.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surface.Config().Backend, r.surface.State()
}

// Monitor returns the frame-time monitor. Use it from the render loop only.
func (r *Renderer) Monitor() *perf.Monitor { return r.monitor }

// CacheStats reports the normalized-series cache counters.
func (r *Renderer) CacheStats() cache.Stats { return r.cache.Stats() }

// Release drops the resident buffer of ref, e.g. when a chart is removed.
func (r *Renderer) Release(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(ref)
	if r.resident == nil {
		return
	}
	// After a loss the buffers went with the device; the next activation
	// starts from an empty residency set.
	if r.surface.State() != backend.StateActive || r.surface.Epoch() != r.epoch {
		r.resident = nil
		return
	}
	_ = r.resident.Release(ref)
}

// Close releases the backend. Later Render calls fail with ErrClosed.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.resident = nil
	return r.surface.Close()
}
