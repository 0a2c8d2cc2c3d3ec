// Package metrics exports renderer frame statistics as Prometheus metrics.
//
// # Basic Usage
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewCollector(reg)
//	r, err := chart.NewRenderer(host, store, chart.WithMetrics(m))
//
// Every Render result then updates:
//   - chart_frame_duration_seconds (histogram, by backend and status)
//   - chart_frames_total (counter, by backend and status)
//   - chart_fps (gauge, instantaneous)
//   - chart_lod_level (gauge)
//   - chart_points_drawn, chart_source_points (gauges)
//   - chart_pool_used_bytes, chart_pool_free_bytes, chart_pool_fragmentation (gauges)
//   - chart_backend_failures_total (counter, by backend)
//   - chart_surface_lost_total (counter, by backend)
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gogpu/chart"
	"github.com/gogpu/chart/backend"
)

const namespace = "chart"

// Collector implements chart.FrameObserver. Each collector registers its own
// metric set, so use one registry per collector.
type Collector struct {
	mu sync.Mutex

	frameDuration *prometheus.HistogramVec
	frames        *prometheus.CounterVec
	fps           prometheus.Gauge
	lodLevel      prometheus.Gauge
	points        prometheus.Gauge
	sourcePoints  prometheus.Gauge
	poolUsed      prometheus.Gauge
	poolFree      prometheus.Gauge
	poolFrag      prometheus.Gauge
	failures      *prometheus.CounterVec
	lost          *prometheus.CounterVec
}

// NewCollector registers the chart metrics with reg. A nil reg uses the
// default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		frameDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "Time spent in Render per frame.",
			Buckets:   []float64{0.001, 0.004, 0.008, 0.0167, 0.033, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"backend", "status"}),
		frames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Render calls by backend and status.",
		}, []string{"backend", "status"}),
		fps: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fps",
			Help:      "Frame rate implied by the last frame duration.",
		}),
		lodLevel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lod_level",
			Help:      "Level of detail of the last drawn frame (0 is full detail).",
		}),
		points: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "points_drawn",
			Help:      "Samples drawn in the last frame.",
		}),
		sourcePoints: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_points",
			Help:      "Samples in the series of the last frame.",
		}),
		poolUsed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_used_bytes",
			Help:      "Vertex arena bytes in use.",
		}),
		poolFree: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_free_bytes",
			Help:      "Vertex arena bytes free.",
		}),
		poolFrag: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_fragmentation",
			Help:      "Largest free block over total free bytes (1 means unfragmented).",
		}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_failures_total",
			Help:      "Backend attempts that failed or were unsupported.",
		}, []string{"backend"}),
		lost: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "surface_lost_total",
			Help:      "Surfaces lost while presenting.",
		}, []string{"backend"}),
	}
}

// ObserveFrame implements chart.FrameObserver.
func (c *Collector) ObserveFrame(r chart.RenderResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tag := backendLabel(r.Backend)
	status := r.Status.String()
	c.frames.WithLabelValues(tag, status).Inc()
	c.frameDuration.WithLabelValues(tag, status).Observe(r.FrameDuration.Seconds())

	for _, a := range r.Attempts {
		if errors.Is(a.Err, backend.ErrSurfaceLost) {
			c.lost.WithLabelValues(a.Backend.String()).Inc()
		} else {
			c.failures.WithLabelValues(a.Backend.String()).Inc()
		}
	}
	if r.Status != chart.StatusOK {
		return
	}

	if r.FrameDuration > 0 {
		c.fps.Set(1 / r.FrameDuration.Seconds())
	}
	c.lodLevel.Set(float64(r.LODLevel))
	c.points.Set(float64(r.Points))
	c.sourcePoints.Set(float64(r.SourcePoints))
	c.poolUsed.Set(float64(r.PoolStats.UsedBytes))
	c.poolFree.Set(float64(r.PoolStats.FreeBytes))
	c.poolFrag.Set(r.PoolStats.Fragmentation)
}

func backendLabel(t backend.Tag) string {
	if t == 0 {
		return "none"
	}
	return t.String()
}
