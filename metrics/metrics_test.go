package metrics

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/chart"
	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/pool"
	"github.com/gogpu/chart/series"
	"github.com/gogpu/chart/source"
)

func TestObserveFrame(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveFrame(chart.RenderResult{
		Status:        chart.StatusOK,
		Backend:       backend.TagSoftware,
		LODLevel:      2,
		FrameDuration: 20 * time.Millisecond,
		Points:        25_000,
		SourcePoints:  1_000_000,
		PoolStats:     pool.Stats{UsedBytes: 4096, FreeBytes: 1024, Fragmentation: 0.5},
		Attempts: []backend.Attempt{
			{Backend: backend.TagGPU, Err: backend.ErrDeviceInit},
			{Backend: backend.TagShared, Err: backend.ErrNotSupported},
		},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.frames.WithLabelValues("software", "ok")))
	assert.InDelta(t, 50.0, testutil.ToFloat64(c.fps), 1e-9)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.lodLevel))
	assert.Equal(t, 25_000.0, testutil.ToFloat64(c.points))
	assert.Equal(t, 1_000_000.0, testutil.ToFloat64(c.sourcePoints))
	assert.Equal(t, 4096.0, testutil.ToFloat64(c.poolUsed))
	assert.Equal(t, 1024.0, testutil.ToFloat64(c.poolFree))
	assert.Equal(t, 0.5, testutil.ToFloat64(c.poolFrag))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("gpu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("shared")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.frameDuration))
}

func TestObserveLostAndFailedFrames(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveFrame(chart.RenderResult{Status: chart.StatusOK, Backend: backend.TagShared, LODLevel: 1, FrameDuration: time.Millisecond})
	c.ObserveFrame(chart.RenderResult{
		Status:   chart.StatusWarning,
		Backend:  backend.TagShared,
		LODLevel: 3,
		Attempts: []backend.Attempt{{Backend: backend.TagShared, Err: errors.Join(backend.ErrSurfaceLost, errors.New("present"))}},
		Err:      backend.ErrSurfaceLost,
	})
	c.ObserveFrame(chart.RenderResult{Status: chart.StatusError, Err: backend.ErrNoSupportedBackend})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.lost.WithLabelValues("shared")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.frames.WithLabelValues("shared", "warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.frames.WithLabelValues("none", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lodLevel), "gauges keep the last drawn frame")
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector(prometheus.NewRegistry())
	b := NewCollector(prometheus.NewRegistry())
	a.ObserveFrame(chart.RenderResult{Backend: backend.TagGPU})
	assert.Equal(t, 1.0, testutil.ToFloat64(a.frames.WithLabelValues("gpu", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.frames.WithLabelValues("gpu", "ok")))
}

func TestMetricNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.ObserveFrame(chart.RenderResult{Backend: backend.TagSoftware, FrameDuration: time.Millisecond})

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"chart_frame_duration_seconds", "chart_frames_total", "chart_fps", "chart_lod_level",
		"chart_pool_used_bytes", "chart_pool_fragmentation",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestRendererIntegration(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	store := source.NewStore()
	store.Put("s", series.New([]float64{1, 3, 2, 5}))
	host := &backend.StaticHost{Present: backend.PresenterFunc(func(*image.RGBA) error { return nil })}
	r, err := chart.NewRenderer(host, store, chart.WithMetrics(c), chart.WithPoolCapacity(1<<16))
	require.NoError(t, err)
	defer r.Close()

	for i := 0; i < 3; i++ {
		res := r.Render(chart.Encoding{}, "s", chart.Viewport{Width: 32, Height: 16})
		require.Equal(t, chart.StatusOK, res.Status, "%v", res.Err)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(c.frames.WithLabelValues("software", "ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.points))
	// gpu was not offered, shared had no provider.
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("gpu")))
	assert.Positive(t, testutil.ToFloat64(c.poolUsed))
}
