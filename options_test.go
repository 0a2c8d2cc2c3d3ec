package chart

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/lod"
	"github.com/gogpu/chart/perf"
	"github.com/gogpu/chart/pool"
	"github.com/gogpu/chart/source"
)

// TestDefaultOptions checks the documented defaults.
func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if len(o.priority) != 3 || o.priority[0] != backend.TagGPU || o.priority[2] != backend.TagSoftware {
		t.Errorf("priority = %v", o.priority)
	}
	if o.perf != perf.DefaultConfig() {
		t.Errorf("perf = %+v", o.perf)
	}
	if o.pool.Capacity != 100<<20 {
		t.Errorf("pool capacity = %d", o.pool.Capacity)
	}
	if o.acquireTimeout != 3*time.Second {
		t.Errorf("acquire timeout = %v", o.acquireTimeout)
	}
	if len(o.levels) != len(lod.DefaultLevels()) {
		t.Errorf("levels = %v", o.levels)
	}
}

// TestOptionsApply checks that every option lands in its field.
func TestOptionsApply(t *testing.T) {
	clock := func() time.Time { return time.Unix(1, 0) }
	obs := &countingObserver{}
	levels := []lod.Level{{MaxVisiblePoints: 10, Stride: 1}, {MaxVisiblePoints: 5, Stride: 2}}

	o := defaultOptions()
	for _, opt := range []Option{
		WithPriority(backend.TagSoftware),
		WithLevels(levels...),
		WithTargetFPS(30),
		WithWindow(120),
		WithHysteresis(3, 9, 0.2),
		WithPoolCapacity(4096),
		WithAcquireTimeout(time.Second),
		WithPresentMode(backend.PresentMailbox),
		WithClock(clock),
		WithClock(nil),
		WithMetrics(obs),
		WithCacheSize(7),
	} {
		opt(&o)
	}

	levels[0].MaxVisiblePoints = 99
	if o.levels[0].MaxVisiblePoints != 10 {
		t.Error("WithLevels kept the caller's slice")
	}
	want := perf.Config{TargetFPS: 30, Window: 120, CoarsenAfter: 3, RefineAfter: 9, RefineMargin: 0.2}
	if o.perf != want {
		t.Errorf("perf = %+v, want %+v", o.perf, want)
	}
	if len(o.priority) != 1 || o.pool.Capacity != 4096 || o.acquireTimeout != time.Second {
		t.Errorf("options = %+v", o)
	}
	if o.presentMode != backend.PresentMailbox || o.cacheSize != 7 || o.observer != obs {
		t.Errorf("options = %+v", o)
	}
	if !o.clock().Equal(time.Unix(1, 0)) {
		t.Error("WithClock(nil) replaced the clock")
	}
}

// TestNewRendererRejects checks construction-time validation.
func TestNewRendererRejects(t *testing.T) {
	host := &backend.StaticHost{}
	store := source.NewStore()
	tests := []struct {
		name string
		data DataSource
		opts []Option
		want error
	}{
		{"nil data", nil, nil, nil},
		{"empty priority", store, []Option{WithPriority()}, backend.ErrNoSupportedBackend},
		{"bad levels", store, []Option{WithLevels(lod.Level{MaxVisiblePoints: 5, Stride: 1}, lod.Level{MaxVisiblePoints: 10, Stride: 1})}, lod.ErrInvalidLevels},
		{"refine not slower", store, []Option{WithHysteresis(10, 10, 0.1)}, perf.ErrInvalidConfig},
		{"zero pool", store, []Option{WithPoolConfig(pool.Config{})}, pool.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRenderer(host, tt.data, tt.opts...)
			if err == nil {
				r.Close()
				t.Fatal("NewRenderer succeeded")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWithLoggerInstallsLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	l := slog.New(nopHandler{})
	r, err := NewRenderer(&backend.StaticHost{}, source.NewStore(), WithLogger(l))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if Logger() != l {
		t.Error("WithLogger did not install the logger")
	}
}
