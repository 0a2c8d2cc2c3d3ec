package chart

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/lod"
	"github.com/gogpu/chart/pool"
	"github.com/gogpu/chart/series"
	"github.com/gogpu/chart/source"
)

func discard(*image.RGBA) error { return nil }

// screen is an in-memory presenter.
type screen struct {
	mu     sync.Mutex
	frames int
	last   *image.RGBA
	fail   int // number of upcoming presents to fail
}

func (s *screen) Present(img *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("display went away")
	}
	s.frames++
	s.last = img
	return nil
}

// stepClock advances by step on every reading.
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

type countingObserver struct{ results []RenderResult }

func (o *countingObserver) ObserveFrame(r RenderResult) { o.results = append(o.results, r) }

type failingInstances struct{}

func (failingInstances) CreateInstance(*hal.InstanceDescriptor) (hal.Instance, error) {
	return nil, errors.New("no vulkan")
}

type sharedProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p *sharedProvider) Device() gpucontext.Device             { return nil }
func (p *sharedProvider) Queue() gpucontext.Queue               { return nil }
func (p *sharedProvider) Adapter() gpucontext.Adapter           { return nil }
func (p *sharedProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (p *sharedProvider) HalDevice() any                        { return p.device }
func (p *sharedProvider) HalQueue() any                         { return p.queue }

func newSharedProvider(t *testing.T) *sharedProvider {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return &sharedProvider{device: openDev.Device, queue: openDev.Queue}
}

func ramp(n int) series.Series {
	v := make([]float64, n)
	for i := range v {
		v[i] = float64(i % 97)
	}
	return series.New(v)
}

var smallView = Viewport{Width: 64, Height: 32, Scale: 1}

func newTestRenderer(t *testing.T, host backend.Host, store *source.Store, opts ...Option) *Renderer {
	t.Helper()
	opts = append([]Option{WithPoolCapacity(8 << 20)}, opts...)
	r, err := NewRenderer(host, store, opts...)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRenderSoftware(t *testing.T) {
	scr := &screen{}
	store := source.NewStore()
	store.Put("s", ramp(500))
	obs := &countingObserver{}
	r := newTestRenderer(t, &backend.StaticHost{Present: scr}, store, WithMetrics(obs))

	res := r.Render(Encoding{}, "s", smallView)
	if res.Status != StatusOK || res.Err != nil {
		t.Fatalf("Render = %v, %v", res.Status, res.Err)
	}
	if res.Backend != backend.TagSoftware || res.LODLevel != 0 {
		t.Errorf("backend %v level %d", res.Backend, res.LODLevel)
	}
	if res.Points != 500 || res.SourcePoints != 500 || res.DrawCalls != 1 {
		t.Errorf("points %d source %d draws %d", res.Points, res.SourcePoints, res.DrawCalls)
	}
	if res.PoolStats.UsedBytes < backend.VertexBytes(500) || res.PoolStats.ActiveHandles != 1 {
		t.Errorf("pool stats = %+v", res.PoolStats)
	}
	if scr.frames != 1 || scr.last.Bounds().Dx() != 64 {
		t.Errorf("presented %d frames", scr.frames)
	}
	if len(obs.results) != 1 || obs.results[0].Status != StatusOK {
		t.Errorf("observer saw %v", obs.results)
	}

	// Same version again: cached normalization and the same resident buffer.
	res = r.Render(Encoding{}, "s", smallView)
	if res.Status != StatusOK || res.PoolStats.Allocations != 1 {
		t.Errorf("second frame: %v, allocations %d", res.Status, res.PoolStats.Allocations)
	}
	if st := r.CacheStats(); st.Hits != 1 || st.Misses != 1 {
		t.Errorf("cache stats = %+v", st)
	}
	if tag, state := r.Active(); tag != backend.TagSoftware || state != backend.StateActive {
		t.Errorf("Active() = %v, %v", tag, state)
	}
}

func TestRenderEmptySeries(t *testing.T) {
	store := source.NewStore()
	store.Put("empty", series.New(nil))
	r := newTestRenderer(t, &backend.StaticHost{Present: backend.PresenterFunc(discard)}, store)

	res := r.Render(Encoding{}, "empty", smallView)
	if res.Status != StatusOK || res.Points != 0 || res.DrawCalls != 0 {
		t.Errorf("empty series: %+v", res)
	}
}

func TestRenderUnknownData(t *testing.T) {
	r := newTestRenderer(t, &backend.StaticHost{Present: backend.PresenterFunc(discard)}, source.NewStore())
	res := r.Render(Encoding{}, "missing", smallView)
	if res.Status != StatusError || !errors.Is(res.Err, ErrUnknownData) {
		t.Errorf("Render = %v, %v", res.Status, res.Err)
	}
	if _, state := r.Active(); state != backend.StateUninitialized {
		t.Errorf("surface state = %v, want untouched", state)
	}
}

func TestRenderInvalidViewport(t *testing.T) {
	store := source.NewStore()
	store.Put("s", ramp(3))
	r := newTestRenderer(t, &backend.StaticHost{Present: backend.PresenterFunc(discard)}, store)
	res := r.Render(Encoding{}, "s", Viewport{Width: 0, Height: 10})
	if res.Status != StatusError || !errors.Is(res.Err, backend.ErrInvalidDimensions) {
		t.Errorf("Render = %v, %v", res.Status, res.Err)
	}
}

func TestRenderFallbackRecorded(t *testing.T) {
	store := source.NewStore()
	store.Put("s", ramp(10))
	host := &backend.StaticHost{Present: backend.PresenterFunc(discard), Instances: failingInstances{}}
	r := newTestRenderer(t, host, store)

	res := r.Render(Encoding{}, "s", smallView)
	if res.Status != StatusOK || res.Backend != backend.TagSoftware {
		t.Fatalf("Render = %v on %v: %v", res.Status, res.Backend, res.Err)
	}
	if len(res.Attempts) != 2 || res.Attempts[0].Backend != backend.TagGPU || !errors.Is(res.Attempts[0].Err, backend.ErrDeviceInit) {
		t.Errorf("attempts = %v", res.Attempts)
	}
	if res = r.Render(Encoding{}, "s", smallView); len(res.Attempts) != 0 {
		t.Errorf("second frame attempts = %v, want none", res.Attempts)
	}
	if caps := r.CapabilityQuery(); !caps.GPU || caps.Shared || !caps.Software {
		t.Errorf("CapabilityQuery = %v", caps)
	}
}

func TestRenderNoBackend(t *testing.T) {
	store := source.NewStore()
	store.Put("s", ramp(10))
	r := newTestRenderer(t, &backend.StaticHost{}, store)

	res := r.Render(Encoding{}, "s", smallView)
	if res.Status != StatusError || !errors.Is(res.Err, backend.ErrNoSupportedBackend) {
		t.Fatalf("Render = %v, %v", res.Status, res.Err)
	}
	var ex *backend.ExhaustedError
	if !errors.As(res.Err, &ex) || len(ex.Attempts) != 3 {
		t.Errorf("error = %v, want all three backends listed", res.Err)
	}
	if r.Monitor().Recorded() != 0 {
		t.Error("failed frame recorded as timing sample")
	}
}

func TestRenderSurfaceLostFallsBack(t *testing.T) {
	store := source.NewStore()
	store.Put("s", ramp(10))
	scr := &screen{fail: 1}
	host := &backend.StaticHost{Present: scr, Provider: newSharedProvider(t)}
	r := newTestRenderer(t, host, store)

	res := r.Render(Encoding{}, "s", smallView)
	if res.Status != StatusWarning || !errors.Is(res.Err, backend.ErrSurfaceLost) || res.Backend != backend.TagShared {
		t.Fatalf("first frame = %v on %v: %v", res.Status, res.Backend, res.Err)
	}
	if _, state := r.Active(); state != backend.StateLost {
		t.Fatalf("state = %v, want lost", state)
	}

	res = r.Render(Encoding{}, "s", smallView)
	if res.Status != StatusOK || res.Backend != backend.TagSoftware {
		t.Fatalf("second frame = %v on %v: %v", res.Status, res.Backend, res.Err)
	}
	if scr.frames != 1 {
		t.Errorf("presented %d frames, want 1", scr.frames)
	}
}

func TestReleaseAfterSurfaceLost(t *testing.T) {
	store := source.NewStore()
	refs := []string{"a", "b", "c", "d", "e"}
	for _, ref := range refs {
		store.Put(ref, ramp(10))
	}
	scr := &screen{}
	host := &backend.StaticHost{Present: scr, Provider: newSharedProvider(t)}
	// Five buffers and a small tail: freeing a and c would fragment the pool
	// enough to compact it.
	v := backend.VertexBytes(10)
	r := newTestRenderer(t, host, store,
		WithPriority(backend.TagShared, backend.TagSoftware), WithPoolCapacity(5*v+v/2))

	for _, ref := range refs {
		if res := r.Render(Encoding{}, ref, smallView); res.Status != StatusOK || res.Backend != backend.TagShared {
			t.Fatalf("Render(%s) = %v on %v: %v", ref, res.Status, res.Backend, res.Err)
		}
	}
	scr.mu.Lock()
	scr.fail = 1
	scr.mu.Unlock()
	if res := r.Render(Encoding{}, "e", smallView); !errors.Is(res.Err, backend.ErrSurfaceLost) {
		t.Fatalf("Render after present failure = %v, %v", res.Status, res.Err)
	}

	r.Release("a")
	r.Release("c")

	res := r.Render(Encoding{}, "b", smallView)
	if res.Status != StatusOK || res.Backend != backend.TagSoftware {
		t.Fatalf("Render(b) after loss = %v on %v: %v", res.Status, res.Backend, res.Err)
	}
	if res.PoolStats.ActiveHandles != 1 || res.PoolStats.Compactions != 0 {
		t.Errorf("new pool stats = %+v, want one fresh handle", res.PoolStats)
	}
}

func TestRenderOutOfMemoryKeepsSurface(t *testing.T) {
	store := source.NewStore()
	store.Put("big", ramp(1000))
	store.Put("small", ramp(4))
	r := newTestRenderer(t, &backend.StaticHost{Present: backend.PresenterFunc(discard)}, store,
		WithPoolCapacity(1024))

	res := r.Render(Encoding{}, "big", smallView)
	if res.Status != StatusWarning || !errors.Is(res.Err, pool.ErrOutOfMemory) {
		t.Fatalf("Render(big) = %v, %v", res.Status, res.Err)
	}
	if _, state := r.Active(); state != backend.StateActive {
		t.Fatalf("state = %v, surface must stay active", state)
	}
	if res = r.Render(Encoding{}, "small", smallView); res.Status != StatusOK {
		t.Errorf("Render(small) = %v, %v", res.Status, res.Err)
	}
}

func TestRenderEvictsLeastRecentlyUsed(t *testing.T) {
	store := source.NewStore()
	store.Put("a", ramp(12))
	store.Put("b", ramp(12))
	store.Put("c", ramp(12))
	// Room for two 11-segment buffers.
	capacity := 2*backend.VertexBytes(12) + 100
	r := newTestRenderer(t, &backend.StaticHost{Present: backend.PresenterFunc(discard)}, store,
		WithPoolCapacity(capacity))

	for _, ref := range []string{"a", "b", "a", "c"} {
		if res := r.Render(Encoding{}, ref, smallView); res.Status != StatusOK {
			t.Fatalf("Render(%s) = %v, %v", ref, res.Status, res.Err)
		}
	}
	// b was least recently used when c arrived.
	res := r.Render(Encoding{}, "a", smallView)
	if res.PoolStats.ActiveHandles != 2 {
		t.Errorf("active handles = %d, want 2", res.PoolStats.ActiveHandles)
	}
	before := res.PoolStats.Allocations
	if res = r.Render(Encoding{}, "c", smallView); res.PoolStats.Allocations != before {
		t.Error("c was evicted instead of b")
	}
	if res = r.Render(Encoding{}, "b", smallView); res.PoolStats.Allocations != before+1 {
		t.Error("b was still resident")
	}
}

func TestRenderHysteresis(t *testing.T) {
	store := source.NewStore()
	store.Put("big", ramp(1_000_000))
	clock := &stepClock{now: time.Unix(0, 0), step: 20 * time.Millisecond}
	r := newTestRenderer(t, &backend.StaticHost{Present: backend.PresenterFunc(discard)}, store,
		WithClock(clock.Now), WithHysteresis(10, 60, 0.1))

	vp := Viewport{Width: 64, Height: 32, Scale: 0.05}
	var levels []int
	for i := 0; i < 21; i++ {
		res := r.Render(Encoding{}, "big", vp)
		if res.Status != StatusOK {
			t.Fatalf("frame %d: %v, %v", i, res.Status, res.Err)
		}
		if res.FrameDuration != 20*time.Millisecond {
			t.Fatalf("frame %d duration = %v", i, res.FrameDuration)
		}
		if lim := lod.DefaultLevels()[res.LODLevel].MaxVisiblePoints; res.Points > lim {
			t.Fatalf("frame %d drew %d points over the level limit %d", i, res.Points, lim)
		}
		levels = append(levels, res.LODLevel)
	}
	for i, l := range levels {
		want := 0
		switch {
		case i >= 20:
			want = 2
		case i >= 10:
			want = 1
		}
		if l != want {
			t.Errorf("frame %d level = %d, want %d", i, l, want)
		}
	}
	if m := r.Monitor(); m.IsTargetMet(60) || m.AverageFPS() < 49.9 || m.AverageFPS() > 50.1 {
		t.Errorf("average fps = %v", m.AverageFPS())
	}
}

func TestRenderResize(t *testing.T) {
	scr := &screen{}
	store := source.NewStore()
	store.Put("s", ramp(10))
	r := newTestRenderer(t, &backend.StaticHost{Present: scr}, store)

	r.Render(Encoding{}, "s", smallView)
	res := r.Render(Encoding{}, "s", Viewport{Width: 100, Height: 50})
	if res.Status != StatusOK {
		t.Fatalf("Render = %v, %v", res.Status, res.Err)
	}
	if got := scr.last.Bounds().Size(); got != (image.Point{X: 100, Y: 50}) {
		t.Errorf("frame size = %v", got)
	}
}

func TestRenderAfterClose(t *testing.T) {
	store := source.NewStore()
	store.Put("s", ramp(10))
	r := newTestRenderer(t, &backend.StaticHost{Present: backend.PresenterFunc(discard)}, store)
	r.Render(Encoding{}, "s", smallView)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if res := r.Render(Encoding{}, "s", smallView); res.Status != StatusError || !errors.Is(res.Err, ErrClosed) {
		t.Errorf("Render after Close = %v, %v", res.Status, res.Err)
	}
}
