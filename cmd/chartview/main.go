// Command chartview shows a live chart in a gogpu window. The renderer
// draws on the window's own GPU device through the shared backend tier and
// falls back to the CPU rasterizer when that device is unusable.
package main

import (
	"flag"
	"image"
	"image/color"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/gogpu/gogpu"
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/chart"
	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/config"
	"github.com/gogpu/chart/series"
	"github.com/gogpu/chart/source"
)

const liveRef = "live"

func main() {
	var (
		width   = flag.Int("width", 1024, "window width")
		height  = flag.Int("height", 512, "window height")
		cfgPath = flag.String("config", "", "config file")
		input   = flag.String("input", "", "series file to show instead of the live wave")
		points  = flag.Int("points", 200_000, "samples in the live wave")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	opts, err := cfg.Options()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store := source.NewStore()
	ref := liveRef
	var feed *source.Feed
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("open %s: %v", *input, err)
		}
		name, s, err := source.Decode(f)
		f.Close()
		if err != nil {
			log.Fatalf("decode %s: %v", *input, err)
		}
		ref = name
		store.Put(ref, s)
	} else {
		feed = source.NewFeed(ref)
		store.Put(ref, wave(*points, 0))
		go animate(feed, *points)
	}

	app := gogpu.NewApp(gogpu.DefaultConfig().
		WithTitle("chartview").
		WithSize(*width, *height).
		WithContinuousRender(true))

	screen := &window{}
	var r *chart.Renderer
	var logged bool

	app.OnDraw(func(dc *gogpu.Context) {
		w, h := dc.Width(), dc.Height()
		if w <= 0 || h <= 0 {
			return
		}
		if r == nil {
			provider := app.GPUContextProvider()
			if provider == nil {
				return
			}
			var err error
			r, err = chart.NewRenderer(backend.NewSystemHost(screen, provider), store, opts...)
			if err != nil {
				log.Fatalf("renderer: %v", err)
			}
		}
		if feed != nil {
			feed.Drain(store)
		}

		res := r.Render(chart.Encoding{
			Background: chartBackground,
			LineWidth:  1.5,
		}, ref, chart.Viewport{Width: uint32(w), Height: uint32(h), Scale: 1})
		if !logged && res.Status == chart.StatusOK {
			log.Printf("Backend: %s, %d of %d points", res.Backend, res.Points, res.SourcePoints)
			logged = true
		}
		if res.Err != nil {
			log.Printf("render: %s: %v", res.Status, res.Err)
		}
		if err := screen.show(dc.AsTextureDrawer()); err != nil {
			log.Printf("show: %v", err)
		}
	})

	app.OnClose(func() {
		screen.close()
		if r != nil {
			m := r.Monitor()
			log.Printf("Average %.1f fps, p95 %s, quality %s", m.AverageFPS(), m.Percentile(95), m.SuggestQuality())
			_ = r.Close()
		}
	})

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}

// window presents frames by uploading them as a texture on the next draw.
type window struct {
	mu      sync.Mutex
	pending *image.RGBA
	texture any
}

func (w *window) Present(frame *image.RGBA) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil || w.pending.Rect != frame.Rect {
		w.pending = image.NewRGBA(frame.Rect)
	}
	copy(w.pending.Pix, frame.Pix)
	return nil
}

type destroyer interface{ Destroy() }

func (w *window) show(dc gpucontext.TextureDrawer) error {
	w.mu.Lock()
	frame := w.pending
	w.mu.Unlock()
	if frame == nil {
		return nil
	}
	creator := dc.TextureCreator()
	if creator == nil {
		return nil
	}
	tex, err := creator.NewTextureFromRGBA(frame.Rect.Dx(), frame.Rect.Dy(), frame.Pix)
	if err != nil {
		return err
	}
	var next any = tex
	if old, ok := w.texture.(destroyer); ok {
		old.Destroy()
	}
	w.texture = next
	gt, ok := next.(gpucontext.Texture)
	if !ok {
		return nil
	}
	return dc.DrawTexture(gt, 0, 0)
}

func (w *window) close() {
	if d, ok := w.texture.(destroyer); ok {
		d.Destroy()
	}
	w.texture = nil
}

var chartBackground = color.NRGBA{R: 0x12, G: 0x14, B: 0x1a, A: 0xff}

func wave(n int, phase float64) series.Series {
	values := make([]float64, n)
	for i := range values {
		x := float64(i) / float64(max(n-1, 1))
		values[i] = math.Sin(2*math.Pi*(6*x+phase)) * (0.6 + 0.4*math.Sin(2*math.Pi*(x*40+phase*3)))
	}
	return series.New(values)
}

func animate(feed *source.Feed, n int) {
	start := time.Now()
	for range time.Tick(16 * time.Millisecond) {
		feed.Publish(wave(n, time.Since(start).Seconds()/4))
	}
}
