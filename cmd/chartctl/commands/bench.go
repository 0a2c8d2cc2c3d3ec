package commands

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/gogpu/chart"
	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/metrics"
	"github.com/gogpu/chart/series"
	"github.com/gogpu/chart/source"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure frame times on a synthetic series",
	Long: `Bench renders a synthetic series repeatedly and reports frame-time
statistics, the level of detail the adaptive loop settled on and the
vertex pool state. With --live a producer replaces the series while
frames are rendered.`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

var (
	benchPoints int
	benchFrames int
	benchWidth  uint32
	benchHeight uint32
	benchScale  float64
	benchLive   bool
	benchSeed   uint64
)

func init() {
	rootCmd.AddCommand(benchCmd)

	f := benchCmd.Flags()
	f.IntVar(&benchPoints, "points", 1_000_000, "number of samples in the series")
	f.IntVar(&benchFrames, "frames", 300, "number of frames to render")
	f.Uint32Var(&benchWidth, "width", 1280, "viewport width in pixels")
	f.Uint32Var(&benchHeight, "height", 720, "viewport height in pixels")
	f.Float64Var(&benchScale, "scale", 1, "viewport zoom factor")
	f.BoolVar(&benchLive, "live", false, "replace the series from a producer goroutine while rendering")
	f.Uint64Var(&benchSeed, "seed", 1, "random seed for the synthetic series")
}

const benchRef = "bench"

func runBench(cmd *cobra.Command, args []string) error {
	if benchPoints < 1 || benchFrames < 1 {
		return fmt.Errorf("--points and --frames must be positive")
	}
	rng := rand.New(rand.NewPCG(benchSeed, benchSeed^0x9e3779b97f4a7c15))

	store := source.NewStore()
	store.Put(benchRef, synthetic(rng, benchPoints, 0))

	reg := prometheus.NewRegistry()
	r, err := renderer(backend.NewSystemHost(discard{}, nil), store, chart.WithMetrics(metrics.NewCollector(reg)))
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var feed *source.Feed
	if benchLive {
		feed = source.NewFeed(benchRef)
		go produce(ctx, feed, rand.New(rand.NewPCG(benchSeed+1, benchSeed)))
	}

	vp := chart.Viewport{Width: benchWidth, Height: benchHeight, Scale: benchScale}
	var last chart.RenderResult
	counts := map[chart.Status]int{}
	start := time.Now()
	for range benchFrames {
		if feed != nil {
			feed.Drain(store)
		}
		last = r.RenderContext(ctx, chart.Encoding{LineWidth: 1}, benchRef, vp)
		counts[last.Status]++
	}
	elapsed := time.Since(start)
	cancel()

	tag, _ := r.Active()
	m := r.Monitor()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "backend\t%s\n", tag)
	fmt.Fprintf(w, "frames\t%d ok, %d warning, %d error in %s\n",
		counts[chart.StatusOK], counts[chart.StatusWarning], counts[chart.StatusError], elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "average fps\t%.1f (target %.0f)\n", m.AverageFPS(), m.Config().TargetFPS)
	fmt.Fprintf(w, "p50 / p95 / p99\t%s / %s / %s\n", m.Percentile(50), m.Percentile(95), m.Percentile(99))
	fmt.Fprintf(w, "quality\t%s\n", m.SuggestQuality())
	fmt.Fprintf(w, "lod level\t%d (%d of %d points)\n", last.LODLevel, last.Points, last.SourcePoints)
	fmt.Fprintf(w, "pool\t%s\n", last.PoolStats)
	fmt.Fprintf(w, "cache\t%s\n", r.CacheStats())
	if feed != nil {
		fmt.Fprintf(w, "dropped updates\t%d\n", feed.Dropped())
	}
	if last.Err != nil {
		fmt.Fprintf(w, "last error\t%v\n", last.Err)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return printMetrics(reg)
}

// synthetic returns a noisy sine wave with the given phase.
func synthetic(rng *rand.Rand, n int, phase float64) series.Series {
	values := make([]float64, n)
	for i := range values {
		x := float64(i) / float64(max(n-1, 1))
		values[i] = math.Sin(2*math.Pi*(8*x+phase)) + 0.2*rng.NormFloat64()
	}
	return series.New(values)
}

func produce(ctx context.Context, feed *source.Feed, rng *rand.Rand) {
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	phase := 0.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			phase += 0.01
			feed.Publish(synthetic(rng, benchPoints, phase))
		}
	}
}

func printMetrics(g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	fmt.Println()
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				v = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", lp.GetName(), lp.GetValue())
			}
			fmt.Printf("%s%s %g\n", mf.GetName(), labels, v)
		}
	}
	return nil
}
