package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/chart"
	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/series"
	"github.com/gogpu/chart/source"
)

var renderCmd = &cobra.Command{
	Use:   "render [series-file]",
	Short: "Render a series file to PNG",
	Long: `Render draws a JSON (optionally zstd-compressed) series file headlessly
and writes the frame as PNG. With --tween it renders an animation towards a
second file, one PNG per frame.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var (
	renderOut        string
	renderWidth      uint32
	renderHeight     uint32
	renderScale      float64
	renderColor      string
	renderBackground string
	renderLineWidth  float32
	renderOutWidth   int
	renderOutHeight  int
	renderResample   int
	renderTween      string
	renderFrames     int
)

func init() {
	rootCmd.AddCommand(renderCmd)

	f := renderCmd.Flags()
	f.StringVarP(&renderOut, "output", "o", "chart.png", "output PNG path")
	f.Uint32Var(&renderWidth, "width", 800, "viewport width in pixels")
	f.Uint32Var(&renderHeight, "height", 400, "viewport height in pixels")
	f.Float64Var(&renderScale, "scale", 1, "viewport zoom factor")
	f.StringVar(&renderColor, "color", "#1f77b4", "line color")
	f.StringVar(&renderBackground, "background", "#ffffff", "background color")
	f.Float32Var(&renderLineWidth, "line-width", 1.5, "line width in pixels")
	f.IntVar(&renderOutWidth, "out-width", 0, "scale the PNG to this width")
	f.IntVar(&renderOutHeight, "out-height", 0, "scale the PNG to this height")
	f.IntVar(&renderResample, "resample", 0, "upsample the series to this many points before drawing")
	f.StringVar(&renderTween, "tween", "", "series file to animate towards")
	f.IntVar(&renderFrames, "frames", 10, "number of frames rendered with --tween")
}

func runRender(cmd *cobra.Command, args []string) error {
	name, data, err := readSeries(args[0])
	if err != nil {
		return err
	}
	if renderResample > 0 {
		if data, err = series.Interpolate(data, renderResample); err != nil {
			return fmt.Errorf("resampling: %w", err)
		}
	}
	enc, err := renderEncoding()
	if err != nil {
		return err
	}

	store := source.NewStore()
	out := &capture{}
	r, err := renderer(backend.NewSystemHost(out, nil), store)
	if err != nil {
		return err
	}
	defer r.Close()
	vp := chart.Viewport{Width: renderWidth, Height: renderHeight, Scale: renderScale}

	if renderTween == "" {
		store.Put(name, data)
		if err := renderFrame(r, enc, name, vp); err != nil {
			return err
		}
		return save(renderOut, out)
	}

	_, target, err := readSeries(renderTween)
	if err != nil {
		return err
	}
	frames := max(renderFrames, 2)
	base := strings.TrimSuffix(renderOut, filepath.Ext(renderOut))
	for i := range frames {
		step, err := series.Tween(data, target, float64(i)/float64(frames-1))
		if err != nil {
			return fmt.Errorf("tweening: %w", err)
		}
		store.Put(name, step)
		if err := renderFrame(r, enc, name, vp); err != nil {
			return err
		}
		if err := save(fmt.Sprintf("%s-%03d.png", base, i), out); err != nil {
			return err
		}
	}
	return nil
}

func renderEncoding() (chart.Encoding, error) {
	fg, err := parseColor(renderColor)
	if err != nil {
		return chart.Encoding{}, err
	}
	bg, err := parseColor(renderBackground)
	if err != nil {
		return chart.Encoding{}, err
	}
	return chart.Encoding{Color: fg, Background: bg, LineWidth: renderLineWidth}, nil
}

func renderFrame(r *chart.Renderer, enc chart.Encoding, ref string, vp chart.Viewport) error {
	res := r.Render(enc, ref, vp)
	if res.Status != chart.StatusOK {
		return fmt.Errorf("render %s: %s: %w", ref, res.Status, res.Err)
	}
	chart.Logger().Info("frame rendered",
		"backend", res.Backend,
		"lod", res.LODLevel,
		"points", res.Points,
		"source_points", res.SourcePoints,
		"duration", res.FrameDuration)
	return nil
}

func save(path string, out *capture) error {
	img := out.last()
	if img == nil {
		return fmt.Errorf("no frame was presented")
	}
	if err := writePNG(path, img, renderOutWidth, renderOutHeight); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

// readSeries decodes path; the document name, or the file name when it
// has none, becomes the data reference.
func readSeries(path string) (string, series.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", series.Series{}, err
	}
	defer f.Close()
	name, s, err := source.Decode(f)
	if err != nil {
		return "", series.Series{}, fmt.Errorf("%s: %w", path, err)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return name, s, nil
}
