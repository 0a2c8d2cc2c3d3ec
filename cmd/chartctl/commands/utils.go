package commands

import (
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"sync"

	"golang.org/x/image/draw"
)

// capture is an in-memory presenter that keeps a copy of the last frame.
type capture struct {
	mu     sync.Mutex
	frame  *image.RGBA
	frames int
}

func (c *capture) Present(frame *image.RGBA) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame == nil || c.frame.Rect != frame.Rect {
		c.frame = image.NewRGBA(frame.Rect)
	}
	copy(c.frame.Pix, frame.Pix)
	c.frames++
	return nil
}

func (c *capture) last() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// discard is a presenter that drops frames.
type discard struct{}

func (discard) Present(*image.RGBA) error { return nil }

// parseColor accepts #rgb, #rrggbb and #rrggbbaa.
func parseColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	b, err := hex.DecodeString(h)
	if err != nil || len(b) != 4 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.NRGBA{R: b[0], G: b[1], B: b[2], A: b[3]}, nil
}

// writePNG scales img to w x h (when they differ from its size) and
// writes it to path.
func writePNG(path string, img image.Image, w, h int) error {
	if w > 0 && h > 0 && (img.Bounds().Dx() != w || img.Bounds().Dy() != h) {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		img = dst
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}
