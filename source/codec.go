package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/gogpu/chart/series"
)

// ErrMalformed is returned for input that is not a series document.
var ErrMalformed = errors.New("source: malformed series document")

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// document is the wire form of a series. Missing samples are JSON nulls and
// decode to NaN.
type document struct {
	Name   string     `json:"name"`
	Values []*float64 `json:"values"`
}

func (d document) series() series.Series {
	vals := make([]float64, len(d.Values))
	for i, v := range d.Values {
		if v == nil {
			vals[i] = math.NaN()
		} else {
			vals[i] = *v
		}
	}
	return series.New(vals)
}

func toDocument(name string, s series.Series) document {
	d := document{Name: name, Values: make([]*float64, s.Len())}
	s.Range(func(i int, v float64) bool {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			d.Values[i] = &v
		}
		return true
	})
	return d
}

// reader returns r, transparently decompressing zstd input. The returned
// close function must be called when done.
func reader(r io.Reader) (io.Reader, func(), error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	if !bytes.Equal(magic, zstdMagic) {
		return br, func() {}, nil
	}
	zr, err := zstd.NewReader(br)
	if err != nil {
		return nil, nil, fmt.Errorf("source: zstd: %w", err)
	}
	return zr, zr.Close, nil
}

// Decode reads one document of the form {"name": ..., "values": [...]},
// optionally zstd compressed.
func Decode(r io.Reader) (string, series.Series, error) {
	rd, done, err := reader(r)
	if err != nil {
		return "", series.Series{}, err
	}
	defer done()

	var d document
	if err := json.NewDecoder(rd).Decode(&d); err != nil {
		return "", series.Series{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return d.Name, d.series(), nil
}

// Encode writes s under name. Non-finite samples are written as null.
func Encode(w io.Writer, name string, s series.Series, compress bool) error {
	d := toDocument(name, s)
	if !compress {
		return json.NewEncoder(w).Encode(d)
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("source: zstd: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(d); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Stream decodes consecutive documents from r and publishes each to f until
// r is exhausted or ctx is done. It returns the number of snapshots
// published.
func Stream(ctx context.Context, r io.Reader, f *Feed) (int, error) {
	rd, done, err := reader(r)
	if err != nil {
		return 0, err
	}
	defer done()

	dec := json.NewDecoder(rd)
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		var d document
		if err := dec.Decode(&d); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("%w: document %d: %w", ErrMalformed, n+1, err)
		}
		f.Publish(d.series())
		n++
	}
}
