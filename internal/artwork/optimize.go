package artwork

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxSize  = 512
	DefaultQuality  = 85
	DefaultMaxBytes = 4 << 20
)

var (
	ErrInvalid  = errors.New("artwork: invalid image data")
	ErrTooLarge = errors.New("artwork: optimized image exceeds byte budget")
)

// Optimizer re-encodes cover art as a bounded JPEG.
type Optimizer struct {
	MaxSize  int // longest edge in pixels
	Quality  int // JPEG quality 1-100
	MaxBytes int
}

type Optimized struct {
	Data          []byte
	Width, Height int
	Resized       bool
}

func (o Optimizer) withDefaults() Optimizer {
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxSize
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	return o
}

// Optimize decodes data, flattens it onto an opaque canvas, shrinks it to fit
// MaxSize when either edge is larger, and encodes a JPEG. There is one encode
// pass: a result over MaxBytes is rejected with ErrTooLarge.
func (o Optimizer) Optimize(data []byte) (Optimized, error) {
	o = o.withDefaults()
	if len(data) == 0 {
		return Optimized{}, ErrInvalid
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Optimized{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	sb := src.Bounds()
	w, h := sb.Dx(), sb.Dy()
	if w == 0 || h == 0 {
		return Optimized{}, ErrInvalid
	}

	dw, dh := fit(w, h, o.MaxSize)
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	if dw == w && dh == h {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: o.Quality}); err != nil {
		return Optimized{}, fmt.Errorf("encode jpeg: %w", err)
	}
	if buf.Len() > o.MaxBytes {
		return Optimized{}, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, buf.Len(), o.MaxBytes)
	}
	return Optimized{Data: buf.Bytes(), Width: dw, Height: dh, Resized: dw != w || dh != h}, nil
}

// fit scales (w, h) down to fit a limit x limit box, keeping the aspect ratio.
func fit(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, clampMin(h * limit / w)
	}
	return clampMin(w * limit / h), limit
}

func clampMin(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
