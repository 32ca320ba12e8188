package artwork

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"
)

const upperHalf = "▀"

// RenderANSI draws an image with truecolor half blocks: each cell shows two
// vertically stacked pixels. The result is at most width cells wide and
// height rows tall.
func RenderANSI(data []byte, width, height int) (string, error) {
	if width <= 0 {
		width = 20
	}
	if height <= 0 {
		height = 10
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return "", ErrInvalid
	}

	// Two pixel rows per text row.
	pw, ph := width, height*2
	scale := min(float64(pw)/float64(sb.Dx()), float64(ph)/float64(sb.Dy()))
	dw := clampMin(int(float64(sb.Dx()) * scale))
	dh := clampMin(int(float64(sb.Dy()) * scale))
	if dh%2 == 1 {
		dh++
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)

	var b strings.Builder
	for y := 0; y < dh; y += 2 {
		for x := 0; x < dw; x++ {
			top := dst.RGBAAt(x, y)
			bot := dst.RGBAAt(x, y+1)
			fmt.Fprintf(&b, "\x1b[38;2;%d;%d;%dm\x1b[48;2;%d;%d;%dm%s", top.R, top.G, top.B, bot.R, bot.G, bot.B, upperHalf)
		}
		b.WriteString("\x1b[0m")
		if y+2 < dh {
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// Placeholder returns a boxed note for when no cover is available.
func Placeholder(width, height int) string {
	if width < 3 {
		width = 20
	}
	if height < 3 {
		height = 10
	}
	inner := width - 2
	var b strings.Builder
	b.WriteString("┌" + strings.Repeat("─", inner) + "┐\n")
	for y := 1; y < height-1; y++ {
		b.WriteString("│")
		if y == height/2 {
			left := (inner - 1) / 2
			b.WriteString(strings.Repeat(" ", left) + "♪" + strings.Repeat(" ", inner-left-1))
		} else {
			b.WriteString(strings.Repeat(" ", inner))
		}
		b.WriteString("│\n")
	}
	b.WriteString("└" + strings.Repeat("─", inner) + "┘")
	return b.String()
}
