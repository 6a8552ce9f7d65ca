// Package render draws the chat-facing media in process: board diagrams
// with highlights and coordinate labels, the review overview numbered by
// ply, the win-rate chart, and the key-move animations. Canvases are fixed
// size and rasterized without antialiasing, so the same inputs always
// produce the same bytes.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"
)

// Drawing colors. The board keeps the classic wooden look; the chart uses
// a dark theme.
var (
	woodColor  = color.RGBA{0xDC, 0xB3, 0x5C, 0xFF}
	blackColor = color.RGBA{0x00, 0x00, 0x00, 0xFF}
	whiteColor = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	redColor   = color.RGBA{0xFF, 0x00, 0x00, 0xFF}
	greenColor = color.RGBA{0x00, 0x80, 0x00, 0xFF}

	chartBG        = color.RGBA{0x28, 0x28, 0x28, 0xFF}
	chartGridGray  = color.RGBA{0xE0, 0xE0, 0xE0, 0xFF}
	chartLineGreen = color.RGBA{0x00, 0xAA, 0x55, 0xFF}
)

// Bitmap faces keep the output identical across platforms and spare the
// binary from shipping font files.
var (
	labelFace  font.Face = basicfont.Face7x13
	bannerFace font.Face = inconsolata.Bold8x16
	axisFace   font.Face = inconsolata.Regular8x16
)

func fillRect(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// fillCircle rasterizes a hard-edged disc centered on (cx, cy).
func fillCircle(dst draw.Image, cx, cy, r int, c color.Color) {
	rr := r * r
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= rr {
				dst.Set(cx+dx, cy+dy, c)
			}
		}
	}
}

// strokeCircle draws a ring whose outer edge sits at radius r.
func strokeCircle(dst draw.Image, cx, cy, r, width int, c color.Color) {
	outer := r * r
	in := r - width
	inner := in * in
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			d := dx*dx + dy*dy
			if d <= outer && d > inner {
				dst.Set(cx+dx, cy+dy, c)
			}
		}
	}
}

// strokeLine walks the segment with Bresenham steps and stamps a square
// brush at each one, giving a constant-width stroke.
func strokeLine(dst draw.Image, x0, y0, x1, y1, width int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	half := width / 2
	for {
		fillRect(dst, image.Rect(x0-half, y0-half, x0-half+width, y0-half+width), c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// drawString renders s with its top-left corner at (x, y).
func drawString(dst draw.Image, x, y int, s string, c color.Color, face font.Face) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

func stringWidth(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

func stringHeight(face font.Face) int {
	return face.Metrics().Height.Ceil()
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
