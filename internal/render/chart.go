package render

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
)

// Chart canvas geometry. The left margin fits the percent labels, the
// bottom one the move numbers and axis title.
const (
	chartImageW      = 1200
	chartImageH      = 600
	chartMarginLeft  = 80
	chartMarginRight = 40
	chartMarginTop   = 60
	chartMarginBot   = 80

	chartPlotW = chartImageW - chartMarginLeft - chartMarginRight
	chartPlotH = chartImageH - chartMarginTop - chartMarginBot
)

// ErrNoSeries is returned when the chart has nothing to plot.
var ErrNoSeries = errors.New("render: empty winrate series")

// ChartPoint is one ply of the win-rate series, already normalized to
// black's perspective.
type ChartPoint struct {
	Move    int
	Percent float64
}

// WinrateChart plots the series as a smoothed curve on a dark canvas. The
// 50% midline is drawn brighter than the rest of the grid so the eye can
// tell at a glance who is ahead. Points are spaced evenly by index; the
// move numbers only label the axis.
func WinrateChart(points []ChartPoint) ([]byte, error) {
	if len(points) == 0 {
		return nil, ErrNoSeries
	}

	img := image.NewRGBA(image.Rect(0, 0, chartImageW, chartImageH))
	fillRect(img, img.Bounds(), chartBG)

	drawString(img, chartMarginLeft, 20, "Win Rate", whiteColor, bannerFace)

	for i := 0; i <= 4; i++ {
		percent := 25 * i
		y := chartMarginTop + int(math.Round(float64(chartPlotH)*(1-float64(i)/4)))
		line := chartGridGray
		if percent == 50 {
			line = whiteColor
		}
		fillRect(img, image.Rect(chartMarginLeft, y-1, chartMarginLeft+chartPlotW, y+1), line)
		label := fmt.Sprintf("%d%%", percent)
		drawString(img, chartMarginLeft-stringWidth(labelFace, label)-10, y-8, label, whiteColor, labelFace)
	}

	// Ticks every ten moves, skipping move 1.
	idxByMove := make(map[int]int, len(points))
	maxMove := 0
	for i, p := range points {
		idxByMove[p.Move] = i
		if p.Move > maxMove {
			maxMove = p.Move
		}
	}
	for tick := 10; tick <= maxMove; tick += 10 {
		idx, ok := idxByMove[tick]
		if !ok {
			continue
		}
		x := plotX(idx, len(points))
		label := strconv.Itoa(tick)
		drawString(img, x-stringWidth(labelFace, label)/2, chartMarginTop+chartPlotH+10, label, whiteColor, labelFace)
	}

	if len(points) > 1 {
		raw := make([]pointF, len(points))
		for i, p := range points {
			raw[i] = pointF{
				X: float64(plotX(i, len(points))),
				Y: float64(chartMarginTop) + float64(chartPlotH)*(1-p.Percent/100),
			}
		}
		smooth := catmullRomPath(raw, 20)
		for i := 0; i+1 < len(smooth); i++ {
			strokeLine(img,
				int(math.Round(smooth[i].X)), int(math.Round(smooth[i].Y)),
				int(math.Round(smooth[i+1].X)), int(math.Round(smooth[i+1].Y)),
				5, chartLineGreen)
		}
	}

	title := "Move"
	drawString(img, chartMarginLeft+chartPlotW/2-stringWidth(axisFace, title)/2, chartImageH-40, title, whiteColor, axisFace)

	return encodePNG(img)
}

func plotX(idx, n int) int {
	if n <= 1 {
		return chartMarginLeft
	}
	return chartMarginLeft + int(math.Round(float64(chartPlotW)*float64(idx)/float64(n-1)))
}

type pointF struct{ X, Y float64 }

// catmullRomPath interpolates between the series points with a clamped
// Catmull-Rom spline: endpoints double as their own outer control points.
func catmullRomPath(pts []pointF, segments int) []pointF {
	if len(pts) < 2 {
		return pts
	}
	out := make([]pointF, 0, (len(pts)-1)*segments+1)
	for i := 0; i+1 < len(pts); i++ {
		p0 := pts[max(0, i-1)]
		p1 := pts[i]
		p2 := pts[i+1]
		p3 := pts[min(len(pts)-1, i+2)]
		for j := 0; j < segments; j++ {
			t := float64(j) / float64(segments)
			out = append(out, catmullRom(p0, p1, p2, p3, t))
		}
	}
	return append(out, pts[len(pts)-1])
}

func catmullRom(p0, p1, p2, p3 pointF, t float64) pointF {
	t2 := t * t
	t3 := t2 * t
	return pointF{
		X: 0.5 * (2*p1.X + (-p0.X+p2.X)*t + (2*p0.X-5*p1.X+4*p2.X-p3.X)*t2 + (-p0.X+3*p1.X-3*p2.X+p3.X)*t3),
		Y: 0.5 * (2*p1.Y + (-p0.Y+p2.Y)*t + (2*p0.Y-5*p1.Y+4*p2.Y-p3.Y)*t2 + (-p0.Y+3*p1.Y-3*p2.Y+p3.Y)*t3),
	}
}
