package render

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chartY(percent float64) int {
	return chartMarginTop + int(math.Round(float64(chartPlotH)*(1-percent/100)))
}

func TestWinrateChartEmptySeries(t *testing.T) {
	_, err := WinrateChart(nil)
	require.ErrorIs(t, err, ErrNoSeries)
}

func TestWinrateChartDrawsCurveAndGrid(t *testing.T) {
	// A game black is winning throughout keeps the curve well clear of
	// the midline.
	points := make([]ChartPoint, 0, 30)
	for i := 1; i <= 30; i++ {
		points = append(points, ChartPoint{Move: i, Percent: 80})
	}

	data, err := WinrateChart(points)
	require.NoError(t, err)

	img := decodePNG(t, data)
	require.Equal(t, chartImageW, img.Bounds().Dx())
	require.Equal(t, chartImageH, img.Bounds().Dy())

	// Dark background in the top-right corner.
	assert.Equal(t, chartBG, rgbaAt(img, chartImageW-5, 5))

	midX := chartMarginLeft + chartPlotW/2

	// The flat 80% curve crosses the plot center line height.
	assert.Equal(t, chartLineGreen, rgbaAt(img, midX, chartY(80)))

	// Brighter 50% midline, regular grid gray at 75%.
	assert.Equal(t, whiteColor, rgbaAt(img, midX, chartY(50)))
	assert.Equal(t, chartGridGray, rgbaAt(img, midX, chartY(75)))

	// Tick label under move 10 and the axis title near the bottom.
	assert.True(t, hasColorNear(img, plotX(9, len(points)), chartMarginTop+chartPlotH+16, 12, whiteColor))
	assert.True(t, hasColorNear(img, midX, chartImageH-32, 20, whiteColor))
}

func TestWinrateChartSinglePointSkipsCurve(t *testing.T) {
	data, err := WinrateChart([]ChartPoint{{Move: 1, Percent: 63.5}})
	require.NoError(t, err)

	img := decodePNG(t, data)
	// No curve to draw: the plot interior stays background.
	assert.Equal(t, chartBG, rgbaAt(img, chartMarginLeft+chartPlotW/2, chartY(63.5)))
}

func TestWinrateChartDeterministic(t *testing.T) {
	points := []ChartPoint{
		{Move: 1, Percent: 52},
		{Move: 2, Percent: 48.5},
		{Move: 3, Percent: 61},
		{Move: 4, Percent: 35},
	}

	first, err := WinrateChart(points)
	require.NoError(t, err)
	second, err := WinrateChart(points)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
