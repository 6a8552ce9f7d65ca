package render

import (
	"bytes"
	"image/gif"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tengenlabs/tengen/internal/board"
	"github.com/tengenlabs/tengen/internal/engine"
)

func TestKeyMoveAnimationFrames(t *testing.T) {
	grid := testGrid(t, map[string]board.Color{
		"Q16": board.Black,
		"D16": board.White,
	})
	stat := engine.MoveStat{
		Move:       3,
		Color:      "B",
		Played:     "C3",
		EngineBest: "R4",
		PV:         []string{"R4", "Q3"},
	}

	data, err := KeyMoveAnimation(grid, stat)
	require.NoError(t, err)

	g, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)

	// Ring frame, played frame, then one frame per variation stone.
	require.Len(t, g.Image, 4)
	assert.Equal(t, []int{frameDelay, frameDelay, frameDelay, lastFrameDelay}, g.Delay)
	assert.Equal(t, 0, g.LoopCount)

	c3 := mustCoord(t, "C3")
	r4 := mustCoord(t, "R4")
	q3 := mustCoord(t, "Q3")

	// Frame 1: the played point is ringed red but still empty, the
	// engine's pick is crossed green, and the banner names the move.
	f1 := g.Image[0]
	assert.Equal(t, redColor, rgbaAt(f1, pointX(c3.Col)+stoneRadius+2, pointY(c3.Row)))
	assert.Equal(t, woodColor, rgbaAt(f1, pointX(c3.Col)+5, pointY(c3.Row)+5))
	assert.Equal(t, greenColor, rgbaAt(f1, pointX(r4.Col), pointY(r4.Row)))
	assert.True(t, hasColorNear(f1, boardImageSize-40, 18, 30, blackColor))

	// Frame 2: the played stone is on the board, still ringed.
	f2 := g.Image[1]
	assert.Equal(t, blackColor, rgbaAt(f2, pointX(c3.Col)+5, pointY(c3.Row)+5))
	assert.Equal(t, redColor, rgbaAt(f2, pointX(c3.Col)+stoneRadius+2, pointY(c3.Row)))

	// Variation frames build on the position before the played move: the
	// engine's pick lands as black, the reply as white, and the played
	// stone is absent.
	f3 := g.Image[2]
	assert.Equal(t, blackColor, rgbaAt(f3, pointX(r4.Col)+5, pointY(r4.Row)+5))
	assert.Equal(t, woodColor, rgbaAt(f3, pointX(c3.Col)+5, pointY(c3.Row)+5))

	f4 := g.Image[3]
	assert.Equal(t, whiteColor, rgbaAt(f4, pointX(q3.Col)+5, pointY(q3.Row)+5))
	// Step numbers label the variation stones.
	assert.True(t, hasColorNear(f4, pointX(r4.Col), pointY(r4.Row), 4, whiteColor))
}

func TestKeyMoveAnimationWithoutVariation(t *testing.T) {
	grid := testGrid(t, map[string]board.Color{"Q16": board.Black})
	stat := engine.MoveStat{Move: 2, Color: "W", Played: "D4"}

	data, err := KeyMoveAnimation(grid, stat)
	require.NoError(t, err)

	g, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, g.Image, 2)

	// The played white stone appears in the second frame.
	d4 := mustCoord(t, "D4")
	assert.Equal(t, whiteColor, rgbaAt(g.Image[1], pointX(d4.Col)+5, pointY(d4.Row)+5))
}

func TestKeyMoveAnimationSkipsPassInVariation(t *testing.T) {
	grid := testGrid(t, map[string]board.Color{"Q16": board.Black})
	stat := engine.MoveStat{
		Move:       5,
		Color:      "W",
		Played:     "C3",
		EngineBest: "R4",
		PV:         []string{"R4", "pass", "Q3"},
	}

	data, err := KeyMoveAnimation(grid, stat)
	require.NoError(t, err)

	g, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)

	// Two board frames plus two stone frames; the pass adds none but
	// still hands the turn over, so Q3 comes back to white.
	require.Len(t, g.Image, 4)
	q3 := mustCoord(t, "Q3")
	assert.Equal(t, whiteColor, rgbaAt(g.Image[3], pointX(q3.Col)+5, pointY(q3.Row)+5))
}

func TestKeyMoveAnimationDeterministic(t *testing.T) {
	grid := testGrid(t, map[string]board.Color{"Q16": board.Black, "D4": board.White})
	stat := engine.MoveStat{
		Move:       7,
		Color:      "B",
		Played:     "K10",
		EngineBest: "C3",
		PV:         []string{"C3", "C4", "D3"},
	}

	first, err := KeyMoveAnimation(grid, stat)
	require.NoError(t, err)
	second, err := KeyMoveAnimation(grid, stat)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
