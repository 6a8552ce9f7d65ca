package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"

	"github.com/tengenlabs/tengen/internal/board"
	"github.com/tengenlabs/tengen/internal/engine"
)

// Frame timing in hundredths of a second: a beat per frame, then a long
// hold on the final position so the variation can be read.
const (
	frameDelay     = 80
	lastFrameDelay = 500
)

// boardPalette covers every color a board frame can contain. A fixed
// palette keeps the GIF encoding deterministic.
var boardPalette = color.Palette{
	woodColor,
	blackColor,
	whiteColor,
	redColor,
	greenColor,
}

// KeyMoveAnimation animates one reviewed move: first the position with the
// played point ringed and the engine's pick crossed, then the played stone
// on the board, then the engine's preferred continuation stone by stone
// with step numbers. grid is the position before the move was played.
func KeyMoveAnimation(grid [board.Size][board.Size]board.Color, stat engine.MoveStat) ([]byte, error) {
	played := parsePoint(stat.Played)
	best := parsePoint(stat.EngineBest)
	mover := board.Black
	if stat.Color == "W" {
		mover = board.White
	}

	base := board.New()
	for r := 0; r < board.Size; r++ {
		for c := 0; c < board.Size; c++ {
			if grid[r][c] != board.Empty {
				base.Set(board.Coord{Row: r, Col: c}, grid[r][c])
			}
		}
	}

	frames := []*image.Paletted{
		paletteFrame(grid, boardOptions{
			highlight:  played,
			engineBest: best,
			banner:     fmt.Sprintf("Move %d", stat.Move),
		}),
	}

	withPlayed := base.Clone()
	if played != nil {
		withPlayed.Restore(*played, mover)
	}
	frames = append(frames, paletteFrame(withPlayed.Grid(), boardOptions{
		highlight:  played,
		engineBest: best,
		banner:     fmt.Sprintf("Move %d (played)", stat.Move),
	}))

	// The variation branches off the pre-move position; its first step is
	// the engine's pick. A pass in the line consumes the turn but adds no
	// frame.
	if best != nil && len(stat.PV) > 0 {
		line := base.Clone()
		steps := make(map[board.Coord]int, len(stat.PV))
		side := mover
		for i, mv := range stat.PV {
			pt := parsePoint(mv)
			if pt == nil {
				side = side.Opponent()
				continue
			}
			line.Restore(*pt, side)
			steps[*pt] = i + 1
			frames = append(frames, paletteFrame(line.Grid(), boardOptions{labels: steps}))
			side = side.Opponent()
		}
	}

	delays := make([]int, len(frames))
	for i := range delays {
		delays[i] = frameDelay
	}
	delays[len(delays)-1] = lastFrameDelay

	var buf bytes.Buffer
	err := gif.EncodeAll(&buf, &gif.GIF{Image: frames, Delay: delays, LoopCount: 0})
	if err != nil {
		return nil, fmt.Errorf("encode animation for move %d: %w", stat.Move, err)
	}
	return buf.Bytes(), nil
}

func paletteFrame(grid [board.Size][board.Size]board.Color, opts boardOptions) *image.Paletted {
	frame := image.NewPaletted(image.Rect(0, 0, boardImageSize, boardImageSize), boardPalette)
	drawBoardFrame(frame, grid, opts)
	return frame
}

func parsePoint(text string) *board.Coord {
	c, err := board.ParseCoord(text)
	if err != nil {
		return nil
	}
	return &c
}
