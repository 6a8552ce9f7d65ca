package render

import (
	"image"
	"image/draw"
	"math"
	"strconv"

	"github.com/tengenlabs/tengen/internal/board"
	"github.com/tengenlabs/tengen/internal/engine"
)

// Board canvas geometry. The margin leaves room for the coordinate labels
// around the grid.
const (
	boardImageSize = 800
	boardMargin    = 50
)

var (
	cellSize    = float64(boardImageSize-2*boardMargin) / float64(board.Size-1)
	stoneRadius = int(cellSize * 0.48)
)

// starIndices are the hoshi lines of the 19×19 board.
var starIndices = [3]int{3, 9, 15}

// pointX and pointY map grid indices to pixel centers. Row 0 is the top
// edge, matching the board package.
func pointX(col int) int { return boardMargin + int(math.Round(float64(col)*cellSize)) }
func pointY(row int) int { return boardMargin + int(math.Round(float64(row)*cellSize)) }

// boardOptions selects the optional layers of one board image.
type boardOptions struct {
	highlight  *board.Coord        // red ring on the move just played
	engineBest *board.Coord        // green ring and cross on the engine's pick
	banner     string              // top-right caption
	labels     map[board.Coord]int // numbers drawn on stones
	territory  *engine.Territory   // ownership marks
}

// Board renders the position with an optional last-move highlight.
func Board(grid [board.Size][board.Size]board.Color, lastMove *board.Coord) ([]byte, error) {
	return encodePNG(boardImage(grid, boardOptions{highlight: lastMove}))
}

// BoardWithTerritory renders the position with the evaluation's ownership
// marks layered over it. Points held by a stone of the owning color carry
// no mark; a mark on an enemy stone reads as that stone being dead.
func BoardWithTerritory(grid [board.Size][board.Size]board.Color, lastMove *board.Coord, territory *engine.Territory) ([]byte, error) {
	return encodePNG(boardImage(grid, boardOptions{highlight: lastMove, territory: territory}))
}

// Overview renders the final position with every stone labeled by the ply
// that placed it. Stones of captured plies are gone, so their labels are
// simply never drawn.
func Overview(grid [board.Size][board.Size]board.Color, plyLabels map[board.Coord]int) ([]byte, error) {
	return encodePNG(boardImage(grid, boardOptions{labels: plyLabels}))
}

func boardImage(grid [board.Size][board.Size]board.Color, opts boardOptions) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, boardImageSize, boardImageSize))
	drawBoardFrame(img, grid, opts)
	return img
}

// drawBoardFrame rasterizes one board onto any canvas; the animation
// reuses it for paletted GIF frames.
func drawBoardFrame(dst draw.Image, grid [board.Size][board.Size]board.Color, opts boardOptions) {
	fillRect(dst, dst.Bounds(), woodColor)

	top, bottom := pointY(0), pointY(board.Size-1)
	left, right := pointX(0), pointX(board.Size-1)
	for i := 0; i < board.Size; i++ {
		x := pointX(i)
		fillRect(dst, image.Rect(x-1, top, x+1, bottom+1), blackColor)
		y := pointY(i)
		fillRect(dst, image.Rect(left, y-1, right+1, y+1), blackColor)
	}

	for _, r := range starIndices {
		for _, c := range starIndices {
			fillCircle(dst, pointX(c), pointY(r), 5, blackColor)
		}
	}

	for r := 0; r < board.Size; r++ {
		for c := 0; c < board.Size; c++ {
			stone := grid[r][c]
			if stone == board.Empty {
				continue
			}
			cx, cy := pointX(c), pointY(r)
			fill := blackColor
			if stone == board.White {
				fill = whiteColor
			}
			fillCircle(dst, cx, cy, stoneRadius, fill)
			strokeCircle(dst, cx, cy, stoneRadius, 2, blackColor)

			if n, ok := opts.labels[board.Coord{Row: r, Col: c}]; ok {
				text := strconv.Itoa(n)
				tc := whiteColor
				if stone == board.White {
					tc = blackColor
				}
				drawString(dst, cx-stringWidth(labelFace, text)/2, cy-stringHeight(labelFace)/2, text, tc, labelFace)
			}
		}
	}

	if opts.territory != nil {
		side := int(math.Round(cellSize * 0.36))
		half := side / 2
		for r := 0; r < board.Size; r++ {
			for c := 0; c < board.Size; c++ {
				owner := opts.territory[r][c]
				if owner == board.Empty || owner == grid[r][c] {
					continue
				}
				mark := blackColor
				if owner == board.White {
					mark = whiteColor
				}
				cx, cy := pointX(c), pointY(r)
				fillRect(dst, image.Rect(cx-half, cy-half, cx-half+side, cy-half+side), mark)
			}
		}
	}

	if hl := opts.highlight; hl != nil && hl.Valid() {
		strokeCircle(dst, pointX(hl.Col), pointY(hl.Row), stoneRadius+3, 3, redColor)
	}
	if best := opts.engineBest; best != nil && best.Valid() {
		cx, cy := pointX(best.Col), pointY(best.Row)
		strokeCircle(dst, cx, cy, stoneRadius+3, 3, greenColor)
		strokeLine(dst, cx-stoneRadius, cy-stoneRadius, cx+stoneRadius, cy+stoneRadius, 2, greenColor)
		strokeLine(dst, cx-stoneRadius, cy+stoneRadius, cx+stoneRadius, cy-stoneRadius, 2, greenColor)
	}

	if opts.banner != "" {
		w := stringWidth(bannerFace, opts.banner)
		drawString(dst, boardImageSize-w-10, 10, opts.banner, blackColor, bannerFace)
	}

	// Coordinate labels: numbers down the left edge, letters along the
	// bottom with I skipped as usual.
	for i := 0; i < board.Size; i++ {
		num := strconv.Itoa(board.Size - i)
		drawString(dst, boardMargin-stringWidth(labelFace, num)-8, pointY(i)-stringHeight(labelFace)/2, num, blackColor, labelFace)
	}
	for i := 0; i < board.Size; i++ {
		letter := board.ColumnLetter(i)
		drawString(dst, pointX(i)-stringWidth(labelFace, letter)/2, bottom+8, letter, blackColor, labelFace)
	}
}
