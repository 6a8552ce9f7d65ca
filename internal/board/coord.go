package board

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is the only supported board dimension.
const Size = 19

// Column letters in display/GTP order. The letter I is skipped by
// convention to avoid confusion with the numeral 1.
const colLetters = "ABCDEFGHJKLMNOPQRST"

// Coord addresses one intersection. Row 0 is the top edge, column 0 the
// left edge. Display form ("D4") counts rows from the bottom; the two
// conversions live here and nowhere else.
type Coord struct {
	Row int
	Col int
}

// Valid reports whether the coordinate is on the board.
func (c Coord) Valid() bool {
	return c.Row >= 0 && c.Row < Size && c.Col >= 0 && c.Col < Size
}

// GTP renders the display/GTP form, e.g. {Row:15, Col:3} → "D4".
func (c Coord) GTP() string {
	if !c.Valid() {
		return "??"
	}
	return fmt.Sprintf("%c%d", colLetters[c.Col], Size-c.Row)
}

// String implements fmt.Stringer using the display form.
func (c Coord) String() string { return c.GTP() }

// Neighbors returns the on-board orthogonal neighbors.
func (c Coord) Neighbors() []Coord {
	out := make([]Coord, 0, 4)
	for _, n := range [4]Coord{
		{c.Row - 1, c.Col},
		{c.Row + 1, c.Col},
		{c.Row, c.Col - 1},
		{c.Row, c.Col + 1},
	} {
		if n.Valid() {
			out = append(out, n)
		}
	}
	return out
}

// ColumnLetter returns the display letter for a column index ("A".."T").
func ColumnLetter(col int) string {
	if col < 0 || col >= Size {
		return "?"
	}
	return string(colLetters[col])
}

// ParseCoord parses the display/GTP form ("D4", "q16"). The letter I is
// rejected. Returns ErrBadCoord for anything off the 19×19 board.
func ParseCoord(text string) (Coord, error) {
	s := strings.ToUpper(strings.TrimSpace(text))
	if len(s) < 2 || len(s) > 3 {
		return Coord{}, fmt.Errorf("%w: %q", ErrBadCoord, text)
	}

	col := strings.IndexByte(colLetters, s[0])
	if col < 0 {
		return Coord{}, fmt.Errorf("%w: %q", ErrBadCoord, text)
	}

	num, err := strconv.Atoi(s[1:])
	if err != nil || num < 1 || num > Size {
		return Coord{}, fmt.Errorf("%w: %q", ErrBadCoord, text)
	}

	return Coord{Row: Size - num, Col: col}, nil
}
