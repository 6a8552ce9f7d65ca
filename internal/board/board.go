// Package board implements the 19×19 Go rules engine: stone placement with
// capture, suicide, and ko enforcement, plus the relaxed variant used when
// replaying historical records.
package board

import "errors"

// Placement errors callers branch on. Handlers map these to user hints.
var (
	ErrBadCoord    = errors.New("coordinate not on the board")
	ErrOccupied    = errors.New("point already occupied")
	ErrKoViolation = errors.New("ko: point is forbidden this turn")
	ErrSuicide     = errors.New("suicide move is not allowed")
)

// Color of one intersection. The numeric values 1 and 2 are shared with the
// session object's current_turn field and must not change.
type Color int

const (
	Empty Color = 0
	Black Color = 1
	White Color = 2
)

// Opponent returns the other player's color. Empty maps to Empty.
func (c Color) Opponent() Color {
	switch c {
	case Black:
		return White
	case White:
		return Black
	}
	return Empty
}

// Letter returns the record/GTP color letter ("B", "W").
func (c Color) Letter() string {
	switch c {
	case Black:
		return "B"
	case White:
		return "W"
	}
	return "?"
}

func (c Color) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	}
	return "empty"
}

// Board holds the position and the ko-point. The zero value is not usable;
// construct with New.
type Board struct {
	grid [Size][Size]Color
	ko   *Coord
}

// PlaceResult reports what a placement did to the board.
type PlaceResult struct {
	Captured []Coord // opponent stones removed, sorted row-major
	Suicide  bool    // relaxed replay only: placed group has no liberties
	Overwrote Color  // relaxed replay only: color that was overwritten
}

// New returns an empty board with no ko-point.
func New() *Board {
	return &Board{}
}

// At returns the color at c, or Empty for off-board coordinates.
func (b *Board) At(c Coord) Color {
	if !c.Valid() {
		return Empty
	}
	return b.grid[c.Row][c.Col]
}

// KoPoint returns the current ko-point, or nil.
func (b *Board) KoPoint() *Coord {
	if b.ko == nil {
		return nil
	}
	k := *b.ko
	return &k
}

// Grid returns a copy of the position for rendering.
func (b *Board) Grid() [Size][Size]Color {
	return b.grid
}

// Set writes a point directly, bypassing play legality. Used for record
// setup stones (handicap placement, point erasure). Clears the ko-point.
func (b *Board) Set(c Coord, color Color) {
	if !c.Valid() {
		return
	}
	b.grid[c.Row][c.Col] = color
	b.ko = nil
}

// Clone returns an independent copy of the board.
func (b *Board) Clone() *Board {
	cp := &Board{grid: b.grid}
	if b.ko != nil {
		k := *b.ko
		cp.ko = &k
	}
	return cp
}

// StoneCount returns the number of stones on the board.
func (b *Board) StoneCount() int {
	n := 0
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b.grid[r][c] != Empty {
				n++
			}
		}
	}
	return n
}

// Place applies a move with full legality checks:
//
//  1. the point must be empty,
//  2. the point must not be the ko-point,
//  3. opponent groups left without liberties are captured,
//  4. a placement that leaves its own group without liberties and captures
//     nothing is suicide and is reverted,
//  5. the ko-point is set to the captured square when exactly one stone was
//     captured and the placed group has exactly one liberty, else cleared.
//
// On error the board is unchanged. Deterministic for a given position.
func (b *Board) Place(c Coord, color Color) (*PlaceResult, error) {
	if !c.Valid() || (color != Black && color != White) {
		return nil, ErrBadCoord
	}
	if b.grid[c.Row][c.Col] != Empty {
		return nil, ErrOccupied
	}
	if b.ko != nil && *b.ko == c {
		return nil, ErrKoViolation
	}

	b.grid[c.Row][c.Col] = color
	captured := b.captureAround(c, color)

	_, myLibs := b.groupAndLiberties(c)
	if myLibs == 0 && len(captured) == 0 {
		b.grid[c.Row][c.Col] = Empty
		return nil, ErrSuicide
	}

	b.updateKo(captured, myLibs)
	return &PlaceResult{Captured: captured}, nil
}

// Restore applies a historical move with relaxed legality. The record is
// treated as truth: occupied points are overwritten, a suicide stone stays
// on the board, and ko is not enforced. Capture and ko-point bookkeeping
// run exactly as in Place. The caller is expected to log the anomalies
// reported in the result.
func (b *Board) Restore(c Coord, color Color) *PlaceResult {
	if !c.Valid() || (color != Black && color != White) {
		return &PlaceResult{}
	}

	res := &PlaceResult{Overwrote: b.grid[c.Row][c.Col]}
	b.grid[c.Row][c.Col] = color
	res.Captured = b.captureAround(c, color)

	_, myLibs := b.groupAndLiberties(c)
	res.Suicide = myLibs == 0 && len(res.Captured) == 0

	b.updateKo(res.Captured, myLibs)
	return res
}

// captureAround removes opponent groups adjacent to c that have no
// liberties and returns their stones sorted row-major.
func (b *Board) captureAround(c Coord, color Color) []Coord {
	opp := color.Opponent()
	seen := make(map[Coord]bool)
	var captured []Coord

	for _, n := range c.Neighbors() {
		if b.grid[n.Row][n.Col] != opp || seen[n] {
			continue
		}
		group, libs := b.groupAndLiberties(n)
		for _, g := range group {
			seen[g] = true
		}
		if libs == 0 {
			captured = append(captured, group...)
		}
	}

	for _, s := range captured {
		b.grid[s.Row][s.Col] = Empty
	}
	sortCoords(captured)
	return captured
}

// updateKo sets the ko-point after a placement: exactly one capture and the
// placed group down to a single liberty marks the captured square, anything
// else clears it.
func (b *Board) updateKo(captured []Coord, myLibs int) {
	if len(captured) == 1 && myLibs == 1 {
		k := captured[0]
		b.ko = &k
	} else {
		b.ko = nil
	}
}

// groupAndLiberties flood-fills the same-color group containing start and
// counts its unique empty-adjacent points.
func (b *Board) groupAndLiberties(start Coord) ([]Coord, int) {
	color := b.grid[start.Row][start.Col]
	if color == Empty {
		return nil, 0
	}

	visited := make(map[Coord]bool)
	liberties := make(map[Coord]bool)
	stack := []Coord{start}
	visited[start] = true
	var group []Coord

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		group = append(group, cur)

		for _, n := range cur.Neighbors() {
			switch b.grid[n.Row][n.Col] {
			case Empty:
				liberties[n] = true
			case color:
				if !visited[n] {
					visited[n] = true
					stack = append(stack, n)
				}
			}
		}
	}

	return group, len(liberties)
}

// Liberties returns the liberty count of the group at c, or 0 for an empty
// point.
func (b *Board) Liberties(c Coord) int {
	if !c.Valid() {
		return 0
	}
	_, libs := b.groupAndLiberties(c)
	return libs
}

func sortCoords(cs []Coord) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0; j-- {
			a, b := cs[j-1], cs[j]
			if a.Row < b.Row || (a.Row == b.Row && a.Col <= b.Col) {
				break
			}
			cs[j-1], cs[j] = b, a
		}
	}
}
