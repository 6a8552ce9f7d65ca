// Package record implements the durable game-record format: a single
// main-line SGF text with root metadata and move nodes. The record is the
// authoritative state for a game; boards are rebuilt by replaying it.
package record

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tengenlabs/tengen/internal/board"
)

var (
	ErrMalformed = errors.New("malformed game record")
	ErrNoMoves   = errors.New("record has no moves")
)

// Property is one SGF property: an identifier plus its bracketed values.
type Property struct {
	Key    string
	Values []string
}

// Move is a played stone. Pass carries no coordinate.
type Move struct {
	Color board.Color
	Coord board.Coord
	Pass  bool
}

// SetupStone places or clears a point outside normal play (AB/AW/AE).
// Color Empty clears.
type SetupStone struct {
	Color board.Color
	Coord board.Coord
}

// Node is one element of the main line: a move, setup stones, or both is
// never produced by this codec but tolerated on decode. Extra keeps
// properties the codec does not model so they round-trip.
type Node struct {
	Move  *Move
	Setup []SetupStone
	Extra []Property
}

// Root holds the root node's properties in their original order.
type Root struct {
	props []Property
}

// Record is a parsed game record: root metadata plus the main line.
type Record struct {
	Root  Root
	Nodes []Node
}

// rootCopyOrder is the set of root properties carried over by Truncate,
// in the order they are written.
var rootCopyOrder = []string{"SZ", "KM", "RU", "DT", "PB", "PW", "RE", "HA", "PL", "FF", "CA", "GM", "AP"}

// New returns a fresh 19×19 record with the standard root header.
func New() *Record {
	r := &Record{}
	r.Root.Set("FF", "4")
	r.Root.Set("CA", "UTF-8")
	r.Root.Set("GM", "1")
	r.Root.Set("SZ", strconv.Itoa(board.Size))
	return r
}

// NewWithDate returns a fresh record stamped with the given date (DT).
func NewWithDate(t time.Time) *Record {
	r := New()
	r.Root.Set("DT", t.Format("2006-01-02"))
	return r
}

// ============================================================================
// ROOT ACCESS
// ============================================================================

// Get returns the first value of key.
func (r *Root) Get(key string) (string, bool) {
	for _, p := range r.props {
		if p.Key == key && len(p.Values) > 0 {
			return p.Values[0], true
		}
	}
	return "", false
}

// Values returns every value of key, or nil.
func (r *Root) Values(key string) []string {
	for _, p := range r.props {
		if p.Key == key {
			return append([]string(nil), p.Values...)
		}
	}
	return nil
}

// Has reports whether key is present.
func (r *Root) Has(key string) bool {
	for _, p := range r.props {
		if p.Key == key {
			return true
		}
	}
	return false
}

// Set replaces key's values, appending the property if absent.
func (r *Root) Set(key string, values ...string) {
	for i, p := range r.props {
		if p.Key == key {
			r.props[i].Values = values
			return
		}
	}
	r.props = append(r.props, Property{Key: key, Values: values})
}

// All returns the properties in order.
func (r *Root) All() []Property {
	return append([]Property(nil), r.props...)
}

// Komi returns the KM value when present and numeric.
func (r *Root) Komi() (float64, bool) {
	v, ok := r.Get("KM")
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Rules returns the RU tag when present.
func (r *Root) Rules() (string, bool) {
	return r.Get("RU")
}

// Size returns the SZ value, defaulting to 19.
func (r *Root) Size() int {
	v, ok := r.Get("SZ")
	if !ok {
		return board.Size
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return board.Size
	}
	return n
}

// StartingTurn reads the PL override.
func (r *Root) StartingTurn() (board.Color, bool) {
	v, ok := r.Get("PL")
	if !ok || v == "" {
		return board.Black, false
	}
	switch v[0] {
	case 'B', 'b':
		return board.Black, true
	case 'W', 'w':
		return board.White, true
	}
	return board.Black, false
}

// ============================================================================
// MAIN LINE
// ============================================================================

// Moves returns the placed stones in order. Pass nodes are tolerated on
// decode but never count as moves: nothing in this system produces them,
// and uploaded records have always had them skipped.
func (r *Record) Moves() []Move {
	var out []Move
	for _, n := range r.Nodes {
		if n.Move != nil && !n.Move.Pass {
			out = append(out, *n.Move)
		}
	}
	return out
}

// MoveCount counts placed stones, skipping passes.
func (r *Record) MoveCount() int {
	n := 0
	for _, node := range r.Nodes {
		if node.Move != nil && !node.Move.Pass {
			n++
		}
	}
	return n
}

// SetupStones returns every setup stone in main-line order. Used to seed
// the engine's initial position for handicap records.
func (r *Record) SetupStones() []SetupStone {
	var out []SetupStone
	for _, n := range r.Nodes {
		out = append(out, n.Setup...)
	}
	return out
}

// AppendMove adds a played stone to the main line.
func (r *Record) AppendMove(color board.Color, c board.Coord) {
	r.Nodes = append(r.Nodes, Node{Move: &Move{Color: color, Coord: c}})
}

// RemoveLastMove drops the last placed stone (the undo operation). Trailing
// non-move nodes after it are kept. Returns ErrNoMoves at the root.
func (r *Record) RemoveLastMove() (*Move, error) {
	for i := len(r.Nodes) - 1; i >= 0; i-- {
		if r.Nodes[i].Move != nil && !r.Nodes[i].Move.Pass {
			m := r.Nodes[i].Move
			r.Nodes = append(r.Nodes[:i], r.Nodes[i+1:]...)
			return m, nil
		}
	}
	return nil, ErrNoMoves
}

// LastMove returns the final placed stone, or nil.
func (r *Record) LastMove() *Move {
	for i := len(r.Nodes) - 1; i >= 0; i-- {
		if r.Nodes[i].Move != nil && !r.Nodes[i].Move.Pass {
			m := *r.Nodes[i].Move
			return &m
		}
	}
	return nil
}

// Truncate builds a new record holding the well-known root properties and
// the first n move nodes of r. Setup nodes and unmodeled properties are
// dropped, matching how truncated study copies have always been cut.
func Truncate(r *Record, n int) *Record {
	out := New()
	for _, key := range rootCopyOrder {
		if vals := r.Root.Values(key); vals != nil {
			out.Root.Set(key, vals...)
		}
	}

	kept := 0
	for _, node := range r.Nodes {
		if node.Move == nil || node.Move.Pass {
			continue
		}
		if kept >= n {
			break
		}
		m := *node.Move
		out.Nodes = append(out.Nodes, Node{Move: &m})
		kept++
	}
	return out
}

// NewGameID derives a record identifier from a timestamp, e.g.
// "game_1712345678".
func NewGameID(t time.Time) string {
	return fmt.Sprintf("game_%d", t.Unix())
}
