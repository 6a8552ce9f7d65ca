package record

import (
	"fmt"

	"github.com/tengenlabs/tengen/internal/board"
)

// ReplayResult is the board rebuilt from a record plus everything a handler
// needs to resume play.
type ReplayResult struct {
	Board     *board.Board
	NextTurn  board.Color
	LastMove  *board.Coord
	MoveCount int
	Warnings  []string
}

// Replay rebuilds the position by applying the main line in order. The
// record is historical truth, so placement is relaxed (board.Restore):
// color mismatches, overwrites, and suicides are reported as warnings, not
// errors. The expected turn starts at black unless the root PL property
// says otherwise, and after every stone it becomes the opponent of the
// color actually played. Passes and setup stones never advance the turn.
func Replay(rec *Record) *ReplayResult {
	res := &ReplayResult{Board: board.New(), NextTurn: board.Black}
	if pl, ok := rec.Root.StartingTurn(); ok {
		res.NextTurn = pl
	}

	for _, node := range rec.Nodes {
		for _, s := range node.Setup {
			res.Board.Set(s.Coord, s.Color)
		}
		if node.Move == nil || node.Move.Pass {
			continue
		}

		m := node.Move
		res.MoveCount++

		if m.Color != res.NextTurn {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"move %d: record says %s but %s was expected; using the record",
				res.MoveCount, m.Color, res.NextTurn))
		}

		pr := res.Board.Restore(m.Coord, m.Color)
		if pr.Overwrote != board.Empty {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"move %d: %s at %s overwrites a %s stone",
				res.MoveCount, m.Color, m.Coord, pr.Overwrote))
		}
		if pr.Suicide {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"move %d: suicide at %s kept as recorded",
				res.MoveCount, m.Coord))
		}

		c := m.Coord
		res.LastMove = &c
		res.NextTurn = m.Color.Opponent()
	}

	return res
}
