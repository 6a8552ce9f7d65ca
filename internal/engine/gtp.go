package engine

import (
	"fmt"
	"strings"

	"github.com/tengenlabs/tengen/internal/board"
	"github.com/tengenlabs/tengen/internal/record"
)

// buildGTPScript renders the fixed command sequence for one genmove: set
// up the board, replay the record (setup stones first, then the main
// line), ask for side's move, quit. The whole script goes to the engine's
// stdin in one write; replies are matched up afterwards.
func buildGTPScript(rec *record.Record, side board.Color) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "boardsize %d\n", board.Size)
	sb.WriteString("clear_board\n")

	for _, s := range rec.SetupStones() {
		if s.Color == board.Empty {
			continue
		}
		fmt.Fprintf(&sb, "play %s %s\n", s.Color.Letter(), s.Coord.GTP())
	}
	for _, m := range rec.Moves() {
		fmt.Fprintf(&sb, "play %s %s\n", m.Color.Letter(), moveText(m))
	}

	fmt.Fprintf(&sb, "genmove %s\n", side.Letter())
	sb.WriteString("quit\n")
	return sb.String()
}

type gtpReply struct {
	ok   bool // '=' success, '?' failure
	text string
	line int
}

// parseGenMoveReply finds the genmove answer in a GTP transcript. Replies
// start with '=' (success) or '?' (failure). Engines that echo commands
// let us anchor on the last genmove line and take the first reply after
// it; a clean transcript carries no echo, so the fallback takes the last
// non-empty success reply; quit answers with a bare '=', which leaves
// genmove's move as the last reply with content.
func parseGenMoveReply(out string) (string, error) {
	lines := strings.Split(out, "\n")

	var replies []gtpReply
	for i, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "="):
			replies = append(replies, gtpReply{ok: true, text: strings.TrimSpace(line[1:]), line: i})
		case strings.HasPrefix(line, "?"):
			replies = append(replies, gtpReply{ok: false, text: strings.TrimSpace(line[1:]), line: i})
		}
	}

	lastGenmove := -1
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if strings.Contains(strings.ToLower(line), "genmove") && !strings.HasPrefix(line, "=") {
			lastGenmove = i
		}
	}

	var move, failure string
	if lastGenmove >= 0 {
		for _, r := range replies {
			if r.line <= lastGenmove {
				continue
			}
			if r.ok {
				move = r.text
			} else {
				failure = r.text
			}
			break
		}
	}

	if move == "" && failure == "" {
		for i := len(replies) - 1; i >= 0; i-- {
			r := replies[i]
			if r.ok && r.text != "" {
				move = r.text
				break
			}
			if !r.ok {
				failure = r.text
				break
			}
		}
	}

	if failure != "" {
		return "", fmt.Errorf("engine reported: %s", failure)
	}
	if move == "" {
		return "", ErrNoMove
	}
	switch strings.ToLower(move) {
	case "pass", "resign":
		return "", fmt.Errorf("%w: %s", ErrDeclined, strings.ToLower(move))
	}
	return move, nil
}
