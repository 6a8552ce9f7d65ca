// Package engine talks to the Go engine. Full-game review and quick
// evaluation run the engine in analysis mode: one JSON query on stdin, one
// JSON line per analyzed position on stdout. Single-move generation speaks
// GTP with a subprocess. When the engine lives in a companion service
// instead of next to the bot, RemoteClient forwards the same jobs over
// HTTP and the results come back through the callback routes.
package engine

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/tengenlabs/tengen/internal/board"
	"github.com/tengenlabs/tengen/internal/record"
)

var (
	// ErrNoMove means the engine output contained no usable move reply.
	ErrNoMove = errors.New("no move in engine output")

	// ErrDeclined means the engine answered genmove with pass or resign,
	// which the live game cannot place on the board.
	ErrDeclined = errors.New("engine declined to play")

	// ErrNoAnalysis means the engine produced no valid analysis output.
	ErrNoAnalysis = errors.New("no analysis output from engine")
)

// MoveStat is the per-move digest of one analyzed position. Winrates are
// percentages from black's perspective; ScoreLoss is how many points the
// played move gave up against the engine's preferred move. Pointer fields
// stay nil when the engine output does not pin them down.
type MoveStat struct {
	Move          int      `json:"move"`
	Color         string   `json:"color"`
	Played        string   `json:"played,omitempty"`
	EngineBest    string   `json:"ai_best,omitempty"`
	PV            []string `json:"pv,omitempty"`
	WinrateBefore float64  `json:"winrate_before"`
	WinrateAfter  *float64 `json:"winrate_after"`
	ScoreLoss     *float64 `json:"score_loss"`
}

// Territory marks who owns each intersection after a quick evaluation.
// board.Empty is neutral ground.
type Territory [board.Size][board.Size]board.Color

// Evaluation is the digest of a single-position analysis: black's winning
// probability in percent, the point lead (positive = black ahead), and the
// ownership map when the engine reported one.
type Evaluation struct {
	WinratePercent float64
	ScoreLead      float64
	Territory      *Territory
}

// rootInfo and moveInfo mirror the engine's analysis output. The winrate
// and scoreLead numbers are from the current player's perspective and get
// normalized to black's in deriveStats.
type rootInfo struct {
	Winrate       float64 `json:"winrate"`
	ScoreLead     float64 `json:"scoreLead"`
	CurrentPlayer string  `json:"currentPlayer"`
}

type moveInfo struct {
	Move      string   `json:"move"`
	PV        []string `json:"pv"`
	Winrate   *float64 `json:"winrate"`
	ScoreLead float64  `json:"scoreLead"`
	Order     int      `json:"order"`
}

type response struct {
	ID            string     `json:"id"`
	TurnNumber    int        `json:"turnNumber"`
	Error         string     `json:"error"`
	RootInfo      rootInfo   `json:"rootInfo"`
	MoveInfos     []moveInfo `json:"moveInfos"`
	Ownership     []float64  `json:"ownership"`
	NextScoreGain *float64   `json:"nextScoreGain"`
}

// buildQuery assembles one analysis query over the record. analyzeTurns
// selects the positions to report: turn t is the position before move t+1.
func buildQuery(rec *record.Record, id string, maxVisits int, analyzeTurns []int, includeOwnership bool) map[string]interface{} {
	moves := rec.Moves()
	list := make([][2]string, 0, len(moves))
	for _, m := range moves {
		list = append(list, [2]string{m.Color.Letter(), moveText(m)})
	}

	rules := "tromp-taylor"
	if r, ok := rec.Root.Rules(); ok && r != "" {
		rules = strings.ToLower(r)
	}
	komi := 7.5
	if k, ok := rec.Root.Komi(); ok {
		komi = k
	}

	q := map[string]interface{}{
		"id":           id,
		"moves":        list,
		"rules":        rules,
		"komi":         komi,
		"boardXSize":   board.Size,
		"boardYSize":   board.Size,
		"maxVisits":    maxVisits,
		"analyzeTurns": analyzeTurns,
	}

	if setup := rec.SetupStones(); len(setup) > 0 {
		stones := make([][2]string, 0, len(setup))
		for _, s := range setup {
			if s.Color == board.Empty {
				continue
			}
			stones = append(stones, [2]string{s.Color.Letter(), s.Coord.GTP()})
		}
		if len(stones) > 0 {
			q["initialStones"] = stones
		}
	}
	if includeOwnership {
		q["includeOwnership"] = true
	}
	return q
}

func moveText(m record.Move) string {
	if m.Pass {
		return "pass"
	}
	return m.Coord.GTP()
}

// marshalQuery renders the query as one newline-terminated JSON line, the
// shape the analysis engine reads from stdin.
func marshalQuery(query map[string]interface{}) ([]byte, error) {
	line, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis query: %w", err)
	}
	return append(line, '\n'), nil
}

// sequentialTurns returns [0, 1, ..., n-1]: every position of an n-1 move
// game including the empty board and the final position.
func sequentialTurns(n int) []int {
	turns := make([]int, n)
	for i := range turns {
		turns[i] = i
	}
	return turns
}

// parseResponses reads the engine's JSON Lines output. Malformed lines are
// skipped; a line carrying an engine-reported error fails the whole call.
// Responses come back sorted by turn number.
func parseResponses(r io.Reader) ([]response, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []response
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var resp response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("engine rejected query %s: %s", resp.ID, resp.Error)
		}
		out = append(out, resp)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read engine output: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNoAnalysis
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TurnNumber < out[j].TurnNumber })
	return out, nil
}

// deriveStats digests per-position responses into one stat per analyzed
// node. moves is the record's main line in play order; the response for
// turn t describes the position before move t+1, so that node's stat
// reports move t+1 as the played move when the record has one. The final
// position has no played move and therefore no score loss.
func deriveStats(responses []response, moves []record.Move) []MoveStat {
	byTurn := make(map[int]response, len(responses))
	for _, r := range responses {
		byTurn[r.TurnNumber] = r
	}

	stats := make([]MoveStat, 0, len(responses))
	for _, r := range responses {
		current := r.RootInfo.CurrentPlayer
		if current == "" {
			current = "B"
		}

		stat := MoveStat{
			Move:          r.TurnNumber + 1,
			Color:         current,
			WinrateBefore: round1(blackPercent(r.RootInfo.Winrate, current)),
		}

		if r.TurnNumber < len(moves) {
			m := moves[r.TurnNumber]
			stat.Played = moveText(m)
			stat.Color = m.Color.Letter()
		}

		if next, ok := byTurn[r.TurnNumber+1]; ok {
			after := round1(blackPercent(next.RootInfo.Winrate, current))
			stat.WinrateAfter = &after
		}

		if len(r.MoveInfos) > 0 {
			best := r.MoveInfos[0]
			stat.EngineBest = best.Move
			stat.PV = clipPV(best.PV, 10)

			if stat.Played != "" {
				if played, ok := findMove(r.MoveInfos, stat.Played); ok {
					// scoreLead is from the current player's perspective,
					// so the sign flips for white before taking the loss.
					loss := best.ScoreLead - played.ScoreLead
					if current == "W" {
						loss = -best.ScoreLead - -played.ScoreLead
					}
					loss = round1(math.Abs(loss))
					stat.ScoreLoss = &loss

					if stat.WinrateAfter == nil && played.Winrate != nil {
						after := round1(blackPercent(*played.Winrate, current))
						stat.WinrateAfter = &after
					}
				} else if r.NextScoreGain != nil {
					loss := round1(math.Abs(*r.NextScoreGain))
					stat.ScoreLoss = &loss
				}
			}
		}

		stats = append(stats, stat)
	}
	return stats
}

// digestEvaluation reduces one analyzed position to the evaluation shown
// to the user. Everything is normalized to black's perspective; ownership
// becomes a territory map with a 0.5 confidence threshold.
func digestEvaluation(r response) *Evaluation {
	current := r.RootInfo.CurrentPlayer
	if current == "" {
		current = "B"
	}

	lead := r.RootInfo.ScoreLead
	if current == "W" {
		lead = -lead
	}
	ev := &Evaluation{
		WinratePercent: round1(blackPercent(r.RootInfo.Winrate, current)),
		ScoreLead:      round1(lead),
	}

	if len(r.Ownership) == board.Size*board.Size {
		const threshold = 0.5
		t := &Territory{}
		for i, v := range r.Ownership {
			if current == "W" {
				v = -v
			}
			switch {
			case v > threshold:
				t[i/board.Size][i%board.Size] = board.Black
			case v < -threshold:
				t[i/board.Size][i%board.Size] = board.White
			}
		}
		ev.Territory = t
	}
	return ev
}

// blackPercent converts a winrate reported from the current player's
// perspective into black's winning percentage.
func blackPercent(winrate float64, currentPlayer string) float64 {
	if currentPlayer == "W" {
		return (1 - winrate) * 100
	}
	return winrate * 100
}

func findMove(infos []moveInfo, move string) (moveInfo, bool) {
	for _, mi := range infos {
		if mi.Move == move {
			return mi, true
		}
	}
	return moveInfo{}, false
}

func clipPV(pv []string, n int) []string {
	if len(pv) <= n {
		return pv
	}
	return pv[:n]
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
