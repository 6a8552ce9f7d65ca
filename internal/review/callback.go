package review

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/tengenlabs/tengen/internal/engine"
)

// Callback is the body the engine companion posts to /callback/review.
type Callback struct {
	TaskID      string      `json:"task_id"`
	Status      string      `json:"status"`
	TargetID    string      `json:"target_id"`
	ResultPaths ResultPaths `json:"result_paths"`
	MoveStats   StatList    `json:"move_stats"`
	Error       string      `json:"error"`
}

// ResultPaths locates the engine's output blobs when the stats do not
// arrive inline.
type ResultPaths struct {
	JSONGCSPath string `json:"json_gcs_path"`
}

// StatList accepts both shapes the companions produce: a bare stats array
// and the {"moves": [...]} document written to disk.
type StatList []engine.MoveStat

func (s *StatList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = nil
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, (*[]engine.MoveStat)(s))
	}
	var doc struct {
		Moves []engine.MoveStat `json:"moves"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return err
	}
	*s = doc.Moves
	return nil
}

// marshalStats writes the canonical on-disk document shape.
func marshalStats(stats []engine.MoveStat) ([]byte, error) {
	return json.Marshal(map[string]interface{}{"moves": stats})
}

func sortStats(stats []engine.MoveStat) {
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Move < stats[j].Move })
}

// KeyMoves picks the review's focus moves: every move with a known score
// loss, ranked by loss, capped at n, and returned in game order.
func KeyMoves(stats []engine.MoveStat, n int) []engine.MoveStat {
	known := make([]engine.MoveStat, 0, len(stats))
	for _, s := range stats {
		if s.ScoreLoss != nil {
			known = append(known, s)
		}
	}

	sort.SliceStable(known, func(i, j int) bool { return *known[i].ScoreLoss > *known[j].ScoreLoss })
	if n > 0 && len(known) > n {
		known = known[:n]
	}
	sort.SliceStable(known, func(i, j int) bool { return known[i].Move < known[j].Move })
	return known
}
