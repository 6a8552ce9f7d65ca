package review

import (
	"context"
	"fmt"

	"github.com/tengenlabs/tengen/internal/board"
	"github.com/tengenlabs/tengen/internal/engine"
	"github.com/tengenlabs/tengen/internal/render"
	"github.com/tengenlabs/tengen/internal/storage"
)

// mediaSet holds the uploaded artifact URLs. An empty URL means that
// artifact degraded (render or upload failed) and delivery skips it
// rather than aborting the review.
type mediaSet struct {
	overviewURL string
	chartURL    string
	gifURLs     map[int]string // move number → public URL
}

// buildMedia renders and uploads the full media set for one review. Every
// artifact fails independently.
func (o *Orchestrator) buildMedia(ctx context.Context, chat, task string, stats, keyMoves []engine.MoveStat) mediaSet {
	m := mediaSet{gifURLs: make(map[int]string, len(keyMoves))}

	grid, labels := replayAll(stats)
	png, err := render.Overview(grid, labels)
	o.recordRender("overview", err)
	if err != nil {
		o.logger.Printf("⚠️ Overview for task %s failed: %v", task, err)
	} else if url, err := o.uploadArtifact(ctx, chat, task, "global_board.png", png, storage.ContentTypePNG); err != nil {
		o.logger.Printf("⚠️ Overview upload for task %s failed: %v", task, err)
	} else {
		m.overviewURL = url
	}

	png, err = render.WinrateChart(chartSeries(stats))
	o.recordRender("chart", err)
	if err != nil {
		o.logger.Printf("⚠️ Winrate chart for task %s failed: %v", task, err)
	} else if url, err := o.uploadArtifact(ctx, chat, task, "winrate_chart.png", png, storage.ContentTypePNG); err != nil {
		o.logger.Printf("⚠️ Winrate chart upload for task %s failed: %v", task, err)
	} else {
		m.chartURL = url
	}

	for _, km := range keyMoves {
		gif, err := render.KeyMoveAnimation(replayBefore(stats, km.Move), km)
		o.recordRender("animation", err)
		if err != nil {
			o.logger.Printf("⚠️ Animation for move %d of task %s failed: %v", km.Move, task, err)
			continue
		}
		name := fmt.Sprintf("move_%d.gif", km.Move)
		url, err := o.uploadArtifact(ctx, chat, task, name, gif, storage.ContentTypeGIF)
		if err != nil {
			o.logger.Printf("⚠️ Animation upload for move %d of task %s failed: %v", km.Move, task, err)
			continue
		}
		m.gifURLs[km.Move] = url
	}

	o.logger.Printf("🎨 Media for task %s: overview=%t chart=%t animations=%d/%d",
		task, m.overviewURL != "", m.chartURL != "", len(m.gifURLs), len(keyMoves))
	return m
}

func (o *Orchestrator) uploadArtifact(ctx context.Context, chat, task, name string, data []byte, contentType string) (string, error) {
	p := storage.ReviewArtifactPath(chat, task, name)
	err := o.cfg.Store.Put(ctx, p, data, storage.PutOptions{
		ContentType:  contentType,
		CacheControl: storage.CacheMutable,
	})
	if err != nil {
		return "", err
	}
	return o.cfg.Store.PublicURL(p), nil
}

func (o *Orchestrator) recordRender(kind string, err error) {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.RecordMediaRender(kind, err)
	}
}

// replayAll rebuilds the final position plus a ply label per surviving
// stone. Stones recaptured later simply drop out of the grid; their label
// entries are never drawn.
func replayAll(stats []engine.MoveStat) ([board.Size][board.Size]board.Color, map[board.Coord]int) {
	b := board.New()
	labels := make(map[board.Coord]int, len(stats))
	for _, s := range stats {
		c, col, ok := playedStone(s)
		if !ok {
			continue
		}
		b.Restore(c, col)
		labels[c] = s.Move
	}
	return b.Grid(), labels
}

// replayBefore rebuilds the position entering the given move. stats must
// be sorted by move number.
func replayBefore(stats []engine.MoveStat, move int) [board.Size][board.Size]board.Color {
	b := board.New()
	for _, s := range stats {
		if s.Move >= move {
			break
		}
		c, col, ok := playedStone(s)
		if !ok {
			continue
		}
		b.Restore(c, col)
	}
	return b.Grid()
}

// playedStone decodes a stat's played move into a stone; passes and the
// final-position entry place nothing.
func playedStone(s engine.MoveStat) (board.Coord, board.Color, bool) {
	if s.Played == "" {
		return board.Coord{}, board.Empty, false
	}
	c, err := board.ParseCoord(s.Played)
	if err != nil {
		return board.Coord{}, board.Empty, false
	}
	col := board.Black
	if s.Color == "W" {
		col = board.White
	}
	return c, col, true
}

// chartSeries lists the black-perspective winrate after every analyzed
// move. Plies the engine skipped stay out; the chart spaces points evenly
// and labels them with real move numbers.
func chartSeries(stats []engine.MoveStat) []render.ChartPoint {
	pts := make([]render.ChartPoint, 0, len(stats))
	for _, s := range stats {
		if s.WinrateAfter == nil {
			continue
		}
		pts = append(pts, render.ChartPoint{Move: s.Move, Percent: *s.WinrateAfter})
	}
	return pts
}
