package review

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tengenlabs/tengen/internal/engine"
	"github.com/tengenlabs/tengen/internal/messaging"
)

// deliver sends the finished review: position overview and winrate chart
// first, then the key-move carousels, then plain-text fallbacks for moves
// whose bubble could not be built.
func (o *Orchestrator) deliver(ctx context.Context, chat string, keyMoves []engine.MoveStat, comments map[int]string, m mediaSet) error {
	var msgs []messaging.Message
	if messaging.IsValidHTTPSURL(m.overviewURL) {
		msgs = append(msgs, messaging.NewText("🗺️ 全盤手順圖："), messaging.NewImage(m.overviewURL))
	}
	if messaging.IsValidHTTPSURL(m.chartURL) {
		msgs = append(msgs, messaging.NewText("📈 勝率變化圖："), messaging.NewImage(m.chartURL))
	}
	if len(msgs) > 0 {
		if _, err := o.cfg.Messenger.Send(ctx, chat, "", msgs); err != nil {
			return fmt.Errorf("send review images: %w", err)
		}
	}

	var bubbles []json.RawMessage
	var fallbacks []string
	for _, km := range keyMoves {
		comment := comments[km.Move]
		if comment == "" {
			comment = "無評論"
		}

		gifURL, ok := m.gifURLs[km.Move]
		if !ok {
			fallbacks = append(fallbacks, fallbackText(km, comment, ""))
			continue
		}
		if !messaging.IsValidHTTPSURL(gifURL) {
			fallbacks = append(fallbacks, fallbackText(km, comment, "\n\n⚠️ 影片連結無效"))
			continue
		}

		before, after := moverWinrates(km)
		raw, err := messaging.KeyMoveBubble{
			MoveNumber:    km.Move,
			Color:         km.Color,
			Played:        km.Played,
			Comment:       comment,
			GIFURL:        gifURL,
			WinrateBefore: before,
			WinrateAfter:  after,
			ScoreLoss:     km.ScoreLoss,
		}.Build()
		if err != nil {
			o.logger.Printf("⚠️ Bubble for move %d failed: %v", km.Move, err)
			fallbacks = append(fallbacks, fallbackText(km, comment, ""))
			continue
		}
		bubbles = append(bubbles, raw)
	}

	if len(bubbles) > 0 {
		if err := o.cfg.Messenger.SendCarouselBubbles(ctx, chat, bubbles, messaging.KeyMoveAltText); err != nil {
			return fmt.Errorf("send carousels: %w", err)
		}
	}
	if len(fallbacks) > 0 {
		o.logger.Printf("⚠️ %d key moves degraded to text for %s", len(fallbacks), chat)
		if err := o.cfg.Messenger.SendPacedTexts(ctx, chat, fallbacks); err != nil {
			return fmt.Errorf("send fallbacks: %w", err)
		}
	}
	return nil
}

// moverWinrates converts the black-perspective stats to the mover's view,
// which is how the bubble reads ("your winrate fell by ...").
func moverWinrates(km engine.MoveStat) (*float64, *float64) {
	if km.WinrateAfter == nil {
		return nil, nil
	}
	before, after := km.WinrateBefore, *km.WinrateAfter
	if km.Color == "W" {
		before, after = 100-before, 100-after
	}
	return &before, &after
}

func fallbackText(km engine.MoveStat, comment, suffix string) string {
	side := "黑"
	if km.Color == "W" {
		side = "白"
	}
	return fmt.Sprintf("📍 第 %d 手（%s）- %s\n\n%s%s", km.Move, side, km.Played, comment, suffix)
}
