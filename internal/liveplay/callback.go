package liveplay

import (
	"context"
	"fmt"
	"time"

	"github.com/tengenlabs/tengen/internal/board"
	"github.com/tengenlabs/tengen/internal/messaging"
	"github.com/tengenlabs/tengen/internal/session"
)

// GenMoveCallback is the body the engine companion posts to
// /callback/get_ai_next_move once a move is ready. The reply token and the
// user's board image URL travel through the engine untouched; current_turn
// is the color the engine played.
type GenMoveCallback struct {
	Status            string `json:"status"`
	TargetID          string `json:"target_id"`
	Move              string `json:"move,omitempty"`
	CurrentTurn       int    `json:"current_turn"`
	ReplyToken        string `json:"reply_token,omitempty"`
	UserBoardImageURL string `json:"user_board_image_url,omitempty"`
	Error             string `json:"error,omitempty"`
}

// HandleGenMove finishes the engine's half of the round trip: re-load the
// game freshly from the store, place the engine's stone, persist, render,
// and answer the user with one combined bundle: their own board image
// first, then the engine's move. The reply token from the original webhook
// is consumed here, falling back to push when it has expired.
func (h *Handler) HandleGenMove(ctx context.Context, cb GenMoveCallback) error {
	chat := cb.TargetID
	started := time.Now()

	if cb.Status != "success" {
		reason := cb.Error
		if reason == "" {
			reason = "未知錯誤"
		}
		h.logger.Printf("❌ GenMove for %s failed at the engine: %s", chat, reason)
		h.sendBundle(ctx, cb, messaging.NewText("❌ AI 思考失敗："+reason))
		return nil
	}
	if cb.Move == "" {
		h.logger.Printf("⚠️ GenMove callback for %s carries no move", chat)
		h.sendBundle(ctx, cb, messaging.NewText("❌ AI 思考完成但無法取得落子位置"))
		return nil
	}

	// The synchronous handler already persisted the user's move; anything
	// in memory from back then is stale by now.
	g, err := h.loadGame(ctx, chat)
	if err != nil {
		h.sendBundle(ctx, cb, messaging.NewText("❌ AI 落子失敗："+err.Error()))
		return fmt.Errorf("reload game for %s: %w", chat, err)
	}
	if g.State.CurrentTurn != cb.CurrentTurn {
		h.logger.Printf("⚠️ GenMove callback for %s is stale: record expects turn %d, callback says %d",
			chat, g.State.CurrentTurn, cb.CurrentTurn)
	}
	color := turnColor(cb.CurrentTurn)

	coord, err := board.ParseCoord(cb.Move)
	if err != nil {
		h.recordMove(color, "rejected", started)
		h.sendBundle(ctx, cb, messaging.NewText(fmt.Sprintf("❌ AI 落子失敗：座標格式錯誤 (%s)", cb.Move)))
		return nil
	}
	if _, err := g.Replay.Board.Place(coord, color); err != nil {
		h.recordMove(color, "rejected", started)
		h.logger.Printf("❌ Engine move %s rejected for %s: %v", cb.Move, chat, err)
		h.sendBundle(ctx, cb, messaging.NewText("❌ AI 落子失敗："+hintFor(err)))
		return nil
	}

	g.Record.AppendMove(color, coord)
	nextTurn := session.OpponentTurn(cb.CurrentTurn)
	if err := h.persistGame(ctx, g, nextTurn); err != nil {
		h.recordMove(color, "error", started)
		h.sendBundle(ctx, cb, messaging.NewText("❌ AI 落子失敗："+err.Error()))
		return err
	}
	h.recordMove(color, "accepted", started)
	h.emit("tengen.liveplay.engine_move", chat, map[string]interface{}{
		"game_id": g.GameID, "move": cb.Move, "color": color.Letter(),
	})

	imageURL, err := h.uploadBoard(ctx, g, &coord, fmt.Sprintf("board_ai_%d", time.Now().Unix()))
	if err != nil {
		h.sendBundle(ctx, cb, messaging.NewText("❌ AI 落子失敗："+err.Error()))
		return err
	}

	turnText := session.TurnName(nextTurn)
	if !messaging.IsValidHTTPSURL(imageURL) {
		h.logger.Printf("⚠️ Board image URL invalid for %s: %s", chat, imageURL)
		h.sendBundle(ctx, cb, messaging.NewText(
			fmt.Sprintf("🤖 AI 下在 %s\n\n現在輪到您（%s）下棋。\n\n⚠️ 圖片 URL 無效", cb.Move, turnText)))
		return nil
	}

	h.sendBundle(ctx, cb,
		messaging.NewText(fmt.Sprintf("🤖 AI 下在 %s", cb.Move)),
		messaging.NewImage(imageURL),
		messaging.NewText(fmt.Sprintf("現在輪到您（%s）下棋。", turnText)),
	)
	h.logger.Printf("✅ Engine played %s for %s, %s to move", cb.Move, chat, turnText)
	return nil
}

// sendBundle answers the callback with the user's own board image first
// when it is still addressable, so even a failed engine exchange shows the
// user their move landed. The ride-along reply token is spent here.
func (h *Handler) sendBundle(ctx context.Context, cb GenMoveCallback, rest ...messaging.Message) {
	msgs := make([]messaging.Message, 0, len(rest)+1)
	if messaging.IsValidHTTPSURL(cb.UserBoardImageURL) {
		msgs = append(msgs, messaging.NewImage(cb.UserBoardImageURL))
	}
	h.send(ctx, cb.TargetID, cb.ReplyToken, append(msgs, rest...)...)
}
