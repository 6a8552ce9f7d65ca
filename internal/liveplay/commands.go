package liveplay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tengenlabs/tengen/internal/board"
	"github.com/tengenlabs/tengen/internal/messaging"
	"github.com/tengenlabs/tengen/internal/record"
	"github.com/tengenlabs/tengen/internal/render"
	"github.com/tengenlabs/tengen/internal/session"
	"github.com/tengenlabs/tengen/internal/storage"
)

// Undo drops the last move, replays, persists, and answers with the
// re-rendered board. Undo on an empty record is rejected with a hint.
func (h *Handler) Undo(ctx context.Context, chat, replyToken string) error {
	g, err := h.loadGame(ctx, chat)
	if err != nil {
		h.send(ctx, chat, replyToken, messaging.NewText("❌ 處理悔棋時發生錯誤："+err.Error()))
		return fmt.Errorf("load game for %s: %w", chat, err)
	}

	if _, err := g.Record.RemoveLastMove(); err != nil {
		if errors.Is(err, record.ErrNoMoves) {
			h.send(ctx, chat, replyToken, messaging.NewText("目前是初始狀態，無法悔棋。"))
			return nil
		}
		h.send(ctx, chat, replyToken, messaging.NewText("悔棋失敗："+err.Error()))
		return fmt.Errorf("undo for %s: %w", chat, err)
	}

	g.Replay = record.Replay(g.Record)
	if err := h.persistGame(ctx, g, int(g.Replay.NextTurn)); err != nil {
		h.send(ctx, chat, replyToken, messaging.NewText("悔棋失敗："+err.Error()))
		return err
	}
	h.emit("tengen.liveplay.undo", chat, map[string]interface{}{
		"game_id": g.GameID, "move_count": g.Replay.MoveCount,
	})

	turnText := session.TurnName(int(g.Replay.NextTurn))
	imageURL, err := h.uploadBoard(ctx, g, g.Replay.LastMove, fmt.Sprintf("board_undo_%d", time.Now().Unix()))
	if err != nil || !messaging.IsValidHTTPSURL(imageURL) {
		h.send(ctx, chat, replyToken, messaging.NewText(
			fmt.Sprintf("↩️ 已悔棋一步。\n現在輪到：%s\n\n⚠️ 圖片 URL 無效", turnText)))
		return err
	}

	h.send(ctx, chat, replyToken,
		messaging.NewText(fmt.Sprintf("↩️ 已悔棋一步。\n現在輪到：%s", turnText)),
		messaging.NewImage(imageURL),
	)
	return nil
}

// Load re-renders a stored record with every stone numbered by ply and
// points the session at it. An empty gameID loads the session's current
// game; a concrete one switches the chat to that game. The
// engine-opponent flag survives either way.
func (h *Handler) Load(ctx context.Context, chat, replyToken, gameID string) error {
	if gameID == "" {
		st, err := h.cfg.Sessions.Load(ctx, chat)
		if err != nil || st.GameID == "" {
			h.send(ctx, chat, replyToken, messaging.NewText("找不到存檔。"))
			return err
		}
		gameID = st.GameID
	}

	rec, ok := h.fetchRecord(ctx, chat, replyToken, gameID)
	if !ok {
		return nil
	}
	rp := record.Replay(rec)
	g := &game{Chat: chat, GameID: gameID, Record: rec, Replay: rp}

	if err := h.cfg.Sessions.SetGame(ctx, chat, gameID, int(rp.NextTurn)); err != nil {
		h.send(ctx, chat, replyToken, messaging.NewText("讀取失敗："+err.Error()))
		return fmt.Errorf("point session at %s: %w", gameID, err)
	}
	h.emit("tengen.liveplay.load", chat, map[string]interface{}{
		"game_id": gameID, "move_count": rp.MoveCount,
	})

	text := fmt.Sprintf("📂 已讀取棋譜 (game_id: %s)！\n總手數：%d 手\n目前輪到：%s",
		gameID, rp.MoveCount, session.TurnName(int(rp.NextTurn)))
	h.sendNumberedBoard(ctx, g, replyToken, text)
	return nil
}

// LoadTruncated forks the first n moves of a stored record into a brand
// new game and switches the session to it. The source record is left
// untouched.
func (h *Handler) LoadTruncated(ctx context.Context, chat, replyToken, sourceGameID string, n int) error {
	rec, ok := h.fetchRecord(ctx, chat, replyToken, sourceGameID)
	if !ok {
		return nil
	}
	if total := rec.MoveCount(); n > total {
		h.send(ctx, chat, replyToken, messaging.NewText(
			fmt.Sprintf("該棋譜只有 %d 手，無法讀取到第 %d 手。", total, n)))
		return nil
	}

	g := &game{Chat: chat, GameID: record.NewGameID(time.Now()), Record: record.Truncate(rec, n)}
	g.Replay = record.Replay(g.Record)

	if err := h.persistGame(ctx, g, int(g.Replay.NextTurn)); err != nil {
		h.send(ctx, chat, replyToken, messaging.NewText("讀取失敗："+err.Error()))
		return err
	}
	h.logger.Printf("✂️ Forked %s at move %d into %s for %s", sourceGameID, n, g.GameID, chat)
	h.emit("tengen.liveplay.load", chat, map[string]interface{}{
		"game_id": g.GameID, "source_game_id": sourceGameID, "move_count": n,
	})

	text := fmt.Sprintf("📂 已讀取棋譜 (game_id: %s) 前 %d 手！\n新對局 game_id: %s\n總手數：%d 手\n目前輪到：%s",
		sourceGameID, n, g.GameID, n, session.TurnName(int(g.Replay.NextTurn)))
	h.sendNumberedBoard(ctx, g, replyToken, text)
	return nil
}

// Reset archives the session pointer onto a brand new empty game. The
// engine-opponent flag survives; the old record stays in the store and
// goes out as a best-effort download card so the game is not lost.
func (h *Handler) Reset(ctx context.Context, chat, replyToken string) error {
	card := h.downloadCard(ctx, chat)

	g := &game{Chat: chat, GameID: record.NewGameID(time.Now()), Record: record.NewWithDate(time.Now())}
	g.Replay = record.Replay(g.Record)
	if err := h.persistGame(ctx, g, session.TurnBlack); err != nil {
		h.send(ctx, chat, replyToken, messaging.NewText("❌ 重置棋盤時發生錯誤："+err.Error()))
		return err
	}
	h.logger.Printf("🧹 Reset %s to new game %s", chat, g.GameID)
	h.emit("tengen.liveplay.reset", chat, map[string]interface{}{"game_id": g.GameID})

	msgs := make([]messaging.Message, 0, 2)
	if card != nil {
		msgs = append(msgs, *card)
	}
	msgs = append(msgs, messaging.NewText("✅ 棋盤已重置，黑棋請下。"))
	h.send(ctx, chat, replyToken, msgs...)
	return nil
}

// downloadCard builds the flex card linking the chat's current record.
// Strictly best effort: any failure just means no card.
func (h *Handler) downloadCard(ctx context.Context, chat string) *messaging.Flex {
	st, err := h.cfg.Sessions.Load(ctx, chat)
	if err != nil || st.GameID == "" {
		return nil
	}
	recordPath := storage.RecordPath(chat, st.GameID)
	exists, err := h.cfg.Store.Exists(ctx, recordPath)
	if err != nil || !exists {
		return nil
	}
	url := h.cfg.Store.PublicURL(recordPath)
	if !messaging.IsValidHTTPSURL(url) {
		return nil
	}
	card, err := messaging.RecordDownloadCard(url, st.GameID)
	if err != nil {
		h.logger.Printf("⚠️ Download card for %s unbuildable: %v", st.GameID, err)
		return nil
	}
	return &card
}

// Evaluate runs a live position judgement and answers with the score lead
// and a territory-marked board.
func (h *Handler) Evaluate(ctx context.Context, chat, replyToken string) error {
	if h.cfg.Evaluator == nil {
		h.send(ctx, chat, replyToken, messaging.NewText("❌ 系統配置錯誤：未設定形勢判斷引擎"))
		return nil
	}

	g, err := h.loadGame(ctx, chat)
	if err != nil {
		h.send(ctx, chat, replyToken, messaging.NewText("❌ 執行形勢判斷時發生錯誤："+err.Error()))
		return fmt.Errorf("load game for %s: %w", chat, err)
	}
	if g.Replay.Board.StoneCount() == 0 {
		h.send(ctx, chat, replyToken, messaging.NewText("目前盤面沒有進行中的對局，無法進行形勢判斷。"))
		return nil
	}

	eval, err := h.cfg.Evaluator.Evaluate(ctx, g.Record, h.cfg.Tuning.EvalMaxVisits)
	if err != nil {
		h.send(ctx, chat, replyToken, messaging.NewText("❌ 形勢判斷失敗："+err.Error()))
		return fmt.Errorf("evaluate %s: %w", chat, err)
	}
	shapeText := shapeSummary(eval.ScoreLead)
	h.emit("tengen.liveplay.evaluation", chat, map[string]interface{}{
		"game_id": g.GameID, "score_lead": eval.ScoreLead, "winrate": eval.WinratePercent,
	})

	png, err := render.BoardWithTerritory(g.Replay.Board.Grid(), g.Replay.LastMove, eval.Territory)
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.RecordMediaRender("territory", err)
	}
	if err == nil {
		p := storage.BoardImagePath(chat, g.GameID, fmt.Sprintf("evaluation_%d", time.Now().Unix()))
		if err = h.cfg.Store.Put(ctx, p, png, storage.PutOptions{
			ContentType:  storage.ContentTypePNG,
			CacheControl: storage.CacheMutable,
		}); err == nil {
			if url := h.cfg.Store.PublicURL(p); messaging.IsValidHTTPSURL(url) {
				h.send(ctx, chat, replyToken,
					messaging.NewText(shapeText),
					messaging.NewText("下圖勢力範圍僅供參考"),
					messaging.NewImage(url),
				)
				return nil
			}
		}
	}

	h.logger.Printf("⚠️ Territory image for %s unavailable: %v", chat, err)
	h.send(ctx, chat, replyToken, messaging.NewText(
		shapeText+"\n\n⚠️ 無法顯示棋盤圖片，請檢查儲存桶或 public URL 設定。"))
	return nil
}

// fetchRecord loads and decodes one record, translating the two failure
// modes into their user-facing texts. ok=false means the user has already
// been answered.
func (h *Handler) fetchRecord(ctx context.Context, chat, replyToken, gameID string) (*record.Record, bool) {
	data, err := h.cfg.Store.Get(ctx, storage.RecordPath(chat, gameID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.send(ctx, chat, replyToken, messaging.NewText(
				fmt.Sprintf("找不到 game_id 為 %s 的棋譜。", gameID)))
		} else {
			h.send(ctx, chat, replyToken, messaging.NewText("讀取失敗："+err.Error()))
		}
		return nil, false
	}
	rec, err := record.Decode(data)
	if err != nil {
		h.send(ctx, chat, replyToken, messaging.NewText("讀取失敗：無法解析棋譜檔案。"))
		return nil, false
	}
	return rec, true
}

// sendNumberedBoard renders the game with ply numbers on every surviving
// stone and sends it after the caption, degrading to text when the image
// cannot be produced or addressed.
func (h *Handler) sendNumberedBoard(ctx context.Context, g *game, replyToken, text string) {
	png, err := render.Overview(g.Replay.Board.Grid(), plyLabels(g.Record))
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.RecordMediaRender("overview", err)
	}
	if err == nil {
		p := storage.BoardImagePath(g.Chat, g.GameID, fmt.Sprintf("board_restored_%d", time.Now().Unix()))
		if err = h.cfg.Store.Put(ctx, p, png, storage.PutOptions{
			ContentType:  storage.ContentTypePNG,
			CacheControl: storage.CacheMutable,
		}); err == nil {
			if url := h.cfg.Store.PublicURL(p); messaging.IsValidHTTPSURL(url) {
				h.send(ctx, g.Chat, replyToken, messaging.NewText(text), messaging.NewImage(url))
				return
			}
		}
	}
	h.logger.Printf("⚠️ Numbered board for %s unavailable: %v", g.Chat, err)
	h.send(ctx, g.Chat, replyToken, messaging.NewText(text+"\n\n⚠️ 圖片 URL 無效"))
}

// plyLabels numbers each move's point by ply; a later stone on a
// recaptured point takes over the label, like the rendering of captured
// plies expects.
func plyLabels(rec *record.Record) map[board.Coord]int {
	labels := make(map[board.Coord]int)
	for i, mv := range rec.Moves() {
		if mv.Pass {
			continue
		}
		labels[mv.Coord] = i + 1
	}
	return labels
}

// shapeSummary renders the score lead the way players quote it: leader
// plus margin to the nearest half point, with a dead-even band around
// zero.
func shapeSummary(scoreLead float64) string {
	if math.Abs(scoreLead) < 0.05 {
		return "目前形勢：雙方大致均勢（約 0 目）。"
	}
	leader, lead := "黑", scoreLead
	if scoreLead < 0 {
		leader, lead = "白", -scoreLead
	}
	return fmt.Sprintf("目前形勢：%s +%.1f 目。", leader, math.Round(lead*2)/2)
}
