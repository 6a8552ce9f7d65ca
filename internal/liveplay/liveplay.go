// Package liveplay drives the interactive game: coordinate moves, undo,
// record loading, resets, live evaluation, and the engine-opponent round
// trip. The stored record is the single source of truth for board content;
// every handler rebuilds the position by replay, mutates the record,
// persists record before session, and answers with a freshly rendered
// board image.
package liveplay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tengenlabs/tengen/internal/board"
	"github.com/tengenlabs/tengen/internal/config"
	"github.com/tengenlabs/tengen/internal/dispatch"
	"github.com/tengenlabs/tengen/internal/engine"
	"github.com/tengenlabs/tengen/internal/events"
	"github.com/tengenlabs/tengen/internal/messaging"
	"github.com/tengenlabs/tengen/internal/monitoring"
	"github.com/tengenlabs/tengen/internal/record"
	"github.com/tengenlabs/tengen/internal/render"
	"github.com/tengenlabs/tengen/internal/session"
	"github.com/tengenlabs/tengen/internal/storage"
)

const eventSource = "/liveplay"

// Evaluator is the slice of the engine used for live position judgement.
type Evaluator interface {
	Evaluate(ctx context.Context, rec *record.Record, maxVisits int) (*engine.Evaluation, error)
}

// Config wires the handler's dependencies.
type Config struct {
	Store      storage.Store
	Sessions   *session.Store
	Messenger  *messaging.Client
	Dispatcher dispatch.Dispatcher

	// Evaluator serves the evaluation command. Nil degrades the command
	// to an apology text (deployments without a position-judging engine).
	Evaluator Evaluator

	// Events and Metrics are optional observability sinks.
	Events  events.EventEmitter
	Metrics *monitoring.Metrics

	// CallbackBaseURL is this service's public base URL; genmove results
	// post back to {base}/callback/get_ai_next_move.
	CallbackBaseURL string

	Tuning config.Tuning
}

// Handler runs the interactive game for every chat.
type Handler struct {
	cfg    Config
	logger *log.Logger
}

// New creates a live-play handler.
func New(cfg Config) *Handler {
	return &Handler{
		cfg:    cfg,
		logger: log.New(log.Writer(), "[LivePlay] ", log.LstdFlags),
	}
}

// game is one chat's hydrated position: the session pointer, the decoded
// record, and its replay. Fresh marks a record that exists only in memory
// so far.
type game struct {
	Chat   string
	GameID string
	State  session.State
	Record *record.Record
	Replay *record.ReplayResult
	Fresh  bool
}

// loadGame hydrates the chat's current game, always freshly from the
// store. The record wins over the session on whose turn it is; a missing
// record yields a fresh one under the session's game id, or a brand new id
// when the session is empty too.
func (h *Handler) loadGame(ctx context.Context, chat string) (*game, error) {
	st, err := h.cfg.Sessions.Load(ctx, chat)
	if err != nil {
		return nil, err
	}

	if st.GameID != "" {
		data, err := h.cfg.Store.Get(ctx, storage.RecordPath(chat, st.GameID))
		switch {
		case err == nil:
			rec, decErr := record.Decode(data)
			if decErr != nil {
				return nil, fmt.Errorf("decode record %s: %w", st.GameID, decErr)
			}
			rp := record.Replay(rec)
			if int(rp.NextTurn) != st.CurrentTurn {
				h.logger.Printf("⚠️ Turn mismatch for %s: record says %d, session says %d; trusting the record",
					chat, int(rp.NextTurn), st.CurrentTurn)
				st.CurrentTurn = int(rp.NextTurn)
			}
			return &game{Chat: chat, GameID: st.GameID, State: st, Record: rec, Replay: rp}, nil
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("load record %s: %w", st.GameID, err)
		}
	}

	gameID := st.GameID
	if gameID == "" {
		gameID = record.NewGameID(time.Now())
	}
	st.CurrentTurn = session.TurnBlack
	rec := record.NewWithDate(time.Now())
	h.logger.Printf("🆕 New game %s for %s", gameID, chat)
	return &game{Chat: chat, GameID: gameID, State: st, Record: rec, Replay: record.Replay(rec), Fresh: true}, nil
}

// persistGame writes the record, then points the session at it. The order
// matters: a crash between the two writes leaves a session one move behind
// a record that replay repairs on the next load, while the reverse order
// could point the session at a record that was never written.
func (h *Handler) persistGame(ctx context.Context, g *game, turn int) error {
	err := h.cfg.Store.Put(ctx, storage.RecordPath(g.Chat, g.GameID), record.Encode(g.Record), storage.PutOptions{
		ContentType:  storage.ContentTypeRecord,
		CacheControl: storage.CacheMutable,
	})
	if err != nil {
		return fmt.Errorf("persist record %s: %w", g.GameID, err)
	}
	if err := h.cfg.Sessions.SetGame(ctx, g.Chat, g.GameID, turn); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	g.State.CurrentTurn = turn
	return nil
}

// Move applies one user move. With the engine opponent off it replies with
// the new board image; with it on it dispatches genmove and deliberately
// leaves the reply token unconsumed, so the first reply the user sees is
// the combined user-move-plus-engine-move bundle from the callback.
func (h *Handler) Move(ctx context.Context, chat, replyToken, coordText string) error {
	started := time.Now()

	g, err := h.loadGame(ctx, chat)
	if err != nil {
		h.send(ctx, chat, replyToken, messaging.NewText("❌ 處理落子時發生錯誤："+err.Error()))
		return fmt.Errorf("load game for %s: %w", chat, err)
	}
	color := turnColor(g.State.CurrentTurn)

	coord, err := board.ParseCoord(coordText)
	var placed *board.PlaceResult
	if err == nil {
		placed, err = g.Replay.Board.Place(coord, color)
	}
	if err != nil {
		h.recordMove(color, "rejected", started)
		h.send(ctx, chat, replyToken, messaging.NewText("提示："+hintFor(err)))
		return nil
	}

	g.Record.AppendMove(color, coord)
	nextTurn := session.OpponentTurn(g.State.CurrentTurn)
	if err := h.persistGame(ctx, g, nextTurn); err != nil {
		h.recordMove(color, "error", started)
		h.send(ctx, chat, replyToken, messaging.NewText("❌ 處理落子時發生錯誤："+err.Error()))
		return err
	}
	h.recordMove(color, "accepted", started)
	h.emit("tengen.liveplay.move", chat, map[string]interface{}{
		"game_id": g.GameID, "move": coord.GTP(), "color": color.Letter(),
	})

	imageURL, err := h.uploadBoard(ctx, g, &coord, fmt.Sprintf("board_%d", time.Now().Unix()))
	if err != nil {
		h.send(ctx, chat, replyToken, messaging.NewText("❌ 處理落子時發生錯誤："+err.Error()))
		return err
	}

	if !messaging.IsValidHTTPSURL(imageURL) {
		h.logger.Printf("⚠️ Board image URL invalid for %s: %s", chat, imageURL)
		h.send(ctx, chat, replyToken, messaging.NewText(
			fmt.Sprintf("✅ %s\n\n⚠️ 圖片 URL 無效，請檢查 BUCKET 設定", moveSummary(color, coordText, placed))))
		return nil
	}

	if g.State.EngineOpponentMode {
		if err := h.dispatchGenMove(ctx, g, replyToken, imageURL); err == nil {
			// No reply here: the callback answers with the combined bundle.
			return nil
		}
		h.logger.Printf("⚠️ GenMove dispatch failed for %s, answering with the user move only", chat)
	}

	h.send(ctx, chat, replyToken, messaging.NewImage(imageURL))
	return nil
}

// dispatchGenMove hands the position to the engine. The reply token and
// the user's board image URL ride along so the callback can answer both
// moves in one message.
func (h *Handler) dispatchGenMove(ctx context.Context, g *game, replyToken, userImageURL string) error {
	job := engine.GenMoveJob{
		TaskID:            g.GameID,
		RecordPath:        storage.RecordPath(g.Chat, g.GameID),
		Bucket:            h.cfg.Store.Bucket(),
		TargetID:          g.Chat,
		CallbackURL:       h.cfg.CallbackBaseURL + "/callback/get_ai_next_move",
		CurrentTurn:       g.State.CurrentTurn,
		MaxVisits:         h.cfg.Tuning.GenMoveMaxVisits,
		ReplyToken:        replyToken,
		UserBoardImageURL: userImageURL,
	}
	if err := h.cfg.Dispatcher.DispatchGenMove(ctx, job); err != nil {
		return fmt.Errorf("dispatch genmove for %s: %w", g.Chat, err)
	}
	h.emit("tengen.liveplay.genmove_dispatched", g.Chat, map[string]interface{}{
		"game_id": g.GameID, "current_turn": g.State.CurrentTurn,
	})
	return nil
}

// uploadBoard renders the game's position with the last-move highlight and
// uploads it under the game's image folder, returning the public URL.
func (h *Handler) uploadBoard(ctx context.Context, g *game, lastMove *board.Coord, name string) (string, error) {
	png, err := render.Board(g.Replay.Board.Grid(), lastMove)
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.RecordMediaRender("board", err)
	}
	if err != nil {
		return "", fmt.Errorf("render board: %w", err)
	}
	p := storage.BoardImagePath(g.Chat, g.GameID, name)
	err = h.cfg.Store.Put(ctx, p, png, storage.PutOptions{
		ContentType:  storage.ContentTypePNG,
		CacheControl: storage.CacheMutable,
	})
	if err != nil {
		return "", fmt.Errorf("upload board image: %w", err)
	}
	return h.cfg.Store.PublicURL(p), nil
}

// send delivers messages, logging instead of failing: user-facing notices
// never abort a handler.
func (h *Handler) send(ctx context.Context, chat, replyToken string, msgs ...messaging.Message) {
	if _, err := h.cfg.Messenger.Send(ctx, chat, replyToken, msgs); err != nil {
		h.logger.Printf("❌ Message to %s undeliverable: %v", chat, err)
	}
}

func (h *Handler) emit(eventType, chat string, data map[string]interface{}) {
	if h.cfg.Events != nil {
		h.cfg.Events.Emit(eventType, eventSource, chat, data)
	}
}

func (h *Handler) recordMove(color board.Color, result string, started time.Time) {
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.RecordMove(color.String(), result, time.Since(started).Seconds())
	}
}

// hintFor maps a placement error to the user-facing hint.
func hintFor(err error) string {
	switch {
	case errors.Is(err, board.ErrBadCoord):
		return "座標格式錯誤 (例如: D4, Q16)"
	case errors.Is(err, board.ErrOccupied):
		return "這裡已經有棋子了"
	case errors.Is(err, board.ErrKoViolation):
		return "打劫：不能立即回提，請先找劫材！"
	case errors.Is(err, board.ErrSuicide):
		return "禁手：禁止自殺"
	}
	return err.Error()
}

// moveSummary is the textual fallback when the board image cannot be sent.
func moveSummary(color board.Color, coordText string, placed *board.PlaceResult) string {
	s := fmt.Sprintf("%s棋落在 %s。", session.TurnName(int(color)), coordText)
	if placed != nil && len(placed.Captured) > 0 {
		s += fmt.Sprintf(" 提吃了 %d 顆子！", len(placed.Captured))
	}
	return s
}

func turnColor(turn int) board.Color {
	if turn == session.TurnWhite {
		return board.White
	}
	return board.Black
}
