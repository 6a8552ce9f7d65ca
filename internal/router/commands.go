package router

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tengenlabs/tengen/internal/messaging"
	"github.com/tengenlabs/tengen/internal/session"
	"github.com/tengenlabs/tengen/internal/storage"
)

// Command shapes. The loose load patterns deliberately ignore trailing
// text, matching how users append notes after the game id.
var (
	authRe      = regexp.MustCompile(`(?i)^(?:auth|認證)\s+(.+)$`)
	loadTruncRe = regexp.MustCompile(`(?i)^(?:讀取|load)\s+(game_\d+)\s+(\d+)`)
	loadRe      = regexp.MustCompile(`(?i)^(?:讀取|load)\s*(game_\d+)`)
	coordRe     = regexp.MustCompile(`^[A-HJ-T](?:[1-9]|1[0-9])$`)
)

// dispatch parses one cleaned command text and runs it. Order matters:
// exact keywords first, then the substring-triggered families, then the
// bare coordinate.
func (r *Router) dispatch(ctx context.Context, chat, replyToken, sourceType, text string) {
	lower := strings.ToLower(text)

	if lower == "help" || text == "幫助" || text == "說明" {
		r.recordCommand("help")
		r.send(ctx, chat, replyToken, messaging.NewText(r.helpText()))
		return
	}

	if strings.Contains(text, "認證") || strings.Contains(lower, "auth") {
		if m := authRe.FindStringSubmatch(text); m != nil {
			r.recordCommand("auth")
			r.handleAuth(ctx, chat, replyToken, strings.TrimSpace(m[1]))
			return
		}
	}

	if lower == "review" || text == "覆盤" {
		r.recordCommand("review")
		if !r.authorized(ctx, chat) {
			r.send(ctx, chat, replyToken, messaging.NewText(
				"❌ 請先使用 'auth <token>' 指令進行認證，才可使用覆盤功能"))
			return
		}
		if err := r.cfg.Review.Trigger(ctx, chat, replyToken); err != nil {
			r.logger.Printf("❌ Review trigger for %s: %v", chat, err)
		}
		return
	}

	if lower == "evaluation" || text == "形勢" || text == "形式" {
		r.recordCommand("evaluation")
		if !r.authorized(ctx, chat) {
			r.send(ctx, chat, replyToken, messaging.NewText(
				"❌ 請先使用 'auth <token>' 指令進行認證，才可使用形勢判斷功能"))
			return
		}
		if err := r.cfg.LivePlay.Evaluate(ctx, chat, replyToken); err != nil {
			r.logger.Printf("❌ Evaluation for %s: %v", chat, err)
		}
		return
	}

	if strings.Contains(text, "悔棋") || strings.Contains(lower, "undo") {
		r.recordCommand("undo")
		if err := r.cfg.LivePlay.Undo(ctx, chat, replyToken); err != nil {
			r.logger.Printf("❌ Undo for %s: %v", chat, err)
		}
		return
	}

	if strings.Contains(text, "讀取") || strings.Contains(lower, "load") {
		r.handleLoad(ctx, chat, replyToken, text)
		return
	}

	switch lower {
	case "對弈", "vs":
		r.recordCommand("vs_status")
		r.handleModeStatus(ctx, chat, replyToken)
		return
	case "對弈 ai", "對弈ai", "vs ai", "vsai":
		r.recordCommand("vs_ai")
		r.handleModeEnable(ctx, chat, replyToken)
		return
	case "對弈 free", "對弈free", "vs free", "vsfree":
		r.recordCommand("vs_free")
		r.handleModeDisable(ctx, chat, replyToken)
		return
	}

	if strings.Contains(text, "重置") || strings.Contains(lower, "reset") {
		r.recordCommand("reset")
		if err := r.cfg.LivePlay.Reset(ctx, chat, replyToken); err != nil {
			r.logger.Printf("❌ Reset for %s: %v", chat, err)
		}
		return
	}

	if coord := strings.ToUpper(text); coordRe.MatchString(coord) {
		r.recordCommand("move")
		if err := r.cfg.LivePlay.Move(ctx, chat, replyToken, coord); err != nil {
			r.logger.Printf("❌ Move for %s: %v", chat, err)
		}
		return
	}

	// Unknown text: groups stay quiet so the bot does not butt into
	// conversation, 1:1 chats get a pointer to the help command.
	r.recordCommand("unknown")
	if sourceType == "user" {
		r.send(ctx, chat, replyToken, messaging.NewText("💡 輸入「help」查看指令列表。"))
	}
}

func (r *Router) handleLoad(ctx context.Context, chat, replyToken, text string) {
	if m := loadTruncRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil && n > 0 {
			r.recordCommand("load_truncated")
			if err := r.cfg.LivePlay.LoadTruncated(ctx, chat, replyToken, m[1], n); err != nil {
				r.logger.Printf("❌ Truncated load for %s: %v", chat, err)
			}
			return
		}
	}

	gameID := ""
	if m := loadRe.FindStringSubmatch(text); m != nil {
		gameID = m[1]
	}
	r.recordCommand("load")
	if err := r.cfg.LivePlay.Load(ctx, chat, replyToken, gameID); err != nil {
		r.logger.Printf("❌ Load for %s: %v", chat, err)
	}
}

// ============================================================================
// AUTH
// ============================================================================

// handleAuth verifies the presented token against the configured one and
// stores a bcrypt hash as the chat's grant. Only the hash ever touches the
// store.
func (r *Router) handleAuth(ctx context.Context, chat, replyToken, token string) {
	if r.cfg.GlobalAuthToken == "" {
		r.send(ctx, chat, replyToken, messaging.NewText("❌ 系統配置錯誤：未設定 AUTH_TOKEN"))
		return
	}
	if token != r.cfg.GlobalAuthToken {
		r.send(ctx, chat, replyToken, messaging.NewText("❌ 認證失敗：金鑰不正確"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		r.send(ctx, chat, replyToken, messaging.NewText(fmt.Sprintf("❌ 執行認證時發生錯誤：%s", err)))
		return
	}
	err = r.cfg.AuthStore.Put(ctx, storage.AuthPath(chat), hash, storage.PutOptions{
		ContentType:  storage.ContentTypeText,
		CacheControl: storage.CacheSession,
	})
	if err != nil {
		r.logger.Printf("❌ Auth grant for %s unwritable: %v", chat, err)
		r.send(ctx, chat, replyToken, messaging.NewText("❌ 認證失敗：無法儲存認證資訊"))
		return
	}

	r.logger.Printf("✅ Auth grant stored for %s", chat)
	r.send(ctx, chat, replyToken, messaging.NewText("✅ 認證成功！現在可以使用覆盤功能。"))
}

// authorized reports whether the chat passed the auth gate. An empty
// global token leaves the gate open; a token rotation invalidates old
// grants because the stored hash no longer matches.
func (r *Router) authorized(ctx context.Context, chat string) bool {
	if r.cfg.GlobalAuthToken == "" {
		return true
	}
	stored, err := r.cfg.AuthStore.Get(ctx, storage.AuthPath(chat))
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(bytes.TrimSpace(stored), []byte(r.cfg.GlobalAuthToken)) == nil
}

// ============================================================================
// ENGINE OPPONENT MODE
// ============================================================================

func (r *Router) handleModeStatus(ctx context.Context, chat, replyToken string) {
	st, err := r.cfg.Sessions.Load(ctx, chat)
	if err != nil {
		r.logger.Printf("⚠️ Session for %s unreadable, assuming defaults: %v", chat, err)
		st = session.State{CurrentTurn: session.TurnBlack}
	}
	r.send(ctx, chat, replyToken, messaging.NewText(modeStatusText(st)))
}

func (r *Router) handleModeEnable(ctx context.Context, chat, replyToken string) {
	if !r.authorized(ctx, chat) {
		r.send(ctx, chat, replyToken, messaging.NewText(
			"❌ 請先使用 'auth <token>' 指令進行認證，才可使用 AI 對弈功能"))
		return
	}

	if err := r.cfg.Sessions.SetEngineMode(ctx, chat, true); err != nil {
		r.logger.Printf("❌ Enabling engine mode for %s: %v", chat, err)
		r.send(ctx, chat, replyToken, messaging.NewText("❌ 開啟對弈模式失敗，請稍後再試。"))
		return
	}

	st, err := r.cfg.Sessions.Load(ctx, chat)
	if err != nil {
		st = session.State{CurrentTurn: session.TurnBlack}
	}
	userColor, aiColor := "黑", "白"
	if st.CurrentTurn == session.TurnWhite {
		userColor, aiColor = "白", "黑"
	}
	r.send(ctx, chat, replyToken, messaging.NewText(fmt.Sprintf(
		"✅ 已開啟 AI 對弈模式！\n\n您執%s，AI 執%s。\n請開始下棋（例如：D4）。", userColor, aiColor)))
}

func (r *Router) handleModeDisable(ctx context.Context, chat, replyToken string) {
	if err := r.cfg.Sessions.SetEngineMode(ctx, chat, false); err != nil {
		r.logger.Printf("❌ Disabling engine mode for %s: %v", chat, err)
		r.send(ctx, chat, replyToken, messaging.NewText("❌ 關閉對弈模式失敗，請稍後再試。"))
		return
	}
	r.send(ctx, chat, replyToken, messaging.NewText(
		"✅ 已關閉 AI 對弈模式！\n\n現在恢復為一般對弈模式（一人一手棋）。"))
}

// modeStatusText renders the mode card. In engine mode the side to move is
// presented as the engine's: users ask for status while the engine is
// thinking, right after their own stone flipped the turn.
func modeStatusText(st session.State) string {
	if st.EngineOpponentMode {
		aiColor, userColor := "黑", "白"
		if st.CurrentTurn == session.TurnWhite {
			aiColor, userColor = "白", "黑"
		}
		return fmt.Sprintf(`📊 目前模式：AI 對弈模式

您執%s，AI 執%s。

🤖 AI 對弈模式：
• 您下完一手後，AI 會自動思考並下下一手
• 適合與 AI 對戰練習

🆓 一般對弈模式：
• 一人一手棋，輪流下棋
• 適合與朋友對戰或自己練習

💡 切換模式：
• 輸入「對弈 ai」開啟 AI 對弈模式（需先認證）
• 輸入「對弈 free」切換為一般對弈模式`, userColor, aiColor)
	}

	return `📊 目前模式：一般對弈模式

🆓 一般對弈模式：
• 一人一手棋，輪流下棋
• 適合與朋友對戰或自己練習

🤖 AI 對弈模式：
• 您下完一手後，AI 會自動思考並下下一手
• 適合與 AI 對戰練習
• 需先使用「auth <token>」進行認證

💡 切換模式：
• 輸入「對弈 ai」開啟 AI 對弈模式（需先認證）
• 輸入「對弈 free」切換為一般對弈模式`
}

// ============================================================================
// FILE UPLOADS
// ============================================================================

// handleFile stores an uploaded game record under the chat's reviews
// prefix. Files without the record extension are ignored without comment;
// anything else would have the bot reacting to every photo in a group.
func (r *Router) handleFile(ctx context.Context, ev Event, chat string) {
	name := ev.Message.FileName
	if name == "" {
		name = "game" + storage.RecordExt
	}
	if !strings.HasSuffix(strings.ToLower(name), storage.RecordExt) {
		return
	}

	data, err := r.cfg.Messenger.Content(ctx, ev.Message.ID)
	if err != nil {
		r.logger.Printf("❌ Upload content %s for %s: %v", ev.Message.ID, chat, err)
		r.send(ctx, chat, ev.ReplyToken, messaging.NewText(fmt.Sprintf("❌ 儲存棋譜時發生錯誤：%s", err)))
		return
	}

	base := name[:len(name)-len(storage.RecordExt)]
	path := storage.ReviewUploadPath(chat, base, time.Now())
	err = r.cfg.Store.Put(ctx, path, data, storage.PutOptions{
		ContentType:  storage.ContentTypeRecord,
		CacheControl: storage.CacheMutable,
	})
	if err != nil {
		r.logger.Printf("❌ Upload store %s for %s: %v", path, chat, err)
		r.send(ctx, chat, ev.ReplyToken, messaging.NewText(fmt.Sprintf("❌ 儲存棋譜時發生錯誤：%s", err)))
		return
	}

	r.logger.Printf("📁 Stored upload %s for %s", path, chat)
	r.send(ctx, chat, ev.ReplyToken, messaging.NewText(fmt.Sprintf(
		"✅ 棋譜已保存！\n\n📁 檔案: %s\n\n棋譜已保存到伺服器，後續可執行 \"覆盤\" 或 \"review\" 指令進行分析...", name)))
}

// ============================================================================
// HELP
// ============================================================================

func (r *Router) helpText() string {
	t := r.cfg.Tuning
	return fmt.Sprintf(`歡迎使用圍棋 Line Bot！

📋 指令列表：
• help / 幫助 / 說明 - 顯示此說明

🎮 對局功能：
• 輸入座標（如 D4, Q16）- 落子並顯示棋盤
• 悔棋 / undo - 撤銷上一步
• 讀取 / load - 從存檔恢復當前遊戲
• 讀取 game_1234567890 / load game_1234567890 - 讀取指定 game_id 的棋譜
• 讀取 game_1234567890 10 / load game_1234567890 10 - 讀取指定 game_id 的前 N 手，並創建新對局
• 重置 / reset - 重置棋盤，開始新遊戲（會保存當前棋譜）
• 形勢 / 形式 / evaluation - 顯示當前盤面領地分布與目數差距

🔐 認證功能：
• auth <token> / 認證 <token> - 進行認證以使用 AI 對弈、覆盤與形勢判斷功能

🤖 AI 對弈功能：
• 對弈 / vs - 查看目前對弈模式狀態
• 對弈 ai / vs ai - 開啟 AI 對弈模式（與 AI 對戰）
• 對弈 free / vs free - 關閉 AI 對弈模式（恢復一般對弈模式）

📊 覆盤分析功能：
• 覆盤 / review - 對最新上傳的棋譜執行 KataGo 覆盤分析

覆盤使用流程：
1️⃣ 上傳棋譜檔案（%s）
2️⃣ 輸入「覆盤」開始分析
3️⃣ 等待約 %d 分鐘獲得分析結果

覆盤分析結果包含：
• 🗺️ 全盤手順圖 - 顯示整局棋的所有手順
• 📈 勝率變化圖 - 顯示黑方勝率隨手數的變化曲線
• 🎬 關鍵手數 GIF 動畫 - 勝率差距最大的前 %d 手動態演示
• 💬 AI 評論 - 針對關鍵手數的評論

技術規格：
• 分析引擎：KataGo AI（visits=%d）
• 評論生成：AI 評論生成約 1 分鐘

注意事項：
• 覆盤功能每次消耗 4 個推播訊息 × 群組人數，每月訊息上限為 200 則，請注意使用頻率，超出上限將無法使用覆盤功能`,
		storage.RecordExt, t.ReviewETAMinutes, t.KeyMoveCount, t.ReviewMaxVisits)
}
