// Package review runs the post-game analysis pipeline: trigger an engine
// job for the latest uploaded record and, once the engine posts back,
// persist the stats, pick the key moves, commission LLM commentary, render
// the media set, and deliver everything to the chat.
//
// Each task walks a fixed state machine; every transition goes out as a
// CloudEvent and the in-process stages feed the Prometheus stage gauges.
package review

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tengenlabs/tengen/internal/config"
	"github.com/tengenlabs/tengen/internal/dispatch"
	"github.com/tengenlabs/tengen/internal/engine"
	"github.com/tengenlabs/tengen/internal/events"
	"github.com/tengenlabs/tengen/internal/llm"
	"github.com/tengenlabs/tengen/internal/messaging"
	"github.com/tengenlabs/tengen/internal/monitoring"
	"github.com/tengenlabs/tengen/internal/storage"
)

// Review task states, in pipeline order.
const (
	StateReceived          = "RECEIVED"
	StateQueued            = "QUEUED"
	StateEngineRunning     = "ENGINE_RUNNING"
	StateEngineDone        = "ENGINE_DONE"
	StateLLMRunning        = "LLM_RUNNING"
	StateLLMDone           = "LLM_DONE"
	StateMediaSynthesizing = "MEDIA_SYNTHESIZING"
	StateDelivering        = "DELIVERING"
	StateComplete          = "COMPLETE"
	StateFailNotify        = "FAIL_NOTIFY"
)

const eventSource = "/review"

// taskIDPattern captures the upload timestamp a review trigger reuses as
// the task id.
var taskIDPattern = regexp.MustCompile(`_(\d+)\.rec$`)

// Config wires the orchestrator's dependencies.
type Config struct {
	Store      storage.Store
	Messenger  *messaging.Client
	LLM        *llm.Client
	Dispatcher dispatch.Dispatcher

	// Events and Metrics are optional observability sinks.
	Events  events.EventEmitter
	Metrics *monitoring.Metrics

	// CallbackBaseURL is this service's public base URL; the engine posts
	// results to {base}/callback/review.
	CallbackBaseURL string

	Tuning config.Tuning
}

// Orchestrator drives review tasks from trigger to delivery.
type Orchestrator struct {
	cfg    Config
	logger *log.Logger
}

// NewOrchestrator creates a review orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		logger: log.New(log.Writer(), "[Review] ", log.LstdFlags),
	}
}

// Trigger starts a review of the chat's most recent uploaded record: it
// acknowledges the user with an ETA and hands the engine job to the
// dispatcher. The heavy lifting happens later, on the callback.
func (o *Orchestrator) Trigger(ctx context.Context, chat, replyToken string) error {
	latest, err := o.cfg.Store.LatestByCreation(ctx, storage.ReviewsPrefix(chat), storage.RecordExt)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			o.send(ctx, chat, replyToken, "❌ 找不到棋譜，請先上傳棋譜。")
			return nil
		}
		o.send(ctx, chat, replyToken, "❌ 讀取棋譜清單時發生錯誤，請稍後再試。")
		return fmt.Errorf("list records for %s: %w", chat, err)
	}

	task := taskIDFromPath(latest.Path)
	o.transition(task, chat, StateReceived)
	o.logger.Printf("🚀 Review task %s for %s: %s", task, chat, latest.Path)

	eta := fmt.Sprintf("✅ 開始對棋譜：%s 進行覆盤分析，完成大約需要 %d 分鐘...，請稍後再回來查看分析結果。",
		recordDisplayName(latest.Path), o.cfg.Tuning.ReviewETAMinutes)
	o.send(ctx, chat, replyToken, eta)

	job := engine.ReviewJob{
		TaskID:      task,
		RecordPath:  latest.Path,
		Bucket:      o.cfg.Store.Bucket(),
		TargetID:    chat,
		CallbackURL: o.cfg.CallbackBaseURL + "/callback/review",
		MaxVisits:   o.cfg.Tuning.ReviewMaxVisits,
	}
	if err := o.cfg.Dispatcher.DispatchReview(ctx, job); err != nil {
		o.failNotify(ctx, task, chat, "dispatch_failed",
			fmt.Sprintf("❌ 啟動覆盤分析時發生錯誤：%s", err))
		return fmt.Errorf("dispatch review %s: %w", task, err)
	}

	o.transition(task, chat, StateQueued)
	o.transition(task, chat, StateEngineRunning)
	return nil
}

// HandleCallback processes an engine completion: stats in, messages out.
// It runs for minutes; the caller decides how long the HTTP response can
// wait on it.
func (o *Orchestrator) HandleCallback(ctx context.Context, cb Callback) error {
	task, chat := cb.TaskID, cb.TargetID

	if cb.Status != "success" {
		reason := cb.Error
		if reason == "" {
			reason = "未知錯誤"
		}
		o.logger.Printf("❌ Review task %s failed at the engine: %s", task, reason)
		o.failNotify(ctx, task, chat, "engine_failed", "❌ KataGo 覆盤失敗："+reason)
		return nil
	}

	stats := o.resolveStats(ctx, cb)
	if len(stats) == 0 {
		o.failNotify(ctx, task, chat, "no_stats", "❌ 覆盤完成但無法取得結果數據")
		return nil
	}
	sortStats(stats)
	o.transition(task, chat, StateEngineDone)

	o.persistStats(ctx, chat, task, stats)

	keyMoves := KeyMoves(stats, o.cfg.Tuning.KeyMoveCount)
	o.send(ctx, chat, "", fmt.Sprintf(
		"✅ KataGo 全盤覆盤完成！\n\n📊 覆盤結果：\n• 總手數：%d\n\n🤖 接續使用 AI 分析 %d 筆關鍵手數並生成評論，大約需要 1 分鐘...，請稍後再回來查看評論結果。",
		playedCount(stats), len(keyMoves)))

	leave := o.stage(task, chat, StateLLMRunning)
	comments, err := o.cfg.LLM.Commentary(ctx, keyMoves)
	leave()
	if err != nil {
		o.failNotify(ctx, task, chat, "llm_failed", "❌ AI 評論生成失敗，請稍後再試。")
		return fmt.Errorf("commentary for task %s: %w", task, err)
	}
	o.transition(task, chat, StateLLMDone)

	leave = o.stage(task, chat, StateMediaSynthesizing)
	media := o.buildMedia(ctx, chat, task, stats, keyMoves)
	leave()

	leave = o.stage(task, chat, StateDelivering)
	err = o.deliver(ctx, chat, keyMoves, llm.CommentMap(comments), media)
	leave()
	if err != nil {
		o.recordOutcome("delivery_failed")
		return fmt.Errorf("deliver review %s: %w", task, err)
	}

	o.transition(task, chat, StateComplete)
	o.recordOutcome("success")
	o.logger.Printf("✅ Review task %s delivered to %s", task, chat)
	return nil
}

// resolveStats prefers inline stats and falls back to the result blob.
func (o *Orchestrator) resolveStats(ctx context.Context, cb Callback) []engine.MoveStat {
	if len(cb.MoveStats) > 0 {
		return cb.MoveStats
	}
	blobPath := storage.StripGSPrefix(cb.ResultPaths.JSONGCSPath)
	if blobPath == "" {
		return nil
	}
	data, err := o.cfg.Store.Get(ctx, blobPath)
	if err != nil {
		o.logger.Printf("❌ Stats blob %s unavailable: %v", blobPath, err)
		return nil
	}
	var list StatList
	if err := list.UnmarshalJSON(data); err != nil {
		o.logger.Printf("❌ Stats blob %s undecodable: %v", blobPath, err)
		return nil
	}
	return list
}

// persistStats writes the canonical stats document for later reloads.
// A write failure degrades to a log line; the review still goes out.
func (o *Orchestrator) persistStats(ctx context.Context, chat, task string, stats []engine.MoveStat) {
	doc, err := marshalStats(stats)
	if err != nil {
		o.logger.Printf("⚠️ Stats for task %s unmarshalable: %v", task, err)
		return
	}
	p := storage.ReviewJSONPath(chat, task)
	err = o.cfg.Store.Put(ctx, p, doc, storage.PutOptions{
		ContentType:  storage.ContentTypeJSON,
		CacheControl: storage.CacheMutable,
	})
	if err != nil {
		o.logger.Printf("⚠️ Stats for task %s not persisted: %v", task, err)
	}
}

func (o *Orchestrator) failNotify(ctx context.Context, task, chat, outcome, text string) {
	o.transition(task, chat, StateFailNotify)
	o.recordOutcome(outcome)
	o.send(ctx, chat, "", text)
}

// send pushes one text message, logging instead of failing: user-facing
// notices never abort the pipeline.
func (o *Orchestrator) send(ctx context.Context, chat, replyToken, text string) {
	if _, err := o.cfg.Messenger.Send(ctx, chat, replyToken, []messaging.Message{messaging.NewText(text)}); err != nil {
		o.logger.Printf("❌ Message to %s undeliverable: %v", chat, err)
	}
}

// transition emits the lifecycle event for a state the task passed.
func (o *Orchestrator) transition(task, chat, state string) {
	if o.cfg.Events == nil {
		return
	}
	o.cfg.Events.Emit("tengen.review."+strings.ToLower(state), eventSource, chat,
		map[string]interface{}{"task_id": task, "state": state})
}

// stage is transition plus the Prometheus stage gauge; the returned func
// closes the stage and records its dwell time.
func (o *Orchestrator) stage(task, chat, state string) func() {
	o.transition(task, chat, state)
	if o.cfg.Metrics == nil {
		return func() {}
	}
	o.cfg.Metrics.EnterReviewStage(state)
	start := time.Now()
	return func() {
		o.cfg.Metrics.LeaveReviewStage(state, time.Since(start).Seconds())
	}
}

func (o *Orchestrator) recordOutcome(outcome string) {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.RecordReviewOutcome(outcome)
	}
}

// taskIDFromPath reuses the upload timestamp as the task id, or mints a
// UUID for records uploaded through other means.
func taskIDFromPath(p string) string {
	if m := taskIDPattern.FindStringSubmatch(path.Base(p)); m != nil {
		return m[1]
	}
	return uuid.NewString()
}

// recordDisplayName strips the upload timestamp and extension for the
// acknowledgement message.
func recordDisplayName(p string) string {
	base := path.Base(p)
	if name := taskIDPattern.ReplaceAllString(base, ""); name != base {
		return name
	}
	return strings.TrimSuffix(base, storage.RecordExt)
}

func playedCount(stats []engine.MoveStat) int {
	n := 0
	for _, s := range stats {
		if s.Played != "" {
			n++
		}
	}
	return n
}
