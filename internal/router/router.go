// Package router turns webhook events into game commands. It owns the
// envelope schema, the group-chat mention gate, and the bilingual command
// grammar; the actual game work happens in the liveplay and review
// handlers it fronts.
package router

import (
	"context"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/tengenlabs/tengen/internal/config"
	"github.com/tengenlabs/tengen/internal/infra"
	"github.com/tengenlabs/tengen/internal/messaging"
	"github.com/tengenlabs/tengen/internal/monitoring"
	"github.com/tengenlabs/tengen/internal/session"
	"github.com/tengenlabs/tengen/internal/storage"
)

// Envelope is the webhook body: a batch of events for one bot.
type Envelope struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event is one webhook event. Only message events carry a Message.
type Event struct {
	Type       string   `json:"type"`
	ReplyToken string   `json:"replyToken"`
	Source     Source   `json:"source"`
	Message    *Message `json:"message"`
}

// Source identifies where an event came from: a 1:1 chat, a group, or a
// room.
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
	RoomID  string `json:"roomId"`
}

// Target returns the chat id state is keyed by: the group or room when
// present, the user otherwise.
func (s Source) Target() string {
	if s.GroupID != "" {
		return s.GroupID
	}
	if s.RoomID != "" {
		return s.RoomID
	}
	return s.UserID
}

// Message is the message part of an event. Text messages carry Text and
// possibly a Mention; file messages carry ID and FileName.
type Message struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Text     string   `json:"text"`
	FileName string   `json:"fileName"`
	Mention  *Mention `json:"mention"`
}

// Mention lists who a text message mentions.
type Mention struct {
	Mentionees []Mentionee `json:"mentionees"`
}

// Mentionee is one mention span. Index and Length are measured in
// characters of the message text.
type Mentionee struct {
	Index  int    `json:"index"`
	Length int    `json:"length"`
	UserID string `json:"userId"`
	IsSelf bool   `json:"isSelf"`
}

// GamePlay is the live-board surface the router drives.
type GamePlay interface {
	Move(ctx context.Context, chat, replyToken, coordText string) error
	Undo(ctx context.Context, chat, replyToken string) error
	Load(ctx context.Context, chat, replyToken, gameID string) error
	LoadTruncated(ctx context.Context, chat, replyToken, sourceGameID string, n int) error
	Reset(ctx context.Context, chat, replyToken string) error
	Evaluate(ctx context.Context, chat, replyToken string) error
}

// Reviewer starts deep post-game reviews.
type Reviewer interface {
	Trigger(ctx context.Context, chat, replyToken string) error
}

// Config wires the router's collaborators.
type Config struct {
	Messenger *messaging.Client
	Sessions  *session.Store

	// Store holds game records and uploads; AuthStore holds per-chat auth
	// grants and may point at a separate bucket.
	Store     storage.Store
	AuthStore storage.Store

	LivePlay GamePlay
	Review   Reviewer

	// Identity caches the bot's own name and user id for the mention gate.
	Identity *infra.IdentityCache

	// Locks serializes events per chat when enabled; nil is a no-op.
	Locks *infra.ChatLocker

	// Metrics is optional.
	Metrics *monitoring.Metrics

	// GlobalAuthToken gates review, evaluation, and the engine opponent.
	// Empty leaves those features open.
	GlobalAuthToken string

	Tuning config.Tuning
}

// Router dispatches webhook events.
type Router struct {
	cfg    Config
	logger *log.Logger
}

// New creates a router.
func New(cfg Config) *Router {
	return &Router{
		cfg:    cfg,
		logger: log.New(log.Writer(), "[Router] ", log.LstdFlags),
	}
}

// HandleEvent processes one webhook event to completion. Errors are
// answered in-chat where a user is waiting and logged otherwise; the
// webhook response never depends on them.
func (r *Router) HandleEvent(ctx context.Context, ev Event) {
	if ev.Type != "message" || ev.Message == nil {
		r.recordWebhookEvent("other")
		return
	}

	chat := ev.Source.Target()
	if chat == "" {
		r.recordWebhookEvent("other")
		r.logger.Printf("⚠️ Message event without a source id, skipping")
		return
	}

	release, err := r.cfg.Locks.Acquire(ctx, chat)
	if err != nil {
		r.logger.Printf("⚠️ Chat lock for %s not acquired: %v", chat, err)
		return
	}
	defer release()

	switch ev.Message.Type {
	case "text":
		r.recordWebhookEvent("text")
		r.handleText(ctx, ev, chat)
	case "file":
		r.recordWebhookEvent("file")
		r.handleFile(ctx, ev, chat)
	default:
		r.recordWebhookEvent("other")
	}
}

func (r *Router) handleText(ctx context.Context, ev Event, chat string) {
	text := strings.TrimSpace(ev.Message.Text)

	if ev.Source.Type == "group" || ev.Source.Type == "room" {
		cleaned, addressed := r.addressedText(ctx, text, ev.Message.Mention)
		if !addressed {
			return
		}
		text = cleaned
	}

	r.dispatch(ctx, chat, ev.ReplyToken, ev.Source.Type, text)
}

// addressedText decides whether a group message is for the bot and strips
// the mention from it. Desktop clients send a literal "@DisplayName cmd"
// prefix; mobile clients attach a mention payload instead.
func (r *Router) addressedText(ctx context.Context, text string, mention *Mention) (string, bool) {
	id := r.identity(ctx)

	if id != nil && id.DisplayName != "" {
		prefix := regexp.MustCompile(`(?i)^@` + regexp.QuoteMeta(id.DisplayName) + `\s+(.+)$`)
		if m := prefix.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}

	if mention == nil || len(mention.Mentionees) == 0 {
		return "", false
	}
	mentioned := false
	for _, m := range mention.Mentionees {
		if m.IsSelf || (id != nil && id.UserID != "" && m.UserID == id.UserID) {
			mentioned = true
			break
		}
	}
	if !mentioned {
		return "", false
	}
	return stripMentions(text, mention.Mentionees), true
}

// stripMentions removes the mention spans from text. Spans are removed
// from the highest index down so the earlier offsets stay valid; offsets
// count characters, matching the platform's indexing.
func stripMentions(text string, spans []Mentionee) string {
	ordered := append([]Mentionee(nil), spans...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index > ordered[j].Index })

	runes := []rune(text)
	for _, s := range ordered {
		if s.Index < 0 || s.Index >= len(runes) || s.Length <= 0 {
			continue
		}
		end := s.Index + s.Length
		if end > len(runes) {
			end = len(runes)
		}
		runes = append(runes[:s.Index], runes[end:]...)
	}
	return strings.TrimSpace(string(runes))
}

// identity returns the bot identity, fetching and caching it on first use.
func (r *Router) identity(ctx context.Context) *infra.BotIdentity {
	if id, ok := r.cfg.Identity.Get(ctx); ok {
		return id
	}

	info, err := r.cfg.Messenger.BotInfo(ctx)
	if err != nil {
		r.logger.Printf("⚠️ Bot info lookup failed, mention gate degraded: %v", err)
		return nil
	}
	id := infra.BotIdentity{UserID: info.UserID, DisplayName: info.DisplayName}
	r.cfg.Identity.Put(ctx, id)
	r.logger.Printf("✅ Bot identity cached: %s (%s)", id.DisplayName, id.UserID)
	return &id
}

func (r *Router) send(ctx context.Context, chat, replyToken string, msgs ...messaging.Message) {
	if _, err := r.cfg.Messenger.Send(ctx, chat, replyToken, msgs); err != nil {
		r.logger.Printf("❌ Message to %s undeliverable: %v", chat, err)
	}
}

func (r *Router) recordWebhookEvent(kind string) {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordWebhookEvent(kind)
	}
}

func (r *Router) recordCommand(name string) {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordCommand(name)
	}
}
