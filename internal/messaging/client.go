// Package messaging sends chat messages through the bot platform's reply
// and push endpoints. Replies are free, pushes count against the monthly
// quota, so every send prefers the reply token and falls back to push only
// when the token is spent or expired.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/tengenlabs/tengen/internal/circuitbreaker"
	"github.com/tengenlabs/tengen/internal/monitoring"
)

const (
	defaultAPIBase  = "https://api.line.me"
	defaultDataBase = "https://api-data.line.me"
)

// StatusError is a non-2xx answer from the platform. Callers inspect the
// code to tell a spent reply token (400/410) from a real failure.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("platform returned HTTP %d: %s", e.Code, e.Body)
}

// replyTokenSpent reports whether err means the reply token was already
// used or has expired, in which case push is the only way to answer.
func replyTokenSpent(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusBadRequest || se.Code == http.StatusGone
}

// Config holds the messaging client configuration.
type Config struct {
	// ChannelToken authenticates against the platform (required)
	ChannelToken string

	// APIBase and DataBase override the platform endpoints, used by tests
	APIBase  string
	DataBase string

	// CarouselBatch is the bubble count per carousel, capped at the
	// platform maximum (default and max 10)
	CarouselBatch int

	// CarouselDelay is the pause between carousel batches (default 1s)
	CarouselDelay time.Duration

	// TextDelay is the pause between paced text messages (default 500ms)
	TextDelay time.Duration

	// Breaker guards the platform calls when set
	Breaker *circuitbreaker.CircuitBreaker

	// Metrics records per-channel delivery counts when set
	Metrics *monitoring.Metrics
}

// Client talks to the bot platform. Individual calls are capped at 30
// seconds; multi-message deliveries run under the caller's context, with
// the pacing sleeps between calls.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *log.Logger
}

// BotInfo describes the bot account, used to detect mentions of the bot
// in group chats.
type BotInfo struct {
	UserID      string `json:"userId"`
	BasicID     string `json:"basicId"`
	DisplayName string `json:"displayName"`
	PictureURL  string `json:"pictureUrl"`
}

// NewClient creates a messaging client.
func NewClient(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.DataBase == "" {
		cfg.DataBase = defaultDataBase
	}
	if cfg.CarouselBatch <= 0 || cfg.CarouselBatch > MaxBubblesPerCarousel {
		cfg.CarouselBatch = MaxBubblesPerCarousel
	}
	if cfg.CarouselDelay == 0 {
		cfg.CarouselDelay = time.Second
	}
	if cfg.TextDelay == 0 {
		cfg.TextDelay = 500 * time.Millisecond
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.New(log.Writer(), "[Messaging] ", log.LstdFlags),
	}
}

// Send delivers messages to a chat, preferring the reply token. The
// platform caps a single call at five messages, so longer sequences are
// chunked; only the first chunk can consume the token. Returns whether
// the reply token was actually used, so the caller knows it is spent.
func (c *Client) Send(ctx context.Context, target, replyToken string, msgs []Message) (bool, error) {
	if len(msgs) == 0 {
		return false, nil
	}

	usedReply := false
	for start := 0; start < len(msgs); start += MaxMessagesPerCall {
		end := start + MaxMessagesPerCall
		if end > len(msgs) {
			end = len(msgs)
		}
		chunk := msgs[start:end]

		if start == 0 && replyToken != "" {
			err := c.reply(ctx, replyToken, chunk)
			if err == nil {
				c.logger.Printf("↩️ Replied to %s (%d messages)", target, len(chunk))
				usedReply = true
				continue
			}
			if !replyTokenSpent(err) {
				return false, err
			}
			c.logger.Printf("⚠️ Reply token expired or invalid for %s, pushing instead", target)
		}

		if err := c.push(ctx, target, chunk); err != nil {
			return usedReply, err
		}
		c.logger.Printf("📤 Pushed to %s (%d messages)", target, len(chunk))
	}

	return usedReply, nil
}

// SendCarouselBubbles delivers bubbles as carousel flex messages in
// batches of at most ten, pausing between batches so the platform does
// not throttle the burst. altText receives the 1-based range of each
// batch and the total bubble count.
func (c *Client) SendCarouselBubbles(
	ctx context.Context,
	target string,
	bubbles []json.RawMessage,
	altText func(start, end, total int) string,
) error {
	total := len(bubbles)
	for i := 0; i < total; i += c.cfg.CarouselBatch {
		end := i + c.cfg.CarouselBatch
		if end > total {
			end = total
		}
		batch := bubbles[i:end]

		container, err := json.Marshal(map[string]interface{}{
			"type":     "carousel",
			"contents": batch,
		})
		if err != nil {
			return fmt.Errorf("marshal carousel: %w", err)
		}

		flex := NewFlex(altText(i+1, end, total), container)
		if _, err := c.Send(ctx, target, "", []Message{flex}); err != nil {
			return fmt.Errorf("send carousel %d-%d: %w", i+1, end, err)
		}
		c.logger.Printf("📤 Sent carousel batch %d-%d/%d to %s", i+1, end, total, target)

		if end < total {
			if err := sleepCtx(ctx, c.cfg.CarouselDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// SendPacedTexts pushes text messages one by one with a pause between
// them. A failed message is logged and skipped so the rest of the
// sequence still goes out.
func (c *Client) SendPacedTexts(ctx context.Context, target string, texts []string) error {
	for i, text := range texts {
		if _, err := c.Send(ctx, target, "", []Message{NewText(text)}); err != nil {
			c.logger.Printf("❌ Failed to send text %d/%d to %s: %v", i+1, len(texts), target, err)
		}
		if i < len(texts)-1 {
			if err := sleepCtx(ctx, c.cfg.TextDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// Content downloads the binary payload of an uploaded message, such as a
// game record file sent into the chat.
func (c *Client) Content(ctx context.Context, messageID string) ([]byte, error) {
	url := fmt.Sprintf("%s/v2/bot/message/%s/content", c.cfg.DataBase, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.ChannelToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return data, nil
}

// BotInfo fetches the bot's own account info.
func (c *Client) BotInfo(ctx context.Context) (*BotInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBase+"/v2/bot/info", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.ChannelToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bot info request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var info BotInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode bot info: %w", err)
	}
	return &info, nil
}

func (c *Client) reply(ctx context.Context, replyToken string, msgs []Message) error {
	payload := map[string]interface{}{
		"replyToken": replyToken,
		"messages":   msgs,
	}
	err := c.post(ctx, "/v2/bot/message/reply", payload)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordMessage("reply", err)
	}
	return err
}

func (c *Client) push(ctx context.Context, target string, msgs []Message) error {
	payload := map[string]interface{}{
		"to":       target,
		"messages": msgs,
	}
	err := c.post(ctx, "/v2/bot/message/push", payload)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordMessage("push", err)
	}
	return err
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	send := func() (interface{}, error) {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.ChannelToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("platform request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
		}
		return nil, nil
	}

	if c.cfg.Breaker != nil {
		_, err := c.cfg.Breaker.Execute(send)
		return err
	}
	_, err := send()
	return err
}

// sleepCtx pauses without outliving the caller's context.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
