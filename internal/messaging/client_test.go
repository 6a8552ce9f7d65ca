package messaging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturedCall records one request the fake platform received.
type capturedCall struct {
	Path string
	Auth string
	Body map[string]interface{}
}

// fakePlatform stands in for the messaging API and records every call.
type fakePlatform struct {
	mu    sync.Mutex
	calls []capturedCall

	// replyStatus/pushStatus override the response code when non-zero
	replyStatus int
	pushStatus  func(callIndex int) int
}

func (f *fakePlatform) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var parsed map[string]interface{}
		_ = json.Unmarshal(body, &parsed)

		f.mu.Lock()
		idx := len(f.calls)
		f.calls = append(f.calls, capturedCall{
			Path: r.URL.Path,
			Auth: r.Header.Get("Authorization"),
			Body: parsed,
		})
		f.mu.Unlock()

		switch {
		case strings.HasSuffix(r.URL.Path, "/reply") && f.replyStatus != 0:
			w.WriteHeader(f.replyStatus)
		case strings.HasSuffix(r.URL.Path, "/push") && f.pushStatus != nil:
			w.WriteHeader(f.pushStatus(idx))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}
}

func (f *fakePlatform) captured() []capturedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]capturedCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func newTestClient(t *testing.T, fake *fakePlatform) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return NewClient(Config{
		ChannelToken:  "test-token",
		APIBase:       srv.URL,
		DataBase:      srv.URL,
		CarouselDelay: time.Millisecond,
		TextDelay:     time.Millisecond,
	})
}

// ============================================================================
// SEND: REPLY PREFERENCE AND PUSH FALLBACK
// ============================================================================

func TestSendPrefersReplyToken(t *testing.T) {
	fake := &fakePlatform{}
	client := newTestClient(t, fake)

	used, err := client.Send(context.Background(), "U1", "rtoken", []Message{NewText("hello")})
	require.NoError(t, err)
	assert.True(t, used)

	calls := fake.captured()
	require.Len(t, calls, 1)
	assert.Equal(t, "/v2/bot/message/reply", calls[0].Path)
	assert.Equal(t, "Bearer test-token", calls[0].Auth)
	assert.Equal(t, "rtoken", calls[0].Body["replyToken"])

	msgs := calls[0].Body["messages"].([]interface{})
	require.Len(t, msgs, 1)
	first := msgs[0].(map[string]interface{})
	assert.Equal(t, "text", first["type"])
	assert.Equal(t, "hello", first["text"])
}

func TestSendFallsBackToPushOnSpentToken(t *testing.T) {
	fake := &fakePlatform{replyStatus: http.StatusBadRequest}
	client := newTestClient(t, fake)

	used, err := client.Send(context.Background(), "U1", "stale", []Message{NewText("hi")})
	require.NoError(t, err)
	assert.False(t, used)

	calls := fake.captured()
	require.Len(t, calls, 2)
	assert.Equal(t, "/v2/bot/message/reply", calls[0].Path)
	assert.Equal(t, "/v2/bot/message/push", calls[1].Path)
	assert.Equal(t, "U1", calls[1].Body["to"])
}

func TestSendPropagatesHardReplyErrors(t *testing.T) {
	fake := &fakePlatform{replyStatus: http.StatusInternalServerError}
	client := newTestClient(t, fake)

	_, err := client.Send(context.Background(), "U1", "rtoken", []Message{NewText("hi")})
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)

	// No push attempt on a hard error
	calls := fake.captured()
	assert.Len(t, calls, 1)
}

func TestSendChunksLongSequences(t *testing.T) {
	fake := &fakePlatform{}
	client := newTestClient(t, fake)

	msgs := make([]Message, 7)
	for i := range msgs {
		msgs[i] = NewText("m")
	}

	used, err := client.Send(context.Background(), "U1", "rtoken", msgs)
	require.NoError(t, err)
	assert.True(t, used)

	calls := fake.captured()
	require.Len(t, calls, 2)

	// Only the first chunk may consume the reply token
	assert.Equal(t, "/v2/bot/message/reply", calls[0].Path)
	assert.Len(t, calls[0].Body["messages"].([]interface{}), 5)
	assert.Equal(t, "/v2/bot/message/push", calls[1].Path)
	assert.Len(t, calls[1].Body["messages"].([]interface{}), 2)
}

func TestSendWithoutTokenPushes(t *testing.T) {
	fake := &fakePlatform{}
	client := newTestClient(t, fake)

	used, err := client.Send(context.Background(), "G1", "", []Message{NewText("hi")})
	require.NoError(t, err)
	assert.False(t, used)

	calls := fake.captured()
	require.Len(t, calls, 1)
	assert.Equal(t, "/v2/bot/message/push", calls[0].Path)
}

// ============================================================================
// CAROUSEL AND PACED DELIVERY
// ============================================================================

func TestSendCarouselBubblesBatches(t *testing.T) {
	fake := &fakePlatform{}
	client := newTestClient(t, fake)

	bubbles := make([]json.RawMessage, 12)
	for i := range bubbles {
		bubbles[i] = json.RawMessage(`{"type":"bubble"}`)
	}

	err := client.SendCarouselBubbles(context.Background(), "G1", bubbles, KeyMoveAltText)
	require.NoError(t, err)

	calls := fake.captured()
	require.Len(t, calls, 2)

	firstMsgs := calls[0].Body["messages"].([]interface{})
	require.Len(t, firstMsgs, 1)
	first := firstMsgs[0].(map[string]interface{})
	assert.Equal(t, "flex", first["type"])
	assert.Equal(t, "關鍵手數分析（1-10/12）", first["altText"])
	contents := first["contents"].(map[string]interface{})
	assert.Equal(t, "carousel", contents["type"])
	assert.Len(t, contents["contents"].([]interface{}), 10)

	secondMsgs := calls[1].Body["messages"].([]interface{})
	second := secondMsgs[0].(map[string]interface{})
	assert.Equal(t, "關鍵手數分析（11-12/12）", second["altText"])
	assert.Len(t, second["contents"].(map[string]interface{})["contents"].([]interface{}), 2)
}

func TestSendPacedTextsContinuesOnFailure(t *testing.T) {
	fake := &fakePlatform{
		pushStatus: func(i int) int {
			if i == 1 {
				return http.StatusInternalServerError
			}
			return http.StatusOK
		},
	}
	client := newTestClient(t, fake)

	err := client.SendPacedTexts(context.Background(), "G1", []string{"a", "b", "c"})
	require.NoError(t, err)

	// All three attempted despite the middle one failing
	calls := fake.captured()
	assert.Len(t, calls, 3)
}

// ============================================================================
// CONTENT AND BOT INFO
// ============================================================================

func TestContentDownloadsBlob(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("(;GM[1]SZ[19])"))
	}))
	defer srv.Close()

	client := NewClient(Config{ChannelToken: "tok", APIBase: srv.URL, DataBase: srv.URL})
	data, err := client.Content(context.Background(), "msg123")
	require.NoError(t, err)

	assert.Equal(t, "/v2/bot/message/msg123/content", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "(;GM[1]SZ[19])", string(data))
}

func TestBotInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/bot/info", r.URL.Path)
		_, _ = w.Write([]byte(`{"userId":"Ubot","basicId":"@bot","displayName":"TengenBot"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{ChannelToken: "tok", APIBase: srv.URL})
	info, err := client.BotInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ubot", info.UserID)
	assert.Equal(t, "TengenBot", info.DisplayName)
}

// ============================================================================
// MESSAGE AND FLEX BUILDERS
// ============================================================================

func TestIsValidHTTPSURL(t *testing.T) {
	assert.True(t, IsValidHTTPSURL("https://storage.googleapis.com/b/img.png"))
	assert.False(t, IsValidHTTPSURL("http://storage.googleapis.com/b/img.png"))
	assert.False(t, IsValidHTTPSURL("https://"))
	assert.False(t, IsValidHTTPSURL("not a url"))
	assert.False(t, IsValidHTTPSURL(""))
}

func TestEncodeURLPath(t *testing.T) {
	assert.Equal(t, "a/b%20c/d.gif", EncodeURLPath("a/b c/d.gif"))
}

func TestKeyMoveBubbleBuild(t *testing.T) {
	before, after, loss := 62.3, 48.1, 3.5
	bubble := KeyMoveBubble{
		MoveNumber:    24,
		Color:         "B",
		Played:        "Q16",
		Comment:       "這手棋過於保守。",
		GIFURL:        "https://cdn.example.com/move_24.gif",
		WinrateBefore: &before,
		WinrateAfter:  &after,
		ScoreLoss:     &loss,
	}

	raw, err := bubble.Build()
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, "bubble", parsed["type"])

	text := string(raw)
	assert.Contains(t, text, "📍 第 24 手（黑）")
	assert.Contains(t, text, "落子位置：Q16")
	assert.Contains(t, text, "勝率變化：62.3% → 48.1% (↓14.2%)")
	assert.Contains(t, text, "目差損失：3.5 目")
	assert.Contains(t, text, "觀看動畫")
	assert.Contains(t, text, "🎬 觀看動態棋譜")

	hero := parsed["hero"].(map[string]interface{})
	assert.Equal(t, "https://cdn.example.com/move_24.gif", hero["url"])
	assert.Equal(t, "1:1", hero["aspectRatio"])
}

func TestKeyMoveBubbleWinrateGain(t *testing.T) {
	before, after := 40.0, 55.5
	bubble := KeyMoveBubble{
		MoveNumber:    7,
		Color:         "W",
		Played:        "D4",
		Comment:       "好手。",
		GIFURL:        "https://cdn.example.com/move_7.gif",
		WinrateBefore: &before,
		WinrateAfter:  &after,
	}

	raw, err := bubble.Build()
	require.NoError(t, err)

	text := string(raw)
	assert.Contains(t, text, "第 7 手（白）")
	assert.Contains(t, text, "(↑15.5%)")
	assert.Contains(t, text, "#4ECDC4")
	assert.NotContains(t, text, "目差損失")
}

func TestKeyMoveBubbleTruncatesLongComment(t *testing.T) {
	long := strings.Repeat("棋", 600)
	bubble := KeyMoveBubble{
		MoveNumber: 1,
		Color:      "B",
		Played:     "Q16",
		Comment:    long,
		GIFURL:     "https://cdn.example.com/move_1.gif",
	}

	raw, err := bubble.Build()
	require.NoError(t, err)

	text := string(raw)
	assert.Contains(t, text, strings.Repeat("棋", 500)+"...")
	assert.NotContains(t, text, strings.Repeat("棋", 501))
}

func TestRecordDownloadCard(t *testing.T) {
	flex, err := RecordDownloadCard("https://storage.example.com/game.rec", "game_1700000000")
	require.NoError(t, err)

	assert.Equal(t, "當前棋譜檔案", flex.AltText)
	text := string(flex.Contents)
	assert.Contains(t, text, "📄 當前棋譜檔案")
	assert.Contains(t, text, "Game ID: game_1700000000")
	assert.Contains(t, text, "📥 下載棋譜檔案")
	assert.Contains(t, text, "https://storage.example.com/game.rec")
}
