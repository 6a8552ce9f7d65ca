package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tengenlabs/tengen/internal/liveplay"
	"github.com/tengenlabs/tengen/internal/review"
)

type reviewRecorder struct {
	calls chan review.Callback
}

func (r *reviewRecorder) HandleCallback(ctx context.Context, cb review.Callback) error {
	r.calls <- cb
	return nil
}

type moveRecorder struct {
	calls chan liveplay.GenMoveCallback
}

func (m *moveRecorder) HandleGenMove(ctx context.Context, cb liveplay.GenMoveCallback) error {
	m.calls <- cb
	return nil
}

func waitCall[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("callback never reached the completer")
		var zero T
		return zero
	}
}

func TestReviewCallbackAcksThenDelegates(t *testing.T) {
	completer := &reviewRecorder{calls: make(chan review.Callback, 1)}
	h := ReviewCallback(completer, time.Minute)

	body := `{
		"task_id": "task-7",
		"status": "success",
		"target_id": "U1",
		"result_paths": {"json_gcs_path": "gs://tengen-test/target/U1/reviews/out.json"},
		"move_stats": [
			{"move": 1, "color": "B", "played": "Q16", "winrate_before": 50.0, "winrate_after": 48.5, "score_loss": 0.8}
		]
	}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/callback/review", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var ack map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, "received", ack["status"])
	assert.Equal(t, "task-7", ack["task_id"])

	cb := waitCall(t, completer.calls)
	assert.Equal(t, "task-7", cb.TaskID)
	assert.Equal(t, "success", cb.Status)
	assert.Equal(t, "U1", cb.TargetID)
	assert.Equal(t, "gs://tengen-test/target/U1/reviews/out.json", cb.ResultPaths.JSONGCSPath)
	require.Len(t, cb.MoveStats, 1)
	assert.Equal(t, "Q16", cb.MoveStats[0].Played)
}

func TestReviewCallbackRequiresCoreFields(t *testing.T) {
	completer := &reviewRecorder{calls: make(chan review.Callback, 1)}
	h := ReviewCallback(completer, time.Minute)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/callback/review",
		strings.NewReader(`{"task_id": "task-7", "status": "success"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing required fields")
	assert.Empty(t, completer.calls)
}

func TestReviewCallbackRejectsBadJSON(t *testing.T) {
	completer := &reviewRecorder{calls: make(chan review.Callback, 1)}
	h := ReviewCallback(completer, time.Minute)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/callback/review", strings.NewReader("{{{")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, completer.calls)
}

func TestGenMoveCallbackAcksThenDelegates(t *testing.T) {
	completer := &moveRecorder{calls: make(chan liveplay.GenMoveCallback, 1)}
	h := GenMoveCallback(completer, time.Minute)

	body := `{
		"status": "success",
		"target_id": "U1",
		"move": "Q16",
		"current_turn": 2,
		"reply_token": "rtok",
		"user_board_image_url": "https://storage.example.com/board.png"
	}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/callback/get_ai_next_move", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var ack map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, "received", ack["status"])
	assert.Equal(t, "U1", ack["target_id"])

	cb := waitCall(t, completer.calls)
	assert.Equal(t, "Q16", cb.Move)
	assert.Equal(t, 2, cb.CurrentTurn)
	assert.Equal(t, "rtok", cb.ReplyToken)
	assert.Equal(t, "https://storage.example.com/board.png", cb.UserBoardImageURL)
}

func TestGenMoveCallbackRequiresCoreFields(t *testing.T) {
	completer := &moveRecorder{calls: make(chan liveplay.GenMoveCallback, 1)}
	h := GenMoveCallback(completer, time.Minute)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/callback/get_ai_next_move",
		strings.NewReader(`{"move": "Q16"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing required fields")
	assert.Empty(t, completer.calls)
}

func TestGenMoveCallbackAcceptsFailureReports(t *testing.T) {
	// A failed engine run still gets acknowledged; the completer decides
	// what the user sees.
	completer := &moveRecorder{calls: make(chan liveplay.GenMoveCallback, 1)}
	h := GenMoveCallback(completer, time.Minute)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/callback/get_ai_next_move",
		strings.NewReader(`{"status": "failed", "target_id": "U1", "error": "GPU node gone"}`)))

	require.Equal(t, http.StatusOK, rec.Code)

	cb := waitCall(t, completer.calls)
	assert.Equal(t, "failed", cb.Status)
	assert.Equal(t, "GPU node gone", cb.Error)
}
