package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/tengenlabs/tengen/internal/liveplay"
	"github.com/tengenlabs/tengen/internal/review"
)

// ReviewCompleter finishes a review once the engine posts its results.
// Satisfied by *review.Orchestrator.
type ReviewCompleter interface {
	HandleCallback(ctx context.Context, cb review.Callback) error
}

// MoveCompleter finishes an engine move round trip. Satisfied by
// *liveplay.Handler.
type MoveCompleter interface {
	HandleGenMove(ctx context.Context, cb liveplay.GenMoveCallback) error
}

// ReviewCallback returns the endpoint the engine companion posts review
// results to. The payload is validated and acknowledged right away;
// commentary, media synthesis, and delivery continue off the request
// goroutine, so the companion never waits out the whole pipeline.
func ReviewCallback(completer ReviewCompleter, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = defaultEventTimeout
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var cb review.Callback
		if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if cb.TaskID == "" || cb.Status == "" || cb.TargetID == "" {
			http.Error(w, "Missing required fields: task_id, status, target_id", http.StatusBadRequest)
			return
		}

		logger.Printf("📤 Review callback accepted: task_id=%s status=%s", cb.TaskID, cb.Status)

		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Printf("❌ Panic finishing review %s: %v\n%s", cb.TaskID, rec, debug.Stack())
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := completer.HandleCallback(ctx, cb); err != nil {
				logger.Printf("❌ Review %s not delivered: %v", cb.TaskID, err)
			}
		}()

		replyReceived(w, map[string]string{"status": "received", "task_id": cb.TaskID})
	}
}

// GenMoveCallback returns the endpoint the engine companion posts the next
// move to.
func GenMoveCallback(completer MoveCompleter, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = defaultEventTimeout
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var cb liveplay.GenMoveCallback
		if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if cb.Status == "" || cb.TargetID == "" {
			http.Error(w, "Missing required fields: status, target_id", http.StatusBadRequest)
			return
		}

		logger.Printf("📤 Move callback accepted: target=%s status=%s move=%q", cb.TargetID, cb.Status, cb.Move)

		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Printf("❌ Panic finishing engine move for %s: %v\n%s", cb.TargetID, rec, debug.Stack())
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := completer.HandleGenMove(ctx, cb); err != nil {
				logger.Printf("❌ Engine move for %s not delivered: %v", cb.TargetID, err)
			}
		}()

		replyReceived(w, map[string]string{"status": "received", "target_id": cb.TargetID})
	}
}

func replyReceived(w http.ResponseWriter, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}
