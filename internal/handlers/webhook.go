// Package handlers implements the HTTP endpoints: the platform webhook,
// the engine callback routes, and the health probe. Handlers validate and
// acknowledge; the real work runs on its own goroutine so a slow pipeline
// never stalls the caller.
package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/tengenlabs/tengen/internal/router"
)

var logger = log.New(log.Writer(), "[Handlers] ", log.LstdFlags)

// defaultEventTimeout bounds one webhook event or one genmove callback
// after it leaves the request goroutine.
const defaultEventTimeout = 2 * time.Minute

// maxWebhookBody caps the webhook payload read. Platform envelopes are a
// few kilobytes; anything bigger is not ours.
const maxWebhookBody = 1 << 20

// EventSink consumes decoded webhook events. Satisfied by *router.Router.
type EventSink interface {
	HandleEvent(ctx context.Context, ev router.Event)
}

// WebhookConfig wires the webhook endpoint.
type WebhookConfig struct {
	// Secret is the channel secret for signature verification. Empty
	// disables verification.
	Secret string

	// Events receives each decoded event on its own goroutine.
	Events EventSink

	// EventTimeout bounds one event's processing. Zero means the default.
	EventTimeout time.Duration
}

// Webhook returns the platform webhook endpoint. It always answers
// 200 "OK": redelivery is the platform's call to make, and one bad event
// must not fail its whole batch.
func Webhook(cfg WebhookConfig) http.HandlerFunc {
	timeout := cfg.EventTimeout
	if timeout <= 0 {
		timeout = defaultEventTimeout
	}

	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
		if err != nil {
			logger.Printf("❌ Webhook body unreadable: %v", err)
			replyOK(w)
			return
		}
		if len(body) > maxWebhookBody {
			logger.Printf("⚠️ Webhook body over %d bytes, dropping", maxWebhookBody)
			replyOK(w)
			return
		}

		if cfg.Secret != "" && !validSignature(cfg.Secret, body, r.Header.Get("X-Line-Signature")) {
			logger.Printf("⚠️ Webhook signature mismatch, dropping envelope")
			replyOK(w)
			return
		}

		var envelope router.Envelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			logger.Printf("❌ Webhook envelope undecodable: %v", err)
			replyOK(w)
			return
		}

		for _, ev := range envelope.Events {
			go handleEvent(cfg.Events, ev, timeout)
		}

		replyOK(w)
	}
}

// handleEvent runs one event to completion off the request goroutine.
func handleEvent(sink EventSink, ev router.Event, timeout time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Printf("❌ Panic handling %s event: %v\n%s", ev.Type, rec, debug.Stack())
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sink.HandleEvent(ctx, ev)
}

// validSignature checks the platform webhook signature: base64 of the
// HMAC-SHA256 of the raw body under the channel secret.
func validSignature(secret string, body []byte, header string) bool {
	sig, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

func replyOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
