package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/tengenlabs/tengen/internal/circuitbreaker"
	"github.com/tengenlabs/tengen/internal/monitoring"
)

// ReviewJob asks the companion service to analyze a stored record and post
// the result to the callback URL.
type ReviewJob struct {
	TaskID      string `json:"task_id"`
	RecordPath  string `json:"record_path"`
	Bucket      string `json:"bucket"`
	TargetID    string `json:"target_id"`
	CallbackURL string `json:"callback_url"`
	MaxVisits   int    `json:"max_visits,omitempty"`
}

// GenMoveJob asks the companion service for one move. The reply token and
// the user's board image ride along so the callback can answer the user's
// move and the engine's move in a single combined reply.
type GenMoveJob struct {
	TaskID            string `json:"task_id,omitempty"`
	RecordPath        string `json:"record_path"`
	Bucket            string `json:"bucket"`
	TargetID          string `json:"target_id"`
	CallbackURL       string `json:"callback_url"`
	CurrentTurn       int    `json:"current_turn"`
	MaxVisits         int    `json:"max_visits,omitempty"`
	ReplyToken        string `json:"reply_token,omitempty"`
	UserBoardImageURL string `json:"user_board_image_url,omitempty"`
}

// RemoteConfig configures the companion-service client.
type RemoteConfig struct {
	// Endpoint is the companion service base URL (required)
	Endpoint string

	// Breaker guards the dispatch calls when set
	Breaker *circuitbreaker.CircuitBreaker

	// Metrics records dispatch latency when set
	Metrics *monitoring.Metrics
}

// RemoteClient submits engine jobs to the companion service. Dispatch is
// fire-and-forget: a 2xx answer means the job was accepted, and the result
// arrives later on the callback routes.
type RemoteClient struct {
	cfg        RemoteConfig
	httpClient *http.Client
	logger     *log.Logger
}

// NewRemoteClient creates a companion-service client.
func NewRemoteClient(cfg RemoteConfig) *RemoteClient {
	return &RemoteClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.New(log.Writer(), "[Engine] ", log.LstdFlags),
	}
}

// DispatchReview submits a full-game review job.
func (c *RemoteClient) DispatchReview(ctx context.Context, job ReviewJob) error {
	started := time.Now()
	err := c.post(ctx, "/review", job)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordEngineCall("review_dispatch", err, time.Since(started).Seconds())
	}
	if err != nil {
		c.logger.Printf("❌ Review dispatch failed for task %s: %v", job.TaskID, err)
		return err
	}
	c.logger.Printf("📤 Review task %s dispatched for %s", job.TaskID, job.TargetID)
	return nil
}

// DispatchGenMove submits a single-move job.
func (c *RemoteClient) DispatchGenMove(ctx context.Context, job GenMoveJob) error {
	started := time.Now()
	err := c.post(ctx, "/genmove", job)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordEngineCall("genmove_dispatch", err, time.Since(started).Seconds())
	}
	if err != nil {
		c.logger.Printf("❌ GenMove dispatch failed for %s: %v", job.TargetID, err)
		return err
	}
	c.logger.Printf("📤 GenMove dispatched for %s (turn %d)", job.TargetID, job.CurrentTurn)
	return nil
}

func (c *RemoteClient) post(ctx context.Context, path string, payload interface{}) error {
	send := func() (interface{}, error) {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal job: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("engine service request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("engine service returned HTTP %d: %s", resp.StatusCode, respBody)
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
