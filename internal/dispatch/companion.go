package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/tengenlabs/tengen/internal/board"
	"github.com/tengenlabs/tengen/internal/engine"
	"github.com/tengenlabs/tengen/internal/record"
	"github.com/tengenlabs/tengen/internal/session"
	"github.com/tengenlabs/tengen/internal/storage"
)

// LocalEngine is the slice of the subprocess engine the companion runs.
type LocalEngine interface {
	Review(ctx context.Context, rec *record.Record, maxVisits int) ([]engine.MoveStat, error)
	GenMove(ctx context.Context, rec *record.Record, side board.Color, maxVisits int) (board.Coord, error)
}

// Companion executes engine jobs in process when no remote companion
// service is deployed: it reads the record from the blob store, runs the
// engine subprocess, and posts the result to the job's callback URL, the
// same contract the remote service honors, so the callback handlers never
// know the difference.
type Companion struct {
	store      storage.Store
	engine     LocalEngine
	httpClient *http.Client
	logger     *log.Logger

	reviewVisits  int
	genmoveVisits int
}

// CompanionConfig wires the companion's dependencies.
type CompanionConfig struct {
	Store  storage.Store
	Engine LocalEngine

	// Visit budgets used when the job does not carry max_visits.
	ReviewVisits  int
	GenMoveVisits int
}

// NewCompanion creates an in-process job runner.
func NewCompanion(cfg CompanionConfig) *Companion {
	return &Companion{
		store:  cfg.Store,
		engine: cfg.Engine,
		httpClient: &http.Client{
			// Callback handlers render and deliver before answering.
			Timeout: 10 * time.Minute,
		},
		logger:        log.New(log.Writer(), "[Companion] ", log.LstdFlags),
		reviewVisits:  cfg.ReviewVisits,
		genmoveVisits: cfg.GenMoveVisits,
	}
}

// reviewResult is the /callback/review body.
type reviewResult struct {
	TaskID    string            `json:"task_id"`
	Status    string            `json:"status"`
	TargetID  string            `json:"target_id"`
	MoveStats []engine.MoveStat `json:"move_stats,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// genmoveResult is the /callback/get_ai_next_move body. The reply token
// and the user's board image ride through untouched.
type genmoveResult struct {
	Status            string `json:"status"`
	TargetID          string `json:"target_id"`
	Move              string `json:"move,omitempty"`
	CurrentTurn       int    `json:"current_turn"`
	ReplyToken        string `json:"reply_token,omitempty"`
	UserBoardImageURL string `json:"user_board_image_url,omitempty"`
	Error             string `json:"error,omitempty"`
}

// RunReview analyzes the stored record and posts the stats to the callback
// route. Engine failures become a failed callback, not an error: the job is
// complete once its outcome is delivered.
func (c *Companion) RunReview(ctx context.Context, job engine.ReviewJob) error {
	result := reviewResult{TaskID: job.TaskID, TargetID: job.TargetID, Status: "success"}

	rec, err := c.loadRecord(ctx, job.RecordPath)
	if err == nil {
		visits := job.MaxVisits
		if visits <= 0 {
			visits = c.reviewVisits
		}
		result.MoveStats, err = c.engine.Review(ctx, rec, visits)
	}
	if err != nil {
		c.logger.Printf("❌ Review task %s failed: %v", job.TaskID, err)
		result.Status = "failed"
		result.MoveStats = nil
		result.Error = err.Error()
	}

	return c.postCallback(job.CallbackURL, result)
}

// RunGenMove asks the engine for one move and posts it to the callback
// route. Pass, resign, and engine failures all become a failed callback so
// the handler can still answer the waiting user.
func (c *Companion) RunGenMove(ctx context.Context, job engine.GenMoveJob) error {
	result := genmoveResult{
		Status:            "success",
		TargetID:          job.TargetID,
		CurrentTurn:       job.CurrentTurn,
		ReplyToken:        job.ReplyToken,
		UserBoardImageURL: job.UserBoardImageURL,
	}

	rec, err := c.loadRecord(ctx, job.RecordPath)
	if err == nil {
		visits := job.MaxVisits
		if visits <= 0 {
			visits = c.genmoveVisits
		}
		var coord board.Coord
		coord, err = c.engine.GenMove(ctx, rec, turnColor(job.CurrentTurn), visits)
		if err == nil {
			result.Move = coord.GTP()
		}
	}
	if err != nil {
		c.logger.Printf("❌ GenMove for %s failed: %v", job.TargetID, err)
		result.Status = "failed"
		result.Error = err.Error()
	}

	return c.postCallback(job.CallbackURL, result)
}

func (c *Companion) loadRecord(ctx context.Context, path string) (*record.Record, error) {
	data, err := c.store.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", path, err)
	}
	rec, err := record.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode record %s: %w", path, err)
	}
	return rec, nil
}

// postCallback delivers the result on a fresh context: the job deadline
// may be nearly spent after a long engine run, and the callback handler
// renders and sends messages before answering.
func (c *Companion) postCallback(url string, payload interface{}) error {
	if url == "" {
		return fmt.Errorf("job carries no callback URL")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal callback: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("callback returned HTTP %d: %s", resp.StatusCode, respBody)
	}

	c.logger.Printf("📤 Callback delivered to %s", url)
	return nil
}

func turnColor(turn int) board.Color {
	if turn == session.TurnWhite {
		return board.White
	}
	return board.Black
}

var _ Runner = (*Companion)(nil)
