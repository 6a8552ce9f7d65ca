// Package dispatch hands engine jobs off for asynchronous execution so
// webhook handlers never wait on the engine. Two backends share one
// interface: a Cloud Tasks queue (durable, at-least-once, burst-absorbing)
// and an in-process worker pool with a bounded queue. The pool doubles as
// the fallback path when a Cloud Tasks enqueue fails.
//
// A dispatched job finishes by posting to the callback routes; no in-memory
// map of outstanding tasks exists anywhere.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/tengenlabs/tengen/internal/engine"
)

// ErrQueueFull is returned when the local queue cannot accept another job.
// The job is dropped; the caller decides what to tell the user.
var ErrQueueFull = errors.New("dispatch: queue full")

// Per-job deadlines for locally executed work. Review runs a full-game
// analysis; genmove must come back while the reply token is still warm.
const (
	reviewJobTimeout  = 30 * time.Minute
	genmoveJobTimeout = 2 * time.Minute
)

// Dispatcher accepts engine jobs for asynchronous execution.
type Dispatcher interface {
	DispatchReview(ctx context.Context, job engine.ReviewJob) error
	DispatchGenMove(ctx context.Context, job engine.GenMoveJob) error
	HealthCheck(ctx context.Context) error
	Shutdown()
}

// Runner executes one job to completion. The remote runner posts the job to
// the companion service; the local companion runs the engine subprocess and
// posts the result to the callback route itself.
type Runner interface {
	RunReview(ctx context.Context, job engine.ReviewJob) error
	RunGenMove(ctx context.Context, job engine.GenMoveJob) error
}

// RemoteRunner adapts the companion-service client to the Runner interface.
type RemoteRunner struct {
	Client *engine.RemoteClient
}

func (r RemoteRunner) RunReview(ctx context.Context, job engine.ReviewJob) error {
	return r.Client.DispatchReview(ctx, job)
}

func (r RemoteRunner) RunGenMove(ctx context.Context, job engine.GenMoveJob) error {
	return r.Client.DispatchGenMove(ctx, job)
}
