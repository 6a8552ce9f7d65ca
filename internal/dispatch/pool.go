package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/tengenlabs/tengen/internal/engine"
	"github.com/tengenlabs/tengen/internal/monitoring"
)

const poolQueueSize = 100

// ErrStopped is returned for jobs dispatched after Shutdown.
var ErrStopped = errors.New("dispatch: pool stopped")

// Pool executes engine jobs on a background worker pool. The queue is
// bounded: when it is full the job is dropped with a log line and the
// caller gets ErrQueueFull back.
type Pool struct {
	runner    Runner
	queue     chan *queuedJob
	logger    *log.Logger
	metrics   *monitoring.Metrics
	wg        sync.WaitGroup
	workers   int
	retryBase time.Duration

	// mu guards queue sends against the close in Shutdown.
	mu     sync.RWMutex
	closed bool
}

type queuedJob struct {
	kind    string // "review" | "genmove"
	review  *engine.ReviewJob
	genmove *engine.GenMoveJob
	attempt int
}

func (j *queuedJob) id() string {
	if j.kind == "review" {
		return j.review.TaskID
	}
	return j.genmove.TargetID
}

// NewPool starts a worker pool running jobs through the given runner.
// metrics may be nil.
func NewPool(runner Runner, workers int, metrics *monitoring.Metrics) *Pool {
	if workers <= 0 {
		workers = 4
	}
	p := &Pool{
		runner:    runner,
		queue:     make(chan *queuedJob, poolQueueSize),
		logger:    log.New(log.Writer(), "[Dispatch] ", log.LstdFlags),
		metrics:   metrics,
		workers:   workers,
		retryBase: time.Second,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// DispatchReview queues a full-game review job.
func (p *Pool) DispatchReview(ctx context.Context, job engine.ReviewJob) error {
	return p.dispatch(&queuedJob{kind: "review", review: &job, attempt: 1})
}

// DispatchGenMove queues a single-move job.
func (p *Pool) DispatchGenMove(ctx context.Context, job engine.GenMoveJob) error {
	return p.dispatch(&queuedJob{kind: "genmove", genmove: &job, attempt: 1})
}

func (p *Pool) dispatch(job *queuedJob) error {
	if err := p.enqueue(job); err != nil {
		p.logger.Printf("⚠️ Dropping %s job %s: %v", job.kind, job.id(), err)
		return err
	}
	return nil
}

func (p *Pool) enqueue(job *queuedJob) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStopped
	}
	select {
	case p.queue <- job:
		p.gaugeDepth()
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.queue {
		p.gaugeDepth()
		p.run(job)
	}
}

func (p *Pool) run(job *queuedJob) {
	var err error
	switch job.kind {
	case "review":
		ctx, cancel := context.WithTimeout(context.Background(), reviewJobTimeout)
		err = p.runner.RunReview(ctx, *job.review)
		cancel()
	case "genmove":
		ctx, cancel := context.WithTimeout(context.Background(), genmoveJobTimeout)
		err = p.runner.RunGenMove(ctx, *job.genmove)
		cancel()
	}
	if err == nil {
		p.logger.Printf("✅ %s job %s done", job.kind, job.id())
		return
	}

	p.logger.Printf("❌ %s job %s failed (attempt %d): %v", job.kind, job.id(), job.attempt, err)

	// Retry up to 3 times with quadratic backoff. The retry goes to the
	// back of the queue; a full or stopped queue wins over the retry.
	if job.attempt < 3 {
		time.Sleep(time.Duration(job.attempt*job.attempt) * p.retryBase)
		job.attempt++
		if qerr := p.enqueue(job); qerr != nil {
			p.logger.Printf("⚠️ Giving up on %s job %s: %v", job.kind, job.id(), qerr)
		}
	}
}

func (p *Pool) gaugeDepth() {
	if p.metrics != nil {
		p.metrics.SetDispatchQueueDepth(len(p.queue))
	}
}

// QueueDepth reports how many jobs are waiting.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// HealthCheck always passes while the pool is running.
func (p *Pool) HealthCheck(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStopped
	}
	return nil
}

// Stats returns basic telemetry about the pool.
func (p *Pool) Stats() map[string]interface{} {
	return map[string]interface{}{
		"backend":        "local-pool",
		"workers":        p.workers,
		"queue_depth":    len(p.queue),
		"queue_capacity": cap(p.queue),
	}
}

// Shutdown stops accepting jobs and waits for queued work to drain.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

var _ Dispatcher = (*Pool)(nil)
