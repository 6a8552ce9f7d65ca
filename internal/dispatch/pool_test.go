package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tengenlabs/tengen/internal/engine"
)

// stubRunner records jobs and can block or fail on demand.
type stubRunner struct {
	mu       sync.Mutex
	reviews  []engine.ReviewJob
	genmoves []engine.GenMoveJob
	calls    int
	failWhen func(call int) error
	started  chan struct{} // signaled once per run when non-nil
	gate     chan struct{} // runs block until closed when non-nil
}

func (r *stubRunner) run() error {
	r.mu.Lock()
	r.calls++
	call := r.calls
	fail := r.failWhen
	r.mu.Unlock()

	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.gate != nil {
		<-r.gate
	}
	if fail != nil {
		return fail(call)
	}
	return nil
}

func (r *stubRunner) RunReview(ctx context.Context, job engine.ReviewJob) error {
	err := r.run()
	if err == nil {
		r.mu.Lock()
		r.reviews = append(r.reviews, job)
		r.mu.Unlock()
	}
	return err
}

func (r *stubRunner) RunGenMove(ctx context.Context, job engine.GenMoveJob) error {
	err := r.run()
	if err == nil {
		r.mu.Lock()
		r.genmoves = append(r.genmoves, job)
		r.mu.Unlock()
	}
	return err
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestPoolRunsJobs(t *testing.T) {
	runner := &stubRunner{}
	pool := NewPool(runner, 2, nil)

	require.NoError(t, pool.DispatchReview(context.Background(), engine.ReviewJob{TaskID: "t1", TargetID: "U1"}))
	require.NoError(t, pool.DispatchGenMove(context.Background(), engine.GenMoveJob{TargetID: "U1", CurrentTurn: 2}))

	pool.Shutdown()

	require.Len(t, runner.reviews, 1)
	require.Len(t, runner.genmoves, 1)
	assert.Equal(t, "t1", runner.reviews[0].TaskID)
	assert.Equal(t, 2, runner.genmoves[0].CurrentTurn)
}

func TestPoolDropsWhenQueueFull(t *testing.T) {
	runner := &stubRunner{
		started: make(chan struct{}, poolQueueSize+2),
		gate:    make(chan struct{}),
	}
	pool := NewPool(runner, 1, nil)

	// First job occupies the single worker.
	require.NoError(t, pool.DispatchReview(context.Background(), engine.ReviewJob{TaskID: "head"}))
	<-runner.started

	// Now the buffer takes exactly poolQueueSize more.
	for i := 0; i < poolQueueSize; i++ {
		require.NoError(t, pool.DispatchReview(context.Background(), engine.ReviewJob{TaskID: "fill"}))
	}
	err := pool.DispatchReview(context.Background(), engine.ReviewJob{TaskID: "overflow"})
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, poolQueueSize, pool.QueueDepth())

	close(runner.gate)
	pool.Shutdown()
	assert.Len(t, runner.reviews, poolQueueSize+1)
}

func TestPoolRetriesUntilSuccess(t *testing.T) {
	runner := &stubRunner{
		failWhen: func(call int) error {
			if call < 3 {
				return errors.New("transient")
			}
			return nil
		},
	}
	pool := NewPool(runner, 1, nil)
	pool.retryBase = time.Millisecond

	require.NoError(t, pool.DispatchGenMove(context.Background(), engine.GenMoveJob{TargetID: "U1"}))

	require.Eventually(t, func() bool {
		return runner.callCount() == 3
	}, 2*time.Second, 10*time.Millisecond)

	pool.Shutdown()
	require.Len(t, runner.genmoves, 1)
}

func TestPoolGivesUpAfterThreeAttempts(t *testing.T) {
	runner := &stubRunner{
		failWhen: func(int) error { return errors.New("permanent") },
	}
	pool := NewPool(runner, 1, nil)
	pool.retryBase = time.Millisecond

	require.NoError(t, pool.DispatchReview(context.Background(), engine.ReviewJob{TaskID: "t1"}))

	require.Eventually(t, func() bool {
		return runner.callCount() == 3
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, runner.callCount())

	pool.Shutdown()
	assert.Empty(t, runner.reviews)
}

func TestPoolShutdownDrainsQueue(t *testing.T) {
	runner := &stubRunner{}
	pool := NewPool(runner, 2, nil)

	for i := 0; i < 20; i++ {
		require.NoError(t, pool.DispatchReview(context.Background(), engine.ReviewJob{TaskID: "t"}))
	}
	pool.Shutdown()

	assert.Len(t, runner.reviews, 20)
}

func TestPoolRejectsAfterShutdown(t *testing.T) {
	pool := NewPool(&stubRunner{}, 1, nil)
	pool.Shutdown()

	err := pool.DispatchReview(context.Background(), engine.ReviewJob{TaskID: "late"})
	require.ErrorIs(t, err, ErrStopped)
	require.ErrorIs(t, pool.HealthCheck(context.Background()), ErrStopped)

	// Shutdown is idempotent.
	pool.Shutdown()
}
