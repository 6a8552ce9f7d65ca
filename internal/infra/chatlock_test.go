package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatLockerSerializesSameChat(t *testing.T) {
	locker := NewChatLocker(nil)

	release, err := locker.Acquire(context.Background(), "chat-a")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r2, err := locker.Acquire(context.Background(), "chat-a")
		assert.NoError(t, err)
		close(acquired)
		r2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

func TestChatLockerIndependentChats(t *testing.T) {
	locker := NewChatLocker(nil)

	r1, err := locker.Acquire(context.Background(), "chat-a")
	require.NoError(t, err)
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r2, err := locker.Acquire(ctx, "chat-b")
	require.NoError(t, err)
	r2()
}

func TestChatLockerAcquireHonorsContext(t *testing.T) {
	locker := NewChatLocker(nil)

	release, err := locker.Acquire(context.Background(), "chat-a")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "chat-a")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChatLockerReleaseIdempotent(t *testing.T) {
	locker := NewChatLocker(nil)

	release, err := locker.Acquire(context.Background(), "chat-a")
	require.NoError(t, err)
	release()
	release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	again, err := locker.Acquire(ctx, "chat-a")
	require.NoError(t, err)
	again()
}

func TestNilChatLockerIsNoOp(t *testing.T) {
	var locker *ChatLocker

	release, err := locker.Acquire(context.Background(), "anything")
	require.NoError(t, err)
	release()

	release, err = locker.Acquire(context.Background(), "anything")
	require.NoError(t, err)
	release()
}
