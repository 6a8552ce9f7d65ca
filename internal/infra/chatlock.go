package infra

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock lifetime and the pause between acquisition attempts. The TTL bounds
// how long a crashed holder can block a chat.
const (
	chatLockTTL   = 30 * time.Second
	chatLockRetry = 100 * time.Millisecond
)

const chatLockPrefix = "tengen:chat_lock:"

// releaseScript deletes the lock only when the caller still owns it, so a
// slow handler cannot release a lock that already expired and moved on.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ChatLocker serializes webhook handling per chat. With a Redis client it
// takes SET NX PX leases so multiple instances agree; without one it keeps
// a per-key semaphore in process. A nil *ChatLocker is a no-op, which is
// how the feature stays off by default.
type ChatLocker struct {
	rdb    *redis.Client
	logger *log.Logger

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewChatLocker builds a locker. rdb may be nil for in-process locking.
func NewChatLocker(rdb *redis.Client) *ChatLocker {
	return &ChatLocker{
		rdb:    rdb,
		logger: log.New(log.Writer(), "[ChatLock] ", log.LstdFlags),
		slots:  make(map[string]chan struct{}),
	}
}

// Acquire blocks until the chat's lock is held or ctx ends. The returned
// release function is idempotent. When Redis misbehaves mid-acquire the
// locker degrades to the in-process slot for this call rather than letting
// the event through unserialized.
func (l *ChatLocker) Acquire(ctx context.Context, chat string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	if l.rdb == nil {
		return l.acquireLocal(ctx, chat)
	}

	key := chatLockPrefix + chat
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, chatLockTTL).Result()
		if err != nil {
			l.logger.Printf("⚠️ redis lock for %s failed, using local slot: %v", chat, err)
			return l.acquireLocal(ctx, chat)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					if err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil && err != redis.Nil {
						l.logger.Printf("⚠️ releasing lock for %s: %v", chat, err)
					}
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(chatLockRetry):
		}
	}
}

func (l *ChatLocker) acquireLocal(ctx context.Context, chat string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[chat]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[chat] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
