package infra

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	identityKey = "tengen:bot_identity"
	identityTTL = 12 * time.Hour
)

// BotIdentity is what the mention matcher needs to recognize the bot in
// group messages: its user id for mention payloads and its display name
// for the textual @-prefix desktop clients send.
type BotIdentity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// IdentityCache keeps the bot identity close at hand. It is populated
// lazily from the platform's bot-info endpoint on the first group message
// and shared through Redis when one is configured, with an in-process copy
// either way.
type IdentityCache struct {
	rdb *redis.Client

	mu  sync.RWMutex
	mem *BotIdentity
}

// NewIdentityCache builds a cache. rdb may be nil.
func NewIdentityCache(rdb *redis.Client) *IdentityCache {
	return &IdentityCache{rdb: rdb}
}

// Get returns the cached identity. Redis is consulted first so instances
// share one bot-info lookup; any Redis trouble falls back to the local
// copy.
func (c *IdentityCache) Get(ctx context.Context) (*BotIdentity, bool) {
	if c.rdb != nil {
		if data, err := c.rdb.Get(ctx, identityKey).Bytes(); err == nil {
			var id BotIdentity
			if json.Unmarshal(data, &id) == nil && id.UserID != "" {
				return &id, true
			}
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.mem == nil {
		return nil, false
	}
	cp := *c.mem
	return &cp, true
}

// Put stores the identity locally and, best effort, in Redis.
func (c *IdentityCache) Put(ctx context.Context, id BotIdentity) {
	c.mu.Lock()
	cp := id
	c.mem = &cp
	c.mu.Unlock()

	if c.rdb != nil {
		if data, err := json.Marshal(id); err == nil {
			_ = c.rdb.Set(ctx, identityKey, data, identityTTL).Err()
		}
	}
}
