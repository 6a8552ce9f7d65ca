// Package infra holds the Redis-backed shared-state helpers: the per-chat
// serializer that keeps near-simultaneous webhook events from interleaving
// on one chat, and the bot-identity cache the mention matcher reads on
// group messages. Both degrade to in-process state when Redis is not
// configured, so a single-instance deployment needs no Redis at all.
package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect dials Redis and verifies connectivity before handing the client
// out. Fail fast at boot; the caller decides whether the dependency is
// optional.
func Connect(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}
	return rdb, nil
}
