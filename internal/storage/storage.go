// Package storage is the blob store adapter. All durable state lives in one
// bucket under the deterministic key schema in keys.go; reads go through
// the SDK rather than the public endpoint so they can never hit a stale
// edge cache, and every mutable object is written with explicit
// cache-control.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Path    string
	Size    int64
	Created time.Time
}

// PutOptions carry the per-object write metadata. CacheControl is
// load-bearing: public URLs are handed to the messaging platform, and a
// mutable object without no-cache semantics will be served stale.
type PutOptions struct {
	ContentType  string
	CacheControl string
}

// Store is the blob API every component talks to.
type Store interface {
	Put(ctx context.Context, path string, data []byte, opts PutOptions) error
	Get(ctx context.Context, path string) ([]byte, error)
	GetText(ctx context.Context, path string) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	LatestByCreation(ctx context.Context, prefix, suffix string) (*ObjectInfo, error)
	PublicURL(path string) string
	Bucket() string
}
