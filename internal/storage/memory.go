package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is a map-backed Store for tests and local development. It mirrors
// the bucket semantics, including creation-time ranking and the public URL
// shape.
type Memory struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memObject
	seq     int64
	// Clock is swappable so tests can control creation times.
	Clock func() time.Time
}

type memObject struct {
	data         []byte
	contentType  string
	cacheControl string
	created      time.Time
	seq          int64
}

// NewMemory returns an empty in-memory store.
func NewMemory(bucket string) *Memory {
	return &Memory{
		bucket:  bucket,
		objects: make(map[string]memObject),
		Clock:   time.Now,
	}
}

func (m *Memory) Bucket() string { return m.bucket }

func (m *Memory) Put(_ context.Context, path string, data []byte, opts PutOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	created := m.Clock()
	if prev, ok := m.objects[path]; ok {
		created = prev.created // overwrite keeps the original creation time
	}
	m.objects[path] = memObject{
		data:         append([]byte(nil), data...),
		contentType:  opts.ContentType,
		cacheControl: opts.CacheControl,
		created:      created,
		seq:          m.seq,
	}
	return nil
}

func (m *Memory) Get(_ context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return append([]byte(nil), o.data...), nil
}

func (m *Memory) GetText(ctx context.Context, path string) (string, error) {
	data, err := m.Get(ctx, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[path]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	delete(m.objects, path)
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ObjectInfo
	for path, o := range m.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, ObjectInfo{Path: path, Size: int64(len(o.data)), Created: o.created})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *Memory) LatestByCreation(_ context.Context, prefix, suffix string) (*ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		latest    *ObjectInfo
		latestSeq int64
	)
	for path, o := range m.objects {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if suffix != "" && !strings.HasSuffix(path, suffix) {
			continue
		}
		if latest == nil || o.created.After(latest.Created) ||
			(o.created.Equal(latest.Created) && o.seq > latestSeq) {
			latest = &ObjectInfo{Path: path, Size: int64(len(o.data)), Created: o.created}
			latestSeq = o.seq
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no %s object under %s", ErrNotFound, suffix, prefix)
	}
	return latest, nil
}

func (m *Memory) PublicURL(path string) string {
	return publicURL(m.bucket, path)
}

// CacheControl exposes the stored cache-control header for assertions.
func (m *Memory) CacheControl(path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[path].cacheControl
}

// ContentType exposes the stored content type for assertions.
func (m *Memory) ContentType(path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[path].contentType
}
