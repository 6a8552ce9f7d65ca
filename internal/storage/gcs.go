package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS implements Store on a Google Cloud Storage bucket. Reads always use
// the SDK so they bypass the public CDN cache.
type GCS struct {
	client *gcs.Client
	bucket string
	logger *log.Logger
}

// NewGCS connects the storage client and verifies the bucket is reachable.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage: bucket name must be set")
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}

	g := &GCS{
		client: client,
		bucket: bucket,
		logger: log.New(log.Writer(), "[STORAGE] ", log.LstdFlags),
	}

	attrCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := client.Bucket(bucket).Attrs(attrCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("bucket %s not reachable: %w", bucket, err)
	}

	g.logger.Printf("✅ Connected to bucket %s", bucket)
	return g, nil
}

// Close shuts down the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) Bucket() string { return g.bucket }

func (g *GCS) Put(ctx context.Context, path string, data []byte, opts PutOptions) error {
	w := g.client.Bucket(g.bucket).Object(path).NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.CacheControl = opts.CacheControl

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return nil
}

func (g *GCS) Get(ctx context.Context, path string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (g *GCS) GetText(ctx context.Context, path string) (string, error) {
	data, err := g.Get(ctx, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (g *GCS) Exists(ctx context.Context, path string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(path).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return true, nil
}

func (g *GCS) Delete(ctx context.Context, path string) error {
	err := g.client.Bucket(g.bucket).Object(path).Delete(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (g *GCS) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})

	var out []ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		out = append(out, ObjectInfo{
			Path:    attrs.Name,
			Size:    attrs.Size,
			Created: attrs.Created,
		})
	}
	return out, nil
}

func (g *GCS) LatestByCreation(ctx context.Context, prefix, suffix string) (*ObjectInfo, error) {
	objects, err := g.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var latest *ObjectInfo
	for i := range objects {
		o := objects[i]
		if suffix != "" && !strings.HasSuffix(o.Path, suffix) {
			continue
		}
		if latest == nil || o.Created.After(latest.Created) {
			latest = &o
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no %s object under %s", ErrNotFound, suffix, prefix)
	}
	return latest, nil
}

// PublicURL builds the public endpoint URL with each path segment escaped.
// Only useful for objects in a public bucket; the platform fetches these.
func (g *GCS) PublicURL(path string) string {
	return publicURL(g.bucket, path)
}

func publicURL(bucket, path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, strings.Join(segs, "/"))
}
