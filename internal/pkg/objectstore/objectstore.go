// Package objectstore wraps an S3-compatible object store (AWS S3 or a
// MinIO-style clone) behind the operation set the gallery, ingest and
// gradient components need: one tenant bucket, per-gallery prefixes,
// paginated listing, batched delete and presigned GET.
package objectstore

import (
	"context"
	"io"
	"time"
)

// Object describes a single listed entry under a prefix.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectInfo is the result of a HeadObject call.
type ObjectInfo struct {
	Size         int64
	ContentType  string
	UserMetadata map[string]string
}

// GetResult is the result of a GetObject call. Callers must Close Body.
type GetResult struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Lister paginates a LIST call transparently (1000 keys per page, matching
// the S3 API's own page size), so callers iterate without juggling
// continuation tokens themselves.
type Lister interface {
	// Next returns the next page of objects, or an empty slice and
	// done=true once the listing is exhausted.
	Next(ctx context.Context) (objects []Object, done bool, err error)
}

// Store is the object-storage operation set the core depends on. A single
// implementation backs it in production (S3/MinIO); tests use an
// in-memory fake satisfying the same interface.
type Store interface {
	// EnsureBucket verifies the tenant bucket exists and is reachable.
	// Failure here is fatal: the service must refuse to start.
	EnsureBucket(ctx context.Context) error

	PutFolderMarker(ctx context.Context, prefix string) error
	ListPrefix(ctx context.Context, prefix string) Lister
	HeadObject(ctx context.Context, key string) (ObjectInfo, error)
	PutBuffer(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	PutStream(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata map[string]string) error
	GetObject(ctx context.Context, key string) (GetResult, error)
	CopyObject(ctx context.Context, src, dst string) error
	DeleteObject(ctx context.Context, key string) error
	// DeleteBatch deletes up to 1000 keys in one request. Deleting a
	// missing key is not an error.
	DeleteBatch(ctx context.Context, keys []string) error
	// PresignGet returns a time-limited GET URL. The S3 implementation
	// rewrites an http:// endpoint URL to https:// in every case.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
