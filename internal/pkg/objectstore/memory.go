package objectstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gallerybot/gallery-api/internal/pkg/apperror"
)

// entry is a stored object in the in-memory fake.
type entry struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// MemoryStore is an in-process Store used by domain package tests so they
// don't need a live MinIO endpoint.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]entry
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{objects: make(map[string]entry)}
}

func (m *MemoryStore) EnsureBucket(ctx context.Context) error { return nil }

func (m *MemoryStore) PutFolderMarker(ctx context.Context, prefix string) error {
	key := strings.TrimSuffix(prefix, "/") + "/"
	return m.PutBuffer(ctx, key, nil, "application/x-directory", nil)
}

type memoryLister struct {
	objects []Object
	offset  int
}

func (l *memoryLister) Next(ctx context.Context) ([]Object, bool, error) {
	if l.offset >= len(l.objects) {
		return nil, true, nil
	}
	end := l.offset + 1000
	if end > len(l.objects) {
		end = len(l.objects)
	}
	page := l.objects[l.offset:end]
	l.offset = end
	return page, false, nil
}

func (m *MemoryStore) ListPrefix(ctx context.Context, prefix string) Lister {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []Object
	for key, e := range m.objects {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, Object{Key: key, Size: int64(len(e.data)), LastModified: e.modified})
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Key < matched[j].Key })
	return &memoryLister{objects: matched}
}

func (m *MemoryStore) HeadObject(ctx context.Context, key string) (ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, apperror.New(apperror.NotFound, fmt.Sprintf("object %q not found", key))
	}
	return ObjectInfo{Size: int64(len(e.data)), ContentType: e.contentType, UserMetadata: e.metadata}, nil
}

func (m *MemoryStore) PutBuffer(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[key] = entry{data: cp, contentType: contentType, metadata: metadata, modified: time.Now()}
	return nil
}

func (m *MemoryStore) PutStream(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return apperror.Wrap(apperror.Transient, "read stream", err)
	}
	return m.PutBuffer(ctx, key, data, contentType, metadata)
}

func (m *MemoryStore) GetObject(ctx context.Context, key string) (GetResult, error) {
	m.mu.Lock()
	e, ok := m.objects[key]
	m.mu.Unlock()

	if !ok {
		return GetResult{}, apperror.New(apperror.NotFound, fmt.Sprintf("object %q not found", key))
	}
	return GetResult{
		Body:        io.NopCloser(strings.NewReader(string(e.data))),
		ContentType: e.contentType,
		Size:        int64(len(e.data)),
	}, nil
}

func (m *MemoryStore) CopyObject(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.objects[src]
	if !ok {
		return apperror.New(apperror.NotFound, fmt.Sprintf("object %q not found", src))
	}
	m.objects[dst] = e
	return nil
}

func (m *MemoryStore) DeleteObject(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) DeleteBatch(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

func (m *MemoryStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	_, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return "", apperror.New(apperror.NotFound, fmt.Sprintf("object %q not found", key))
	}
	return fmt.Sprintf("https://memory.local/%s?ttl=%s", key, ttl), nil
}
