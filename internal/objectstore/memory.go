package objectstore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

// MemoryStore keeps FileInfo blobs in an in-process map. Extraction and HTTP
// handler tests use it in place of LocalStore/S3Store so uploads can be
// exercised without a data directory or S3 credentials.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memBlob
}

type memBlob struct {
	data        []byte
	contentType string
	written     time.Time
}

// NewMemoryStore returns an empty in-memory ObjectStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memBlob)}
}

var _ ObjectStore = (*MemoryStore)(nil)

func (m *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectAttrs, error) {
	m.mu.RLock()
	blob, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ObjectAttrs{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(blob.data)), m.attrs(key, blob), nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	blob := memBlob{data: data, contentType: opts.ContentType, written: time.Now().UTC()}
	m.mu.Lock()
	m.blobs[key] = blob
	m.mu.Unlock()
	return m.attrs(key, blob).ETag, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.blobs, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	_, ok := m.blobs[key]
	m.mu.RUnlock()
	return ok, nil
}

func (m *MemoryStore) attrs(key string, blob memBlob) ObjectAttrs {
	return ObjectAttrs{
		Key:          key,
		Size:         int64(len(blob.data)),
		ETag:         `"` + key + `-etag"`,
		LastModified: blob.written,
		ContentType:  blob.contentType,
	}
}
