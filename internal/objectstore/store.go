// Package objectstore abstracts the binary storage behind uploaded FileInfo
// payloads. This is a single-bucket, key-addressed store built around the
// read-after-write access pattern ingestion actually has: the ingress
// handler Puts an upload under FileKey(user_id, sha256) once (the
// one-FileInfo-per-hash dedup means a second upload with the same hash
// never re-Puts), and PDF/image/audio extraction later Gets it back by
// that same key to decode or ship to the chat provider. Nothing here lists a
// bucket, heads an object without reading it, or copies one key to another,
// so those S3-console-shaped operations are left out rather than carried as
// unexercised interface surface.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound reports a Get on a key no Put ever wrote (or a Delete
	// removed).
	ErrNotFound = errors.New("object not found")
	// ErrAccessDenied reports a backend permission failure, distinct from
	// absence so callers don't silently treat a misconfigured bucket as
	// empty.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidKey reports a key that escapes the store's namespace (path
	// traversal in LocalStore).
	ErrInvalidKey = errors.New("invalid object key")
)

// ObjectAttrs is the metadata a Get returns alongside the body.
type ObjectAttrs struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string // MIME type recorded at Put time, if any
}

// PutOptions carries the optional metadata a Put records with the object.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore is the minimal blob interface the upload and extraction paths
// need. Implementations must be safe for concurrent use.
type ObjectStore interface {
	// Get retrieves an object by key. The caller must close the returned
	// reader. Returns ErrNotFound if the object does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectAttrs, error)

	// Put stores an object under key, fully consuming r, and returns the
	// stored object's ETag.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (etag string, err error)

	// Delete removes an object by key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}
