package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	content := []byte("hello, world!")
	etag, err := store.Put(ctx, "test/file.txt", bytes.NewReader(content), PutOptions{ContentType: "text/plain"})
	require.NoError(t, err)
	assert.NotEmpty(t, etag)

	reader, attrs, err := store.Get(ctx, "test/file.txt")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Equal(t, "test/file.txt", attrs.Key)
	assert.Equal(t, int64(len(content)), attrs.Size)
	assert.Equal(t, "text/plain", attrs.ContentType)
}

func TestLocalStore_GetNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Get(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_RejectsPathEscape(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(ctx, "../escape.txt", bytes.NewReader([]byte("x")), PutOptions{})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLocalStore_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(ctx, "to-delete", bytes.NewReader([]byte("data")), PutOptions{})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "to-delete"))

	_, _, err = store.Get(ctx, "to-delete")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_Exists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "test")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Put(ctx, "test", bytes.NewReader([]byte("data")), PutOptions{})
	require.NoError(t, err)

	exists, err = store.Exists(ctx, "test")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileKey_MatchesOnDiskLayout(t *testing.T) {
	t.Parallel()
	sha := "abcdef0123456789"
	key := FileKey("user-1", sha)
	assert.Equal(t, "files/user-1/ab/abcdef0123456789", key)
}
