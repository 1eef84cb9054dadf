package objectstore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()
	key := FileKey("user-1", "aabbcc")

	etag, err := m.Put(ctx, key, bytes.NewReader([]byte("%PDF-1.7 ...")), PutOptions{ContentType: "application/pdf"})
	require.NoError(t, err)
	assert.NotEmpty(t, etag)

	rc, attrs, err := m.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7 ..."), data)
	assert.Equal(t, key, attrs.Key)
	assert.Equal(t, int64(len(data)), attrs.Size)
	assert.Equal(t, "application/pdf", attrs.ContentType)
	assert.False(t, attrs.LastModified.IsZero())
}

func TestMemoryStore_GetMissingKey(t *testing.T) {
	t.Parallel()
	_, _, err := NewMemoryStore().Get(context.Background(), "files/u/ab/absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PutOverwrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()

	_, err := m.Put(ctx, "k", bytes.NewReader([]byte("first")), PutOptions{})
	require.NoError(t, err)
	_, err = m.Put(ctx, "k", bytes.NewReader([]byte("second")), PutOptions{})
	require.NoError(t, err)

	rc, attrs, err := m.Get(ctx, "k")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "second", string(data))
	assert.Equal(t, int64(6), attrs.Size)
}

func TestMemoryStore_DeleteAndExists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()

	_, err := m.Put(ctx, "k", bytes.NewReader([]byte("x")), PutOptions{})
	require.NoError(t, err)

	ok, err := m.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Delete(ctx, "k"))
	// Deleting an absent key stays silent.
	require.NoError(t, m.Delete(ctx, "k"))

	ok, err = m.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_ConcurrentPuts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()

	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			_, err := m.Put(ctx, k, bytes.NewReader([]byte(k)), PutOptions{})
			assert.NoError(t, err)
		}(k)
	}
	wg.Wait()

	for _, k := range keys {
		ok, err := m.Exists(ctx, k)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
