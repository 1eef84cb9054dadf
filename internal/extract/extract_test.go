package extract

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noema/internal/apperr"
	"noema/internal/config"
	"noema/internal/llm"
	"noema/internal/model"
	"noema/internal/objectstore"
	"noema/internal/store"
)

type fakeProvider struct {
	completeText string
	completeErr  error
}

func (f *fakeProvider) Complete(ctx context.Context, model string, msgs []llm.Message, schema *llm.ResponseSchema) (string, error) {
	return f.completeText, f.completeErr
}

func (f *fakeProvider) Transcribe(ctx context.Context, model string, audio llm.AudioPart) (string, error) {
	return "transcribed audio", nil
}

func newTestDeps(t *testing.T, provider llm.Provider) Deps {
	t.Helper()
	s, err := store.New(context.Background(), config.Config{})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return Deps{
		Store:    s,
		Objects:  objectstore.NewMemoryStore(),
		Provider: provider,
		Config:   config.ExtractConfig{},
	}
}

func TestExtract_TextPassthrough(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t, &fakeProvider{})

	text, fi, err := Extract(context.Background(), Payload{Text: "  hello world  "}, "user-1", deps)
	require.NoError(t, err)
	assert.Nil(t, fi)
	assert.Equal(t, "hello world", text)
}

func TestExtract_FileUnknownMimeIsValidationError(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t, &fakeProvider{})
	ctx := context.Background()

	fi := model.FileInfo{ID: "file-1", UserID: "user-1", MimeType: "application/zip", Path: "files/user-1/ab/abc"}
	require.NoError(t, deps.Store.CreateFile(ctx, fi))
	_, err := deps.Objects.Put(ctx, fi.Path, bytes.NewReader([]byte("binary")), objectstore.PutOptions{})
	require.NoError(t, err)

	_, _, err = Extract(ctx, Payload{FileID: "file-1"}, "user-1", deps)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestExtract_FileTextPlainDecodesUTF8(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t, &fakeProvider{})
	ctx := context.Background()

	fi := model.FileInfo{ID: "file-2", UserID: "user-1", MimeType: "text/plain", Path: "files/user-1/cd/cde"}
	require.NoError(t, deps.Store.CreateFile(ctx, fi))
	_, err := deps.Objects.Put(ctx, fi.Path, bytes.NewReader([]byte("plain text content")), objectstore.PutOptions{})
	require.NoError(t, err)

	text, gotFI, err := Extract(ctx, Payload{FileID: "file-2"}, "user-1", deps)
	require.NoError(t, err)
	require.NotNil(t, gotFI)
	assert.Equal(t, "plain text content", text)
	assert.Equal(t, "file-2", gotFI.ID)
}

func TestExtract_FileWrongUserIsUnauthorized(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t, &fakeProvider{})
	ctx := context.Background()

	fi := model.FileInfo{ID: "file-3", UserID: "owner", MimeType: "text/plain", Path: "files/owner/ef/efg"}
	require.NoError(t, deps.Store.CreateFile(ctx, fi))

	_, _, err := Extract(ctx, Payload{FileID: "file-3"}, "someone-else", deps)
	require.Error(t, err)
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
}

func TestExtract_FileImageDescribesViaProvider(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t, &fakeProvider{completeText: "a photo of a cat"})
	ctx := context.Background()

	fi := model.FileInfo{ID: "file-4", UserID: "user-1", MimeType: "image/png", Path: "files/user-1/gh/ghi"}
	require.NoError(t, deps.Store.CreateFile(ctx, fi))
	_, err := deps.Objects.Put(ctx, fi.Path, bytes.NewReader([]byte("not actually a png")), objectstore.PutOptions{})
	require.NoError(t, err)

	text, _, err := Extract(ctx, Payload{FileID: "file-4"}, "user-1", deps)
	require.NoError(t, err)
	assert.Equal(t, "a photo of a cat", text)
}

func TestExtract_FileAudioTranscribesViaProviderCapability(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t, &fakeProvider{})
	ctx := context.Background()

	fi := model.FileInfo{ID: "file-5", UserID: "user-1", MimeType: "audio/wav", Path: "files/user-1/jk/jkl"}
	require.NoError(t, deps.Store.CreateFile(ctx, fi))
	_, err := deps.Objects.Put(ctx, fi.Path, bytes.NewReader([]byte("riff wav bytes")), objectstore.PutOptions{})
	require.NoError(t, err)

	text, _, err := Extract(ctx, Payload{FileID: "file-5"}, "user-1", deps)
	require.NoError(t, err)
	assert.Equal(t, "transcribed audio", text)
}

func TestExtract_FileAudioWithoutTranscriberCapabilityFails(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t, struct{ llm.Provider }{&fakeProvider{}})
	ctx := context.Background()

	fi := model.FileInfo{ID: "file-6", UserID: "user-1", MimeType: "audio/wav", Path: "files/user-1/mn/mno"}
	require.NoError(t, deps.Store.CreateFile(ctx, fi))
	_, err := deps.Objects.Put(ctx, fi.Path, bytes.NewReader([]byte("riff wav bytes")), objectstore.PutOptions{})
	require.NoError(t, err)

	_, _, err = Extract(ctx, Payload{FileID: "file-6"}, "user-1", deps)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}
