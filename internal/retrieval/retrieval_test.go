package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noema/internal/config"
	"noema/internal/model"
	"noema/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(context.Background(), config.Config{})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func vec(vals ...float32) []float32 { return vals }

func TestRun_ChatAnswerAssemblesChunksByFusedScore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	content := model.Content{ID: "content-1", Text: "hello", UserID: "user-1"}
	require.NoError(t, s.CreateContent(ctx, content))

	strong := model.TextChunk{ID: "chunk-strong", SourceID: content.ID, Chunk: "relevant text about go channels", Embedding: vec(1, 0, 0), UserID: "user-1"}
	weak := model.TextChunk{ID: "chunk-weak", SourceID: content.ID, Chunk: "unrelated text about cooking", Embedding: vec(0, 1, 0), UserID: "user-1"}
	require.NoError(t, s.CreateChunk(ctx, strong, 3))
	require.NoError(t, s.CreateChunk(ctx, weak, 3))

	deps := Deps{
		Store: s,
		Embed: func(ctx context.Context, text string) ([]float32, error) { return vec(1, 0, 0), nil },
	}

	result, err := Run(ctx, deps, Request{Query: "go channels", UserID: "user-1", Strategy: StrategyChatAnswer})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, "chunk-strong", result.Chunks[0].ID)
}

func TestRun_ChatAnswerIsChunkVectorOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	content := model.Content{ID: "content-cv", Text: "hello", UserID: "user-1"}
	require.NoError(t, s.CreateContent(ctx, content))

	// A chunk whose text matches the query terms exactly but whose embedding
	// is orthogonal to the query: only an FTS signal could surface it.
	ftsOnly := model.TextChunk{ID: "chunk-fts-only", SourceID: content.ID, Chunk: "go channels go channels go channels", Embedding: vec(0, 0, 1), UserID: "user-1"}
	near := model.TextChunk{ID: "chunk-near", SourceID: content.ID, Chunk: "select statements", Embedding: vec(1, 0, 0), UserID: "user-1"}
	require.NoError(t, s.CreateChunk(ctx, ftsOnly, 3))
	require.NoError(t, s.CreateChunk(ctx, near, 3))
	entity := model.KnowledgeEntity{ID: "entity-cv", SourceID: content.ID, Name: "Go Channels", Description: "concurrency primitive", EntityType: model.EntityIdea, Embedding: vec(1, 0, 0), UserID: "user-1"}
	require.NoError(t, s.CreateEntity(ctx, entity, 3))

	deps := Deps{
		Store: s,
		Embed: func(ctx context.Context, text string) ([]float32, error) { return vec(1, 0, 0), nil },
	}

	result, err := Run(ctx, deps, Request{Query: "go channels", UserID: "user-1", Strategy: StrategyChatAnswer})
	require.NoError(t, err)

	assert.Empty(t, result.Entities, "chat answer never gathers entity candidates")
	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, "chunk-near", result.Chunks[0].ID, "ranking is vector similarity, not term match")
	for _, c := range result.Chunks {
		assert.Nil(t, c.FTS, "chunk %s must carry no fts subscore", c.ID)
		assert.Nil(t, c.Graph, "chunk %s must carry no graph subscore", c.ID)
	}
}

func TestRun_FiltersOtherUsersData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	content := model.Content{ID: "content-2", Text: "hello", UserID: "owner"}
	require.NoError(t, s.CreateContent(ctx, content))
	chunk := model.TextChunk{ID: "chunk-owner", SourceID: content.ID, Chunk: "owner's private text", Embedding: vec(1, 0), UserID: "owner"}
	require.NoError(t, s.CreateChunk(ctx, chunk, 2))

	deps := Deps{
		Store: s,
		Embed: func(ctx context.Context, text string) ([]float32, error) { return vec(1, 0), nil },
	}

	result, err := Run(ctx, deps, Request{Query: "owner text", UserID: "someone-else", Strategy: StrategyChatAnswer})
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
}

func TestRun_WithPrecomputedEmbeddingSkipsEmbedFunc(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	deps := Deps{Store: s}
	result, err := Run(ctx, deps, Request{Query: "q", Embedding: vec(1, 0), UserID: "user-1", Strategy: StrategyChatAnswer})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
}

func TestRun_FailsFastWithNoEmbedFuncAndNoPrecomputedEmbedding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	deps := Deps{Store: s}
	_, err := Run(ctx, deps, Request{Query: "q", UserID: "user-1", Strategy: StrategyChatAnswer})
	require.Error(t, err)
}

func TestRun_IngestionEnrichmentReturnsEntitiesNotChunks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	content := model.Content{ID: "content-3", Text: "hello", UserID: "user-1"}
	require.NoError(t, s.CreateContent(ctx, content))
	entity := model.KnowledgeEntity{ID: "entity-1", SourceID: content.ID, Name: "Go Channels", Description: "a concurrency primitive", EntityType: model.EntityIdea, Embedding: vec(1, 0), UserID: "user-1"}
	require.NoError(t, s.CreateEntity(ctx, entity, 2))

	deps := Deps{
		Store: s,
		Embed: func(ctx context.Context, text string) ([]float32, error) { return vec(1, 0), nil },
	}

	result, err := Run(ctx, deps, Request{Query: "concurrency", UserID: "user-1", Strategy: StrategyIngestionEnrichment})
	require.NoError(t, err)
	require.NotEmpty(t, result.Entities)
	assert.Equal(t, "entity-1", result.Entities[0].ID)
	assert.Empty(t, result.Chunks)
}
