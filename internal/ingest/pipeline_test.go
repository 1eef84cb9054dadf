package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noema/internal/config"
	"noema/internal/llm"
	"noema/internal/model"
	"noema/internal/retrieval"
	"noema/internal/store"
)

type fakeProvider struct {
	response string
}

func (f fakeProvider) Complete(ctx context.Context, m string, msgs []llm.Message, schema *llm.ResponseSchema) (string, error) {
	return f.response, nil
}

func fakeEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newTestDeps(t *testing.T, providerResponse string) (Deps, *store.Store) {
	t.Helper()
	s, err := store.New(context.Background(), config.Config{})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return Deps{
		Store:    s,
		Provider: fakeProvider{response: providerResponse},
		Embed:    fakeEmbed,
		Retrieval: retrieval.Deps{
			Store: s,
			Embed: func(ctx context.Context, text string) ([]float32, error) { return []float32{1, 0}, nil },
		},
		Tuning: config.IngestionTuning{ChunkMinTokens: 10, ChunkMaxTokens: 50, ChunkOverlapTokens: 5, MaxAttempts: 3},
		Model:  "test-model",
	}, s
}

func emptyEnrichmentJSON(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(enrichment{})
	require.NoError(t, err)
	return string(b)
}

func TestRun_PersistsContentAndChunksWithNoEntities(t *testing.T) {
	ctx := context.Background()
	deps, s := newTestDeps(t, emptyEnrichmentJSON(t))

	task := model.IngestionTask{
		ID:     "task-1",
		Payload: model.IngestionPayload{Text: "a reasonably long piece of text about go concurrency patterns and channels."},
		Status: model.TaskStatus{Kind: model.TaskCreated},
		UserID: "user-1",
	}
	require.NoError(t, s.CreateTask(ctx, task))

	err := Run(ctx, deps, "task-1")
	require.NoError(t, err)

	got, ok, err := s.GetTask(ctx, "task-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.TaskCompleted, got.Status.Kind)
	assert.Equal(t, 1, got.Status.Attempts)

	contentID := deterministicID("task-1", "content")
	content, ok, err := s.GetContent(ctx, contentID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user-1", content.UserID)
}

func TestRun_MaterializesEntitiesAndRelationships(t *testing.T) {
	ctx := context.Background()
	enriched := enrichment{
		Entities: []entityDraft{
			{Key: "a", Name: "Goroutines", Description: "lightweight threads", EntityType: "Idea"},
			{Key: "b", Name: "Channels", Description: "typed conduits", EntityType: "Idea"},
		},
		Relationships: []relationshipDraft{
			{Type: "RelatedTo", Source: "a", Target: "b"},
		},
	}
	raw, err := json.Marshal(enriched)
	require.NoError(t, err)

	deps, s := newTestDeps(t, string(raw))
	task := model.IngestionTask{
		ID:      "task-2",
		Payload: model.IngestionPayload{Text: "goroutines and channels work together for concurrency."},
		Status:  model.TaskStatus{Kind: model.TaskCreated},
		UserID:  "user-1",
	}
	require.NoError(t, s.CreateTask(ctx, task))

	require.NoError(t, Run(ctx, deps, "task-2"))

	aID := deterministicID("task-2", "entity:a")
	bID := deterministicID("task-2", "entity:b")
	_, ok, err := s.GetEntity(ctx, aID)
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = s.GetEntity(ctx, bID)
	require.NoError(t, err)
	assert.True(t, ok)
}

// sequencedProvider returns its responses in order, repeating the last one
// once the sequence is exhausted.
type sequencedProvider struct {
	responses []string
	calls     int
}

func (p *sequencedProvider) Complete(ctx context.Context, m string, msgs []llm.Message, schema *llm.ResponseSchema) (string, error) {
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	return p.responses[i], nil
}

func TestRun_RetriesEnrichmentOnceOnMalformedResponse(t *testing.T) {
	ctx := context.Background()
	deps, s := newTestDeps(t, "")
	provider := &sequencedProvider{responses: []string{"not json at all", emptyEnrichmentJSON(t)}}
	deps.Provider = provider

	task := model.IngestionTask{
		ID:      "task-4",
		Payload: model.IngestionPayload{Text: "some text that should still ingest after one bad completion."},
		Status:  model.TaskStatus{Kind: model.TaskCreated},
		UserID:  "user-1",
	}
	require.NoError(t, s.CreateTask(ctx, task))

	require.NoError(t, Run(ctx, deps, "task-4"))
	assert.Equal(t, 2, provider.calls)

	got, _, err := s.GetTask(ctx, "task-4")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, got.Status.Kind)
}

func TestRun_MarksTaskErrorWhenEnrichmentNeverParses(t *testing.T) {
	ctx := context.Background()
	deps, s := newTestDeps(t, "still not json")

	task := model.IngestionTask{
		ID:      "task-5",
		Payload: model.IngestionPayload{Text: "content the provider refuses to structure."},
		Status:  model.TaskStatus{Kind: model.TaskCreated},
		UserID:  "user-1",
	}
	require.NoError(t, s.CreateTask(ctx, task))

	err := Run(ctx, deps, "task-5")
	require.Error(t, err)

	got, _, err := s.GetTask(ctx, "task-5")
	require.NoError(t, err)
	assert.Equal(t, model.TaskError, got.Status.Kind)
	assert.NotEmpty(t, got.Status.Message)
}

func TestRun_SkipsAlreadyCompletedTask(t *testing.T) {
	ctx := context.Background()
	deps, s := newTestDeps(t, emptyEnrichmentJSON(t))

	task := model.IngestionTask{
		ID:      "task-3",
		Payload: model.IngestionPayload{Text: "hello"},
		Status:  model.TaskStatus{Kind: model.TaskCompleted, Attempts: 1},
		UserID:  "user-1",
	}
	require.NoError(t, s.CreateTask(ctx, task))

	require.NoError(t, Run(ctx, deps, "task-3"))

	got, ok, err := s.GetTask(ctx, "task-3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got.Status.Attempts)
}
