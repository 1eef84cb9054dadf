package answer

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
	"noema/internal/scoring"
	"noema/internal/store"
)

type fakeProvider struct {
	response string
}

func (f fakeProvider) Complete(ctx context.Context, m string, msgs []llm.Message, schema *llm.ResponseSchema) (string, error) {
	return f.response, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(context.Background(), config.Config{})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestAnswer_NoContextReturnsDefaultWithoutCallingProvider(t *testing.T) {
	s := newTestStore(t)
	deps := Deps{Store: s, Provider: fakeProvider{response: "should not be used"}}

	resp, err := Answer(context.Background(), deps, "what is noema?", &retrieval.Result{})
	require.NoError(t, err)
	assert.Empty(t, resp.References)
	assert.NotEmpty(t, resp.Answer)
}

func TestAnswer_FiltersReferencesNotOfferedAsContext(t *testing.T) {
	s := newTestStore(t)

	raw, err := json.Marshal(Response{
		Answer: "go was designed for concurrency",
		References: []Reference{
			{Reference: "chunk-1"},
			{Reference: "chunk-unknown"},
		},
	})
	require.NoError(t, err)

	deps := Deps{Store: s, Provider: fakeProvider{response: string(raw)}, Model: "test-model"}

	result := &retrieval.Result{
		Chunks: []scoring.Scored[model.TextChunk]{
			{ID: "chunk-1", Item: model.TextChunk{ID: "chunk-1", Chunk: "goroutines and channels"}},
		},
	}

	resp, err := Answer(context.Background(), deps, "tell me about go", result)
	require.NoError(t, err)
	require.Len(t, resp.References, 1)
	assert.Equal(t, "chunk-1", resp.References[0].Reference)
	assert.Equal(t, "go was designed for concurrency", resp.Answer)
}

func TestContextPrompt_DropsLowestRankedPastBudget(t *testing.T) {
	t.Parallel()
	result := &retrieval.Result{
		Chunks: []scoring.Scored[model.TextChunk]{
			{ID: "chunk-1", Item: model.TextChunk{ID: "chunk-1", Chunk: "first, highest ranked chunk"}},
			{ID: "chunk-2", Item: model.TextChunk{ID: "chunk-2", Chunk: "second chunk that should not fit"}},
		},
	}

	// Budget sized to the header plus one chunk line only.
	full := contextPrompt("q", result, 0)
	one := contextPrompt("q", result, 25)

	assert.Contains(t, full, "chunk-2")
	assert.Contains(t, one, "chunk-1")
	assert.NotContains(t, one, "chunk-2")
}

func TestAnswer_NoProviderIsFatalError(t *testing.T) {
	s := newTestStore(t)
	deps := Deps{Store: s}

	result := &retrieval.Result{
		Entities: []scoring.Scored[model.KnowledgeEntity]{
			{ID: "entity-1", Item: model.KnowledgeEntity{ID: "entity-1", Name: "noema"}},
		},
	}

	_, err := Answer(context.Background(), deps, "what is noema?", result)
	require.Error(t, err)
}

func TestAnswer_MalformedProviderResponseIsLLMParsingError(t *testing.T) {
	s := newTestStore(t)
	deps := Deps{Store: s, Provider: fakeProvider{response: "not json"}}

	result := &retrieval.Result{
		Entities: []scoring.Scored[model.KnowledgeEntity]{
			{ID: "entity-1", Item: model.KnowledgeEntity{ID: "entity-1", Name: "noema"}},
		},
	}

	_, err := Answer(context.Background(), deps, "what is noema?", result)
	require.Error(t, err)
}
