package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noema/internal/config"
)

func embeddingsServer(t *testing.T, vectors [][]float32, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		data := make([]map[string]any, len(vectors))
		for i, v := range vectors {
			data[i] = map[string]any{"embedding": v}
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedText_ReturnsVectorsInOrder(t *testing.T) {
	t.Parallel()
	srv := embeddingsServer(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, nil)

	got, err := EmbedText(context.Background(), config.EmbeddingConfig{BaseURL: srv.URL, Model: "m"}, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{0.1, 0.2}, got[0])
	assert.Equal(t, []float32{0.3, 0.4}, got[1])
}

func TestEmbedText_BearerAuth(t *testing.T) {
	t.Parallel()
	srv := embeddingsServer(t, [][]float32{{0.1}}, func(r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
	})

	cfg := config.EmbeddingConfig{BaseURL: srv.URL, Model: "m", APIHeader: "Authorization", APIKey: "secret"}
	_, err := EmbedText(context.Background(), cfg, []string{"x"})
	require.NoError(t, err)
}

func TestEmbedText_HeadersWinOverSingleHeaderAuth(t *testing.T) {
	t.Parallel()
	srv := embeddingsServer(t, [][]float32{{0.1}}, func(r *http.Request) {
		assert.Equal(t, "abc", r.Header.Get("x-api-key"))
		assert.Equal(t, "Bearer s", r.Header.Get("Authorization"))
	})

	cfg := config.EmbeddingConfig{
		BaseURL:   srv.URL,
		Model:     "m",
		APIHeader: "Authorization",
		APIKey:    "s",
		Headers:   map[string]string{"x-api-key": "abc"},
	}
	_, err := EmbedText(context.Background(), cfg, []string{"x"})
	require.NoError(t, err)
}

func TestEmbedText_RejectsCountMismatch(t *testing.T) {
	t.Parallel()
	srv := embeddingsServer(t, [][]float32{{0.1}}, nil)

	_, err := EmbedText(context.Background(), config.EmbeddingConfig{BaseURL: srv.URL, Model: "m"}, []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 1 vectors for 2 inputs")
}

func TestEmbedText_RejectsDimensionMismatch(t *testing.T) {
	t.Parallel()
	srv := embeddingsServer(t, [][]float32{{0.1, 0.2, 0.3}}, nil)

	cfg := config.EmbeddingConfig{BaseURL: srv.URL, Model: "m", Dimensions: 2}
	_, err := EmbedText(context.Background(), cfg, []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestEmbedText_EmptyBatchIsAnError(t *testing.T) {
	t.Parallel()
	_, err := EmbedText(context.Background(), config.EmbeddingConfig{BaseURL: "http://unused"}, nil)
	require.Error(t, err)
}
