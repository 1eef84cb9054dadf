package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "DATA_DIR", "LOG_LEVEL", "STORE_DSN",
		"EMBEDDING_BASE_URL", "EMBEDDING_MODEL", "EMBEDDING_API_KEY",
		"CHAT_PROVIDER", "CHAT_MODEL", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"RETRIEVAL_WEIGHT_VECTOR", "INGEST_MAX_ATTEMPTS", "OBJECTSTORE_BACKEND",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "openai", cfg.Chat.Provider)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 0.5, cfg.Retrieval.WeightVector)
	assert.Equal(t, 0.3, cfg.Retrieval.WeightFTS)
	assert.Equal(t, 0.2, cfg.Retrieval.WeightGraph)
	assert.Equal(t, 3, cfg.IngestTuning.MaxAttempts)
	assert.Equal(t, "local", cfg.ObjectStoreBackend)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("EMBEDDING_DIMENSIONS", "3072")
	t.Setenv("RETRIEVAL_WEIGHT_VECTOR", "0.8")
	t.Setenv("INGEST_MAX_ATTEMPTS", "7")
	t.Setenv("S3_USE_PATH_STYLE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 3072, cfg.Embedding.Dimensions)
	assert.Equal(t, 3072, cfg.DB.Vector.Dimensions)
	assert.Equal(t, 0.8, cfg.Retrieval.WeightVector)
	assert.Equal(t, 7, cfg.IngestTuning.MaxAttempts)
	assert.True(t, cfg.S3.UsePathStyle)
}

func TestEnvHeadersParsesKeyValuePairs(t *testing.T) {
	t.Setenv("EMBEDDING_EXTRA_HEADERS", "X-Org=acme, X-Trace = abc123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "acme", cfg.Embedding.Headers["X-Org"])
	assert.Equal(t, "abc123", cfg.Embedding.Headers["X-Trace"])
}

func TestChatAPIKeyFallsBackToProviderSpecificEnv(t *testing.T) {
	t.Setenv("CHAT_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test-openai")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test-openai", cfg.Chat.APIKey)
}
