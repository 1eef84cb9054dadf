package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 2, EstimateTokens("hello"))
	// Scales with length, not byte count: multibyte runes count once.
	long := strings.Repeat("word ", 100)
	assert.InDelta(t, len(long)/4, EstimateTokens(long), 2)
	assert.Equal(t, EstimateTokens("日本語のテキスト"), len([]rune("日本語のテキスト"))/4+1)
}

func TestEstimateMessagesTokens(t *testing.T) {
	t.Parallel()
	msgs := []Message{
		{Role: "system", Content: "You are a helpful assistant."},
		{Role: "user", Content: "Hello"},
	}
	want := EstimateTokens(msgs[0].Content) + EstimateTokens(msgs[1].Content)
	assert.Equal(t, want, EstimateMessagesTokens(msgs))
}

func TestContextWindow(t *testing.T) {
	t.Parallel()
	n, known := ContextWindow("gpt-4o-mini")
	assert.True(t, known)
	assert.Equal(t, 128_000, n)

	// Longest prefix wins: gpt-4.1 is not a gpt-4.
	n, known = ContextWindow("gpt-4.1-nano")
	assert.True(t, known)
	assert.Equal(t, 1_047_576, n)

	n, known = ContextWindow("claude-sonnet-4-5")
	assert.True(t, known)
	assert.Equal(t, 200_000, n)

	n, known = ContextWindow("totally-unknown-model")
	assert.False(t, known)
	assert.Equal(t, defaultContextWindow, n)
}

func TestContextWindow_EnvOverride(t *testing.T) {
	t.Setenv("NOEMA_CONTEXT_WINDOW_TOKENS", "8000")
	n, known := ContextWindow("totally-unknown-model")
	assert.True(t, known)
	assert.Equal(t, 8000, n)
}
