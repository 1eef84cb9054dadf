package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_EmptyInputProducesNoChunks(t *testing.T) {
	assert.Empty(t, chunkText("   ", 50, 100, 10))
}

func TestChunkText_ShortTextIsOneChunk(t *testing.T) {
	chunks := chunkText("a short sentence well under the window.", 50, 100, 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestChunkText_LongTextSplitsIntoMultipleWindows(t *testing.T) {
	word := "lorem "
	text := strings.Repeat(word, 500)

	chunks := chunkText(text, 50, 100, 20)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.NotEmpty(t, c.Text)
	}
}

func TestChunkText_OverlapRepeatsTailOfPriorWindow(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 400)
	chunks := chunkText(text, 50, 100, 30)
	require.Greater(t, len(chunks), 1)

	tail := lastWords(chunks[0].Text, 5)
	assert.Contains(t, chunks[1].Text, tail)
}

func lastWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[len(words)-n:], " ")
}

func TestChunkText_RespectsMaxTokensRoughly(t *testing.T) {
	text := strings.Repeat("word ", 2000)
	chunks := chunkText(text, 50, 100, 0)
	for _, c := range chunks {
		assert.LessOrEqual(t, tokenCount(c.Text), 100+10) // snapping to whitespace allows small slack
	}
}
