package snapshot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFromText(t *testing.T) {
	text := "First paragraph about cells.\n\nSecond paragraph about energy."

	snap := BuildFromText(text, "bio-notes", "all-minilm:l6-v2", "v2", DefaultChunkConfig())

	require.NotEmpty(t, snap.Chunks)
	assert.Equal(t, "all-minilm:l6-v2", snap.EmbeddingModel)
	assert.Equal(t, "v2", snap.ChunkingVersion)
	for i, chunk := range snap.Chunks {
		assert.Equal(t, "bio-notes", chunk.SourceID)
		assert.Contains(t, chunk.ChunkID, "bio-notes#")
		assert.NotEmpty(t, chunk.Text, "chunk %d is empty", i)
	}
}

func TestChunkIDsAreStableAndOrdered(t *testing.T) {
	text := strings.Repeat("A paragraph with enough words to matter here.\n\n", 40)

	a := BuildFromText(text, "src", "m", "v", DefaultChunkConfig())
	b := BuildFromText(text, "src", "m", "v", DefaultChunkConfig())

	require.Equal(t, len(a.Chunks), len(b.Chunks))
	for i := range a.Chunks {
		assert.Equal(t, a.Chunks[i].ChunkID, b.Chunks[i].ChunkID)
		assert.Equal(t, a.Chunks[i].Text, b.Chunks[i].Text)
	}
	assert.Equal(t, "src#0000", a.Chunks[0].ChunkID)
}

func TestChunkParagraphsRespectsTargetSize(t *testing.T) {
	cfg := ChunkConfig{TargetSize: 100, MinSize: 30, MaxSize: 200}
	para := "This paragraph is roughly sixty characters long in total."
	text := strings.Join([]string{para, para, para, para, para, para}, "\n\n")

	chunks := chunkParagraphs(text, cfg)

	require.Greater(t, len(chunks), 1, "text should split into multiple chunks")
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), cfg.MaxSize)
	}
}

func TestChunkParagraphsMergesTinyTrailer(t *testing.T) {
	cfg := ChunkConfig{TargetSize: 100, MinSize: 50, MaxSize: 200}
	text := strings.Repeat("x", 90) + "\n\n" + strings.Repeat("y", 90) + "\n\n" + "tiny"

	chunks := chunkParagraphs(text, cfg)

	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.Contains(t, last, "tiny")
	assert.Greater(t, len(last), len("tiny"), "trailing fragment should merge with its predecessor")
}

func TestSplitLongParagraph(t *testing.T) {
	sentence := "This is a sentence that ends properly. "
	para := strings.Repeat(sentence, 40)

	parts := splitLongParagraph(para, 200)

	require.Greater(t, len(parts), 1)
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	// Nothing is lost beyond trimmed whitespace.
	assert.InDelta(t, len(strings.TrimSpace(para)), total, float64(len(parts)*2))
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("One. Two! Three? Four")
	require.Len(t, sentences, 4)
	assert.Equal(t, "One. ", sentences[0])
	assert.Equal(t, "Four", sentences[3])
}

func TestEmptyTextYieldsNoChunks(t *testing.T) {
	snap := BuildFromText("   \n\n  ", "src", "m", "v", DefaultChunkConfig())
	assert.Empty(t, snap.Chunks)
}
