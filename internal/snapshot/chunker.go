// Package snapshot builds retrieval snapshots from raw note text. It
// stands in for the retrieval subsystem on the CLI creation path and in
// tests; a production caller supplies its own pre-computed snapshot.
package snapshot

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/studygen-go/internal/models"
)

// ChunkConfig defines chunking parameters.
type ChunkConfig struct {
	// TargetSize: ideal chunk size in bytes
	TargetSize int
	// MinSize: smaller trailing chunks merge with their predecessor
	MinSize int
	// MaxSize: paragraphs longer than this are split at sentence-ish
	// boundaries
	MaxSize int
}

// DefaultChunkConfig returns sensible defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		TargetSize: 750,
		MinSize:    200,
		MaxSize:    1200,
	}
}

// BuildFromText chunks note text into a retrieval snapshot tagged with the
// current compatibility versions.
func BuildFromText(text, sourceID, embeddingModel, chunkingVersion string, cfg ChunkConfig) models.RetrievalSnapshot {
	pieces := chunkParagraphs(text, cfg)

	chunks := make([]models.SnapshotChunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, models.SnapshotChunk{
			Text:     piece,
			SourceID: sourceID,
			ChunkID:  fmt.Sprintf("%s#%04d", sourceID, i),
		})
	}

	return models.RetrievalSnapshot{
		Chunks:          chunks,
		EmbeddingModel:  embeddingModel,
		ChunkingVersion: chunkingVersion,
	}
}

// chunkParagraphs accumulates paragraphs into chunks near the target size.
func chunkParagraphs(text string, cfg ChunkConfig) []string {
	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > cfg.MaxSize {
			flush()
			chunks = append(chunks, splitLongParagraph(para, cfg.TargetSize)...)
			continue
		}

		if current.Len() > 0 && current.Len()+len(para) > cfg.TargetSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	// Merge a tiny trailing chunk with its predecessor
	if n := len(chunks); n > 1 && len(chunks[n-1]) < cfg.MinSize {
		chunks[n-2] = chunks[n-2] + "\n\n" + chunks[n-1]
		chunks = chunks[:n-1]
	}

	return chunks
}

// splitLongParagraph breaks an oversized paragraph at sentence boundaries,
// falling back to a hard split when a single sentence exceeds the target.
func splitLongParagraph(para string, targetSize int) []string {
	var parts []string
	var current strings.Builder

	for _, sentence := range splitSentences(para) {
		if current.Len() > 0 && current.Len()+len(sentence) > targetSize {
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if len(sentence) > targetSize*2 {
			// Pathological sentence: hard split
			for len(sentence) > targetSize {
				parts = append(parts, sentence[:targetSize])
				sentence = sentence[targetSize:]
			}
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		parts = append(parts, strings.TrimSpace(current.String()))
	}
	return parts
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '.' || text[i] == '!' || text[i] == '?' {
			// Include trailing whitespace with the sentence
			end := i + 1
			for end < len(text) && (text[end] == ' ' || text[end] == '\n') {
				end++
			}
			sentences = append(sentences, text[start:end])
			start = end
			i = end - 1
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}
