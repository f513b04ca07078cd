package llm

import (
	"strings"
	"testing"

	"github.com/raphaelgruber/studygen-go/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestUsageFromInfo(t *testing.T) {
	tests := []struct {
		name string
		info map[string]any
		want TokenUsage
	}{
		{
			"openai keys",
			map[string]any{"PromptTokens": 120, "CompletionTokens": 30},
			TokenUsage{Prompt: 120, Completion: 30},
		},
		{
			"anthropic keys",
			map[string]any{"InputTokens": 200, "OutputTokens": 80},
			TokenUsage{Prompt: 200, Completion: 80},
		},
		{
			"snake case floats",
			map[string]any{"prompt_tokens": float64(64), "completion_tokens": float64(16)},
			TokenUsage{Prompt: 64, Completion: 16},
		},
		{"nothing reported", map[string]any{}, TokenUsage{}},
		{"nil info", nil, TokenUsage{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, usageFromInfo(tt.info))
		})
	}
}

func TestTokenUsageTotal(t *testing.T) {
	assert.Equal(t, 150, TokenUsage{Prompt: 120, Completion: 30}.Total())
	assert.Equal(t, 0, TokenUsage{}.Total())
}

func TestPromptsCarrySourceMaterial(t *testing.T) {
	snapshot := models.RetrievalSnapshot{
		Chunks: []models.SnapshotChunk{
			{Text: "Chlorophyll absorbs light.", SourceID: "bio", ChunkID: "bio#0000"},
		},
	}
	plan := &models.Plan{Title: "Photosynthesis", Concepts: []string{"light absorption"}, TargetItems: 4}

	system, user := PlanPrompts(models.ArtifactQuiz, snapshot)
	assert.Contains(t, system, "quiz")
	assert.Contains(t, user, "Chlorophyll absorbs light.")

	system, user = GeneratePrompts(models.ArtifactFlashcards, plan, snapshot)
	assert.Contains(t, system, `"cards"`)
	assert.Contains(t, user, "Photosynthesis")
	assert.Contains(t, user, "Chlorophyll absorbs light.")

	artifact := &models.Artifact{Type: models.ArtifactMindmap, Mindmap: &models.MindmapNode{Label: "Root"}}
	system, user = RepairPrompts(artifact, plan, snapshot, []string{"label repeated", "empty node"})
	assert.Contains(t, system, "COMPLETE")
	assert.Contains(t, user, "- label repeated\n- empty node")
	assert.Contains(t, user, `"Root"`)
}

func TestSchemaInstructionsPerType(t *testing.T) {
	for _, at := range []models.ArtifactType{models.ArtifactQuiz, models.ArtifactFlashcards, models.ArtifactMindmap} {
		instructions := schemaInstructions(at)
		assert.NotEmpty(t, instructions, "type %s", at)
		assert.True(t, strings.Contains(instructions, "{"), "type %s should show a JSON shape", at)
	}
}
