package llm

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/studygen-go/internal/models"
)

// Prompt builders for the three generation phases. Each returns a
// (system, user) pair ready for a guarded completion call. All prompts
// instruct the model to answer with bare JSON; the parsers still tolerate
// code fences because models wrap output anyway.

const planSystemPrompt = `You are a study-material planner. From the provided source material,
plan the concepts a %s should cover. Use ONLY the source material; do not add outside knowledge.

Respond with a single JSON object, no code fences:
{"title": "...", "concepts": ["..."], "key_terms": ["..."], "target_items": <int>}`

// PlanPrompts builds the planning-phase prompt from the snapshot.
func PlanPrompts(artifactType models.ArtifactType, snapshot models.RetrievalSnapshot) (string, string) {
	system := fmt.Sprintf(planSystemPrompt, artifactType)
	user := fmt.Sprintf("Source material:\n%s\n\nPlan:", snapshot.JoinedText())
	return system, user
}

func schemaInstructions(artifactType models.ArtifactType) string {
	switch artifactType {
	case models.ArtifactQuiz:
		return `{"questions": [{"prompt": "...", "options": ["...", "...", "...", "..."], "correct_answer": "...", "explanation": "..."}]}
Rules: at least 4 distinct options per question; correct_answer must be exactly one of the options.`
	case models.ArtifactFlashcards:
		return `{"cards": [{"front": "term", "back": "definition"}]}
Rules: fronts at least 2 characters and unique across the set; backs at most 300 characters.`
	case models.ArtifactMindmap:
		return `{"label": "root topic", "children": [{"label": "...", "children": []}]}
Rules: exactly one root; every node has a non-empty label; no label repeated anywhere in the tree.`
	}
	return ""
}

// GeneratePrompts builds the generation-phase prompt from the stored plan
// and the same snapshot the plan was derived from.
func GeneratePrompts(artifactType models.ArtifactType, plan *models.Plan, snapshot models.RetrievalSnapshot) (string, string) {
	system := fmt.Sprintf(`You are a study-material generator. Produce a %s grounded ONLY in the
provided source material, following the provided plan.

Respond with a single JSON object, no code fences, in this shape:
%s`, artifactType, schemaInstructions(artifactType))

	user := fmt.Sprintf(`Plan:
Title: %s
Concepts: %s
Key terms: %s
Target items: %d

Source material:
%s

%s JSON:`, plan.Title, strings.Join(plan.Concepts, "; "), strings.Join(plan.KeyTerms, "; "),
		plan.TargetItems, snapshot.JoinedText(), artifactType)
	return system, user
}

// RepairPrompts builds the repair-phase prompt: the original plan, the
// snapshot, the current invalid artifact and every reported problem. The
// model must regenerate the complete payload, not patch it.
func RepairPrompts(artifact *models.Artifact, plan *models.Plan, snapshot models.RetrievalSnapshot, problems []string) (string, string) {
	system := fmt.Sprintf(`You are repairing a generated %s that failed validation. Regenerate the
COMPLETE artifact, fixing every listed problem. Stay grounded ONLY in the source material.

Respond with a single JSON object, no code fences, in this shape:
%s`, artifact.Type, schemaInstructions(artifact.Type))

	var planText string
	if plan != nil {
		planText = fmt.Sprintf("Title: %s\nConcepts: %s\nTarget items: %d",
			plan.Title, strings.Join(plan.Concepts, "; "), plan.TargetItems)
	}

	user := fmt.Sprintf(`Plan:
%s

Source material:
%s

Current (invalid) artifact:
%s

Problems to fix:
- %s

Corrected %s JSON:`, planText, snapshot.JoinedText(), artifact.JSON(),
		strings.Join(problems, "\n- "), artifact.Type)
	return system, user
}
