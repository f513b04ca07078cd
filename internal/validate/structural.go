// Package validate checks generated artifacts: deterministic schema rules,
// an LLM-graded groundedness check, and a bounded repair loop for drafts
// that fail either.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/studygen-go/internal/models"
)

const (
	minQuizOptions  = 4
	minFrontLen     = 2
	maxBackLen      = 300
	maxMindmapDepth = 50
)

// Structural runs the deterministic per-type schema rules against an
// artifact. No model call is involved. Returns a list of violation strings;
// empty means pass.
func Structural(a *models.Artifact) []string {
	switch a.Type {
	case models.ArtifactQuiz:
		return structuralQuiz(a.Quiz)
	case models.ArtifactFlashcards:
		return structuralFlashcards(a.Flashcards)
	case models.ArtifactMindmap:
		return structuralMindmap(a.Mindmap)
	}
	return []string{fmt.Sprintf("unknown artifact type %q", a.Type)}
}

func structuralQuiz(q *models.Quiz) []string {
	if q == nil || len(q.Questions) == 0 {
		return []string{"quiz has no questions"}
	}

	var violations []string
	for i, question := range q.Questions {
		if strings.TrimSpace(question.Prompt) == "" {
			violations = append(violations, fmt.Sprintf("question %d has an empty prompt", i+1))
		}
		if len(question.Options) < minQuizOptions {
			violations = append(violations, fmt.Sprintf("question %d has %d options, need at least %d", i+1, len(question.Options), minQuizOptions))
		}

		seen := make(map[string]bool, len(question.Options))
		correctMatches := 0
		for _, opt := range question.Options {
			if seen[opt] {
				violations = append(violations, fmt.Sprintf("question %d has duplicate option %q", i+1, opt))
			}
			seen[opt] = true
			if opt == question.CorrectAnswer {
				correctMatches++
			}
		}
		if correctMatches == 0 {
			violations = append(violations, fmt.Sprintf("question %d: correct_answer %q is not one of the options", i+1, question.CorrectAnswer))
		}
	}
	return violations
}

func structuralFlashcards(f *models.FlashcardSet) []string {
	if f == nil || len(f.Cards) == 0 {
		return []string{"flashcard set has no cards"}
	}

	var violations []string
	seen := make(map[string]int, len(f.Cards))
	for i, card := range f.Cards {
		if utf8.RuneCountInString(strings.TrimSpace(card.Front)) < minFrontLen {
			violations = append(violations, fmt.Sprintf("card %d front %q is shorter than %d characters", i+1, card.Front, minFrontLen))
		}
		if utf8.RuneCountInString(card.Back) > maxBackLen {
			violations = append(violations, fmt.Sprintf("card %d back exceeds %d characters", i+1, maxBackLen))
		}

		key := strings.ToLower(strings.TrimSpace(card.Front))
		if prev, ok := seen[key]; ok {
			violations = append(violations, fmt.Sprintf("card %d duplicates the front of card %d (%q)", i+1, prev, card.Front))
		} else {
			seen[key] = i + 1
		}
	}
	return violations
}

func structuralMindmap(root *models.MindmapNode) []string {
	if root == nil {
		return []string{"mindmap has no root node"}
	}

	var violations []string
	labels := make(map[string]bool)

	var walk func(n *models.MindmapNode, depth int)
	walk = func(n *models.MindmapNode, depth int) {
		if depth > maxMindmapDepth {
			// Depth bound doubles as the cycle guard for decoded payloads.
			violations = append(violations, fmt.Sprintf("mindmap exceeds maximum depth of %d", maxMindmapDepth))
			return
		}
		label := strings.TrimSpace(n.Label)
		if label == "" {
			violations = append(violations, "mindmap node has an empty label")
		} else if labels[label] {
			violations = append(violations, fmt.Sprintf("mindmap label %q appears more than once", label))
		}
		labels[label] = true

		for i := range n.Children {
			walk(&n.Children[i], depth+1)
		}
	}
	walk(root, 0)
	return violations
}
