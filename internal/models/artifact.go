package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Artifact is the final payload of a completed job. Exactly one of the
// per-type fields is set, matching Type.
type Artifact struct {
	Type       ArtifactType  `json:"type"`
	Quiz       *Quiz         `json:"quiz,omitempty"`
	Flashcards *FlashcardSet `json:"flashcards,omitempty"`
	Mindmap    *MindmapNode  `json:"mindmap,omitempty"`
}

// Quiz is a multiple-choice question set.
type Quiz struct {
	Questions []QuizQuestion `json:"questions"`
}

// QuizQuestion is a single multiple-choice question.
type QuizQuestion struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
}

// FlashcardSet is a set of term/definition cards.
type FlashcardSet struct {
	Cards []Flashcard `json:"cards"`
}

// Flashcard is a single front (term) / back (definition) pair.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// MindmapNode is a node in a mindmap tree. The artifact holds exactly one
// root node; children may be empty.
type MindmapNode struct {
	Label    string        `json:"label"`
	Children []MindmapNode `json:"children"`
}

// ParseArtifact decodes a model-produced JSON payload into an Artifact of
// the given type. Markdown code fences around the JSON are tolerated, since
// models frequently wrap output despite instructions.
func ParseArtifact(artifactType ArtifactType, text string) (*Artifact, error) {
	raw := StripCodeFence(text)
	a := &Artifact{Type: artifactType}

	var err error
	switch artifactType {
	case ArtifactQuiz:
		var q Quiz
		err = json.Unmarshal([]byte(raw), &q)
		a.Quiz = &q
	case ArtifactFlashcards:
		var f FlashcardSet
		err = json.Unmarshal([]byte(raw), &f)
		a.Flashcards = &f
	case ArtifactMindmap:
		var m MindmapNode
		err = json.Unmarshal([]byte(raw), &m)
		a.Mindmap = &m
	default:
		return nil, fmt.Errorf("unknown artifact type: %s", artifactType)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s payload: %w", artifactType, err)
	}
	return a, nil
}

// ParsePlan decodes a model-produced planning payload.
func ParsePlan(text string) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return &p, nil
}

// JSON renders the artifact payload as indented JSON for prompts.
func (a *Artifact) JSON() string {
	var payload any
	switch a.Type {
	case ArtifactQuiz:
		payload = a.Quiz
	case ArtifactFlashcards:
		payload = a.Flashcards
	case ArtifactMindmap:
		payload = a.Mindmap
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

// StripCodeFence removes a surrounding Markdown code fence, if present.
func StripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the fence line
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
