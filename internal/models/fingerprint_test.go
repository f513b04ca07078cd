package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("user-1", "nb-1", ArtifactQuiz, []string{"src-a", "src-b"}, map[string]any{"difficulty": "hard"})
	b := Fingerprint("user-1", "nb-1", ArtifactQuiz, []string{"src-a", "src-b"}, map[string]any{"difficulty": "hard"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // sha256 hex
}

func TestFingerprintSourceOrderInsensitive(t *testing.T) {
	a := Fingerprint("user-1", "nb-1", ArtifactQuiz, []string{"src-a", "src-b", "src-c"}, nil)
	b := Fingerprint("user-1", "nb-1", ArtifactQuiz, []string{"src-c", "src-a", "src-b"}, nil)
	assert.Equal(t, a, b, "source id order must not affect the fingerprint")
}

func TestFingerprintDistinguishesInputs(t *testing.T) {
	base := Fingerprint("user-1", "nb-1", ArtifactQuiz, []string{"src-a"}, nil)

	assert.NotEqual(t, base, Fingerprint("user-2", "nb-1", ArtifactQuiz, []string{"src-a"}, nil), "user")
	assert.NotEqual(t, base, Fingerprint("user-1", "nb-2", ArtifactQuiz, []string{"src-a"}, nil), "notebook")
	assert.NotEqual(t, base, Fingerprint("user-1", "nb-1", ArtifactFlashcards, []string{"src-a"}, nil), "artifact type")
	assert.NotEqual(t, base, Fingerprint("user-1", "nb-1", ArtifactQuiz, []string{"src-b"}, nil), "sources")
	assert.NotEqual(t, base, Fingerprint("user-1", "nb-1", ArtifactQuiz, []string{"src-a"}, map[string]any{"n": 5}), "options")
}

func TestFingerprintOptionKeyOrderInsensitive(t *testing.T) {
	a := Fingerprint("u", "n", ArtifactMindmap, []string{"s"}, map[string]any{"alpha": 1, "beta": 2})
	b := Fingerprint("u", "n", ArtifactMindmap, []string{"s"}, map[string]any{"beta": 2, "alpha": 1})
	assert.Equal(t, a, b)
}

func TestFingerprintNilVsEmptyOptions(t *testing.T) {
	a := Fingerprint("u", "n", ArtifactQuiz, []string{"s"}, nil)
	b := Fingerprint("u", "n", ArtifactQuiz, []string{"s"}, map[string]any{})
	// Both mean "no options"; a resubmission without options must hit the
	// same job either way.
	assert.Equal(t, a, b)
}
