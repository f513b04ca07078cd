package validate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/raphaelgruber/studygen-go/internal/guard"
	"github.com/raphaelgruber/studygen-go/internal/llm"
	"github.com/raphaelgruber/studygen-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter returns canned responses in order and records prompts.
type scriptedCompleter struct {
	responses []string
	prompts   []string
	calls     int
}

func (c *scriptedCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, llm.TokenUsage, error) {
	c.prompts = append(c.prompts, userPrompt)
	if c.calls >= len(c.responses) {
		return "", llm.TokenUsage{}, fmt.Errorf("scripted completer exhausted after %d calls", c.calls)
	}
	response := c.responses[c.calls]
	c.calls++
	return response, llm.TokenUsage{Prompt: 100, Completion: 50}, nil
}

func (c *scriptedCompleter) ModelName() string { return "scripted" }

// openLedger approves every reservation.
type openLedger struct {
	reservations int
}

func (l *openLedger) ReserveTokens(ctx context.Context, jobID string, estimate int) (bool, int, error) {
	l.reservations++
	return true, estimate, nil
}

func (l *openLedger) ReconcileTokens(ctx context.Context, jobID string, delta int) error {
	return nil
}

func newTestGuard(completer llm.Completer) *guard.Guard {
	return guard.New(completer, &openLedger{})
}

func newTestSemantic(completer llm.Completer) *Semantic {
	return NewSemantic(newTestGuard(completer), 5*time.Second)
}

func newTestChain(completer llm.Completer) *RepairChain {
	g := newTestGuard(completer)
	return NewRepairChain(g, NewSemantic(g, 5*time.Second), 5*time.Second)
}

func validTestQuiz() *models.Artifact {
	return &models.Artifact{
		Type: models.ArtifactQuiz,
		Quiz: &models.Quiz{Questions: []models.QuizQuestion{
			{
				Prompt:        "What is ATP?",
				Options:       []string{"Energy carrier", "Enzyme", "Hormone", "Sugar"},
				CorrectAnswer: "Energy carrier",
			},
		}},
	}
}

func testSnapshot() models.RetrievalSnapshot {
	return models.RetrievalSnapshot{
		Chunks: []models.SnapshotChunk{
			{Text: "alpha chunk text about ATP", SourceID: "notes", ChunkID: "notes#0000"},
		},
		EmbeddingModel:  "all-minilm:l6-v2",
		ChunkingVersion: "v2",
	}
}

const fixedQuizJSON = `{
	"questions": [
		{
			"prompt": "What is ATP?",
			"options": ["Energy carrier", "Enzyme", "Hormone", "Sugar"],
			"correct_answer": "Energy carrier"
		}
	]
}`

// brokenQuizJSON parses but fails the structural rules (two options).
const brokenQuizJSON = `{
	"questions": [
		{
			"prompt": "What is ATP?",
			"options": ["Energy carrier", "Enzyme"],
			"correct_answer": "Energy carrier"
		}
	]
}`

func TestRepairSucceedsFirstAttempt(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{fixedQuizJSON, "OK"}}
	chain := newTestChain(completer)

	broken := validTestQuiz()
	broken.Quiz.Questions[0].Options = []string{"Energy carrier", "Enzyme"}

	repaired, remaining, err := chain.Run(context.Background(), "job-1", broken, nil, testSnapshot(),
		[]string{"question 1 has 2 options, need at least 4"}, nil)
	require.NoError(t, err)
	require.NotNil(t, repaired)
	assert.Empty(t, remaining)
	assert.Len(t, repaired.Quiz.Questions[0].Options, 4)
	assert.Equal(t, 2, completer.calls, "one repair call plus one semantic re-check")
}

func TestRepairExhaustsAttempts(t *testing.T) {
	// Both attempts produce structurally broken output; each is still
	// semantically re-checked.
	completer := &scriptedCompleter{responses: []string{brokenQuizJSON, "OK", brokenQuizJSON, "OK"}}
	chain := newTestChain(completer)

	attempts := []int{}
	repaired, remaining, err := chain.Run(context.Background(), "job-1", validTestQuiz(), nil, testSnapshot(),
		[]string{"seed problem"},
		func(attempt int) { attempts = append(attempts, attempt) })
	require.NoError(t, err)
	assert.Nil(t, repaired)
	require.NotEmpty(t, remaining)
	assert.Contains(t, remaining[0], "need at least 4")
	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, MaxRepairAttempts*2, completer.calls)
}

func TestRepairUnparsableOutputConsumesAttempt(t *testing.T) {
	// First attempt returns prose, second a valid artifact. The prose
	// attempt must not trigger a semantic call.
	completer := &scriptedCompleter{responses: []string{"I could not produce JSON, sorry.", fixedQuizJSON, "OK"}}
	chain := newTestChain(completer)

	repaired, remaining, err := chain.Run(context.Background(), "job-1", validTestQuiz(), nil, testSnapshot(),
		[]string{"seed problem"}, nil)
	require.NoError(t, err)
	require.NotNil(t, repaired)
	assert.Empty(t, remaining)
	assert.Equal(t, 3, completer.calls)

	// The second repair prompt must report the parse failure as the problem.
	assert.Contains(t, completer.prompts[1], "not valid JSON")
}

func TestRepairPropagatesGuardErrors(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{fixedQuizJSON}}
	g := guard.New(completer, &denyLedger{})
	chain := NewRepairChain(g, NewSemantic(g, time.Second), time.Second)

	_, _, err := chain.Run(context.Background(), "job-1", validTestQuiz(), nil, testSnapshot(),
		[]string{"seed problem"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, guard.ErrBudgetExceeded))
	assert.Equal(t, 0, completer.calls, "budget rejection must prevent the model call")
}

// denyLedger rejects every reservation.
type denyLedger struct{}

func (denyLedger) ReserveTokens(ctx context.Context, jobID string, estimate int) (bool, int, error) {
	return false, 9999, nil
}

func (denyLedger) ReconcileTokens(ctx context.Context, jobID string, delta int) error {
	return nil
}
