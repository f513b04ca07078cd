// Package guard implements the safety wrappers around every LLM call:
// a per-phase wall-clock deadline and atomic token-budget accounting.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/raphaelgruber/studygen-go/internal/config"
	"github.com/raphaelgruber/studygen-go/internal/llm"
)

// Sentinel errors raised by the wrappers. Both are terminal for the job:
// the worker maps them onto the persisted error taxonomy and never retries.
var (
	ErrTimeout        = errors.New("llm call timed out")
	ErrBudgetExceeded = errors.New("token budget exceeded")
)

const (
	// estimateMultiplier pads the tokenized prompt size to cover message
	// framing overhead the tokenizer doesn't see.
	estimateMultiplier = 1.2
	// replyAllowance is the reserved headroom for the completion itself;
	// the post-call reconcile replaces it with the actual count.
	replyAllowance = 512
)

// TokenLedger is the atomic budget counter a Guard reserves against.
// Implemented by the job store.
type TokenLedger interface {
	// ReserveTokens adds estimate to the job's tokens_used if and only if
	// the result stays within token_budget, atomically.
	ReserveTokens(ctx context.Context, jobID string, estimate int) (withinBudget bool, tokensUsed int, err error)
	// ReconcileTokens applies a signed correction after the call returned.
	ReconcileTokens(ctx context.Context, jobID string, delta int) error
}

// Timeouts holds the per-phase wall-clock deadlines.
type Timeouts struct {
	Planning   time.Duration
	Generation time.Duration
	Validation time.Duration
	Repair     time.Duration
}

// TimeoutsFromConfig picks the phase deadlines out of the loaded config.
func TimeoutsFromConfig(cfg config.Config) Timeouts {
	return Timeouts{
		Planning:   cfg.PlanningTimeout,
		Generation: cfg.GenerationTimeout,
		Validation: cfg.ValidationTimeout,
		Repair:     cfg.RepairTimeout,
	}
}

// Guard composes the budget check and the timeout around a Completer.
// Order matters: the budget reservation happens before the network call
// (cheap, fails fast, never invokes the model past the ceiling); the
// deadline covers only the network call itself.
type Guard struct {
	completer llm.Completer
	ledger    TokenLedger
	enc       *tiktoken.Tiktoken
}

// New creates a Guard. The tiktoken encoder is best-effort: when the
// encoding is unavailable (offline environments), estimation falls back to
// a bytes/4 heuristic.
func New(completer llm.Completer, ledger TokenLedger) *Guard {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &Guard{completer: completer, ledger: ledger, enc: enc}
}

// Complete runs one guarded completion call for the given job.
//
//  1. Estimate the call's token cost from the prompt.
//  2. Atomically reserve the estimate; fail with ErrBudgetExceeded before
//     any network traffic if it would cross the budget.
//  3. Invoke the model under the phase deadline.
//  4. Reconcile the estimate against the provider-reported actual usage.
func (g *Guard) Complete(ctx context.Context, jobID string, timeout time.Duration, systemPrompt, userPrompt string) (string, llm.TokenUsage, error) {
	estimate := g.EstimateTokens(systemPrompt + "\n" + userPrompt)

	ok, used, err := g.ledger.ReserveTokens(ctx, jobID, estimate)
	if err != nil {
		return "", llm.TokenUsage{}, fmt.Errorf("reserve tokens: %w", err)
	}
	if !ok {
		return "", llm.TokenUsage{}, fmt.Errorf("%w: reserving %d tokens with %d already used", ErrBudgetExceeded, estimate, used)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, usage, err := g.completer.Complete(callCtx, systemPrompt, userPrompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", llm.TokenUsage{}, fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, err)
		}
		// Provider error with the reservation already taken: the actual
		// spend is unknown, so the estimate stands (conservative).
		return "", llm.TokenUsage{}, fmt.Errorf("llm call: %w", err)
	}

	if actual := usage.Total(); actual > 0 && actual != estimate {
		if err := g.ledger.ReconcileTokens(ctx, jobID, actual-estimate); err != nil {
			return "", llm.TokenUsage{}, fmt.Errorf("reconcile tokens: %w", err)
		}
	}

	return text, usage, nil
}

// EstimateTokens predicts the cost of a call with the given prompt text,
// including the reply allowance.
func (g *Guard) EstimateTokens(prompt string) int {
	var promptTokens int
	if g.enc != nil {
		promptTokens = len(g.enc.Encode(prompt, nil, nil))
	} else {
		promptTokens = len(prompt) / 4
	}
	return int(float64(promptTokens)*estimateMultiplier) + replyAllowance
}
