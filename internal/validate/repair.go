package validate

import (
	"context"
	"time"

	"github.com/raphaelgruber/studygen-go/internal/guard"
	"github.com/raphaelgruber/studygen-go/internal/llm"
	"github.com/raphaelgruber/studygen-go/internal/models"
)

// MaxRepairAttempts bounds the automatic repair loop. Exhaustion is
// terminal for the job; resubmission is strictly a new job.
const MaxRepairAttempts = 2

// RepairChain orchestrates bounded repair of an artifact that failed
// validation. Each attempt regenerates the full payload — partial patches
// cannot be verified against the schema without re-deriving the whole
// structure — and is re-checked by both validators.
type RepairChain struct {
	g        *guard.Guard
	semantic *Semantic
	timeout  time.Duration
}

// NewRepairChain creates a repair chain using the given guard, semantic
// validator and repair-phase timeout.
func NewRepairChain(g *guard.Guard, semantic *Semantic, timeout time.Duration) *RepairChain {
	return &RepairChain{g: g, semantic: semantic, timeout: timeout}
}

// Run attempts to repair the artifact. onAttempt, if non-nil, is invoked
// before each attempt (1-based) so the caller can report progress.
//
// Returns (repaired, nil, nil) on success, (nil, remainingProblems, nil)
// when attempts are exhausted, and a non-nil error only for guard/transport
// failures (timeout, budget, store) which are terminal for the job.
func (r *RepairChain) Run(
	ctx context.Context,
	jobID string,
	artifact *models.Artifact,
	plan *models.Plan,
	snapshot models.RetrievalSnapshot,
	problems []string,
	onAttempt func(attempt int),
) (*models.Artifact, []string, error) {
	current := artifact

	for attempt := 1; attempt <= MaxRepairAttempts; attempt++ {
		if onAttempt != nil {
			onAttempt(attempt)
		}

		system, user := llm.RepairPrompts(current, plan, snapshot, problems)
		response, _, err := r.g.Complete(ctx, jobID, r.timeout, system, user)
		if err != nil {
			return nil, nil, err
		}

		repaired, err := models.ParseArtifact(artifact.Type, response)
		if err != nil {
			// Unparsable output counts as a failed attempt, not a job
			// error: the next attempt (if any) reports it as a problem.
			problems = []string{"artifact payload is not valid JSON: " + err.Error()}
			continue
		}

		violations := Structural(repaired)
		issues, err := r.semantic.Check(ctx, jobID, repaired, snapshot)
		if err != nil {
			return nil, nil, err
		}

		problems = append(violations, issues...)
		if len(problems) == 0 {
			return repaired, nil, nil
		}
		current = repaired
	}

	return nil, problems, nil
}
