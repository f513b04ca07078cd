package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/studygen-go/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// Every mutation in this file is a single conditional statement (or a
// single CREATE backed by a unique index), never a read followed by a
// separate write. That is the pipeline's only cross-process synchronization
// primitive, so the WHERE guards are load-bearing.

// CreateOrGetJob inserts a new pending job, or returns the existing active
// job with the same (user_id, fingerprint). The unique job_idempotency
// index arbitrates concurrent duplicate creations: losers get the index
// violation, fetch the winner, and return it.
// The boolean result reports whether a new document was created.
func (c *Client) CreateOrGetJob(ctx context.Context, job *models.Job) (*models.Job, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		created, err := c.insertJob(ctx, job)
		if err == nil {
			return created, true, nil
		}
		if !errors.Is(err, ErrJobAlreadyExists) {
			return nil, false, err
		}

		existing, err := c.findActiveJob(ctx, job.UserID, job.Fingerprint)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
		// The winning job reached a terminal state between our insert and
		// fetch; the fingerprint slot is free again, so retry the insert.
	}
	return nil, false, fmt.Errorf("create job %s: lost idempotency race twice", job.JobID())
}

func (c *Client) insertJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, `
		CREATE type::record('artifact_job', $id) CONTENT {
			user_id: $user_id,
			notebook_id: $notebook_id,
			artifact_type: $artifact_type,
			fingerprint: $fingerprint,
			active_fingerprint: $fingerprint,
			status: 'pending',
			progress: 0,
			retrieval_snapshot: $snapshot,
			options: $options,
			token_budget: $token_budget,
			tokens_used: 0,
			retry_count: $retry_count
		}
	`, map[string]any{
		"id":            job.JobID(),
		"user_id":       job.UserID,
		"notebook_id":   job.NotebookID,
		"artifact_type": string(job.ArtifactType),
		"fingerprint":   job.Fingerprint,
		"snapshot":      toMap(job.Snapshot),
		"options":       job.Options,
		"token_budget":  job.TokenBudget,
		"retry_count":   job.RetryCount,
	})
	if err != nil {
		return nil, wrapQueryError(err)
	}

	created, ok := firstJob(results)
	if !ok {
		return nil, fmt.Errorf("create job: empty result")
	}
	return created, nil
}

func (c *Client) findActiveJob(ctx context.Context, userID, fingerprint string) (*models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, `
		SELECT * FROM artifact_job
		WHERE user_id = $user_id AND active_fingerprint = $fingerprint
		LIMIT 1
	`, map[string]any{"user_id": userID, "fingerprint": fingerprint})
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	job, _ := firstJob(results)
	return job, nil
}

// ClaimNextPending atomically claims the oldest pending job for workerID,
// transitioning it to planning and stamping worker_id/started_at. Returns
// (nil, nil) when no pending job exists or another worker won the race.
func (c *Client) ClaimNextPending(ctx context.Context, workerID string) (*models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, `
		UPDATE (SELECT VALUE id FROM artifact_job WHERE status = 'pending' ORDER BY created_at ASC LIMIT 1)
		SET status = 'planning',
			worker_id = $worker_id,
			started_at = time::now(),
			updated_at = time::now()
		WHERE status = 'pending'
		RETURN AFTER
	`, map[string]any{"worker_id": workerID})
	if err != nil {
		err = wrapQueryError(err)
		// A serialization conflict means another worker claimed the same
		// candidate; not an error, just nothing for us this round.
		if errors.Is(err, ErrTransactionConflict) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim next pending: %w", err)
	}

	job, _ := firstJob(results)
	return job, nil
}

// StorePlan persists the planning-phase output. The plan is write-once: the
// guard rejects the update if the job is not in planning or already has one.
func (c *Client) StorePlan(ctx context.Context, id string, plan *models.Plan, progress int) error {
	return c.guardedUpdate(ctx, "store plan", `
		UPDATE type::record('artifact_job', $id)
		SET plan = $plan,
			progress = math::max([progress, $progress]),
			updated_at = time::now()
		WHERE status = 'planning' AND plan = NONE
		RETURN AFTER
	`, map[string]any{"id": id, "plan": toMap(plan), "progress": progress})
}

// MarkGenerating transitions planning → generating.
func (c *Client) MarkGenerating(ctx context.Context, id string) error {
	return c.guardedUpdate(ctx, "mark generating", `
		UPDATE type::record('artifact_job', $id)
		SET status = 'generating',
			progress = math::max([progress, 20]),
			updated_at = time::now()
		WHERE status = 'planning'
		RETURN AFTER
	`, map[string]any{"id": id})
}

// MarkValidating transitions generating → validating (idempotent within
// validating so the repair loop can bump progress through it).
func (c *Client) MarkValidating(ctx context.Context, id string, progress int) error {
	return c.guardedUpdate(ctx, "mark validating", `
		UPDATE type::record('artifact_job', $id)
		SET status = 'validating',
			progress = math::max([progress, $progress]),
			updated_at = time::now()
		WHERE status IN ['generating', 'validating']
		RETURN AFTER
	`, map[string]any{"id": id, "progress": progress})
}

// SetProgress raises the progress of a non-terminal job. Progress is
// monotonically non-decreasing: a lower value is silently ignored by the
// math::max.
func (c *Client) SetProgress(ctx context.Context, id string, progress int) error {
	return c.guardedUpdate(ctx, "set progress", `
		UPDATE type::record('artifact_job', $id)
		SET progress = math::max([progress, $progress]),
			updated_at = time::now()
		WHERE status NOT IN ['completed', 'failed']
		RETURN AFTER
	`, map[string]any{"id": id, "progress": progress})
}

// ReserveTokens atomically adds estimate to tokens_used if and only if the
// new total stays within token_budget. This single check-and-increment
// statement is what keeps the budget safe against concurrent callers.
// Returns (withinBudget, tokensUsedAfter).
func (c *Client) ReserveTokens(ctx context.Context, id string, estimate int) (bool, int, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, `
		UPDATE type::record('artifact_job', $id)
		SET tokens_used += $estimate,
			updated_at = time::now()
		WHERE tokens_used + $estimate <= token_budget
		RETURN AFTER
	`, map[string]any{"id": id, "estimate": estimate})
	if err != nil {
		return false, 0, fmt.Errorf("reserve tokens: %w", wrapQueryError(err))
	}

	if job, ok := firstJob(results); ok {
		return true, job.TokensUsed, nil
	}

	// Reservation rejected: report the current counter for diagnostics.
	job, err := c.getJob(ctx, id)
	if err != nil {
		return false, 0, err
	}
	if job == nil {
		return false, 0, fmt.Errorf("reserve tokens %s: %w", id, ErrNotFound)
	}
	return false, job.TokensUsed, nil
}

// ReconcileTokens applies a signed correction delta against tokens_used
// after a completed call, replacing the pre-call estimate with the
// provider's reported actual usage. Unlike ReserveTokens it always applies
// (the spend already happened); the counter is floored at zero.
func (c *Client) ReconcileTokens(ctx context.Context, id string, delta int) error {
	return c.guardedUpdate(ctx, "reconcile tokens", `
		UPDATE type::record('artifact_job', $id)
		SET tokens_used = math::max([tokens_used + $delta, 0]),
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": id, "delta": delta})
}

// MarkCompleted finalizes a job with its artifact payload and frees the
// idempotency slot.
func (c *Client) MarkCompleted(ctx context.Context, id string, result *models.Artifact) error {
	return c.guardedUpdate(ctx, "mark completed", `
		UPDATE type::record('artifact_job', $id)
		SET status = 'completed',
			result = $result,
			progress = 100,
			completed_at = time::now(),
			updated_at = time::now(),
			active_fingerprint = NONE
		WHERE status NOT IN ['completed', 'failed']
		RETURN AFTER
	`, map[string]any{"id": id, "result": toMap(result)})
}

// MarkFailed finalizes a job with a taxonomy error and frees the
// idempotency slot.
func (c *Client) MarkFailed(ctx context.Context, id string, jobErr models.JobError) error {
	return c.guardedUpdate(ctx, "mark failed", `
		UPDATE type::record('artifact_job', $id)
		SET status = 'failed',
			error = $error,
			progress = 100,
			completed_at = time::now(),
			updated_at = time::now(),
			active_fingerprint = NONE
		WHERE status NOT IN ['completed', 'failed']
		RETURN AFTER
	`, map[string]any{"id": id, "error": toMap(jobErr)})
}

// RecoverStuckJobs fails every job that has been sitting in a non-terminal,
// non-pending state for longer than timeout. Called once at worker-process
// startup, before the first claim, to reap jobs abandoned by crashed
// workers. Returns the number of jobs swept.
func (c *Client) RecoverStuckJobs(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, `
		UPDATE artifact_job
		SET status = 'failed',
			error = { kind: 'worker_restart', detail: $detail },
			completed_at = time::now(),
			updated_at = time::now(),
			active_fingerprint = NONE
		WHERE status IN ['planning', 'generating', 'validating']
			AND started_at != NONE
			AND started_at < $cutoff
		RETURN AFTER
	`, map[string]any{
		"cutoff": cutoff,
		"detail": fmt.Sprintf("abandoned by crashed worker (stuck > %s)", timeout),
	})
	if err != nil {
		return 0, fmt.Errorf("recover stuck jobs: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// GetJob retrieves a job by ID, scoped to its owner.
// Returns nil if not found or owned by someone else.
func (c *Client) GetJob(ctx context.Context, userID, id string) (*models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, `
		SELECT * FROM type::record('artifact_job', $id) WHERE user_id = $user_id
	`, map[string]any{"id": id, "user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	job, _ := firstJob(results)
	return job, nil
}

// ListJobs returns a user's jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context, userID string, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, `
		SELECT * FROM artifact_job
		WHERE user_id = $user_id
		ORDER BY created_at DESC
		LIMIT $limit
	`, map[string]any{"user_id": userID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.Job{}, nil
	}
	return (*results)[0].Result, nil
}

// getJob fetches without owner scoping, for internal diagnostics.
func (c *Client) getJob(ctx context.Context, id string) (*models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, `
		SELECT * FROM type::record('artifact_job', $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	job, _ := firstJob(results)
	return job, nil
}

// guardedUpdate runs a conditional single-document update and maps an empty
// result (guard matched nothing) to ErrNotFound.
func (c *Client) guardedUpdate(ctx context.Context, op, sql string, vars map[string]any) error {
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, sql, vars)
	if err != nil {
		return fmt.Errorf("%s: %w", op, wrapQueryError(err))
	}
	if _, ok := firstJob(results); !ok {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// firstJob unwraps the first document of the first query result.
func firstJob(results *[]surrealdb.QueryResult[[]models.Job]) (*models.Job, bool) {
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, false
	}
	return &(*results)[0].Result[0], true
}

// toMap converts a struct to a plain map through its JSON encoding, so
// nested payloads (snapshot, plan, result, error) are stored with their
// wire field names.
func toMap(v any) map[string]any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
