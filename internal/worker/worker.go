// Package worker implements the job execution loop: claim one pending job,
// run the plan → generate → validate/repair phases, persist every
// transition and publish the terminal event. Many workers run concurrently
// across processes; the store's atomic claim is their only coordination.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/raphaelgruber/studygen-go/internal/db"
	"github.com/raphaelgruber/studygen-go/internal/events"
	"github.com/raphaelgruber/studygen-go/internal/guard"
	"github.com/raphaelgruber/studygen-go/internal/llm"
	"github.com/raphaelgruber/studygen-go/internal/metrics"
	"github.com/raphaelgruber/studygen-go/internal/models"
	"github.com/raphaelgruber/studygen-go/internal/validate"
)

// Store is the subset of job-store operations the worker drives. All
// implementations must make these single conditional writes (see db).
type Store interface {
	ClaimNextPending(ctx context.Context, workerID string) (*models.Job, error)
	StorePlan(ctx context.Context, id string, plan *models.Plan, progress int) error
	MarkGenerating(ctx context.Context, id string) error
	MarkValidating(ctx context.Context, id string, progress int) error
	SetProgress(ctx context.Context, id string, progress int) error
	MarkCompleted(ctx context.Context, id string, result *models.Artifact) error
	MarkFailed(ctx context.Context, id string, jobErr models.JobError) error
}

// Config holds one worker instance's identity and limits.
type Config struct {
	ID              string
	PollInterval    time.Duration
	MaxIdleInterval time.Duration
	Timeouts        guard.Timeouts

	// Current snapshot compatibility tags.
	EmbeddingModel  string
	ChunkingVersion string
}

// Worker processes exactly one job at a time.
type Worker struct {
	cfg       Config
	store     Store
	g         *guard.Guard
	semantic  *validate.Semantic
	repair    *validate.RepairChain
	bus       *events.Bus
	collector *metrics.Collector
	logger    *slog.Logger
}

// New creates a worker. The guard must be backed by the same store's token
// ledger so budget accounting and job state stay on one document.
func New(cfg Config, store Store, g *guard.Guard, bus *events.Bus, collector *metrics.Collector, logger *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.MaxIdleInterval <= 0 {
		cfg.MaxIdleInterval = 5 * time.Second
	}
	semantic := validate.NewSemantic(g, cfg.Timeouts.Validation)
	return &Worker{
		cfg:       cfg,
		store:     store,
		g:         g,
		semantic:  semantic,
		repair:    validate.NewRepairChain(g, semantic, cfg.Timeouts.Repair),
		bus:       bus,
		collector: collector,
		logger:    logger.With("worker_id", cfg.ID),
	}
}

// Run claims and processes jobs until the context is cancelled. Idle
// polling backs off exponentially and resets on a successful claim. Job
// failures are isolated: the loop continues claiming subsequent jobs.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.cfg.PollInterval
	bo.MaxInterval = w.cfg.MaxIdleInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopping")
			return nil
		}

		start := time.Now()
		job, err := w.store.ClaimNextPending(ctx, w.cfg.ID)
		w.collector.RecordTiming(metrics.OpClaim, time.Since(start))
		if err != nil {
			w.logger.Error("claim failed", "error", err)
			if !w.sleep(ctx, bo.NextBackOff()) {
				return nil
			}
			continue
		}
		if job == nil {
			if !w.sleep(ctx, bo.NextBackOff()) {
				return nil
			}
			continue
		}

		bo.Reset()
		w.process(ctx, job)
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// process runs the full phase machine for one claimed job. Every exit path
// either persists a terminal state or deliberately abandons the claim for
// the recovery sweep (store/provider failures, where writing a job error
// may itself be impossible).
func (w *Worker) process(ctx context.Context, job *models.Job) {
	id := job.JobID()
	log := w.logger.With("job_id", id, "artifact_type", job.ArtifactType, "user_id", job.UserID)

	defer func() {
		if r := recover(); r != nil {
			// Leave the job claimed; the startup recovery sweep reaps it.
			log.Error("job processing panicked, abandoning claim", "panic", r)
		}
	}()

	log.Info("job claimed", "chunks", len(job.Snapshot.Chunks), "token_budget", job.TokenBudget)

	if ok, reason := db.ValidateSnapshotCompatibility(job.Snapshot, w.cfg.EmbeddingModel, w.cfg.ChunkingVersion); !ok {
		w.failJob(ctx, job, models.KindSnapshotIncompatible, reason, log)
		return
	}

	// Planning (progress band 0-20)
	if err := w.store.SetProgress(ctx, id, 10); err != nil {
		log.Error("store unavailable, abandoning claim", "error", err)
		return
	}

	plan, ok := w.runPlanning(ctx, job, log)
	if !ok {
		return
	}

	// Generating (20-60)
	artifact, parseProblem, ok := w.runGeneration(ctx, job, plan, log)
	if !ok {
		return
	}

	// Validating (60-100)
	w.runValidation(ctx, job, plan, artifact, parseProblem, log)
}

func (w *Worker) runPlanning(ctx context.Context, job *models.Job, log *slog.Logger) (*models.Plan, bool) {
	id := job.JobID()

	system, user := llm.PlanPrompts(job.ArtifactType, job.Snapshot)
	start := time.Now()
	response, usage, err := w.g.Complete(ctx, id, w.cfg.Timeouts.Planning, system, user)
	w.collector.RecordLLMUsage(metrics.OpPlan, time.Since(start), int64(usage.Prompt), int64(usage.Completion))
	if err != nil {
		w.failFromGuard(ctx, job, err, log)
		return nil, false
	}

	plan, err := models.ParsePlan(response)
	if err != nil {
		w.failJob(ctx, job, models.KindValidationFailed, "planning produced unparsable output: "+err.Error(), log)
		return nil, false
	}

	if err := w.store.StorePlan(ctx, id, plan, 20); err != nil {
		log.Error("store plan failed, abandoning claim", "error", err)
		return nil, false
	}
	if err := w.store.MarkGenerating(ctx, id); err != nil {
		log.Error("mark generating failed, abandoning claim", "error", err)
		return nil, false
	}

	log.Info("plan stored", "concepts", len(plan.Concepts), "target_items", plan.TargetItems)
	return plan, true
}

// runGeneration produces the draft artifact. An unparsable draft is not a
// job error: it comes back with a parse problem for the repair chain to
// regenerate from.
func (w *Worker) runGeneration(ctx context.Context, job *models.Job, plan *models.Plan, log *slog.Logger) (*models.Artifact, string, bool) {
	id := job.JobID()

	system, user := llm.GeneratePrompts(job.ArtifactType, plan, job.Snapshot)
	start := time.Now()
	response, usage, err := w.g.Complete(ctx, id, w.cfg.Timeouts.Generation, system, user)
	w.collector.RecordLLMUsage(metrics.OpGenerate, time.Since(start), int64(usage.Prompt), int64(usage.Completion))
	if err != nil {
		w.failFromGuard(ctx, job, err, log)
		return nil, "", false
	}

	if err := w.store.SetProgress(ctx, id, 60); err != nil {
		log.Error("store unavailable, abandoning claim", "error", err)
		return nil, "", false
	}

	artifact, err := models.ParseArtifact(job.ArtifactType, response)
	if err != nil {
		log.Warn("draft artifact unparsable, deferring to repair", "error", err)
		return &models.Artifact{Type: job.ArtifactType}, "artifact payload is not valid JSON: " + err.Error(), true
	}
	return artifact, "", true
}

func (w *Worker) runValidation(ctx context.Context, job *models.Job, plan *models.Plan, artifact *models.Artifact, parseProblem string, log *slog.Logger) {
	id := job.JobID()

	if err := w.store.MarkValidating(ctx, id, 60); err != nil {
		log.Error("mark validating failed, abandoning claim", "error", err)
		return
	}

	var problems []string
	if parseProblem != "" {
		problems = []string{parseProblem}
	} else {
		problems = validate.Structural(artifact)
	}
	if err := w.store.SetProgress(ctx, id, 70); err != nil {
		log.Error("store unavailable, abandoning claim", "error", err)
		return
	}

	if parseProblem == "" {
		start := time.Now()
		issues, err := w.semantic.Check(ctx, id, artifact, job.Snapshot)
		w.collector.RecordTiming(metrics.OpSemantic, time.Since(start))
		if err != nil {
			w.failFromGuard(ctx, job, err, log)
			return
		}
		problems = append(problems, issues...)
	}
	if err := w.store.SetProgress(ctx, id, 80); err != nil {
		log.Error("store unavailable, abandoning claim", "error", err)
		return
	}

	if len(problems) > 0 {
		log.Info("draft failed validation, repairing", "problems", len(problems))

		start := time.Now()
		repaired, remaining, err := w.repair.Run(ctx, id, artifact, plan, job.Snapshot, problems,
			func(attempt int) {
				if err := w.store.SetProgress(ctx, id, 80+5*attempt); err != nil {
					log.Warn("progress update failed", "error", err)
				}
			})
		w.collector.RecordTiming(metrics.OpRepair, time.Since(start))
		if err != nil {
			w.failFromGuard(ctx, job, err, log)
			return
		}
		if repaired == nil {
			w.failJob(ctx, job, models.KindValidationFailed, strings.Join(remaining, "; "), log)
			return
		}
		artifact = repaired
	}

	if err := w.store.MarkCompleted(ctx, id, artifact); err != nil {
		log.Error("mark completed failed, abandoning claim", "error", err)
		return
	}

	w.collector.RecordJobCompleted()
	log.Info("job completed", "tokens_used", job.TokensUsed)
	w.publish(events.TopicArtifactCompleted, job, artifact, nil)
}

// failFromGuard maps guard sentinels onto the persisted error taxonomy.
// Any other error (provider transport, store unreachable) abandons the
// claim instead: the job stays claimed by this worker id and the recovery
// sweep fails it as worker_restart.
func (w *Worker) failFromGuard(ctx context.Context, job *models.Job, err error, log *slog.Logger) {
	switch {
	case errors.Is(err, guard.ErrTimeout):
		w.failJob(ctx, job, models.KindTimeout, err.Error(), log)
	case errors.Is(err, guard.ErrBudgetExceeded):
		w.failJob(ctx, job, models.KindBudgetExceeded, err.Error(), log)
	default:
		log.Error("llm call failed, abandoning claim", "error", err)
	}
}

func (w *Worker) failJob(ctx context.Context, job *models.Job, kind models.ErrorKind, detail string, log *slog.Logger) {
	jobErr := models.JobError{Kind: kind, Detail: detail}
	if err := w.store.MarkFailed(ctx, job.JobID(), jobErr); err != nil {
		log.Error("mark failed did not persist, abandoning claim", "error", err, "kind", kind)
		return
	}

	w.collector.RecordJobFailed()
	log.Warn("job failed", "kind", kind, "detail", detail)
	w.publish(events.TopicArtifactFailed, job, nil, &jobErr)
}

func (w *Worker) publish(topic events.Topic, job *models.Job, result *models.Artifact, jobErr *models.JobError) {
	w.bus.Publish(events.Event{
		Topic:        topic,
		JobID:        job.JobID(),
		UserID:       job.UserID,
		NotebookID:   job.NotebookID,
		ArtifactType: job.ArtifactType,
		Timestamp:    time.Now().UTC(),
		Result:       result,
		Error:        jobErr,
	})
}
