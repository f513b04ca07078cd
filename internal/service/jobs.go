// Package service provides the creation-side API of the pipeline:
// fingerprinted idempotent job creation and user-scoped reads.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/raphaelgruber/studygen-go/internal/db"
	"github.com/raphaelgruber/studygen-go/internal/models"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// JobRequest is what a creation caller supplies. SourceIDs may be empty, in
// which case they are derived from the snapshot; either way they feed the
// fingerprint, so logically-equivalent requests collapse onto one job.
type JobRequest struct {
	UserID       string
	NotebookID   string
	ArtifactType models.ArtifactType
	SourceIDs    []string
	Options      map[string]any
	TokenBudget  int
}

// JobService handles job creation and reads.
type JobService struct {
	db            *db.Client
	defaultBudget int
	logger        *slog.Logger
}

// NewJobService creates a job service.
func NewJobService(dbClient *db.Client, defaultBudget int, logger *slog.Logger) *JobService {
	return &JobService{db: dbClient, defaultBudget: defaultBudget, logger: logger}
}

// CreateOrGet creates a new pending job for the request, or returns the
// already-active job with the same fingerprint. The retrieval snapshot is
// captured here, once; the pipeline never re-queries the retrieval system.
// The boolean result reports whether a new job was created.
func (s *JobService) CreateOrGet(ctx context.Context, req JobRequest, snapshot models.RetrievalSnapshot) (*models.Job, bool, error) {
	job, err := BuildJob(req, snapshot, s.defaultBudget)
	if err != nil {
		return nil, false, err
	}

	stored, created, err := s.db.CreateOrGetJob(ctx, job)
	if err != nil {
		return nil, false, fmt.Errorf("create or get job: %w", err)
	}

	if created {
		s.logger.Info("job created",
			"job_id", stored.JobID(),
			"user_id", req.UserID,
			"artifact_type", req.ArtifactType,
			"chunks", len(snapshot.Chunks),
			"token_budget", stored.TokenBudget)
	} else {
		s.logger.Info("duplicate request resolved to active job",
			"job_id", stored.JobID(),
			"user_id", req.UserID,
			"fingerprint", job.Fingerprint)
	}
	return stored, created, nil
}

// BuildJob validates a request and assembles the pending job document.
func BuildJob(req JobRequest, snapshot models.RetrievalSnapshot, defaultBudget int) (*models.Job, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if req.NotebookID == "" {
		return nil, fmt.Errorf("notebook_id is required")
	}
	if !models.ValidArtifactType(req.ArtifactType) {
		return nil, fmt.Errorf("unknown artifact type %q", req.ArtifactType)
	}
	if len(snapshot.Chunks) == 0 {
		return nil, fmt.Errorf("retrieval snapshot has no chunks")
	}
	if snapshot.EmbeddingModel == "" || snapshot.ChunkingVersion == "" {
		return nil, fmt.Errorf("retrieval snapshot is missing compatibility tags")
	}

	budget := req.TokenBudget
	if budget <= 0 {
		budget = defaultBudget
	}

	sourceIDs := req.SourceIDs
	if len(sourceIDs) == 0 {
		sourceIDs = snapshot.SourceIDs()
	}

	fingerprint := models.Fingerprint(req.UserID, req.NotebookID, req.ArtifactType, sourceIDs, req.Options)

	return &models.Job{
		ID:                surrealmodels.NewRecordID("artifact_job", uuid.New().String()),
		UserID:            req.UserID,
		NotebookID:        req.NotebookID,
		ArtifactType:      req.ArtifactType,
		Fingerprint:       fingerprint,
		ActiveFingerprint: &fingerprint,
		Status:            models.StatusPending,
		Snapshot:          snapshot,
		Options:           req.Options,
		TokenBudget:       budget,
	}, nil
}

// GetJob returns a job scoped to its owner, for polling clients.
func (s *JobService) GetJob(ctx context.Context, userID, id string) (*models.Job, error) {
	job, err := s.db.GetJob(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", id, db.ErrNotFound)
	}
	return job, nil
}

// ListJobs returns a user's jobs, most recent first.
func (s *JobService) ListJobs(ctx context.Context, userID string, limit int) ([]models.Job, error) {
	return s.db.ListJobs(ctx, userID, limit)
}
