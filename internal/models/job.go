// Package models defines data structures for the studygen artifact pipeline.
package models

import (
	"fmt"
	"strings"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// JobStatus represents the state of an artifact-generation job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusPlanning   JobStatus = "planning"
	StatusGenerating JobStatus = "generating"
	StatusValidating JobStatus = "validating"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a final one.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ArtifactType identifies what kind of study artifact a job produces.
type ArtifactType string

const (
	ArtifactQuiz       ArtifactType = "quiz"
	ArtifactFlashcards ArtifactType = "flashcards"
	ArtifactMindmap    ArtifactType = "mindmap"
)

// ValidArtifactType reports whether t is a known artifact type.
func ValidArtifactType(t ArtifactType) bool {
	switch t {
	case ArtifactQuiz, ArtifactFlashcards, ArtifactMindmap:
		return true
	}
	return false
}

// ErrorKind classifies terminal job failures.
type ErrorKind string

const (
	KindTimeout              ErrorKind = "timeout"
	KindBudgetExceeded       ErrorKind = "budget_exceeded"
	KindSnapshotIncompatible ErrorKind = "snapshot_incompatible"
	KindValidationFailed     ErrorKind = "validation_failed"
	KindWorkerRestart        ErrorKind = "worker_restart"
)

// JobError is the persisted failure record of a job. It is data, not a Go
// error: callers polling or subscribed to events receive it verbatim.
type JobError struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

func (e JobError) String() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// SnapshotChunk is one retrieved text chunk inside a retrieval snapshot.
type SnapshotChunk struct {
	Text     string `json:"text"`
	SourceID string `json:"source_id"`
	ChunkID  string `json:"chunk_id"`
}

// RetrievalSnapshot is the immutable grounding content of a job, captured
// once at creation. The pipeline never re-queries the retrieval system.
type RetrievalSnapshot struct {
	Chunks          []SnapshotChunk `json:"chunks"`
	EmbeddingModel  string          `json:"embedding_model"`
	ChunkingVersion string          `json:"chunking_version"`
}

// JoinedText concatenates all chunk texts, tagged with their source IDs,
// for use in prompts.
func (s RetrievalSnapshot) JoinedText() string {
	var b strings.Builder
	for i, c := range s.Chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[source:%s chunk:%s]\n%s", c.SourceID, c.ChunkID, c.Text)
	}
	return b.String()
}

// SourceIDs returns the unique source IDs referenced by the snapshot,
// in first-seen order.
func (s RetrievalSnapshot) SourceIDs() []string {
	seen := make(map[string]bool, len(s.Chunks))
	ids := make([]string, 0, len(s.Chunks))
	for _, c := range s.Chunks {
		if !seen[c.SourceID] {
			seen[c.SourceID] = true
			ids = append(ids, c.SourceID)
		}
	}
	return ids
}

// Plan is the output of the planning phase: the concepts and shape the
// generated artifact should cover. Set once, read-only afterwards.
type Plan struct {
	Title       string   `json:"title"`
	Concepts    []string `json:"concepts"`
	KeyTerms    []string `json:"key_terms,omitempty"`
	TargetItems int      `json:"target_items"`
}

// Job is the persisted state-machine entity, one document per generation
// request.
type Job struct {
	ID surrealmodels.RecordID `json:"id"`

	UserID       string       `json:"user_id"`
	NotebookID   string       `json:"notebook_id"`
	ArtifactType ArtifactType `json:"artifact_type"`

	// Fingerprint identifies a logically-equivalent request for idempotency.
	// ActiveFingerprint mirrors it while the job is non-terminal and is
	// cleared on completion/failure; a unique index on
	// (user_id, active_fingerprint) makes concurrent duplicate creation
	// resolve to a single document.
	Fingerprint       string  `json:"fingerprint"`
	ActiveFingerprint *string `json:"active_fingerprint,omitempty"`

	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`

	Snapshot RetrievalSnapshot `json:"retrieval_snapshot"`
	Plan     *Plan             `json:"plan,omitempty"`
	Options  map[string]any    `json:"options,omitempty"`

	TokenBudget int `json:"token_budget"`
	TokensUsed  int `json:"tokens_used"`

	WorkerID   *string `json:"worker_id,omitempty"`
	RetryCount int     `json:"retry_count"`

	Result *Artifact `json:"result,omitempty"`
	Error  *JobError `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobID returns the job's string identifier.
func (j *Job) JobID() string {
	return MustRecordIDString(j.ID)
}
