package service

import (
	"testing"

	"github.com/raphaelgruber/studygen-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() models.RetrievalSnapshot {
	return models.RetrievalSnapshot{
		Chunks: []models.SnapshotChunk{
			{Text: "alpha", SourceID: "src-b", ChunkID: "src-b#0000"},
			{Text: "beta", SourceID: "src-a", ChunkID: "src-a#0000"},
		},
		EmbeddingModel:  "all-minilm:l6-v2",
		ChunkingVersion: "v2",
	}
}

func validRequest() JobRequest {
	return JobRequest{
		UserID:       "user-1",
		NotebookID:   "nb-1",
		ArtifactType: models.ArtifactQuiz,
	}
}

func TestBuildJob(t *testing.T) {
	job, err := BuildJob(validRequest(), testSnapshot(), 12000)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, 12000, job.TokenBudget)
	assert.NotEmpty(t, job.JobID())
	assert.NotEmpty(t, job.Fingerprint)
	require.NotNil(t, job.ActiveFingerprint)
	assert.Equal(t, job.Fingerprint, *job.ActiveFingerprint)
	assert.Len(t, job.Snapshot.Chunks, 2)
}

func TestBuildJobValidation(t *testing.T) {
	t.Run("missing user", func(t *testing.T) {
		req := validRequest()
		req.UserID = ""
		_, err := BuildJob(req, testSnapshot(), 12000)
		assert.ErrorContains(t, err, "user_id")
	})

	t.Run("missing notebook", func(t *testing.T) {
		req := validRequest()
		req.NotebookID = ""
		_, err := BuildJob(req, testSnapshot(), 12000)
		assert.ErrorContains(t, err, "notebook_id")
	})

	t.Run("unknown artifact type", func(t *testing.T) {
		req := validRequest()
		req.ArtifactType = "poster"
		_, err := BuildJob(req, testSnapshot(), 12000)
		assert.ErrorContains(t, err, "artifact type")
	})

	t.Run("empty snapshot", func(t *testing.T) {
		_, err := BuildJob(validRequest(), models.RetrievalSnapshot{EmbeddingModel: "m", ChunkingVersion: "v"}, 12000)
		assert.ErrorContains(t, err, "no chunks")
	})

	t.Run("missing compatibility tags", func(t *testing.T) {
		snap := testSnapshot()
		snap.ChunkingVersion = ""
		_, err := BuildJob(validRequest(), snap, 12000)
		assert.ErrorContains(t, err, "compatibility tags")
	})
}

func TestBuildJobBudgetDefaulting(t *testing.T) {
	job, err := BuildJob(validRequest(), testSnapshot(), 12000)
	require.NoError(t, err)
	assert.Equal(t, 12000, job.TokenBudget)

	req := validRequest()
	req.TokenBudget = 3000
	job, err = BuildJob(req, testSnapshot(), 12000)
	require.NoError(t, err)
	assert.Equal(t, 3000, job.TokenBudget)
}

func TestBuildJobFingerprintStability(t *testing.T) {
	// Equivalent requests collapse onto one fingerprint; the job ID itself
	// stays unique per document.
	a, err := BuildJob(validRequest(), testSnapshot(), 12000)
	require.NoError(t, err)
	b, err := BuildJob(validRequest(), testSnapshot(), 12000)
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.NotEqual(t, a.JobID(), b.JobID())
}

func TestBuildJobDerivesSourceIDsFromSnapshot(t *testing.T) {
	// Explicit source IDs and snapshot-derived ones produce the same
	// fingerprint regardless of ordering.
	explicit := validRequest()
	explicit.SourceIDs = []string{"src-a", "src-b"}

	a, err := BuildJob(explicit, testSnapshot(), 12000)
	require.NoError(t, err)
	b, err := BuildJob(validRequest(), testSnapshot(), 12000)
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}
