package db

import (
	"fmt"

	"github.com/raphaelgruber/studygen-go/internal/models"
)

// ValidateSnapshotCompatibility compares a job's stored snapshot tags
// against the caller's current configuration. Pure function; the worker
// runs it before entering the planning phase, since a snapshot chunked or
// embedded under different settings cannot be trusted as grounding content.
func ValidateSnapshotCompatibility(snapshot models.RetrievalSnapshot, embeddingModel, chunkingVersion string) (bool, string) {
	if snapshot.EmbeddingModel != embeddingModel {
		return false, fmt.Sprintf("snapshot embedding model %q does not match current %q",
			snapshot.EmbeddingModel, embeddingModel)
	}
	if snapshot.ChunkingVersion != chunkingVersion {
		return false, fmt.Sprintf("snapshot chunking version %q does not match current %q",
			snapshot.ChunkingVersion, chunkingVersion)
	}
	return true, ""
}
