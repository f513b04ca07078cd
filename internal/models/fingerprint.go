package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Fingerprint computes the deterministic identity hash of a generation
// request. Two requests with the same user, notebook, artifact type, source
// set and options hash identically regardless of source ordering, which is
// what makes duplicate creation idempotent.
func Fingerprint(userID, notebookID string, artifactType ArtifactType, sourceIDs []string, options map[string]any) string {
	sorted := slices.Clone(sourceIDs)
	slices.Sort(sorted)

	// encoding/json writes map keys in sorted order, so the options
	// encoding is canonical. Nil and empty both mean "no options".
	optJSON := []byte("{}")
	if len(options) > 0 {
		if encoded, err := json.Marshal(options); err == nil {
			optJSON = encoded
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\x00%s\x00%s\x00", userID, notebookID, artifactType)
	for _, id := range sorted {
		b.WriteString(id)
		b.WriteByte('\x00')
	}
	b.Write(optJSON)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
