package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for job-store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrJobAlreadyExists indicates an active job with the same
	// (user_id, active_fingerprint) already exists. Creation callers fetch
	// and return that job instead of inserting a duplicate.
	ErrJobAlreadyExists = errors.New("job already exists")

	// ErrTransactionConflict indicates a SurrealDB serialization conflict
	// between concurrent writers. Claim callers treat this as "no job won"
	// and simply poll again.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrNotFound indicates the requested job does not exist, or a guarded
	// status transition matched no document (wrong current state).
	ErrNotFound = errors.New("job not found")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the
// appropriate sentinel if it matches a known query error pattern.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "already exists") || strings.Contains(msg, "already contains") {
			return fmt.Errorf("%w: %s", ErrJobAlreadyExists, msg)
		}
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
	}

	return err
}
