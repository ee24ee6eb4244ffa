// Package syncerrs defines the error kinds shared across the synchronization
// core, following the sentinel-plus-wrapper pattern: every failure mode is a
// package-level sentinel, wrapped in a *SyncError that carries the operation
// and record context. Callers classify with errors.Is/errors.As rather than
// string matching.
package syncerrs

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification. Use errors.Is(err, syncerrs.ErrX).
var (
	// ErrRetryable marks a transient network/store failure eligible for
	// backoff-and-retry.
	ErrRetryable = errors.New("syncerrs: retryable failure")
	// ErrSuperseded marks a write rejected because the stored copy is
	// already newer than the incoming one.
	ErrSuperseded = errors.New("syncerrs: write superseded by newer version")
	// ErrConflict marks a record that required conflict resolution.
	ErrConflict = errors.New("syncerrs: conflicting concurrent updates")
	// ErrInvalidConfig marks configuration rejected at a validation boundary.
	ErrInvalidConfig = errors.New("syncerrs: invalid configuration")
	// ErrPeerUnreachable marks a store that failed to respond to ping.
	ErrPeerUnreachable = errors.New("syncerrs: peer store unreachable")
	// ErrUsernameConflict marks a user creation rejected because the id is
	// already live on the external store.
	ErrUsernameConflict = errors.New("syncerrs: username already exists")
	// ErrUniquenessUnverifiable marks a user creation rejected because the
	// external store could not be reached to check uniqueness.
	ErrUniquenessUnverifiable = errors.New("syncerrs: username uniqueness could not be verified")
	// ErrTransitionBusy marks a transition request rejected because another
	// transition is already in flight.
	ErrTransitionBusy = errors.New("syncerrs: a mode transition is already in progress")
	// ErrCorruptSnapshot marks a restore aborted due to a content hash
	// mismatch.
	ErrCorruptSnapshot = errors.New("syncerrs: snapshot content hash mismatch")
	// ErrInternal marks an unexpected failure that should be logged with
	// context and trigger a task restart with backoff.
	ErrInternal = errors.New("syncerrs: internal error")
)

// SyncError wraps a sentinel with structured context for logging and
// returns to collaborators.
type SyncError struct {
	Op       string // operation being attempted, e.g. "store.put"
	DataType string // data type involved, if any
	RecordID string // record id involved, if any
	Err      error  // sentinel, for errors.Is()
}

func (e *SyncError) Error() string {
	switch {
	case e.DataType != "" && e.RecordID != "":
		return fmt.Sprintf("syncerrs: %s (%s/%s): %v", e.Op, e.DataType, e.RecordID, e.Err)
	case e.DataType != "":
		return fmt.Sprintf("syncerrs: %s (%s): %v", e.Op, e.DataType, e.Err)
	default:
		return fmt.Sprintf("syncerrs: %s: %v", e.Op, e.Err)
	}
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Wrap builds a *SyncError for op/dataType/recordID around sentinel.
func Wrap(sentinel error, op, dataType, recordID string) *SyncError {
	return &SyncError{Op: op, DataType: dataType, RecordID: recordID, Err: sentinel}
}

// IsRetryable reports whether err (or any error it wraps) should be retried
// with backoff. Centralizes the policy instead of scattering status-code
// checks across adapters.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}
