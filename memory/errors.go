package memory

import (
	"errors"
	"fmt"
)

// Sentinel errors for the tier-level failure taxonomy. Callers match
// with errors.Is; the concrete types below carry operation context.
var (
	// ErrStorage indicates a durable write failed. Degraded mode still
	// updates the in-process buffer.
	ErrStorage = errors.New("memory: storage failure")

	// ErrRetrieval indicates search or the backing store is unavailable.
	// Callers degrade to short-term-only context.
	ErrRetrieval = errors.New("memory: retrieval failure")

	// ErrConsolidation indicates a profile merge failed this cycle.
	// The merge is retried on the next cycle.
	ErrConsolidation = errors.New("memory: consolidation failure")
)

// StorageError wraps a failed durable write with the operation that
// attempted it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports whether target is ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// RetrievalError wraps a failed search or backend read.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval error in %s: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

func (e *RetrievalError) Is(target error) bool { return target == ErrRetrieval }

// ConsolidationError wraps a failed profile merge for one user.
type ConsolidationError struct {
	UserID string
	Err    error
}

func (e *ConsolidationError) Error() string {
	return fmt.Sprintf("consolidation error for user %s: %v", e.UserID, e.Err)
}

func (e *ConsolidationError) Unwrap() error { return e.Err }

func (e *ConsolidationError) Is(target error) bool { return target == ErrConsolidation }
