package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound means the report references a task the store does not know.
	ErrTaskNotFound = errors.New("task not found")
	// ErrNodeNotFound means a node result references an unknown node.
	ErrNodeNotFound = errors.New("node not found")
	// ErrMalformedReport covers undecodable payloads and missing task_uuid.
	ErrMalformedReport = errors.New("malformed report")
	// ErrUnknownKind is a malformed report whose kind has no registered handler.
	ErrUnknownKind = fmt.Errorf("unknown report kind: %w", ErrMalformedReport)
	// ErrStoreCommit wraps a persistence failure.
	ErrStoreCommit = errors.New("store commit failed")
	// ErrPartialApply means node rows were written before the report failed.
	ErrPartialApply = errors.New("report partially applied")
)

// IsRejected reports whether err drops the report without any mutation.
// Errors carrying ErrStoreCommit or ErrPartialApply are never rejections.
func IsRejected(err error) bool {
	if errors.Is(err, ErrStoreCommit) || errors.Is(err, ErrPartialApply) {
		return false
	}
	return errors.Is(err, ErrMalformedReport) || errors.Is(err, ErrTaskNotFound)
}
