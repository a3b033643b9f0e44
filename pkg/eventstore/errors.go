// Package eventstore persists each task as an append-only JSONL event log
// with a cached projection, an optional per-context index, live
// subscriptions, and filtered listing. The log is the source of truth;
// projections and indexes are rebuildable caches.
package eventstore

import "errors"

// Sentinel errors returned by store operations. Callers match with
// errors.Is and translate at the API boundary.
var (
	// ErrTaskNotFound indicates no event log exists for the task.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskTerminal indicates an append against a task already in a
	// terminal state.
	ErrTaskTerminal = errors.New("task is in a terminal state")

	// ErrVersionConflict indicates the expected version did not match the
	// next version to be assigned.
	ErrVersionConflict = errors.New("version conflict")

	// ErrContextMismatch indicates an event whose contextId differs from
	// the task's.
	ErrContextMismatch = errors.New("event context does not match task context")

	// ErrInvalidEvent indicates an event that violates structural rules.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidListRequest indicates a bad page size or page token.
	ErrInvalidListRequest = errors.New("invalid list request")
)
