// Package errs defines the error taxonomy shared across the runtime.
//
// Components wrap these sentinels with %w so callers can classify failures
// with errors.Is without depending on the component that produced them.
// Collaborator failures (extraction, manifest parsing, script execution) are
// propagated wrapped, never reinterpreted.
package errs

import "errors"

var (
	// ErrInvalidArgument indicates null or malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates an unknown app id or a missing file.
	ErrNotFound = errors.New("not found")

	// ErrResourceExhausted indicates a full registry table or sandbox pool.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrInvalidState indicates an operation that is not valid in the
	// current lifecycle state and is not a documented no-op.
	ErrInvalidState = errors.New("invalid state")

	// ErrAlreadyInProgress indicates a duplicate in-flight operation,
	// such as starting an app whose start has not yet finalized.
	ErrAlreadyInProgress = errors.New("already in progress")
)
