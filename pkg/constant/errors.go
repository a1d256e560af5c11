// Package constant holds sentinel errors shared across the outbox engine's
// packages, kept separate from pkg/errs so a repository can return
// "errors.Is(err, constant.ErrBadRequest)" without importing the full error
// struct types.
package constant

import "errors"

var (
	// ErrBadRequest marks a caller-supplied argument (empty id, malformed
	// filter, ...) as invalid before any I/O was attempted.
	ErrBadRequest = errors.New("bad request")

	// ErrEntityNotFound marks a repository lookup that found no matching row.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrInvalidStatusTransition marks an attempted outbox status transition
	// that the state machine does not allow.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)
