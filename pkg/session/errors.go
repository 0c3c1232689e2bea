package session

import "errors"

// Common errors
var (
	// ErrUnknownSession is returned for an uploadId the manager doesn't own.
	ErrUnknownSession = errors.New("session: unknown upload session")

	// ErrInvalidPartNumber is returned for part numbers outside [1, 10000].
	ErrInvalidPartNumber = errors.New("session: part number out of range")

	// ErrStateConflict is returned when complete or abort is called in a
	// state that forbids it.
	ErrStateConflict = errors.New("session: operation invalid in current state")

	// ErrStorageTimeout marks a gateway call that exceeded its bounded
	// per-call timeout. Distinct from other storage failures because it is
	// always safe to classify as transient.
	ErrStorageTimeout = errors.New("session: storage call timed out")
)
