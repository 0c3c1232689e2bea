package blobstore

import "errors"

// Common errors
var (
	// ErrNotFound is returned when the object or upload does not exist.
	ErrNotFound = errors.New("blobstore: not found")

	// ErrUnavailable marks a transient backend failure. Callers may retry
	// with backoff.
	ErrUnavailable = errors.New("blobstore: storage unavailable")

	// ErrRejected marks a permanent backend rejection (policy denial,
	// malformed request). Retrying without operator intervention is useless.
	ErrRejected = errors.New("blobstore: storage rejected operation")
)
