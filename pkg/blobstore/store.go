// Package blobstore provides the storage gateway for uploaded objects,
// backed by S3-compatible storage. The coordinator never talks to the
// backend except through the Gateway interface.
package blobstore

import (
	"context"
	"io"
	"time"
)

// Part identifies one completed part of a multipart upload as reported by
// the client manifest.
type Part struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"eTag"`
}

// Object describes a stored object.
type Object struct {
	Key          string            `json:"key"`
	Bucket       string            `json:"bucket"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"content_type"`
	LastModified time.Time         `json:"last_modified"`
	Metadata     map[string]string `json:"metadata"`
	Location     string            `json:"location"`
}

// Gateway is the capability interface the coordinator depends on. Every
// operation is a network call: fallible, latency-bearing, and only
// idempotent where the backend contract says so (complete/abort are,
// create is not — two creates yield two distinct upload IDs for one key,
// which is why the session manager owns the upload ID lifecycle).
type Gateway interface {
	// CreateMultipart starts a multipart upload and returns the backend
	// upload ID.
	CreateMultipart(ctx context.Context, key string, contentType string) (string, error)

	// SignPart returns a time-limited URL the client PUTs one part to.
	SignPart(ctx context.Context, key string, uploadID string, partNumber int, expiry time.Duration) (string, error)

	// CompleteMultipart finalizes the upload from an ordered part manifest
	// and returns the final object location.
	CompleteMultipart(ctx context.Context, key string, uploadID string, parts []Part) (string, error)

	// AbortMultipart discards the upload and any stored parts.
	AbortMultipart(ctx context.Context, key string, uploadID string) error

	// PutObject stores a small object in one shot, no intermediate state.
	PutObject(ctx context.Context, key string, reader io.Reader, size int64, contentType string, metadata map[string]string) (string, error)

	// PresignPut returns a time-limited URL for a single-shot client PUT.
	PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error)

	// PresignGet returns a time-limited download URL for a stored object.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Rename moves an object to a new key and returns the new location.
	// Renaming a key onto itself is a no-op, not an error.
	Rename(ctx context.Context, sourceKey, destKey string) (string, error)

	// EnsureBucket ensures the bucket exists, creating it if necessary.
	EnsureBucket(ctx context.Context) error
}

// Multipart part numbers accepted by S3-compatible backends.
const (
	MinPartNumber = 1
	MaxPartNumber = 10000
)
