// Package storekey derives canonical storage keys for uploaded files.
//
// Every code path that needs to address the same logical object (initial
// param request, part signing, completion, rename cleanup) must go through
// Derive; a second sanitizer anywhere else is how objects get orphaned.
package storekey

import (
	"regexp"
	"strings"
)

// FallbackSegment is used when a client or project reference is empty.
const FallbackSegment = "default"

var (
	// whitespaceRuns collapses internal whitespace in client/project names.
	whitespaceRuns = regexp.MustCompile(`\s+`)

	// uuidPrefix matches a canonical 8-4-4-4-12 UUID at the start of a
	// filename, immediately followed by a separator. Upload widgets prepend
	// these to avoid client-side collisions; they must not leak into keys.
	uuidPrefix = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}[-_.]`)

	// illegalChars are rejected by S3-compatible backends or would create
	// path segments. Replaced, not stripped, so names stay distinguishable.
	illegalChars = regexp.MustCompile(`[/\\:*?"<>|]`)
)

// Key is a derived storage key: "{client}/{project}/{filename}".
type Key string

// String returns the key as a plain string.
func (k Key) String() string { return string(k) }

// Filename returns the final segment of the key.
func (k Key) Filename() string {
	s := string(k)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Prefix returns the "{client}/{project}/" portion of the key.
func (k Key) Prefix() string {
	s := string(k)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[:i+1]
	}
	return ""
}

// Derive computes the canonical storage key for an uploaded file.
// It is pure and deterministic: the same inputs always yield the same key,
// which is what makes retries idempotent and keeps one logical file in
// exactly one location.
func Derive(clientRef, projectRef, filename string) (Key, error) {
	client := normalizeSegment(clientRef)
	project := normalizeSegment(projectRef)
	name := sanitizeFilename(filename)

	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidFilename
	}

	return Key(client + "/" + project + "/" + name), nil
}

// CanonicalFilename returns the sanitized form of filename, or
// ErrInvalidFilename when nothing usable survives. It applies the same
// rules Derive applies to the final key segment, so a stored object's
// filename can be checked against the current derivation without
// re-deriving the whole key.
func CanonicalFilename(filename string) (string, error) {
	name := sanitizeFilename(filename)
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidFilename
	}
	return name, nil
}

// normalizeSegment prepares a client or project reference for use as a key
// segment: trims, collapses whitespace runs to underscores, replaces
// illegal characters, and falls back to FallbackSegment when empty.
func normalizeSegment(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return FallbackSegment
	}
	ref = whitespaceRuns.ReplaceAllString(ref, "_")
	ref = illegalChars.ReplaceAllString(ref, "_")
	if ref == "" || ref == "." || ref == ".." {
		return FallbackSegment
	}
	return ref
}

// sanitizeFilename strips an accidental UUID prefix and replaces characters
// the storage backend cannot accept. Filenames are attacker-controlled, so
// the result must never contain a path separator.
func sanitizeFilename(filename string) string {
	name := strings.TrimSpace(filename)
	name = uuidPrefix.ReplaceAllString(name, "")
	name = illegalChars.ReplaceAllString(name, "_")
	return name
}
