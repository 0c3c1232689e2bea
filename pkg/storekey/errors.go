package storekey

import "errors"

// ErrInvalidFilename is returned when sanitization leaves nothing usable.
// Should be unreachable for real uploads, but filenames are untrusted input
// so the check stays.
var ErrInvalidFilename = errors.New("storekey: filename sanitizes to an invalid key segment")
