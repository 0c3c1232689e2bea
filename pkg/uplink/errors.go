package uplink

import "errors"

// Common errors
var (
	ErrNotFound  = errors.New("uplink: link not found")
	ErrInactive  = errors.New("uplink: link deactivated")
	ErrExpired   = errors.New("uplink: link expired")
	ErrExhausted = errors.New("uplink: link use count exhausted")
)

// IsDenied reports whether err is any link rejection. The HTTP layer uses
// this to collapse every rejection into one generic message so the wire
// never reveals whether a token existed, expired, or ran out of uses.
func IsDenied(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInactive) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrExhausted)
}
