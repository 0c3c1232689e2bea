// Package uplink validates upload capability tokens against their
// expiry/usage policy and records uses atomically.
package uplink

import (
	"context"
	"time"
)

// Link is an upload capability token record.
type Link struct {
	Token      string     `json:"token"`
	ProjectRef string     `json:"project_ref"`
	ClientRef  string     `json:"client_ref"`
	ExpiresAt  time.Time  `json:"expires_at"`
	MaxUses    *int       `json:"max_uses,omitempty"` // nil = unlimited
	UsedCount  int        `json:"used_count"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Usable returns nil if the link can authorize an upload at instant now,
// or the specific rejection otherwise.
func (l *Link) Usable(now time.Time) error {
	switch {
	case !l.IsActive:
		return ErrInactive
	case !now.Before(l.ExpiresAt):
		return ErrExpired
	case l.MaxUses != nil && l.UsedCount >= *l.MaxUses:
		return ErrExhausted
	default:
		return nil
	}
}

// Store persists upload links. RecordUse must be atomic: two
// near-simultaneous calls racing a stale `used_count < max_uses` read must
// never both succeed past the bound.
type Store interface {
	// Get returns the link for token, or ErrNotFound.
	Get(ctx context.Context, token string) (*Link, error)

	// RecordUse atomically check-and-increments the use counter.
	// Returns the specific rejection when the link is unusable.
	RecordUse(ctx context.Context, token string, now time.Time) error

	// Create persists a new link.
	Create(ctx context.Context, link *Link) error

	// Deactivate marks a link inactive. Links are never deleted.
	Deactivate(ctx context.Context, token string) error

	// List returns all links, newest first.
	List(ctx context.Context) ([]*Link, error)
}

// Grant is what a validated token entitles the caller to.
type Grant struct {
	ProjectRef string
	ClientRef  string
	ExpiresAt  time.Time
}

// Authority answers whether a token may start or continue an upload.
type Authority struct {
	store Store
	now   func() time.Time
}

// NewAuthority creates an Authority over the given store.
func NewAuthority(store Store) *Authority {
	return &Authority{store: store, now: time.Now}
}

// Validate is a read-only check. No side effects: a client polling params
// repeatedly must not burn uses.
func (a *Authority) Validate(ctx context.Context, token string) (*Grant, error) {
	link, err := a.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := link.Usable(a.now()); err != nil {
		return nil, err
	}

	return &Grant{
		ProjectRef: link.ProjectRef,
		ClientRef:  link.ClientRef,
		ExpiresAt:  link.ExpiresAt,
	}, nil
}

// RecordUse burns one use of the token. Called exactly once per
// successfully initiated upload session, never on validation.
func (a *Authority) RecordUse(ctx context.Context, token string) error {
	return a.store.RecordUse(ctx, token, a.now())
}
