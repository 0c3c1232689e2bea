// Package session owns the multipart upload lifecycle: one storage key,
// one backend upload ID, and the state machine between them. The manager
// never retries storage calls itself; failures surface verbatim with key,
// uploadId and partNumber context so the caller can pick a retry policy
// per failure class.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/blobstore"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/storekey"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/uplog"
)

// State is the lifecycle state of one upload session.
type State string

const (
	StateOpen       State = "open"
	StateCompleting State = "completing"
	StateCompleted  State = "completed"
	StateAborted    State = "aborted"
)

// Session is one multipart upload in flight. Owned exclusively by the
// Manager; callers address it by uploadId only.
type Session struct {
	// mu serializes complete/abort per session. SignPart reads state under
	// it but performs its gateway call outside, since part signing is
	// stateless and trivially concurrent.
	mu sync.Mutex

	uploadID    string
	key         storekey.Key
	linkToken   string
	contentType string
	state       State
	parts       []blobstore.Part
	startedAt   time.Time
	lastActive  time.Time
}

// UploadID returns the backend-issued upload ID.
func (s *Session) UploadID() string { return s.uploadID }

// Key returns the canonical storage key for this session.
func (s *Session) Key() storekey.Key { return s.key }

// LinkToken returns the owning upload link's token.
func (s *Session) LinkToken() string { return s.linkToken }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Parts returns the recorded part manifest (set at completion time).
func (s *Session) Parts() []blobstore.Part {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]blobstore.Part(nil), s.parts...)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// Config tunes the manager.
type Config struct {
	// CallTimeout bounds every gateway call. Zero means DefaultCallTimeout.
	CallTimeout time.Duration

	// SignExpiry is the lifetime of signed part/put URLs.
	SignExpiry time.Duration

	// EvictAfter is how long a terminal session stays addressable, so
	// in-flight duplicate completion or abort calls still resolve instead
	// of reporting an unknown session.
	EvictAfter time.Duration
}

// Default tuning.
const (
	DefaultCallTimeout = 30 * time.Second
	DefaultSignExpiry  = 15 * time.Minute
	DefaultEvictAfter  = 2 * time.Minute
)

func (c *Config) withDefaults() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.SignExpiry <= 0 {
		c.SignExpiry = DefaultSignExpiry
	}
	if c.EvictAfter <= 0 {
		c.EvictAfter = DefaultEvictAfter
	}
}

// Manager owns every open upload session, keyed by uploadId.
type Manager struct {
	gateway blobstore.Gateway
	logger  *uplog.Logger
	cfg     Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager over the given storage gateway.
func NewManager(gateway blobstore.Gateway, logger *uplog.Logger, cfg Config) *Manager {
	cfg.withDefaults()
	if logger == nil {
		logger = uplog.NewDefault()
	}
	return &Manager{
		gateway:  gateway,
		logger:   logger,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Start opens a multipart upload for key and registers the session.
// create-multipart is NOT idempotent at the backend (two creates yield two
// upload IDs for the same key), so this is the only place an upload ID is
// ever minted.
func (m *Manager) Start(ctx context.Context, key storekey.Key, linkToken, contentType string) (*Session, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	uploadID, err := m.gateway.CreateMultipart(callCtx, key.String(), contentType)
	if err != nil {
		return nil, m.storageErr(fmt.Errorf("create multipart for key %q: %w", key, err))
	}

	now := time.Now()
	sess := &Session{
		uploadID:    uploadID,
		key:         key,
		linkToken:   linkToken,
		contentType: contentType,
		state:       StateOpen,
		startedAt:   now,
		lastActive:  now,
	}

	m.mu.Lock()
	m.sessions[uploadID] = sess
	m.mu.Unlock()

	m.logger.Info("upload session opened", "key", key.String(), "uploadId", uploadID)
	return sess, nil
}

// Get returns the session for uploadId, or ErrUnknownSession.
func (m *Manager) Get(uploadID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[uploadID]
	if !ok {
		return nil, ErrUnknownSession
	}
	return sess, nil
}

// SignPart returns a time-limited URL for uploading one part. Valid only
// while the session is Open. Parts are not recorded here: the manifest
// arrives with the completion call, so signing mutates nothing and any
// number of signs may run concurrently.
func (m *Manager) SignPart(ctx context.Context, uploadID string, partNumber int) (string, error) {
	if partNumber < blobstore.MinPartNumber || partNumber > blobstore.MaxPartNumber {
		return "", fmt.Errorf("%w: %d", ErrInvalidPartNumber, partNumber)
	}

	sess, err := m.Get(uploadID)
	if err != nil {
		return "", err
	}
	if state := sess.State(); state != StateOpen {
		return "", fmt.Errorf("%w: sign part in state %s", ErrStateConflict, state)
	}
	sess.touch()

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	signed, err := m.gateway.SignPart(callCtx, sess.key.String(), uploadID, partNumber, m.cfg.SignExpiry)
	if err != nil {
		return "", m.storageErr(fmt.Errorf("sign part %d for key %q uploadId %q: %w", partNumber, sess.key, uploadID, err))
	}
	return signed, nil
}

// Complete finalizes the session from the client-supplied part manifest
// and returns the final object location. The manifest is filtered of
// entries missing a part number or etag (an upload widget may send a
// slightly stale manifest; dropped entries are logged loudly, not fatal),
// then sorted by part number before it reaches the backend.
//
// On gateway failure the session stays in Completing and the caller may
// retry with the same manifest; the backend accepts complete retries
// safely provided the part set is unchanged.
func (m *Manager) Complete(ctx context.Context, uploadID string, parts []blobstore.Part) (string, error) {
	sess, err := m.Get(uploadID)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch sess.state {
	case StateOpen, StateCompleting:
		// proceed; Completing means a previous attempt failed transiently
	default:
		return "", fmt.Errorf("%w: complete in state %s", ErrStateConflict, sess.state)
	}

	clean := m.sanitizeParts(sess, parts)
	sess.state = StateCompleting
	sess.parts = clean
	sess.lastActive = time.Now()

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	location, err := m.gateway.CompleteMultipart(callCtx, sess.key.String(), uploadID, clean)
	if err != nil {
		return "", m.storageErr(fmt.Errorf("complete multipart for key %q uploadId %q (%d parts): %w",
			sess.key, uploadID, len(clean), err))
	}

	sess.state = StateCompleted
	m.evictLater(uploadID)
	m.logger.Info("upload session completed",
		"key", sess.key.String(), "uploadId", uploadID, "parts", len(clean), "location", location)
	return location, nil
}

// Abort discards the session. Safe to call more than once: a second abort
// is a no-op because client-side abandonment and idempotent retry logic
// race. Aborting a Completed session is a state conflict — the object
// already exists and abandoning it must be an explicit delete, not an
// abort that silently lost the race with completion.
func (m *Manager) Abort(ctx context.Context, uploadID string) error {
	sess, err := m.Get(uploadID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch sess.state {
	case StateAborted:
		return nil
	case StateCompleted:
		return fmt.Errorf("%w: abort in state %s", ErrStateConflict, sess.state)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	if err := m.gateway.AbortMultipart(callCtx, sess.key.String(), uploadID); err != nil {
		return m.storageErr(fmt.Errorf("abort multipart for key %q uploadId %q: %w", sess.key, uploadID, err))
	}

	sess.state = StateAborted
	m.evictLater(uploadID)
	m.logger.Info("upload session aborted", "key", sess.key.String(), "uploadId", uploadID)
	return nil
}

// PutObject is the single-shot path for small files: a direct store with
// no intermediate state, atomic success or failure.
func (m *Manager) PutObject(ctx context.Context, key storekey.Key, reader io.Reader, size int64, contentType string, metadata map[string]string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	location, err := m.gateway.PutObject(callCtx, key.String(), reader, size, contentType, metadata)
	if err != nil {
		return "", m.storageErr(fmt.Errorf("put object for key %q: %w", key, err))
	}
	return location, nil
}

// ReapIdle aborts every non-terminal session with no activity for at least
// idleFor. The trigger (cron, operator action) lives outside this core;
// this is the in-process half that reclaims backend multipart resources
// for abandoned browser tabs. Returns the uploadIds reaped.
func (m *Manager) ReapIdle(ctx context.Context, idleFor time.Duration) []string {
	cutoff := time.Now().Add(-idleFor)

	// Snapshot the registry first, then inspect each session under its own
	// lock. A session mid-complete holds its lock across a gateway call;
	// taking that lock while still holding m.mu would stall Get/Start for
	// every other upload behind it.
	m.mu.Lock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		candidates = append(candidates, sess)
	}
	m.mu.Unlock()

	var stale []string
	for _, sess := range candidates {
		sess.mu.Lock()
		idle := (sess.state == StateOpen || sess.state == StateCompleting) && sess.lastActive.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			stale = append(stale, sess.uploadID)
		}
	}

	var reaped []string
	for _, id := range stale {
		if err := m.Abort(ctx, id); err != nil {
			m.logger.Warn("failed to reap idle session", "uploadId", id, "error", err.Error())
			continue
		}
		reaped = append(reaped, id)
	}
	return reaped
}

// sanitizeParts drops malformed manifest entries and sorts the rest.
// Caller holds sess.mu.
func (m *Manager) sanitizeParts(sess *Session, parts []blobstore.Part) []blobstore.Part {
	clean := make([]blobstore.Part, 0, len(parts))
	dropped := 0
	for _, p := range parts {
		if p.PartNumber < blobstore.MinPartNumber || p.PartNumber > blobstore.MaxPartNumber || p.ETag == "" {
			dropped++
			continue
		}
		clean = append(clean, p)
	}
	if dropped > 0 {
		m.logger.Warn("dropped malformed part entries from completion manifest",
			"key", sess.key.String(), "uploadId", sess.uploadID,
			"dropped", dropped, "kept", len(clean))
	}

	sort.Slice(clean, func(i, j int) bool {
		return clean[i].PartNumber < clean[j].PartNumber
	})
	return clean
}

// evictLater removes a terminal session from the registry after the grace
// window. Caller holds sess.mu or has just registered the terminal state.
func (m *Manager) evictLater(uploadID string) {
	time.AfterFunc(m.cfg.EvictAfter, func() {
		m.mu.Lock()
		delete(m.sessions, uploadID)
		m.mu.Unlock()
	})
}

// storageErr maps a bounded-timeout expiry onto its own retryable class;
// everything else keeps the gateway's taxonomy.
func (m *Manager) storageErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrStorageTimeout, err)
	}
	return err
}
