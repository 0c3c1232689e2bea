package uplink

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map. Used for tests and
// single-node dev runs without Postgres. The mutex makes RecordUse's
// check-and-increment atomic, matching the guarantee the SQL store gets
// from its guarded UPDATE.
type MemoryStore struct {
	mu    sync.Mutex
	links map[string]*Link
}

// NewMemoryStore creates an empty in-memory link store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{links: make(map[string]*Link)}
}

// Get returns the link for token.
func (s *MemoryStore) Get(_ context.Context, token string) (*Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *link
	return &cp, nil
}

// RecordUse atomically check-and-increments the use counter.
func (s *MemoryStore) RecordUse(_ context.Context, token string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[token]
	if !ok {
		return ErrNotFound
	}
	if err := link.Usable(now); err != nil {
		return err
	}

	link.UsedCount++
	return nil
}

// Create persists a new link.
func (s *MemoryStore) Create(_ context.Context, link *Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *link
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.links[cp.Token] = &cp
	return nil
}

// Deactivate marks a link inactive.
func (s *MemoryStore) Deactivate(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[token]
	if !ok {
		return ErrNotFound
	}
	link.IsActive = false
	return nil
}

// List returns all links, newest first.
func (s *MemoryStore) List(_ context.Context) ([]*Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	links := make([]*Link, 0, len(s.links))
	for _, link := range s.links {
		cp := *link
		links = append(links, &cp)
	}
	sort.Slice(links, func(i, j int) bool {
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	return links, nil
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
