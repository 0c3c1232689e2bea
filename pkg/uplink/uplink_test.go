package uplink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func intPtr(n int) *int { return &n }

func activeLink(token string, maxUses *int) *Link {
	return &Link{
		Token:      token,
		ProjectRef: "projX",
		ClientRef:  "acme",
		ExpiresAt:  time.Now().Add(time.Hour),
		MaxUses:    maxUses,
		IsActive:   true,
	}
}

func TestValidate_ActiveLink(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, activeLink("tok-1", nil)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	authority := NewAuthority(store)
	grant, err := authority.Validate(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if grant.ClientRef != "acme" || grant.ProjectRef != "projX" {
		t.Errorf("unexpected grant: %+v", grant)
	}
}

func TestValidate_HasNoSideEffects(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, activeLink("tok-1", intPtr(1))); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	authority := NewAuthority(store)
	for i := 0; i < 5; i++ {
		if _, err := authority.Validate(ctx, "tok-1"); err != nil {
			t.Fatalf("Validate %d failed: %v", i, err)
		}
	}

	link, _ := store.Get(ctx, "tok-1")
	if link.UsedCount != 0 {
		t.Errorf("Validate incremented used count to %d", link.UsedCount)
	}
}

func TestValidate_Rejections(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	authority := NewAuthority(store)

	expired := activeLink("expired", nil)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	store.Create(ctx, expired)

	inactive := activeLink("inactive", nil)
	inactive.IsActive = false
	store.Create(ctx, inactive)

	exhausted := activeLink("exhausted", intPtr(2))
	exhausted.UsedCount = 2
	store.Create(ctx, exhausted)

	cases := []struct {
		token string
		want  error
	}{
		{"missing", ErrNotFound},
		{"expired", ErrExpired},
		{"inactive", ErrInactive},
		{"exhausted", ErrExhausted},
	}
	for _, tc := range cases {
		_, err := authority.Validate(ctx, tc.token)
		if !errors.Is(err, tc.want) {
			t.Errorf("token %s: expected %v, got %v", tc.token, tc.want, err)
		}
		if !IsDenied(err) {
			t.Errorf("token %s: rejection not covered by IsDenied", tc.token)
		}
	}
}

func TestRecordUse_ConcurrentExhaustion(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, activeLink("tok-1", intPtr(2))); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	authority := NewAuthority(store)

	var wg sync.WaitGroup
	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- authority.RecordUse(ctx, "tok-1")
		}()
	}
	wg.Wait()
	close(results)

	var successes, exhausted int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrExhausted):
			exhausted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 2 || exhausted != 1 {
		t.Errorf("expected 2 successes and 1 exhaustion, got %d and %d", successes, exhausted)
	}
}

func TestRecordUse_UnlimitedLink(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, activeLink("tok-1", nil)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	authority := NewAuthority(store)
	for i := 0; i < 100; i++ {
		if err := authority.RecordUse(ctx, "tok-1"); err != nil {
			t.Fatalf("RecordUse %d failed: %v", i, err)
		}
	}
}

func TestDeactivate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Create(ctx, activeLink("tok-1", nil))
	if err := store.Deactivate(ctx, "tok-1"); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	_, err := NewAuthority(store).Validate(ctx, "tok-1")
	if !errors.Is(err, ErrInactive) {
		t.Errorf("expected ErrInactive, got %v", err)
	}

	if err := store.Deactivate(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing token, got %v", err)
	}
}
