package kv

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_SetGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "upload:abc", []byte("41"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := store.Get(ctx, "upload:abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "41" {
		t.Errorf("expected 41, got %s", val)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "upload:abc", []byte("41"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(25 * time.Millisecond)

	_, err := store.Get(ctx, "upload:abc")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after TTL, got %v", err)
	}
}

func TestMemoryStore_SetNX(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	set, err := store.SetNX(ctx, "anchor", []byte("first"), 0)
	if err != nil || !set {
		t.Fatalf("first SetNX: set=%v err=%v", set, err)
	}

	set, err = store.SetNX(ctx, "anchor", []byte("second"), 0)
	if err != nil {
		t.Fatalf("second SetNX failed: %v", err)
	}
	if set {
		t.Error("second SetNX should not overwrite")
	}

	val, _ := store.Get(ctx, "anchor")
	if string(val) != "first" {
		t.Errorf("expected first, got %s", val)
	}
}
