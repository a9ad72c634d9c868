package locking

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalLockerExclusive(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()

	lock, err := locker.Obtain(ctx, "bom:1", time.Minute)
	if err != nil {
		t.Fatalf("Obtain failed: %v", err)
	}

	if _, err := locker.Obtain(ctx, "bom:1", time.Minute); !errors.Is(err, ErrNotObtained) {
		t.Errorf("Expected ErrNotObtained for held key, got %v", err)
	}

	if _, err := locker.Obtain(ctx, "bom:2", time.Minute); err != nil {
		t.Errorf("Expected other key to be free, got %v", err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := locker.Obtain(ctx, "bom:1", time.Minute); err != nil {
		t.Errorf("Expected key to be free after release, got %v", err)
	}
}

func TestLocalLockerExpiry(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	locker.clock = func() time.Time { return now }

	stale, err := locker.Obtain(ctx, "cmd:sync", time.Second)
	if err != nil {
		t.Fatalf("Obtain failed: %v", err)
	}

	now = now.Add(2 * time.Second)
	fresh, err := locker.Obtain(ctx, "cmd:sync", time.Minute)
	if err != nil {
		t.Fatalf("Expected expired lock to be taken over, got %v", err)
	}

	// Releasing the stale handle must not free the new holder
	_ = stale.Release(ctx)
	if _, err := locker.Obtain(ctx, "cmd:sync", time.Minute); !errors.Is(err, ErrNotObtained) {
		t.Errorf("Expected key still held by new owner, got %v", err)
	}
	_ = fresh.Release(ctx)
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()

	ran := false
	err := WithLock(ctx, locker, "job", time.Minute, func(ctx context.Context) error {
		ran = true
		if _, err := locker.Obtain(ctx, "job", time.Minute); !errors.Is(err, ErrNotObtained) {
			t.Errorf("Expected key held inside WithLock, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock failed: %v", err)
	}
	if !ran {
		t.Error("Expected fn to run")
	}
	if _, err := locker.Obtain(ctx, "job", time.Minute); err != nil {
		t.Errorf("Expected key released after WithLock, got %v", err)
	}
}
