package workflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryLockerSerializesKey(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, slotLockKey("t1", "2025-06-10"), time.Minute)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		u, err := l.Lock(ctx, slotLockKey("t1", "2025-06-10"), time.Minute)
		if err == nil {
			u()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	other, err := l.Lock(ctx, slotLockKey("t1", "2025-06-11"), time.Minute)
	if err != nil {
		t.Fatalf("independent key blocked: %v", err)
	}
	other()

	unlock()
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
}

func TestMemoryLockerHonorsContext(t *testing.T) {
	l := NewMemoryLocker()
	unlock, err := l.Lock(context.Background(), "run:r1", time.Minute)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "run:r1", time.Minute); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
