package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/detailbook/detailbook/services/booking-service/internal/storage/memory"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	ids  []string
	fail map[string]bool
}

func (d *recordingDispatcher) Dispatch(_ context.Context, runID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[runID] {
		return errors.New("queue unavailable")
	}
	d.ids = append(d.ids, runID)
	return nil
}

func TestSweepDispatchesStaleRuns(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{ID: "stale", TenantID: "t1", State: model.StateCreatingBooking, UpdatedAt: now.Add(-10 * time.Minute)},
		{ID: "stale-broken", TenantID: "t1", State: model.StatePending, UpdatedAt: now.Add(-9 * time.Minute)},
		{ID: "fresh", TenantID: "t1", State: model.StateParsing, UpdatedAt: now.Add(-30 * time.Second)},
		{ID: "done", TenantID: "t1", State: model.StateCompleted, UpdatedAt: now.Add(-time.Hour)},
	}
	for _, r := range runs {
		if err := store.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	d := &recordingDispatcher{fail: map[string]bool{"stale-broken": true}}
	s, err := NewSweeper(store, d, discard(), SweeperConfig{StaleAfter: 2 * time.Minute})
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	s.now = func() time.Time { return now }

	if n := s.Sweep(ctx); n != 1 {
		t.Fatalf("dispatched %d, want 1", n)
	}
	if len(d.ids) != 1 || d.ids[0] != "stale" {
		t.Fatalf("dispatched %v", d.ids)
	}
}

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	if _, err := NewSweeper(memory.New(), &recordingDispatcher{}, discard(), SweeperConfig{Schedule: "every now and then"}); err == nil {
		t.Fatal("expected schedule error")
	}
}
