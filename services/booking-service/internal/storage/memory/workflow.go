package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

// Threads

func (s *Store) CreateThread(_ context.Context, th model.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[th.ID]; ok {
		return fmt.Errorf("thread %s: %w", th.ID, model.ErrConflict)
	}
	s.threads[th.ID] = th
	return nil
}

func (s *Store) GetThread(_ context.Context, tenantID, threadID string) (model.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[threadID]
	if !ok || th.TenantID != tenantID {
		return model.Thread{}, fmt.Errorf("thread %s: %w", threadID, model.ErrNotFound)
	}
	return th, nil
}

func (s *Store) UpdateThread(_ context.Context, th model.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.threads[th.ID]
	if !ok || existing.TenantID != th.TenantID {
		return fmt.Errorf("thread %s: %w", th.ID, model.ErrNotFound)
	}
	th.CreatedAt = existing.CreatedAt
	s.threads[th.ID] = th
	return nil
}

func (s *Store) AppendMessage(_ context.Context, tenantID string, m model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[m.ThreadID]
	if !ok || th.TenantID != tenantID {
		return fmt.Errorf("thread %s: %w", m.ThreadID, model.ErrNotFound)
	}
	s.messages[m.ThreadID] = append(s.messages[m.ThreadID], m)
	return nil
}

func (s *Store) ListMessages(_ context.Context, tenantID, threadID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[threadID]
	if !ok || th.TenantID != tenantID {
		return nil, fmt.Errorf("thread %s: %w", threadID, model.ErrNotFound)
	}
	out := make([]model.Message, len(s.messages[threadID]))
	copy(out, s.messages[threadID])
	return out, nil
}

// Runs

func (s *Store) CreateRun(_ context.Context, r model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.ID]; ok {
		return fmt.Errorf("run %s: %w", r.ID, model.ErrConflict)
	}
	s.runs[r.ID] = r
	return nil
}

func (s *Store) GetRun(_ context.Context, runID string) (model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return model.Run{}, fmt.Errorf("run %s: %w", runID, model.ErrNotFound)
	}
	return r, nil
}

// UpdateRun never clears a cancel request recorded by RequestRunCancel.
func (s *Store) UpdateRun(_ context.Context, r model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[r.ID]
	if !ok {
		return fmt.Errorf("run %s: %w", r.ID, model.ErrNotFound)
	}
	r.CancelRequested = existing.CancelRequested || r.CancelRequested
	r.CreatedAt = existing.CreatedAt
	s.runs[r.ID] = r
	return nil
}

func (s *Store) RequestRunCancel(_ context.Context, tenantID, runID string) (model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok || r.TenantID != tenantID {
		return model.Run{}, fmt.Errorf("run %s: %w", runID, model.ErrNotFound)
	}
	if r.State.Terminal() {
		return r, fmt.Errorf("run %s is %s: %w", runID, r.State, model.ErrInvalidState)
	}
	r.CancelRequested = true
	s.runs[runID] = r
	return r, nil
}

func (s *Store) ListStaleRuns(_ context.Context, before time.Time, limit int) ([]model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Run
	for _, r := range s.runs {
		if !r.State.Terminal() && r.UpdatedAt.Before(before) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SaveStep(_ context.Context, rec model.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.steps[rec.RunID] == nil {
		s.steps[rec.RunID] = map[string]model.StepRecord{}
	}
	s.steps[rec.RunID][rec.Name] = rec
	return nil
}

func (s *Store) ListSteps(_ context.Context, runID string) ([]model.StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.StepRecord, 0, len(s.steps[runID]))
	for _, rec := range s.steps[runID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}

func (s *Store) DeleteSteps(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.steps, runID)
	return nil
}
