// Package threads stores assistant conversations, one per booking attempt.
package threads

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/google/uuid"
)

type Store interface {
	CreateThread(ctx context.Context, th model.Thread) error
	GetThread(ctx context.Context, tenantID, threadID string) (model.Thread, error)
	UpdateThread(ctx context.Context, th model.Thread) error
	AppendMessage(ctx context.Context, tenantID string, m model.Message) error
	ListMessages(ctx context.Context, tenantID, threadID string) ([]model.Message, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Start opens an active thread, recording opening as the first user message.
func (s *Service) Start(ctx context.Context, tenantID, opening string) (model.Thread, error) {
	now := s.now().UTC()
	th := model.Thread{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Status:    model.ThreadActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateThread(ctx, th); err != nil {
		return model.Thread{}, fmt.Errorf("create thread: %w", err)
	}
	if strings.TrimSpace(opening) != "" {
		if err := s.Append(ctx, tenantID, th.ID, model.RoleUser, opening); err != nil {
			return model.Thread{}, err
		}
	}
	return th, nil
}

// Resume reopens an existing thread for a new attempt.
func (s *Service) Resume(ctx context.Context, tenantID, threadID, message string) (model.Thread, error) {
	th, err := s.store.GetThread(ctx, tenantID, threadID)
	if err != nil {
		return model.Thread{}, err
	}
	th.Status = model.ThreadActive
	th.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateThread(ctx, th); err != nil {
		return model.Thread{}, fmt.Errorf("update thread: %w", err)
	}
	if strings.TrimSpace(message) != "" {
		if err := s.Append(ctx, tenantID, th.ID, model.RoleUser, message); err != nil {
			return model.Thread{}, err
		}
	}
	return th, nil
}

func (s *Service) Append(ctx context.Context, tenantID, threadID string, role model.MessageRole, content string) error {
	m := model.Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, tenantID, m); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Reply appends an assistant message unless it is already the thread's last
// message, so a resumed run does not repeat itself.
func (s *Service) Reply(ctx context.Context, tenantID, threadID, content string) error {
	msgs, err := s.store.ListMessages(ctx, tenantID, threadID)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == model.RoleAssistant && msgs[n-1].Content == content {
		return nil
	}
	return s.Append(ctx, tenantID, threadID, model.RoleAssistant, content)
}

type Update struct {
	Title   string
	Summary string
	Status  model.ThreadStatus
}

// Finish sets the terminal status; empty title or summary keep current values.
func (s *Service) Finish(ctx context.Context, tenantID, threadID string, u Update) error {
	th, err := s.store.GetThread(ctx, tenantID, threadID)
	if err != nil {
		return err
	}
	if u.Title != "" {
		th.Title = u.Title
	}
	if u.Summary != "" {
		th.Summary = u.Summary
	}
	if u.Status != "" {
		th.Status = u.Status
	}
	th.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateThread(ctx, th); err != nil {
		return fmt.Errorf("update thread: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, tenantID, threadID string) (model.Thread, []model.Message, error) {
	th, err := s.store.GetThread(ctx, tenantID, threadID)
	if err != nil {
		return model.Thread{}, nil, err
	}
	msgs, err := s.store.ListMessages(ctx, tenantID, threadID)
	if err != nil {
		return model.Thread{}, nil, err
	}
	return th, msgs, nil
}
