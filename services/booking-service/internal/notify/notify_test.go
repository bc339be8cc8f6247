package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/detailbook/detailbook/libs/kafkax"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

type fakeStore struct {
	mu         sync.Mutex
	items      []model.Notification
	keys       map[string]bool
	deliveries map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: map[string]bool{}, deliveries: map[string]bool{}}
}

func (f *fakeStore) InsertNotification(_ context.Context, n model.Notification) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.DedupeKey != "" {
		k := n.TenantID + "|" + n.DedupeKey
		if f.keys[k] {
			return false, nil
		}
		f.keys[k] = true
	}
	f.items = append(f.items, n)
	return true, nil
}

func (f *fakeStore) ListNotifications(_ context.Context, tenantID string, unreadOnly bool, _ int) ([]model.Notification, error) {
	var out []model.Notification
	for _, n := range f.items {
		if n.TenantID == tenantID && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, tenantID, id string) error {
	for i := range f.items {
		if f.items[i].ID == id && f.items[i].TenantID == tenantID {
			f.items[i].Read = true
			return nil
		}
	}
	return model.ErrNotFound
}

func (f *fakeStore) ClaimDelivery(_ context.Context, tenantID, key string) (bool, error) {
	k := tenantID + "|" + key
	if f.deliveries[k] {
		return false, nil
	}
	f.deliveries[k] = true
	return true, nil
}

func (f *fakeStore) ReleaseDelivery(_ context.Context, tenantID, key string) error {
	delete(f.deliveries, tenantID+"|"+key)
	return nil
}

type recordingPublisher struct {
	published []model.Notification
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, n model.Notification) error {
	p.published = append(p.published, n)
	return p.err
}

type recordingEmail struct {
	sent int
	err  error
}

func (e *recordingEmail) Send(context.Context, string, string, string) error {
	if e.err != nil {
		return e.err
	}
	e.sent++
	return nil
}

type recordingSMS struct{ sent int }

func (s *recordingSMS) Send(context.Context, string, string) error { s.sent++; return nil }
func (s *recordingSMS) ProviderID() string                          { return "test" }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifyDeduplicates(t *testing.T) {
	store := newFakeStore()
	pub := &recordingPublisher{}
	svc := NewService(store, discard(), Config{Publisher: pub})
	n := model.Notification{TenantID: "t1", Type: model.NotificationBookingCreated, ResourceID: "b1", Message: "x", DedupeKey: "run:1:booking_created"}

	created, err := svc.Notify(context.Background(), n)
	if err != nil || !created {
		t.Fatalf("first notify: created=%v err=%v", created, err)
	}
	created, err = svc.Notify(context.Background(), n)
	if err != nil || created {
		t.Fatalf("second notify should be deduplicated: created=%v err=%v", created, err)
	}
	if len(store.items) != 1 || len(pub.published) != 1 {
		t.Fatalf("expected one stored and one published, got %d/%d", len(store.items), len(pub.published))
	}
}

func TestNotifyPublishFailureIsNotFatal(t *testing.T) {
	svc := NewService(newFakeStore(), discard(), Config{Publisher: &recordingPublisher{err: errors.New("broker down")}})
	created, err := svc.Notify(context.Background(), model.Notification{TenantID: "t1", Type: model.NotificationBookingUpdated})
	if err != nil || !created {
		t.Fatalf("expected publish failure to be swallowed, created=%v err=%v", created, err)
	}
	if _, err := svc.Notify(context.Background(), model.Notification{Type: model.NotificationBookingUpdated}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeliverOncePerChannel(t *testing.T) {
	store := newFakeStore()
	mail := &recordingEmail{err: errors.New("smtp down")}
	text := &recordingSMS{}
	svc := NewService(store, discard(), Config{Email: mail, SMS: text})
	msg := ClientMessage{TenantID: "t1", DedupeKey: "run:1:confirmation", Email: "a@x", Phone: "+1", Subject: "s", Body: "b"}

	if err := svc.Deliver(context.Background(), msg); err == nil {
		t.Fatal("expected email failure to surface")
	}
	if text.sent != 1 {
		t.Fatalf("expected sms sent once, got %d", text.sent)
	}

	mail.err = nil
	if err := svc.Deliver(context.Background(), msg); err != nil {
		t.Fatalf("retry Deliver: %v", err)
	}
	if mail.sent != 1 || text.sent != 1 {
		t.Fatalf("retry must only resend the failed channel, email=%d sms=%d", mail.sent, text.sent)
	}
}

func TestListAndMarkRead(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, discard(), Config{})
	_, _ = svc.Notify(context.Background(), model.Notification{ID: "n1", TenantID: "t1", Type: model.NotificationBookingCreated})
	_, _ = svc.Notify(context.Background(), model.Notification{ID: "n2", TenantID: "t2", Type: model.NotificationBookingCreated})

	if err := svc.MarkRead(context.Background(), "t2", "n1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected cross-tenant read to fail, got %v", err)
	}
	if err := svc.MarkRead(context.Background(), "t1", "n1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	unread, err := svc.List(context.Background(), "t1", true, 0)
	if err != nil || len(unread) != 0 {
		t.Fatalf("expected no unread notifications, got %v %v", unread, err)
	}
}

type fakeWriter struct{ msgs []kafka.Message }

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisherMessageShape(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}
	n := model.Notification{ID: "n1", TenantID: "t1", Type: model.NotificationBookingCancelled, ResourceID: "b1", Message: "cancelled"}
	if err := p.Publish(context.Background(), n); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "booking.booking_cancelled.v1" || string(msg.Key) != "b1" {
		t.Fatalf("unexpected topic/key %s/%s", msg.Topic, msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "n1" || meta.TenantID != "t1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	var payload map[string]any
	if err := json.Unmarshal(msg.Value, &payload); err != nil || payload["resource_id"] != "b1" {
		t.Fatalf("unexpected payload %s (%v)", msg.Value, err)
	}
}
