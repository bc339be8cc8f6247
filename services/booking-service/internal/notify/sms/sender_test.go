package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookSender(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "tok")
	if err := s.Send(context.Background(), "+15550100", "Booked!"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["to"] != "+15550100" || got["body"] != "Booked!" || auth != "Bearer tok" {
		t.Fatalf("unexpected request body=%v auth=%q", got, auth)
	}
}

func TestWebhookSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookSender(srv.URL, "").Send(context.Background(), "+1", "x"); err == nil {
		t.Fatal("expected error on non-2xx")
	}
	if err := NewWebhookSender("", "").Send(context.Background(), "+1", "x"); err == nil {
		t.Fatal("expected error without url")
	}
}

func TestTwilioSenderRequiresFrom(t *testing.T) {
	if err := NewTwilioSender("AC123", "secret", "").Send(context.Background(), "+1", "x"); err == nil {
		t.Fatal("expected error without from number")
	}
}
