package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/detailbook/detailbook/libs/httpx"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := NewClaims("user-1", "tenant-1", "owner", time.Hour)
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Subject != "user-1" || parsed.TenantID != "tenant-1" || parsed.Role != "owner" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := SignHS256(NewClaims("user-1", "tenant-1", "owner", -time.Minute), "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestMissingTenantRejected(t *testing.T) {
	token, _ := SignHS256(NewClaims("user-1", "", "owner", time.Hour), "s")
	if _, err := ParseAndVerifyHS256(token, "s"); err == nil {
		t.Fatal("expected token without tenant to fail")
	}
}

func TestMiddlewarePinsTenant(t *testing.T) {
	var tenant string
	var sub string
	h := Middleware("s", "/healthz")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant = r.Header.Get(httpx.TenantHeader)
		if c, ok := ClaimsFromContext(r.Context()); ok {
			sub = c.Subject
		}
	}))

	token, _ := SignHS256(NewClaims("user-9", "tenant-a", "staff", time.Hour), "s")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(httpx.TenantHeader, "tenant-spoofed")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if tenant != "tenant-a" || sub != "user-9" {
		t.Fatalf("expected verified tenant, got tenant=%q sub=%q", tenant, sub)
	}

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil))
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rw.Code)
	}

	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected public path to pass, got %d", rw.Code)
	}
}
