package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerifyHS256(t *testing.T) {
	now := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	claims := Claims{
		Sub:        "user-1",
		ProviderID: "prov-1",
		Role:       "owner",
		Iat:        now.Unix(),
		Exp:        now.Add(time.Hour).Unix(),
	}
	token, err := SignHS256(claims, "secret")
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	parsed, err := ParseAndVerifyHS256(token, "secret", now)
	if err != nil {
		t.Fatalf("verify error: %v", err)
	}
	if parsed.ProviderID != "prov-1" || parsed.Sub != "user-1" {
		t.Fatalf("unexpected claims: %+v", parsed)
	}

	if _, err := ParseAndVerifyHS256(token, "wrong", now); err == nil {
		t.Fatalf("expected error for wrong secret")
	}
	if _, err := ParseAndVerifyHS256(token, "secret", now.Add(2*time.Hour)); err == nil {
		t.Fatalf("expected error for expired token")
	}
	if _, err := ParseAndVerifyHS256("a.b", "secret", now); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}

func TestRequireProvider(t *testing.T) {
	now := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	token, _ := SignHS256(Claims{Sub: "u", ProviderID: "prov-9", Exp: now.Add(time.Hour).Unix()}, "s3")

	var seen string
	h := RequireProvider("s3", func() time.Time { return now })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ProviderIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || seen != "prov-9" {
		t.Fatalf("expected 200 for prov-9, got %d %q", rw.Code, seen)
	}

	noProvider, _ := SignHS256(Claims{Sub: "u", Exp: now.Add(time.Hour).Unix()}, "s3")
	req = httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	req.Header.Set("Authorization", "Bearer "+noProvider)
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without provider_id, got %d", rw.Code)
	}
}
