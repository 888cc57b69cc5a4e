package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"dreamcore/orchestrator/internal/authgate"
)

func TestRequireAuthRejectsMissingSecret(t *testing.T) {
	s := newTestServer()
	called := false
	handler := s.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Fatal("expected downstream handler not to run")
	}
}

func TestRequireAuthAllowsCorrectSecret(t *testing.T) {
	s := newTestServer()
	var gotTraceID string
	handler := s.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceID = traceIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(authgate.HeaderName, "s3cr3t")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotTraceID == "" {
		t.Fatal("expected a trace id to be injected into the request context")
	}
}

func TestValidateIdentityRejectsBadUUIDs(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()
	if ok := s.validateIdentity(rec, "bad", "550e8400-e29b-41d4-a716-446655440001"); ok {
		t.Fatal("expected validateIdentity to reject a malformed user_id")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", rec.Body.String())
	}
}
