package authgate

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheck(t *testing.T) {
	g := New("s3cr3t")

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if err := g.Check(req); err == nil {
		t.Fatal("expected error for missing header")
	}

	req.Header.Set(HeaderName, "wrong")
	if err := g.Check(req); err == nil {
		t.Fatal("expected error for wrong secret")
	}

	req.Header.Set(HeaderName, "s3cr3t")
	if err := g.Check(req); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestCheckFailsClosedOnEmptySecret(t *testing.T) {
	g := New("")
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(HeaderName, "")
	if err := g.Check(req); err == nil {
		t.Fatal("expected fail-closed when gate has no secret configured")
	}
}

func TestValidateUUID(t *testing.T) {
	ok := []string{
		"550e8400-e29b-41d4-a716-446655440000",
		"550E8400-E29B-41D4-A716-446655440000",
	}
	for _, v := range ok {
		if err := ValidateUUID("user_id", v); err != nil {
			t.Fatalf("%q: unexpected error %v", v, err)
		}
	}

	bad := []string{"", "not-a-uuid", "550e8400-e29b-41d4-a716", "550e8400e29b41d4a716446655440000"}
	for _, v := range bad {
		if err := ValidateUUID("user_id", v); err == nil {
			t.Fatalf("%q: expected error", v)
		}
	}
}

func TestValidateUUIDErrorMessage(t *testing.T) {
	err := ValidateUUID("project_id", "bad")
	if err == nil {
		t.Fatal("expected error")
	}
	want := "Invalid project_id: must be UUID format"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestParsedUUIDCanonicalizes(t *testing.T) {
	got := ParsedUUID("550E8400-E29B-41D4-A716-446655440000")
	want := "550e8400-e29b-41d4-a716-446655440000"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
