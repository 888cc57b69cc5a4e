package eventstream

import "testing"

func TestClassifyExitCodeKnownCodes(t *testing.T) {
	cases := []struct {
		code        int
		wantKind    string
		recoverable bool
	}{
		{0, "", false},
		{1, "CLI_GENERAL_ERROR", false},
		{124, "CLI_TIMEOUT", true},
		{137, "CLI_KILLED", true},
		{143, "CLI_TERMINATED", true},
	}
	for _, c := range cases {
		got := ClassifyExitCode(c.code)
		if got.Kind != c.wantKind {
			t.Fatalf("code %d: got kind %q, want %q", c.code, got.Kind, c.wantKind)
		}
		if got.Recoverable != c.recoverable {
			t.Fatalf("code %d: got recoverable %v, want %v", c.code, got.Recoverable, c.recoverable)
		}
	}
}

func TestClassifyExitCodeUnknownFallsBackToGeneric(t *testing.T) {
	got := ClassifyExitCode(42)
	if got.Kind != "CLI_UNKNOWN_ERROR" {
		t.Fatalf("expected CLI_UNKNOWN_ERROR, got %q", got.Kind)
	}
	if got.Recoverable {
		t.Fatal("expected unknown exit codes to be non-recoverable")
	}
}

func TestErrorEventUnknownKindFallsBack(t *testing.T) {
	e := ErrorEvent(APIErrorKind("NOT_A_REAL_KIND"), false)
	if e.Constructed["kind"] != "NOT_A_REAL_KIND" {
		t.Fatalf("expected kind preserved in payload, got %+v", e.Constructed)
	}
	if e.Constructed["userMessage"] != apiMessages[UnknownError].message {
		t.Fatalf("expected fallback message, got %+v", e.Constructed)
	}
}

func TestErrorEventFallbackFlag(t *testing.T) {
	e := ErrorEvent(NetworkError, true)
	if e.Constructed["fallback"] != "cli" {
		t.Fatalf("expected fallback flag set, got %+v", e.Constructed)
	}
	e2 := ErrorEvent(NetworkError, false)
	if _, ok := e2.Constructed["fallback"]; ok {
		t.Fatalf("expected no fallback key when not falling back, got %+v", e2.Constructed)
	}
}

func TestCLIErrorEventCarriesOutcomeFields(t *testing.T) {
	outcome := ClassifyExitCode(124)
	e := CLIErrorEvent(outcome)
	if e.Constructed["code"] != outcome.Kind {
		t.Fatalf("expected code %q, got %+v", outcome.Kind, e.Constructed)
	}
	if e.Constructed["recoverable"] != true {
		t.Fatalf("expected recoverable true, got %+v", e.Constructed)
	}
}
