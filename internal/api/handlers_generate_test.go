package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dreamcore/orchestrator/internal/agentdriver"
	"dreamcore/orchestrator/internal/config"
	"dreamcore/orchestrator/internal/versionstore"
)

func newTestServer() *Server {
	cfg := config.Config{InternalSecret: "s3cr3t"}
	return New(cfg, nil, nil, nil, nil, nil, nil, log.New(bytes.NewBuffer(nil), "", 0))
}

func TestHandleGenerateGameTestErrorHookBypassesSandbox(t *testing.T) {
	s := newTestServer()

	body := `{"user_id":"550e8400-e29b-41d4-a716-446655440000","project_id":"550e8400-e29b-41d4-a716-446655440001","prompt":"hi","_test_error":"124"}`
	req := httptest.NewRequest(http.MethodPost, "/generate_game", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.handleGenerateGame(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "CLI_TIMEOUT") {
		t.Fatalf("expected CLI_TIMEOUT in response, got %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"type":"done"`) {
		t.Fatal("expected no done event for a forced error")
	}
}

func TestFinishGenerationCommitsEvenOnTimeoutExitCode(t *testing.T) {
	dataRoot := t.TempDir()
	cfg := config.Config{InternalSecret: "s3cr3t", DataRoot: dataRoot}
	s := New(cfg, nil, nil, nil, nil, nil, nil, log.New(bytes.NewBuffer(nil), "", 0))

	userID, projectID := "u1", "p1"
	workspace := s.workspacePath(userID, projectID)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		t.Fatalf("mkdir workspace: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "partial.txt"), []byte("left behind by a killed agent"), 0o644); err != nil {
		t.Fatalf("writing partial file: %v", err)
	}

	rec := httptest.NewRecorder()
	sse, ok := newSSEWriter(rec)
	if !ok {
		t.Fatal("expected recorder to support flushing")
	}

	s.finishGeneration(context.Background(), sse, finishArgs{
		userID:    userID,
		projectID: projectID,
		kind:      "cli-generation",
		started:   time.Now(),
		outcome:   agentdriver.Outcome{ExitCode: 124}, // CLI_TIMEOUT
	})

	entries, _, err := versionstore.New(workspace).Log()
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected the partial file left by a timed-out agent to be committed")
	}
	if strings.Contains(rec.Body.String(), `"type":"done"`) {
		t.Fatal("expected no done event for a non-zero exit code")
	}
}

func TestHandleGenerateGameRejectsInvalidUserID(t *testing.T) {
	s := newTestServer()

	body := `{"user_id":"not-a-uuid","project_id":"550e8400-e29b-41d4-a716-446655440001","prompt":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/generate_game", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.handleGenerateGame(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !strings.Contains(resp["error"], "user_id") {
		t.Fatalf("expected error to mention user_id, got %q", resp["error"])
	}
}

func TestHandleGenerateGameRejectsMissingPrompt(t *testing.T) {
	s := newTestServer()

	body := `{"user_id":"550e8400-e29b-41d4-a716-446655440000","project_id":"550e8400-e29b-41d4-a716-446655440001"}`
	req := httptest.NewRequest(http.MethodPost, "/generate_game", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.handleGenerateGame(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
