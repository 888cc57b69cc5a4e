package api

import (
	"encoding/json"
	"net/http"
	"time"

	"dreamcore/orchestrator/internal/applypath"
	"dreamcore/orchestrator/internal/eventstream"
	"dreamcore/orchestrator/internal/versionstore"
)

type applyRequest struct {
	UserID        string            `json:"user_id"`
	ProjectID     string            `json:"project_id"`
	Action        string            `json:"action,omitempty"`
	Files         []applypath.Entry `json:"files,omitempty"`
	CommitMessage string            `json:"commit_message,omitempty"`
	Commit        string            `json:"commit,omitempty"`
}

func (s *Server) handleApplyFiles(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if !s.validateIdentity(w, req.UserID, req.ProjectID) {
		return
	}

	vs := versionstore.New(s.workspacePath(req.UserID, req.ProjectID))

	switch req.Action {
	case "":
		s.applyManifest(w, r, req, vs)
	case "git_log":
		s.applyGitLog(w, vs)
	case "git_diff":
		s.applyGitDiff(w, req, vs)
	case "git_restore":
		s.applyGitRestore(w, req, vs)
	default:
		writeBadRequest(w, "unknown action")
	}
}

func (s *Server) applyManifest(w http.ResponseWriter, r *http.Request, req applyRequest, vs *versionstore.Store) {
	sse, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	started := time.Now()
	traceID := traceIDFrom(r.Context())

	_ = sse.Write(eventstream.Event{Constructed: map[string]any{"type": "status", "content": "Applying files"}})

	changed, err := applypath.Apply(s.workspacePath(req.UserID, req.ProjectID), req.Files)
	if err != nil {
		kind := applypath.ClassifyError(err)
		s.log.Printf("trace=%s apply error kind=%s: %v", traceID, kind, err)
		_ = sse.Write(eventstream.Event{Constructed: map[string]any{
			"type":        "error",
			"code":        string(kind),
			"userMessage": "ファイルの適用に失敗しました",
			"recoverable": false,
		}})
		return
	}

	msg := req.CommitMessage
	if msg == "" {
		msg = "Apply files"
	}
	hash, _, commitErr := vs.CommitAll(msg)
	if commitErr != nil {
		s.log.Printf("trace=%s apply commit error: %v", traceID, commitErr)
		_ = sse.Write(eventstream.Event{Constructed: map[string]any{
			"type":        "error",
			"code":        string(applypath.InternalError),
			"userMessage": "変更のコミットに失敗しました",
			"recoverable": false,
		}})
		return
	}

	_ = sse.Write(eventstream.Event{Constructed: map[string]any{"type": "log", "content": "Committed " + hash}})
	_ = sse.Write(eventstream.Event{Constructed: map[string]any{"type": "result", "files": changed, "commit": hash}})
	_ = sse.Write(eventstream.DebugEvent(0, time.Since(started).Seconds(), len(changed), false, hash, traceID))
	_ = sse.Write(eventstream.DoneEvent())
}

func (s *Server) applyGitLog(w http.ResponseWriter, vs *versionstore.Store) {
	entries, autoInit, err := vs.Log()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "log failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": entries, "autoInitialized": autoInit})
}

func (s *Server) applyGitDiff(w http.ResponseWriter, req applyRequest, vs *versionstore.Store) {
	if req.Commit == "" {
		writeBadRequest(w, "commit is required")
		return
	}
	diff, err := vs.Diff(req.Commit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"diff": diff})
}

func (s *Server) applyGitRestore(w http.ResponseWriter, req applyRequest, vs *versionstore.Store) {
	if req.Commit == "" {
		writeBadRequest(w, "commit is required")
		return
	}
	changed, err := vs.Restore(req.Commit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": changed})
}
