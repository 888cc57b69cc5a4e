package api

import (
	"encoding/json"
	"net/http"
	"time"

	"dreamcore/orchestrator/internal/agentdriver"
	"dreamcore/orchestrator/internal/eventstream"
	"dreamcore/orchestrator/internal/structuredgen"
)

func (s *Server) handleGenerateGemini(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if !s.validateIdentity(w, req.UserID, req.ProjectID) {
		return
	}
	if req.Prompt == "" {
		writeBadRequest(w, "prompt is required")
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	started := time.Now()
	ctx := r.Context()
	traceID := traceIDFrom(ctx)

	h, err := s.mgr.Acquire(ctx, req.UserID, req.ProjectID, func(msg string) {
		_ = sse.Write(eventstream.Event{Constructed: map[string]any{"type": "status", "content": msg}})
	})
	if err != nil {
		s.log.Printf("trace=%s sandbox acquire error: %v", traceID, err)
		_ = sse.Write(eventstream.ErrorEvent(eventstream.SandboxError, false))
		return
	}

	norm, err := s.structGen.Generate(ctx, req.Prompt)
	if err != nil {
		s.log.Printf("trace=%s structured generation error: %v", traceID, err)
		_ = sse.Write(eventstream.ErrorEvent(eventstream.NetworkError, true))
		return
	}

	workspace := s.workspacePath(req.UserID, req.ProjectID)
	_ = sse.Write(eventstream.Event{Constructed: map[string]any{"type": "status", "content": "Writing generated files"}})

	changed, err := structuredgen.WriteAndGenerateImages(ctx, s.rt, h, workspace, norm)
	outcome := agentdriver.Outcome{}
	if err != nil {
		outcome.Err = err
	}

	_ = sse.Write(eventstream.Event{Constructed: map[string]any{"type": "result", "files": changed, "summary": norm.Summary}})

	s.finishGeneration(ctx, sse, finishArgs{
		userID:      req.UserID,
		projectID:   req.ProjectID,
		sandboxName: h.Name,
		warm:        h.Warm,
		kind:        "structured-generation",
		started:     started,
		outcome:     outcome,
		forwarded:   0,
		traceID:     traceID,
	})
}
