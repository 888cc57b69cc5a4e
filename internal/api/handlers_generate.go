package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"dreamcore/orchestrator/internal/agentdriver"
	"dreamcore/orchestrator/internal/auditlog"
	"dreamcore/orchestrator/internal/eventstream"
	"dreamcore/orchestrator/internal/versionstore"
)

type generateRequest struct {
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`
	Prompt    string `json:"prompt"`
	TestError string `json:"_test_error,omitempty"`
}

func (s *Server) handleGenerateGame(w http.ResponseWriter, r *http.Request) {
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

	// _test_error lets a harness exercise the exit-code classification
	// table deterministically (e.g. CLI_TIMEOUT) without running a real
	// agent for five minutes. It never touches the sandbox.
	var testExitCode int
	if req.TestError != "" {
		code, err := strconv.Atoi(req.TestError)
		if err != nil {
			writeBadRequest(w, "_test_error must be an integer exit code")
			return
		}
		testExitCode = code
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	if req.TestError != "" {
		_ = sse.Write(eventstream.CLIErrorEvent(eventstream.ClassifyExitCode(testExitCode)))
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

	gen, err := s.driver.RunGeneration(ctx, h, s.workspacePath(req.UserID, req.ProjectID), req.Prompt)
	if err != nil {
		s.log.Printf("trace=%s run generation error: %v", traceID, err)
		_ = sse.Write(eventstream.ErrorEvent(eventstream.SandboxError, false))
		return
	}

	shaper := eventstream.New(s.cfg.Tuning.MaxForwardedEvents)
	for line := range gen.Lines {
		for _, ev := range shaper.Feed(line) {
			_ = sse.Write(ev)
		}
	}
	for _, ev := range shaper.Flush() {
		_ = sse.Write(ev)
	}

	outcome := <-gen.Done
	s.finishGeneration(ctx, sse, finishArgs{
		userID:      req.UserID,
		projectID:   req.ProjectID,
		sandboxName: h.Name,
		warm:        h.Warm,
		kind:        "cli-generation",
		started:     started,
		outcome:     outcome,
		forwarded:   shaper.ForwardedCount(),
		traceID:     traceID,
	})
}

type finishArgs struct {
	userID, projectID, sandboxName string
	warm                           bool
	kind                           string
	started                        time.Time
	outcome                        agentdriver.Outcome
	forwarded                      int
	traceID                        string
}

// finishGeneration runs the version store commit and emits the debug +
// terminal events shared by every generation path.
func (s *Server) finishGeneration(ctx context.Context, sse *sseWriter, args finishArgs) {
	vs := versionstore.New(s.workspacePath(args.userID, args.projectID))

	// Commit whatever the agent left on disk regardless of how the process
	// exited: a timeout or kill can still leave partial file writes worth
	// keeping, and HEAD should only move when the working tree actually
	// changed, never as a side effect of the exit code.
	var commitHash string
	hash, _, err := vs.CommitAll("Generate: " + args.kind)
	if err != nil {
		s.log.Printf("trace=%s commit error: %v", args.traceID, err)
	} else {
		commitHash = hash
	}

	elapsed := time.Since(args.started).Seconds()
	_ = sse.Write(eventstream.DebugEvent(args.outcome.ExitCode, elapsed, args.forwarded, args.warm, commitHash, args.traceID))

	s.recordAudit(ctx, args, commitHash)

	if args.outcome.Err != nil {
		s.log.Printf("trace=%s driver error: %v", args.traceID, args.outcome.Err)
		_ = sse.Write(eventstream.ErrorEvent(eventstream.SandboxError, false))
		return
	}
	if args.outcome.ExitCode != 0 {
		_ = sse.Write(eventstream.CLIErrorEvent(eventstream.ClassifyExitCode(args.outcome.ExitCode)))
		return
	}
	_ = sse.Write(eventstream.DoneEvent())
}

func (s *Server) recordAudit(ctx context.Context, args finishArgs, commitHash string) {
	if s.audit == nil {
		return
	}
	rec := auditlog.Record{
		UserID:          args.userID,
		ProjectID:       args.projectID,
		SandboxName:     args.sandboxName,
		Warm:            args.warm,
		Kind:            args.kind,
		StartedAt:       args.started,
		FinishedAt:      time.Now(),
		ExitCode:        args.outcome.ExitCode,
		ForwardedEvents: args.forwarded,
		CommitHash:      commitHash,
	}
	if err := s.audit.Append(ctx, rec); err != nil {
		s.log.Printf("trace=%s audit append error: %v", args.traceID, err)
	}
}
