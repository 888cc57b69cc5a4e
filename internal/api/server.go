// Package api wires every orchestrator component onto a chi router,
// matching the single-binary Server-struct-plus-Router() shape used
// elsewhere in this codebase.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dreamcore/orchestrator/internal/agentdriver"
	"dreamcore/orchestrator/internal/auditlog"
	"dreamcore/orchestrator/internal/authgate"
	"dreamcore/orchestrator/internal/auxmodel"
	"dreamcore/orchestrator/internal/config"
	"dreamcore/orchestrator/internal/sandbox"
	"dreamcore/orchestrator/internal/structuredgen"
)

// Server holds every wired dependency behind the external HTTP interface.
type Server struct {
	cfg       config.Config
	gate      *authgate.Gate
	rt        *sandbox.Runtime
	mgr       *sandbox.Manager
	driver    *agentdriver.Driver
	invoker   *auxmodel.Invoker
	structGen *structuredgen.Client
	audit     *auditlog.Log
	log       *log.Logger
}

func New(cfg config.Config, rt *sandbox.Runtime, mgr *sandbox.Manager, driver *agentdriver.Driver, invoker *auxmodel.Invoker, structGen *structuredgen.Client, audit *auditlog.Log, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "orchestrator ", log.LstdFlags|log.LUTC)
	}
	return &Server{
		cfg:       cfg,
		gate:      authgate.New(cfg.InternalSecret),
		rt:        rt,
		mgr:       mgr,
		driver:    driver,
		invoker:   invoker,
		structGen: structGen,
		audit:     audit,
		log:       logger,
	}
}

// Router builds the full external interface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/generate_game", s.handleGenerateGame)
		r.Post("/generate_gemini", s.handleGenerateGemini)
		r.Post("/apply_files", s.handleApplyFiles)
		r.Get("/get_file", s.handleGetFile)
		r.Get("/list_files", s.handleListFiles)
		r.Post("/detect_intent", s.handleDetectIntent)
		r.Post("/detect_skills", s.handleDetectSkills)
		r.Post("/chat_haiku", s.handleChatHaiku)
		r.Post("/generate_publish_info", s.handleGeneratePublishInfo)
		r.Post("/get_skill_content", s.handleGetSkillContent)
	})

	return r
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.gate.Check(r); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		traceID := uuid.New().String()
		r = r.WithContext(withTraceID(r.Context(), traceID))
		next.ServeHTTP(w, r)
	})
}

// workspacePath returns the project's workspace directory on the shared
// volume.
func (s *Server) workspacePath(userID, projectID string) string {
	return filepath.Join(s.cfg.DataRoot, "users", userID, "projects", projectID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// validateIdentity validates the user_id/project_id pair, writing a 4xx
// response and returning ok=false on failure.
func (s *Server) validateIdentity(w http.ResponseWriter, userID, projectID string) (ok bool) {
	if err := authgate.ValidateUUID("user_id", userID); err != nil {
		writeBadRequest(w, err.Error())
		return false
	}
	if err := authgate.ValidateUUID("project_id", projectID); err != nil {
		writeBadRequest(w, err.Error())
		return false
	}
	return true
}

func strOrEmpty(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
