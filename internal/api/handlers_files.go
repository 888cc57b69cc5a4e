package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"dreamcore/orchestrator/internal/fileserve"
)

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, projectID, path := q.Get("user_id"), q.Get("project_id"), q.Get("path")
	if !s.validateIdentity(w, userID, projectID) {
		return
	}
	if path == "" {
		writeBadRequest(w, "path is required")
		return
	}

	full, err := fileserve.Resolve(s.workspacePath(userID, projectID), path)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "file not found"})
		return
	}

	w.Header().Set("Content-Type", fileserve.ContentType(full))
	w.Header().Set("Cache-Control", fileserve.CacheControl(full))
	http.ServeFile(w, r, full)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, projectID := q.Get("user_id"), q.Get("project_id")
	if !s.validateIdentity(w, userID, projectID) {
		return
	}

	root := s.workspacePath(userID, projectID)
	var files []string
	_ = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		if strings.HasPrefix(rel, ".git") {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleGetSkillContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SkillNames []string `json:"skill_names"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if len(req.SkillNames) > 20 {
		writeBadRequest(w, "too many skill names requested")
		return
	}

	out := make(map[string]string, len(req.SkillNames))
	for _, name := range req.SkillNames {
		content, err := s.readSkill(name)
		if err != nil {
			continue
		}
		out[name] = content
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": out})
}

// readSkill reads a skill's SKILL.md with the same path confinement as the
// workspace file endpoints: the name must not escape the skills root.
func (s *Server) readSkill(name string) (string, error) {
	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") || strings.ContainsRune(name, os.PathSeparator) {
		return "", os.ErrInvalid
	}
	path := filepath.Join(s.cfg.GlobalRoot, ".claude", "skills", name, "SKILL.md")
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
