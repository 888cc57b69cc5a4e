package api

import "net/http"

func (s *Server) handleDetectIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Message == "" {
		writeBadRequest(w, "message is required")
		return
	}
	intent := s.invoker.DetectIntent(r.Context(), req.Message)
	writeJSON(w, http.StatusOK, map[string]string{"intent": intent})
}

func (s *Server) handleDetectSkills(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message      string `json:"message"`
		Dimension    string `json:"dimension"`
		ExistingCode string `json:"existing_code,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Message == "" {
		writeBadRequest(w, "message is required")
		return
	}
	skills := s.invoker.DetectSkills(r.Context(), req.Message, req.Dimension, req.ExistingCode)
	writeJSON(w, http.StatusOK, map[string]any{"skills": skills})
}

func (s *Server) handleChatHaiku(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message             string `json:"message"`
		GameSpec            string `json:"game_spec,omitempty"`
		ConversationHistory []any  `json:"conversation_history,omitempty"`
		SystemPrompt        string `json:"system_prompt,omitempty"`
		RawOutput           bool   `json:"raw_output,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Message == "" {
		writeBadRequest(w, "message is required")
		return
	}
	result := s.invoker.Chat(r.Context(), req.Message, req.GameSpec, req.SystemPrompt, req.RawOutput)
	if req.RawOutput {
		writeJSON(w, http.StatusOK, map[string]string{"result": result.Raw})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": result.Message, "suggestions": result.Suggestions})
}

func (s *Server) handleGeneratePublishInfo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"user_id"`
		ProjectID   string `json:"project_id"`
		ProjectName string `json:"project_name"`
		GameCode    string `json:"game_code,omitempty"`
		SpecContent string `json:"spec_content,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if !s.validateIdentity(w, req.UserID, req.ProjectID) {
		return
	}
	if req.ProjectName == "" {
		writeBadRequest(w, "project_name is required")
		return
	}
	info := s.invoker.GeneratePublishInfo(r.Context(), req.ProjectName, req.GameCode, req.SpecContent)
	writeJSON(w, http.StatusOK, info)
}
