// ABOUTME: Staff-facing session endpoints: list, get, transcript, takeover, reply, close

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/apextsgroup/chatdesk/internal/store"
)

// SessionResponse is the JSON shape of a chat session.
type SessionResponse struct {
	ID           string  `json:"id"`
	OwnerUserID  string  `json:"owner_user_id"`
	VisitorName  string  `json:"visitor_name"`
	VisitorEmail *string `json:"visitor_email"`
	Status       string  `json:"status"`
	AssignedTo   *string `json:"assigned_to"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func toSessionResponse(s *store.ChatSession) SessionResponse {
	return SessionResponse{
		ID:           s.ID,
		OwnerUserID:  s.OwnerUserID,
		VisitorName:  s.VisitorName,
		VisitorEmail: s.VisitorEmail,
		Status:       string(s.Status),
		AssignedTo:   s.AssignedTo,
		CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// MessageResponse is the JSON shape of a chat message.
type MessageResponse struct {
	ID              string  `json:"id"`
	SessionID       string  `json:"session_id"`
	SenderType      string  `json:"sender_type"`
	SenderID        *string `json:"sender_id"`
	Body            string  `json:"body"`
	IsAI            bool    `json:"is_ai"`
	IsHandoffMarker bool    `json:"is_handoff_marker"`
	CreatedAt       string  `json:"created_at"`
}

func toMessageResponse(m *store.ChatMessage) MessageResponse {
	return MessageResponse{
		ID:              m.ID,
		SessionID:       m.SessionID,
		SenderType:      m.SenderType,
		SenderID:        m.SenderID,
		Body:            m.Body,
		IsAI:            m.IsAI,
		IsHandoffMarker: m.IsHandoffMarker,
		CreatedAt:       m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// TakeoverRequest is the JSON request body for POST /api/chat/sessions/{id}/handoff.
type TakeoverRequest struct {
	Note string `json:"note,omitempty"`
}

// StaffMessageRequest is the JSON request body for POST /api/chat/sessions/{id}/message.
type StaffMessageRequest struct {
	Message string `json:"message"`
}

// parseLimitOffset reads optional limit/offset query params. Invalid values
// report false after writing the error response.
func (s *Server) parseLimitOffset(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	var limit, offset int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return 0, 0, false
		}
		limit = n
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.sendJSONError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// handleListSessions handles GET /api/chat/sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	p := s.principal(w, r)
	if p == nil {
		return
	}

	limit, offset, ok := s.parseLimitOffset(w, r)
	if !ok {
		return
	}

	filter := store.SessionFilter{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := store.SessionStatus(raw)
		if !store.ValidSessionStatus(status) {
			s.sendJSONError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		filter.Status = status
	}

	sessions, err := s.store.ListSessions(r.Context(), p.Scope(), filter)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toSessionResponse(session))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// handleGetSession handles GET /api/chat/sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	p := s.principal(w, r)
	if p == nil {
		return
	}

	session, err := s.store.GetSession(r.Context(), p.Scope(), r.PathValue("id"))
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// handleListMessages handles GET /api/chat/sessions/{id}/messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	p := s.principal(w, r)
	if p == nil {
		return
	}

	limit, offset, ok := s.parseLimitOffset(w, r)
	if !ok {
		return
	}

	sessionID := r.PathValue("id")
	messages, err := s.store.ListMessages(r.Context(), p.Scope(), sessionID, limit, offset)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessageResponse(m))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "messages": out})
}

// handleTakeover handles POST /api/chat/sessions/{id}/handoff.
func (s *Server) handleTakeover(w http.ResponseWriter, r *http.Request) {
	p := s.principal(w, r)
	if p == nil {
		return
	}

	// The note is optional; so is the body itself.
	var req TakeoverRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sessionID := r.PathValue("id")
	if err := s.engine.StaffTakeover(r.Context(), p.Scope(), sessionID, p.ID, req.Note); err != nil {
		s.sendStoreError(w, err)
		return
	}

	session, err := s.store.GetSession(r.Context(), p.Scope(), sessionID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// handleStaffMessage handles POST /api/chat/sessions/{id}/message.
func (s *Server) handleStaffMessage(w http.ResponseWriter, r *http.Request) {
	p := s.principal(w, r)
	if p == nil {
		return
	}

	var req StaffMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Message == "" {
		s.sendJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	msg, err := s.engine.StaffSendMessage(r.Context(), p.Scope(), r.PathValue("id"), p.ID, req.Message)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

// handleCloseSession handles POST /api/chat/sessions/{id}/close.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	p := s.principal(w, r)
	if p == nil {
		return
	}

	sessionID := r.PathValue("id")
	if err := s.store.CloseSession(r.Context(), p.Scope(), sessionID); err != nil {
		s.sendStoreError(w, err)
		return
	}

	session, err := s.store.GetSession(r.Context(), p.Scope(), sessionID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(session))
}
