// ABOUTME: Public webhook endpoints consumed by the embedded chat widget
// ABOUTME: Unauthenticated; the message endpoint always produces a reply string

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/apextsgroup/chatdesk/internal/store"
)

// widgetFallbackReply is returned when the message pipeline fails internally.
// The widget channel must never dead-end without a reply.
const widgetFallbackReply = "I'm sorry, something went wrong. Please try again in a moment."

// CreateSessionRequest is the JSON request body for POST /api/webhook/chat/session.
type CreateSessionRequest struct {
	OwnerUserID  string `json:"ownerUserId"`
	VisitorName  string `json:"visitorName,omitempty"`
	VisitorEmail string `json:"visitorEmail,omitempty"`
}

// CreateSessionResponse is the JSON response for POST /api/webhook/chat/session.
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// WebhookMessageRequest is the JSON request body for POST /api/webhook/chat/message.
type WebhookMessageRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// WebhookMessageResponse is the JSON response for POST /api/webhook/chat/message.
type WebhookMessageResponse struct {
	Reply            string `json:"reply"`
	HandoffTriggered bool   `json:"handoffTriggered"`
}

// CreateLeadRequest is the JSON request body for POST /api/webhook/chat/lead.
type CreateLeadRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
	Message   string `json:"message,omitempty"`
}

// CreateLeadResponse is the JSON response for POST /api/webhook/chat/lead.
type CreateLeadResponse struct {
	LeadID string `json:"leadId"`
}

// handleWebhookCreateSession handles POST /api/webhook/chat/session.
func (s *Server) handleWebhookCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.OwnerUserID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "ownerUserId is required")
		return
	}

	visitorName := req.VisitorName
	if visitorName == "" {
		visitorName = "Anonymous"
	}
	var visitorEmail *string
	if req.VisitorEmail != "" {
		visitorEmail = &req.VisitorEmail
	}

	now := time.Now().UTC()
	session := &store.ChatSession{
		ID:           uuid.NewString(),
		OwnerUserID:  req.OwnerUserID,
		VisitorName:  visitorName,
		VisitorEmail: visitorEmail,
		Status:       store.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateSession(r.Context(), session); err != nil {
		s.sendStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, CreateSessionResponse{SessionID: session.ID})
}

// handleWebhookMessage handles POST /api/webhook/chat/message. Internal
// failures after validation degrade to a generic reply instead of an error
// payload; only unknown sessions surface as 404.
func (s *Server) handleWebhookMessage(w http.ResponseWriter, r *http.Request) {
	var req WebhookMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if req.Message == "" {
		s.sendJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := s.engine.IngestVisitorMessage(r.Context(), req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("message ingest failed", "session_id", req.SessionID, "error", err)
		s.writeJSON(w, http.StatusOK, WebhookMessageResponse{Reply: widgetFallbackReply})
		return
	}

	s.writeJSON(w, http.StatusOK, WebhookMessageResponse{
		Reply:            result.Reply,
		HandoffTriggered: result.HandoffTriggered,
	})
}

// handleWebhookCreateLead handles POST /api/webhook/chat/lead.
func (s *Server) handleWebhookCreateLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.Email == "" {
		s.sendJSONError(w, http.StatusBadRequest, "name and email are required")
		return
	}

	lead := &store.Lead{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		Status:    store.LeadNew,
		CreatedAt: time.Now().UTC(),
	}
	if req.SessionID != "" {
		lead.SessionID = &req.SessionID
	}
	if req.Phone != "" {
		lead.Phone = &req.Phone
	}
	if req.Company != "" {
		lead.Company = &req.Company
	}
	if req.Message != "" {
		lead.Message = &req.Message
	}

	if err := s.store.CreateLead(r.Context(), lead); err != nil {
		s.sendStoreError(w, err)
		return
	}

	s.events.LeadCreated(r.Context(), lead.ID, lead.OwnerUserID, lead.Email)
	s.writeJSON(w, http.StatusCreated, CreateLeadResponse{LeadID: lead.ID})
}
