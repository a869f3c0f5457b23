// ABOUTME: Staff-facing lead endpoints: list, get, and pipeline status updates

package api

import (
	"net/http"
	"time"

	"github.com/apextsgroup/chatdesk/internal/store"
)

// LeadResponse is the JSON shape of a lead.
type LeadResponse struct {
	ID          string  `json:"id"`
	SessionID   *string `json:"session_id"`
	OwnerUserID *string `json:"owner_user_id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Phone       *string `json:"phone"`
	Company     *string `json:"company"`
	Message     *string `json:"message"`
	Source      string  `json:"source"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
}

func toLeadResponse(l *store.Lead) LeadResponse {
	return LeadResponse{
		ID:          l.ID,
		SessionID:   l.SessionID,
		OwnerUserID: l.OwnerUserID,
		Name:        l.Name,
		Email:       l.Email,
		Phone:       l.Phone,
		Company:     l.Company,
		Message:     l.Message,
		Source:      l.Source,
		Status:      string(l.Status),
		CreatedAt:   l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// UpdateLeadStatusRequest is the JSON request body for PUT /api/leads/{id}/status.
type UpdateLeadStatusRequest struct {
	Status string `json:"status"`
}

// handleListLeads handles GET /api/leads.
func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	p := s.principal(w, r)
	if p == nil {
		return
	}

	limit, offset, ok := s.parseLimitOffset(w, r)
	if !ok {
		return
	}

	filter := store.LeadFilter{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := store.LeadStatus(raw)
		if !store.ValidLeadStatus(status) {
			s.sendJSONError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		filter.Status = status
	}

	leads, err := s.store.ListLeads(r.Context(), p.Scope(), filter)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	out := make([]LeadResponse, 0, len(leads))
	for _, l := range leads {
		out = append(out, toLeadResponse(l))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"leads": out})
}

// handleGetLead handles GET /api/leads/{id}.
func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	p := s.principal(w, r)
	if p == nil {
		return
	}

	lead, err := s.store.GetLead(r.Context(), p.Scope(), r.PathValue("id"))
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toLeadResponse(lead))
}

// handleUpdateLeadStatus handles PUT /api/leads/{id}/status.
func (s *Server) handleUpdateLeadStatus(w http.ResponseWriter, r *http.Request) {
	p := s.principal(w, r)
	if p == nil {
		return
	}

	var req UpdateLeadStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status == "" {
		s.sendJSONError(w, http.StatusBadRequest, "status is required")
		return
	}

	leadID := r.PathValue("id")
	if err := s.store.UpdateLeadStatus(r.Context(), p.Scope(), leadID, store.LeadStatus(req.Status)); err != nil {
		s.sendStoreError(w, err)
		return
	}

	lead, err := s.store.GetLead(r.Context(), p.Scope(), leadID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toLeadResponse(lead))
}
