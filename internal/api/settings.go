// ABOUTME: Agent settings endpoints: resolved read and partial save

package api

import (
	"net/http"

	"github.com/apextsgroup/chatdesk/internal/auth"
	"github.com/apextsgroup/chatdesk/internal/store"
)

// settingsOwner resolves which tenant's settings a request targets. Clients
// always operate on their own; admins pick a tenant via the client_id query
// param. Reports false after writing the error response.
func (s *Server) settingsOwner(w http.ResponseWriter, r *http.Request, p *auth.Principal) (string, bool) {
	if !p.IsAdmin() {
		return p.ID, true
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "client_id query param is required for admin")
		return "", false
	}
	return clientID, true
}

// handleGetSettings handles GET /api/settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	p := s.principal(w, r)
	if p == nil {
		return
	}

	ownerID, ok := s.settingsOwner(w, r, p)
	if !ok {
		return
	}

	settings, err := s.store.GetSettings(r.Context(), ownerID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, settings)
}

// handleSaveSettings handles PUT /api/settings. Only keys present in the
// body are written; everything else keeps its stored or default value.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	p := s.principal(w, r)
	if p == nil {
		return
	}

	ownerID, ok := s.settingsOwner(w, r, p)
	if !ok {
		return
	}

	var patch store.SettingsPatch
	if err := decodeJSON(r, &patch); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.SaveSettings(r.Context(), ownerID, patch); err != nil {
		s.sendStoreError(w, err)
		return
	}

	settings, err := s.store.GetSettings(r.Context(), ownerID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}
