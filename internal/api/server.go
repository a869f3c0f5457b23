// ABOUTME: HTTP server wiring for the chatdesk API
// ABOUTME: Routes, shared JSON helpers, and store-error-to-status mapping

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/apextsgroup/chatdesk/internal/auth"
	"github.com/apextsgroup/chatdesk/internal/engine"
	"github.com/apextsgroup/chatdesk/internal/notify"
	"github.com/apextsgroup/chatdesk/internal/store"
)

// Server holds the dependencies for all HTTP handlers.
type Server struct {
	store  store.Store
	engine *engine.Engine
	tokens auth.TokenManager
	events notify.Publisher
	logger *slog.Logger
}

// NewServer creates the API server. A nil events publisher is replaced with
// a no-op sink.
func NewServer(st store.Store, eng *engine.Engine, tokens auth.TokenManager, events notify.Publisher) *Server {
	if events == nil {
		events = notify.NopPublisher{}
	}
	return &Server{
		store:  st,
		engine: eng,
		tokens: tokens,
		events: events,
		logger: slog.Default().With("component", "api"),
	}
}

// roleLookup adapts the store to the auth middleware's role resolution.
type roleLookup struct {
	store store.Store
}

func (l roleLookup) LookupRole(ctx context.Context, userID string) (string, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

// Routes builds the full API handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Public widget surface.
	mux.HandleFunc("POST /api/webhook/chat/session", s.handleWebhookCreateSession)
	mux.HandleFunc("POST /api/webhook/chat/message", s.handleWebhookMessage)
	mux.HandleFunc("POST /api/webhook/chat/lead", s.handleWebhookCreateLead)

	// Public auth surface.
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)

	// Authenticated staff surface.
	authed := http.NewServeMux()
	authed.HandleFunc("GET /api/me", s.handleMe)
	authed.HandleFunc("GET /api/chat/sessions", s.handleListSessions)
	authed.HandleFunc("GET /api/chat/sessions/{id}", s.handleGetSession)
	authed.HandleFunc("GET /api/chat/sessions/{id}/messages", s.handleListMessages)
	authed.HandleFunc("POST /api/chat/sessions/{id}/handoff", s.handleTakeover)
	authed.HandleFunc("POST /api/chat/sessions/{id}/message", s.handleStaffMessage)
	authed.HandleFunc("POST /api/chat/sessions/{id}/close", s.handleCloseSession)
	authed.HandleFunc("GET /api/leads", s.handleListLeads)
	authed.HandleFunc("GET /api/leads/{id}", s.handleGetLead)
	authed.HandleFunc("PUT /api/leads/{id}/status", s.handleUpdateLeadStatus)
	authed.HandleFunc("GET /api/settings", s.handleGetSettings)
	authed.HandleFunc("PUT /api/settings", s.handleSaveSettings)
	authed.HandleFunc("GET /api/reports/usage", s.handleUsageReport)

	// Admin-only surface.
	admin := http.NewServeMux()
	admin.HandleFunc("GET /api/admin/clients", s.handleListClients)
	admin.HandleFunc("POST /api/admin/clients", s.handleCreateClient)

	authMW := auth.Middleware(roleLookup{store: s.store}, s.tokens)
	mux.Handle("/api/me", authMW(authed))
	mux.Handle("/api/chat/", authMW(authed))
	mux.Handle("/api/leads", authMW(authed))
	mux.Handle("/api/leads/", authMW(authed))
	mux.Handle("/api/settings", authMW(authed))
	mux.Handle("/api/reports/", authMW(authed))
	mux.Handle("/api/admin/", authMW(auth.RequireAdmin()(admin)))

	return mux
}

// handleHealth handles GET /health liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response failed", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// sendStoreError maps store errors to HTTP statuses. Unexpected errors are
// logged and surfaced as a generic 500 without storage detail.
func (s *Server) sendStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.sendJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrEmailExists):
		s.sendJSONError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, store.ErrInvalidOwner):
		s.sendJSONError(w, http.StatusBadRequest, "invalid owner")
	case errors.Is(err, store.ErrInvalidState):
		s.sendJSONError(w, http.StatusConflict, "operation not allowed in current session status")
	case errors.Is(err, store.ErrInvalidSetting):
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrInvalidLeadStatus):
		s.sendJSONError(w, http.StatusBadRequest, "invalid lead status")
	default:
		s.logger.Error("internal error", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// principal returns the authenticated principal or writes a 401. The auth
// middleware normally guarantees presence; this covers misrouted handlers.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) *auth.Principal {
	p := auth.FromContext(r.Context())
	if p == nil {
		s.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
	}
	return p
}

// decodeJSON decodes a request body, rejecting malformed JSON.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
