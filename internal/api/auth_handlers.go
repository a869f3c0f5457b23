// ABOUTME: Authentication and account endpoints: login, register, me, admin clients

package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/apextsgroup/chatdesk/internal/auth"
	"github.com/apextsgroup/chatdesk/internal/store"
)

// LoginRequest is the JSON request body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the JSON request body for POST /api/auth/register and
// POST /api/admin/clients.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// AuthResponse is the JSON response for successful login or registration.
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// UserResponse is the JSON shape of a user account. Password hashes never
// leave the store layer.
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

func toUserResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// handleLogin handles POST /api/auth/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		s.sendJSONError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		// Same response for unknown email and wrong password.
		s.sendJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: toUserResponse(user)})
}

// handleRegister handles POST /api/auth/register. Public registration always
// creates a client tenant; admins are created via bootstrap.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	user, ok := s.createAccount(w, r, store.RoleClient)
	if !ok {
		return
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: toUserResponse(user)})
}

// handleMe handles GET /api/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := s.principal(w, r)
	if p == nil {
		return
	}

	user, err := s.store.GetUser(r.Context(), p.ID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toUserResponse(user))
}

// handleListClients handles GET /api/admin/clients.
func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.store.ListClients(r.Context())
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	out := make([]UserResponse, 0, len(clients))
	for _, c := range clients {
		out = append(out, toUserResponse(c))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"clients": out})
}

// handleCreateClient handles POST /api/admin/clients.
func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	user, ok := s.createAccount(w, r, store.RoleClient)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// createAccount validates a RegisterRequest and inserts the user. Writes the
// error response itself and reports success via the bool.
func (s *Server) createAccount(w http.ResponseWriter, r *http.Request, role string) (*store.User, bool) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		s.sendJSONError(w, http.StatusBadRequest, "email, password, and name are required")
		return nil, false
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.sendStoreError(w, err)
		return nil, false
	}

	user := &store.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		s.sendStoreError(w, err)
		return nil, false
	}

	return user, true
}
