package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apextsgroup/chatdesk/internal/auth"
	"github.com/apextsgroup/chatdesk/internal/engine"
	"github.com/apextsgroup/chatdesk/internal/store"
)

type testEnv struct {
	server *Server
	store  *store.SQLiteStore
	tokens *auth.JWTManager
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tokens := auth.NewJWTManager([]byte("test-secret"))
	eng := engine.New(st, engine.EchoReplier{}, nil)

	return &testEnv{
		server: NewServer(st, eng, tokens, nil),
		store:  st,
		tokens: tokens,
	}
}

// do issues a request against the router. A non-empty token is sent as a
// bearer credential.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.server.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

// registerClient registers a tenant through the public API and returns its
// token and user id.
func (e *testEnv) registerClient(t *testing.T, email string) (string, string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Email:    email,
		Password: "password123",
		Name:     "Test Client",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[AuthResponse](t, rec)
	return resp.Token, resp.User.ID
}

// createWidgetSession creates a session through the webhook surface.
func (e *testEnv) createWidgetSession(t *testing.T, ownerID string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/webhook/chat/session", "", CreateSessionRequest{
		OwnerUserID: ownerID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[CreateSessionResponse](t, rec).SessionID
}

func TestAPI_Health(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_RegisterAndLogin(t *testing.T) {
	env := setupTestServer(t)

	token, _ := env.registerClient(t, "new@example.com")
	require.NotEmpty(t, token)

	// Duplicate registration conflicts.
	rec := env.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Email: "new@example.com", Password: "x", Name: "Dup",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Login with the right password.
	rec = env.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Email: "new@example.com", Password: "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[AuthResponse](t, rec)
	assert.Equal(t, "client", resp.User.Role)

	// Wrong password and unknown email look identical.
	rec = env.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Email: "new@example.com", Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Email: "ghost@example.com", Password: "password123",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_Me(t *testing.T) {
	env := setupTestServer(t)
	token, userID := env.registerClient(t, "me@example.com")

	rec := env.do(t, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decodeBody[UserResponse](t, rec)
	assert.Equal(t, userID, user.ID)

	rec = env.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_WebhookCreateSession(t *testing.T) {
	env := setupTestServer(t)
	_, ownerID := env.registerClient(t, "owner@example.com")

	sessionID := env.createWidgetSession(t, ownerID)
	require.NotEmpty(t, sessionID)

	// Visitor name defaults to Anonymous.
	session, err := env.store.GetSession(t.Context(), store.AdminScope(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Anonymous", session.VisitorName)

	// Unknown owner is rejected.
	rec := env.do(t, http.MethodPost, "/api/webhook/chat/session", "", CreateSessionRequest{
		OwnerUserID: "nonexistent",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing owner is rejected.
	rec = env.do(t, http.MethodPost, "/api/webhook/chat/session", "", CreateSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_WebhookMessage(t *testing.T) {
	env := setupTestServer(t)
	_, ownerID := env.registerClient(t, "owner@example.com")
	sessionID := env.createWidgetSession(t, ownerID)

	rec := env.do(t, http.MethodPost, "/api/webhook/chat/message", "", WebhookMessageRequest{
		SessionID: sessionID, Message: "hello",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[WebhookMessageResponse](t, rec)
	assert.Equal(t, `I received your message: "hello"`, resp.Reply)
	assert.False(t, resp.HandoffTriggered)

	// Keyword triggers handoff.
	rec = env.do(t, http.MethodPost, "/api/webhook/chat/message", "", WebhookMessageRequest{
		SessionID: sessionID, Message: "I need an agent",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[WebhookMessageResponse](t, rec)
	assert.True(t, resp.HandoffTriggered)

	// Empty message is rejected.
	rec = env.do(t, http.MethodPost, "/api/webhook/chat/message", "", WebhookMessageRequest{
		SessionID: sessionID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown session is a 404.
	rec = env.do(t, http.MethodPost, "/api/webhook/chat/message", "", WebhookMessageRequest{
		SessionID: "nonexistent", Message: "hello",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_WebhookLead(t *testing.T) {
	env := setupTestServer(t)
	_, ownerID := env.registerClient(t, "owner@example.com")
	sessionID := env.createWidgetSession(t, ownerID)

	rec := env.do(t, http.MethodPost, "/api/webhook/chat/lead", "", CreateLeadRequest{
		SessionID: sessionID,
		Name:      "Jordan",
		Email:     "jordan@example.com",
		Phone:     "555-0100",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	leadID := decodeBody[CreateLeadResponse](t, rec).LeadID

	lead, err := env.store.GetLead(t.Context(), store.AdminScope(), leadID)
	require.NoError(t, err)
	require.NotNil(t, lead.OwnerUserID)
	assert.Equal(t, ownerID, *lead.OwnerUserID)

	// Missing name or email is rejected.
	rec = env.do(t, http.MethodPost, "/api/webhook/chat/lead", "", CreateLeadRequest{Name: "X"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Sessionless leads are accepted with a null owner.
	rec = env.do(t, http.MethodPost, "/api/webhook/chat/lead", "", CreateLeadRequest{
		Name: "Direct", Email: "direct@example.com",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAPI_TenantIsolation(t *testing.T) {
	env := setupTestServer(t)
	_, ownerA := env.registerClient(t, "a@example.com")
	tokenB, _ := env.registerClient(t, "b@example.com")

	sessionA := env.createWidgetSession(t, ownerA)

	// Another tenant sees a 404, never a 403.
	rec := env.do(t, http.MethodGet, "/api/chat/sessions/"+sessionA, tokenB, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/chat/sessions/"+sessionA+"/messages", tokenB, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/chat/sessions", tokenB, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[map[string][]SessionResponse](t, rec)
	assert.Empty(t, list["sessions"])
}

func TestAPI_SessionLifecycle(t *testing.T) {
	env := setupTestServer(t)
	token, ownerID := env.registerClient(t, "owner@example.com")
	sessionID := env.createWidgetSession(t, ownerID)

	// Staff message before handoff conflicts.
	rec := env.do(t, http.MethodPost, "/api/chat/sessions/"+sessionID+"/message", token, StaffMessageRequest{Message: "hi"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Takeover moves to human_handoff and assigns the caller.
	rec = env.do(t, http.MethodPost, "/api/chat/sessions/"+sessionID+"/handoff", token, TakeoverRequest{Note: "on it"})
	require.Equal(t, http.StatusOK, rec.Code)
	session := decodeBody[SessionResponse](t, rec)
	assert.Equal(t, "human_handoff", session.Status)
	require.NotNil(t, session.AssignedTo)
	assert.Equal(t, ownerID, *session.AssignedTo)

	// Staff message now succeeds.
	rec = env.do(t, http.MethodPost, "/api/chat/sessions/"+sessionID+"/message", token, StaffMessageRequest{Message: "hello from support"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Transcript shows note and staff message in order.
	rec = env.do(t, http.MethodGet, "/api/chat/sessions/"+sessionID+"/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	transcript := decodeBody[map[string]json.RawMessage](t, rec)
	var messages []MessageResponse
	require.NoError(t, json.Unmarshal(transcript["messages"], &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, "on it", messages[0].Body)
	assert.Equal(t, "hello from support", messages[1].Body)

	// Close the session.
	rec = env.do(t, http.MethodPost, "/api/chat/sessions/"+sessionID+"/close", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	session = decodeBody[SessionResponse](t, rec)
	assert.Equal(t, "closed", session.Status)
}

func TestAPI_ListSessions_Filter(t *testing.T) {
	env := setupTestServer(t)
	token, ownerID := env.registerClient(t, "owner@example.com")

	for i := 0; i < 3; i++ {
		env.createWidgetSession(t, ownerID)
	}

	rec := env.do(t, http.MethodGet, "/api/chat/sessions?status=active&limit=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[map[string][]SessionResponse](t, rec)
	assert.Len(t, list["sessions"], 2)

	rec = env.do(t, http.MethodGet, "/api/chat/sessions?status=bogus", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Leads(t *testing.T) {
	env := setupTestServer(t)
	token, ownerID := env.registerClient(t, "owner@example.com")
	sessionID := env.createWidgetSession(t, ownerID)

	rec := env.do(t, http.MethodPost, "/api/webhook/chat/lead", "", CreateLeadRequest{
		SessionID: sessionID, Name: "Jordan", Email: "jordan@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	leadID := decodeBody[CreateLeadResponse](t, rec).LeadID

	rec = env.do(t, http.MethodGet, "/api/leads", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[map[string][]LeadResponse](t, rec)
	require.Len(t, list["leads"], 1)

	rec = env.do(t, http.MethodPut, "/api/leads/"+leadID+"/status", token, UpdateLeadStatusRequest{Status: "contacted"})
	require.Equal(t, http.StatusOK, rec.Code)
	lead := decodeBody[LeadResponse](t, rec)
	assert.Equal(t, "contacted", lead.Status)

	rec = env.do(t, http.MethodPut, "/api/leads/"+leadID+"/status", token, UpdateLeadStatusRequest{Status: "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Settings(t *testing.T) {
	env := setupTestServer(t)
	token, _ := env.registerClient(t, "owner@example.com")

	rec := env.do(t, http.MethodGet, "/api/settings", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	settings := decodeBody[store.AgentSettings](t, rec)
	assert.Equal(t, 0.7, settings.Temperature)

	temp := 0.9
	rec = env.do(t, http.MethodPut, "/api/settings", token, store.SettingsPatch{Temperature: &temp})
	require.Equal(t, http.StatusOK, rec.Code)
	settings = decodeBody[store.AgentSettings](t, rec)
	assert.Equal(t, 0.9, settings.Temperature)
	assert.Equal(t, 500, settings.MaxTokens)

	bad := 3.0
	rec = env.do(t, http.MethodPut, "/api/settings", token, store.SettingsPatch{Temperature: &bad})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_UsageReport(t *testing.T) {
	env := setupTestServer(t)
	token, ownerID := env.registerClient(t, "owner@example.com")

	for i := 0; i < 2; i++ {
		sessionID := env.createWidgetSession(t, ownerID)
		rec := env.do(t, http.MethodPost, "/api/webhook/chat/message", "", WebhookMessageRequest{
			SessionID: sessionID, Message: fmt.Sprintf("hello %d", i),
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/reports/usage", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[store.UsageReport](t, rec)
	assert.Equal(t, 2, report.TotalSessions)
	assert.Equal(t, 2, report.ActiveSessions)
	// Each visitor message produced an echo reply too.
	assert.Equal(t, 4, report.TotalMessages)

	rec = env.do(t, http.MethodGet, "/api/reports/usage?start=bogus", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_AdminClients(t *testing.T) {
	env := setupTestServer(t)
	clientToken, _ := env.registerClient(t, "client@example.com")

	// Seed an admin directly; there is no public path to admin.
	adminID := "admin-1"
	hash, err := auth.HashPassword("admin-password")
	require.NoError(t, err)
	require.NoError(t, env.store.CreateUser(t.Context(), &store.User{
		ID: adminID, Email: "admin@example.com", PasswordHash: hash,
		Name: "Admin", Role: store.RoleAdmin,
	}))
	adminToken, err := env.tokens.Generate(adminID)
	require.NoError(t, err)

	// Clients are forbidden.
	rec := env.do(t, http.MethodGet, "/api/admin/clients", clientToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admin can provision and list clients.
	rec = env.do(t, http.MethodPost, "/api/admin/clients", adminToken, RegisterRequest{
		Email: "provisioned@example.com", Password: "pw", Name: "Provisioned",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[UserResponse](t, rec)
	assert.Equal(t, "client", created.Role)

	rec = env.do(t, http.MethodGet, "/api/admin/clients", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[map[string][]UserResponse](t, rec)
	assert.Len(t, list["clients"], 2)
}

func TestAPI_AdminSeesAllTenants(t *testing.T) {
	env := setupTestServer(t)
	_, ownerA := env.registerClient(t, "a@example.com")
	_, ownerB := env.registerClient(t, "b@example.com")
	env.createWidgetSession(t, ownerA)
	env.createWidgetSession(t, ownerB)

	adminID := "admin-1"
	require.NoError(t, env.store.CreateUser(t.Context(), &store.User{
		ID: adminID, Email: "admin@example.com", PasswordHash: "hash",
		Name: "Admin", Role: store.RoleAdmin,
	}))
	adminToken, err := env.tokens.Generate(adminID)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/chat/sessions", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[map[string][]SessionResponse](t, rec)
	assert.Len(t, list["sessions"], 2)
}
