package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apextsgroup/chatdesk/internal/store"
)

// recordingEvents captures handoff notifications for assertions.
type recordingEvents struct {
	mu       sync.Mutex
	handoffs []string
}

func (r *recordingEvents) SessionHandedOff(_ context.Context, sessionID, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handoffs = append(r.handoffs, sessionID)
}

func (r *recordingEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handoffs)
}

func setupTestEngine(t *testing.T) (*Engine, *store.SQLiteStore, *recordingEvents) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	events := &recordingEvents{}
	return New(st, EchoReplier{}, events), st, events
}

func createSession(t *testing.T, st *store.SQLiteStore) *store.ChatSession {
	t.Helper()
	ctx := context.Background()

	ownerID := uuid.NewString()
	require.NoError(t, st.CreateUser(ctx, &store.User{
		ID:           ownerID,
		Email:        ownerID + "@example.com",
		PasswordHash: "hash",
		Name:         "Owner",
		Role:         store.RoleClient,
		CreatedAt:    time.Now().UTC(),
	}))

	now := time.Now().UTC()
	session := &store.ChatSession{
		ID:          uuid.NewString(),
		OwnerUserID: ownerID,
		VisitorName: "Anonymous",
		Status:      store.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, st.CreateSession(ctx, session))
	return session
}

func TestEngine_IngestVisitorMessage_EchoReply(t *testing.T) {
	engine, st, _ := setupTestEngine(t)
	ctx := context.Background()
	session := createSession(t, st)

	result, err := engine.IngestVisitorMessage(ctx, session.ID, "hello there")
	require.NoError(t, err)

	assert.Equal(t, `I received your message: "hello there"`, result.Reply)
	assert.False(t, result.HandoffTriggered)
	assert.Equal(t, store.StatusActive, result.Status)

	messages, err := st.ListMessages(ctx, store.AdminScope(), session.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, store.SenderVisitor, messages[0].SenderType)
	assert.Equal(t, store.SenderAI, messages[1].SenderType)
	assert.True(t, messages[1].IsAI)
}

func TestEngine_IngestVisitorMessage_KeywordHandoff(t *testing.T) {
	engine, st, events := setupTestEngine(t)
	ctx := context.Background()
	session := createSession(t, st)

	result, err := engine.IngestVisitorMessage(ctx, session.ID, "I want to speak to human please")
	require.NoError(t, err)

	assert.True(t, result.HandoffTriggered)
	assert.Equal(t, store.StatusHumanHandoff, result.Status)
	assert.Equal(t, handoffReply, result.Reply)
	assert.Equal(t, 1, events.count())

	updated, err := st.GetSession(ctx, store.AdminScope(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusHumanHandoff, updated.Status)
	assert.Nil(t, updated.AssignedTo)

	messages, err := st.ListMessages(ctx, store.AdminScope(), session.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.True(t, messages[1].IsHandoffMarker)
}

func TestEngine_IngestVisitorMessage_StickyHandoff(t *testing.T) {
	engine, st, events := setupTestEngine(t)
	ctx := context.Background()
	session := createSession(t, st)

	_, err := engine.IngestVisitorMessage(ctx, session.ID, "agent please")
	require.NoError(t, err)

	// Every later message gets the ack, even ones matching keywords again.
	for _, body := range []string{"hello?", "agent agent agent"} {
		result, err := engine.IngestVisitorMessage(ctx, session.ID, body)
		require.NoError(t, err)
		assert.Equal(t, handoffAck, result.Reply)
		assert.True(t, result.HandoffTriggered)
	}

	// One marker, one event, and all visitor messages persisted.
	assert.Equal(t, 1, events.count())

	messages, err := st.ListMessages(ctx, store.AdminScope(), session.ID, 0, 0)
	require.NoError(t, err)

	markers := 0
	visitors := 0
	for _, m := range messages {
		if m.IsHandoffMarker {
			markers++
		}
		if m.SenderType == store.SenderVisitor {
			visitors++
		}
	}
	assert.Equal(t, 1, markers)
	assert.Equal(t, 3, visitors)
}

func TestEngine_IngestVisitorMessage_HandoffDisabled(t *testing.T) {
	engine, st, _ := setupTestEngine(t)
	ctx := context.Background()
	session := createSession(t, st)

	off := false
	require.NoError(t, st.SaveSettings(ctx, session.OwnerUserID, store.SettingsPatch{EnableHandoff: &off}))

	result, err := engine.IngestVisitorMessage(ctx, session.ID, "speak to human")
	require.NoError(t, err)

	assert.False(t, result.HandoffTriggered)
	assert.Equal(t, store.StatusActive, result.Status)
}

func TestEngine_IngestVisitorMessage_CustomKeywords(t *testing.T) {
	engine, st, _ := setupTestEngine(t)
	ctx := context.Background()
	session := createSession(t, st)

	keywords := "operator, real person"
	require.NoError(t, st.SaveSettings(ctx, session.OwnerUserID, store.SettingsPatch{HandoffKeywords: &keywords}))

	// Default keywords no longer apply.
	result, err := engine.IngestVisitorMessage(ctx, session.ID, "speak to human")
	require.NoError(t, err)
	assert.False(t, result.HandoffTriggered)

	result, err = engine.IngestVisitorMessage(ctx, session.ID, "get me a REAL PERSON")
	require.NoError(t, err)
	assert.True(t, result.HandoffTriggered)
}

func TestEngine_IngestVisitorMessage_ClosedSession(t *testing.T) {
	engine, st, _ := setupTestEngine(t)
	ctx := context.Background()
	session := createSession(t, st)

	require.NoError(t, st.CloseSession(ctx, store.AdminScope(), session.ID))

	result, err := engine.IngestVisitorMessage(ctx, session.ID, "anyone there?")
	require.NoError(t, err)

	assert.Equal(t, handoffAck, result.Reply)
	assert.False(t, result.HandoffTriggered)
	assert.Equal(t, store.StatusClosed, result.Status)

	// The visitor message is still persisted.
	messages, err := st.ListMessages(ctx, store.AdminScope(), session.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, store.SenderVisitor, messages[0].SenderType)
}

func TestEngine_IngestVisitorMessage_UnknownSession(t *testing.T) {
	engine, _, _ := setupTestEngine(t)

	_, err := engine.IngestVisitorMessage(context.Background(), "nonexistent", "hello")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEngine_IngestVisitorMessage_ReplierFailure(t *testing.T) {
	_, st, _ := setupTestEngine(t)
	ctx := context.Background()
	session := createSession(t, st)

	failing := ReplierFunc(func(context.Context, ReplyRequest) (string, error) {
		return "", errors.New("backend down")
	})
	engine := New(st, failing, nil)

	result, err := engine.IngestVisitorMessage(ctx, session.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, fallbackReply, result.Reply)

	// Both the visitor message and the fallback reply are in the transcript.
	messages, err := st.ListMessages(ctx, store.AdminScope(), session.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, fallbackReply, messages[1].Body)
}

func TestEngine_IngestVisitorMessage_ReplierTimeout(t *testing.T) {
	_, st, _ := setupTestEngine(t)
	ctx := context.Background()
	session := createSession(t, st)

	slow := ReplierFunc(func(ctx context.Context, _ ReplyRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	engine := New(st, slow, nil)
	engine.replyTimeout = 50 * time.Millisecond

	start := time.Now()
	result, err := engine.IngestVisitorMessage(ctx, session.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, fallbackReply, result.Reply)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEngine_IngestVisitorMessage_ConcurrentKeyword(t *testing.T) {
	engine, st, events := setupTestEngine(t)
	ctx := context.Background()
	session := createSession(t, st)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.IngestVisitorMessage(ctx, session.ID, "agent please")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, events.count(), "handoff event fires exactly once")

	messages, err := st.ListMessages(ctx, store.AdminScope(), session.ID, 0, 0)
	require.NoError(t, err)

	markers := 0
	for _, m := range messages {
		if m.IsHandoffMarker {
			markers++
		}
	}
	assert.Equal(t, 1, markers, "exactly one marker message")
	assert.Len(t, messages, n+1, "all visitor messages plus one marker")
}

func TestEngine_StaffSendMessage(t *testing.T) {
	engine, st, _ := setupTestEngine(t)
	ctx := context.Background()
	session := createSession(t, st)

	scope := store.TenantScope(session.OwnerUserID)

	// Rejected while the bot still owns the conversation.
	_, err := engine.StaffSendMessage(ctx, scope, session.ID, session.OwnerUserID, "hi from support")
	assert.ErrorIs(t, err, store.ErrInvalidState)

	require.NoError(t, engine.StaffTakeover(ctx, scope, session.ID, session.OwnerUserID, "taking this one"))

	msg, err := engine.StaffSendMessage(ctx, scope, session.ID, session.OwnerUserID, "hi from support")
	require.NoError(t, err)
	assert.Equal(t, store.SenderHuman, msg.SenderType)

	messages, err := st.ListMessages(ctx, store.AdminScope(), session.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "taking this one", messages[0].Body)
	assert.Equal(t, "hi from support", messages[1].Body)
}

func TestEngine_StaffTakeover_OtherTenant(t *testing.T) {
	engine, st, _ := setupTestEngine(t)
	ctx := context.Background()
	session := createSession(t, st)

	err := engine.StaffTakeover(ctx, store.TenantScope("other-tenant"), session.ID, "other-tenant", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func createStaff(t *testing.T, st *store.SQLiteStore, name string) string {
	t.Helper()

	id := uuid.NewString()
	require.NoError(t, st.CreateUser(context.Background(), &store.User{
		ID:           id,
		Email:        id + "@example.com",
		PasswordHash: "hash",
		Name:         name,
		Role:         store.RoleClient,
		CreatedAt:    time.Now().UTC(),
	}))
	return id
}

func TestEngine_StaffTakeover_Repeat(t *testing.T) {
	engine, st, _ := setupTestEngine(t)
	ctx := context.Background()
	session := createSession(t, st)

	scope := store.AdminScope()
	first := createStaff(t, st, "First Agent")
	second := createStaff(t, st, "Second Agent")

	require.NoError(t, engine.StaffTakeover(ctx, scope, session.ID, first, ""))
	require.NoError(t, engine.StaffTakeover(ctx, scope, session.ID, second, ""))

	updated, err := st.GetSession(ctx, store.AdminScope(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusHumanHandoff, updated.Status)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, second, *updated.AssignedTo)

	messages, err := st.ListMessages(ctx, store.AdminScope(), session.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, messages, "takeover without a note writes nothing")
}

func TestEngine_StaffTakeover_ReopensClosed(t *testing.T) {
	engine, st, _ := setupTestEngine(t)
	ctx := context.Background()
	session := createSession(t, st)

	scope := store.TenantScope(session.OwnerUserID)
	require.NoError(t, st.CloseSession(ctx, scope, session.ID))

	require.NoError(t, engine.StaffTakeover(ctx, scope, session.ID, session.OwnerUserID, ""))

	updated, err := st.GetSession(ctx, store.AdminScope(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusHumanHandoff, updated.Status)
}

func TestEngine_SessionLocksPruned(t *testing.T) {
	engine, st, _ := setupTestEngine(t)
	ctx := context.Background()
	session := createSession(t, st)

	_, err := engine.IngestVisitorMessage(ctx, session.ID, "hello")
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.IngestVisitorMessage(ctx, session.ID, "hello again")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Empty(t, engine.locks, "lock map keeps entries only for in-flight sessions")
}
