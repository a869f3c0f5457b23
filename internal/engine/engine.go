// ABOUTME: Conversation engine routing visitor messages through the handoff state machine
// ABOUTME: Persists first, then branches on session status; one handoff per session

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apextsgroup/chatdesk/internal/store"
)

// Reply texts returned to the widget.
const (
	handoffAck    = "Message received. A human agent will respond shortly."
	handoffReply  = "I understand you'd like to speak with a human agent. Let me transfer you now."
	fallbackReply = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."
)

const defaultReplyTimeout = 10 * time.Second

// Events receives notifications about conversation milestones. Implementations
// must not block; failures are logged and never affect the conversation.
type Events interface {
	SessionHandedOff(ctx context.Context, sessionID, ownerUserID string)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) SessionHandedOff(context.Context, string, string) {}

// IngestResult is the outcome of processing one visitor message.
type IngestResult struct {
	Reply            string
	HandoffTriggered bool
	Status           store.SessionStatus
}

// Engine processes visitor messages and staff actions against the session
// state machine. Per-session serialization plus the store's conditional
// handoff update guarantee at most one handoff transition per session.
type Engine struct {
	store        store.Store
	replier      Replier
	events       Events
	logger       *slog.Logger
	replyTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is a refcounted per-session mutex. Entries leave the map when
// the last holder releases, so the map tracks in-flight sessions only.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// New creates an engine. A nil events sink is replaced with NopEvents.
func New(st store.Store, replier Replier, events Events) *Engine {
	if events == nil {
		events = NopEvents{}
	}
	return &Engine{
		store:        st,
		replier:      replier,
		events:       events,
		logger:       slog.Default().With("component", "engine"),
		replyTimeout: defaultReplyTimeout,
		locks:        make(map[string]*sessionLock),
	}
}

// SetReplyTimeout overrides the bound on each replier call.
func (e *Engine) SetReplyTimeout(d time.Duration) {
	if d > 0 {
		e.replyTimeout = d
	}
}

// lockSession acquires the mutex serializing work on one session.
func (e *Engine) lockSession(sessionID string) *sessionLock {
	e.mu.Lock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		e.locks[sessionID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return l
}

// unlockSession releases the session mutex and drops the map entry once no
// other goroutine is waiting on it.
func (e *Engine) unlockSession(sessionID string, l *sessionLock) {
	l.mu.Unlock()

	e.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(e.locks, sessionID)
	}
	e.mu.Unlock()
}

// IngestVisitorMessage persists a visitor message and produces the reply.
//
// The message is saved before any branching, so it is never lost regardless
// of session status. A session already in human_handoff (or closed) gets the
// static acknowledgment with no automated reply. An active session first
// checks the tenant's handoff keywords; on a match the session transitions
// to human_handoff exactly once, otherwise the configured replier runs under
// a bounded timeout with a graceful fallback reply on failure.
//
// Returns store.ErrNotFound for unknown session ids.
func (e *Engine) IngestVisitorMessage(ctx context.Context, sessionID, body string) (*IngestResult, error) {
	lock := e.lockSession(sessionID)
	defer e.unlockSession(sessionID, lock)

	session, err := e.store.GetSession(ctx, store.AdminScope(), sessionID)
	if err != nil {
		return nil, err
	}

	visitorMsg := &store.ChatMessage{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		SenderType: store.SenderVisitor,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.store.SaveMessage(ctx, visitorMsg); err != nil {
		return nil, fmt.Errorf("saving visitor message: %w", err)
	}

	if session.Status != store.StatusActive {
		return &IngestResult{
			Reply:            handoffAck,
			HandoffTriggered: session.Status == store.StatusHumanHandoff,
			Status:           session.Status,
		}, nil
	}

	settings, err := e.store.GetSettings(ctx, session.OwnerUserID)
	if err != nil {
		return nil, fmt.Errorf("loading agent settings: %w", err)
	}

	if settings.EnableHandoff && MatchesKeyword(body, SplitKeywords(settings.HandoffKeywords)) {
		return e.triggerHandoff(ctx, session)
	}

	reply := e.generateReply(ctx, sessionID, body, settings)

	aiMsg := &store.ChatMessage{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		SenderType: store.SenderAI,
		Body:       reply,
		IsAI:       true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.store.SaveMessage(ctx, aiMsg); err != nil {
		return nil, fmt.Errorf("saving reply message: %w", err)
	}

	return &IngestResult{Reply: reply, Status: store.StatusActive}, nil
}

// triggerHandoff flips the session to human_handoff and records the marker.
// A lost race against a concurrent trigger degrades to the acknowledgment.
func (e *Engine) triggerHandoff(ctx context.Context, session *store.ChatSession) (*IngestResult, error) {
	marker := &store.ChatMessage{
		ID:              uuid.NewString(),
		SessionID:       session.ID,
		SenderType:      store.SenderAI,
		Body:            handoffReply,
		IsAI:            true,
		IsHandoffMarker: true,
		CreatedAt:       time.Now().UTC(),
	}

	transitioned, err := e.store.TriggerHandoff(ctx, session.ID, marker)
	if err != nil {
		return nil, fmt.Errorf("triggering handoff: %w", err)
	}
	if !transitioned {
		return &IngestResult{
			Reply:            handoffAck,
			HandoffTriggered: true,
			Status:           store.StatusHumanHandoff,
		}, nil
	}

	e.logger.Info("handoff triggered", "session_id", session.ID)
	e.events.SessionHandedOff(ctx, session.ID, session.OwnerUserID)

	return &IngestResult{
		Reply:            handoffReply,
		HandoffTriggered: true,
		Status:           store.StatusHumanHandoff,
	}, nil
}

// generateReply runs the replier under the engine's timeout and degrades to
// the fallback text on any failure. A reply is always produced.
func (e *Engine) generateReply(ctx context.Context, sessionID, body string, settings store.AgentSettings) string {
	replyCtx, cancel := context.WithTimeout(ctx, e.replyTimeout)
	defer cancel()

	reply, err := e.replier.Reply(replyCtx, ReplyRequest{
		SessionID: sessionID,
		Message:   body,
		Settings:  settings,
	})
	if err != nil {
		e.logger.Warn("reply generation failed, using fallback", "session_id", sessionID, "error", err)
		return fallbackReply
	}
	return reply
}

// StaffTakeover assigns staff to a session, moving it to human_handoff
// regardless of current status. A repeat takeover reassigns the session.
// The optional note is recorded as a human message in the transcript.
func (e *Engine) StaffTakeover(ctx context.Context, scope store.Scope, sessionID, staffID, note string) error {
	lock := e.lockSession(sessionID)
	defer e.unlockSession(sessionID, lock)

	var noteMsg *store.ChatMessage
	if note != "" {
		noteMsg = &store.ChatMessage{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			SenderType: store.SenderHuman,
			SenderID:   &staffID,
			Body:       note,
			CreatedAt:  time.Now().UTC(),
		}
	}

	if err := e.store.TakeoverSession(ctx, scope, sessionID, staffID, noteMsg); err != nil {
		return err
	}

	e.logger.Info("staff takeover", "session_id", sessionID, "staff_id", staffID)
	return nil
}

// StaffSendMessage appends a human reply to a session in human_handoff.
func (e *Engine) StaffSendMessage(ctx context.Context, scope store.Scope, sessionID, staffID, body string) (*store.ChatMessage, error) {
	msg := &store.ChatMessage{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		SenderType: store.SenderHuman,
		SenderID:   &staffID,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}

	if err := e.store.AddStaffMessage(ctx, scope, sessionID, msg); err != nil {
		return nil, err
	}

	return msg, nil
}
