// ABOUTME: Store interface and data types for chatdesk persistence
// ABOUTME: Defines User, ChatSession, ChatMessage, Lead structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist, or exists
// but is outside the caller's tenant scope. The two cases are deliberately
// indistinguishable so a client cannot probe for other tenants' ids.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when creating a user with an email that is taken.
var ErrEmailExists = errors.New("email already registered")

// ErrInvalidOwner is returned when a session references a user that does not
// exist or does not have the client role.
var ErrInvalidOwner = errors.New("owner must be an existing client account")

// ErrInvalidState is returned when an operation is not permitted in the
// session's current status (e.g. a staff message to a non-handoff session).
var ErrInvalidState = errors.New("operation not allowed in current session status")

// ErrInvalidSetting is returned when a settings value is out of range.
var ErrInvalidSetting = errors.New("invalid setting value")

// ErrInvalidLeadStatus is returned when a lead status value is unknown.
var ErrInvalidLeadStatus = errors.New("invalid lead status")

// Role constants for user accounts.
const (
	RoleClient = "client" // tenant account owning sessions, leads, settings
	RoleAdmin  = "admin"  // superuser with unrestricted read access
)

// User represents a tenant account (role client) or a superuser (role admin).
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string
	CreatedAt    time.Time
}

// SessionStatus is the lifecycle status of a chat session.
type SessionStatus string

// Session lifecycle states.
const (
	StatusActive       SessionStatus = "active"
	StatusHumanHandoff SessionStatus = "human_handoff"
	StatusClosed       SessionStatus = "closed"
)

// ValidSessionStatus reports whether s is a known session status.
func ValidSessionStatus(s SessionStatus) bool {
	switch s {
	case StatusActive, StatusHumanHandoff, StatusClosed:
		return true
	}
	return false
}

// AllowedTransition reports whether a session may move from one status to
// another. A session never returns to active; handoff and close are reachable
// from any state. Every mutating operation consults this instead of comparing
// status strings at the call site.
func AllowedTransition(from, to SessionStatus) bool {
	if from == to {
		return true
	}
	return to == StatusHumanHandoff || to == StatusClosed
}

// ChatSession represents one visitor conversation owned by a tenant.
// OwnerUserID is immutable once set and always references a client account.
// AssignedTo is non-nil only after a staff takeover; system-triggered
// handoffs leave it nil.
type ChatSession struct {
	ID           string
	OwnerUserID  string
	VisitorName  string
	VisitorEmail *string
	Status       SessionStatus
	AssignedTo   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SenderType constants for chat messages.
const (
	SenderVisitor = "visitor"
	SenderAI      = "ai"
	SenderHuman   = "human"
)

// ChatMessage is a single message within a session. Messages are append-only;
// ordering is created_at ascending with insertion order as the tiebreak.
type ChatMessage struct {
	ID              string
	SessionID       string
	SenderType      string
	SenderID        *string // staff user id for human messages, nil otherwise
	Body            string
	IsAI            bool
	IsHandoffMarker bool
	CreatedAt       time.Time
}

// LeadStatus is the sales pipeline status of a lead.
type LeadStatus string

// Lead pipeline states. Transitions between them are unconstrained; the sales
// process lives outside this system.
const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadQualified LeadStatus = "qualified"
	LeadConverted LeadStatus = "converted"
	LeadLost      LeadStatus = "lost"
)

// ValidLeadStatus reports whether s is a known lead status.
func ValidLeadStatus(s LeadStatus) bool {
	switch s {
	case LeadNew, LeadContacted, LeadQualified, LeadConverted, LeadLost:
		return true
	}
	return false
}

// Lead is a sales lead captured from a conversation. OwnerUserID is derived
// from the session's owner at creation time and then frozen.
type Lead struct {
	ID          string
	SessionID   *string
	OwnerUserID *string
	Name        string
	Email       string
	Phone       *string
	Company     *string
	Message     *string
	Source      string
	Status      LeadStatus
	CreatedAt   time.Time
}

// SessionFilter narrows ListSessions results.
type SessionFilter struct {
	Status SessionStatus // empty for all statuses
	Limit  int
	Offset int
}

// LeadFilter narrows ListLeads results.
type LeadFilter struct {
	Status LeadStatus // empty for all statuses
	Limit  int
	Offset int
}

// ReportRange is an optional inclusive created_at window for usage reports.
// Both bounds must be set for the filter to apply.
type ReportRange struct {
	Start *time.Time
	End   *time.Time
}

// DailyCount is one day of session-creation counts in a usage report.
type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// UsageReport aggregates tenant- or globally-scoped conversation counters.
type UsageReport struct {
	TotalSessions  int          `json:"total_sessions"`
	ActiveSessions int          `json:"active_sessions"`
	HumanHandoffs  int          `json:"human_handoffs"`
	TotalMessages  int          `json:"total_messages"`
	DailyStats     []DailyCount `json:"daily_stats"`
}

// Store defines the interface for chatdesk persistence.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListClients(ctx context.Context) ([]*User, error)
	CountAdmins(ctx context.Context) (int, error)

	// Sessions
	CreateSession(ctx context.Context, session *ChatSession) error
	GetSession(ctx context.Context, scope Scope, id string) (*ChatSession, error)
	ListSessions(ctx context.Context, scope Scope, filter SessionFilter) ([]*ChatSession, error)
	TriggerHandoff(ctx context.Context, sessionID string, marker *ChatMessage) (bool, error)
	TakeoverSession(ctx context.Context, scope Scope, sessionID, staffID string, note *ChatMessage) error
	CloseSession(ctx context.Context, scope Scope, id string) error

	// Messages
	SaveMessage(ctx context.Context, msg *ChatMessage) error
	ListMessages(ctx context.Context, scope Scope, sessionID string, limit, offset int) ([]*ChatMessage, error)
	AddStaffMessage(ctx context.Context, scope Scope, sessionID string, msg *ChatMessage) error

	// Leads
	CreateLead(ctx context.Context, lead *Lead) error
	GetLead(ctx context.Context, scope Scope, id string) (*Lead, error)
	ListLeads(ctx context.Context, scope Scope, filter LeadFilter) ([]*Lead, error)
	UpdateLeadStatus(ctx context.Context, scope Scope, id string, status LeadStatus) error

	// Agent settings
	GetSettings(ctx context.Context, ownerUserID string) (AgentSettings, error)
	SaveSettings(ctx context.Context, ownerUserID string, patch SettingsPatch) error

	// Reporting
	GetUsageReport(ctx context.Context, scope Scope, rng ReportRange) (*UsageReport, error)

	// Close releases any resources held by the store
	Close() error
}
