// Package store provides persistent storage for chatdesk using SQLite.
//
// # Architecture
//
// A single Store interface covers all entities; SQLiteStore implements it in
// one struct, split across files by entity:
//
//   - users.go: tenant (client) and admin accounts
//   - sessions.go: chat sessions and their status transitions
//   - messages.go: append-only chat messages
//   - leads.go: sales leads captured from conversations
//   - settings.go: per-tenant agent settings (key/value rows merged onto defaults)
//   - report.go: usage report aggregation
//
// # Tenant Scoping
//
// Every read or mutation of sessions, messages, leads, and reports takes a
// Scope. AdminScope() sees everything; TenantScope(userID) composes an
// ownership predicate into the query:
//
//   - sessions: owner_user_id = ?
//   - messages: session owned by the tenant
//   - leads: lead owner matches, or its session is owned by the tenant
//
// A row filtered out by scope is reported as ErrNotFound, identical to a row
// that does not exist. Callers cannot distinguish the two cases.
//
// # Session Lifecycle
//
// Sessions move between active, human_handoff, and closed. A session never
// returns to active; AllowedTransition encodes the rules. Handoff and
// takeover write their status flip and marker message in one transaction, so
// a marker implies the transition committed.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC3339 TEXT at second precision; ordered queries
// additionally sort on rowid for a stable within-second order.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: entity missing or outside the caller's scope
//   - ErrEmailExists: registration with a taken email
//   - ErrInvalidOwner: session owner is not an existing client account
//   - ErrInvalidState: operation not allowed in the session's current status
//   - ErrInvalidSetting: settings value out of range
//   - ErrInvalidLeadStatus: unknown lead status value
//
// All methods accept context.Context for cancellation support.
package store
