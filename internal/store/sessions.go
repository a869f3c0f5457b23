// ABOUTME: Chat session persistence including the handoff and takeover transitions
// ABOUTME: Status flips and their marker messages commit in a single transaction

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sessionColumns = "id, owner_user_id, visitor_name, visitor_email, status, assigned_to, created_at, updated_at"

// CreateSession creates a new chat session. The owner must be an existing
// client account; anything else returns ErrInvalidOwner.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *ChatSession) error {
	owner, err := s.GetUser(ctx, session.OwnerUserID)
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidOwner
	}
	if err != nil {
		return fmt.Errorf("resolving session owner: %w", err)
	}
	if owner.Role != RoleClient {
		return ErrInvalidOwner
	}

	query := `
		INSERT INTO chat_sessions (id, owner_user_id, visitor_name, visitor_email, status, assigned_to, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		session.ID,
		session.OwnerUserID,
		session.VisitorName,
		nullString(session.VisitorEmail),
		session.Status,
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Info("created chat session", "id", session.ID, "owner", session.OwnerUserID)
	return nil
}

// GetSession retrieves a session by ID within the given scope.
// Returns ErrNotFound for missing and out-of-scope sessions alike.
func (s *SQLiteStore) GetSession(ctx context.Context, scope Scope, id string) (*ChatSession, error) {
	clause, args := scope.sessionOwnerClause()
	query := "SELECT " + sessionColumns + " FROM chat_sessions WHERE id = ?" + clause

	row := s.db.QueryRowContext(ctx, query, append([]any{id}, args...)...)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return session, nil
}

// ListSessions returns sessions visible to the scope, newest first.
// An empty filter status means all statuses.
func (s *SQLiteStore) ListSessions(ctx context.Context, scope Scope, filter SessionFilter) ([]*ChatSession, error) {
	clause, args := scope.sessionOwnerClause()
	query := "SELECT " + sessionColumns + " FROM chat_sessions WHERE 1=1" + clause

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at DESC, rowid DESC"
	query, args = applyPagination(query, args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*ChatSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	return sessions, nil
}

// TriggerHandoff moves a session from active to human_handoff and records the
// marker message, atomically. Returns (true, nil) when this call performed the
// transition, (false, nil) when the session was already out of active (the
// marker is then not written), and ErrNotFound for unknown sessions.
func (s *SQLiteStore) TriggerHandoff(ctx context.Context, sessionID string, marker *ChatMessage) (bool, error) {
	var transitioned bool

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(time.Now())

		res, err := tx.ExecContext(ctx, `
			UPDATE chat_sessions
			SET status = ?, assigned_to = NULL, updated_at = ?
			WHERE id = ? AND status = ?
		`, StatusHumanHandoff, now, sessionID, StatusActive)
		if err != nil {
			return fmt.Errorf("updating session status: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n == 0 {
			// Distinguish a lost race from a missing session.
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM chat_sessions WHERE id = ?`, sessionID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("checking session existence: %w", err)
			}
			return nil
		}

		transitioned = true
		return insertMessageTx(ctx, tx, marker)
	})
	if err != nil {
		return false, err
	}

	if transitioned {
		s.logger.Info("session handed off", "session_id", sessionID)
	}
	return transitioned, nil
}

// TakeoverSession assigns a staff member to a session, moving it to
// human_handoff regardless of current status, and records an optional
// takeover note as a human message. Re-taking-over reassigns to the new
// staff member; taking over a closed session reopens it into handoff.
func (s *SQLiteStore) TakeoverSession(ctx context.Context, scope Scope, sessionID, staffID string, note *ChatMessage) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		clause, args := scope.sessionOwnerClause()

		var status SessionStatus
		err := tx.QueryRowContext(ctx,
			"SELECT status FROM chat_sessions WHERE id = ?"+clause,
			append([]any{sessionID}, args...)...,
		).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("querying session status: %w", err)
		}

		if !AllowedTransition(status, StatusHumanHandoff) {
			return ErrInvalidState
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE chat_sessions
			SET status = ?, assigned_to = ?, updated_at = ?
			WHERE id = ?
		`, StatusHumanHandoff, staffID, formatTime(time.Now()), sessionID)
		if err != nil {
			return fmt.Errorf("updating session assignment: %w", err)
		}

		if note != nil {
			if err := insertMessageTx(ctx, tx, note); err != nil {
				return err
			}
		}

		s.logger.Info("session taken over", "session_id", sessionID, "staff_id", staffID)
		return nil
	})
}

// CloseSession moves a session to closed. Closing an already closed session
// is a no-op. Returns ErrNotFound for missing or out-of-scope sessions.
func (s *SQLiteStore) CloseSession(ctx context.Context, scope Scope, id string) error {
	clause, args := scope.sessionOwnerClause()

	res, err := s.db.ExecContext(ctx,
		"UPDATE chat_sessions SET status = ?, updated_at = ? WHERE id = ?"+clause,
		append([]any{StatusClosed, formatTime(time.Now()), id}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("closing session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Info("session closed", "session_id", id)
	return nil
}

// scanner covers *sql.Row and *sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*ChatSession, error) {
	var session ChatSession
	var visitorEmail, assignedTo sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&session.ID,
		&session.OwnerUserID,
		&session.VisitorName,
		&visitorEmail,
		&session.Status,
		&assignedTo,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	session.VisitorEmail = fromNullString(visitorEmail)
	session.AssignedTo = fromNullString(assignedTo)

	if session.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}
	if session.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, err
	}

	return &session, nil
}

// applyPagination appends LIMIT/OFFSET when limit is positive. Offset without
// a limit is meaningless in SQLite and is ignored.
func applyPagination(query string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}
	return query, args
}
