// ABOUTME: Chat message persistence; messages are append-only within a session
// ABOUTME: Staff messages validate session status and bump the session timestamp

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const messageColumns = "id, session_id, sender_type, sender_id, body, is_ai, is_handoff_marker, created_at"

// SaveMessage appends a message to its session.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *ChatMessage) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertMessageTx(ctx, tx, msg)
	})
}

// insertMessageTx appends a message within an existing transaction so status
// transitions and their markers commit together.
func insertMessageTx(ctx context.Context, tx *sql.Tx, msg *ChatMessage) error {
	query := `
		INSERT INTO chat_messages (id, session_id, sender_type, sender_id, body, is_ai, is_handoff_marker, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(ctx, query,
		msg.ID,
		msg.SessionID,
		msg.SenderType,
		nullString(msg.SenderID),
		msg.Body,
		boolToInt(msg.IsAI),
		boolToInt(msg.IsHandoffMarker),
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages oldest first. The session must be
// visible to the scope; otherwise ErrNotFound.
func (s *SQLiteStore) ListMessages(ctx context.Context, scope Scope, sessionID string, limit, offset int) ([]*ChatMessage, error) {
	// Resolve the session through the scope first so an out-of-scope id
	// reads as missing rather than as an empty conversation.
	if _, err := s.GetSession(ctx, scope, sessionID); err != nil {
		return nil, err
	}

	query := "SELECT " + messageColumns + ` FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC`
	args := []any{sessionID}
	query, args = applyPagination(query, args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*ChatMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// AddStaffMessage appends a human reply to a session in human_handoff status
// and bumps the session's updated_at, atomically. Any other status returns
// ErrInvalidState.
func (s *SQLiteStore) AddStaffMessage(ctx context.Context, scope Scope, sessionID string, msg *ChatMessage) error {
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

		if status != StatusHumanHandoff {
			return ErrInvalidState
		}

		if err := insertMessageTx(ctx, tx, msg); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
			formatTime(time.Now()), sessionID,
		)
		if err != nil {
			return fmt.Errorf("bumping session timestamp: %w", err)
		}
		return nil
	})
}

func scanMessage(row scanner) (*ChatMessage, error) {
	var msg ChatMessage
	var senderID sql.NullString
	var isAI, isMarker int
	var createdAtStr string

	err := row.Scan(
		&msg.ID,
		&msg.SessionID,
		&msg.SenderType,
		&senderID,
		&msg.Body,
		&isAI,
		&isMarker,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	msg.SenderID = fromNullString(senderID)
	msg.IsAI = isAI != 0
	msg.IsHandoffMarker = isMarker != 0

	if msg.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}

	return &msg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
