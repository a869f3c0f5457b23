// ABOUTME: Sales lead persistence captured from chat conversations
// ABOUTME: Lead ownership is derived from the session once at creation and frozen

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const leadColumns = "id, session_id, owner_user_id, name, email, phone, company, message, source, status, created_at"

// CreateLead records a new lead. When the lead references a session, its owner
// is resolved from the session row and stored on the lead; an unknown session
// id returns ErrNotFound.
func (s *SQLiteStore) CreateLead(ctx context.Context, lead *Lead) error {
	if lead.SessionID != nil {
		var owner string
		err := s.db.QueryRowContext(ctx,
			`SELECT owner_user_id FROM chat_sessions WHERE id = ?`, *lead.SessionID,
		).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("resolving lead session: %w", err)
		}
		lead.OwnerUserID = &owner
	}

	if lead.Status == "" {
		lead.Status = LeadNew
	}
	if lead.Source == "" {
		lead.Source = "chatbot"
	}

	query := `
		INSERT INTO leads (id, session_id, owner_user_id, name, email, phone, company, message, source, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		lead.ID,
		nullString(lead.SessionID),
		nullString(lead.OwnerUserID),
		lead.Name,
		lead.Email,
		nullString(lead.Phone),
		nullString(lead.Company),
		nullString(lead.Message),
		lead.Source,
		lead.Status,
		formatTime(lead.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting lead: %w", err)
	}

	s.logger.Info("created lead", "id", lead.ID, "email", lead.Email)
	return nil
}

// GetLead retrieves a lead by ID within the given scope.
func (s *SQLiteStore) GetLead(ctx context.Context, scope Scope, id string) (*Lead, error) {
	clause, args := scope.leadOwnerClause()
	query := "SELECT " + leadColumns + " FROM leads WHERE id = ?" + clause

	row := s.db.QueryRowContext(ctx, query, append([]any{id}, args...)...)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying lead: %w", err)
	}
	return lead, nil
}

// ListLeads returns leads visible to the scope, newest first.
func (s *SQLiteStore) ListLeads(ctx context.Context, scope Scope, filter LeadFilter) ([]*Lead, error) {
	clause, args := scope.leadOwnerClause()
	query := "SELECT " + leadColumns + " FROM leads WHERE 1=1" + clause

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at DESC, rowid DESC"
	query, args = applyPagination(query, args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying leads: %w", err)
	}
	defer rows.Close()

	var leads []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning lead row: %w", err)
		}
		leads = append(leads, lead)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lead rows: %w", err)
	}

	return leads, nil
}

// UpdateLeadStatus moves a lead to a new pipeline status. Transitions between
// known statuses are unconstrained; unknown values return ErrInvalidLeadStatus.
func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, scope Scope, id string, status LeadStatus) error {
	if !ValidLeadStatus(status) {
		return ErrInvalidLeadStatus
	}

	clause, args := scope.leadOwnerClause()

	res, err := s.db.ExecContext(ctx,
		"UPDATE leads SET status = ? WHERE id = ?"+clause,
		append([]any{status, id}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("updating lead status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Info("updated lead status", "id", id, "status", status)
	return nil
}

func scanLead(row scanner) (*Lead, error) {
	var lead Lead
	var sessionID, ownerID, phone, company, message sql.NullString
	var createdAtStr string

	err := row.Scan(
		&lead.ID,
		&sessionID,
		&ownerID,
		&lead.Name,
		&lead.Email,
		&phone,
		&company,
		&message,
		&lead.Source,
		&lead.Status,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	lead.SessionID = fromNullString(sessionID)
	lead.OwnerUserID = fromNullString(ownerID)
	lead.Phone = fromNullString(phone)
	lead.Company = fromNullString(company)
	lead.Message = fromNullString(message)

	if lead.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}

	return &lead, nil
}
