// ABOUTME: Usage report aggregation over sessions and messages
// ABOUTME: Composed from independent scoped queries sharing one date window

package store

import (
	"context"
	"fmt"
)

// GetUsageReport aggregates conversation counters for the scope. The optional
// range bounds created_at inclusively on both ends and applies uniformly to
// every counter and the daily series. A nil bound disables the filter.
func (s *SQLiteStore) GetUsageReport(ctx context.Context, scope Scope, rng ReportRange) (*UsageReport, error) {
	report := &UsageReport{DailyStats: []DailyCount{}}

	sessionClause, sessionArgs := scope.sessionOwnerClause()
	rangeClause, rangeArgs := rng.clause("created_at")

	countSessions := func(extra string, extraArgs ...any) (int, error) {
		query := "SELECT COUNT(*) FROM chat_sessions WHERE 1=1" + sessionClause + rangeClause + extra
		args := append(append(append([]any{}, sessionArgs...), rangeArgs...), extraArgs...)
		var n int
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
			return 0, err
		}
		return n, nil
	}

	var err error
	if report.TotalSessions, err = countSessions(""); err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}
	if report.ActiveSessions, err = countSessions(" AND status = ?", StatusActive); err != nil {
		return nil, fmt.Errorf("counting active sessions: %w", err)
	}
	if report.HumanHandoffs, err = countSessions(" AND status = ?", StatusHumanHandoff); err != nil {
		return nil, fmt.Errorf("counting handoffs: %w", err)
	}

	msgClause, msgArgs := scope.messageOwnerClause()
	msgQuery := "SELECT COUNT(*) FROM chat_messages WHERE 1=1" + msgClause + rangeClause
	msgQueryArgs := append(append([]any{}, msgArgs...), rangeArgs...)
	if err := s.db.QueryRowContext(ctx, msgQuery, msgQueryArgs...).Scan(&report.TotalMessages); err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	dailyQuery := `SELECT DATE(created_at) AS day, COUNT(*) FROM chat_sessions WHERE 1=1` +
		sessionClause + rangeClause + ` GROUP BY day ORDER BY day ASC`
	dailyArgs := append(append([]any{}, sessionArgs...), rangeArgs...)

	rows, err := s.db.QueryContext(ctx, dailyQuery, dailyArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying daily stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dc DailyCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, fmt.Errorf("scanning daily stats row: %w", err)
		}
		report.DailyStats = append(report.DailyStats, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily stats rows: %w", err)
	}

	return report, nil
}

// clause returns a SQL fragment (beginning with " AND ") bounding column to
// the range, plus its arguments. Unset bounds contribute nothing.
func (r ReportRange) clause(column string) (string, []any) {
	var clause string
	var args []any
	if r.Start != nil {
		clause += " AND " + column + " >= ?"
		args = append(args, formatTime(*r.Start))
	}
	if r.End != nil {
		clause += " AND " + column + " <= ?"
		args = append(args, formatTime(*r.End))
	}
	return clause, args
}
