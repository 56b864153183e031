package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/normanking/jarvis/internal/convlog"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONVERSATION OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// InsertEntry appends one conversation entry.
func (s *Store) InsertEntry(ctx context.Context, e convlog.Entry) error {
	if e.ID == "" {
		return fmt.Errorf("conversation entry ID cannot be empty")
	}

	query := `
		INSERT INTO conversation_entries (
			id, timestamp, user_input, response, mode, intent_id, tier, action_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Timestamp.UTC().Format(time.RFC3339Nano), e.UserInput, e.Response, string(e.Mode),
		nullString(e.IntentID), nullString(e.Tier), nullString(e.ActionError),
	)
	if err != nil {
		return fmt.Errorf("insert conversation entry: %w", err)
	}
	return nil
}

// ListEntries returns every entry in append order.
func (s *Store) ListEntries(ctx context.Context) ([]convlog.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, user_input, response, mode, intent_id, tier, action_error
		FROM conversation_entries
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query conversation entries: %w", err)
	}
	defer rows.Close()

	var entries []convlog.Entry
	for rows.Next() {
		var (
			e                         convlog.Entry
			ts, mode                  string
			intentID, tier, actionErr sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.UserInput, &e.Response, &mode, &intentID, &tier, &actionErr); err != nil {
			return nil, fmt.Errorf("scan conversation entry: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp of entry %s: %w", e.ID, err)
		}
		e.Mode = convlog.Mode(mode)
		e.IntentID = intentID.String
		e.Tier = tier.String
		e.ActionError = actionErr.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation entries: %w", err)
	}
	return entries, nil
}

// DeleteEntries removes every entry and returns how many were deleted.
func (s *Store) DeleteEntries(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversation_entries")
	if err != nil {
		return 0, fmt.Errorf("delete conversation entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted entries: %w", err)
	}
	return n, nil
}

// nullString converts empty strings to SQL NULL.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
