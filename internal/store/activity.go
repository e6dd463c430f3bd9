package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/infocapsule/digest/internal/domain"
)

// AddLog appends an activity log entry. The log is append-only; nothing
// in the pipeline updates or deletes entries. An empty sourceID marks a
// digest-level entry and is stored as NULL (the column is a UUID).
func (s *Store) AddLog(ctx context.Context, message, sourceID, userID string) error {
	src := sql.NullString{String: sourceID, Valid: sourceID != ""}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, message, source_id, user_id, timestamp)
		VALUES ($1, $2, $3, $4, NOW())`,
		uuid.New().String(), message, src, userID)
	if err != nil {
		return fmt.Errorf("failed to add log: %w", err)
	}
	return nil
}

// ListLogs returns the most recent activity log entries for a user.
func (s *Store) ListLogs(ctx context.Context, userID string, limit int) ([]domain.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message, COALESCE(source_id::text, ''), user_id, timestamp
		FROM activity_logs
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.ActivityLogEntry
	for rows.Next() {
		var e domain.ActivityLogEntry
		if err := rows.Scan(&e.ID, &e.Message, &e.SourceID, &e.UserID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, e)
	}

	if entries == nil {
		entries = []domain.ActivityLogEntry{}
	}
	return entries, rows.Err()
}
