package domain

import "time"

// ActivityLogEntry is an append-only record of a per-source or
// digest-level outcome. Entries are written by the pipeline and never
// mutated or deleted.
type ActivityLogEntry struct {
	ID        string    `json:"id" db:"id"`
	Message   string    `json:"message" db:"message"`
	SourceID  string    `json:"source_id" db:"source_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
