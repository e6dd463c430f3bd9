package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/infocapsule/digest/internal/domain"
)

const userColumns = `id, COALESCE(name, ''), email, preferred_slot, paused,
	delivered_count, bounced_count, complained_count, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	var slot sql.NullString
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &slot, &u.Paused,
		&u.DeliveredCount, &u.BouncedCount, &u.ComplainedCount,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if slot.Valid {
		ts, err := domain.ParseTimeSlot(slot.String)
		if err == nil {
			u.PreferredSlot = &ts
		}
	}
	return &u, nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListUsersBySlot returns every user whose preferred slot matches the
// given slot, paused or not. The orchestrator applies the paused filter
// so eligibility lives in one place.
func (s *Store) ListUsersBySlot(ctx context.Context, slot domain.TimeSlot) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE preferred_slot = $1 ORDER BY created_at`, string(slot))
	if err != nil {
		return nil, fmt.Errorf("failed to query users by slot: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SetPreferredSlot updates the user's delivery slot.
func (s *Store) SetPreferredSlot(ctx context.Context, userID string, slot domain.TimeSlot) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET preferred_slot = $2, updated_at = NOW() WHERE id = $1`,
		userID, string(slot))
	if err != nil {
		return fmt.Errorf("failed to set preferred slot: %w", err)
	}
	return nil
}

// SetPaused pauses or resumes all delivery for the user.
func (s *Store) SetPaused(ctx context.Context, userID string, paused bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET paused = $2, updated_at = NOW() WHERE id = $1`,
		userID, paused)
	if err != nil {
		return fmt.Errorf("failed to set paused: %w", err)
	}
	return nil
}

// outcomeColumns maps each delivery outcome to the counter column it
// increments. The fixed table replaces any dynamic field lookup.
var outcomeColumns = map[domain.DeliveryOutcome]string{
	domain.OutcomeDelivered:  "delivered_count",
	domain.OutcomeBounced:    "bounced_count",
	domain.OutcomeComplained: "complained_count",
}

// IncrementDeliveryCounter bumps the counter matching the outcome for the
// user with the given email address. The increment is a single atomic
// UPDATE keyed by email; no in-process locking is needed. Returns false
// if no user matches the address.
func (s *Store) IncrementDeliveryCounter(ctx context.Context, email string, outcome domain.DeliveryOutcome) (bool, error) {
	column, ok := outcomeColumns[outcome]
	if !ok {
		return false, fmt.Errorf("unknown delivery outcome %q", outcome)
	}

	// Column name comes from the fixed table above, never from input.
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+column+` = `+column+` + 1, updated_at = NOW() WHERE email = $1`,
		email)
	if err != nil {
		return false, fmt.Errorf("failed to increment %s: %w", column, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
