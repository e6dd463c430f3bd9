package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/infocapsule/digest/internal/domain"
)

const sourceColumns = `id, user_id, origin_url, COALESCE(source_type, ''),
	container_selector, headline_selector, summary_selector,
	COALESCE(canonical_feed_url, ''), COALESCE(proxy_feed_id, ''),
	status, last_fetched_at, created_at`

func scanSource(row interface{ Scan(...any) error }) (*domain.Source, error) {
	var src domain.Source
	var container, headline, summary sql.NullString
	var lastFetched sql.NullTime
	err := row.Scan(
		&src.ID, &src.UserID, &src.OriginURL, &src.SourceType,
		&container, &headline, &summary,
		&src.CanonicalFeedURL, &src.ProxyFeedID,
		&src.Status, &lastFetched, &src.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if container.Valid || headline.Valid || summary.Valid {
		src.Selectors = &domain.Selectors{
			Container: container.String,
			Headline:  headline.String,
			Summary:   summary.String,
		}
	}
	if lastFetched.Valid {
		t := lastFetched.Time
		src.LastFetchedAt = &t
	}
	return &src, nil
}

// CreateSource inserts a new source in pending status. Provisioning by
// the feed proxy finalizes it asynchronously.
func (s *Store) CreateSource(ctx context.Context, src domain.Source) (*domain.Source, error) {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	src.Status = domain.SourcePending
	src.CreatedAt = time.Now()

	var container, headline, summary *string
	if src.Selectors != nil {
		container = &src.Selectors.Container
		headline = &src.Selectors.Headline
		summary = &src.Selectors.Summary
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (
			id, user_id, origin_url, source_type,
			container_selector, headline_selector, summary_selector,
			status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		src.ID, src.UserID, src.OriginURL, src.SourceType,
		container, headline, summary,
		string(src.Status), src.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	return &src, nil
}

// GetSource retrieves a single source by ID.
func (s *Store) GetSource(ctx context.Context, id string) (*domain.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)

	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return src, nil
}

// ListSources returns all sources for a user, newest first.
func (s *Store) ListSources(ctx context.Context, userID string) ([]domain.Source, error) {
	return s.querySources(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// ListFetchableSources returns the user's sources that participate in
// fetch fan-out: status active with a canonical feed URL.
func (s *Store) ListFetchableSources(ctx context.Context, userID string) ([]domain.Source, error) {
	return s.querySources(ctx,
		`SELECT `+sourceColumns+` FROM sources
		 WHERE user_id = $1 AND status = 'active' AND COALESCE(canonical_feed_url, '') <> ''
		 ORDER BY created_at DESC`, userID)
}

func (s *Store) querySources(ctx context.Context, query string, args ...any) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// FinalizeProvisioning records the feed-proxy result for a source: the
// canonical feed URL and proxy-side ID on success, or error status on
// failure.
func (s *Store) FinalizeProvisioning(ctx context.Context, sourceID, feedURL, proxyFeedID string, status domain.SourceStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sources
		SET canonical_feed_url = $2, proxy_feed_id = $3, status = $4
		WHERE id = $1`,
		sourceID, feedURL, proxyFeedID, string(status))
	if err != nil {
		return fmt.Errorf("failed to finalize provisioning: %w", err)
	}
	return nil
}

// AdvanceHighWaterMark overwrites last_fetched_at unconditionally. The
// new mark is not compared against the previous value: a clock regression
// upstream can rewind novelty detection. Known edge case, kept as-is.
func (s *Store) AdvanceHighWaterMark(ctx context.Context, sourceID string, mark time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET last_fetched_at = $2 WHERE id = $1`,
		sourceID, mark)
	if err != nil {
		return fmt.Errorf("failed to advance high-water mark: %w", err)
	}
	return nil
}

// DeleteSource removes a source.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return nil
}

// CountSiblingSources counts other sources sharing the same proxy-side
// feed ID. De-provisioning at the proxy is only issued when this is zero.
// The check-then-delete pair is a documented race under concurrent
// deletes; the proxy delete is idempotent so a double issue is harmless.
func (s *Store) CountSiblingSources(ctx context.Context, proxyFeedID, excludeSourceID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sources WHERE proxy_feed_id = $1 AND id <> $2`,
		proxyFeedID, excludeSourceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sibling sources: %w", err)
	}
	return count, nil
}
