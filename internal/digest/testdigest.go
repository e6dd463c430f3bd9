package digest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/infocapsule/digest/internal/domain"
	"github.com/infocapsule/digest/internal/feed"
	"github.com/infocapsule/digest/internal/pkg/logger"
)

// Sentinel errors for the test-digest path. These surface to the API so
// the user gets an actionable message instead of a silent no-op.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrNoSources    = errors.New("no information sources found, add some sources first")
	ErrNoContent    = errors.New("no content found in your sources, check them or try again later")
)

// RunTestDigest sends the user an immediate digest built from the most
// recent items of every source, ignoring high-water marks. Unlike the
// scheduled path, errors propagate to the caller: this runs on explicit
// user request and silence would look like a bug. Marks are never
// advanced, so the next scheduled run is unaffected.
func (r *Runner) RunTestDigest(ctx context.Context, userID string) error {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	sources, err := r.store.ListFetchableSources(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}
	if len(sources) == 0 {
		return ErrNoSources
	}

	items := r.collectRecentItems(ctx, userID, sources)
	logger.Info("Test digest collected items", "user_id", userID, "items", len(items))

	if len(items) == 0 {
		return ErrNoContent
	}

	batch := domain.Batch{
		UserID:      userID,
		Items:       items,
		SourceCount: len(sources),
	}

	digest, err := r.summarizer.Summarize(ctx, batch)
	if err != nil {
		return fmt.Errorf("failed to summarize test digest: %w", err)
	}

	subject := "[TEST] " + digest.Subject
	if _, err := r.mailer.SendDigest(ctx, user.Email, subject, digest.Content); err != nil {
		return fmt.Errorf("failed to send test digest: %w", err)
	}

	return nil
}

// collectRecentItems fetches each source and keeps its most recent items
// regardless of the high-water mark. Individual fetch failures are logged
// and skipped; only a fully empty result is treated as an error upstream.
func (r *Runner) collectRecentItems(ctx context.Context, userID string, sources []domain.Source) []domain.Item {
	sem := make(chan struct{}, r.config.MaxConcurrentFeeds)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var collected []domain.Item

	for _, source := range sources {
		select {
		case <-ctx.Done():
			wg.Wait()
			return collected
		case sem <- struct{}{}:
			wg.Add(1)
			go func(src domain.Source) {
				defer wg.Done()
				defer func() { <-sem }()

				fetchCtx, cancel := context.WithTimeout(ctx, r.config.FetchTimeout)
				defer cancel()

				items, err := r.fetcher.Fetch(fetchCtx, src.CanonicalFeedURL)
				if err != nil {
					r.logActivity(ctx, fmt.Sprintf("Test digest: Failed to fetch feed: %v", err), src.ID, userID)
					return
				}

				recent := feed.MostRecent(items, r.config.TestSampleSize)
				for i := range recent {
					recent[i].SourceID = src.ID
				}
				r.logActivity(ctx, fmt.Sprintf("Test digest: Fetched %d recent items from feed", len(recent)), src.ID, userID)

				if len(recent) == 0 {
					return
				}
				mu.Lock()
				collected = append(collected, recent...)
				mu.Unlock()
			}(source)
		}
	}

	wg.Wait()
	return collected
}
