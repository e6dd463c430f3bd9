// Package digest orchestrates the daily pipeline: pick the users due at
// a time slot, fetch their sources concurrently, filter to unseen items,
// summarize, and deliver one email per user.
package digest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/infocapsule/digest/internal/domain"
	"github.com/infocapsule/digest/internal/feed"
	"github.com/infocapsule/digest/internal/pkg/logger"
	"github.com/infocapsule/digest/internal/summarize"
)

// Store is the persistence surface the runner needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsersBySlot(ctx context.Context, slot domain.TimeSlot) ([]domain.User, error)
	ListFetchableSources(ctx context.Context, userID string) ([]domain.Source, error)
	AdvanceHighWaterMark(ctx context.Context, sourceID string, mark time.Time) error
	AddLog(ctx context.Context, message, sourceID, userID string) error
}

// Fetcher retrieves and parses a feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]domain.Item, error)
}

// Mailer delivers a rendered digest to a recipient.
type Mailer interface {
	SendDigest(ctx context.Context, recipient, subject, content string) (string, error)
}

// Config holds runner tuning knobs.
type Config struct {
	FetchTimeout       time.Duration // per-feed fetch deadline
	MaxConcurrentUsers int           // slot fan-out width
	MaxConcurrentFeeds int           // per-user fetch fan-out width
	TestSampleSize     int           // items per source for test digests
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FetchTimeout:       30 * time.Second,
		MaxConcurrentUsers: 10,
		MaxConcurrentFeeds: 5,
		TestSampleSize:     5,
	}
}

// Runner executes digest cycles for time slots and individual users.
type Runner struct {
	store      Store
	fetcher    Fetcher
	summarizer summarize.Summarizer
	mailer     Mailer
	config     Config

	// now is injected so slot math and mark advancement are testable.
	now func() time.Time

	// Stats
	usersProcessed int64
	digestsSent    int64
	itemsFound     int64
	errors         int64
}

// NewRunner creates a digest runner.
func NewRunner(store Store, fetcher Fetcher, summarizer summarize.Summarizer, mailer Mailer, config Config) *Runner {
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 30 * time.Second
	}
	if config.MaxConcurrentUsers <= 0 {
		config.MaxConcurrentUsers = 10
	}
	if config.MaxConcurrentFeeds <= 0 {
		config.MaxConcurrentFeeds = 5
	}
	if config.TestSampleSize <= 0 {
		config.TestSampleSize = 5
	}
	return &Runner{
		store:      store,
		fetcher:    fetcher,
		summarizer: summarizer,
		mailer:     mailer,
		config:     config,
		now:        time.Now,
	}
}

// SetClock overrides the runner's time source (useful for testing).
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// Stats returns cumulative counters for the runner.
func (r *Runner) Stats() map[string]int64 {
	return map[string]int64{
		"users_processed": atomic.LoadInt64(&r.usersProcessed),
		"digests_sent":    atomic.LoadInt64(&r.digestsSent),
		"items_found":     atomic.LoadInt64(&r.itemsFound),
		"errors":          atomic.LoadInt64(&r.errors),
	}
}

// RunSlot processes every active user subscribed to the slot. Paused
// users are skipped here so no downstream code needs to re-check. Per-user
// failures are absorbed and logged; one bad feed or mailbox never blocks
// the rest of the slot.
func (r *Runner) RunSlot(ctx context.Context, slot domain.TimeSlot) error {
	users, err := r.store.ListUsersBySlot(ctx, slot)
	if err != nil {
		return fmt.Errorf("failed to list users for slot %s: %w", slot, err)
	}

	active := users[:0:0]
	for _, u := range users {
		if !u.Paused {
			active = append(active, u)
		}
	}

	logger.Info("Processing time slot",
		"slot", string(slot),
		"users", len(active),
		"paused_skipped", len(users)-len(active))

	sem := make(chan struct{}, r.config.MaxConcurrentUsers)
	var wg sync.WaitGroup

	for _, user := range active {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
			wg.Add(1)
			go func(u domain.User) {
				defer wg.Done()
				defer func() { <-sem }()

				if err := r.processUser(ctx, u); err != nil {
					atomic.AddInt64(&r.errors, 1)
					logger.Error("Failed to process user digest",
						"user_id", u.ID,
						"error", err.Error())
				}
				atomic.AddInt64(&r.usersProcessed, 1)
			}(user)
		}
	}

	wg.Wait()
	return nil
}

// processUser fetches all of one user's sources, aggregates unseen items,
// and sends a digest when anything new turned up. No new items is the
// normal quiet path, not an error.
func (r *Runner) processUser(ctx context.Context, user domain.User) error {
	sources, err := r.store.ListFetchableSources(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}
	if len(sources) == 0 {
		logger.Debug("User has no fetchable sources", "user_id", user.ID)
		return nil
	}

	newItems := r.collectNewItems(ctx, user.ID, sources)
	atomic.AddInt64(&r.itemsFound, int64(len(newItems)))

	logger.Info("Collected new items",
		"user_id", user.ID,
		"sources", len(sources),
		"new_items", len(newItems))

	if len(newItems) == 0 {
		return nil
	}

	batch := domain.Batch{
		UserID:      user.ID,
		Items:       newItems,
		SourceCount: len(sources),
	}

	// Digest-level outcomes go to the activity log too, with no source
	// attached, so the user can see why a digest did or didn't arrive.
	digest, err := r.summarizer.Summarize(ctx, batch)
	if err != nil {
		r.logActivity(ctx, fmt.Sprintf("Failed to summarize digest: %v", err), "", user.ID)
		return fmt.Errorf("failed to summarize digest: %w", err)
	}

	if _, err := r.mailer.SendDigest(ctx, user.Email, digest.Subject, digest.Content); err != nil {
		r.logActivity(ctx, fmt.Sprintf("Failed to send digest email: %v", err), "", user.ID)
		return fmt.Errorf("failed to send digest: %w", err)
	}

	atomic.AddInt64(&r.digestsSent, 1)
	r.logActivity(ctx, fmt.Sprintf("Digest sent with %d items from %d sources", len(newItems), len(sources)), "", user.ID)
	return nil
}

// collectNewItems fans out across the user's sources and returns every
// item newer than each source's high-water mark. After any successful
// fetch the mark advances to the current wall clock, even when nothing
// new was found, so the next cycle starts from now. Fetch failures leave
// the mark untouched and are recorded in the activity log.
func (r *Runner) collectNewItems(ctx context.Context, userID string, sources []domain.Source) []domain.Item {
	sem := make(chan struct{}, r.config.MaxConcurrentFeeds)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var newItems []domain.Item

	for _, source := range sources {
		select {
		case <-ctx.Done():
			wg.Wait()
			return newItems
		case sem <- struct{}{}:
			wg.Add(1)
			go func(src domain.Source) {
				defer wg.Done()
				defer func() { <-sem }()

				fetchCtx, cancel := context.WithTimeout(ctx, r.config.FetchTimeout)
				defer cancel()

				items, err := r.fetcher.Fetch(fetchCtx, src.CanonicalFeedURL)
				if err != nil {
					atomic.AddInt64(&r.errors, 1)
					r.logActivity(ctx, fmt.Sprintf("Failed to fetch feed: %v", err), src.ID, userID)
					return
				}

				novel := feed.Novel(items, src.LastFetchedAt)
				for i := range novel {
					novel[i].SourceID = src.ID
				}

				if err := r.store.AdvanceHighWaterMark(ctx, src.ID, r.now().UTC()); err != nil {
					logger.Error("Failed to advance high-water mark",
						"source_id", src.ID,
						"error", err.Error())
				}

				r.logActivity(ctx, fmt.Sprintf("Fetched feed with %d new items", len(novel)), src.ID, userID)

				if len(novel) == 0 {
					return
				}
				mu.Lock()
				newItems = append(newItems, novel...)
				mu.Unlock()
			}(source)
		}
	}

	wg.Wait()
	return newItems
}

func (r *Runner) logActivity(ctx context.Context, message, sourceID, userID string) {
	if err := r.store.AddLog(ctx, message, sourceID, userID); err != nil {
		logger.Error("Failed to write activity log", "source_id", sourceID, "error", err.Error())
	}
}
