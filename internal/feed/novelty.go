package feed

import (
	"time"

	"github.com/infocapsule/digest/internal/domain"
)

// Novel returns the items published strictly after the high-water mark.
// Items exactly at the mark are not redelivered. A nil mark means the
// source has never been fetched, so every item is novel. Input order is
// preserved.
func Novel(items []domain.Item, highWaterMark *time.Time) []domain.Item {
	if highWaterMark == nil {
		return items
	}

	novel := make([]domain.Item, 0, len(items))
	for _, item := range items {
		if item.PublishedAt.After(*highWaterMark) {
			novel = append(novel, item)
		}
	}
	return novel
}

// MostRecent returns up to n items with the newest publish timestamps,
// newest first. Used by the test-digest path, which ignores the
// high-water mark entirely.
func MostRecent(items []domain.Item, n int) []domain.Item {
	if n <= 0 {
		return nil
	}

	sorted := make([]domain.Item, len(items))
	copy(sorted, items)
	// Insertion sort: feed windows are small.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].PublishedAt.After(sorted[j-1].PublishedAt); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
