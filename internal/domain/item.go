package domain

import "time"

// Item is one entry from a parsed feed. Items are ephemeral: they exist
// only within a single pipeline run and are never persisted.
type Item struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`

	// SourceID attributes the item to its originating source for logging.
	SourceID string `json:"source_id"`
}

// Batch is the ordered list of novel items for one user across all of
// their sources in one run. Order is deterministic within a source and
// completion-ordered across sources.
type Batch struct {
	UserID string `json:"user_id"`
	Items  []Item `json:"items"`

	// SourceCount is the number of fetchable sources in the run, used for
	// the digest subject line. Sources that yielded no items still count.
	SourceCount int `json:"source_count"`
}

// Empty reports whether the batch has nothing to summarize. An empty
// batch is the normal quiet outcome, not an error.
func (b Batch) Empty() bool {
	return len(b.Items) == 0
}
