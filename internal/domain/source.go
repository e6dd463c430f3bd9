package domain

import "time"

// SourceStatus enumerates the provisioning states of a content source.
type SourceStatus string

const (
	// SourcePending means the feed-proxy provisioning call has not
	// completed yet. Pending sources are excluded from fetch fan-out.
	SourcePending SourceStatus = "pending"
	// SourceActive means the source has a canonical feed URL and is
	// eligible for fetching.
	SourceActive SourceStatus = "active"
	// SourceError means provisioning failed. The source stays excluded
	// until the user deletes and recreates it.
	SourceError SourceStatus = "error"
)

// Selectors configures CSS extraction for non-feed sources. The triple is
// passed verbatim to the feed proxy on provisioning.
type Selectors struct {
	Container string `json:"container_selector"`
	Headline  string `json:"headline_selector"`
	Summary   string `json:"summary_selector"`
}

// Source is a user-configured content origin normalized to a feed URL by
// the external feed proxy.
type Source struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	// OriginURL is the URL the user supplied (website, profile, or feed).
	OriginURL string `json:"origin_url" db:"origin_url"`
	// SourceType records what the user said the origin is ("rss",
	// "website", "social"). Informational only.
	SourceType string     `json:"source_type" db:"source_type"`
	Selectors  *Selectors `json:"selectors,omitempty"`

	// CanonicalFeedURL and ProxyFeedID are populated asynchronously when
	// the feed-proxy provisioning call completes.
	CanonicalFeedURL string       `json:"canonical_feed_url" db:"canonical_feed_url"`
	ProxyFeedID      string       `json:"proxy_feed_id" db:"proxy_feed_id"`
	Status           SourceStatus `json:"status" db:"status"`

	// LastFetchedAt is the high-water mark: items published at or before
	// it are considered already delivered. Nil until the first
	// successful fetch.
	LastFetchedAt *time.Time `json:"last_fetched_at" db:"last_fetched_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Fetchable reports whether the source participates in fetch fan-out.
func (s Source) Fetchable() bool {
	return s.Status == SourceActive && s.CanonicalFeedURL != ""
}
