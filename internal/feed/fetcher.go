// Package feed retrieves and parses canonical RSS/Atom feeds, and applies
// high-water-mark novelty filtering to the parsed items.
package feed

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/infocapsule/digest/internal/domain"
	"github.com/infocapsule/digest/internal/pkg/logger"
)

// Fetcher retrieves a feed URL and parses it into items. One fetch
// attempt per run; a failed source is retried at the next scheduled run.
type Fetcher struct {
	parser  *gofeed.Parser
	timeout time.Duration
}

// NewFetcher creates a fetcher. Every fetch is bounded by the given
// timeout so a stuck upstream blocks only its own fan-out branch.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		parser:  gofeed.NewParser(),
		timeout: timeout,
	}
}

// Fetch retrieves and parses the feed at url. Individual items that lack
// a parseable publish date are skipped with a warning; they are never
// treated as novel. Only total unreachability or a feed-level parse
// failure returns an error.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]domain.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	parsed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}

	items := make([]domain.Item, 0, len(parsed.Items))
	for _, raw := range parsed.Items {
		item, ok := convertItem(raw)
		if !ok {
			logger.Warn("feed item missing parseable date, skipping",
				"feed_url", url, "title", raw.Title)
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

// convertItem maps a gofeed item, resolving the publish timestamp across
// the possible date fields. When gofeed could not parse a date itself,
// the raw Published/Updated strings get one more attempt against common
// layouts. Returns false when no date can be resolved at all.
func convertItem(raw *gofeed.Item) (domain.Item, bool) {
	var published time.Time
	switch {
	case raw.PublishedParsed != nil:
		published = *raw.PublishedParsed
	case raw.UpdatedParsed != nil:
		published = *raw.UpdatedParsed
	default:
		var ok bool
		published, ok = parseRawDate(raw.Published, raw.Updated)
		if !ok {
			return domain.Item{}, false
		}
	}

	summary := raw.Description
	if summary == "" {
		summary = raw.Content
	}

	return domain.Item{
		Title:       raw.Title,
		Summary:     stripHTML(summary),
		Link:        raw.Link,
		PublishedAt: published,
	}, true
}

var rawDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseRawDate tries each candidate string against the known layouts,
// returning the first match.
func parseRawDate(candidates ...string) (time.Time, bool) {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		for _, layout := range rawDateLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

var tagRegex = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes tags, decodes entities, and normalizes whitespace.
func stripHTML(input string) string {
	text := tagRegex.ReplaceAllString(input, "")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}
