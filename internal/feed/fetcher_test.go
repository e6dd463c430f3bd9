package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example News</title>
    <link>https://example.com</link>
    <item>
      <title>First Article</title>
      <link>https://example.com/1</link>
      <description>&lt;p&gt;Summary &lt;strong&gt;one&lt;/strong&gt;&lt;/p&gt;</description>
      <pubDate>Sun, 15 Mar 2026 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>No Date Article</title>
      <link>https://example.com/2</link>
      <description>This one has no date</description>
    </item>
    <item>
      <title>Second Article</title>
      <link>https://example.com/3</link>
      <description>Summary three</description>
      <pubDate>Sun, 15 Mar 2026 11:30:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func serveFeed(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := serveFeed(t, sampleRSS)
	fetcher := NewFetcher(5 * time.Second)

	items, err := fetcher.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	// The dateless item is skipped; siblings are unaffected.
	require.Len(t, items, 2)
	assert.Equal(t, "First Article", items[0].Title)
	assert.Equal(t, "Summary one", items[0].Summary)
	assert.Equal(t, "https://example.com/1", items[0].Link)
	assert.Equal(t, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC), items[0].PublishedAt.UTC())
	assert.Equal(t, "Second Article", items[1].Title)
}

func TestFetch_MalformedFeed(t *testing.T) {
	srv := serveFeed(t, "this is not XML at all")
	fetcher := NewFetcher(5 * time.Second)

	_, err := fetcher.Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestFetch_UnreachableHost(t *testing.T) {
	fetcher := NewFetcher(2 * time.Second)

	_, err := fetcher.Fetch(context.Background(), "http://127.0.0.1:1/feed.xml")
	assert.Error(t, err)
}

func TestFetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fetcher := NewFetcher(5 * time.Second)
	_, err := fetcher.Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestConvertItem_RawDateFallback(t *testing.T) {
	tests := []struct {
		name   string
		item   gofeed.Item
		want   time.Time
		wantOK bool
	}{
		{
			name:   "raw published string",
			item:   gofeed.Item{Title: "a", Published: "2026-03-15 10:00:00"},
			want:   time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "raw date only",
			item:   gofeed.Item{Title: "b", Published: "2026-03-15"},
			want:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "falls through to raw updated",
			item:   gofeed.Item{Title: "c", Updated: "2026-03-15T10:00:00Z"},
			want:   time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "unparseable strings are skipped",
			item:   gofeed.Item{Title: "d", Published: "yesterday-ish"},
			wantOK: false,
		},
		{
			name:   "no date at all",
			item:   gofeed.Item{Title: "e"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := convertItem(&tt.item)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got.PublishedAt.UTC())
			}
		})
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"tags removed", "<p>Hello <strong>World</strong></p>", "Hello World"},
		{"entities decoded", "&amp; &lt; &gt;", "& < >"},
		{"whitespace normalized", "a\n\n  b\t c", "a b c"},
		{"plain text untouched", "No HTML here", "No HTML here"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripHTML(tt.input))
		})
	}
}
