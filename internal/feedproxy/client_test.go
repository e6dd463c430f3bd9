package feedproxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infocapsule/digest/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	})
}

func TestCreateFeed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/feeds", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("API-KEY"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "https://example.com/blog", r.FormValue("url"))
		assert.Equal(t, ".post", r.FormValue("news_selector"))
		assert.Equal(t, "h2", r.FormValue("title_selector"))
		assert.Equal(t, ".excerpt", r.FormValue("content_selector"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"feed":{"id":"abc123","rss_url":"https://fetchrss.com/rss/abc123.xml"}}`))
	})

	feed, err := client.CreateFeed(context.Background(), "https://example.com/blog", &domain.Selectors{
		Container: ".post",
		Headline:  "h2",
		Summary:   ".excerpt",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://fetchrss.com/rss/abc123.xml", feed.FeedURL)
	assert.Equal(t, "abc123", feed.FeedID)
}

func TestCreateFeed_NoSelectors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "https://example.com/feed.xml", r.FormValue("url"))
		assert.Empty(t, r.FormValue("news_selector"))

		w.Write([]byte(`{"success":true,"feed":{"id":"f1","rss_url":"https://fetchrss.com/rss/f1.xml"}}`))
	})

	feed, err := client.CreateFeed(context.Background(), "https://example.com/feed.xml", nil)
	require.NoError(t, err)
	assert.Equal(t, "f1", feed.FeedID)
}

func TestCreateFeed_Rejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"could not detect articles"}`))
	})

	_, err := client.CreateFeed(context.Background(), "https://example.com/empty", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not detect articles")
}

func TestCreateFeed_ClientError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"message":"bad key"}`))
	})

	_, err := client.CreateFeed(context.Background(), "https://example.com", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestDeleteFeed(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("API-KEY"))
		w.Write([]byte(`{"success":true}`))
	})

	client.DeleteFeed(context.Background(), "abc123")
	assert.Equal(t, "/feeds/abc123", gotPath)
}

func TestDeleteFeed_FailureSwallowed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	// Must not panic or surface the error.
	client.DeleteFeed(context.Background(), "gone")
	client.DeleteFeed(context.Background(), "")
}
