package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infocapsule/digest/internal/digest"
	"github.com/infocapsule/digest/internal/domain"
	"github.com/infocapsule/digest/internal/feedproxy"
)

type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	sources  map[string]*domain.Source
	logs     []domain.ActivityLogEntry
	nextID   int
	slots    map[string]domain.TimeSlot
	paused   map[string]bool
	siblings map[string]int

	finalized []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*domain.User{},
		sources:  map[string]*domain.Source{},
		slots:    map[string]domain.TimeSlot{},
		paused:   map[string]bool{},
		siblings: map[string]int{},
	}
}

func (f *fakeStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id], nil
}

func (f *fakeStore) SetPreferredSlot(ctx context.Context, userID string, slot domain.TimeSlot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots[userID] = slot
	return nil
}

func (f *fakeStore) SetPaused(ctx context.Context, userID string, paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused[userID] = paused
	return nil
}

func (f *fakeStore) CreateSource(ctx context.Context, src domain.Source) (*domain.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	src.ID = fmt.Sprintf("src-%d", f.nextID)
	src.CreatedAt = time.Now().UTC()
	f.sources[src.ID] = &src
	return &src, nil
}

func (f *fakeStore) GetSource(ctx context.Context, id string) (*domain.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sources[id], nil
}

func (f *fakeStore) ListSources(ctx context.Context, userID string) ([]domain.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Source
	for _, s := range f.sources {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) FinalizeProvisioning(ctx context.Context, sourceID, feedURL, proxyFeedID string, status domain.SourceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sources[sourceID]; ok {
		s.CanonicalFeedURL = feedURL
		s.ProxyFeedID = proxyFeedID
		s.Status = status
	}
	f.finalized = append(f.finalized, sourceID+":"+string(status))
	return nil
}

func (f *fakeStore) DeleteSource(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sources, id)
	return nil
}

func (f *fakeStore) CountSiblingSources(ctx context.Context, proxyFeedID, excludeSourceID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.siblings[proxyFeedID], nil
}

func (f *fakeStore) AddLog(ctx context.Context, message, sourceID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, domain.ActivityLogEntry{Message: message, SourceID: sourceID, UserID: userID})
	return nil
}

func (f *fakeStore) ListLogs(ctx context.Context, userID string, limit int) ([]domain.ActivityLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ActivityLogEntry{}
	for _, l := range f.logs {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) waitFinalized(t *testing.T) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if len(f.finalized) > 0 {
			out := f.finalized[0]
			f.mu.Unlock()
			return out
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("provisioning never finalized")
	return ""
}

type fakeProxy struct {
	mu      sync.Mutex
	feed    *feedproxy.ProvisionedFeed
	err     error
	deleted []string
}

func (f *fakeProxy) CreateFeed(ctx context.Context, originURL string, selectors *domain.Selectors) (*feedproxy.ProvisionedFeed, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.feed, nil
}

func (f *fakeProxy) DeleteFeed(ctx context.Context, feedID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, feedID)
}

func (f *fakeProxy) deletedFeeds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type fakeDigester struct {
	err   error
	calls []string
}

func (f *fakeDigester) RunTestDigest(ctx context.Context, userID string) error {
	f.calls = append(f.calls, userID)
	return f.err
}

func newTestServer(store *fakeStore, proxy *fakeProxy, digester *fakeDigester) *Server {
	return NewServer(store, proxy, digester, nil, nil)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateSource_ProvisionsAsync(t *testing.T) {
	store := newFakeStore()
	proxy := &fakeProxy{feed: &feedproxy.ProvisionedFeed{FeedURL: "https://fetchrss.com/rss/f1.xml", FeedID: "f1"}}
	srv := newTestServer(store, proxy, &fakeDigester{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodPost, "/api/sources", map[string]string{
		"user_id":     "u1",
		"url":         "https://example.com/blog",
		"source_type": "website",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.Source
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, domain.SourcePending, created.Status)
	assert.NotEmpty(t, created.ID)

	assert.Equal(t, created.ID+":active", store.waitFinalized(t))

	src, err := store.GetSource(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://fetchrss.com/rss/f1.xml", src.CanonicalFeedURL)
	assert.Equal(t, "f1", src.ProxyFeedID)
}

func TestCreateSource_ProvisionFailureMarksError(t *testing.T) {
	store := newFakeStore()
	proxy := &fakeProxy{err: fmt.Errorf("proxy unavailable")}
	srv := newTestServer(store, proxy, &fakeDigester{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodPost, "/api/sources", map[string]string{
		"user_id": "u1",
		"url":     "https://example.com/blog",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.Source
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, created.ID+":error", store.waitFinalized(t))
}

func TestCreateSource_Validation(t *testing.T) {
	srv := newTestServer(newFakeStore(), &fakeProxy{}, &fakeDigester{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodPost, "/api/sources", map[string]string{"url": "https://example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/sources", map[string]string{"user_id": "u1", "url": "ftp://example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteSource_DeprovisionsWhenLastReference(t *testing.T) {
	store := newFakeStore()
	store.sources["src-1"] = &domain.Source{ID: "src-1", UserID: "u1", ProxyFeedID: "f1", Status: domain.SourceActive}
	store.siblings["f1"] = 0

	proxy := &fakeProxy{}
	srv := newTestServer(store, proxy, &fakeDigester{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodDelete, "/api/sources/src-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"f1"}, proxy.deletedFeeds())
}

func TestDeleteSource_KeepsSharedProxyFeed(t *testing.T) {
	store := newFakeStore()
	store.sources["src-1"] = &domain.Source{ID: "src-1", UserID: "u1", ProxyFeedID: "f1", Status: domain.SourceActive}
	store.siblings["f1"] = 2

	proxy := &fakeProxy{}
	srv := newTestServer(store, proxy, &fakeDigester{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodDelete, "/api/sources/src-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, proxy.deletedFeeds())
}

func TestDeleteSource_NotFound(t *testing.T) {
	srv := newTestServer(newFakeStore(), &fakeProxy{}, &fakeDigester{})
	rec := doJSON(t, srv.Routes(), http.MethodDelete, "/api/sources/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSources(t *testing.T) {
	store := newFakeStore()
	store.sources["src-1"] = &domain.Source{ID: "src-1", UserID: "u1", Status: domain.SourceActive}
	srv := newTestServer(store, &fakeProxy{}, &fakeDigester{})

	rec := doJSON(t, srv.Routes(), http.MethodGet, "/api/sources?user_id=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sources []domain.Source
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sources))
	assert.Len(t, sources, 1)

	rec = doJSON(t, srv.Routes(), http.MethodGet, "/api/sources", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListLogs(t *testing.T) {
	store := newFakeStore()
	store.logs = []domain.ActivityLogEntry{
		{Message: "Fetched feed with 3 new items", SourceID: "src-1", UserID: "u1"},
	}
	srv := newTestServer(store, &fakeProxy{}, &fakeDigester{})

	rec := doJSON(t, srv.Routes(), http.MethodGet, "/api/logs?user_id=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var logs []domain.ActivityLogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	assert.Len(t, logs, 1)

	rec = doJSON(t, srv.Routes(), http.MethodGet, "/api/logs?user_id=u1&limit=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTestDigest_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"success", nil, http.StatusOK},
		{"user not found", digest.ErrUserNotFound, http.StatusNotFound},
		{"no sources", digest.ErrNoSources, http.StatusBadRequest},
		{"no content", digest.ErrNoContent, http.StatusBadRequest},
		{"pipeline failure", fmt.Errorf("model down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			digester := &fakeDigester{err: tt.err}
			srv := newTestServer(newFakeStore(), &fakeProxy{}, digester)

			rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/digest/test", map[string]string{"user_id": "u1"})
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, []string{"u1"}, digester.calls)
		})
	}
}

func TestUserEndpoints(t *testing.T) {
	store := newFakeStore()
	store.users["u1"] = &domain.User{ID: "u1", Email: "u1@example.com"}
	srv := newTestServer(store, &fakeProxy{}, &fakeDigester{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodGet, "/api/users/u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/users/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/api/users/u1/slot", map[string]string{"slot": "06:00"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.SlotMorning, store.slots["u1"])

	rec = doJSON(t, router, http.MethodPut, "/api/users/u1/slot", map[string]string{"slot": "07:30"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/api/users/u1/pause", map[string]bool{"paused": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, store.paused["u1"])
}

func TestHealth(t *testing.T) {
	srv := newTestServer(newFakeStore(), &fakeProxy{}, &fakeDigester{})
	rec := doJSON(t, srv.Routes(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
