// Package api exposes the HTTP surface: source management, activity
// logs, user delivery preferences, on-demand test digests, and the SES
// delivery-event webhook.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/infocapsule/digest/internal/domain"
	"github.com/infocapsule/digest/internal/feedproxy"
)

// Store is the persistence surface the handlers need.
type Store interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	SetPreferredSlot(ctx context.Context, userID string, slot domain.TimeSlot) error
	SetPaused(ctx context.Context, userID string, paused bool) error

	CreateSource(ctx context.Context, src domain.Source) (*domain.Source, error)
	GetSource(ctx context.Context, id string) (*domain.Source, error)
	ListSources(ctx context.Context, userID string) ([]domain.Source, error)
	FinalizeProvisioning(ctx context.Context, sourceID, feedURL, proxyFeedID string, status domain.SourceStatus) error
	DeleteSource(ctx context.Context, id string) error
	CountSiblingSources(ctx context.Context, proxyFeedID, excludeSourceID string) (int, error)

	AddLog(ctx context.Context, message, sourceID, userID string) error
	ListLogs(ctx context.Context, userID string, limit int) ([]domain.ActivityLogEntry, error)
}

// Provisioner converts an origin URL into a canonical feed.
type Provisioner interface {
	CreateFeed(ctx context.Context, originURL string, selectors *domain.Selectors) (*feedproxy.ProvisionedFeed, error)
	DeleteFeed(ctx context.Context, feedID string)
}

// TestDigester runs the on-demand test digest pipeline.
type TestDigester interface {
	RunTestDigest(ctx context.Context, userID string) error
}

// Server holds handler dependencies and builds the router.
type Server struct {
	store    Store
	proxy    Provisioner
	digester TestDigester
	events   http.Handler

	// provisionTimeout bounds the background feed-proxy call that runs
	// after the create-source request has already returned.
	provisionTimeout time.Duration

	allowedOrigins []string
}

// NewServer creates the API server.
func NewServer(store Store, proxy Provisioner, digester TestDigester, events http.Handler, allowedOrigins []string) *Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	return &Server{
		store:            store,
		proxy:            proxy,
		digester:         digester,
		events:           events,
		provisionTimeout: 60 * time.Second,
		allowedOrigins:   allowedOrigins,
	}
}

// Routes builds the chi router with all endpoints mounted.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	// Provider callbacks are unauthenticated; SNS signs its own payloads.
	if s.events != nil {
		r.Post("/webhooks/ses", s.events.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/sources", func(r chi.Router) {
			r.Post("/", s.handleCreateSource)
			r.Get("/", s.handleListSources)
			r.Delete("/{id}", s.handleDeleteSource)
		})

		r.Get("/logs", s.handleListLogs)
		r.Post("/digest/test", s.handleTestDigest)

		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Put("/slot", s.handleSetSlot)
			r.Put("/pause", s.handleSetPaused)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
