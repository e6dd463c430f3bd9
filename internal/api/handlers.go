package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/infocapsule/digest/internal/digest"
	"github.com/infocapsule/digest/internal/domain"
	"github.com/infocapsule/digest/internal/pkg/httputil"
	"github.com/infocapsule/digest/internal/pkg/logger"
)

type createSourceRequest struct {
	UserID            string `json:"user_id"`
	URL               string `json:"url"`
	SourceType        string `json:"source_type"`
	ContainerSelector string `json:"container_selector"`
	HeadlineSelector  string `json:"headline_selector"`
	SummarySelector   string `json:"summary_selector"`
}

// handleCreateSource records the source as pending and returns
// immediately. Provisioning against the feed proxy runs in the
// background; clients poll the source list for the status flip.
func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.UserID == "" || req.URL == "" {
		httputil.BadRequest(w, "user_id and url are required")
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		httputil.BadRequest(w, "url must be an http(s) URL")
		return
	}

	var selectors *domain.Selectors
	if req.ContainerSelector != "" || req.HeadlineSelector != "" || req.SummarySelector != "" {
		selectors = &domain.Selectors{
			Container: req.ContainerSelector,
			Headline:  req.HeadlineSelector,
			Summary:   req.SummarySelector,
		}
	}

	created, err := s.store.CreateSource(r.Context(), domain.Source{
		UserID:     req.UserID,
		OriginURL:  req.URL,
		SourceType: req.SourceType,
		Selectors:  selectors,
		Status:     domain.SourcePending,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	go s.provision(*created)

	httputil.Created(w, created)
}

// provision runs the feed-proxy call for a pending source and records
// the outcome. Runs detached from the originating request.
func (s *Server) provision(src domain.Source) {
	ctx, cancel := context.WithTimeout(context.Background(), s.provisionTimeout)
	defer cancel()

	feed, err := s.proxy.CreateFeed(ctx, src.OriginURL, src.Selectors)
	if err != nil {
		logger.Error("Source provisioning failed",
			"source_id", src.ID,
			"origin_url", src.OriginURL,
			"error", err.Error())

		if err := s.store.FinalizeProvisioning(ctx, src.ID, "", "", domain.SourceError); err != nil {
			logger.Error("Failed to record provisioning failure", "source_id", src.ID, "error", err.Error())
		}
		s.logActivity(ctx, fmt.Sprintf("Failed to provision source: %v", err), src.ID, src.UserID)
		return
	}

	if err := s.store.FinalizeProvisioning(ctx, src.ID, feed.FeedURL, feed.FeedID, domain.SourceActive); err != nil {
		logger.Error("Failed to activate source", "source_id", src.ID, "error", err.Error())
		return
	}

	logger.Info("Source provisioned", "source_id", src.ID, "proxy_feed_id", feed.FeedID)
	s.logActivity(ctx, "Source provisioned and active", src.ID, src.UserID)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		httputil.BadRequest(w, "user_id is required")
		return
	}

	sources, err := s.store.ListSources(r.Context(), userID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, sources)
}

// handleDeleteSource removes the source locally, then deprovisions the
// proxy feed only when no other source still references it. The sibling
// check and the delete are not atomic; a concurrent create can slip in
// between, which at worst deprovisions a feed another source wanted.
// The proxy treats re-provisioning as a fresh create, so this stays
// recoverable and is not worth a lock.
func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	src, err := s.store.GetSource(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if src == nil {
		httputil.NotFound(w, "source not found")
		return
	}

	siblings := 0
	if src.ProxyFeedID != "" {
		siblings, err = s.store.CountSiblingSources(r.Context(), src.ProxyFeedID, src.ID)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
	}

	if err := s.store.DeleteSource(r.Context(), id); err != nil {
		httputil.InternalError(w, err)
		return
	}

	if src.ProxyFeedID != "" && siblings == 0 {
		s.proxy.DeleteFeed(r.Context(), src.ProxyFeedID)
	}

	s.logActivity(r.Context(), "Source deleted", src.ID, src.UserID)
	httputil.NoContent(w)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		httputil.BadRequest(w, "user_id is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	logs, err := s.store.ListLogs(r.Context(), userID, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, logs)
}

type testDigestRequest struct {
	UserID string `json:"user_id"`
}

// handleTestDigest triggers an immediate digest for one user. Unlike the
// scheduled path, pipeline failures come back to the caller so the UI
// can show why nothing arrived.
func (s *Server) handleTestDigest(w http.ResponseWriter, r *http.Request) {
	var req testDigestRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		httputil.BadRequest(w, "user_id is required")
		return
	}

	err := s.digester.RunTestDigest(r.Context(), req.UserID)
	switch {
	case err == nil:
		httputil.OK(w, map[string]string{"status": "sent"})
	case errors.Is(err, digest.ErrUserNotFound):
		httputil.NotFound(w, "user not found")
	case errors.Is(err, digest.ErrNoSources), errors.Is(err, digest.ErrNoContent):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if user == nil {
		httputil.NotFound(w, "user not found")
		return
	}
	httputil.OK(w, user)
}

type setSlotRequest struct {
	Slot string `json:"slot"`
}

func (s *Server) handleSetSlot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req setSlotRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	slot, err := domain.ParseTimeSlot(req.Slot)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if err := s.store.SetPreferredSlot(r.Context(), id, slot); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "updated"})
}

type setPausedRequest struct {
	Paused bool `json:"paused"`
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req setPausedRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if err := s.store.SetPaused(r.Context(), id, req.Paused); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "updated"})
}

func (s *Server) logActivity(ctx context.Context, message, sourceID, userID string) {
	if err := s.store.AddLog(ctx, message, sourceID, userID); err != nil {
		logger.Error("Failed to write activity log", "source_id", sourceID, "error", err.Error())
	}
}
