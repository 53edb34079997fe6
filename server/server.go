// Package server exposes the feed pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/burstcamp/feedpipe/feedstore"
	"github.com/burstcamp/feedpipe/recommend"
	"github.com/burstcamp/feedpipe/scrap"
)

// IngestRunner triggers one ingestion pass on demand.
type IngestRunner interface {
	IngestAll(ctx context.Context) error
}

// Server wires the HTTP surface over the store, the view, and the
// scrap manager.
type Server struct {
	store   *feedstore.Store
	view    *recommend.View
	scraps  *scrap.Manager
	ingest  IngestRunner
	config  *Config
	logger  *slog.Logger
	router  chi.Router
}

// New creates a Server and builds its routes.
func New(store *feedstore.Store, view *recommend.View, scraps *scrap.Manager, ingest IngestRunner, cfg *Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:  store,
		view:   view,
		scraps: scraps,
		ingest: ingest,
		config: cfg,
		logger: logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler for mounting or serving.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/ingest/run", s.handleIngestRun)

	r.Get("/feeds", s.handleListFeeds)
	r.Get("/recommend", s.handleRecommend)
	r.Delete("/feeds/{feedID}", s.handleDeleteFeed)

	r.Put("/feeds/{feedID}/scraps/{userID}", s.handleScrap)
	r.Delete("/feeds/{feedID}/scraps/{userID}", s.handleUnscrap)
	r.Get("/feeds/{feedID}/scraps/count", s.handleScrapCount)

	r.Get("/writers", s.handleListWriters)
	r.Post("/writers", s.handleRegisterWriter)
	r.Delete("/users/{userID}", s.handleDeleteUser)
	r.Put("/users/{userID}/push-token", s.handlePushToken)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIngestRun(w http.ResponseWriter, r *http.Request) {
	if err := s.ingest.IngestAll(r.Context()); err != nil {
		s.fail(w, http.StatusBadGateway, "ingest pass", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// feedPage is the response of GET /feeds: one page and the cursor for
// the next one, if any.
type feedPage struct {
	Feeds []*feedstore.Feed `json:"feeds"`
	Next  *feedstore.Cursor `json:"next,omitempty"`
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	limit := s.config.PageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(w, http.StatusBadRequest, "bad limit", err)
			return
		}
		limit = n
	}

	var cursor *feedstore.Cursor
	if id := r.URL.Query().Get("after_id"); id != "" {
		at, err := strconv.ParseInt(r.URL.Query().Get("after_published_at"), 10, 64)
		if err != nil {
			s.fail(w, http.StatusBadRequest, "bad cursor", err)
			return
		}
		cursor = &feedstore.Cursor{PublishedAt: at, ID: id}
	}

	feeds, err := s.store.ListFeedsPage(r.Context(), cursor, limit)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "list feeds", err)
		return
	}

	page := feedPage{Feeds: feeds}
	if len(feeds) == limit {
		last := feeds[len(feeds)-1]
		page.Next = &feedstore.Cursor{PublishedAt: last.PublishedAt, ID: last.ID}
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	entries, err := s.view.Entries(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "list recommend", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feeds": entries})
}

func (s *Server) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feedID")
	if err := s.scraps.DeleteFeed(r.Context(), feedID); err != nil {
		s.fail(w, http.StatusInternalServerError, "delete feed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScrap(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feedID")
	userID := chi.URLParam(r, "userID")
	if err := s.scraps.Scrap(r.Context(), feedID, userID); err != nil {
		if errors.Is(err, scrap.ErrNotFound) {
			s.fail(w, http.StatusNotFound, "feed not found", err)
			return
		}
		s.fail(w, http.StatusInternalServerError, "scrap", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnscrap(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feedID")
	userID := chi.URLParam(r, "userID")
	if err := s.scraps.Unscrap(r.Context(), feedID, userID); err != nil {
		s.fail(w, http.StatusInternalServerError, "unscrap", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScrapCount(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feedID")
	count, err := s.scraps.CountScraps(r.Context(), feedID)
	if err != nil {
		if errors.Is(err, scrap.ErrNotFound) {
			s.fail(w, http.StatusNotFound, "feed not found", err)
			return
		}
		s.fail(w, http.StatusInternalServerError, "scrap count", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleListWriters(w http.ResponseWriter, r *http.Request) {
	writers, err := s.store.ListWriters(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "list writers", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"writers": writers})
}

func (s *Server) handleRegisterWriter(w http.ResponseWriter, r *http.Request) {
	var writer feedstore.Writer
	if err := json.NewDecoder(r.Body).Decode(&writer); err != nil {
		s.fail(w, http.StatusBadRequest, "bad body", err)
		return
	}
	if writer.ID == "" || writer.BlogURL == "" {
		s.fail(w, http.StatusBadRequest, "id and blog_url are required", nil)
		return
	}
	if err := s.store.InsertWriter(r.Context(), &writer); err != nil {
		if isConstraint(err) {
			s.fail(w, http.StatusConflict, "writer already registered", err)
			return
		}
		s.fail(w, http.StatusInternalServerError, "insert writer", err)
		return
	}
	writeJSON(w, http.StatusCreated, writer)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := s.scraps.DeleteUser(r.Context(), userID); err != nil {
		s.fail(w, http.StatusInternalServerError, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePushToken(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		s.fail(w, http.StatusBadRequest, "token is required", err)
		return
	}
	if err := s.store.SetPushToken(r.Context(), userID, body.Token); err != nil {
		s.fail(w, http.StatusInternalServerError, "set push token", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string, err error) {
	if status >= 500 {
		s.logger.Error("server: "+msg, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// isConstraint reports whether err is an SQLite constraint violation,
// such as re-registering an id or blog URL that is already taken.
func isConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
