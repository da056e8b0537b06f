// Package http serves the read API, health endpoints, and Prometheus
// metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chorus/internal/catalog"
	"chorus/internal/core"
	"chorus/internal/snapshot"
	"chorus/internal/store"
)

// SnapshotSource yields the current preferred document for one
// snapshot file.
type SnapshotSource interface {
	Get(ctx context.Context) (snapshot.Result, error)
}

// TrackSource fetches and searches track documents and the author
// profiles behind them.
type TrackSource interface {
	Track(ctx context.Context, author, identifier string) (*core.Track, error)
	SearchTracks(ctx context.Context, query string, limit int) ([]core.Track, error)
	Profiles(ctx context.Context, authors []string) (map[string]core.Profile, error)
}

// LibraryStore persists saved releases and play history.
type LibraryStore interface {
	Save(entry store.SavedRelease, now time.Time) error
	RemoveRelease(kind, author, identifier string) error
	SavedReleases() ([]store.SavedRelease, error)
	RecordPlay(track core.Track, playedAt time.Time) error
	RecentPlays(limit int) ([]store.PlayEntry, error)
}

// Metrics holds the Prometheus instruments of the service. They are
// registered on a per-server registry so independent instances never
// collide.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	SnapshotServes  *prometheus.CounterVec
	SeenRecords     prometheus.Gauge
}

func newMetrics(registry *prometheus.Registry) *Metrics {
	metrics := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chorus_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chorus_request_duration_seconds",
				Help:    "Time spent serving API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		SnapshotServes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chorus_snapshot_serves_total",
				Help: "Release documents served, by freshness and origin",
			},
			[]string{"freshness", "origin"},
		),
		SeenRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chorus_seen_records",
				Help: "Number of distinct records processed",
			},
		),
	}

	registry.MustRegister(
		metrics.RequestsTotal,
		metrics.RequestDuration,
		metrics.SnapshotServes,
		metrics.SeenRecords,
	)

	return metrics
}

// Server is the HTTP face of the service.
type Server struct {
	config   *core.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	metrics  *Metrics
	releases SnapshotSource
	latest   SnapshotSource
	tracks   TrackSource
	library  LibraryStore
}

// NewServer wires the API around its data sources.
func NewServer(
	config *core.ServerConfig,
	releases SnapshotSource,
	latest SnapshotSource,
	tracks TrackSource,
	library LibraryStore,
	logger *zap.Logger,
) *Server {
	registry := prometheus.NewRegistry()

	s := &Server{
		config:   config,
		logger:   logger,
		metrics:  newMetrics(registry),
		releases: releases,
		latest:   latest,
		tracks:   tracks,
		library:  library,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /api/releases", s.instrumented("releases", s.handleReleases))
	mux.HandleFunc("GET /api/releases/latest", s.instrumented("latest", s.handleLatest))
	mux.HandleFunc("GET /api/tracks/{author}/{identifier}", s.instrumented("track", s.handleTrack))
	mux.HandleFunc("GET /api/search", s.instrumented("search", s.handleSearch))
	mux.HandleFunc("GET /api/profiles/{author}", s.instrumented("profile", s.handleProfile))
	mux.HandleFunc("GET /api/library", s.instrumented("library", s.handleLibraryList))
	mux.HandleFunc("POST /api/library", s.instrumented("library", s.handleLibrarySave))
	mux.HandleFunc("DELETE /api/library/{kind}/{author}/{identifier}", s.instrumented("library", s.handleLibraryRemove))
	mux.HandleFunc("GET /api/history", s.instrumented("history", s.handleHistoryList))
	mux.HandleFunc("POST /api/history", s.instrumented("history", s.handleHistoryRecord))

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetSeenRecords updates the seen-records gauge.
func (s *Server) SetSeenRecords(count int) {
	s.metrics.SeenRecords.Set(float64(count))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","service":"chorus"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready","service":"chorus"}`))
}

func (s *Server) handleReleases(w http.ResponseWriter, r *http.Request) error {
	return s.serveSnapshot(w, r, s.releases)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) error {
	return s.serveSnapshot(w, r, s.latest)
}

func (s *Server) serveSnapshot(w http.ResponseWriter, r *http.Request, source SnapshotSource) error {
	result, err := source.Get(r.Context())
	if err != nil {
		return err
	}

	origin := "snapshot"
	if result.FromLive {
		origin = "live"
	}
	s.metrics.SnapshotServes.WithLabelValues(result.Freshness.String(), origin).Inc()

	w.Header().Set("X-Chorus-Freshness", result.Freshness.String())
	w.Header().Set("X-Chorus-Origin", origin)
	return writeJSON(w, http.StatusOK, result.Document)
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) error {
	author := r.PathValue("author")
	identifier := r.PathValue("identifier")

	if !core.IsHexKey(author) {
		return writeError(w, http.StatusBadRequest, "author must be a 64-character hex key")
	}

	track, err := s.tracks.Track(r.Context(), author, identifier)
	if errors.Is(err, catalog.ErrTrackNotFound) {
		return writeError(w, http.StatusNotFound, "track not found")
	}
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, snapshot.NewTrackView(track))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) error {
	author := r.PathValue("author")
	if !core.IsHexKey(author) {
		return writeError(w, http.StatusBadRequest, "author must be a 64-character hex key")
	}

	profiles, err := s.tracks.Profiles(r.Context(), []string{author})
	if err != nil {
		return err
	}

	profile, ok := profiles[author]
	if !ok {
		return writeError(w, http.StatusNotFound, "profile not found")
	}
	return writeJSON(w, http.StatusOK, profile)
}

const maxSearchResults = 50

// defaultHistoryLimit bounds /api/history when no limit is given.
const defaultHistoryLimit = 50

func (s *Server) handleLibraryList(w http.ResponseWriter, _ *http.Request) error {
	saved, err := s.library.SavedReleases()
	if err != nil {
		return err
	}
	if saved == nil {
		saved = []store.SavedRelease{}
	}
	return writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleLibrarySave(w http.ResponseWriter, r *http.Request) error {
	var entry store.SavedRelease
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		return writeError(w, http.StatusBadRequest, "malformed library entry")
	}
	if !core.IsHexKey(entry.Author) {
		return writeError(w, http.StatusBadRequest, "author must be a 64-character hex key")
	}

	if err := s.library.Save(entry, time.Now()); err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}
	return writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleLibraryRemove(w http.ResponseWriter, r *http.Request) error {
	kind := r.PathValue("kind")
	author := r.PathValue("author")
	identifier := r.PathValue("identifier")

	err := s.library.RemoveRelease(kind, author, identifier)
	if errors.Is(err, store.ErrNotSaved) {
		return writeError(w, http.StatusNotFound, "release not saved")
	}
	if err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) error {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	plays, err := s.library.RecentPlays(limit)
	if err != nil {
		return err
	}
	if plays == nil {
		plays = []store.PlayEntry{}
	}
	return writeJSON(w, http.StatusOK, plays)
}

func (s *Server) handleHistoryRecord(w http.ResponseWriter, r *http.Request) error {
	var track core.Track
	if err := json.NewDecoder(r.Body).Decode(&track); err != nil {
		return writeError(w, http.StatusBadRequest, "malformed track")
	}
	if track.Author == "" || track.Identifier == "" {
		return writeError(w, http.StatusBadRequest, "author and identifier are required")
	}

	if err := s.library.RecordPlay(track, time.Now()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query().Get("q")
	if query == "" {
		return writeError(w, http.StatusBadRequest, "query parameter q is required")
	}

	tracks, err := s.tracks.SearchTracks(r.Context(), query, maxSearchResults)
	if err != nil {
		return err
	}

	views := make([]*snapshot.TrackView, 0, len(tracks))
	for i := range tracks {
		views = append(views, snapshot.NewTrackView(&tracks[i]))
	}
	return writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":  query,
		"tracks": views,
	})
}

// instrumented wraps a handler with request counting, latency
// observation, and uniform error rendering.
func (s *Server) instrumented(endpoint string, handler func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		err := handler(w, r)
		s.metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

		status := "ok"
		if err != nil {
			status = "error"
			s.logger.Warn("Request failed",
				zap.String("endpoint", endpoint),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			_ = writeError(w, http.StatusBadGateway, "upstream fetch failed")
		}
		s.metrics.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) error {
	return writeJSON(w, status, map[string]string{"error": message})
}
