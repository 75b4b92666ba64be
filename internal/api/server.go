// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the catalog, history and player registry over HTTP
// and mounts the player websocket, probes and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ManuGH/livetv/internal/api/middleware"
	"github.com/ManuGH/livetv/internal/catalog"
	"github.com/ManuGH/livetv/internal/health"
	"github.com/ManuGH/livetv/internal/history"
	"github.com/ManuGH/livetv/internal/log"
	"github.com/ManuGH/livetv/internal/player"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Catalog is the read side of the catalog cache.
type Catalog interface {
	Playlists(ctx context.Context) []catalog.Playlist
	Channels(ctx context.Context, playlistID string) []catalog.Channel
	Status(key string) catalog.Status
}

// HistoryReader lists watched channels.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Config shapes the HTTP surface.
type Config struct {
	AllowedOrigins []string
	TracingService string

	RateLimitEnabled   bool
	RequestsPerMinute  int
	RateLimitWhitelist []string
}

// Deps are the components served by the API. History and Remote are optional.
type Deps struct {
	Catalog Catalog
	History HistoryReader
	Players *player.Registry
	Remote  http.Handler
	Health  *health.Manager
}

// Server routes HTTP requests to the daemon's components.
type Server struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	router chi.Router
}

// New builds the router.
func New(cfg Config, deps Deps) *Server {
	if deps.Players == nil {
		deps.Players = player.NewRegistry()
	}
	if deps.Health == nil {
		deps.Health = health.NewManager("")
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        s.cfg.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimitEnabled {
			r.Use(middleware.APIRateLimit(s.cfg.RequestsPerMinute, s.cfg.RateLimitWhitelist))
		}
		r.Get("/playlists", s.handlePlaylists)
		r.Get("/playlists/{id}/channels", s.handleChannels)
		r.Get("/playlists/{id}/groups", s.handleGroups)
		r.Get("/history", s.handleHistory)
		r.Get("/players", s.handlePlayers)
		r.Get("/players/{id}", s.handlePlayer)
	})

	if s.deps.Remote != nil {
		r.Handle("/ws/player", s.deps.Remote)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { writeNotFound(w) })
	return r
}

// NewHTTPServer returns an http.Server for h. There is no write timeout
// because player websockets are long lived.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
