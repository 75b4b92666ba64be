// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalogtest provides a configurable catalog API mock for tests.
package catalogtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/livetv/internal/catalog"
)

// Server mimics the backend catalog API.
type Server struct {
	*httptest.Server

	mu        sync.RWMutex
	playlists []catalog.Playlist
	channels  map[string][]catalog.Channel
	failing   bool

	Hits atomic.Int64
}

// NewServer starts a mock with two playlists and a handful of channels.
func NewServer() *Server {
	s := &Server{channels: make(map[string][]catalog.Channel)}
	s.SetDefaultData()

	mux := http.NewServeMux()
	mux.HandleFunc("/playlists", s.handlePlaylists)
	mux.HandleFunc("/playlists/", s.handleChannels)
	s.Server = httptest.NewServer(mux)
	return s
}

// SetDefaultData loads a realistic German and French bouquet.
func (s *Server) SetDefaultData() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.playlists = []catalog.Playlist{
		{ID: "de", CountryName: "Germany", CountryCode: "DE", IsActive: true},
		{ID: "fr", CountryName: "France", CountryCode: "FR", IsActive: true},
	}
	s.channels = map[string][]catalog.Channel{
		"de": {
			{ID: "1", Name: "Das Erste", URL: "https://cdn.example/de/daserste.m3u8", Group: "General"},
			{ID: "2", Name: "ZDF", URL: "https://cdn.example/de/zdf.m3u8", Group: "General"},
			{ID: "3", Name: "Sport1", URL: "https://cdn.example/de/sport1.m3u8", Group: "Sport"},
			{ID: "4", Name: "tagesschau24", URL: "https://cdn.example/de/ts24.m3u8", Group: "News"},
		},
		"fr": {
			{ID: "10", Name: "France 2", URL: "https://cdn.example/fr/f2.m3u8"},
		},
	}
}

// SetChannels replaces one playlist's channels.
func (s *Server) SetChannels(playlistID string, channels []catalog.Channel) {
	s.mu.Lock()
	s.channels[playlistID] = channels
	s.mu.Unlock()
}

// SetFailing makes every endpoint answer 503.
func (s *Server) SetFailing(failing bool) {
	s.mu.Lock()
	s.failing = failing
	s.mu.Unlock()
}

func (s *Server) handlePlaylists(w http.ResponseWriter, _ *http.Request) {
	s.Hits.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.playlists)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	s.Hits.Add(1)
	rest := strings.TrimPrefix(r.URL.Path, "/playlists/")
	id, tail, ok := strings.Cut(rest, "/")
	if !ok || tail != "channels" {
		http.NotFound(w, r)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	chs, found := s.channels[id]
	if !found {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(chs)
}
