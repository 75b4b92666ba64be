// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/ManuGH/livetv/internal/catalog"
	"github.com/ManuGH/livetv/internal/log"
	"github.com/ManuGH/livetv/internal/navigator"
	"github.com/go-chi/chi/v5"
)

var errHistoryDisabled = errors.New("history is disabled")

func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	items := s.deps.Catalog.Playlists(r.Context())
	writeJSON(w, http.StatusOK, listResponse[catalog.Playlist]{
		Status: string(s.deps.Catalog.Status(catalog.PlaylistsKey())),
		Items:  items,
	})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	channels := s.deps.Catalog.Channels(r.Context(), id)
	status := s.deps.Catalog.Status(catalog.ChannelsKey(id))

	if group := r.URL.Query().Get("group"); group != "" {
		if !slices.Contains(navigator.ResolveGroups(channels), group) && status == catalog.StatusReady {
			writeNotFound(w)
			return
		}
		channels = navigator.FilterByGroup(channels, group)
	}
	writeJSON(w, http.StatusOK, listResponse[catalog.Channel]{Status: string(status), Items: channels})
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	channels := s.deps.Catalog.Channels(r.Context(), id)
	writeJSON(w, http.StatusOK, listResponse[string]{
		Status: string(s.deps.Catalog.Status(catalog.ChannelsKey(id))),
		Items:  navigator.ResolveGroups(channels),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeServiceUnavailable(w, errHistoryDisabled)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		logger := log.WithContext(r.Context(), s.logger)
		logger.Error().Err(err).Str(log.FieldEvent, "history.list_failed").Msg("failed to list watch history")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (s *Server) handlePlayers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.deps.Players.List()})
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	shell, ok := s.deps.Players.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, shell.View())
}
