// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuGH/livetv/internal/catalog"
	"github.com/ManuGH/livetv/internal/engine/enginetest"
	"github.com/ManuGH/livetv/internal/health"
	"github.com/ManuGH/livetv/internal/history"
	"github.com/ManuGH/livetv/internal/player"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCatalog struct {
	playlists []catalog.Playlist
	channels  map[string][]catalog.Channel
	status    map[string]catalog.Status
}

func (c *stubCatalog) Playlists(context.Context) []catalog.Playlist { return c.playlists }

func (c *stubCatalog) Channels(_ context.Context, id string) []catalog.Channel {
	if chs, ok := c.channels[id]; ok {
		return chs
	}
	return []catalog.Channel{}
}

func (c *stubCatalog) Status(key string) catalog.Status {
	if s, ok := c.status[key]; ok {
		return s
	}
	return catalog.StatusFailed
}

type stubHistory struct {
	entries []history.Entry
	limit   int
	err     error
}

func (h *stubHistory) Recent(_ context.Context, limit int) ([]history.Entry, error) {
	h.limit = limit
	return h.entries, h.err
}

var testChannels = []catalog.Channel{
	{ID: "1", Name: "Das Erste", URL: "https://cdn.example/ard.m3u8", Group: "News"},
	{ID: "2", Name: "KiKA", URL: "https://cdn.example/kika.m3u8", Group: "Kids"},
	{ID: "3", Name: "tagesschau24", URL: "https://cdn.example/ts24.m3u8", Group: "News"},
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		playlists: []catalog.Playlist{{ID: "de", CountryName: "Germany", CountryCode: "DE", IsActive: true}},
		channels:  map[string][]catalog.Channel{"de": testChannels},
		status: map[string]catalog.Status{
			catalog.PlaylistsKey():     catalog.StatusReady,
			catalog.ChannelsKey("de"): catalog.StatusReady,
		},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "203.0.113.7:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestPlaylists(t *testing.T) {
	s := New(Config{}, Deps{Catalog: newStubCatalog()})
	rec := get(t, s.Handler(), "/api/playlists")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decode[listResponse[catalog.Playlist]](t, rec)
	assert.Equal(t, "ready", resp.Status)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "DE", resp.Items[0].CountryCode)
}

func TestChannels(t *testing.T) {
	s := New(Config{}, Deps{Catalog: newStubCatalog()})

	resp := decode[listResponse[catalog.Channel]](t, get(t, s.Handler(), "/api/playlists/de/channels"))
	assert.Equal(t, "ready", resp.Status)
	if diff := cmp.Diff(testChannels, resp.Items); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}

	resp = decode[listResponse[catalog.Channel]](t, get(t, s.Handler(), "/api/playlists/de/channels?group=News"))
	names := []string{}
	for _, ch := range resp.Items {
		names = append(names, ch.Name)
	}
	assert.Equal(t, []string{"Das Erste", "tagesschau24"}, names)

	rec := get(t, s.Handler(), "/api/playlists/de/channels?group=Sports")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChannels_UnknownPlaylistReportsStatus(t *testing.T) {
	s := New(Config{}, Deps{Catalog: newStubCatalog()})
	rec := get(t, s.Handler(), "/api/playlists/fr/channels")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[listResponse[catalog.Channel]](t, rec)
	assert.Equal(t, "failed", resp.Status)
	assert.NotNil(t, resp.Items)
	assert.Empty(t, resp.Items)
}

func TestGroups(t *testing.T) {
	s := New(Config{}, Deps{Catalog: newStubCatalog()})
	resp := decode[listResponse[string]](t, get(t, s.Handler(), "/api/playlists/de/groups"))
	assert.Equal(t, []string{"News", "Kids"}, resp.Items)
}

func TestHistory(t *testing.T) {
	started := time.Date(2025, 3, 1, 20, 15, 0, 0, time.UTC)
	h := &stubHistory{entries: []history.Entry{{ID: 1, PlaylistID: "de", ChannelName: "KiKA", StartedAt: started}}}
	s := New(Config{}, Deps{Catalog: newStubCatalog(), History: h})

	rec := get(t, s.Handler(), "/api/history?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, h.limit)
	resp := decode[struct{ Items []history.Entry }](t, rec)
	require.Len(t, resp.Items, 1)
	assert.True(t, started.Equal(resp.Items[0].StartedAt))

	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/history?limit=zero").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/history?limit=-1").Code)

	h.err = errors.New("database is locked")
	assert.Equal(t, http.StatusInternalServerError, get(t, s.Handler(), "/api/history").Code)
}

func TestHistory_Disabled(t *testing.T) {
	s := New(Config{}, Deps{Catalog: newStubCatalog()})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/api/history").Code)
}

func TestPlayers(t *testing.T) {
	reg := player.NewRegistry()
	shell := player.New(player.Deps{ID: "tab-1", Factory: enginetest.NewFactory(), Surface: enginetest.NewSurface()})
	t.Cleanup(shell.Close)
	reg.Add(shell)

	s := New(Config{}, Deps{Catalog: newStubCatalog(), Players: reg})

	list := decode[struct{ Items []player.View }](t, get(t, s.Handler(), "/api/players"))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "tab-1", list.Items[0].PlayerID)

	view := decode[player.View](t, get(t, s.Handler(), "/api/players/tab-1"))
	assert.Equal(t, "tab-1", view.PlayerID)

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/api/players/tab-2").Code)
}

func TestProbesAndMetrics(t *testing.T) {
	hm := health.NewManager("test")
	s := New(Config{}, Deps{Catalog: newStubCatalog(), Health: hm})

	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/readyz").Code)

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "livetv_http_request_duration_seconds")
}

func TestRateLimitAppliesToAPIOnly(t *testing.T) {
	s := New(Config{RateLimitEnabled: true, RequestsPerMinute: 2}, Deps{Catalog: newStubCatalog()})

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, get(t, s.Handler(), "/api/playlists").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/healthz").Code)
	}
}

func TestRemoteMountedWhenConfigured(t *testing.T) {
	called := false
	remote := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	s := New(Config{}, Deps{Catalog: newStubCatalog(), Remote: remote})
	assert.Equal(t, http.StatusTeapot, get(t, s.Handler(), "/ws/player").Code)
	assert.True(t, called)

	bare := New(Config{}, Deps{Catalog: newStubCatalog()})
	assert.Equal(t, http.StatusNotFound, get(t, bare.Handler(), "/ws/player").Code)
}
