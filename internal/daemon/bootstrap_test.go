// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/livetv/internal/config"
	"github.com/ManuGH/livetv/internal/log"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/playlists", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"de","countryName":"Germany","countryCode":"de","isActive":true}]`))
	})
	mux.HandleFunc("/playlists/de/channels", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"1","name":"Das Erste","url":"https://cdn.example/ard.m3u8","group":"News"},
			{"id":"2","name":"KiKA","url":"https://cdn.example/kika.m3u8","group_title":"Kids"}
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, base string) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.Catalog.BaseURL = base
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	cfg.RateLimit.Enabled = false
	return cfg
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestBuild_ServesCatalogThroughCache(t *testing.T) {
	cfg := testConfig(t, upstream(t).URL)
	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.close(context.Background()) })

	require.NotNil(t, c.History)
	h := c.API.Handler()

	rec := serve(t, h, "/api/playlists")
	require.Equal(t, http.StatusOK, rec.Code)
	var playlists struct {
		Status string
		Items  []struct{ ID, CountryCode string }
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&playlists))
	assert.Equal(t, "ready", playlists.Status)
	require.Len(t, playlists.Items, 1)
	assert.Equal(t, "DE", playlists.Items[0].CountryCode)

	rec = serve(t, h, "/api/playlists/de/groups")
	var groups struct{ Items []string }
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&groups))
	assert.Equal(t, []string{"News", "Kids"}, groups.Items)

	assert.Equal(t, http.StatusOK, serve(t, h, "/api/history").Code)
	assert.Equal(t, http.StatusOK, serve(t, h, "/readyz").Code)
}

func TestBuild_HistoryDisabled(t *testing.T) {
	cfg := testConfig(t, upstream(t).URL)
	cfg.History.Enabled = false
	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.close(context.Background()) })

	assert.Nil(t, c.History)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, c.API.Handler(), "/api/history").Code)
}

func TestBuild_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, upstream(t).URL)
	cfg.Cache.Backend = config.CacheRedis
	cfg.Cache.Redis.Addr = mr.Addr()

	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.close(context.Background()) })

	require.Equal(t, http.StatusOK, serve(t, c.API.Handler(), "/api/playlists").Code)
	assert.True(t, mr.Exists("livetv:playlists"), "catalog should be cached in redis, keys: %v", mr.Keys())

	mr.Close()
	rec := serve(t, c.API.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBuild_FailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig(t, upstream(t).URL)
	cfg.Cache.Backend = config.CacheRedis
	cfg.Cache.Redis.Addr = "127.0.0.1:1"

	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t, upstream(t).URL)
	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	m, err := NewManager(Deps{
		Logger:          log.WithComponent("test"),
		Listener:        listen(t),
		ShutdownTimeout: 5 * time.Second,
		APIHandler:      c.API.Handler(),
	})
	require.NoError(t, err)
	c.RegisterShutdownHooks(m)

	loader := config.NewLoader("", "test")
	app := NewApp(log.WithComponent("test"), m, config.NewHolder(cfg, loader))
	app.reloadSignal = nil

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Addr() != "" }, time.Second, 5*time.Millisecond)
	resp, err := http.Get("http://" + m.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Zero(t, c.Players.Len())
}

func TestApp_RequiresManager(t *testing.T) {
	assert.ErrorIs(t, NewApp(log.WithComponent("test"), nil, nil).Run(context.Background()), ErrMissingManager)
}
