// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/livetv/internal/catalog"
	"github.com/ManuGH/livetv/internal/engine"
	"github.com/ManuGH/livetv/internal/fullscreen"
	"github.com/ManuGH/livetv/internal/navigator"
	"github.com/ManuGH/livetv/internal/player"
	"github.com/ManuGH/livetv/internal/ratelimit"
	"github.com/ManuGH/livetv/internal/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

var testChannels = []catalog.Channel{
	{ID: "1", Name: "Das Erste", URL: "http://tv/1.m3u8", Group: "News"},
	{ID: "2", Name: "ZDF", URL: "http://tv/2.m3u8", Group: "News"},
	{ID: "3", Name: "KiKA", URL: "http://tv/3.m3u8", Group: "Kids"},
}

type staticCatalog struct{ channels []catalog.Channel }

func (c staticCatalog) Channels(context.Context, string) []catalog.Channel {
	return append([]catalog.Channel{}, c.channels...)
}
func (c staticCatalog) Status(string) catalog.Status { return catalog.StatusReady }
func (c staticCatalog) SubscribeChannels(string, func([]catalog.Channel)) func() {
	return func() {}
}

// browser plays the client side of the protocol. Commands that expect a
// result are answered automatically.
type browser struct {
	t  *testing.T
	ws *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	commands  []Frame
	views     []player.View
	results   []Frame
	exits     int
	errs      []Frame
	playCode  string
	holdPlay  bool // leave surface.play unanswered
	readerEnd chan struct{}
}

func dial(t *testing.T, srv *httptest.Server) *browser {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	b := &browser{t: t, ws: ws, readerEnd: make(chan struct{})}
	go b.read()
	t.Cleanup(func() {
		_ = b.ws.Close()
		<-b.readerEnd
	})
	return b
}

func (b *browser) read() {
	defer close(b.readerEnd)
	for {
		var f Frame
		if err := b.ws.ReadJSON(&f); err != nil {
			return
		}
		b.mu.Lock()
		switch f.Type {
		case FrameCommand:
			b.commands = append(b.commands, f)
		case FrameView:
			var v player.View
			if err := json.Unmarshal(f.Data, &v); err == nil {
				b.views = append(b.views, v)
			}
		case FrameResult:
			b.results = append(b.results, f)
		case FrameExit:
			b.exits++
		case FrameError:
			b.errs = append(b.errs, f)
		}
		code, hold := b.playCode, b.holdPlay
		b.mu.Unlock()

		if f.Type == FrameCommand && f.ID != 0 && !(hold && f.Op == OpSurfacePlay) {
			res := Frame{Type: FrameResult, ID: f.ID}
			if f.Op == OpSurfacePlay && code != "" {
				res.Code = code
				res.Error = "The play() request was interrupted"
			}
			_ = b.send(res)
		}
	}
}

func (b *browser) send(f Frame) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.ws.WriteJSON(f)
}

func (b *browser) hello(target navigator.Target, caps Capabilities) {
	require.NoError(b.t, b.send(Frame{Type: FrameHello, Data: payload(Hello{Target: target, Capabilities: caps})}))
}

func (b *browser) intent(id uint64, op string, data any) {
	require.NoError(b.t, b.send(Frame{Type: FrameIntent, ID: id, Op: op, Data: payload(data)}))
}

func (b *browser) engineEvent(instance string, ev engine.Event) {
	require.NoError(b.t, b.send(Frame{Type: FrameEvent, Op: SourceEngine, Instance: instance, Data: payload(EngineEvent{Event: ev})}))
}

func (b *browser) surfaceEvent(kind engine.SurfaceEventKind) {
	require.NoError(b.t, b.send(Frame{Type: FrameEvent, Op: SourceSurface, Data: payload(engine.SurfaceEvent{Kind: kind})}))
}

// command waits for the n-th (0-based) command with op.
func (b *browser) command(op string, n int) Frame {
	b.t.Helper()
	var found Frame
	require.Eventually(b.t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		seen := 0
		for _, f := range b.commands {
			if f.Op == op {
				if seen == n {
					found = f
					return true
				}
				seen++
			}
		}
		return false
	}, waitFor, tick, "command %s #%d never arrived", op, n)
	return found
}

func (b *browser) lastView() player.View {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.views) == 0 {
		return player.View{}
	}
	return b.views[len(b.views)-1]
}

func (b *browser) waitState(want session.State) {
	b.t.Helper()
	require.Eventually(b.t, func() bool {
		return b.lastView().Session.State == want
	}, waitFor, tick, "session never reached %s", want)
}

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(cfg, staticCatalog{channels: testChannels}, nil, player.NewRegistry())
	srv := httptest.NewServer(s)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = s.Shutdown(ctx)
		srv.Close()
	})
	return s, srv
}

func target(i int) navigator.Target {
	return navigator.Resolve(testChannels[i], "de")
}

func TestServer_PlaysThroughClientEngine(t *testing.T) {
	s, srv := newTestServer(t, Config{})
	b := dial(t, srv)
	b.hello(target(0), Capabilities{Engine: true})

	create := b.command(OpEngineCreate, 0)
	require.NotEmpty(t, create.Instance)
	b.command(OpEngineAttachMedia, 0)
	load := b.command(OpEngineLoadSource, 0)
	assert.Equal(t, create.Instance, load.Instance)
	assert.JSONEq(t, `{"url":"http://tv/1.m3u8"}`, string(load.Data))

	b.engineEvent(create.Instance, engine.Event{
		Kind:   engine.EventManifestParsed,
		Levels: []engine.Level{{Index: 0, Height: 720}, {Index: 1, Height: 1080}},
	})
	b.command(OpSurfacePlay, 0)
	b.waitState(session.StatePlaying)

	require.Eventually(t, func() bool { return len(b.lastView().Channels) == 3 }, waitFor, tick)
	v := b.lastView()
	assert.Equal(t, "Das Erste", v.Current.Name)
	assert.Equal(t, 0, v.Index)
	assert.Len(t, v.Session.Levels, 2)
	assert.Equal(t, session.LabelAuto, v.Session.QualityLabel)
	assert.Equal(t, 1, s.Registry().Len())
}

func TestServer_NextReplacesEngine(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	b := dial(t, srv)
	b.hello(target(0), Capabilities{Engine: true})
	first := b.command(OpEngineCreate, 0)
	b.command(OpEngineLoadSource, 0)

	b.intent(1, IntentNext, nil)

	destroy := b.command(OpEngineDestroy, 0)
	assert.Equal(t, first.Instance, destroy.Instance)
	second := b.command(OpEngineCreate, 1)
	assert.NotEqual(t, first.Instance, second.Instance)
	load := b.command(OpEngineLoadSource, 1)
	assert.JSONEq(t, `{"url":"http://tv/2.m3u8"}`, string(load.Data))

	// Late events of the destroyed instance never reach the new session.
	b.engineEvent(first.Instance, engine.Event{Kind: engine.EventManifestParsed})
	b.engineEvent(second.Instance, engine.Event{Kind: engine.EventManifestParsed})
	b.waitState(session.StatePlaying)
	require.Eventually(t, func() bool { return b.lastView().Current.Name == "ZDF" }, waitFor, tick)

	b.mu.Lock()
	plays := 0
	for _, f := range b.commands {
		if f.Op == OpSurfacePlay {
			plays++
		}
	}
	b.mu.Unlock()
	assert.Equal(t, 1, plays)
}

func TestServer_UnansweredPlayDoesNotStallIntents(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	b := dial(t, srv)
	b.mu.Lock()
	b.holdPlay = true
	b.mu.Unlock()

	b.hello(target(0), Capabilities{Engine: true})
	first := b.command(OpEngineCreate, 0)
	b.command(OpEngineLoadSource, 0)
	b.engineEvent(first.Instance, engine.Event{Kind: engine.EventManifestParsed})
	b.command(OpSurfacePlay, 0)
	b.waitState(session.StateReady)

	start := time.Now()
	b.intent(1, IntentNext, nil)

	destroy := b.command(OpEngineDestroy, 0)
	assert.Equal(t, first.Instance, destroy.Instance)
	second := b.command(OpEngineCreate, 1)
	assert.NotEqual(t, first.Instance, second.Instance)
	assert.Less(t, time.Since(start), defaultCallTTL/2, "switch waited for the pending play")
	require.Eventually(t, func() bool { return b.lastView().Current.Name == "ZDF" }, waitFor, tick)
}

func TestServer_NativeFallback(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	b := dial(t, srv)
	b.hello(target(2), Capabilities{NativeHLS: true})

	src := b.command(OpSurfaceSetSource, 0)
	assert.JSONEq(t, `{"url":"http://tv/3.m3u8"}`, string(src.Data))
	b.command(OpSurfaceLoad, 0)

	b.surfaceEvent(engine.SurfaceLoaded)
	b.command(OpSurfacePlay, 0)
	b.waitState(session.StatePlaying)
	assert.True(t, b.lastView().Session.Native)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.commands {
		assert.NotEqual(t, OpEngineCreate, f.Op)
	}
}

func TestServer_AbortedPlayIsBenign(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	b := dial(t, srv)
	b.mu.Lock()
	b.playCode = CodeAborted
	b.mu.Unlock()
	b.hello(target(0), Capabilities{Engine: true})

	create := b.command(OpEngineCreate, 0)
	b.engineEvent(create.Instance, engine.Event{Kind: engine.EventManifestParsed})
	b.command(OpSurfacePlay, 0)
	b.waitState(session.StateReady)

	// Let any late view arrive.
	time.Sleep(50 * time.Millisecond)
	v := b.lastView()
	assert.Equal(t, session.StateReady, v.Session.State)
	assert.Empty(t, v.Session.Err)
}

func TestServer_FatalErrorAndRetry(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	b := dial(t, srv)
	b.hello(target(0), Capabilities{Engine: true})
	create := b.command(OpEngineCreate, 0)

	b.engineEvent(create.Instance, engine.Event{
		Kind:  engine.EventError,
		Error: &engine.ErrorData{Type: engine.ErrorOther, Details: "manifestIncompatibleCodecsError", Fatal: true},
	})
	b.waitState(session.StateErrored)
	b.command(OpEngineDestroy, 0)

	b.intent(7, IntentRetry, nil)
	b.command(OpEngineCreate, 1)
	load := b.command(OpEngineLoadSource, 1)
	assert.JSONEq(t, `{"url":"http://tv/1.m3u8"}`, string(load.Data))
}

func TestServer_IntentResults(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	b := dial(t, srv)
	b.hello(target(0), Capabilities{Engine: true})
	b.command(OpEngineLoadSource, 0)

	b.intent(1, IntentGroup, groupPayload{Group: "Kids"})
	b.intent(2, IntentGroup, groupPayload{Group: "Sports"})
	b.intent(3, "rewind", nil)
	b.intent(4, IntentFullscreen, nil)

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.results) >= 4
	}, waitFor, tick)

	b.mu.Lock()
	byID := map[uint64]Frame{}
	for _, f := range b.results {
		byID[f.ID] = f
	}
	b.mu.Unlock()

	assert.Empty(t, byID[1].Error)
	assert.Contains(t, byID[2].Error, player.ErrUnknownGroup.Error())
	assert.Contains(t, byID[3].Error, "unknown intent")
	assert.Contains(t, byID[4].Error, fullscreen.ErrUnsupported.Error())

	require.Eventually(t, func() bool { return b.lastView().Group == "Kids" }, waitFor, tick)
	assert.Len(t, b.lastView().Channels, 1)
}

func TestServer_FullscreenRoundTrip(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	b := dial(t, srv)
	b.hello(target(0), Capabilities{Engine: true, Fullscreen: []string{fullscreen.VariantWebkit}})
	b.command(OpEngineLoadSource, 0)

	b.intent(1, IntentFullscreen, nil)
	req := b.command(OpFullscreenRequest, 0)
	assert.JSONEq(t, `{"variant":"webkit"}`, string(req.Data))
	require.Eventually(t, func() bool { return b.lastView().Fullscreen }, waitFor, tick)

	// Escape pressed in the client.
	require.NoError(t, b.send(Frame{Type: FrameEvent, Op: SourceFullscreen, Data: payload(FullscreenEvent{Active: false})}))
	require.Eventually(t, func() bool { return !b.lastView().Fullscreen }, waitFor, tick)
}

func TestServer_CloseIntentExits(t *testing.T) {
	s, srv := newTestServer(t, Config{})
	b := dial(t, srv)
	b.hello(target(0), Capabilities{Engine: true})
	create := b.command(OpEngineCreate, 0)
	b.command(OpEngineLoadSource, 0)

	b.intent(9, IntentClose, nil)

	destroy := b.command(OpEngineDestroy, 0)
	assert.Equal(t, create.Instance, destroy.Instance)
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.exits == 1
	}, waitFor, tick)
	require.Eventually(t, func() bool { return s.Registry().Len() == 0 }, waitFor, tick)

	select {
	case <-b.readerEnd:
	case <-time.After(waitFor):
		t.Fatal("server kept the connection open after close")
	}
}

func TestServer_RejectsMissingHello(t *testing.T) {
	s, srv := newTestServer(t, Config{})
	b := dial(t, srv)
	b.intent(1, IntentNext, nil)

	select {
	case <-b.readerEnd:
	case <-time.After(waitFor):
		t.Fatal("connection not closed")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.errs, 1)
	assert.Contains(t, b.errs[0].Error, "expected hello")
	assert.Equal(t, 0, s.Registry().Len())
}

func TestServer_HelloTimeout(t *testing.T) {
	_, srv := newTestServer(t, Config{HelloTimeout: 50 * time.Millisecond})
	b := dial(t, srv)

	select {
	case <-b.readerEnd:
	case <-time.After(waitFor):
		t.Fatal("connection not closed")
	}
}

func TestServer_DisconnectReleasesPlayer(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewServer(Config{}, staticCatalog{channels: testChannels}, nil, player.NewRegistry())
	srv := httptest.NewServer(s)

	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(Frame{Type: FrameHello, Data: payload(Hello{Target: target(0), Capabilities: Capabilities{NativeHLS: true}})}))
	require.Eventually(t, func() bool { return s.Registry().Len() == 1 }, waitFor, tick)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return s.Registry().Len() == 0 }, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	srv.Close()
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	s := NewServer(Config{}, staticCatalog{channels: testChannels}, nil, player.NewRegistry())
	srv := httptest.NewServer(s)
	defer srv.Close()

	b := dial(t, srv)
	b.hello(target(0), Capabilities{NativeHLS: true})
	require.Eventually(t, func() bool { return s.Registry().Len() == 1 }, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, 0, s.Registry().Len())

	select {
	case <-b.readerEnd:
	case <-time.After(waitFor):
		t.Fatal("client still connected")
	}

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_ThrottlesConnects(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{
		PerKey: map[string]ratelimit.Limit{ratelimit.KindConnect: {Rate: 0.001, Burst: 1}},
	})
	_, srv := newTestServer(t, Config{Limiter: limiter})

	dial(t, srv)

	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestServer_ThrottlesIntents(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{
		PerKey: map[string]ratelimit.Limit{ratelimit.KindIntent: {Rate: 0.001, Burst: 1}},
	})
	s, srv := newTestServer(t, Config{Limiter: limiter})
	b := dial(t, srv)
	b.hello(target(0), Capabilities{Engine: true})
	b.command(OpEngineLoadSource, 0)

	b.intent(1, IntentGroup, groupPayload{Group: "Kids"})
	b.intent(2, IntentNext, nil)

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.results) >= 2
	}, waitFor, tick)

	b.mu.Lock()
	byID := map[uint64]Frame{}
	for _, f := range b.results {
		byID[f.ID] = f
	}
	b.mu.Unlock()
	assert.Empty(t, byID[1].Error)
	assert.Contains(t, byID[2].Error, ErrRateLimited.Error())

	require.NoError(t, b.ws.Close())
	require.Eventually(t, func() bool {
		return s.Registry().Len() == 0 && limiter.Len(ratelimit.KindIntent) == 0
	}, waitFor, tick)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		host    string
		origin  string
		want    bool
	}{
		{name: "no origin header", host: "tv.local", want: true},
		{name: "same origin", host: "tv.local:8080", origin: "http://tv.local:8080", want: true},
		{name: "cross origin by default", host: "tv.local", origin: "http://evil.example", want: false},
		{name: "listed origin", allowed: []string{"http://app.example"}, host: "tv.local", origin: "http://app.example", want: true},
		{name: "unlisted origin", allowed: []string{"http://app.example"}, host: "tv.local", origin: "http://other.example", want: false},
		{name: "wildcard", allowed: []string{"*"}, host: "tv.local", origin: "http://any.example", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(Config{AllowedOrigins: tt.allowed}, nil, nil, nil)
			r := httptest.NewRequest(http.MethodGet, "/ws/player", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, s.checkOrigin(r))
		})
	}
}
