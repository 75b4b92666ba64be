// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/livetv/internal/catalog"
	"github.com/ManuGH/livetv/internal/controls"
	"github.com/ManuGH/livetv/internal/engine"
	tvlog "github.com/ManuGH/livetv/internal/log"
	"github.com/ManuGH/livetv/internal/metrics"
	"github.com/ManuGH/livetv/internal/player"
	"github.com/ManuGH/livetv/internal/ratelimit"
	"github.com/ManuGH/livetv/internal/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultHelloTimeout bounds the wait for the opening hello frame.
const DefaultHelloTimeout = 10 * time.Second

const intentBuffer = 64

var (
	// ErrBadHello is reported when the first frame is not a usable hello.
	ErrBadHello = errors.New("remote: expected hello frame")
	// ErrUnknownIntent is reported for an intent op the server does not know.
	ErrUnknownIntent = errors.New("remote: unknown intent")
	// ErrRateLimited is reported for intents beyond the per-player budget.
	ErrRateLimited = errors.New("remote: rate limited")
)

// Config tunes the websocket endpoint.
type Config struct {
	// AllowedOrigins lists the Origin values accepted on upgrade. Empty
	// means same-origin only; "*" accepts any origin.
	AllowedOrigins  []string
	HelloTimeout    time.Duration
	SessionOptions  []session.Option
	ControlsOptions []controls.Option
	// Limiter throttles connects per client IP and intents per player.
	// Nil disables throttling.
	Limiter *ratelimit.Limiter
}

// Server upgrades player connections and runs one player.Shell per tab.
type Server struct {
	cfg      Config
	catalog  player.Catalog
	history  player.History
	registry *player.Registry
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[*Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewServer returns the websocket endpoint. history may be nil.
func NewServer(cfg Config, cat player.Catalog, hist player.History, reg *player.Registry) *Server {
	if cfg.HelloTimeout <= 0 {
		cfg.HelloTimeout = DefaultHelloTimeout
	}
	if reg == nil {
		reg = player.NewRegistry()
	}
	s := &Server{
		cfg:      cfg,
		catalog:  cat,
		history:  hist,
		registry: reg,
		logger:   tvlog.WithComponent("remote"),
		conns:    make(map[*Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Registry returns the shells served by s.
func (s *Server) Registry() *player.Registry { return s.registry }

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.cfg.AllowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and serves the player until the tab
// disconnects or closes the player.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if s.cfg.Limiter != nil && !s.cfg.Limiter.Allow(ratelimit.KindConnect, ratelimit.ClientIP(r, false)) {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug().Err(err).Str(tvlog.FieldEvent, "remote.upgrade_failed").Msg("websocket upgrade failed")
		return
	}

	logger := tvlog.WithContext(r.Context(), s.logger)
	conn := newConn(ws, logger)
	s.track(conn, true)
	metrics.RemoteConnections.Inc()
	defer func() {
		conn.Close()
		s.track(conn, false)
		metrics.RemoteConnections.Dec()
	}()

	s.serve(conn, logger)
}

func (s *Server) track(c *Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
		return
	}
	delete(s.conns, c)
}

// Shutdown closes every connection and waits for their players to close.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.shutdown()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("remote: shutdown: %w", ctx.Err())
	}
}

func (s *Server) readHello(c *Conn) (Hello, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HelloTimeout)
	defer cancel()

	f, err := c.Next(ctx)
	if err != nil {
		return Hello{}, fmt.Errorf("%w: %w", ErrBadHello, err)
	}
	if f.Type != FrameHello {
		return Hello{}, fmt.Errorf("%w: got %q", ErrBadHello, f.Type)
	}
	var h Hello
	if err := json.Unmarshal(f.Data, &h); err != nil {
		return Hello{}, fmt.Errorf("%w: %w", ErrBadHello, err)
	}
	if h.Target.URL == "" {
		return Hello{}, fmt.Errorf("%w: %w", ErrBadHello, player.ErrInvalidTarget)
	}
	return h, nil
}

func (s *Server) serve(c *Conn, logger zerolog.Logger) {
	hello, err := s.readHello(c)
	if err != nil {
		logger.Warn().Err(err).Str(tvlog.FieldEvent, "remote.hello_failed").Msg("player handshake failed")
		_ = c.Send(Frame{Type: FrameError, Error: err.Error()})
		return
	}

	factory := NewFactory(c, hello.Capabilities)
	surface := NewSurface(c, hello.Capabilities)

	shell := player.New(player.Deps{
		Catalog:         s.catalog,
		Factory:         factory,
		Surface:         surface,
		Fullscreen:      FullscreenHost(c, hello.Capabilities),
		History:         s.history,
		Logger:          &logger,
		SessionOptions:  s.cfg.SessionOptions,
		ControlsOptions: s.cfg.ControlsOptions,
		OnExit: func() {
			_ = c.Send(Frame{Type: FrameExit})
		},
	})
	logger = logger.With().Str(tvlog.FieldPlayerID, shell.ID()).Logger()

	s.registry.Add(shell)
	unsubView := shell.OnView(func(v player.View) {
		if !c.TrySend(Frame{Type: FrameView, Data: payload(v)}) {
			metrics.RemoteDroppedFrames.Inc()
		}
	})

	ctx, cancel := context.WithCancel(tvlog.ContextWithPlayerID(context.Background(), shell.ID()))
	intents := make(chan Frame, intentBuffer)
	var worker sync.WaitGroup
	worker.Add(1)
	go func() {
		defer worker.Done()
		s.runIntents(ctx, c, shell, hello, intents, logger)
	}()

	s.dispatch(ctx, c, factory, surface, shell, intents, logger)

	cancel()
	shell.Close()
	worker.Wait()
	unsubView()
	s.registry.Remove(shell.ID())
	if s.cfg.Limiter != nil {
		s.cfg.Limiter.Forget(ratelimit.KindIntent, shell.ID())
	}
	logger.Info().Str(tvlog.FieldEvent, "remote.disconnect").Msg("player connection closed")
}

// dispatch routes inbound frames until the connection ends. Events are
// delivered inline; intents go to the intent worker so a slow command never
// holds up event delivery.
func (s *Server) dispatch(ctx context.Context, c *Conn, factory *Factory, surface *Surface, shell *player.Shell, intents chan<- Frame, logger zerolog.Logger) {
	for {
		f, err := c.Next(ctx)
		if err != nil {
			return
		}
		switch f.Type {
		case FrameEvent:
			s.deliverEvent(f, factory, surface, shell, logger)
		case FrameIntent:
			if s.cfg.Limiter != nil && !s.cfg.Limiter.Allow(ratelimit.KindIntent, shell.ID()) {
				metrics.IncRemoteIntent(intentLabel(f.Op), ErrRateLimited)
				s.reply(c, f, ErrRateLimited)
				continue
			}
			select {
			case intents <- f:
			default:
				s.reply(c, f, errors.New("remote: too many pending intents"))
			}
		default:
			logger.Debug().Str("frame_type", string(f.Type)).Str(tvlog.FieldEvent, "remote.unexpected_frame").Msg("ignoring frame")
		}
	}
}

func (s *Server) deliverEvent(f Frame, factory *Factory, surface *Surface, shell *player.Shell, logger zerolog.Logger) {
	switch f.Op {
	case SourceEngine:
		var ev EngineEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			logger.Debug().Err(err).Str(tvlog.FieldEvent, "remote.bad_event").Msg("undecodable engine event")
			return
		}
		if !factory.route(f.Instance, ev) {
			logger.Debug().Str(tvlog.FieldInstance, f.Instance).Str(tvlog.FieldEvent, "remote.orphan_event").Msg("event for unknown engine")
		}
	case SourceSurface:
		var ev engine.SurfaceEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			logger.Debug().Err(err).Str(tvlog.FieldEvent, "remote.bad_event").Msg("undecodable surface event")
			return
		}
		surface.deliver(ev)
	case SourceFullscreen:
		var ev FullscreenEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return
		}
		shell.SyncFullscreen(ev.Active)
	}
}

func (s *Server) runIntents(ctx context.Context, c *Conn, shell *player.Shell, hello Hello, intents <-chan Frame, logger zerolog.Logger) {
	if err := shell.Mount(ctx, hello.Target); err != nil {
		logger.Warn().Err(err).Str(tvlog.FieldEvent, "remote.mount_failed").Msg("player mount failed")
		_ = c.Send(Frame{Type: FrameError, Error: err.Error()})
		c.shutdown()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-intents:
			err := s.handleIntent(ctx, shell, f)
			metrics.IncRemoteIntent(intentLabel(f.Op), err)
			s.reply(c, f, err)
			if f.Op == IntentClose {
				c.shutdown()
				return
			}
		}
	}
}

func (s *Server) reply(c *Conn, f Frame, err error) {
	if f.ID == 0 {
		return
	}
	res := Frame{Type: FrameResult, ID: f.ID, Op: f.Op}
	if err != nil {
		res.Error = err.Error()
	}
	_ = c.Send(res)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("remote: missing intent data")
	}
	return json.Unmarshal(data, v)
}

func (s *Server) handleIntent(ctx context.Context, shell *player.Shell, f Frame) error {
	switch f.Op {
	case IntentNext:
		return shell.Next(ctx)
	case IntentPrevious:
		return shell.Previous(ctx)
	case IntentSelect:
		var ch catalog.Channel
		if err := decode(f.Data, &ch); err != nil {
			return err
		}
		return shell.Select(ctx, ch)
	case IntentGroup:
		var p groupPayload
		if err := decode(f.Data, &p); err != nil {
			return err
		}
		return shell.SetGroup(p.Group)
	case IntentTap:
		shell.Tap()
	case IntentActivity:
		shell.Activity()
	case IntentSidebar:
		shell.ToggleSidebar()
	case IntentDropdown:
		var p boolPayload
		if err := decode(f.Data, &p); err != nil {
			return err
		}
		shell.SetDropdownOpen(p.Value)
	case IntentTogglePlay:
		return shell.TogglePlay(ctx)
	case IntentMute:
		var p boolPayload
		if err := decode(f.Data, &p); err != nil {
			return err
		}
		shell.SetMuted(p.Value)
	case IntentVolume:
		var p floatPayload
		if err := decode(f.Data, &p); err != nil {
			return err
		}
		shell.SetVolume(p.Value)
	case IntentQuality:
		var p indexPayload
		if err := decode(f.Data, &p); err != nil {
			return err
		}
		return shell.SetQuality(p.Index)
	case IntentAudio:
		var p indexPayload
		if err := decode(f.Data, &p); err != nil {
			return err
		}
		return shell.SetAudio(p.Index)
	case IntentRetry:
		return shell.Retry(ctx)
	case IntentFullscreen:
		_, err := shell.ToggleFullscreen(ctx)
		return err
	case IntentClose:
		shell.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownIntent, f.Op)
	}
	return nil
}

var knownIntents = map[string]bool{
	IntentNext: true, IntentPrevious: true, IntentSelect: true, IntentGroup: true,
	IntentTap: true, IntentActivity: true, IntentSidebar: true, IntentDropdown: true,
	IntentTogglePlay: true, IntentMute: true, IntentVolume: true, IntentQuality: true,
	IntentAudio: true, IntentRetry: true, IntentFullscreen: true, IntentClose: true,
}

func intentLabel(op string) string {
	if knownIntents[op] {
		return op
	}
	return "unknown"
}
