// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ManuGH/livetv/internal/engine"
	"github.com/ManuGH/livetv/internal/fullscreen"
	"github.com/google/uuid"
)

// Factory creates engines that live in the client tab.
type Factory struct {
	conn *Conn
	caps Capabilities

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewFactory returns a factory bound to conn.
func NewFactory(conn *Conn, caps Capabilities) *Factory {
	return &Factory{conn: conn, caps: caps, engines: make(map[string]*Engine)}
}

// Supported reports whether the client ships an adaptive-streaming engine.
func (f *Factory) Supported() bool { return f.caps.Engine }

// New asks the client to create an engine instance.
func (f *Factory) New(ctx context.Context) (engine.Engine, error) {
	if !f.caps.Engine {
		return nil, engine.ErrNotSupported
	}
	e := &Engine{
		factory:   f,
		id:        uuid.NewString(),
		level:     engine.AutoLevel,
		auto:      true,
		audio:     -1,
		listeners: make(map[uint64]engine.Listener),
	}
	// Registered before the create call so no early event is lost.
	f.mu.Lock()
	f.engines[e.id] = e
	f.mu.Unlock()

	if _, err := f.conn.Call(ctx, OpEngineCreate, e.id, nil); err != nil {
		f.forget(e.id)
		return nil, fmt.Errorf("remote: create engine: %w", err)
	}
	return e, nil
}

// Live returns the number of engines not yet destroyed.
func (f *Factory) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func (f *Factory) forget(id string) {
	f.mu.Lock()
	delete(f.engines, id)
	f.mu.Unlock()
}

// route delivers ev to the engine it belongs to. Events of destroyed
// engines are dropped.
func (f *Factory) route(instance string, ev EngineEvent) bool {
	f.mu.Lock()
	e, ok := f.engines[instance]
	f.mu.Unlock()
	if !ok {
		return false
	}
	e.deliver(ev)
	return true
}

// Engine proxies engine.Engine onto the client. Property reads come from the
// state mirrored with each event; writes are sent as commands.
type Engine struct {
	factory *Factory
	id      string

	mu        sync.Mutex
	level     int
	auto      bool
	audio     int
	destroyed bool
	listeners map[uint64]engine.Listener
	nextID    uint64
}

// ID is the client-side instance id.
func (e *Engine) ID() string { return e.id }

func (e *Engine) command(op string, data any) error {
	e.mu.Lock()
	destroyed := e.destroyed
	e.mu.Unlock()
	if destroyed {
		return engine.ErrDetached
	}
	return e.factory.conn.Command(op, e.id, data)
}

func (e *Engine) LoadSource(url string) error {
	return e.command(OpEngineLoadSource, sourcePayload{URL: url})
}

// AttachMedia binds the engine to the client's single video element.
func (e *Engine) AttachMedia(s engine.Surface) error {
	if _, ok := s.(*Surface); !ok {
		return errors.New("remote: engine can only attach a remote surface")
	}
	return e.command(OpEngineAttachMedia, nil)
}

func (e *Engine) DetachMedia()       { _ = e.command(OpEngineDetachMedia, nil) }
func (e *Engine) StopLoad()          { _ = e.command(OpEngineStopLoad, nil) }
func (e *Engine) StartLoad()         { _ = e.command(OpEngineStartLoad, nil) }
func (e *Engine) RecoverMediaError() { _ = e.command(OpEngineRecoverMedia, nil) }

// Destroy releases the client instance. Later events for it are dropped.
func (e *Engine) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.mu.Unlock()

	e.factory.forget(e.id)
	_ = e.factory.conn.Command(OpEngineDestroy, e.id, nil)
}

func (e *Engine) CurrentLevel() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

// SetCurrentLevel selects a level; AutoLevel re-enables adaptive selection.
func (e *Engine) SetCurrentLevel(index int) {
	e.mu.Lock()
	e.level = index
	e.auto = index == engine.AutoLevel
	e.mu.Unlock()
	_ = e.command(OpEngineSetLevel, indexPayload{Index: index})
}

func (e *Engine) AutoLevelEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.auto
}

func (e *Engine) AudioTrack() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audio
}

func (e *Engine) SetAudioTrack(index int) {
	e.mu.Lock()
	e.audio = index
	e.mu.Unlock()
	_ = e.command(OpEngineSetAudioTrack, indexPayload{Index: index})
}

func (e *Engine) Subscribe(l engine.Listener) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners[id] = l
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *Engine) deliver(ev EngineEvent) {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	if ev.State != nil {
		e.level = ev.State.Level
		e.auto = ev.State.AutoLevel
		e.audio = ev.State.AudioTrack
	}
	ls := make([]engine.Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	e.mu.Unlock()

	for _, l := range ls {
		l(ev.Event)
	}
}

// Surface proxies the client's video element.
type Surface struct {
	conn *Conn
	caps Capabilities

	mu        sync.Mutex
	listeners map[uint64]func(engine.SurfaceEvent)
	nextID    uint64
}

// NewSurface returns the surface of conn's player.
func NewSurface(conn *Conn, caps Capabilities) *Surface {
	return &Surface{conn: conn, caps: caps, listeners: make(map[uint64]func(engine.SurfaceEvent))}
}

func (s *Surface) SetSource(url string) {
	_ = s.conn.Command(OpSurfaceSetSource, "", sourcePayload{URL: url})
}

func (s *Surface) RemoveSource() { _ = s.conn.Command(OpSurfaceRemoveSource, "", nil) }
func (s *Surface) Load()         { _ = s.conn.Command(OpSurfaceLoad, "", nil) }
func (s *Surface) Pause()        { _ = s.conn.Command(OpSurfacePause, "", nil) }

func (s *Surface) SetMuted(muted bool) {
	_ = s.conn.Command(OpSurfaceMuted, "", boolPayload{Value: muted})
}

func (s *Surface) SetVolume(v float64) {
	_ = s.conn.Command(OpSurfaceVolume, "", floatPayload{Value: v})
}

// Play waits for the client's play promise to settle.
func (s *Surface) Play(ctx context.Context) error {
	res, err := s.conn.Call(ctx, OpSurfacePlay, "", nil)
	if err != nil && res.Code == CodeAborted {
		return fmt.Errorf("%w: %s", engine.ErrPlayAborted, res.Error)
	}
	return err
}

func (s *Surface) CanPlayNative(mime string) bool {
	return s.caps.NativeHLS && mime == engine.MimeHLS
}

func (s *Surface) Subscribe(fn func(engine.SurfaceEvent)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Surface) deliver(ev engine.SurfaceEvent) {
	s.mu.Lock()
	fns := make([]func(engine.SurfaceEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// fullscreenAPI is one vendor variant offered by the client.
type fullscreenAPI struct {
	conn    *Conn
	variant string
}

// FullscreenHost builds a host over the variants the client reported, in
// preference order.
func FullscreenHost(conn *Conn, caps Capabilities) *fullscreen.Host {
	offered := make(map[string]bool, len(caps.Fullscreen))
	for _, v := range caps.Fullscreen {
		offered[v] = true
	}
	var apis []fullscreen.API
	for _, v := range fullscreen.Variants {
		if offered[v] {
			apis = append(apis, &fullscreenAPI{conn: conn, variant: v})
		}
	}
	return fullscreen.NewHost(apis...)
}

func (a *fullscreenAPI) Name() string    { return a.variant }
func (a *fullscreenAPI) Available() bool { return true }

func (a *fullscreenAPI) Request(ctx context.Context) error {
	_, err := a.conn.Call(ctx, OpFullscreenRequest, "", variantPayload{Variant: a.variant})
	return err
}

func (a *fullscreenAPI) Exit(ctx context.Context) error {
	_, err := a.conn.Call(ctx, OpFullscreenExit, "", variantPayload{Variant: a.variant})
	return err
}
