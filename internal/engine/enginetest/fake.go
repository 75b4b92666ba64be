// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package enginetest provides in-memory engines and surfaces for tests.
// Events are delivered by the test calling Emit, never from inside an
// engine method.
package enginetest

import (
	"context"
	"sync"

	"github.com/ManuGH/livetv/internal/engine"
)

// Engine is a scriptable engine.Engine that records every call.
type Engine struct {
	mu        sync.Mutex
	factory   *Factory
	calls     []string
	source    string
	surface   engine.Surface
	level     int
	auto      bool
	audio     int
	destroyed bool
	listeners map[int]engine.Listener
	ever      []engine.Listener
	nextID    int
}

func newEngine(f *Factory) *Engine {
	return &Engine{
		factory:   f,
		level:     engine.AutoLevel,
		auto:      true,
		audio:     -1,
		listeners: make(map[int]engine.Listener),
	}
}

func (e *Engine) record(call string) {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()
}

func (e *Engine) LoadSource(url string) error {
	e.mu.Lock()
	e.source = url
	e.calls = append(e.calls, "LoadSource")
	e.mu.Unlock()
	return nil
}

func (e *Engine) AttachMedia(s engine.Surface) error {
	e.mu.Lock()
	e.surface = s
	e.calls = append(e.calls, "AttachMedia")
	e.mu.Unlock()
	return nil
}

func (e *Engine) DetachMedia() {
	e.mu.Lock()
	e.surface = nil
	e.calls = append(e.calls, "DetachMedia")
	e.mu.Unlock()
}

func (e *Engine) StopLoad()          { e.record("StopLoad") }
func (e *Engine) StartLoad()         { e.record("StartLoad") }
func (e *Engine) RecoverMediaError() { e.record("RecoverMediaError") }

func (e *Engine) Destroy() {
	e.mu.Lock()
	already := e.destroyed
	e.destroyed = true
	e.calls = append(e.calls, "Destroy")
	e.listeners = map[int]engine.Listener{}
	e.mu.Unlock()
	if !already {
		e.factory.release()
	}
}

func (e *Engine) CurrentLevel() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

func (e *Engine) SetCurrentLevel(index int) {
	e.mu.Lock()
	e.level = index
	e.auto = index == engine.AutoLevel
	e.calls = append(e.calls, "SetCurrentLevel")
	e.mu.Unlock()
}

func (e *Engine) AutoLevelEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.auto
}

// SetAutoLevelEnabled lets tests flip the engine's auto mode.
func (e *Engine) SetAutoLevelEnabled(auto bool) {
	e.mu.Lock()
	e.auto = auto
	e.mu.Unlock()
}

func (e *Engine) AudioTrack() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audio
}

func (e *Engine) SetAudioTrack(index int) {
	e.mu.Lock()
	e.audio = index
	e.calls = append(e.calls, "SetAudioTrack")
	e.mu.Unlock()
}

func (e *Engine) Subscribe(l engine.Listener) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners[id] = l
	e.ever = append(e.ever, l)
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Emit delivers ev to the current listeners on the caller's goroutine.
func (e *Engine) Emit(ev engine.Event) {
	e.mu.Lock()
	ls := make([]engine.Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	e.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

// EmitLate delivers ev to every listener ever subscribed, including removed
// ones. It models a callback that was already in flight when the session
// unsubscribed.
func (e *Engine) EmitLate(ev engine.Event) {
	e.mu.Lock()
	ls := append([]engine.Listener(nil), e.ever...)
	e.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

// Listeners reports how many listeners are subscribed.
func (e *Engine) Listeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// Calls returns the recorded method names in order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Count returns how often call was made.
func (e *Engine) Count(call string) int {
	n := 0
	for _, c := range e.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// Source returns the last loaded URL.
func (e *Engine) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

// Destroyed reports whether Destroy ran.
func (e *Engine) Destroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

// Factory hands out Engines and counts the live ones.
type Factory struct {
	mu          sync.Mutex
	unsupported bool
	engines     []*Engine
	live        int
}

// NewFactory returns a factory reporting engine support.
func NewFactory() *Factory {
	return &Factory{}
}

// SetSupported toggles engine support, forcing the native path when false.
func (f *Factory) SetSupported(ok bool) {
	f.mu.Lock()
	f.unsupported = !ok
	f.mu.Unlock()
}

func (f *Factory) Supported() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unsupported
}

func (f *Factory) New(context.Context) (engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unsupported {
		return nil, engine.ErrNotSupported
	}
	e := newEngine(f)
	f.engines = append(f.engines, e)
	f.live++
	return e, nil
}

func (f *Factory) release() {
	f.mu.Lock()
	f.live--
	f.mu.Unlock()
}

// Live is the number of created engines not yet destroyed.
func (f *Factory) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

// Created is the total number of engines handed out.
func (f *Factory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

// Last returns the most recently created engine, or nil.
func (f *Factory) Last() *Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

// At returns the i-th created engine.
func (f *Factory) At(i int) *Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[i]
}

// Surface is a scriptable engine.Surface.
type Surface struct {
	mu        sync.Mutex
	calls     []string
	source    string
	native    bool
	playErr   error
	muted     bool
	volume    float64
	listeners map[int]func(engine.SurfaceEvent)
	nextID    int
}

// NewSurface returns a surface without native HLS support.
func NewSurface() *Surface {
	return &Surface{volume: 1, listeners: make(map[int]func(engine.SurfaceEvent))}
}

// SetNative toggles native manifest playback support.
func (s *Surface) SetNative(ok bool) {
	s.mu.Lock()
	s.native = ok
	s.mu.Unlock()
}

// SetPlayError makes subsequent Play calls fail with err.
func (s *Surface) SetPlayError(err error) {
	s.mu.Lock()
	s.playErr = err
	s.mu.Unlock()
}

func (s *Surface) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *Surface) SetSource(url string) {
	s.mu.Lock()
	s.source = url
	s.calls = append(s.calls, "SetSource")
	s.mu.Unlock()
}

func (s *Surface) RemoveSource() {
	s.mu.Lock()
	s.source = ""
	s.calls = append(s.calls, "RemoveSource")
	s.mu.Unlock()
}

func (s *Surface) Load()  { s.record("Load") }
func (s *Surface) Pause() { s.record("Pause") }

func (s *Surface) Play(ctx context.Context) error {
	s.mu.Lock()
	s.calls = append(s.calls, "Play")
	err := s.playErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Surface) SetMuted(m bool) {
	s.mu.Lock()
	s.muted = m
	s.calls = append(s.calls, "SetMuted")
	s.mu.Unlock()
}

func (s *Surface) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = v
	s.calls = append(s.calls, "SetVolume")
	s.mu.Unlock()
}

func (s *Surface) CanPlayNative(mime string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.native && mime == engine.MimeHLS
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

// Emit delivers ev to the surface listeners on the caller's goroutine.
func (s *Surface) Emit(ev engine.SurfaceEvent) {
	s.mu.Lock()
	ls := make([]func(engine.SurfaceEvent), 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

// Source returns the current source attribute.
func (s *Surface) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Muted reports the muted flag.
func (s *Surface) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Volume reports the volume.
func (s *Surface) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Calls returns the recorded method names in order.
func (s *Surface) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Listeners reports how many listeners are subscribed.
func (s *Surface) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

var (
	_ engine.Engine  = (*Engine)(nil)
	_ engine.Factory = (*Factory)(nil)
	_ engine.Surface = (*Surface)(nil)
)
