// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session drives one video surface through the lifecycle of a live
// stream: attach, manifest, playback, in-session recovery and teardown.
//
// Every engine callback is tagged with the generation that subscribed it.
// Callbacks from a superseded generation are dropped without touching state,
// so a late manifest from channel A can never overwrite channel B.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/livetv/internal/engine"
	tvlog "github.com/ManuGH/livetv/internal/log"
	"github.com/ManuGH/livetv/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	// ErrUnsupported is returned for quality/audio control on the native path.
	ErrUnsupported = errors.New("session: control not available on native playback")
	// ErrNoSession is returned when no stream is attached.
	ErrNoSession = errors.New("session: no active stream")
	// ErrInvalidIndex is returned for an out of range level or track.
	ErrInvalidIndex = errors.New("session: index out of range")
	// ErrNotRetryable is returned by Retry outside the errored state.
	ErrNotRetryable = errors.New("session: nothing to retry")
	// ErrNoPlayback is returned when neither an engine nor native playback is available.
	ErrNoPlayback = errors.New("session: no playback method available")
	// ErrClosed is returned by Attach and Retry after Close.
	ErrClosed = errors.New("session: closed")
)

const (
	defaultMaxNetworkRetries = 3
	defaultRetryWindow       = 30 * time.Second
)

// Snapshot is a copy of the session state for rendering.
type Snapshot struct {
	ID           string         `json:"id,omitempty"`
	Generation   uint64         `json:"generation"`
	URL          string         `json:"url,omitempty"`
	State        State          `json:"state"`
	Levels       []engine.Level `json:"levels"`
	CurrentLevel int            `json:"currentLevel"`
	AutoLevel    bool           `json:"autoLevel"`
	QualityLabel string         `json:"qualityLabel,omitempty"`
	AudioTracks  []engine.Track `json:"audioTracks"`
	CurrentAudio int            `json:"currentAudio"`
	Native       bool           `json:"native"`
	Muted        bool           `json:"muted"`
	Volume       float64        `json:"volume"`
	Err          string         `json:"error,omitempty"`
}

// Recorder is told about every stream that attached successfully.
type Recorder interface {
	Attached(ctx context.Context, snap Snapshot)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithRetryBudget bounds network-fatal reloads to max per window.
func WithRetryBudget(max int, window time.Duration) Option {
	return func(c *Controller) {
		if max > 0 {
			c.maxRetries = max
		}
		if window > 0 {
			c.retryWindow = window
		}
	}
}

// WithRecorder registers a hook for successful attaches.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// Controller owns one video surface and at most one engine instance.
type Controller struct {
	factory     engine.Factory
	surface     engine.Surface
	logger      zerolog.Logger
	recorder    Recorder
	maxRetries  int
	retryWindow time.Duration

	// opMu serializes Attach, TearDown, Retry and Close.
	opMu   sync.Mutex
	closed bool // guarded by opMu

	// plays tracks play requests started from engine callbacks.
	plays sync.WaitGroup

	mu         sync.Mutex
	state      State
	id         string
	gen        uint64
	url        string
	eng        engine.Engine
	unsubs     []func()
	bound      bool
	sessCtx    context.Context
	sessCancel context.CancelFunc
	limiter    *rate.Limiter
	recovered  bool

	levels      []engine.Level
	curLevel    int
	auto        bool
	label       string
	tracks      []engine.Track
	curAudio    int
	native      bool
	muted       bool
	volume      float64
	errMsg      string
	subscribers map[uint64]func(Snapshot)
	nextSub     uint64
}

// New returns an idle controller bound to surface.
func New(factory engine.Factory, surface engine.Surface, opts ...Option) *Controller {
	c := &Controller{
		factory:     factory,
		surface:     surface,
		logger:      tvlog.WithComponent("session"),
		maxRetries:  defaultMaxNetworkRetries,
		retryWindow: defaultRetryWindow,
		state:       StateIdle,
		curLevel:    engine.AutoLevel,
		auto:        true,
		curAudio:    -1,
		volume:      1,
		subscribers: make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach tears down the current stream and starts url on a fresh engine.
// The recorder is told after the attach completes, outside the op lock.
func (c *Controller) Attach(ctx context.Context, url string) error {
	c.opMu.Lock()
	snap, ok, err := c.attach(ctx, url)
	c.opMu.Unlock()

	if ok && c.recorder != nil {
		c.recorder.Attached(ctx, snap)
	}
	return err
}

// attach does the work of Attach. The bool reports a stream worth recording.
// Caller must hold opMu.
func (c *Controller) attach(ctx context.Context, url string) (Snapshot, bool, error) {
	if c.closed {
		return Snapshot{}, false, ErrClosed
	}
	c.tearDown("attach")

	c.mu.Lock()
	if !c.apply(EvAttach) {
		c.mu.Unlock()
		return Snapshot{}, false, fmt.Errorf("session: cannot attach from state %s", c.state)
	}
	c.gen++
	gen := c.gen
	c.id = uuid.NewString()
	c.url = url
	c.resetStreamState()
	c.sessCtx, c.sessCancel = context.WithCancel(context.WithoutCancel(ctx))
	every := rate.Every(c.retryWindow / time.Duration(c.maxRetries))
	c.limiter = rate.NewLimiter(every, c.maxRetries)
	logger := c.sessionLogger()
	c.mu.Unlock()
	c.notify()

	logger.Info().
		Str(tvlog.FieldEvent, "session.attach").
		Str(tvlog.FieldStreamURL, url).
		Msg("attaching stream")

	native := false
	var eng engine.Engine
	if c.factory != nil && c.factory.Supported() {
		e, err := c.factory.New(ctx)
		if err != nil && !errors.Is(err, engine.ErrNotSupported) {
			metrics.IncSessionAttach(false, false)
			c.fail(gen, fmt.Sprintf("engine construction failed: %v", err))
			return Snapshot{}, false, fmt.Errorf("session: new engine: %w", err)
		}
		eng = e
	}
	if eng == nil {
		if !c.surface.CanPlayNative(engine.MimeHLS) {
			metrics.IncSessionAttach(false, false)
			c.fail(gen, ErrNoPlayback.Error())
			return Snapshot{}, false, ErrNoPlayback
		}
		native = true
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if eng != nil {
			eng.Destroy()
		}
		return Snapshot{}, false, nil
	}
	c.native = native
	c.eng = eng
	c.bound = true
	c.unsubs = append(c.unsubs, c.surface.Subscribe(func(ev engine.SurfaceEvent) { c.onSurfaceEvent(gen, ev) }))
	if eng != nil {
		c.unsubs = append(c.unsubs, eng.Subscribe(func(ev engine.Event) { c.onEngineEvent(gen, ev) }))
	}
	c.mu.Unlock()
	metrics.SessionsActive.Inc()

	if native {
		c.surface.SetSource(url)
		c.surface.Load()
	} else {
		if err := eng.AttachMedia(c.surface); err != nil {
			metrics.IncSessionAttach(false, false)
			c.fail(gen, fmt.Sprintf("attach media: %v", err))
			return Snapshot{}, false, fmt.Errorf("session: attach media: %w", err)
		}
		if err := eng.LoadSource(url); err != nil {
			metrics.IncSessionAttach(false, false)
			c.fail(gen, fmt.Sprintf("load source: %v", err))
			return Snapshot{}, false, fmt.Errorf("session: load source: %w", err)
		}
	}
	metrics.IncSessionAttach(native, true)
	return c.Snapshot(), true, nil
}

// TearDown releases the engine and the surface. It is idempotent and the
// controller can Attach again afterwards.
func (c *Controller) TearDown() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.tearDown("teardown")
}

// Close tears the session down for good: Attach fails with ErrClosed
// afterwards. It waits for pending play requests, which the
// teardown cancels.
func (c *Controller) Close() {
	c.opMu.Lock()
	c.closed = true
	c.tearDown("close")
	c.opMu.Unlock()
	c.plays.Wait()
}

// Retry rebuilds an errored session on the same URL.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	state, url := c.state, c.url
	c.mu.Unlock()
	if state != StateErrored || url == "" {
		return ErrNotRetryable
	}
	return c.Attach(ctx, url)
}

func (c *Controller) tearDown(reason string) {
	c.mu.Lock()
	if c.state == StateTornDown {
		c.mu.Unlock()
		return
	}
	c.apply(EvTearDown)
	c.gen++
	res := c.detachLocked()
	logger := c.sessionLogger()
	c.mu.Unlock()

	c.release(res)
	if res.wasBound {
		metrics.SessionTeardownTotal.Inc()
	}
	logger.Debug().
		Str(tvlog.FieldEvent, "session.teardown").
		Str("reason", reason).
		Msg("session torn down")
	c.notify()
}

type resources struct {
	eng      engine.Engine
	unsubs   []func()
	cancel   context.CancelFunc
	wasBound bool
}

// detachLocked hands the session's resources to the caller. Caller must hold mu.
func (c *Controller) detachLocked() resources {
	res := resources{eng: c.eng, unsubs: c.unsubs, cancel: c.sessCancel, wasBound: c.bound}
	c.eng = nil
	c.unsubs = nil
	c.sessCancel = nil
	c.bound = false
	return res
}

// release stops load, detaches media, empties the surface, destroys the
// engine and drops the subscriptions, in that order.
func (c *Controller) release(res resources) {
	if res.cancel != nil {
		res.cancel()
	}
	if res.eng != nil {
		res.eng.StopLoad()
		res.eng.DetachMedia()
	}
	if res.wasBound {
		c.surface.RemoveSource()
		c.surface.Load()
		metrics.SessionsActive.Dec()
	}
	if res.eng != nil {
		res.eng.Destroy()
	}
	for _, unsub := range res.unsubs {
		unsub()
	}
}

// fail moves gen to errored and releases its engine. The session id and URL
// are kept for Retry.
func (c *Controller) fail(gen uint64, reason string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if !c.apply(EvFatal) {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.errMsg = reason
	res := c.detachLocked()
	logger := c.sessionLogger()
	c.mu.Unlock()

	logger.Error().
		Str(tvlog.FieldEvent, "session.errored").
		Str("reason", reason).
		Msg("stream failed")
	c.release(res)
	c.notify()
}

func (c *Controller) onEngineEvent(gen uint64, ev engine.Event) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		metrics.SessionStaleEvents.Inc()
		c.logger.Debug().
			Str(tvlog.FieldEvent, "session.stale_event").
			Uint64(tvlog.FieldGeneration, gen).
			Str("kind", string(ev.Kind)).
			Msg("dropping event from superseded session")
		return
	}
	eng := c.eng

	switch ev.Kind {
	case engine.EventManifestParsed:
		if !c.apply(EvMediaReady) {
			c.mu.Unlock()
			return
		}
		c.levels = append([]engine.Level(nil), ev.Levels...)
		c.curLevel = engine.AutoLevel
		c.auto = true
		c.label = LabelAuto
		ctx := c.sessCtx
		c.mu.Unlock()

		if eng != nil {
			eng.SetCurrentLevel(engine.AutoLevel)
		}
		c.notify()
		c.playAsync(ctx, gen)

	case engine.EventLevelSwitched:
		auto := eng != nil && eng.AutoLevelEnabled()
		height := c.levelHeight(ev.Level)
		c.auto = auto
		c.label = QualityLabel(height, auto)
		logger := c.sessionLogger()
		c.mu.Unlock()

		logger.Debug().
			Str(tvlog.FieldEvent, "session.level_switched").
			Int(tvlog.FieldLevel, ev.Level).
			Int(tvlog.FieldResolution, height).
			Msg("level switched")
		c.notify()

	case engine.EventAudioTracksUpdated:
		c.tracks = append([]engine.Track(nil), ev.Tracks...)
		if c.curAudio < 0 && eng != nil {
			c.curAudio = eng.AudioTrack()
		}
		c.mu.Unlock()
		c.notify()

	case engine.EventError:
		c.mu.Unlock()
		if ev.Error != nil {
			c.onEngineError(gen, eng, *ev.Error)
		}

	default:
		c.mu.Unlock()
	}
}

func (c *Controller) onEngineError(gen uint64, eng engine.Engine, e engine.ErrorData) {
	metrics.IncEngineError(string(e.Type), e.Fatal)
	c.mu.Lock()
	logger := c.sessionLogger().With().
		Str(tvlog.FieldErrorType, string(e.Type)).
		Bool(tvlog.FieldFatal, e.Fatal).
		Str("details", e.Details).
		Logger()

	if !e.Fatal {
		c.mu.Unlock()
		logger.Debug().Str(tvlog.FieldEvent, "session.engine_warning").Msg("non-fatal engine error")
		return
	}

	switch e.Type {
	case engine.ErrorNetwork:
		if c.limiter != nil && c.limiter.Allow() {
			c.mu.Unlock()
			metrics.SessionRecoveryTotal.WithLabelValues("network").Inc()
			logger.Warn().Str(tvlog.FieldEvent, "session.recover_network").Msg("network error, reloading")
			eng.StartLoad()
			return
		}
		c.mu.Unlock()
		logger.Error().Str(tvlog.FieldEvent, "session.retry_budget_exhausted").Msg("network retries exhausted")
		c.fail(gen, "network error: "+e.Details)

	case engine.ErrorMedia:
		if !c.recovered {
			c.recovered = true
			c.mu.Unlock()
			metrics.SessionRecoveryTotal.WithLabelValues("media").Inc()
			logger.Warn().Str(tvlog.FieldEvent, "session.recover_media").Msg("media error, recovering")
			eng.RecoverMediaError()
			return
		}
		c.mu.Unlock()
		c.fail(gen, "media error: "+e.Details)

	default:
		c.mu.Unlock()
		c.fail(gen, "playback error: "+e.Details)
	}
}

func (c *Controller) onSurfaceEvent(gen uint64, ev engine.SurfaceEvent) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		metrics.SessionStaleEvents.Inc()
		return
	}
	native := c.native
	ctx := c.sessCtx

	switch ev.Kind {
	case engine.SurfaceLoaded:
		if !native || !c.apply(EvMediaReady) {
			c.mu.Unlock()
			return
		}
		c.label = ""
		c.mu.Unlock()
		c.notify()
		c.playAsync(ctx, gen)

	case engine.SurfaceError:
		c.mu.Unlock()
		if native {
			c.fail(gen, "native playback error: "+ev.Detail)
		}

	case engine.SurfacePlaying:
		changed := c.state != StatePlaying && c.apply(EvPlaying)
		if changed {
			c.errMsg = ""
		}
		c.mu.Unlock()
		if changed {
			c.notify()
		}

	case engine.SurfacePaused:
		changed := c.state == StatePlaying && c.apply(EvPaused)
		c.mu.Unlock()
		if changed {
			c.notify()
		}

	default:
		c.mu.Unlock()
	}
}

// playAsync starts playback for gen without blocking the caller, so engine
// and surface callbacks keep flowing while the client settles the request.
// ctx is the session context; teardown cancels it.
func (c *Controller) playAsync(ctx context.Context, gen uint64) {
	if ctx == nil {
		return
	}
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.plays.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.plays.Done()
		c.startPlayback(ctx, gen)
	}()
}

// startPlayback requests playback for gen. An aborted request is benign; any
// other failure pauses the session without tearing it down.
func (c *Controller) startPlayback(ctx context.Context, gen uint64) {
	if ctx == nil {
		return
	}
	err := c.surface.Play(ctx)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	logger := c.sessionLogger()
	switch {
	case err == nil:
		if c.state != StatePlaying {
			c.apply(EvPlaying)
		}
		c.errMsg = ""
	case errors.Is(err, engine.ErrPlayAborted) || errors.Is(err, context.Canceled):
		c.mu.Unlock()
		logger.Debug().Str(tvlog.FieldEvent, "session.play_aborted").Msg("play request aborted")
		return
	default:
		if c.state != StatePaused {
			c.apply(EvPaused)
		}
		c.errMsg = err.Error()
		logger.Warn().Err(err).Str(tvlog.FieldEvent, "session.play_failed").Msg("playback did not start")
	}
	c.mu.Unlock()
	c.notify()
}

// Play resumes a ready or paused session.
func (c *Controller) Play(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateReady && c.state != StatePaused {
		c.mu.Unlock()
		return ErrNoSession
	}
	gen := c.gen
	sessCtx := c.sessCtx
	c.mu.Unlock()

	// The request is bound to both the caller and the session.
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sessCtx, cancel)
	defer stop()

	c.startPlayback(pctx, gen)
	return nil
}

// Pause pauses a playing session.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.state != StatePlaying {
		c.mu.Unlock()
		return ErrNoSession
	}
	c.apply(EvPaused)
	c.mu.Unlock()

	c.surface.Pause()
	c.notify()
	return nil
}

// SetLevel selects a quality level; engine.AutoLevel restores automatic switching.
func (c *Controller) SetLevel(index int) error {
	c.mu.Lock()
	if c.native {
		c.mu.Unlock()
		return ErrUnsupported
	}
	eng := c.eng
	if eng == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if index < engine.AutoLevel || index >= len(c.levels) {
		c.mu.Unlock()
		return ErrInvalidIndex
	}
	c.curLevel = index
	c.auto = index == engine.AutoLevel
	if c.auto {
		c.label = LabelAuto
	} else {
		c.label = QualityLabel(c.levels[index].Height, false)
	}
	c.mu.Unlock()

	eng.SetCurrentLevel(index)
	c.notify()
	return nil
}

// SetAudioTrack selects an audio track.
func (c *Controller) SetAudioTrack(index int) error {
	c.mu.Lock()
	if c.native {
		c.mu.Unlock()
		return ErrUnsupported
	}
	eng := c.eng
	if eng == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if index < 0 || index >= len(c.tracks) {
		c.mu.Unlock()
		return ErrInvalidIndex
	}
	c.curAudio = index
	c.mu.Unlock()

	eng.SetAudioTrack(index)
	c.notify()
	return nil
}

// SetMuted mutes or unmutes the surface.
func (c *Controller) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
	c.surface.SetMuted(muted)
	c.notify()
}

// SetVolume sets the surface volume, clamped to [0, 1].
func (c *Controller) SetVolume(v float64) {
	switch {
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	c.mu.Lock()
	c.volume = v
	c.mu.Unlock()
	c.surface.SetVolume(v)
	c.notify()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// OnChange registers fn for every state change. Callbacks run outside the
// controller lock and must not block.
func (c *Controller) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subscribers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		ID:           c.id,
		Generation:   c.gen,
		URL:          c.url,
		State:        c.state,
		Levels:       append([]engine.Level{}, c.levels...),
		CurrentLevel: c.curLevel,
		AutoLevel:    c.auto,
		QualityLabel: c.label,
		AudioTracks:  append([]engine.Track{}, c.tracks...),
		CurrentAudio: c.curAudio,
		Native:       c.native,
		Muted:        c.muted,
		Volume:       c.volume,
		Err:          c.errMsg,
	}
}

// apply performs ev on the current state. Illegal transitions are logged and
// ignored. Caller must hold mu.
func (c *Controller) apply(ev EventKind) bool {
	tr, ok := TransitionFor(c.state, ev)
	if !ok {
		c.logger.Debug().
			Str(tvlog.FieldEvent, "session.illegal_transition").
			Str(tvlog.FieldOldState, string(c.state)).
			Str("transition", string(ev)).
			Msg("ignoring illegal transition")
		return false
	}
	if tr.To != c.state {
		c.logger.Debug().
			Str(tvlog.FieldEvent, "session.transition").
			Str(tvlog.FieldSessionID, c.id).
			Str(tvlog.FieldOldState, string(c.state)).
			Str(tvlog.FieldNewState, string(tr.To)).
			Msg("session state changed")
	}
	c.state = tr.To
	return true
}

// levelHeight returns the native height of the level with the given index.
// Caller must hold mu.
func (c *Controller) levelHeight(index int) int {
	for _, l := range c.levels {
		if l.Index == index {
			return l.Height
		}
	}
	if index >= 0 && index < len(c.levels) {
		return c.levels[index].Height
	}
	return 0
}

// resetStreamState clears per-stream fields. Caller must hold mu.
func (c *Controller) resetStreamState() {
	c.levels = nil
	c.curLevel = engine.AutoLevel
	c.auto = true
	c.label = ""
	c.tracks = nil
	c.curAudio = -1
	c.native = false
	c.errMsg = ""
	c.recovered = false
}

// sessionLogger returns the logger tagged with the current session. Caller must hold mu.
func (c *Controller) sessionLogger() zerolog.Logger {
	return c.logger.With().
		Str(tvlog.FieldSessionID, c.id).
		Uint64(tvlog.FieldGeneration, c.gen).
		Logger()
}
