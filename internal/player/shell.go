// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package player composes catalog navigation, the stream session, controls
// visibility and fullscreen into one mounted player.
package player

import (
	"context"
	"errors"
	"sync"

	"github.com/ManuGH/livetv/internal/catalog"
	"github.com/ManuGH/livetv/internal/controls"
	"github.com/ManuGH/livetv/internal/engine"
	"github.com/ManuGH/livetv/internal/fullscreen"
	"github.com/ManuGH/livetv/internal/history"
	tvlog "github.com/ManuGH/livetv/internal/log"
	"github.com/ManuGH/livetv/internal/navigator"
	"github.com/ManuGH/livetv/internal/session"
	"github.com/ManuGH/livetv/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = telemetry.Tracer("livetv/player")

var (
	// ErrClosed is returned by operations on a closed shell.
	ErrClosed = errors.New("player: closed")
	// ErrAlreadyMounted is returned by a second Mount.
	ErrAlreadyMounted = errors.New("player: already mounted")
	// ErrNotMounted is returned before Mount.
	ErrNotMounted = errors.New("player: not mounted")
	// ErrUnknownGroup is returned by SetGroup for a group not in the list.
	ErrUnknownGroup = errors.New("player: unknown group")
	// ErrInvalidTarget is returned by Mount for a target without URL.
	ErrInvalidTarget = errors.New("player: target has no stream url")
)

// Catalog is the part of the catalog cache the shell reads.
type Catalog interface {
	Channels(ctx context.Context, playlistID string) []catalog.Channel
	Status(key string) catalog.Status
	SubscribeChannels(playlistID string, fn func([]catalog.Channel)) (unsubscribe func())
}

// History records watched channels.
type History interface {
	Record(ctx context.Context, e history.Entry) error
}

// Deps wires a Shell.
type Deps struct {
	ID         string
	Catalog    Catalog
	Factory    engine.Factory
	Surface    engine.Surface
	Fullscreen *fullscreen.Host
	History    History
	Logger     *zerolog.Logger

	SessionOptions  []session.Option
	ControlsOptions []controls.Option

	// OnExit navigates back to the previous screen.
	OnExit func()
}

// View is everything the client renders.
type View struct {
	PlayerID            string            `json:"playerId"`
	Current             navigator.Target  `json:"current"`
	Index               int               `json:"index"`
	Channels            []catalog.Channel `json:"channels"`
	Groups              []string          `json:"groups"`
	Group               string            `json:"group,omitempty"`
	CatalogStatus       catalog.Status    `json:"catalogStatus"`
	Session             session.Snapshot  `json:"session"`
	Controls            controls.Snapshot `json:"controls"`
	Fullscreen          bool              `json:"fullscreen"`
	FullscreenSupported bool              `json:"fullscreenSupported"`
	Closed              bool              `json:"closed"`
}

// Shell is one mounted player.
type Shell struct {
	id       string
	catalog  Catalog
	session  *session.Controller
	controls *controls.Machine
	fs       *fullscreen.Host
	history  History
	onExit   func()
	logger   zerolog.Logger

	mu       sync.Mutex
	mounted  bool
	closed   bool
	current  navigator.Target
	pending  navigator.Target
	channels []catalog.Channel
	group    string
	unsubs   []func()
	views    map[uint64]func(View)
	nextView uint64

	// notifyMu keeps view deliveries in snapshot order.
	notifyMu  sync.Mutex
	closeOnce sync.Once
}

// New builds an unmounted shell.
func New(deps Deps) *Shell {
	id := deps.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := tvlog.WithComponent("player")
	if deps.Logger != nil {
		logger = *deps.Logger
	}
	logger = logger.With().Str(tvlog.FieldPlayerID, id).Logger()

	s := &Shell{
		id:       id,
		catalog:  deps.Catalog,
		fs:       deps.Fullscreen,
		history:  deps.History,
		onExit:   deps.OnExit,
		logger:   logger,
		controls: controls.New(deps.ControlsOptions...),
		views:    make(map[uint64]func(View)),
	}
	if s.fs == nil {
		s.fs = fullscreen.NewHost()
	}

	sessOpts := append([]session.Option{
		session.WithLogger(tvlog.WithComponent("session").With().Str(tvlog.FieldPlayerID, id).Logger()),
		session.WithRecorder(s),
	}, deps.SessionOptions...)
	s.session = session.New(deps.Factory, deps.Surface, sessOpts...)

	s.unsubs = append(s.unsubs,
		s.session.OnChange(func(snap session.Snapshot) {
			switch snap.State {
			case session.StatePaused:
				s.controls.SetPaused(true)
			case session.StatePlaying:
				s.controls.SetPaused(false)
			}
			s.notify()
		}),
		s.controls.OnChange(func(controls.Snapshot) { s.notify() }),
	)
	return s
}

// ID returns the player id.
func (s *Shell) ID() string { return s.id }

// Mount enters the player with target. The first channel always comes from
// the target; the playlist is loaded for navigation afterwards.
func (s *Shell) Mount(ctx context.Context, target navigator.Target) error {
	if target.URL == "" {
		return ErrInvalidTarget
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.mounted {
		s.mu.Unlock()
		return ErrAlreadyMounted
	}
	s.mounted = true
	s.current = target
	s.pending = target
	if s.catalog != nil && target.PlaylistID != "" {
		s.unsubs = append(s.unsubs, s.catalog.SubscribeChannels(target.PlaylistID, s.setChannels))
	}
	s.mu.Unlock()

	s.logger.Info().
		Str(tvlog.FieldEvent, "player.mount").
		Str(tvlog.FieldPlaylistID, target.PlaylistID).
		Str(tvlog.FieldChannel, target.Name).
		Msg("player mounted")

	s.attach(ctx, "player.mount", target)
	s.notify()

	if s.catalog != nil && target.PlaylistID != "" {
		s.setChannels(s.catalog.Channels(ctx, target.PlaylistID))
	}
	return nil
}

func (s *Shell) setChannels(chs []catalog.Channel) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.channels = chs
	if s.group != "" && !containsGroup(chs, s.group) {
		s.group = ""
	}
	s.mu.Unlock()
	s.notify()
}

func containsGroup(chs []catalog.Channel, group string) bool {
	for _, ch := range chs {
		if ch.Group == group {
			return true
		}
	}
	return false
}

// activeLocked returns the group-filtered list. Caller must hold mu.
func (s *Shell) activeLocked() []catalog.Channel {
	return navigator.FilterByGroup(s.channels, s.group)
}

// Next switches to the next channel of the active list.
func (s *Shell) Next(ctx context.Context) error {
	return s.step(ctx, navigator.Next)
}

// Previous switches to the previous channel of the active list.
func (s *Shell) Previous(ctx context.Context) error {
	return s.step(ctx, navigator.Previous)
}

func (s *Shell) step(ctx context.Context, move func(string, []catalog.Channel) (catalog.Channel, bool)) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	list := s.activeLocked()
	cur := s.current.URL
	s.mu.Unlock()

	ch, ok := move(cur, list)
	if !ok {
		return nil
	}
	return s.switchTo(ctx, ch)
}

// Select enters ch, the "channel selected" entry used by sidebar and grid.
func (s *Shell) Select(ctx context.Context, ch catalog.Channel) error {
	s.mu.Lock()
	err := s.usableLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if ch.URL == "" {
		return ErrInvalidTarget
	}
	return s.switchTo(ctx, ch)
}

// switchTo attaches ch, then updates the displayed name and logo.
func (s *Shell) switchTo(ctx context.Context, ch catalog.Channel) error {
	s.mu.Lock()
	target := navigator.Resolve(ch, s.current.PlaylistID)
	s.pending = target
	s.mu.Unlock()

	s.attach(ctx, "player.switch", target)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.current = target
	s.mu.Unlock()

	s.logger.Debug().
		Str(tvlog.FieldEvent, "player.channel_changed").
		Str(tvlog.FieldChannel, target.Name).
		Msg("channel changed")
	s.notify()
	return nil
}

// attach starts target on the session. A failed attach leaves the session
// errored with a retry affordance, so it is logged rather than returned.
func (s *Shell) attach(ctx context.Context, spanName string, target navigator.Target) {
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithAttributes(telemetry.ChannelAttributes(s.id, target.PlaylistID, target.Name, target.URL)...))
	defer span.End()

	if err := s.session.Attach(ctx, target.URL); err != nil {
		if errors.Is(err, session.ErrClosed) {
			span.SetAttributes(attribute.Bool("player.closed", true))
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "attach failed")
		s.logger.Warn().Err(err).Str(tvlog.FieldEvent, "player.attach_failed").Str(tvlog.FieldChannel, target.Name).Msg("channel attach failed")
		return
	}
	snap := s.session.Snapshot()
	span.SetAttributes(telemetry.SessionAttributes(snap.ID, snap.Generation, snap.Native)...)
}

// Attached implements session.Recorder.
func (s *Shell) Attached(ctx context.Context, snap session.Snapshot) {
	if s.history == nil {
		return
	}
	s.mu.Lock()
	t := s.pending
	s.mu.Unlock()
	if t.URL != snap.URL {
		// Superseded by a newer switch before it could be recorded.
		return
	}

	err := s.history.Record(ctx, history.Entry{
		PlaylistID:  t.PlaylistID,
		ChannelURL:  snap.URL,
		ChannelName: t.Name,
		SessionID:   snap.ID,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str(tvlog.FieldEvent, "player.history_failed").Msg("could not record watch history")
	}
}

// SetGroup narrows navigation to group; "" clears the filter.
func (s *Shell) SetGroup(group string) error {
	s.mu.Lock()
	if group != "" && !containsGroup(s.channels, group) {
		s.mu.Unlock()
		return ErrUnknownGroup
	}
	s.group = group
	s.mu.Unlock()
	s.notify()
	return nil
}

// Tap handles a tap on the video surface.
func (s *Shell) Tap() { s.controls.TapSurface() }

// Activity handles pointer movement over the player.
func (s *Shell) Activity() { s.controls.Activity() }

// ToggleSidebar opens or closes the channel sidebar.
func (s *Shell) ToggleSidebar() {
	s.controls.SetSidebarOpen(!s.controls.Snapshot().SidebarOpen)
}

// SetDropdownOpen mirrors the quality/audio dropdown.
func (s *Shell) SetDropdownOpen(open bool) { s.controls.SetDropdownOpen(open) }

// TogglePlay pauses a playing stream and resumes a paused one.
func (s *Shell) TogglePlay(ctx context.Context) error {
	if s.session.Snapshot().State == session.StatePlaying {
		return s.session.Pause()
	}
	return s.session.Play(ctx)
}

// SetMuted mutes or unmutes.
func (s *Shell) SetMuted(muted bool) { s.session.SetMuted(muted) }

// SetVolume sets the volume in [0, 1].
func (s *Shell) SetVolume(v float64) { s.session.SetVolume(v) }

// SetQuality selects a quality level, -1 for automatic.
func (s *Shell) SetQuality(index int) error { return s.session.SetLevel(index) }

// SetAudio selects an audio track.
func (s *Shell) SetAudio(index int) error { return s.session.SetAudioTrack(index) }

// Retry rebuilds an errored stream.
func (s *Shell) Retry(ctx context.Context) error { return s.session.Retry(ctx) }

// ToggleFullscreen enters or leaves fullscreen on the player container.
func (s *Shell) ToggleFullscreen(ctx context.Context) (bool, error) {
	active, err := s.fs.Toggle(ctx)
	s.notify()
	return active, err
}

// SyncFullscreen mirrors a fullscreen change made by the client itself.
func (s *Shell) SyncFullscreen(active bool) {
	s.fs.Sync(active)
	s.notify()
}

// Close tears the stream down, stops the idle timer and navigates back. It
// is safe to call more than once.
func (s *Shell) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		unsubs := s.unsubs
		s.unsubs = nil
		s.mu.Unlock()

		// Closing the session waits out an in-flight attach and refuses
		// later ones, so no engine outlives the shell.
		s.session.Close()
		s.controls.Stop()

		// One final view so observers see closed.
		s.notify()
		for _, unsub := range unsubs {
			unsub()
		}

		s.logger.Info().Str(tvlog.FieldEvent, "player.close").Msg("player closed")
		if s.onExit != nil {
			s.onExit()
		}
	})
}

// Session exposes the stream session for diagnostics.
func (s *Shell) Session() session.Snapshot { return s.session.Snapshot() }

// View returns the current view model.
func (s *Shell) View() View {
	sess := s.session.Snapshot()
	ctrl := s.controls.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.activeLocked()
	status := catalog.StatusEmpty
	if s.catalog != nil && s.current.PlaylistID != "" {
		status = s.catalog.Status(catalog.ChannelsKey(s.current.PlaylistID))
	}
	return View{
		PlayerID:            s.id,
		Current:             s.current,
		Index:               navigator.IndexOf(s.current.URL, active),
		Channels:            append([]catalog.Channel{}, active...),
		Groups:              navigator.ResolveGroups(s.channels),
		Group:               s.group,
		CatalogStatus:       status,
		Session:             sess,
		Controls:            ctrl,
		Fullscreen:          s.fs.Active(),
		FullscreenSupported: s.fs.Supported(),
		Closed:              s.closed,
	}
}

// OnView registers fn for view changes. fn runs outside the shell lock and
// must not block.
func (s *Shell) OnView(fn func(View)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextView++
	id := s.nextView
	s.views[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.views, id)
		s.mu.Unlock()
	}
}

func (s *Shell) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	fns := make([]func(View), 0, len(s.views))
	for _, fn := range s.views {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	if len(fns) == 0 {
		return
	}

	v := s.View()
	for _, fn := range fns {
		fn(v)
	}
}

// usableLocked reports whether navigation is possible. Caller must hold mu.
func (s *Shell) usableLocked() error {
	switch {
	case s.closed:
		return ErrClosed
	case !s.mounted:
		return ErrNotMounted
	}
	return nil
}
