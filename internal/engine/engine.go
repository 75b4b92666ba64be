// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package engine defines the adaptive-streaming engine and video surface the
// session controller drives. Implementations live elsewhere (the remote
// bridge, test fakes); this package only holds the contract.
//
// Implementations must deliver events asynchronously: a listener is never
// invoked from inside one of the engine's own methods.
package engine

import (
	"context"
	"errors"
)

// MimeHLS is the manifest type probed for native playback.
const MimeHLS = "application/vnd.apple.mpegurl"

// AutoLevel selects automatic quality switching.
const AutoLevel = -1

var (
	// ErrPlayAborted reports a play request interrupted by a newer load or a
	// teardown. It is not a playback failure.
	ErrPlayAborted = errors.New("engine: play request aborted")

	// ErrNotSupported is returned by a Factory whose engine cannot run on the client.
	ErrNotSupported = errors.New("engine: adaptive streaming not supported")

	// ErrDetached is returned once the underlying client has gone away.
	ErrDetached = errors.New("engine: client detached")
)

// Level is one quality rendition.
type Level struct {
	Index   int    `json:"index"`
	Height  int    `json:"height"`
	Width   int    `json:"width"`
	Bitrate int    `json:"bitrate"`
	Label   string `json:"label,omitempty"`
}

// Track is one audio rendition.
type Track struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Lang    string `json:"lang,omitempty"`
	Default bool   `json:"default,omitempty"`
}

// ErrorType classifies engine errors.
type ErrorType string

const (
	ErrorNetwork ErrorType = "networkError"
	ErrorMedia   ErrorType = "mediaError"
	ErrorOther   ErrorType = "otherError"
)

// ErrorData describes an engine error.
type ErrorData struct {
	Type    ErrorType `json:"type"`
	Details string    `json:"details,omitempty"`
	Fatal   bool      `json:"fatal"`
}

// EventKind names an engine event.
type EventKind string

const (
	EventManifestParsed     EventKind = "manifest_parsed"
	EventLevelSwitched      EventKind = "level_switched"
	EventAudioTracksUpdated EventKind = "audio_tracks_updated"
	EventError              EventKind = "error"
)

// Event is emitted by an engine. Only the fields of its kind are set.
type Event struct {
	Kind   EventKind  `json:"kind"`
	Levels []Level    `json:"levels,omitempty"`
	Level  int        `json:"level,omitempty"`
	Tracks []Track    `json:"tracks,omitempty"`
	Error  *ErrorData `json:"error,omitempty"`
}

// Listener receives engine events.
type Listener func(Event)

// Engine is one adaptive-streaming engine instance. An instance serves a
// single session and is unusable after Destroy.
type Engine interface {
	LoadSource(url string) error
	AttachMedia(s Surface) error
	DetachMedia()
	StopLoad()
	StartLoad()
	RecoverMediaError()
	Destroy()

	CurrentLevel() int
	SetCurrentLevel(index int)
	AutoLevelEnabled() bool
	AudioTrack() int
	SetAudioTrack(index int)

	// Subscribe registers l and returns its unsubscribe func.
	Subscribe(l Listener) (unsubscribe func())
}

// Factory constructs engines.
type Factory interface {
	// Supported reports whether the client can run an engine at all.
	Supported() bool
	New(ctx context.Context) (Engine, error)
}

// SurfaceEventKind names a coarse video surface event.
type SurfaceEventKind string

const (
	SurfaceLoaded  SurfaceEventKind = "loaded"
	SurfaceError   SurfaceEventKind = "error"
	SurfacePlaying SurfaceEventKind = "playing"
	SurfacePaused  SurfaceEventKind = "paused"
)

// SurfaceEvent is emitted by a video surface.
type SurfaceEvent struct {
	Kind   SurfaceEventKind `json:"kind"`
	Detail string           `json:"detail,omitempty"`
}

// Surface is the video element. It is owned by exactly one session controller.
type Surface interface {
	SetSource(url string)
	RemoveSource()
	Load()
	// Play starts playback and blocks until the client answers. A request
	// superseded by a reload or teardown returns an error matching ErrPlayAborted.
	Play(ctx context.Context) error
	Pause()
	SetMuted(muted bool)
	SetVolume(v float64)
	CanPlayNative(mime string) bool
	Subscribe(fn func(SurfaceEvent)) (unsubscribe func())
}
