// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import (
	"encoding/json"

	"github.com/ManuGH/livetv/internal/engine"
	"github.com/ManuGH/livetv/internal/navigator"
)

// FrameType discriminates websocket frames.
type FrameType string

const (
	// Client to server.
	FrameHello  FrameType = "hello"
	FrameEvent  FrameType = "event"
	FrameResult FrameType = "result"
	FrameIntent FrameType = "intent"

	// Server to client.
	FrameCommand FrameType = "command"
	FrameView    FrameType = "view"
	FrameExit    FrameType = "exit"
	FrameError   FrameType = "error"
)

// Frame is the single envelope used in both directions.
type Frame struct {
	Type     FrameType       `json:"type"`
	ID       uint64          `json:"id,omitempty"`
	Op       string          `json:"op,omitempty"`
	Instance string          `json:"instance,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	Code     string          `json:"code,omitempty"`
}

// Result codes.
const (
	CodeAborted = "aborted"
)

// Event sources.
const (
	SourceEngine     = "engine"
	SourceSurface    = "surface"
	SourceFullscreen = "fullscreen"
)

// Command ops.
const (
	OpEngineCreate        = "engine.create"
	OpEngineLoadSource    = "engine.load_source"
	OpEngineAttachMedia   = "engine.attach_media"
	OpEngineDetachMedia   = "engine.detach_media"
	OpEngineStopLoad      = "engine.stop_load"
	OpEngineStartLoad     = "engine.start_load"
	OpEngineRecoverMedia  = "engine.recover_media_error"
	OpEngineDestroy       = "engine.destroy"
	OpEngineSetLevel      = "engine.set_level"
	OpEngineSetAudioTrack = "engine.set_audio_track"

	OpSurfaceSetSource    = "surface.set_source"
	OpSurfaceRemoveSource = "surface.remove_source"
	OpSurfaceLoad         = "surface.load"
	OpSurfacePlay         = "surface.play"
	OpSurfacePause        = "surface.pause"
	OpSurfaceMuted        = "surface.muted"
	OpSurfaceVolume       = "surface.volume"

	OpFullscreenRequest = "fullscreen.request"
	OpFullscreenExit    = "fullscreen.exit"
)

// Intent ops.
const (
	IntentNext       = "next"
	IntentPrevious   = "previous"
	IntentSelect     = "select"
	IntentGroup      = "group"
	IntentTap        = "tap"
	IntentActivity   = "activity"
	IntentSidebar    = "sidebar"
	IntentDropdown   = "dropdown"
	IntentTogglePlay = "toggle_play"
	IntentMute       = "mute"
	IntentVolume     = "volume"
	IntentQuality    = "quality"
	IntentAudio      = "audio"
	IntentRetry      = "retry"
	IntentFullscreen = "fullscreen"
	IntentClose      = "close"
)

// Capabilities is what the client can do.
type Capabilities struct {
	Engine     bool     `json:"engine"`
	NativeHLS  bool     `json:"nativeHls"`
	Fullscreen []string `json:"fullscreen,omitempty"`
}

// Hello opens a player.
type Hello struct {
	Target       navigator.Target `json:"target"`
	Capabilities Capabilities     `json:"capabilities"`
}

// EngineState mirrors the engine properties the controller reads.
type EngineState struct {
	Level      int  `json:"level"`
	AutoLevel  bool `json:"autoLevel"`
	AudioTrack int  `json:"audioTrack"`
}

// EngineEvent is an engine event with the engine state at emission time.
type EngineEvent struct {
	engine.Event
	State *EngineState `json:"state,omitempty"`
}

// FullscreenEvent reports a fullscreen change made by the client.
type FullscreenEvent struct {
	Active bool `json:"active"`
}

type sourcePayload struct {
	URL string `json:"url"`
}

type indexPayload struct {
	Index int `json:"index"`
}

type boolPayload struct {
	Value bool `json:"value"`
}

type floatPayload struct {
	Value float64 `json:"value"`
}

type variantPayload struct {
	Variant string `json:"variant"`
}

type groupPayload struct {
	Group string `json:"group"`
}

func payload(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
