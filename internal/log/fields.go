// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID  = "session_id"
	FieldPlayerID   = "player_id"
	FieldRequestID  = "request_id"
	FieldGeneration = "generation"
	FieldInstance   = "engine_instance"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Catalog fields
	FieldPlaylistID = "playlist_id"
	FieldChannel    = "channel"
	FieldCacheKey   = "cache_key"

	// Stream fields
	FieldStreamURL  = "stream_url"
	FieldLevel      = "level"
	FieldResolution = "resolution"
	FieldErrorType  = "error_type"
	FieldFatal      = "fatal"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
