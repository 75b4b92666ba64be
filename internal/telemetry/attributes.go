// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared across spans.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	PlayerIDKey    = "player.id"
	PlaylistIDKey  = "catalog.playlist_id"
	ChannelKey     = "stream.channel"
	StreamURLKey   = "stream.url"
	SessionIDKey   = "session.id"
	GenerationKey  = "session.generation"
	NativeKey      = "session.native"
	CatalogOpKey   = "catalog.operation"
	CatalogItemKey = "catalog.items"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes returns the attributes of a served request.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ChannelAttributes describes a channel switch. Empty values are omitted.
func ChannelAttributes(playerID, playlistID, channel, streamURL string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if playerID != "" {
		attrs = append(attrs, attribute.String(PlayerIDKey, playerID))
	}
	if playlistID != "" {
		attrs = append(attrs, attribute.String(PlaylistIDKey, playlistID))
	}
	if channel != "" {
		attrs = append(attrs, attribute.String(ChannelKey, channel))
	}
	if streamURL != "" {
		attrs = append(attrs, attribute.String(StreamURLKey, streamURL))
	}
	return attrs
}

// SessionAttributes describes an attached stream session.
func SessionAttributes(id string, generation uint64, native bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionIDKey, id),
		attribute.Int64(GenerationKey, int64(generation)),
		attribute.Bool(NativeKey, native),
	}
}

// CatalogAttributes describes an upstream catalog fetch.
func CatalogAttributes(op, playlistID string, items int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(CatalogOpKey, op),
		attribute.Int(CatalogItemKey, items),
	}
	if playlistID != "" {
		attrs = append(attrs, attribute.String(PlaylistIDKey, playlistID))
	}
	return attrs
}

// ErrorAttributes marks a span as failed with errorType.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
