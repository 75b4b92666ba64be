// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalog fetches and caches the playlist/channel catalog that the
// player navigates.
package catalog

// Playlist is one regional bouquet of live channels.
type Playlist struct {
	ID          string `json:"id"`
	CountryName string `json:"countryName"`
	CountryCode string `json:"countryCode"`
	IsActive    bool   `json:"isActive"`
}

// Channel is a single live channel. URL is the stream manifest address.
type Channel struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Logo  string `json:"logo,omitempty"`
	URL   string `json:"url"`
	Group string `json:"group,omitempty"`
}

// Status describes what a cache key currently holds.
type Status string

const (
	StatusLoading Status = "loading" // first fetch in flight, nothing cached
	StatusReady   Status = "ready"   // non-empty value cached
	StatusEmpty   Status = "empty"   // upstream returned an empty list
	StatusFailed  Status = "failed"  // fetch failed and nothing is cached
)

const playlistsKey = "playlists"

func channelsKey(playlistID string) string {
	return "channels:" + playlistID
}

// PlaylistsKey is the cache key holding the playlist list.
func PlaylistsKey() string { return playlistsKey }

// ChannelsKey is the cache key holding one playlist's channels.
func ChannelsKey(playlistID string) string { return channelsKey(playlistID) }
