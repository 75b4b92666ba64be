// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package navigator moves through a channel list circularly. The current
// channel is identified by stream URL; when several channels share a URL the
// first one wins.
package navigator

import "github.com/ManuGH/livetv/internal/catalog"

// Target is what the player is entered with.
type Target struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	Logo       string `json:"logo,omitempty"`
	PlaylistID string `json:"playlistId"`
}

// Resolve turns a channel of playlistID into a navigation target.
func Resolve(ch catalog.Channel, playlistID string) Target {
	return Target{
		URL:        ch.URL,
		Name:       ch.Name,
		Logo:       ch.Logo,
		PlaylistID: playlistID,
	}
}

// IndexOf returns the position of the first channel streaming currentURL, or -1.
func IndexOf(currentURL string, channels []catalog.Channel) int {
	for i, ch := range channels {
		if ch.URL == currentURL {
			return i
		}
	}
	return -1
}

// Next returns the channel after currentURL. An unknown URL or the last
// channel wraps to the first one. ok is false only for an empty list.
func Next(currentURL string, channels []catalog.Channel) (catalog.Channel, bool) {
	if len(channels) == 0 {
		return catalog.Channel{}, false
	}
	i := IndexOf(currentURL, channels)
	if i < 0 || i == len(channels)-1 {
		return channels[0], true
	}
	return channels[i+1], true
}

// Previous returns the channel before currentURL. An unknown URL or the first
// channel wraps to the last one.
func Previous(currentURL string, channels []catalog.Channel) (catalog.Channel, bool) {
	if len(channels) == 0 {
		return catalog.Channel{}, false
	}
	i := IndexOf(currentURL, channels)
	if i <= 0 {
		return channels[len(channels)-1], true
	}
	return channels[i-1], true
}

// ResolveGroups lists the distinct non-empty groups in order of first appearance.
func ResolveGroups(channels []catalog.Channel) []string {
	seen := make(map[string]struct{})
	groups := []string{}
	for _, ch := range channels {
		if ch.Group == "" {
			continue
		}
		if _, ok := seen[ch.Group]; ok {
			continue
		}
		seen[ch.Group] = struct{}{}
		groups = append(groups, ch.Group)
	}
	return groups
}

// FilterByGroup keeps the channels of group. An empty group disables the filter.
func FilterByGroup(channels []catalog.Channel, group string) []catalog.Channel {
	if group == "" {
		return channels
	}
	out := make([]catalog.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch.Group == group {
			out = append(out, ch)
		}
	}
	return out
}
