// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"sort"
	"sync"

	"github.com/ManuGH/livetv/internal/metrics"
)

// Registry tracks the live shells of the process.
type Registry struct {
	mu     sync.RWMutex
	shells map[string]*Shell
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{shells: make(map[string]*Shell)}
}

// Add registers s.
func (r *Registry) Add(s *Shell) {
	r.mu.Lock()
	if _, ok := r.shells[s.ID()]; !ok {
		metrics.PlayersActive.Inc()
	}
	r.shells[s.ID()] = s
	r.mu.Unlock()
}

// Remove forgets the shell with id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	if _, ok := r.shells[id]; ok {
		delete(r.shells, id)
		metrics.PlayersActive.Dec()
	}
	r.mu.Unlock()
}

// Get returns the shell with id.
func (r *Registry) Get(id string) (*Shell, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shells[id]
	return s, ok
}

// List returns the views of all shells ordered by player id.
func (r *Registry) List() []View {
	r.mu.RLock()
	shells := make([]*Shell, 0, len(r.shells))
	for _, s := range r.shells {
		shells = append(shells, s)
	}
	r.mu.RUnlock()

	views := make([]View, 0, len(shells))
	for _, s := range shells {
		views = append(views, s.View())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].PlayerID < views[j].PlayerID })
	return views
}

// Len reports how many shells are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shells)
}

// CloseAll closes every shell, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	shells := make([]*Shell, 0, len(r.shells))
	for _, s := range r.shells {
		shells = append(shells, s)
	}
	r.mu.RUnlock()

	for _, s := range shells {
		s.Close()
		r.Remove(s.ID())
	}
}
