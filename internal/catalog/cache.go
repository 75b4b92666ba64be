// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ManuGH/livetv/internal/cache"
	tvlog "github.com/ManuGH/livetv/internal/log"
	"github.com/ManuGH/livetv/internal/metrics"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Cache serves catalog lists stale-while-revalidate: a cached value is
// returned immediately and a background refresh replaces it once fulfilled.
// There is at most one in-flight upstream fetch per key. Fetch failures never
// surface as errors; callers get the last good value or an empty list.
type Cache struct {
	src     Source
	store   cache.Store
	ttl     time.Duration
	timeout time.Duration
	logger  zerolog.Logger
	group   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	status map[string]Status
	digest map[string]uint64
	subs   map[string]map[uint64]func([]byte)
	nextID uint64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL bounds how long a value stays in the store. Zero keeps values for
// the lifetime of the process.
func WithTTL(d time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = d }
}

// WithFetchTimeout bounds a single upstream fetch.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) { c.timeout = d }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

// NewCache wires a Source to a Store.
func NewCache(src Source, store cache.Store, opts ...CacheOption) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		src:     src,
		store:   store,
		timeout: 15 * time.Second,
		logger:  tvlog.WithComponent("catalog"),
		ctx:     ctx,
		cancel:  cancel,
		status:  make(map[string]Status),
		digest:  make(map[string]uint64),
		subs:    make(map[string]map[uint64]func([]byte)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Playlists returns the playlist list.
func (c *Cache) Playlists(ctx context.Context) []Playlist {
	return load(c, ctx, "playlists", playlistsKey, c.src.Playlists)
}

// Channels returns the channel list of one playlist.
func (c *Cache) Channels(ctx context.Context, playlistID string) []Channel {
	if playlistID == "" {
		return []Channel{}
	}
	return load(c, ctx, "channels", channelsKey(playlistID), func(ctx context.Context) ([]Channel, error) {
		return c.src.Channels(ctx, playlistID)
	})
}

// Status reports what key currently holds.
func (c *Cache) Status(key string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.status[key]; ok {
		return s
	}
	return StatusLoading
}

// SubscribePlaylists calls fn whenever a refresh changes the playlist list.
func (c *Cache) SubscribePlaylists(fn func([]Playlist)) (unsubscribe func()) {
	return subscribe(c, playlistsKey, fn)
}

// SubscribeChannels calls fn whenever a refresh changes the channels of playlistID.
func (c *Cache) SubscribeChannels(playlistID string, fn func([]Channel)) (unsubscribe func()) {
	return subscribe(c, channelsKey(playlistID), fn)
}

// Ping reports backend store health.
func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// Close cancels in-flight refreshes and waits for them to return.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func load[T any](c *Cache, ctx context.Context, kind, key string, fetch func(context.Context) ([]T, error)) []T {
	if raw, ok := c.store.Get(ctx, key); ok {
		var cached []T
		if err := json.Unmarshal(raw, &cached); err == nil {
			metrics.IncCatalogCacheLookup(kind, true)
			c.spawn(func() { _, _ = c.refresh(kind, key, encoder(fetch)) })
			return cached
		}
		c.logger.Warn().Str(tvlog.FieldCacheKey, key).Msg("discarding undecodable cache entry")
		c.store.Delete(ctx, key)
	}
	metrics.IncCatalogCacheLookup(kind, false)
	c.markLoading(key)

	type result struct {
		raw []byte
		err error
	}
	done := make(chan result, 1)
	if !c.spawn(func() {
		raw, err := c.refresh(kind, key, encoder(fetch))
		done <- result{raw: raw, err: err}
	}) {
		return []T{}
	}

	select {
	case res := <-done:
		if res.err != nil {
			c.markFailed(key)
			return []T{}
		}
		var fresh []T
		if err := json.Unmarshal(res.raw, &fresh); err != nil {
			return []T{}
		}
		return fresh
	case <-ctx.Done():
		return []T{}
	}
}

func encoder[T any](fetch func(context.Context) ([]T, error)) func(context.Context) ([]byte, int, error) {
	return func(ctx context.Context) ([]byte, int, error) {
		items, err := fetch(ctx)
		if err != nil {
			return nil, 0, err
		}
		if items == nil {
			items = []T{}
		}
		raw, err := json.Marshal(items)
		if err != nil {
			return nil, 0, err
		}
		return raw, len(items), nil
	}
}

// spawn runs fn on a tracked goroutine. It returns false once the cache is closed.
func (c *Cache) spawn(fn func()) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn()
	}()
	return true
}

// refresh fetches key from upstream, deduplicated per key.
func (c *Cache) refresh(kind, key string, fetch func(context.Context) ([]byte, int, error)) ([]byte, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
		defer cancel()

		raw, n, err := fetch(ctx)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str(tvlog.FieldEvent, "catalog.refresh_failed").
				Str(tvlog.FieldCacheKey, key).
				Msg("catalog refresh failed, keeping last good value")
			return nil, err
		}

		c.store.Set(c.ctx, key, raw, c.ttl)

		status := StatusReady
		if n == 0 {
			status = StatusEmpty
		}
		sum := xxhash.Sum64(raw)

		c.mu.Lock()
		c.status[key] = status
		changed := c.digest[key] != sum
		c.digest[key] = sum
		var listeners []func([]byte)
		if changed {
			for _, fn := range c.subs[key] {
				listeners = append(listeners, fn)
			}
		}
		c.mu.Unlock()

		c.logger.Debug().
			Str(tvlog.FieldEvent, "catalog.refreshed").
			Str(tvlog.FieldCacheKey, key).
			Str("kind", kind).
			Int("items", n).
			Bool("changed", changed).
			Msg("catalog refreshed")

		for _, fn := range listeners {
			fn(raw)
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cache) markLoading(key string) {
	c.mu.Lock()
	c.status[key] = StatusLoading
	c.mu.Unlock()
}

func (c *Cache) markFailed(key string) {
	c.mu.Lock()
	if c.status[key] == StatusLoading {
		c.status[key] = StatusFailed
	}
	c.mu.Unlock()
}

func subscribe[T any](c *Cache, key string, fn func([]T)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	if c.subs[key] == nil {
		c.subs[key] = make(map[uint64]func([]byte))
	}
	c.subs[key][id] = func(raw []byte) {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return
		}
		fn(items)
	}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs[key], id)
			if len(c.subs[key]) == 0 {
				delete(c.subs, key)
			}
			c.mu.Unlock()
		})
	}
}
