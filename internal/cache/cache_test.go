// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "key1", []byte("value1"), 5*time.Minute)

	val, ok := s.Get(ctx, "key1")
	require.True(t, ok, "expected to find key1")
	assert.Equal(t, []byte("value1"), val)

	_, ok = s.Get(ctx, "nonexistent")
	assert.False(t, ok)
}

func TestMemoryStore_ZeroTTLNeverExpires(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "playlists", []byte("[]"), 0)
	time.Sleep(10 * time.Millisecond)

	_, ok := s.Get(ctx, "playlists")
	assert.True(t, ok)
}

func TestMemoryStore_Expiration(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "shortlived", []byte("value"), 50*time.Millisecond)
	_, ok := s.Get(ctx, "shortlived")
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)

	_, ok = s.Get(ctx, "shortlived")
	assert.False(t, ok, "expected key to be expired")
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	in := []byte("abc")
	s.Set(ctx, "k", in, 0)
	in[0] = 'x'

	out, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), out)
	out[1] = 'y'

	again, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryStore_DeleteAndStats(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "a", []byte("1"), 0)
	s.Set(ctx, "b", []byte("2"), 0)
	_, _ = s.Get(ctx, "a")
	_, _ = s.Get(ctx, "missing")
	s.Delete(ctx, "b")

	stats := s.Stats()
	assert.Equal(t, int64(2), stats.Sets)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestMemoryStore_JanitorEvictsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewMemoryStore(10 * time.Millisecond)
	s.Set(context.Background(), "gone", []byte("x"), 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return s.Stats().Evictions == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close must be idempotent")
}
