package cache_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cache "github.com/krisalay/refresh-cache"
	"github.com/krisalay/refresh-cache/clock"
	"github.com/krisalay/refresh-cache/types"
)

//
// ================= TEST DATA SOURCE =================
//

// source is a regenerator that hands out "v1", "v2", ... and counts calls.
type source struct {
	calls atomic.Int64
	err   error
}

func (s *source) regenerate(context.Context) (any, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return fmt.Sprintf("v%d", n), nil
}

//
// ================= HELPER: CREATE CACHE =================
//

func newTestCache(t *testing.T, dedupe bool) (*cache.RefreshCache, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	c, err := cache.New(cache.Options{
		DefaultTTL: 30 * time.Second,
		Shards:     4,
		Dedupe:     dedupe,
		Clock:      clk,
	})
	require.NoError(t, err)
	return c, clk
}

//
// ================= SCENARIO =================
//

func TestThirtySecondScenario(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestCache(t, true)
	src := &source{}
	ttl := 30 * time.Second

	// t=0, no entry
	r, err := c.Get(ctx, "page", ttl, false, src.regenerate)
	require.NoError(t, err)
	assert.False(t, r.FromCache)
	assert.Equal(t, 0, r.CacheAge())
	assert.Equal(t, 30, r.NextRefreshIn())
	assert.Equal(t, "v1", r.Value)

	// t=5s
	clk.Advance(5 * time.Second)
	r, err = c.Get(ctx, "page", ttl, false, src.regenerate)
	require.NoError(t, err)
	assert.True(t, r.FromCache)
	assert.Equal(t, 5, r.CacheAge())
	assert.Equal(t, 25, r.NextRefreshIn())
	assert.Equal(t, "v1", r.Value)

	// t=31s, stale
	clk.Advance(26 * time.Second)
	r, err = c.Get(ctx, "page", ttl, false, src.regenerate)
	require.NoError(t, err)
	assert.False(t, r.FromCache)
	assert.Equal(t, 0, r.CacheAge())
	assert.Equal(t, 30, r.NextRefreshIn())
	assert.Equal(t, "v2", r.Value)

	// t=32s, forced even though the entry is 1s old
	clk.Advance(time.Second)
	r, err = c.Get(ctx, "page", ttl, true, src.regenerate)
	require.NoError(t, err)
	assert.False(t, r.FromCache)
	assert.Equal(t, "v3", r.Value)
	assert.Equal(t, int64(3), src.calls.Load())
}

//
// ================= FRESHNESS PROPERTIES =================
//

func TestNeverWrittenKeyAlwaysRegenerates(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, false)
	src := &source{}

	for i := 0; i < 5; i++ {
		r, err := c.Get(ctx, fmt.Sprintf("key-%d", i), time.Minute, false, src.regenerate)
		require.NoError(t, err)
		assert.False(t, r.FromCache)
	}
	assert.Equal(t, int64(5), src.calls.Load())
}

func TestFreshReadHintsAcrossOffsets(t *testing.T) {
	ttl := 10 * time.Second
	tests := []struct {
		offset      time.Duration
		fromCache   bool
		cacheAge    int
		nextRefresh int
	}{
		{0, true, 0, 10},
		{999 * time.Millisecond, true, 0, 10},
		{1500 * time.Millisecond, true, 1, 9},
		{9999 * time.Millisecond, true, 9, 1},
		{10 * time.Second, false, 0, 10},
		{25 * time.Second, false, 0, 10},
	}

	for _, tt := range tests {
		t.Run(tt.offset.String(), func(t *testing.T) {
			ctx := context.Background()
			c, clk := newTestCache(t, true)
			src := &source{}

			_, err := c.Get(ctx, "k", ttl, false, src.regenerate)
			require.NoError(t, err)

			clk.Advance(tt.offset)
			r, err := c.Get(ctx, "k", ttl, false, src.regenerate)
			require.NoError(t, err)
			assert.Equal(t, tt.fromCache, r.FromCache)
			assert.Equal(t, tt.cacheAge, r.CacheAge())
			assert.Equal(t, tt.nextRefresh, r.NextRefreshIn())

			wantCalls := int64(1)
			if !tt.fromCache {
				wantCalls = 2
			}
			assert.Equal(t, wantCalls, src.calls.Load(), "exactly one regeneration per stale read")
		})
	}
}

func TestConsecutiveHitsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestCache(t, true)
	src := &source{}

	_, err := c.Get(ctx, "k", time.Minute, false, src.regenerate)
	require.NoError(t, err)

	clk.Advance(2 * time.Second)
	a, err := c.Get(ctx, "k", time.Minute, false, src.regenerate)
	require.NoError(t, err)
	clk.Advance(3 * time.Second)
	b, err := c.Get(ctx, "k", time.Minute, false, src.regenerate)
	require.NoError(t, err)

	assert.Equal(t, a.Value, b.Value)
	assert.GreaterOrEqual(t, b.CacheAge(), a.CacheAge())
	assert.Equal(t, a.GeneratedAt, b.GeneratedAt)
}

func TestForceRefreshAlwaysRegenerates(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, true)
	src := &source{}

	for i := 1; i <= 3; i++ {
		r, err := c.Get(ctx, "k", time.Hour, true, src.regenerate)
		require.NoError(t, err)
		assert.False(t, r.FromCache)
		assert.Equal(t, int64(i), src.calls.Load())
	}
}

func TestKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, true)
	a, b := &source{}, &source{}

	_, _ = c.Get(ctx, "a", time.Minute, false, a.regenerate)
	_, _ = c.Get(ctx, "b", time.Minute, false, b.regenerate)
	r, err := c.Get(ctx, "a", time.Minute, false, a.regenerate)
	require.NoError(t, err)

	assert.True(t, r.FromCache)
	assert.Equal(t, 2, c.Len())
}

func TestGetDefaultUsesConstructorTTL(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, true)
	src := &source{}

	r, err := c.GetDefault(ctx, "k", false, src.regenerate)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, r.NextRefresh)
	assert.Equal(t, 30*time.Second, c.DefaultTTL())
}

//
// ================= ERRORS =================
//

func TestRegenerationFailureKeepsPreviousEntry(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestCache(t, true)
	good := &source{}
	boom := errors.New("data source down")
	bad := &source{err: boom}

	_, err := c.Get(ctx, "k", 10*time.Second, false, good.regenerate)
	require.NoError(t, err)

	// forced refresh fails: error propagates unchanged, entry untouched
	_, err = c.Get(ctx, "k", 10*time.Second, true, bad.regenerate)
	assert.Same(t, boom, err)

	r, err := c.Get(ctx, "k", 10*time.Second, false, bad.regenerate)
	require.NoError(t, err)
	assert.True(t, r.FromCache)
	assert.Equal(t, "v1", r.Value)

	// stale read fails: still nothing stored over the old entry
	clk.Advance(time.Minute)
	_, err = c.Get(ctx, "k", 10*time.Second, false, bad.regenerate)
	assert.ErrorIs(t, err, boom)

	peek, ok := c.Peek("k")
	require.True(t, ok)
	assert.Equal(t, "v1", peek.Value)
	assert.False(t, peek.FromCache)

	// and a later successful regeneration replaces it
	r, err = c.Get(ctx, "k", 10*time.Second, false, good.regenerate)
	require.NoError(t, err)
	assert.Equal(t, "v2", r.Value)
}

func TestFailureOnEmptyCacheStoresNothing(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, true)

	_, err := c.Get(ctx, "k", time.Second, false, (&source{err: errors.New("nope")}).regenerate)
	require.Error(t, err)

	_, ok := c.Peek("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestInvalidArguments(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, true)
	src := &source{}

	tests := []struct {
		name string
		key  string
		ttl  time.Duration
		fn   types.Regenerator
	}{
		{"empty key", "", time.Second, src.regenerate},
		{"zero ttl", "k", 0, src.regenerate},
		{"negative ttl", "k", -time.Second, src.regenerate},
		{"nil regenerator", "k", time.Second, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Get(ctx, tt.key, tt.ttl, false, tt.fn)
			assert.ErrorIs(t, err, cache.ErrInvalidConfig)
		})
	}
	assert.Equal(t, int64(0), src.calls.Load())
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := cache.New(cache.Options{})
	assert.ErrorIs(t, err, cache.ErrInvalidConfig)

	_, err = cache.New(cache.Options{DefaultTTL: time.Second, Shards: -1})
	assert.ErrorIs(t, err, cache.ErrInvalidConfig)
}

func TestClosedCache(t *testing.T) {
	c, _ := newTestCache(t, true)
	c.Close()

	_, err := c.Get(context.Background(), "k", time.Second, false, (&source{}).regenerate)
	assert.ErrorIs(t, err, cache.ErrClosed)
}

//
// ================= PEEK / INVALIDATE / NAMESPACE =================
//

func TestPeekAndInvalidate(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestCache(t, true)
	src := &source{}

	_, ok := c.Peek("k")
	assert.False(t, ok)

	_, err := c.Get(ctx, "k", 10*time.Second, false, src.regenerate)
	require.NoError(t, err)

	clk.Advance(4 * time.Second)
	r, ok := c.Peek("k")
	require.True(t, ok)
	assert.True(t, r.FromCache)
	assert.Equal(t, 6, r.NextRefreshIn())
	assert.Equal(t, int64(1), src.calls.Load(), "peek never regenerates")

	c.Invalidate("k")
	c.Invalidate("k")
	_, ok = c.Peek("k")
	assert.False(t, ok)

	r, err = c.Get(ctx, "k", 10*time.Second, false, src.regenerate)
	require.NoError(t, err)
	assert.False(t, r.FromCache)
}

func TestNamespacedKeys(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(0, 0))

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	a, err := cache.New(cache.Options{DefaultTTL: time.Minute, Namespace: "a", Clock: clk, Logger: &logger})
	require.NoError(t, err)
	b, err := cache.New(cache.Options{DefaultTTL: time.Minute, Namespace: "b", Clock: clk, Logger: &logger})
	require.NoError(t, err)

	src := &source{}
	_, err = a.GetDefault(ctx, "k", false, src.regenerate)
	require.NoError(t, err)
	_, err = b.GetDefault(ctx, "k", false, src.regenerate)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"key":"a:k"`)
	assert.Contains(t, buf.String(), `"key":"b:k"`)
	assert.NotContains(t, buf.String(), `"key":"k"`)

	// callers keep using the bare key
	r, ok := a.Peek("k")
	require.True(t, ok)
	assert.Equal(t, "v1", r.Value)

	a.Invalidate("k")
	_, ok = a.Peek("k")
	assert.False(t, ok)
}

//
// ================= SINGLE SLOT =================
//

func TestSlot(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	s, err := cache.NewSlot(cache.Options{DefaultTTL: 10 * time.Second, Clock: clk})
	require.NoError(t, err)
	src := &source{}

	r, err := s.Get(ctx, false, src.regenerate)
	require.NoError(t, err)
	assert.False(t, r.FromCache)
	assert.Equal(t, 10, r.NextRefreshIn())

	clk.Advance(3 * time.Second)
	r, err = s.Get(ctx, false, src.regenerate)
	require.NoError(t, err)
	assert.True(t, r.FromCache)
	assert.Equal(t, 3, r.CacheAge())
	assert.Equal(t, 7, r.NextRefreshIn())

	r, err = s.Get(ctx, true, src.regenerate)
	require.NoError(t, err)
	assert.False(t, r.FromCache)
	assert.Equal(t, "v2", r.Value)

	s.Reset()
	_, ok := s.Peek()
	assert.False(t, ok)

	_, err = cache.NewSlot(cache.Options{})
	assert.ErrorIs(t, err, cache.ErrInvalidConfig)
}

//
// ================= CONCURRENCY =================
//

// blockingSource parks every regeneration until release is closed.
type blockingSource struct {
	calls   atomic.Int64
	release chan struct{}
}

func (s *blockingSource) regenerate(context.Context) (any, error) {
	n := s.calls.Add(1)
	<-s.release
	return n, nil
}

func TestConcurrentStaleReadsShareOneRegeneration(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, true)
	src := &blockingSource{release: make(chan struct{})}

	const callers = 10
	results := make([]types.Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.Get(ctx, "hot", time.Minute, false, src.regenerate)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	// give the remaining callers time to join the in-flight regeneration
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.Equal(t, int64(1), src.calls.Load())
	for _, r := range results {
		assert.Equal(t, int64(1), r.Value)
		assert.False(t, r.FromCache)
	}
}

func TestConcurrentStaleReadsRaceWithoutDedupe(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, false)
	src := &blockingSource{release: make(chan struct{})}

	const callers = 4
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(ctx, "hot", time.Minute, false, src.regenerate)
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return src.calls.Load() == callers }, time.Second, time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.Equal(t, 1, c.Len(), "racing writes still leave one entry per key")
}

func TestCancelledCallerDoesNotFailSharedRegeneration(t *testing.T) {
	c, _ := newTestCache(t, true)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	regenerate := func(ctx context.Context) (any, error) {
		n := calls.Add(1)
		if n == 1 {
			close(started)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return n, nil
		}
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	var firstErr, secondErr error
	var second types.Result

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = c.Get(firstCtx, "hot", time.Minute, false, regenerate)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		second, secondErr = c.Get(context.Background(), "hot", time.Minute, false, regenerate)
	}()

	// let the second caller join, then drop the first one
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	assert.Equal(t, int64(1), second.Value)
	assert.Equal(t, int64(1), calls.Load())
}

func TestForcedCallDoesNotJoinEarlierRegeneration(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, true)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	regenerate := func(context.Context) (any, error) {
		n := calls.Add(1)
		if n == 1 {
			close(started)
			<-release
		}
		return fmt.Sprintf("v%d", n), nil
	}

	var wg sync.WaitGroup
	var first types.Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		first, err = c.Get(ctx, "hot", time.Minute, false, regenerate)
		assert.NoError(t, err)
	}()
	<-started

	forced, err := c.Get(ctx, "hot", time.Minute, true, regenerate)
	require.NoError(t, err)
	assert.False(t, forced.FromCache)
	assert.Equal(t, "v2", forced.Value, "forced call runs its own regeneration")
	assert.Equal(t, int64(2), calls.Load())

	close(release)
	wg.Wait()
	assert.Equal(t, "v1", first.Value)
	assert.Equal(t, int64(2), calls.Load())
}
