package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/krisalay/refresh-cache/clock"
	"github.com/krisalay/refresh-cache/expiration"
	"github.com/krisalay/refresh-cache/types"
)

/*
CacheEngine is the "brain" of the cache system.
It is responsible for the "behavior" of the cache, NOT storage.

It decides:
- Whether a stored entry is still fresh
- What a new entry looks like after regeneration
- What the caller sees (age, time to next refresh)
- How regenerations are timed, logged and counted

It does NOT:
- Store data
- Handle sharding
- Handle locking
- Deduplicate concurrent regenerations
*/
type CacheEngine struct {

	// Expiration decides when an entry is too old to serve.
	Expiration expiration.Strategy

	// Clock is the only time source the cache reads.
	Clock clock.Clock

	// Metrics records hits, misses, refreshes and regenerations.
	Metrics types.Metrics

	Logger zerolog.Logger
}

/*
NewCacheEngine creates a CacheEngine. Nil arguments fall back to
FixedWindow expiration, the system clock and no-op metrics.
*/
func NewCacheEngine(
	exp expiration.Strategy,
	clk clock.Clock,
	metrics types.Metrics,
	logger zerolog.Logger,
) *CacheEngine {

	if exp == nil {
		exp = expiration.FixedWindow{}
	}
	if clk == nil {
		clk = clock.System{}
	}
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}

	return &CacheEngine{
		Expiration: exp,
		Clock:      clk,
		Metrics:    metrics,
		Logger:     logger,
	}
}

// Now returns the engine's current time.
func (e *CacheEngine) Now() time.Time {
	return e.Clock.Now()
}

// IsFresh checks whether ent can be served at now.
func (e *CacheEngine) IsFresh(ent *types.CacheEntry, now time.Time) bool {
	return e.Expiration.IsFresh(ent, now)
}

// NewEntry stamps a freshly regenerated value with the current time.
func (e *CacheEngine) NewEntry(key string, value any, ttl time.Duration) *types.CacheEntry {
	return &types.CacheEntry{
		Key:         key,
		Value:       value,
		GeneratedAt: e.Now(),
		TTL:         ttl,
	}
}

/*
Snapshot builds the caller-facing view of ent at now.

fromCache=true describes a fresh hit: age since generation, time left in the window.
fromCache=false describes a value produced by this call: age 0, a full window ahead.
*/
func (e *CacheEngine) Snapshot(ent *types.CacheEntry, now time.Time, fromCache bool) types.Result {
	r := types.Result{
		Value:       ent.Value,
		FromCache:   fromCache,
		GeneratedAt: ent.GeneratedAt,
	}
	if fromCache {
		r.Age = ent.Age(now)
		r.NextRefresh = e.Expiration.Remaining(ent, now)
		return r
	}
	r.NextRefresh = ent.TTL
	return r
}

/*
OnRead records why a read did or did not hit, before any regeneration starts.
*/
func (e *CacheEngine) OnRead(ctx context.Context, key string, ent *types.CacheEntry, fresh, forced bool) {
	switch {
	case forced:
		e.Metrics.Refresh()
	case fresh:
		e.Metrics.Hit()
		return
	case ent != nil:
		e.Metrics.Stale()
	default:
		e.Metrics.Miss()
	}

	e.Logger.Debug().
		Ctx(ctx).
		Str("component", "cache").
		Str("key", key).
		Bool("forced", forced).
		Bool("had_entry", ent != nil).
		Msg("regenerating")
}

/*
Regenerate runs fn and reports its outcome. It does not store anything.
*/
func (e *CacheEngine) Regenerate(ctx context.Context, key string, fn types.Regenerator) (any, error) {
	start := time.Now()
	val, err := fn(ctx)
	d := time.Since(start)

	e.Metrics.Regenerated(d, err)

	if err != nil {
		e.Logger.Warn().
			Ctx(ctx).
			Str("component", "cache").
			Str("key", key).
			Dur("duration", d).
			Err(err).
			Msg("regeneration failed, keeping previous entry")
		return nil, err
	}

	e.Logger.Debug().
		Ctx(ctx).
		Str("component", "cache").
		Str("key", key).
		Dur("duration", d).
		Msg("regenerated")
	return val, nil
}
