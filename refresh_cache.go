package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	api "github.com/krisalay/refresh-cache/api"
	"github.com/krisalay/refresh-cache/clock"
	"github.com/krisalay/refresh-cache/engine"
	"github.com/krisalay/refresh-cache/expiration"
	"github.com/krisalay/refresh-cache/shard"
	"github.com/krisalay/refresh-cache/types"
)

var (
	// ErrInvalidConfig is returned for empty keys, non-positive TTLs, nil
	// regenerators and bad constructor options.
	ErrInvalidConfig = errors.New("cache: invalid configuration")

	// ErrClosed is returned by Get after Close.
	ErrClosed = errors.New("cache: closed")
)

var _ api.Cache = (*RefreshCache)(nil)

// Options configures a RefreshCache. The zero value is not usable: DefaultTTL
// must be set.
type Options struct {
	// DefaultTTL is used by GetDefault and by Slot.
	DefaultTTL time.Duration

	// Shards is the number of independent shards. Defaults to 1.
	Shards int

	// Namespace is prepended to every storage key as "namespace:key".
	// Callers always pass the bare key. The prefixed key is what log fields
	// carry, which tells caches apart when they share one logger.
	Namespace string

	// Dedupe makes concurrent regenerations of the same key share one call.
	Dedupe bool

	Expiration expiration.Strategy
	Clock      clock.Clock
	Metrics    types.Metrics
	Logger     *zerolog.Logger
}

/*
RefreshCache is the main cache implementation.
This struct is the orchestrator that connects:
- shards (storage)
- the engine (freshness, snapshots, metrics, logging)
- singleflight (optional regeneration dedupe)
*/
type RefreshCache struct {
	shards     []*shard.Shard
	engine     *engine.CacheEngine
	selector   shard.Selector
	defaultTTL time.Duration
	namespace  string
	dedupe     bool

	// sf lets concurrent callers that all found the same key stale wait on
	// one regeneration instead of starting their own.
	sf singleflight.Group

	closed atomic.Bool
}

// New builds a RefreshCache from opts. It fails fast on a non-positive
// DefaultTTL or a negative shard count.
func New(opts Options) (*RefreshCache, error) {
	if opts.DefaultTTL <= 0 {
		return nil, fmt.Errorf("%w: default ttl must be positive, got %s", ErrInvalidConfig, opts.DefaultTTL)
	}
	if opts.Shards < 0 {
		return nil, fmt.Errorf("%w: shard count must be positive, got %d", ErrInvalidConfig, opts.Shards)
	}
	if opts.Shards == 0 {
		opts.Shards = 1
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	s := make([]*shard.Shard, opts.Shards)
	for i := range s {
		s[i] = shard.NewShard()
	}

	return &RefreshCache{
		shards:     s,
		engine:     engine.NewCacheEngine(opts.Expiration, opts.Clock, opts.Metrics, logger),
		selector:   shard.HashSelector{},
		defaultTTL: opts.DefaultTTL,
		namespace:  opts.Namespace,
		dedupe:     opts.Dedupe,
	}, nil
}

// DefaultTTL returns the TTL used by GetDefault.
func (c *RefreshCache) DefaultTTL() time.Duration {
	return c.defaultTTL
}

func (c *RefreshCache) storageKey(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

/*
Get returns the value for key, regenerating it when there is no fresh entry
or when forceRefresh is set.
*/
func (c *RefreshCache) Get(
	ctx context.Context,
	key string,
	ttl time.Duration,
	forceRefresh bool,
	regenerate types.Regenerator,
) (types.Result, error) {

	switch {
	case key == "":
		return types.Result{}, fmt.Errorf("%w: empty key", ErrInvalidConfig)
	case ttl <= 0:
		return types.Result{}, fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidConfig, ttl)
	case regenerate == nil:
		return types.Result{}, fmt.Errorf("%w: nil regenerator for key %q", ErrInvalidConfig, key)
	}
	if c.closed.Load() {
		return types.Result{}, ErrClosed
	}

	skey := c.storageKey(key)
	sh := c.selector.Select(skey, c.shards)

	// Fast path: lock-free read of the current generation.
	now := c.engine.Now()
	ent, _ := sh.Store.Get(skey)
	fresh := ent != nil && c.engine.IsFresh(ent, now)

	c.engine.OnRead(ctx, skey, ent, fresh, forceRefresh)
	if fresh && !forceRefresh {
		return c.engine.Snapshot(ent, now, true), nil
	}

	stored, err := c.regenerate(ctx, sh, skey, ttl, forceRefresh, regenerate)
	if err != nil {
		return types.Result{}, err
	}
	return c.engine.Snapshot(stored, c.engine.Now(), false), nil
}

// GetDefault is Get with the cache's default TTL.
func (c *RefreshCache) GetDefault(
	ctx context.Context,
	key string,
	forceRefresh bool,
	regenerate types.Regenerator,
) (types.Result, error) {
	return c.Get(ctx, key, c.defaultTTL, forceRefresh, regenerate)
}

/*
regenerate runs the regenerator and stores its value. With dedupe on,
callers for the same key that arrive while a regeneration is in flight get
that regeneration's entry instead of starting another one.

A shared regeneration runs on a context that keeps the first caller's values
but not its cancellation, so one caller going away cannot fail the others.
A forced call never joins a flight that started before it: it forgets the
current flight and starts its own, which later stale readers then join.
*/
func (c *RefreshCache) regenerate(
	ctx context.Context,
	sh *shard.Shard,
	skey string,
	ttl time.Duration,
	force bool,
	fn types.Regenerator,
) (*types.CacheEntry, error) {

	load := func(ctx context.Context) (any, error) {
		val, err := c.engine.Regenerate(ctx, skey, fn)
		if err != nil {
			return nil, err
		}
		return sh.Replace(c.engine.NewEntry(skey, val, ttl)), nil
	}

	if !c.dedupe {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return v.(*types.CacheEntry), nil
	}

	if force {
		c.sf.Forget(skey)
	}
	shared := context.WithoutCancel(ctx)
	v, err, joined := c.sf.Do(skey, func() (any, error) {
		return load(shared)
	})
	if joined {
		c.engine.Metrics.Shared()
	}
	if err != nil {
		return nil, err
	}
	return v.(*types.CacheEntry), nil
}

// Peek returns what is stored for key without regenerating.
func (c *RefreshCache) Peek(key string) (types.Result, bool) {
	skey := c.storageKey(key)
	sh := c.selector.Select(skey, c.shards)

	ent, ok := sh.Store.Get(skey)
	if !ok {
		return types.Result{}, false
	}

	now := c.engine.Now()
	if c.engine.IsFresh(ent, now) {
		return c.engine.Snapshot(ent, now, true), true
	}
	return types.Result{
		Value:       ent.Value,
		Age:         ent.Age(now),
		GeneratedAt: ent.GeneratedAt,
	}, true
}

// Invalidate deletes the entry for key.
func (c *RefreshCache) Invalidate(key string) {
	skey := c.storageKey(key)
	c.selector.Select(skey, c.shards).Remove(skey)
}

// Len returns the number of stored entries across all shards.
func (c *RefreshCache) Len() int {
	var n int64
	for _, sh := range c.shards {
		n += sh.Store.Size()
	}
	return int(n)
}

// Close stops the cache from serving further Get calls.
func (c *RefreshCache) Close() {
	c.closed.Store(true)
}
