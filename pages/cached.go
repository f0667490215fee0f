package pages

import (
	"context"
	"net/url"
	"time"

	cache "github.com/krisalay/refresh-cache"
	"github.com/krisalay/refresh-cache/logging"
	"github.com/krisalay/refresh-cache/refresh"
	"github.com/krisalay/refresh-cache/types"
)

// CachedKey is the cache key the cached page stores its payload under.
const CachedKey = "cached-page-data"

// DefaultCachedTTL is how long the cached page serves one payload.
const DefaultCachedTTL = 30 * time.Second

// CachedResponse is DynamicData with the cache status merged in.
type CachedResponse struct {
	DynamicData
	CacheInfo
}

// Cached loads the cached page: a keyed entry with a 30 second window.
type Cached struct {
	cache *cache.RefreshCache
	gen   *Generator
	ttl   time.Duration
}

// NewCached wires the page to c. A non-positive ttl means DefaultCachedTTL.
func NewCached(c *cache.RefreshCache, gen *Generator, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCachedTTL
	}
	return &Cached{cache: c, gen: gen, ttl: ttl}
}

// TTL returns the page's cache window.
func (p *Cached) TTL() time.Duration { return p.ttl }

// Load answers one request. query is the request's query string; refresh=true forces a regeneration.
func (p *Cached) Load(ctx context.Context, query url.Values) (CachedResponse, error) {
	force := refresh.Requested(query)

	res, err := p.cache.Get(ctx, CachedKey, p.ttl, force, func(ctx context.Context) (any, error) {
		return p.gen.Dynamic(ctx)
	})
	if err != nil {
		return CachedResponse{}, err
	}

	logging.FromContext(ctx).Debug().
		Str("component", "pages").
		Str("page", "cached").
		Bool("forced", force).
		Bool("from_cache", res.FromCache).
		Msg("page data loaded")

	return CachedResponse{
		DynamicData: res.Value.(DynamicData).clone(),
		CacheInfo:   cacheInfo(res),
	}, nil
}

func cacheInfo(res types.Result) CacheInfo {
	return CacheInfo{
		FromCache:   res.FromCache,
		CacheAge:    res.CacheAge(),
		NextRefresh: res.NextRefreshIn(),
	}
}
