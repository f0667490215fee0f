package pages

import (
	"context"
	"net/url"
	"time"

	cache "github.com/krisalay/refresh-cache"
	"github.com/krisalay/refresh-cache/logging"
	"github.com/krisalay/refresh-cache/refresh"
)

// DefaultSimpleTTL is how long the simple-cached page serves one payload.
const DefaultSimpleTTL = 10 * time.Second

// SimpleResponse is SimpleData with the cache status merged in.
type SimpleResponse struct {
	SimpleData
	CacheInfo
}

// SimpleCached loads the simple-cached page from a single process-wide slot.
type SimpleCached struct {
	slot *cache.Slot
	gen  *Generator
}

// NewSimpleCached wires the page to slot; the slot's TTL is the page's window.
func NewSimpleCached(slot *cache.Slot, gen *Generator) *SimpleCached {
	return &SimpleCached{slot: slot, gen: gen}
}

func (p *SimpleCached) Load(ctx context.Context, query url.Values) (SimpleResponse, error) {
	force := refresh.Requested(query)

	res, err := p.slot.Get(ctx, force, func(ctx context.Context) (any, error) {
		return p.gen.Simple(ctx)
	})
	if err != nil {
		return SimpleResponse{}, err
	}

	logging.FromContext(ctx).Debug().
		Str("component", "pages").
		Str("page", "simple-cached").
		Bool("forced", force).
		Bool("from_cache", res.FromCache).
		Msg("page data loaded")

	return SimpleResponse{
		SimpleData: res.Value.(SimpleData),
		CacheInfo:  cacheInfo(res),
	}, nil
}
