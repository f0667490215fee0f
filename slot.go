package cache

import (
	"context"

	"github.com/krisalay/refresh-cache/types"
)

// slotKey is the implicit key behind every Slot.
const slotKey = "slot"

/*
Slot is the single-entry form of the cache: one value shared by every caller,
no key. It is a RefreshCache with one implicit key and a fixed TTL.
*/
type Slot struct {
	cache *RefreshCache
}

// NewSlot builds a Slot whose TTL is opts.DefaultTTL. Shards and Namespace
// are ignored.
func NewSlot(opts Options) (*Slot, error) {
	opts.Shards = 1
	opts.Namespace = ""
	c, err := New(opts)
	if err != nil {
		return nil, err
	}
	return &Slot{cache: c}, nil
}

// Get returns the slot's value, regenerating when stale or when forced.
func (s *Slot) Get(ctx context.Context, forceRefresh bool, regenerate types.Regenerator) (types.Result, error) {
	return s.cache.GetDefault(ctx, slotKey, forceRefresh, regenerate)
}

// Peek reports the stored value without regenerating.
func (s *Slot) Peek() (types.Result, bool) {
	return s.cache.Peek(slotKey)
}

// Reset empties the slot.
func (s *Slot) Reset() {
	s.cache.Invalidate(slotKey)
}
