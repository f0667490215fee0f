package expiration

import (
	"time"

	"github.com/krisalay/refresh-cache/types"
)

/*
FixedWindow keeps an entry fresh for exactly its TTL, counted from the moment
it was generated. Reads do not extend the window.

An entry is fresh iff now - GeneratedAt < TTL. The boundary itself is stale.
*/
type FixedWindow struct{}

// IsFresh checks whether the entry is still inside its window.
func (FixedWindow) IsFresh(ent *types.CacheEntry, now time.Time) bool {
	if ent == nil || ent.TTL <= 0 {
		return false
	}
	return ent.Age(now) < ent.TTL
}

// Remaining is TTL minus age, clamped at zero.
func (FixedWindow) Remaining(ent *types.CacheEntry, now time.Time) time.Duration {
	if ent == nil {
		return 0
	}
	d := ent.TTL - ent.Age(now)
	if d < 0 {
		return 0
	}
	return d
}
