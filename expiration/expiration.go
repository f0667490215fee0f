// This file defines how cache entries go stale over time.

package expiration

import (
	"time"

	"github.com/krisalay/refresh-cache/types"
)

/*
Strategy is the interface that all freshness rules must follow. Instead of hard-coding
the staleness check into the cache, we define a strategy so it can be swapped easily.

Strategies must not mutate the entry: stored entries are immutable snapshots.
*/
type Strategy interface {

	// IsFresh reports whether the entry can still be served at now.
	IsFresh(ent *types.CacheEntry, now time.Time) bool

	// Remaining returns how long the entry stays fresh after now. Zero once stale.
	Remaining(ent *types.CacheEntry, now time.Time) time.Duration
}
