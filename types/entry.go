package types

import "time"

/*
CacheEntry is one generation of a cached value.

Entries are never mutated after they are stored. A regeneration builds a
brand new CacheEntry and the store swaps it in, so a reader holding an old
pointer keeps seeing a consistent snapshot.
*/
type CacheEntry struct {
	Key         string
	Value       any
	GeneratedAt time.Time
	TTL         time.Duration
}

// Age returns how long ago the entry was generated. It never goes negative.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	d := now.Sub(e.GeneratedAt)
	if d < 0 {
		return 0
	}
	return d
}
