package types

import "time"

// Result is what a caller gets back from the cache. It is a copy; it never
// aliases the stored entry.
type Result struct {
	Value any

	// FromCache reports whether the value was served from a fresh entry
	// (true) or produced by a regeneration during this call (false).
	FromCache bool

	// Age is how old the value is. Zero for a freshly regenerated value.
	Age time.Duration

	// NextRefresh is how long until the value turns stale.
	NextRefresh time.Duration

	GeneratedAt time.Time
}

// CacheAge is Age in whole seconds, rounded down.
func (r Result) CacheAge() int {
	if r.Age <= 0 {
		return 0
	}
	return int(r.Age / time.Second)
}

// NextRefreshIn is NextRefresh in whole seconds, rounded up.
func (r Result) NextRefreshIn() int {
	if r.NextRefresh <= 0 {
		return 0
	}
	secs := r.NextRefresh / time.Second
	if r.NextRefresh%time.Second != 0 {
		secs++
	}
	return int(secs)
}
