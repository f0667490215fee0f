package types

import "time"

// This file defines how the cache reports what it is doing.

/*
Metrics is an interface that defines what the cache wants to measure.
Each method represents an event in the cache lifecycle. The cache will call these methods whenever something happens.
*/
type Metrics interface {

	// Hit is called when a fresh entry is served.
	Hit()

	// Miss is called when no entry exists for the key.
	Miss()

	// Stale is called when an entry exists but is past its TTL.
	Stale()

	// Refresh is called when the caller forced a regeneration.
	Refresh()

	// Regenerated is called after a regeneration finishes, successfully or not.
	Regenerated(d time.Duration, err error)

	// Shared is called once per caller whose regeneration result was
	// handed to more than one caller of the same key.
	Shared()
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.

It lets the engine call metrics unconditionally, without
if metrics != nil checks on the hot path.
*/
type NoopMetrics struct{}

func (NoopMetrics) Hit()                             {}
func (NoopMetrics) Miss()                            {}
func (NoopMetrics) Stale()                           {}
func (NoopMetrics) Refresh()                         {}
func (NoopMetrics) Regenerated(time.Duration, error) {}
func (NoopMetrics) Shared()                          {}
