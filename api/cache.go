package cache

import (
	"context"
	"time"

	"github.com/krisalay/refresh-cache/types"
)

/*
Cache defines the PUBLIC API of the refresh cache.
Sharding, freshness rules, regeneration dedupe and the time source are all
hidden behind this interface.
*/
type Cache interface {

	/*
		Get returns the current value for key.

		BEHAVIOR:
		-------------------
		1. If forceRefresh is false and a fresh entry exists:
		   - Return it with FromCache=true, its age and the time left before it goes stale

		2. Otherwise (no entry, stale entry, or forceRefresh):
		   - Call regenerate
		   - Store the result as a new entry stamped with the current time
		   - Return it with FromCache=false, age 0 and a full TTL ahead

		If regenerate fails, the error is returned and nothing is stored.
		Empty keys, non-positive TTLs and nil regenerators are rejected with ErrInvalidConfig.
	*/
	Get(ctx context.Context, key string, ttl time.Duration, forceRefresh bool, regenerate types.Regenerator) (types.Result, error)

	/*
		GetDefault is Get with the TTL the cache was constructed with.
	*/
	GetDefault(ctx context.Context, key string, forceRefresh bool, regenerate types.Regenerator) (types.Result, error)

	/*
		Peek reports what is stored for key without regenerating.

		RETURN VALUES:
		--------------
		- ok=false                 : nothing stored
		- ok=true, FromCache=true  : entry is fresh
		- ok=true, FromCache=false : entry is stale; NextRefresh is 0
	*/
	Peek(key string) (types.Result, bool)

	/*
		Invalidate drops the entry for key. The next Get regenerates.
		Removing a non-existing key is safe.
	*/
	Invalidate(key string)

	// Len returns how many entries are stored, fresh or stale.
	Len() int

	/*
		Close marks the cache closed. Later Get calls fail with ErrClosed.
	*/
	Close()
}
