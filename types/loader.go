package types

import "context"

/*
Regenerator produces a fresh value for a key.

It is called when the cache misses, when the stored entry is stale, or when
the caller forces a refresh:
 1. Cache checks memory → no fresh entry (or refresh forced)
 2. Cache calls the Regenerator
 3. Regenerator fetches from DB/API/whatever
 4. Cache stores the result as a new entry
 5. Cache returns the value

The new entry's GeneratedAt is taken when the value is stored, after the
Regenerator returns, not when the request started. A slow Regenerator
therefore starts its window late, and the reported cacheAge can be up to
its latency lower than a request-start stamp would give.

If it returns an error, nothing is stored and the previous entry (if any)
stays exactly as it was.
*/
type Regenerator func(ctx context.Context) (any, error)
