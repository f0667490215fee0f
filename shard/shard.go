package shard

import (
	"sync"

	"github.com/krisalay/refresh-cache/types"
)

/*
A Shard is a small, independent piece of the cache.
Instead of one big map behind one big lock, keys are spread across shards. Each shard:
- Holds some portion of the entries
- Has its own lock for writes

Reads are lock-free (see cowStore). Only writers take WriteMu.
*/
type Shard struct {
	Store ShardStore

	WriteMu sync.Mutex
}

func NewShard() *Shard {
	return &Shard{Store: NewCOWStore()}
}

/*
Replace stores ent under the shard's write lock and returns the entry that
ends up stored. Two regenerations that finish out of order cannot move a
key back to an older generation (see cowStore.Put).
*/
func (s *Shard) Replace(ent *types.CacheEntry) *types.CacheEntry {
	s.WriteMu.Lock()
	defer s.WriteMu.Unlock()
	return s.Store.Put(ent)
}

// Remove deletes key from the shard.
func (s *Shard) Remove(key string) {
	s.WriteMu.Lock()
	defer s.WriteMu.Unlock()
	s.Store.Delete(key)
}
