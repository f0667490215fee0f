package shard

import (
	"sync/atomic"

	"github.com/krisalay/refresh-cache/types"
)

/*
This file defines how entries are actually stored inside a shard. This is NOT a normal map.
- Reads should be very fast
- Reads should NOT require locks
- A write must replace the whole entry in one step from a reader's point of view

To achieve this, we use a technique called: "Copy-On-Write" (COW)
*/

// ShardStore is the interface used by a shard to store and retrieve cache entries.
type ShardStore interface {

	// Get retrieves an entry by key.
	Get(string) (*types.CacheEntry, bool)

	// Put stores ent under ent.Key unless a newer generation is already
	// stored, and returns whichever entry ends up stored.
	Put(*types.CacheEntry) *types.CacheEntry

	// Delete removes an entry.
	Delete(string)

	// Size returns how many entries are stored.
	Size() int64
}

/*
cowStore is a Copy-On-Write implementation of ShardStore.

- Readers always see an immutable snapshot of the map
- Writers build a NEW map and swap it in atomically

Writers must be serialized by the caller (the shard mutex).
*/
type cowStore struct {
	data atomic.Pointer[map[string]*types.CacheEntry]

	// size is kept separately so Size never touches the map.
	size atomic.Int64
}

func NewCOWStore() ShardStore {
	s := &cowStore{}
	m := make(map[string]*types.CacheEntry)
	s.data.Store(&m)
	return s
}

func (s *cowStore) Get(key string) (*types.CacheEntry, bool) {
	m := *s.data.Load()
	ent, ok := m[key]
	return ent, ok
}

/*
Put stores a new generation of ent.Key.

A generation older than the stored one is dropped and the stored entry is
returned instead, so GeneratedAt never goes backwards for a key. Equal
timestamps replace. Otherwise the map is copied with the entry swapped in
and the copy is published in one atomic store.
*/
func (s *cowStore) Put(ent *types.CacheEntry) *types.CacheEntry {
	old := *s.data.Load()
	if cur, ok := old[ent.Key]; ok && cur.GeneratedAt.After(ent.GeneratedAt) {
		return cur
	}

	n := make(map[string]*types.CacheEntry, len(old)+1)
	for k, v := range old {
		n[k] = v
	}
	n[ent.Key] = ent

	s.data.Store(&n)
	s.size.Store(int64(len(n)))
	return ent
}

// Delete removes an entry. Just like Put, this uses copy-on-write.
func (s *cowStore) Delete(key string) {
	old := *s.data.Load()
	if _, ok := old[key]; !ok {
		return
	}

	n := make(map[string]*types.CacheEntry, len(old))
	for k, v := range old {
		if k != key {
			n[k] = v
		}
	}

	s.data.Store(&n)
	s.size.Store(int64(len(n)))
}

func (s *cowStore) Size() int64 {
	return s.size.Load()
}
