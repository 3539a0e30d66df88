package common

import (
	"errors"

	lru "github.com/hashicorp/golang-lru"

	"github.com/vision-chain/vision-node/log"
)

var logger = log.NewModuleLogger("common")

// CacheScale lets an operator shrink every cache built through this package
// by a percentage, e.g. on a memory-constrained light node.
var CacheScale int = 100 // effective size = configured size * CacheScale / 100

// Cache is a membership/recency cache keyed by Hash: the P2P layer's
// known-block and known-tx de-dup sets are the only callers, so unlike the
// teacher's generic CacheKey-keyed abstraction (which also carried an ARC
// variant and a sharded-LRU variant for account/state caches this module
// doesn't have), this narrows straight to the one shape actually used —
// "have I already told this peer about hash X" — and drops the unused
// backends rather than keep them as dead weight.
type Cache interface {
	// Add records hash as seen, evicting the oldest entry if the cache is
	// full.
	Add(hash Hash) (evicted bool)
	// Contains reports whether hash was already recorded.
	Contains(hash Hash) bool
	Purge()
	Len() int
}

type hashLRU struct {
	lru *lru.Cache
}

// NewHashCache builds a fixed-capacity LRU sized for tracking which block
// and transaction hashes a peer has already seen, so gossip doesn't
// re-announce what the other side already has.
func NewHashCache(size int) (Cache, error) {
	size = size * CacheScale / 100
	if size < 1 {
		logger.Error("cache size collapsed to zero after scaling", "requestedSize", size, "cacheScale", CacheScale)
		return nil, errors.New("common: cache size must be positive after scaling")
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &hashLRU{lru: c}, nil
}

func (c *hashLRU) Add(hash Hash) (evicted bool) {
	return c.lru.Add(hash, struct{}{})
}

func (c *hashLRU) Contains(hash Hash) bool {
	return c.lru.Contains(hash)
}

func (c *hashLRU) Purge() {
	c.lru.Purge()
}

func (c *hashLRU) Len() int {
	return c.lru.Len()
}
