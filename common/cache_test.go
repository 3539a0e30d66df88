package common

import "testing"

func TestHashCache_TracksMembershipUpToCapacity(t *testing.T) {
	c, err := NewHashCache(2)
	if err != nil {
		t.Fatalf("NewHashCache: %v", err)
	}

	a := BytesToHash([]byte("a"))
	b := BytesToHash([]byte("b"))
	cc := BytesToHash([]byte("c"))

	if c.Contains(a) {
		t.Fatal("empty cache should not contain a")
	}
	c.Add(a)
	c.Add(b)
	if !c.Contains(a) || !c.Contains(b) {
		t.Fatal("cache should contain both entries added within capacity")
	}

	c.Add(cc) // evicts a, the least recently used
	if c.Contains(a) {
		t.Fatal("adding past capacity should evict the oldest entry")
	}
	if !c.Contains(cc) {
		t.Fatal("cache should contain the newly added entry")
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}

	c.Purge()
	if c.Contains(b) || c.Contains(cc) {
		t.Fatal("Purge should clear all entries")
	}
}

func TestNewHashCache_RejectsSizeThatCollapsesToZero(t *testing.T) {
	prev := CacheScale
	CacheScale = 10
	defer func() { CacheScale = prev }()

	if _, err := NewHashCache(5); err == nil {
		t.Fatal("expected an error when size*CacheScale/100 rounds down to zero")
	}
}
