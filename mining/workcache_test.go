package mining

import (
	"testing"

	"github.com/emberchain/emberd/core"
)

func cacheKey(i int) core.Hash {
	var hash core.Hash
	hash[0] = byte(i)
	hash[1] = byte(i >> 8)
	return hash
}

func cacheBlock(i int) *core.Block {
	return core.NewBlock(&core.BlockHeader{Number: uint64(i)}, nil, nil)
}

func TestWorkCacheEvictsOldestInserted(t *testing.T) {
	cache := newWorkCache()
	for i := 0; i < blocksWaitingForPoWSize; i++ {
		cache.insert(cacheKey(i), cacheBlock(i))
	}
	if cache.len() != blocksWaitingForPoWSize {
		t.Fatalf("len: got %d, want %d", cache.len(), blocksWaitingForPoWSize)
	}
	if cache.get(cacheKey(0)) == nil {
		t.Fatalf("the oldest entry is missing before overflow")
	}

	cache.insert(cacheKey(blocksWaitingForPoWSize), cacheBlock(blocksWaitingForPoWSize))
	if cache.len() != blocksWaitingForPoWSize {
		t.Fatalf("len after overflow: got %d, want %d", cache.len(), blocksWaitingForPoWSize)
	}
	if cache.get(cacheKey(0)) != nil {
		t.Fatalf("the oldest entry survived the overflow")
	}
	for i := 1; i <= blocksWaitingForPoWSize; i++ {
		block := cache.get(cacheKey(i))
		if block == nil {
			t.Fatalf("entry %d is missing after overflow", i)
		}
		if block.Number() != uint64(i) {
			t.Fatalf("entry %d: got block %d", i, block.Number())
		}
	}
}

func TestWorkCacheGetDoesNotRefreshEvictionOrder(t *testing.T) {
	cache := newWorkCache()
	for i := 0; i < blocksWaitingForPoWSize; i++ {
		cache.insert(cacheKey(i), cacheBlock(i))
	}

	// A lookup of the oldest entry must not save it from eviction.
	if cache.get(cacheKey(0)) == nil {
		t.Fatalf("the oldest entry is missing before overflow")
	}
	cache.insert(cacheKey(blocksWaitingForPoWSize), cacheBlock(blocksWaitingForPoWSize))
	if cache.get(cacheKey(0)) != nil {
		t.Fatalf("a lookup refreshed the oldest entry's eviction order")
	}
}

func TestWorkCacheMiss(t *testing.T) {
	cache := newWorkCache()
	if cache.get(cacheKey(1)) != nil {
		t.Fatalf("get on an empty cache returned a block")
	}
}
