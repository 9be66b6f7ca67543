package mining

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/emberchain/emberd/core"
)

// blocksWaitingForPoWSize is the capacity of the work cache. When a new
// candidate overflows it, the oldest inserted entry is dropped, even if a
// miner is about to submit against it; such a submission then reports an
// unknown hash.
const blocksWaitingForPoWSize = 20

// workCache is the bounded cache of candidate blocks waiting for proof of
// work, keyed by their merged mining hash. Eviction is strictly oldest
// inserted first: lookups go through Peek so they never refresh an entry's
// position in the eviction order.
//
// workCache is not safe for concurrent use; the miner server accesses it
// under its state lock.
type workCache struct {
	cache *lru.Cache[core.Hash, *core.Block]
}

func newWorkCache() *workCache {
	cache, err := lru.New[core.Hash, *core.Block](blocksWaitingForPoWSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &workCache{cache: cache}
}

// insert adds a candidate under its merged mining hash, evicting the oldest
// entry if the cache is full.
func (wc *workCache) insert(hashForMergedMining core.Hash, block *core.Block) {
	wc.cache.Add(hashForMergedMining, block)
}

// get returns the candidate cached under the given merged mining hash, or
// nil. A get does not count as a use for eviction purposes.
func (wc *workCache) get(hashForMergedMining core.Hash) *core.Block {
	block, ok := wc.cache.Peek(hashForMergedMining)
	if !ok {
		return nil
	}
	return block
}

// len returns the number of cached candidates.
func (wc *workCache) len() int {
	return wc.cache.Len()
}
