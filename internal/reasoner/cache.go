package reasoner

// cache is the Reasoner's exclusively-owned dedup state (spec.md §3's
// "Reasoner Cache"). It is never read or mutated by any other
// component; all three structures reset on process restart.
type cache struct {
	lastLLMBlock    uint64
	haveLastBlock   bool
	lastContextHash [16]byte
	haveLastHash    bool

	analyzedCapacity int
	analyzedOrder    []string
	analyzedSet      map[string]struct{}
}

func newCache(analyzedCapacity int) *cache {
	if analyzedCapacity <= 0 {
		analyzedCapacity = 1000
	}
	return &cache{
		analyzedCapacity: analyzedCapacity,
		analyzedSet:      make(map[string]struct{}),
	}
}

func (c *cache) sameBlockAsLastLLM(block uint64) bool {
	return c.haveLastBlock && c.lastLLMBlock == block
}

func (c *cache) sameContextAsLast(digest [16]byte) bool {
	return c.haveLastHash && c.lastContextHash == digest
}

func (c *cache) hasAnalyzed(key string) bool {
	_, ok := c.analyzedSet[key]
	return ok
}

// markAnalyzed inserts key, evicting the oldest entry if the set is
// now over analyzedCapacity.
func (c *cache) markAnalyzed(key string) {
	if c.hasAnalyzed(key) {
		return
	}
	c.analyzedSet[key] = struct{}{}
	c.analyzedOrder = append(c.analyzedOrder, key)
	if len(c.analyzedOrder) > c.analyzedCapacity {
		oldest := c.analyzedOrder[0]
		c.analyzedOrder = c.analyzedOrder[1:]
		delete(c.analyzedSet, oldest)
	}
}

// recordLLMCall updates last_llm_block/last_context_hash. Called on
// both parse success and parse failure (as long as a reply was
// obtained) to prevent retry storms, per spec.md §4.4; NEVER called on
// transport failure, so a timed-out cycle may retry next tick.
func (c *cache) recordLLMCall(block uint64, digest [16]byte) {
	c.lastLLMBlock = block
	c.haveLastBlock = true
	c.lastContextHash = digest
	c.haveLastHash = true
}
