package service

import "sync"

// resultCacheEntry is a doubly-linked list node for the LRU decision cache.
type resultCacheEntry struct {
	key   uint64
	value cachedEvaluation
	prev  *resultCacheEntry
	next  *resultCacheEntry
}

// cachedEvaluation is the cacheable subset of policy.Evaluation: only the
// matched rule ID (or that no rule matched); decision, reason and
// constraints are resolved back against the current rule set on a hit.
// Only evaluations with no time-window,
// rate-limit, or CEL clause in the rule set are ever cached.
type cachedEvaluation struct {
	matchedRuleID string
	matched       bool
}

// resultCache is a bounded LRU cache for purely static policy decisions,
// keyed by an xxhash of (tool, category, target, params).
type resultCache struct {
	mu      sync.Mutex
	entries map[uint64]*resultCacheEntry
	head    *resultCacheEntry
	tail    *resultCacheEntry
	maxSize int
}

func newResultCache(maxSize int) *resultCache {
	return &resultCache{
		entries: make(map[uint64]*resultCacheEntry, maxSize),
		maxSize: maxSize,
	}
}

func (c *resultCache) Get(key uint64) (cachedEvaluation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		return e.value, true
	}
	return cachedEvaluation{}, false
}

func (c *resultCache) Put(key uint64, value cachedEvaluation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToHeadLocked(e)
		return
	}
	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}
	e := &resultCacheEntry{key: key, value: value}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

func (c *resultCache) moveToHeadLocked(e *resultCacheEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

func (c *resultCache) pushHeadLocked(e *resultCacheEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *resultCache) unlinkLocked(e *resultCacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *resultCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}
