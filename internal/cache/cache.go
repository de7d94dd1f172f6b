// Package cache implements the proxy's bounded, in-memory LRU response
// cache. A single instance is shared by every connection worker; all
// exported methods are safe for concurrent use.
package cache

import (
	"context"
	"sync"

	"github.com/gocacheproxy/proxy/internal/logging"
	"github.com/gocacheproxy/proxy/internal/metrics"
)

// node is one resident entry. It lives in exactly two places at once: the
// index map (by key) and the doubly-linked LRU list (by recency). Sentinel
// head/tail nodes simplify list surgery at the ends.
type node struct {
	key  string
	data []byte
	size int
	prev *node
	next *node
}

// Cache is a thread-safe, byte-budgeted LRU store. The zero value is not
// usable; construct with New.
type Cache struct {
	mu             sync.RWMutex
	index          map[string]*node
	head, tail     *node // sentinels; head.next is MRU, tail.prev is LRU
	currentSize    int
	maxTotalSize   int
	maxElementSize int

	log     *logging.Logger
	metrics *metrics.Metrics
}

// New constructs an empty cache bounded by maxTotalSize aggregate bytes and
// maxElementSize bytes per entry. It must be called before any other method
// and corresponds to the source's cache_init.
func New(maxTotalSize, maxElementSize int, log *logging.Logger, m *metrics.Metrics) *Cache {
	head := &node{}
	tail := &node{}
	head.next = tail
	tail.prev = head

	return &Cache{
		index:          make(map[string]*node),
		head:           head,
		tail:           tail,
		maxTotalSize:   maxTotalSize,
		maxElementSize: maxElementSize,
		log:            log,
		metrics:        m,
	}
}

// Destroy releases all resident entries. No other method may be called
// afterwards. Mirrors the source's cache_destroy, which drains the hash
// table and LRU list under the write lock before tearing down the lock.
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index = nil
	c.head.next = c.tail
	c.tail.prev = c.head
	c.currentSize = 0
}

// Get looks up key. On a hit it returns a fresh copy of the stored payload
// and promotes the entry to most-recently-used; on a miss it returns
// (nil, 0, false).
//
// The lookup itself runs under a read lock so concurrent Gets never block
// each other. Because a hit requires a mutation (the promotion), Get then
// releases the read lock, re-acquires in write mode, and re-walks the
// index before touching the list — the entry may have been evicted by a
// concurrent Put in the gap between the two lock acquisitions, in which
// case Get reports a miss rather than operating on a freed node.
func (c *Cache) Get(key string) ([]byte, int, bool) {
	c.mu.RLock()
	n, ok := c.index[key]
	c.mu.RUnlock()
	if !ok {
		c.metrics.CacheMiss()
		return nil, 0, false
	}

	c.mu.Lock()
	n, ok = c.index[key]
	if !ok {
		c.mu.Unlock()
		c.metrics.CacheMiss()
		return nil, 0, false
	}
	c.detach(n)
	c.attachFront(n)
	cp := make([]byte, n.size)
	copy(cp, n.data)
	size := n.size
	c.mu.Unlock()

	c.metrics.CacheHit()
	return cp, size, true
}

// Put conditionally admits data under key. Oversize payloads
// (size > maxElementSize) are silently rejected. An existing key has its
// payload replaced in place and is promoted to MRU; a new key is inserted
// at MRU after evicting from the tail until the budget holds.
//
// size is taken as an explicit parameter (rather than len(data)) to mirror
// the source's cache_put(url, data, size) signature; callers that already
// have len(data) should pass that value.
func (c *Cache) Put(key string, data []byte, size int) {
	if size > c.maxElementSize {
		return
	}

	payload := make([]byte, size)
	copy(payload, data)

	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.index[key]; ok {
		c.currentSize -= n.size
		n.data = payload
		n.size = size
		c.currentSize += size
		c.detach(n)
		c.attachFront(n)
		c.evict(0)
		c.metrics.CacheAdmission()
		c.metrics.SetCacheSize(c.currentSize)
		return
	}

	c.evict(size)

	n := &node{key: key, data: payload, size: size}
	c.attachFront(n)
	c.index[key] = n
	c.currentSize += size
	c.metrics.CacheAdmission()
	c.metrics.SetCacheSize(c.currentSize)
	c.log.Info(context.Background(), "cache admit", "key", key, "size", size, "current_size", c.currentSize)
}

// evict removes entries from the tail until admitting spaceNeeded more
// bytes would not exceed maxTotalSize. Called with the write lock held. It
// never evicts a node that isn't yet linked (the node currently being
// inserted is attached only after evict returns), so it can't evict the
// entry it is making room for.
func (c *Cache) evict(spaceNeeded int) {
	for c.currentSize+spaceNeeded > c.maxTotalSize {
		victim := c.tail.prev
		if victim == c.head {
			return
		}
		c.detach(victim)
		delete(c.index, victim.key)
		c.currentSize -= victim.size
		c.metrics.CacheEviction()
		c.log.Info(context.Background(), "cache evict", "key", victim.key, "size", victim.size)
	}
}

func (c *Cache) detach(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (c *Cache) attachFront(n *node) {
	n.next = c.head.next
	n.prev = c.head
	c.head.next.prev = n
	c.head.next = n
}

// Len reports the number of resident entries. Intended for tests and
// metrics gauges, not part of the cache's correctness contract.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index)
}

// CurrentSize reports current_size as defined in the cache's invariants.
func (c *Cache) CurrentSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentSize
}
