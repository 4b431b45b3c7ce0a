// ABOUTME: Thread-safe TTL cache for deduplicating bot reply requests.
// ABOUTME: Tracks request IDs so retried reply requests trigger only one bot response.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry stores the insertion time and list element for a request ID.
type entry struct {
	at   time.Time
	elem *list.Element
}

// Cache tracks recently seen request IDs. A client that retries a reply
// request after a timeout reuses its request ID; the cache lets the gateway
// accept the retry without asking the bot twice.
//
// Entries expire after a TTL and the cache holds at most maxSize entries,
// evicting the oldest first. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // request IDs in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size. A background
// goroutine sweeps expired entries once per minute.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Seen atomically checks whether the request ID was already recorded and
// records it if not. Returns true for a duplicate, false for a first sight.
func (c *Cache) Seen(requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, ok := c.seen[requestID]; ok && now.Sub(e.at) < c.ttl {
		return true
	}

	// First sight, or expired: (re)record it
	if e, ok := c.seen[requestID]; ok {
		e.at = now
		c.order.MoveToBack(e.elem)
		return false
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}
	c.seen[requestID] = &entry{at: now, elem: c.order.PushBack(requestID)}
	return false
}

// Len reports the number of live entries, counting any not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes all expired entries.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var next *list.Element
	for elem := c.order.Front(); elem != nil; elem = next {
		next = elem.Next()
		key, _ := elem.Value.(string)
		e := c.seen[key]
		if e == nil || now.Sub(e.at) <= c.ttl {
			// Insertion order means everything after this is younger
			break
		}
		c.order.Remove(elem)
		delete(c.seen, key)
	}
}

// Close stops the background sweeper. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
