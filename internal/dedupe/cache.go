// ABOUTME: Thread-safe TTL cache for idempotency keys on chat turns.
// ABOUTME: A replayed key within the TTL means the turn is a duplicate.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache remembers recently seen idempotency keys. Size-limited with
// oldest-first eviction; entries expire after the TTL. Safe for concurrent
// use.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size. A background
// goroutine sweeps expired entries until Close is called.
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

// CheckAndMark atomically checks whether key was seen within the TTL and
// marks it if not. Returns true for a duplicate, false for a fresh key that
// is now marked. The single lock acquisition avoids check-then-mark races.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok && time.Since(e.seenAt) < c.ttl {
		return true
	}
	c.mark(key)
	return false
}

// Check reports whether key was seen within the TTL, without marking.
func (c *Cache) Check(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[key]
	return ok && time.Since(e.seenAt) < c.ttl
}

// mark records key as seen now. Must be called with mu held.
func (c *Cache) mark(key string) {
	if e, ok := c.seen[key]; ok {
		e.seenAt = time.Now()
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			c.order.Remove(front)
			delete(c.seen, front.Value.(string))
		}
	}

	c.seen[key] = &entry{
		seenAt:  time.Now(),
		element: c.order.PushBack(key),
	}
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
	for key, e := range c.seen {
		if now.Sub(e.seenAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, key)
		}
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
