package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
)

// LRUCache is a fixed-capacity LRU cache with per-entry expiry.
type LRUCache struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	capacity int
	entries  map[string]*lruEntry
	head     *lruEntry // most recently used
	tail     *lruEntry
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero never expires
	prev      *lruEntry
	next      *lruEntry
}

// NewLRUCache creates an LRU cache holding at most capacity entries.
// A nil clock means the real clock.
func NewLRUCache(capacity int, clk clockwork.Clock) *LRUCache {
	if capacity < 1 {
		capacity = 1
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &LRUCache{
		clock:    clk,
		capacity: capacity,
		entries:  make(map[string]*lruEntry),
	}
}

// Get returns the live value for key and marks it most recently used.
func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && !c.clock.Now().Before(entry.expiresAt) {
		c.unlink(entry)
		delete(c.entries, key)
		return nil, false
	}

	c.moveToFront(entry)
	return entry.value, true
}

// Set stores value under key. A non-positive ttl keeps the entry until it
// is evicted.
func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.clock.Now().Add(ttl)
	}

	if entry, ok := c.entries[key]; ok {
		entry.value = value
		entry.expiresAt = expiresAt
		c.moveToFront(entry)
		return nil
	}

	entry := &lruEntry{key: key, value: value, expiresAt: expiresAt}
	c.pushFront(entry)
	c.entries[key] = entry

	if len(c.entries) > c.capacity {
		oldest := c.tail
		c.unlink(oldest)
		delete(c.entries, oldest.key)
	}
	return nil
}

// Delete removes key if present.
func (c *LRUCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		c.unlink(entry)
		delete(c.entries, key)
	}
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *LRUCache) moveToFront(entry *lruEntry) {
	if entry == c.head {
		return
	}
	c.unlink(entry)
	c.pushFront(entry)
}

func (c *LRUCache) pushFront(entry *lruEntry) {
	entry.prev = nil
	entry.next = c.head
	if c.head != nil {
		c.head.prev = entry
	}
	c.head = entry
	if c.tail == nil {
		c.tail = entry
	}
}

func (c *LRUCache) unlink(entry *lruEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}
	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
	entry.prev = nil
	entry.next = nil
}

var _ ports.Cache = (*LRUCache)(nil)
