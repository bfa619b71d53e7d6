package session

import (
	"container/list"
	"sync"
	"time"
)

// EvictReason says why an entry left the cache.
type EvictReason string

const (
	EvictSize          EvictReason = "size"
	EvictExpiredWrite  EvictReason = "expired_write"
	EvictExpiredAccess EvictReason = "expired_access"
	EvictExplicit      EvictReason = "explicit"
	EvictClosed        EvictReason = "closed"
)

// Options configure a Cache. Zero durations disable the matching expiry.
type Options[K comparable, V any] struct {
	MaxEntries int
	// WriteTTL expires entries this long after creation.
	WriteTTL time.Duration
	// AccessTTL expires entries this long after the last read.
	AccessTTL       time.Duration
	CleanupInterval time.Duration
	OnEvict         func(key K, value V, reason EvictReason)
	// Now overrides the clock in tests.
	Now func() time.Time
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	createdAt  time.Time
	accessedAt time.Time
	element    *list.Element
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

type eviction[K comparable, V any] struct {
	key    K
	value  V
	reason EvictReason
}

// Cache is a size-bounded LRU with write and access expiry, plus per-key locks that
// outlive entry eviction.
type Cache[K comparable, V any] struct {
	opts      Options[K, V]
	mu        sync.Mutex
	entries   map[K]*entry[K, V]
	evictList *list.List

	locksMu sync.Mutex
	locks   map[K]*keyLock

	cleanupStop chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

func New[K comparable, V any](opts Options[K, V]) *Cache[K, V] {
	if opts.MaxEntries < 1 {
		opts.MaxEntries = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Cache[K, V]{
		opts:        opts,
		entries:     make(map[K]*entry[K, V]),
		evictList:   list.New(),
		locks:       make(map[K]*keyLock),
		cleanupStop: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	if opts.CleanupInterval > 0 {
		go c.cleanupLoop()
	} else {
		close(c.cleanupDone)
	}
	return c
}

func (c *Cache[K, V]) cleanupLoop() {
	defer close(c.cleanupDone)
	ticker := time.NewTicker(c.opts.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Cleanup()
		case <-c.cleanupStop:
			return
		}
	}
}

// Get returns a live entry and refreshes its access time.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	v, ok, evicted := c.getLocked(key)
	c.mu.Unlock()
	c.notify(evicted)
	return v, ok
}

func (c *Cache[K, V]) getLocked(key K) (V, bool, []eviction[K, V]) {
	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false, nil
	}
	now := c.opts.Now()
	if reason, expired := c.expired(e, now); expired {
		return zero, false, []eviction[K, V]{c.removeLocked(e, reason)}
	}
	e.accessedAt = now
	c.evictList.MoveToFront(e.element)
	return e.value, true, nil
}

// GetOrCreate returns the cached value for key, calling create when it is missing or
// expired. create runs without the cache lock held; when two callers race, the first
// stored value wins.
func (c *Cache[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	if existing, ok, evicted := c.getLocked(key); ok {
		c.mu.Unlock()
		c.notify(evicted)
		return existing, nil
	}
	now := c.opts.Now()
	e := &entry[K, V]{key: key, value: v, createdAt: now, accessedAt: now}
	e.element = c.evictList.PushFront(e)
	c.entries[key] = e
	var evicted []eviction[K, V]
	for c.evictList.Len() > c.opts.MaxEntries {
		oldest := c.evictList.Back().Value.(*entry[K, V])
		evicted = append(evicted, c.removeLocked(oldest, EvictSize))
	}
	c.mu.Unlock()
	c.notify(evicted)
	return v, nil
}

// Invalidate removes key if present.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	var evicted []eviction[K, V]
	if e, ok := c.entries[key]; ok {
		evicted = append(evicted, c.removeLocked(e, EvictExplicit))
	}
	c.mu.Unlock()
	c.notify(evicted)
}

// Len counts stored entries, including expired ones not yet cleaned up.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cleanup removes expired entries and returns how many were removed.
func (c *Cache[K, V]) Cleanup() int {
	c.mu.Lock()
	now := c.opts.Now()
	var evicted []eviction[K, V]
	for _, e := range c.entries {
		if reason, expired := c.expired(e, now); expired {
			evicted = append(evicted, c.removeLocked(e, reason))
		}
	}
	c.mu.Unlock()
	c.notify(evicted)
	return len(evicted)
}

// Lock serializes work on key and returns the matching unlock. The lock is independent of
// the entry, so it holds across eviction and re-creation.
func (c *Cache[K, V]) Lock(key K) func() {
	c.locksMu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &keyLock{}
		c.locks[key] = l
	}
	l.refs++
	c.locksMu.Unlock()

	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			c.locksMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(c.locks, key)
			}
			c.locksMu.Unlock()
		})
	}
}

// Close stops background cleanup and evicts every entry.
func (c *Cache[K, V]) Close() {
	c.closeOnce.Do(func() {
		close(c.cleanupStop)
		<-c.cleanupDone

		c.mu.Lock()
		evicted := make([]eviction[K, V], 0, len(c.entries))
		for _, e := range c.entries {
			evicted = append(evicted, c.removeLocked(e, EvictClosed))
		}
		c.mu.Unlock()
		c.notify(evicted)
	})
}

func (c *Cache[K, V]) expired(e *entry[K, V], now time.Time) (EvictReason, bool) {
	if c.opts.WriteTTL > 0 && now.Sub(e.createdAt) >= c.opts.WriteTTL {
		return EvictExpiredWrite, true
	}
	if c.opts.AccessTTL > 0 && now.Sub(e.accessedAt) >= c.opts.AccessTTL {
		return EvictExpiredAccess, true
	}
	return "", false
}

func (c *Cache[K, V]) removeLocked(e *entry[K, V], reason EvictReason) eviction[K, V] {
	c.evictList.Remove(e.element)
	delete(c.entries, e.key)
	return eviction[K, V]{key: e.key, value: e.value, reason: reason}
}

// notify runs the eviction callback outside the cache lock.
func (c *Cache[K, V]) notify(evicted []eviction[K, V]) {
	if c.opts.OnEvict == nil {
		return
	}
	for _, ev := range evicted {
		c.opts.OnEvict(ev.key, ev.value, ev.reason)
	}
}
