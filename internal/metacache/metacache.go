// Package metacache implements the Metadata Cache: a small ordered mapping
// with capacity and per-entry TTL, holding parsed EDF headers keyed by file
// path. Grounded on the source's FileMetadataCache (OrderedDict + RLock,
// move-to-end promotion, evict-oldest-on-capacity).
package metacache

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"edfhub/internal/edf"
	"edfhub/internal/logging"
)

// DefaultMaxSize and DefaultTTL are used when the caller passes zero values.
const (
	DefaultMaxSize = 100
	DefaultTTL     = 3600 * time.Second
)

// Stats reports the cache's current occupancy for the observability
// boundary served by GET /edf/cache/stats.
type Stats struct {
	Size     int
	MaxSize  int
	TTL      time.Duration
}

type entry struct {
	path      string
	metadata  *edf.FileMetadata
	insertedAt time.Time
	elem      *list.Element
}

// Cache is a capacity- and TTL-bounded LRU of FileMetadata, keyed by file
// path. All operations are O(1) and serialized by a single mutex.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	order   *list.List // MRU at front, LRU at back
	entries map[string]*entry
	logger  *slog.Logger
}

// New creates a Cache with the given capacity and TTL. A zero maxSize or ttl
// is replaced by the package defaults.
func New(maxSize int, ttl time.Duration, logger *slog.Logger) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		order:   list.New(),
		entries: make(map[string]*entry),
		logger:  logging.Default(logger).With("component", "metacache"),
	}
}

// Get returns the cached FileMetadata for path, or (nil, false) if absent or
// expired. An expired entry is evicted as part of the same call.
func (c *Cache) Get(path string) (*edf.FileMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.removeLocked(e)
		c.logger.Debug("metadata entry expired", "path", path)
		return nil, false
	}
	c.order.MoveToFront(e.elem)
	return e.metadata, true
}

// Put inserts or replaces the metadata for path, evicting the LRU entry if
// at capacity.
func (c *Cache) Put(path string, meta *edf.FileMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[path]; ok {
		e.metadata = meta
		e.insertedAt = c.now()
		c.order.MoveToFront(e.elem)
		return
	}

	if len(c.entries) >= c.maxSize {
		back := c.order.Back()
		if back != nil {
			lru := back.Value.(*entry)
			c.removeLocked(lru)
			c.logger.Debug("evicted metadata entry at capacity", "path", lru.path)
		}
	}

	e := &entry{path: path, metadata: meta, insertedAt: c.now()}
	e.elem = c.order.PushFront(e)
	c.entries[path] = e
}

// Remove evicts path's entry, if present.
func (c *Cache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok {
		c.removeLocked(e)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*entry)
}

// Stats returns the cache's current occupancy.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: len(c.entries), MaxSize: c.maxSize, TTL: c.ttl}
}

func (c *Cache) removeLocked(e *entry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.path)
}
