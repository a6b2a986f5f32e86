// Package chunkcache implements the Chunk Cache: an LRU bounded by BOTH a
// byte budget and an entry count, holding only raw (unpreprocessed) decoded
// chunks. Grounded on the source's ChunkDataCache, with one deliberate
// divergence: the cache key here NEVER includes preprocessing options — the
// source's key includes them, which this codebase treats as a bug to
// correct, not behavior to reproduce.
package chunkcache

import (
	"container/list"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"edfhub/internal/edf"
	"edfhub/internal/logging"
)

// Default bounds for a new cache when the caller passes zero values.
const (
	DefaultMaxBytes   = 50 * 1024 * 1024
	DefaultMaxEntries = 200
)

// Key identifies one raw chunk. preprocessingKey is always empty — raw-only
// caching — and is retained as an explicit field (rather than omitted
// entirely) so the invariant is visible at every call site and easy to
// assert on in tests.
type Key struct {
	Path             string
	ChunkStart       int64
	ChunkSize        int64
	preprocessingKey string
}

// NewKey builds a Key with the mandatory empty preprocessing sentinel.
func NewKey(path string, chunkStart, chunkSize int64) Key {
	return Key{Path: path, ChunkStart: chunkStart, ChunkSize: chunkSize}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d:%s", k.Path, k.ChunkStart, k.ChunkSize, k.preprocessingKey)
}

// Stats reports occupancy for the observability boundary.
type Stats struct {
	Entries    int
	MaxEntries int
	Bytes      int64
	MaxBytes   int64
}

type entry struct {
	key       Key
	chunk     *edf.Chunk
	sizeBytes int64
	insertedAt time.Time
	elem      *list.Element
}

// Cache is a byte- and count-bounded LRU of raw EDFChunks.
type Cache struct {
	mu         sync.Mutex
	maxBytes   int64
	maxEntries int
	curBytes   int64
	now        func() time.Time
	order      *list.List
	entries    map[string]*entry
	logger     *slog.Logger
}

// New creates a Cache bounded by maxBytes and maxEntries. Non-positive
// values are replaced by package defaults.
func New(maxBytes int64, maxEntries int, logger *slog.Logger) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
		now:        time.Now,
		order:      list.New(),
		entries:    make(map[string]*entry),
		logger:     logging.Default(logger).With("component", "chunkcache"),
	}
}

// Get returns a deep clone of the cached chunk for key, or (nil, false) if
// absent. The clone is produced while holding the lock so the caller never
// observes the stored buffer.
func (c *Cache) Get(key Key) (*edf.Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(e.elem)
	return e.chunk.Clone(), true
}

// Exists reports whether key is cached, without decoding or cloning.
func (c *Cache) Exists(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key.String()]
	return ok
}

// Put inserts the RAW chunk for key, evicting LRU entries until both the
// byte and entry budgets are satisfied (or the cache is empty). chunk is
// cloned before storage so later caller-side mutation cannot corrupt it.
func (c *Cache) Put(key Key, chunk *edf.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := chunk.Clone()
	size := stored.EstimatedSizeBytes()
	sk := key.String()

	if old, ok := c.entries[sk]; ok {
		c.curBytes -= old.sizeBytes
		c.removeLocked(old)
	}

	for (c.curBytes+size > c.maxBytes || len(c.entries) >= c.maxEntries) && c.order.Len() > 0 {
		back := c.order.Back()
		lru := back.Value.(*entry)
		c.curBytes -= lru.sizeBytes
		c.removeLocked(lru)
		c.logger.Debug("evicted chunk under budget pressure", "key", lru.key.String())
	}

	e := &entry{key: key, chunk: stored, sizeBytes: size, insertedAt: c.now()}
	e.elem = c.order.PushFront(e)
	c.entries[sk] = e
	c.curBytes += size
}

// InvalidatePath removes every entry whose key belongs to path.
func (c *Cache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sk, e := range c.entries {
		if e.key.Path == path {
			c.curBytes -= e.sizeBytes
			c.order.Remove(e.elem)
			delete(c.entries, sk)
		}
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*entry)
	c.curBytes = 0
}

// Stats returns the cache's current occupancy.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:    len(c.entries),
		MaxEntries: c.maxEntries,
		Bytes:      c.curBytes,
		MaxBytes:   c.maxBytes,
	}
}

func (c *Cache) removeLocked(e *entry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key.String())
}
