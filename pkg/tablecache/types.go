package tablecache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTTL is how long a table read stays valid when no TTL is given.
const DefaultTTL = 300_000 * time.Millisecond

// Cache holds one JSON-encoded table read per slot.
// It is safe for concurrent use by multiple goroutines.
type Cache struct {
	mutex sync.RWMutex
	index map[string]slotEntry
	ttl   time.Duration
	now   func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

// slotEntry is empty when value is nil. gen changes on every reset so a
// Load that started before the reset does not store its result.
type slotEntry struct {
	value    []byte
	storedAt time.Time
	gen      uint64
}

// Option configures a Cache.
type Option func(*Cache)

// FetchFunc reads a table from upstream. Its result is JSON-encoded before it is cached.
type FetchFunc func(ctx context.Context) (any, error)

// EntryInfo describes a slot for introspection.
type EntryInfo struct {
	Slot      string
	Size      int
	StoredAt  time.Time
	ExpiresAt time.Time
	Valid     bool
}

// Stats counts Load outcomes since the cache was created.
type Stats struct {
	Hits   uint64
	Misses uint64
}
