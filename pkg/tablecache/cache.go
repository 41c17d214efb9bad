// Package tablecache provides a fixed set of cache slots, one per table,
// each holding the JSON encoding of the table's last read. Entries expire
// lazily after a TTL and are reset explicitly after writes.
package tablecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns a cache with every slot empty. If ttl <= 0, DefaultTTL is used.
func New(ttl time.Duration, slots []string, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		index: make(map[string]slotEntry, len(slots)),
		ttl:   ttl,
		now:   time.Now,
	}
	for _, slot := range slots {
		c.index[slot] = slotEntry{}
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// TTL returns the validity window of a slot.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func (e slotEntry) valid(now time.Time, ttl time.Duration) bool {
	return e.value != nil && now.Sub(e.storedAt) < ttl
}

// Get returns a copy of the cached bytes for slot if the entry is still valid.
// It returns ErrUnknownSlot for slots the cache was not built with and
// ErrNotFound for empty or expired slots.
func (c *Cache) Get(slot string) ([]byte, error) {
	data, _, err := c.get(slot)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(data))
	copy(out, data)

	return out, nil
}

// get returns the stored bytes without copying, along with the slot
// generation they were read under.
func (c *Cache) get(slot string) ([]byte, uint64, error) {
	now := c.now()

	c.mutex.RLock()
	entry, ok := c.index[slot]
	c.mutex.RUnlock()

	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}
	if !entry.valid(now, c.ttl) {
		return nil, entry.gen, ErrNotFound
	}

	return entry.value, entry.gen, nil
}

// Set stores already encoded JSON for slot, stamped with the current time.
func (c *Cache) Set(slot string, data []byte) error {
	if data == nil {
		return ErrNilValue
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	now := c.now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.index[slot]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}
	c.index[slot] = slotEntry{value: buf, storedAt: now, gen: entry.gen}

	return nil
}

// store is Set for data Load already owns. It is a no-op when slot was
// reset after gen was read.
func (c *Cache) store(slot string, data []byte, gen uint64) {
	now := c.now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry, ok := c.index[slot]; ok && entry.gen == gen {
		c.index[slot] = slotEntry{value: data, storedAt: now, gen: gen}
	}
}

// SetJSON marshals v and stores it under slot.
func (c *Cache) SetJSON(slot string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.Set(slot, data)
}

// Load returns the cached bytes for slot, or calls fetch, caches the JSON
// encoding of its result and returns that. A fetch error is returned as is
// and leaves the slot untouched.
//
// Concurrent misses on the same slot each call fetch; the last one to
// finish wins. A result is returned but not cached if the slot was reset
// while fetch ran.
func (c *Cache) Load(ctx context.Context, slot string, fetch FetchFunc) ([]byte, error) {
	data, gen, err := c.get(slot)
	if err == nil {
		c.hits.Add(1)
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	c.misses.Add(1)

	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	data, err = json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cache: encode %q: %w", slot, err)
	}
	c.store(slot, data, gen)

	out := make([]byte, len(data))
	copy(out, data)

	return out, nil
}

// Invalidate resets slot to empty. It reports whether slot held data.
func (c *Cache) Invalidate(slot string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.index[slot]
	if !ok {
		return false
	}
	c.index[slot] = slotEntry{gen: entry.gen + 1}

	return entry.value != nil
}

// Clear resets every slot regardless of its TTL.
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for slot, e := range c.index {
		c.index[slot] = slotEntry{gen: e.gen + 1}
	}
}

// Len returns the number of slots currently holding valid data.
func (c *Cache) Len() int {
	now := c.now()

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	n := 0
	for _, e := range c.index {
		if e.valid(now, c.ttl) {
			n++
		}
	}

	return n
}

// Entries returns a snapshot of every slot sorted by name.
func (c *Cache) Entries() []EntryInfo {
	now := c.now()

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	info := make([]EntryInfo, 0, len(c.index))
	for slot, e := range c.index {
		ei := EntryInfo{
			Slot:     slot,
			Size:     len(e.value),
			StoredAt: e.storedAt,
			Valid:    e.valid(now, c.ttl),
		}
		if e.value != nil {
			ei.ExpiresAt = e.storedAt.Add(c.ttl)
		}
		info = append(info, ei)
	}
	sort.Slice(info, func(i, j int) bool { return info[i].Slot < info[j].Slot })

	return info
}

// Stats returns the hit and miss counters of Load.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// String returns a summary string in the format `Cache(slots={int}, valid={int})`.
// It implements the fmt.Stringer interface.
func (c *Cache) String() string {
	c.mutex.RLock()
	slots := len(c.index)
	c.mutex.RUnlock()

	return fmt.Sprintf("Cache(slots=%d, valid=%d)", slots, c.Len())
}
