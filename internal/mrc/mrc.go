// Package mrc caches manifest request codes with Steam-phase-aligned
// eviction, bounded to 128 entries, and spreads cache misses round-robin
// across the accounts that own a depot.
package mrc

import (
	"context"
	"sync"
	"time"

	"github.com/teknology-hub/tek-s3/internal/catalog"
	"github.com/teknology-hub/tek-s3/internal/steamcm"
	"github.com/teknology-hub/tek-s3/pkg/metrics"
)

const (
	cacheCap     = 128
	phaseWindow  = 300 // seconds; Steam refreshes MRCs on a 5-minute phase
	phaseOffset  = 240 // seconds past the boundary
	fetchTimeout = 2 * time.Second
)

type entry struct {
	code    uint64
	evictAt time.Time
}

// Cache is a 128-entry-bounded MRC cache plus dispatcher, backed by a
// plain map keyed by manifest ID: on overflow the entry with the
// smallest manifest ID is evicted, not the least-recently-used one.
// Clock is overridable for tests; defaults to time.Now.
type Cache struct {
	mu      sync.Mutex
	entries map[uint64]entry
	store   *catalog.Store
	dial    func(steamID uint64) steamcm.Client
	now     func() time.Time

	hits, misses int
}

func NewCache(store *catalog.Store, dial func(steamID uint64) steamcm.Client) *Cache {
	return &Cache{
		entries: map[uint64]entry{},
		store:   store,
		dial:    dial,
		now:     time.Now,
	}
}

// NextEviction computes the Steam-phase-aligned eviction deadline for an
// insertion at wall-clock t: the next 5-minute boundary offset by +240
// seconds, yielding a remaining TTL of at most 5 minutes.
func NextEviction(t time.Time) time.Time {
	now := t.Unix()
	boundary := ((now + 60) / phaseWindow) * phaseWindow + phaseOffset
	return time.Unix(boundary, 0)
}

// Get returns a cached MRC for manifestID if present and not yet evicted.
func (c *Cache) Get(manifestID uint64) (uint64, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[manifestID]
	if !ok {
		c.misses++
		metrics.MRCMisses.Inc()
		return 0, time.Time{}, false
	}
	if !c.now().Before(e.evictAt) {
		delete(c.entries, manifestID)
		c.misses++
		metrics.MRCMisses.Inc()
		return 0, time.Time{}, false
	}
	c.hits++
	metrics.MRCHits.Inc()
	return e.code, e.evictAt, true
}

// Fetch resolves an MRC for (appID, depotID, manifestID): a cache hit
// returns immediately, a miss round-robins to the depot's next owning
// account and issues a CM request with a 2-second timeout.
func (c *Cache) Fetch(ctx context.Context, appID, depotID uint32, manifestID uint64) (code uint64, evictAt time.Time, err error) {
	if code, evictAt, ok := c.Get(manifestID); ok {
		return code, evictAt, nil
	}

	steamID, ok := c.store.NextAccountForDepot(appID, depotID)
	if !ok {
		return 0, time.Time{}, steamcm.ErrMissingToken
	}
	client := c.dial(steamID)

	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	mrcVal, err := client.GetManifestRequestCode(fctx, appID, depotID, manifestID)
	if err != nil {
		return 0, time.Time{}, err
	}

	evictAt = c.insert(manifestID, mrcVal)
	return mrcVal, evictAt, nil
}

func (c *Cache) insert(manifestID, code uint64) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	evictAt := NextEviction(c.now())
	c.entries[manifestID] = entry{code: code, evictAt: evictAt}
	time.AfterFunc(evictAt.Sub(c.now()), func() { c.Evict(manifestID) })

	for len(c.entries) > cacheCap {
		var minKey uint64
		first := true
		for k := range c.entries {
			if first || k < minKey {
				minKey = k
				first = false
			}
		}
		delete(c.entries, minKey)
	}
	return evictAt
}

// Evict drops an entry immediately; called by the per-entry timer insert
// schedules for the entry's eviction time. Get also drops an entry it
// finds past that time.
func (c *Cache) Evict(manifestID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, manifestID)
}

// Stats returns cumulative hit/miss counters. Get also increments
// pkg/metrics' MRCHits/MRCMisses directly; those do not read from here.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len reports the current cache size, for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
