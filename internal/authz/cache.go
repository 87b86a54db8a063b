package authz

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// Decision is a cached allow/deny outcome.
type Decision struct {
	Allowed   bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// FetchFunc resolves a miss. It runs at most once per key at a time.
type FetchFunc func(ctx context.Context) (bool, error)

// Stats is a point-in-time view of the cache.
type Stats struct {
	Enabled    bool          `json:"enabled"`
	Size       int           `json:"size"`
	MaxEntries int           `json:"maxEntries"`
	TTL        time.Duration `json:"ttl"`
	Hits       uint64        `json:"hits"`
	Misses     uint64        `json:"misses"`
	Evictions  uint64        `json:"evictions"`
	Expired    uint64        `json:"expired"`
	Inflight   int           `json:"inflight"`
}

// DecisionCache maps Keys to decisions with a TTL and an entry bound. When
// full, inserting a new key evicts the entry with the nearest expiry.
type DecisionCache struct {
	enabled    bool
	ttl        time.Duration
	maxEntries int

	mu      sync.RWMutex
	entries map[Key]*entry
	index   expiryIndex
	seq     uint64

	// group deduplicates engine calls per key. flights maps each key with a
	// running call to that call's generation; invalidation drops the key so
	// the running call's result is not stored.
	group   singleflight.Group
	flights map[Key]uint64
	gen     uint64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	expired   atomic.Uint64

	clock         func() time.Time
	sweepInterval time.Duration
	logger        observability.Logger
	metrics       *Metrics

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// CacheOption configures a DecisionCache.
type CacheOption func(*DecisionCache)

// WithClock sets the time source used for TTLs.
func WithClock(clock func() time.Time) CacheOption {
	return func(c *DecisionCache) {
		c.clock = clock
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger observability.Logger) CacheOption {
	return func(c *DecisionCache) {
		c.logger = logger
	}
}

// WithCacheMetrics sets the metrics.
func WithCacheMetrics(metrics *Metrics) CacheOption {
	return func(c *DecisionCache) {
		c.metrics = metrics
	}
}

// WithSweepInterval overrides the configured sweep period. Zero disables it.
func WithSweepInterval(d time.Duration) CacheOption {
	return func(c *DecisionCache) {
		c.sweepInterval = d
	}
}

// NewDecisionCache creates an empty cache and starts the sweep if configured.
// Call Close to stop it.
func NewDecisionCache(cfg Config, opts ...CacheOption) *DecisionCache {
	c := &DecisionCache{
		enabled:       cfg.Enabled && cfg.TTL > 0 && cfg.MaxEntries > 0,
		ttl:           cfg.TTL,
		maxEntries:    cfg.MaxEntries,
		entries:       make(map[Key]*entry),
		flights:       make(map[Key]uint64),
		clock:         time.Now,
		sweepInterval: cfg.SweepInterval,
		logger:        observability.NopLogger(),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.enabled && c.sweepInterval > 0 {
		c.wg.Add(1)
		go c.sweepLoop()
	}

	return c
}

// Get returns the decision for key if present and unexpired. An entry is
// valid while now < ExpiresAt. Expired entries are removed on the way out.
func (c *DecisionCache) Get(key Key) (Decision, bool) {
	d, ok := c.lookup(key)
	c.countLookup(ok)
	return d, ok
}

func (c *DecisionCache) lookup(key Key) (Decision, bool) {
	now := c.clock()

	c.mu.RLock()
	e, ok := c.entries[key]
	if ok && now.Before(e.expiresAt) {
		d := Decision{Allowed: e.allowed, CreatedAt: e.createdAt, ExpiresAt: e.expiresAt}
		c.mu.RUnlock()
		return d, true
	}
	c.mu.RUnlock()

	if ok {
		c.mu.Lock()
		// Re-check: the entry may have been overwritten since the read lock.
		if cur, still := c.entries[key]; still && cur == e && !now.Before(cur.expiresAt) {
			c.removeLocked(cur)
			c.expired.Add(1)
			c.metrics.recordEvictions(evictExpired, 1)
			c.metrics.setSize(len(c.entries))
		}
		c.mu.Unlock()
	}
	return Decision{}, false
}

func (c *DecisionCache) countLookup(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.metrics.recordLookup(hit)
}

// Put inserts or overwrites the decision for key.
func (c *DecisionCache) Put(key Key, allowed bool) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	c.putLocked(key, allowed)
	c.mu.Unlock()
}

func (c *DecisionCache) putLocked(key Key, allowed bool) {
	now := c.clock()
	c.seq++

	if e, ok := c.entries[key]; ok {
		e.allowed = allowed
		e.createdAt = now
		e.expiresAt = now.Add(c.ttl)
		e.seq = c.seq
		heap.Fix(&c.index, e.index)
		return
	}

	evicted := 0
	for len(c.entries) >= c.maxEntries {
		victim := c.index.peek()
		if victim == nil {
			break
		}
		c.removeLocked(victim)
		evicted++
	}
	if evicted > 0 {
		c.evictions.Add(uint64(evicted))
		c.metrics.recordEvictions(evictCapacity, evicted)
	}

	e := &entry{
		key:       key,
		allowed:   allowed,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
		seq:       c.seq,
	}
	c.entries[key] = e
	heap.Push(&c.index, e)
	c.metrics.setSize(len(c.entries))
}

func (c *DecisionCache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	if e.index >= 0 {
		heap.Remove(&c.index, e.index)
	}
}

// Resolve returns the cached decision for key, or runs fetch on a miss and
// caches its successful result. Concurrent misses on one key share a single
// fetch. The shared fetch is detached from the first caller's cancellation;
// every caller stops waiting when its own ctx is done. hit reports whether
// the decision came from the cache.
func (c *DecisionCache) Resolve(ctx context.Context, key Key, fetch FetchFunc) (allowed, hit bool, err error) {
	if d, ok := c.lookup(key); ok {
		c.countLookup(true)
		return d.Allowed, true, nil
	}
	c.countLookup(false)

	detached := context.WithoutCancel(ctx)
	var leader atomic.Bool
	ch := c.group.DoChan(flightKey(key), func() (interface{}, error) {
		leader.Store(true)
		return c.run(detached, key, fetch)
	})

	select {
	case res := <-ch:
		if !leader.Load() {
			c.metrics.recordJoin()
		}
		if res.Err != nil {
			return false, false, res.Err
		}
		return res.Val.(bool), false, nil
	case <-ctx.Done():
		return false, false, ctx.Err()
	}
}

// run is the body of a shared call. A decision stored by a call that
// finished just before this one started is returned without fetching.
func (c *DecisionCache) run(ctx context.Context, key Key, fetch FetchFunc) (bool, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.clock().Before(e.expiresAt) {
		allowed := e.allowed
		c.mu.Unlock()
		return allowed, nil
	}
	c.gen++
	gen := c.gen
	c.flights[key] = gen
	c.mu.Unlock()

	allowed, err := fetch(ctx)

	c.mu.Lock()
	if cur, ok := c.flights[key]; ok && cur == gen {
		delete(c.flights, key)
		if err == nil && c.enabled {
			c.putLocked(key, allowed)
		}
	}
	c.mu.Unlock()

	return allowed, err
}

// flightKey joins the key parts with a byte that cannot appear in them, so
// subjects such as "group:eng#member" cannot collide.
func flightKey(key Key) string {
	return key.Subject + "\x00" + key.Relation + "\x00" + key.Object
}

// forgetFlightLocked detaches a running call from key. Its waiters still get
// its answer, nothing is stored, and later misses start a new call.
func (c *DecisionCache) forgetFlightLocked(key Key) {
	if _, ok := c.flights[key]; !ok {
		return
	}
	delete(c.flights, key)
	c.group.Forget(flightKey(key))
}

// Invalidate removes key. An engine call already in flight for key still
// answers its waiters but its result is not cached.
func (c *DecisionCache) Invalidate(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.forgetFlightLocked(key)
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(e)
	c.metrics.recordEvictions(evictInvalidated, 1)
	c.metrics.setSize(len(c.entries))
	return true
}

// InvalidateMatching removes every key sel matches and returns how many
// entries were removed.
func (c *DecisionCache) InvalidateMatching(sel Selector) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.flights {
		if sel.Matches(key) {
			c.forgetFlightLocked(key)
		}
	}

	removed := 0
	for key, e := range c.entries {
		if sel.Matches(key) {
			c.removeLocked(e)
			removed++
		}
	}
	c.metrics.recordEvictions(evictInvalidated, removed)
	c.metrics.setSize(len(c.entries))
	return removed
}

// InvalidateSubject removes every decision about subject.
func (c *DecisionCache) InvalidateSubject(subject string) int {
	return c.InvalidateMatching(Selector{Subject: subject})
}

// InvalidateObject removes every decision about object.
func (c *DecisionCache) InvalidateObject(object string) int {
	return c.InvalidateMatching(Selector{Object: object})
}

// Clear removes every decision.
func (c *DecisionCache) Clear() int {
	return c.InvalidateMatching(Selector{})
}

// Len returns the number of stored entries, expired ones included.
func (c *DecisionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns counters and sizes.
func (c *DecisionCache) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	inflight := len(c.flights)
	c.mu.RUnlock()

	return Stats{
		Enabled:    c.enabled,
		Size:       size,
		MaxEntries: c.maxEntries,
		TTL:        c.ttl,
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
		Expired:    c.expired.Load(),
		Inflight:   inflight,
	}
}

// Sweep purges expired entries and returns how many were removed.
func (c *DecisionCache) Sweep() int {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for {
		e := c.index.peek()
		if e == nil || now.Before(e.expiresAt) {
			break
		}
		c.removeLocked(e)
		removed++
	}
	if removed > 0 {
		c.expired.Add(uint64(removed))
		c.metrics.recordEvictions(evictExpired, removed)
		c.metrics.setSize(len(c.entries))
	}
	return removed
}

func (c *DecisionCache) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("swept expired decisions", observability.Int("removed", n))
			}
		}
	}
}

// Close stops the sweep and empties the cache.
func (c *DecisionCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
		c.Clear()
	})
}
