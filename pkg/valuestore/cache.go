// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package valuestore

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/types"
)

// DefaultCacheTTL bounds how stale a cached best action may be.
const DefaultCacheTTL = 5 * time.Second

// Cache metric names.
const (
	MetricCacheHit  = "valuestore.cache.hit"
	MetricCacheMiss = "valuestore.cache.miss"
)

type bestActionEntry struct {
	best  types.BestAction
	found bool
}

// live reports whether the entry may still be served at now. A found entry
// without an expiry is bounded by the cache TTL alone.
func (e bestActionEntry) live(now time.Time) bool {
	if !e.found || e.best.ExpiresAt.IsZero() {
		return true
	}
	return e.best.ExpiresAt.After(now)
}

// readGuard tracks the reads in flight for one key. Invalidations bump gen so
// a read that started before them does not repopulate the cache.
type readGuard struct {
	gen     uint64
	readers int
}

// CachedStore serves GetBestAction from a short-lived in-process cache.
// Every upsert drops the cached entry for its state, so a writer always
// reads its own write; writes from other processes become visible within
// the TTL. Entries never outlive the expiry of the row they hold. All other
// methods pass through.
type CachedStore struct {
	Store
	cache  *gocache.Cache
	ttl    time.Duration
	tracer observability.Tracer
	now    func() time.Time

	mu       sync.Mutex
	inflight map[string]*readGuard
	epoch    uint64
}

// NewCachedStore wraps store. A non-positive ttl selects DefaultCacheTTL.
func NewCachedStore(store Store, ttl time.Duration, tracer observability.Tracer) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return &CachedStore{
		Store:    store,
		cache:    gocache.New(ttl, 2*ttl),
		ttl:      ttl,
		tracer:   tracer,
		now:      time.Now,
		inflight: make(map[string]*readGuard),
	}
}

// WithClock sets the clock used to compare entries against row expiry. It
// must be called before the store is shared.
func (c *CachedStore) WithClock(now func() time.Time) *CachedStore {
	if now != nil {
		c.now = now
	}
	return c
}

func cacheKey(agentType types.AgentType, stateHash string) string {
	return string(agentType) + "|" + stateHash
}

// GetBestAction implements Store.
func (c *CachedStore) GetBestAction(ctx context.Context, agentType types.AgentType, stateHash string) (*types.BestAction, bool, error) {
	key := cacheKey(agentType, stateHash)
	labels := map[string]string{"agent_type": string(agentType)}

	if v, ok := c.cache.Get(key); ok {
		entry := v.(bestActionEntry)
		if entry.live(c.now()) {
			c.tracer.RecordMetric(MetricCacheHit, 1, labels)
			if !entry.found {
				return nil, false, nil
			}
			best := entry.best
			return &best, true, nil
		}
		c.cache.Delete(key)
	}
	c.tracer.RecordMetric(MetricCacheMiss, 1, labels)

	guard, gen, epoch := c.beginRead(key)
	best, found, err := c.Store.GetBestAction(ctx, agentType, stateHash)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.endReadLocked(key, guard)
	if err != nil {
		return nil, false, err
	}
	if guard.gen != gen || c.epoch != epoch {
		return best, found, nil
	}

	entry := bestActionEntry{found: found}
	lifetime := c.ttl
	if found {
		entry.best = *best
		if !best.ExpiresAt.IsZero() {
			remaining := best.ExpiresAt.Sub(c.now())
			if remaining <= 0 {
				return best, found, nil
			}
			lifetime = min(lifetime, remaining)
		}
	}
	c.cache.Set(key, entry, lifetime)
	return best, found, nil
}

func (c *CachedStore) beginRead(key string) (*readGuard, uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	guard, ok := c.inflight[key]
	if !ok {
		guard = &readGuard{}
		c.inflight[key] = guard
	}
	guard.readers++
	return guard, guard.gen, c.epoch
}

func (c *CachedStore) endReadLocked(key string, guard *readGuard) {
	guard.readers--
	if guard.readers == 0 {
		delete(c.inflight, key)
	}
}

// invalidate drops key and fences reads of it that are still in flight.
func (c *CachedStore) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if guard, ok := c.inflight[key]; ok {
		guard.gen++
	}
	c.cache.Delete(key)
}

// invalidateAll drops every entry and fences all in-flight reads.
func (c *CachedStore) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.cache.Flush()
}

// UpsertQValue implements Store. The cached entry is dropped whether or not
// the write succeeds, since a failed statement may still have committed.
func (c *CachedStore) UpsertQValue(ctx context.Context, w types.QValueWrite) (int64, error) {
	id, err := c.Store.UpsertQValue(ctx, w)
	c.invalidate(cacheKey(w.AgentType, w.StateHash))
	return id, err
}

// CleanupExpired implements Store and clears the cache after reaping.
func (c *CachedStore) CleanupExpired(ctx context.Context) (CleanupResult, error) {
	res, err := c.Store.CleanupExpired(ctx)
	if res.QValues > 0 {
		c.invalidateAll()
	}
	return res, err
}

// Invalidate drops every cached entry.
func (c *CachedStore) Invalidate() {
	c.invalidateAll()
}

// Len reports the number of cached states.
func (c *CachedStore) Len() int {
	return c.cache.ItemCount()
}
