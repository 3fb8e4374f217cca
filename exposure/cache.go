// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package exposure

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/DataDog/dd-ffe-go/internal"
)

// DefaultCacheCapacity is the number of (flag, subject) pairs remembered by
// each cache of a CachingLogger unless DD_FFE_EXPOSURE_CACHE_CAPACITY is set.
const DefaultCacheCapacity = 65536

type cacheKey struct {
	flagKey    string
	subjectKey string
}

type assignmentCacheValue struct {
	allocationKey string
	variationKey  string
}

type banditCacheValue struct {
	banditKey string
	actionKey string
}

// lruCache remembers the last value seen for a key. A nil cache or a zero
// capacity remembers nothing.
type lruCache[V comparable] struct {
	mu    sync.Mutex
	cache *lru.Cache[cacheKey, V]
}

func newLRUCache[V comparable](capacity int) *lruCache[V] {
	if capacity <= 0 {
		return nil
	}
	c, err := lru.New[cacheKey, V](capacity)
	if err != nil {
		return nil
	}
	return &lruCache[V]{cache: c}
}

// seen reports whether key currently maps to value. A hit refreshes the
// entry's recency.
func (c *lruCache[V]) seen(key cacheKey, value V) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok := c.cache.Get(key)
	return ok && old == value
}

func (c *lruCache[V]) put(key cacheKey, value V) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, value)
}

// CacheOption configures a CachingLogger.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	assignmentCapacity int
	banditCapacity     int
}

// WithAssignmentCacheCapacity sets the assignment cache capacity. Zero
// disables de-duplication of assignment events.
func WithAssignmentCacheCapacity(n int) CacheOption {
	return func(c *cacheConfig) { c.assignmentCapacity = n }
}

// WithBanditCacheCapacity sets the bandit cache capacity. Zero disables
// de-duplication of bandit events.
func WithBanditCacheCapacity(n int) CacheOption {
	return func(c *cacheConfig) { c.banditCapacity = n }
}

// CachingLogger forwards events to another Logger, skipping those whose
// outcome for a (flag, subject) pair has not changed since the last one it
// forwarded. An event is remembered only after the wrapped logger accepted
// it without panicking.
type CachingLogger struct {
	next        Logger
	assignments *lruCache[assignmentCacheValue]
	bandits     *lruCache[banditCacheValue]
}

var _ Logger = (*CachingLogger)(nil)

// NewCachingLogger wraps next with de-duplicating LRU caches.
func NewCachingLogger(next Logger, opts ...CacheOption) *CachingLogger {
	capacity := internal.IntEnv("DD_FFE_EXPOSURE_CACHE_CAPACITY", DefaultCacheCapacity)
	cfg := cacheConfig{
		assignmentCapacity: capacity,
		banditCapacity:     capacity,
	}
	for _, fn := range opts {
		fn(&cfg)
	}
	if next == nil {
		next = NoopLogger{}
	}
	return &CachingLogger{
		next:        next,
		assignments: newLRUCache[assignmentCacheValue](cfg.assignmentCapacity),
		bandits:     newLRUCache[banditCacheValue](cfg.banditCapacity),
	}
}

// LogAssignment implements Logger.
func (l *CachingLogger) LogAssignment(event AssignmentEvent) {
	key := cacheKey{flagKey: event.FeatureFlag, subjectKey: event.Subject}
	value := assignmentCacheValue{allocationKey: event.Allocation, variationKey: event.Variation}
	if l.assignments.seen(key, value) {
		return
	}
	l.next.LogAssignment(event)
	l.assignments.put(key, value)
}

// LogBanditAction implements Logger.
func (l *CachingLogger) LogBanditAction(event BanditEvent) {
	key := cacheKey{flagKey: event.FlagKey, subjectKey: event.Subject}
	value := banditCacheValue{banditKey: event.BanditKey, actionKey: event.Action}
	if l.bandits.seen(key, value) {
		return
	}
	l.next.LogBanditAction(event)
	l.bandits.put(key, value)
}
