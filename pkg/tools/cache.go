package tools

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/bashme-ai/bashme/pkg/logger"
)

const (
	DefaultCacheTTL      = 5 * time.Second
	DefaultCacheCapacity = 1024
)

// ResultCache sits between the agent loop and tool execution. It is the only
// shared mutable state in the daemon; everything else is frozen after warm-up.
//
// Two tiers:
//
//   - volatile: a TTL cache for tools whose answers go stale (directory
//     listings, history, environment). Lifetime is fixed from insert — a
//     read never extends it.
//   - stable: an LRU cache for tools whose answers are immutable in
//     practice (manual pages). No expiry; reads refresh recency and the
//     capacity bound evicts the least recently used entry.
//
// Error results are cached exactly like successes: a failed lookup is a
// valid answer for as long as its tier keeps it.
type ResultCache struct {
	volatile *ttlcache.Cache[string, *ToolResult]
	stable   *ttlcache.Cache[string, *ToolResult]

	stableTools map[string]struct{}

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats is a point-in-time snapshot of cache activity.
type CacheStats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	VolatileLen int   `json:"volatile_len"`
	StableLen   int   `json:"stable_len"`
}

// NewResultCache builds both tiers. stableTools names the tools whose
// results go to the LRU tier; every other tool is volatile.
func NewResultCache(ttl time.Duration, capacity int, stableTools []string) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}

	volatile := ttlcache.New[string, *ToolResult](
		ttlcache.WithTTL[string, *ToolResult](ttl),
		ttlcache.WithDisableTouchOnHit[string, *ToolResult](),
		ttlcache.WithCapacity[string, *ToolResult](uint64(capacity)),
	)
	stable := ttlcache.New[string, *ToolResult](
		ttlcache.WithCapacity[string, *ToolResult](uint64(capacity)),
	)

	go volatile.Start()
	go stable.Start()

	stableSet := make(map[string]struct{}, len(stableTools))
	for _, name := range stableTools {
		stableSet[name] = struct{}{}
	}

	return &ResultCache{
		volatile:    volatile,
		stable:      stable,
		stableTools: stableSet,
	}
}

// Execute runs the named tool through the cache. The key is the tool name
// plus the JSON encoding of its arguments; encoding/json writes map keys in
// sorted order, so equal argument maps hit the same entry regardless of
// insertion order.
func (c *ResultCache) Execute(ctx context.Context, registry *ToolRegistry, name string, args map[string]any) *ToolResult {
	key, ok := cacheKey(name, args)
	if !ok {
		return registry.Execute(ctx, name, args)
	}

	tier, lifetime := c.tierFor(name)
	if item := tier.Get(key); item != nil {
		c.hits.Add(1)
		logger.DebugCF("cache", "hit", map[string]any{"tool": name, "key": key})
		return item.Value()
	}
	c.misses.Add(1)

	result := registry.Execute(ctx, name, args)

	// A result produced under a dead context is the caller going away,
	// not the tool's answer; it must not poison other requests.
	if ctx.Err() != nil {
		return result
	}

	tier.Set(key, result, lifetime)
	return result
}

func (c *ResultCache) tierFor(name string) (*ttlcache.Cache[string, *ToolResult], time.Duration) {
	if _, ok := c.stableTools[name]; ok {
		return c.stable, ttlcache.NoTTL
	}
	return c.volatile, ttlcache.DefaultTTL
}

func (c *ResultCache) Stats() CacheStats {
	return CacheStats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		VolatileLen: c.volatile.Len(),
		StableLen:   c.stable.Len(),
	}
}

// Stop halts the expiry janitors. Call on daemon shutdown.
func (c *ResultCache) Stop() {
	c.volatile.Stop()
	c.stable.Stop()
}

func cacheKey(name string, args map[string]any) (string, bool) {
	encoded, err := json.Marshal(args)
	if err != nil {
		// Arguments come from JSON in the first place, so this should not
		// happen; bypass the cache rather than guess at a key.
		return "", false
	}
	return name + "\x00" + string(encoded), true
}
