package tools

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTool struct {
	name  string
	calls atomic.Int64
	fn    func(args map[string]any) *ToolResult
}

func (t *countingTool) Name() string        { return t.name }
func (t *countingTool) Description() string { return "counting test tool" }

func (t *countingTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *countingTool) Execute(_ context.Context, args map[string]any) *ToolResult {
	t.calls.Add(1)
	if t.fn != nil {
		return t.fn(args)
	}
	return NewToolResult("ok")
}

func newCacheFixture(t *testing.T, ttl time.Duration, capacity int, stableTools []string, tools ...Tool) (*ResultCache, *ToolRegistry) {
	t.Helper()
	registry := NewToolRegistry()
	for _, tool := range tools {
		registry.Register(tool)
	}
	cache := NewResultCache(ttl, capacity, stableTools)
	t.Cleanup(cache.Stop)
	return cache, registry
}

func TestResultCacheServesRepeatCallsWithoutReexecuting(t *testing.T) {
	tool := &countingTool{name: "list_directory"}
	cache, registry := newCacheFixture(t, time.Second, 16, nil, tool)

	first := cache.Execute(t.Context(), registry, "list_directory", map[string]any{"path": "/tmp"})
	second := cache.Execute(t.Context(), registry, "list_directory", map[string]any{"path": "/tmp"})

	require.Equal(t, "ok", first.Content())
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), tool.calls.Load())
}

func TestResultCacheDistinguishesArguments(t *testing.T) {
	tool := &countingTool{
		name: "list_directory",
		fn: func(args map[string]any) *ToolResult {
			return NewToolResult(fmt.Sprintf("listing of %v", args["path"]))
		},
	}
	cache, registry := newCacheFixture(t, time.Second, 16, nil, tool)

	a := cache.Execute(t.Context(), registry, "list_directory", map[string]any{"path": "/a"})
	b := cache.Execute(t.Context(), registry, "list_directory", map[string]any{"path": "/b"})

	assert.Equal(t, "listing of /a", a.Content())
	assert.Equal(t, "listing of /b", b.Content())
	assert.Equal(t, int64(2), tool.calls.Load())
}

func TestResultCacheVolatileEntriesExpire(t *testing.T) {
	tool := &countingTool{name: "recent_history"}
	cache, registry := newCacheFixture(t, 50*time.Millisecond, 16, nil, tool)

	args := map[string]any{"n": float64(5)}
	cache.Execute(t.Context(), registry, "recent_history", args)
	cache.Execute(t.Context(), registry, "recent_history", args)
	require.Equal(t, int64(1), tool.calls.Load())

	time.Sleep(120 * time.Millisecond)

	cache.Execute(t.Context(), registry, "recent_history", args)
	assert.Equal(t, int64(2), tool.calls.Load())
}

func TestResultCacheReadsDoNotExtendLifetime(t *testing.T) {
	tool := &countingTool{name: "environment_snapshot"}
	cache, registry := newCacheFixture(t, 80*time.Millisecond, 16, nil, tool)

	args := map[string]any{}
	cache.Execute(t.Context(), registry, "environment_snapshot", args)

	// A hit halfway through the lifetime must not push expiry out.
	time.Sleep(50 * time.Millisecond)
	cache.Execute(t.Context(), registry, "environment_snapshot", args)
	require.Equal(t, int64(1), tool.calls.Load())

	time.Sleep(60 * time.Millisecond)
	cache.Execute(t.Context(), registry, "environment_snapshot", args)
	assert.Equal(t, int64(2), tool.calls.Load())
}

func TestResultCacheStableTierEvictsLeastRecentlyUsed(t *testing.T) {
	tool := &countingTool{
		name: "manual_page",
		fn: func(args map[string]any) *ToolResult {
			return NewToolResult(fmt.Sprintf("man %v", args["name"]))
		},
	}
	cache, registry := newCacheFixture(t, time.Second, 2, []string{"manual_page"}, tool)

	cache.Execute(t.Context(), registry, "manual_page", map[string]any{"name": "ls"})
	cache.Execute(t.Context(), registry, "manual_page", map[string]any{"name": "grep"})
	require.Equal(t, int64(2), tool.calls.Load())

	// Touch "ls" so "grep" is the eviction candidate, then overflow.
	cache.Execute(t.Context(), registry, "manual_page", map[string]any{"name": "ls"})
	cache.Execute(t.Context(), registry, "manual_page", map[string]any{"name": "tar"})
	require.Equal(t, int64(3), tool.calls.Load())

	cache.Execute(t.Context(), registry, "manual_page", map[string]any{"name": "ls"})
	assert.Equal(t, int64(3), tool.calls.Load(), "ls should have survived the eviction")

	cache.Execute(t.Context(), registry, "manual_page", map[string]any{"name": "grep"})
	assert.Equal(t, int64(4), tool.calls.Load(), "grep should have been evicted")
}

func TestResultCacheStableTierOutlivesVolatileTTL(t *testing.T) {
	tool := &countingTool{name: "manual_page"}
	cache, registry := newCacheFixture(t, 30*time.Millisecond, 16, []string{"manual_page"}, tool)

	args := map[string]any{"name": "ssh"}
	cache.Execute(t.Context(), registry, "manual_page", args)

	time.Sleep(90 * time.Millisecond)

	cache.Execute(t.Context(), registry, "manual_page", args)
	assert.Equal(t, int64(1), tool.calls.Load())
}

func TestResultCacheCachesErrorResults(t *testing.T) {
	tool := &countingTool{
		name: "manual_page",
		fn: func(map[string]any) *ToolResult {
			return ErrorResult("tool error: no manual entry")
		},
	}
	cache, registry := newCacheFixture(t, time.Second, 16, []string{"manual_page"}, tool)

	args := map[string]any{"name": "nosuchcmd"}
	first := cache.Execute(t.Context(), registry, "manual_page", args)
	second := cache.Execute(t.Context(), registry, "manual_page", args)

	require.True(t, first.IsError)
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), tool.calls.Load())
}

func TestResultCacheSkipsCachingOnDeadContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	tool := &countingTool{
		name: "list_directory",
		fn: func(map[string]any) *ToolResult {
			cancel()
			return ErrorResult("tool error: context canceled")
		},
	}
	cache, registry := newCacheFixture(t, time.Second, 16, nil, tool)

	args := map[string]any{"path": "/tmp"}
	cache.Execute(ctx, registry, "list_directory", args)
	cache.Execute(t.Context(), registry, "list_directory", args)

	assert.Equal(t, int64(2), tool.calls.Load())
}

func TestResultCacheCachesUnknownToolResponse(t *testing.T) {
	cache, registry := newCacheFixture(t, time.Second, 16, nil)

	result := cache.Execute(t.Context(), registry, "no_such_tool", map[string]any{})
	require.True(t, result.IsError)
	assert.Contains(t, result.Content(), "not found")

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.VolatileLen)
}

func TestResultCacheStats(t *testing.T) {
	tool := &countingTool{name: "list_directory"}
	cache, registry := newCacheFixture(t, time.Second, 16, nil, tool)

	args := map[string]any{"path": "/etc"}
	cache.Execute(t.Context(), registry, "list_directory", args)
	cache.Execute(t.Context(), registry, "list_directory", args)
	cache.Execute(t.Context(), registry, "list_directory", map[string]any{"path": "/var"})

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, 2, stats.VolatileLen)
	assert.Equal(t, 0, stats.StableLen)
}

func TestResultCacheConcurrentAccess(t *testing.T) {
	tool := &countingTool{name: "list_directory"}
	cache, registry := newCacheFixture(t, time.Second, 64, nil, tool)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				path := fmt.Sprintf("/dir/%d", j%10)
				result := cache.Execute(t.Context(), registry, "list_directory", map[string]any{"path": path})
				if result == nil || result.IsError {
					t.Errorf("unexpected result for %s: %+v", path, result)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	stats := cache.Stats()
	assert.Equal(t, 10, stats.VolatileLen)
	assert.Equal(t, int64(400), stats.Hits+stats.Misses)
}
