package sampling

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/sells-group/exposure-cli/internal/asset"
)

// GridCache is a concurrent-safe LRU of sample grids keyed by asset id.
// Concurrent requests for the same key share a single computation.
type GridCache struct {
	sampler *Sampler
	group   singleflight.Group

	mu         sync.Mutex
	entries    map[string]*SampleGrid
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int

	hits     atomic.Int64
	misses   atomic.Int64
	computes atomic.Int64
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Computes   int64   `json:"computes"`
	HitRate    float64 `json:"hit_rate"`
}

// NewGridCache creates a cache that fills misses with s.
func NewGridCache(s *Sampler) *GridCache {
	return &GridCache{
		sampler:    s,
		entries:    make(map[string]*SampleGrid),
		maxEntries: s.Config().CacheEntries,
	}
}

func gridKey(assetID string, spacing float64) string {
	if spacing <= 0 {
		return assetID
	}
	return assetID + "@" + strconv.FormatFloat(spacing, 'g', -1, 64)
}

// Grid returns the tier-spaced grid for a. The result is shared: clone it
// before attaching values.
func (c *GridCache) Grid(a *asset.PolygonAsset) *SampleGrid {
	return c.GridAt(a, 0)
}

// GridAt returns the grid for a starting at spacingMeters, or at the tier
// spacing when spacingMeters is zero.
func (c *GridCache) GridAt(a *asset.PolygonAsset, spacingMeters float64) *SampleGrid {
	key := gridKey(a.ID(), spacingMeters)
	if g := c.get(key); g != nil {
		c.hits.Add(1)
		return g
	}
	c.misses.Add(1)

	v, _, _ := c.group.Do(key, func() (any, error) {
		// A caller that missed just before the previous flight stored its
		// result finds it here instead of recomputing.
		if g := c.get(key); g != nil {
			return g, nil
		}
		c.computes.Add(1)
		var g *SampleGrid
		if spacingMeters > 0 {
			g = c.sampler.GenerateAt(a.ID(), a.Ring(), spacingMeters)
		} else {
			g = c.sampler.Generate(a.ID(), a.Ring(), a.AreaKm2())
		}
		c.put(key, g)
		return g, nil
	})
	return v.(*SampleGrid)
}

// Invalidate drops every cached grid for an asset id.
func (c *GridCache) Invalidate(assetID string) {
	prefix := assetID + "@"

	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.order[:0]
	for _, key := range c.order {
		if key == assetID || strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			continue
		}
		remaining = append(remaining, key)
	}
	c.order = remaining
}

// Stats returns cache performance statistics.
func (c *GridCache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		Computes:   c.computes.Load(),
		HitRate:    hitRate,
	}
}

func (c *GridCache) get(key string) *SampleGrid {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.entries[key]
	if !ok {
		return nil
	}
	c.removeFromOrder(key)
	c.order = append(c.order, key)
	return g
}

func (c *GridCache) put(key string, g *SampleGrid) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = g
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = g
	c.order = append(c.order, key)
}

func (c *GridCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
