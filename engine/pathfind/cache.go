package pathfind

import "github.com/hexfief/serf-engine/engine/maplib"

// Cache amortises repeated extended plots from the same start position.
// Entries are evicted in insertion order past the bound; Flush drops
// everything after a meaningful map mutation near a cached root.
type Cache struct {
	maxEntries int
	order      []cacheKey
	entries    map[cacheKey][]Solution
}

type cacheKey struct {
	start, end maplib.Pos
}

// NewCache creates a plot cache bounded to maxEntries results.
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	return &Cache{maxEntries: maxEntries, entries: map[cacheKey][]Solution{}}
}

// Get returns a cached result.
func (c *Cache) Get(start, end maplib.Pos) ([]Solution, bool) {
	s, ok := c.entries[cacheKey{start, end}]
	return s, ok
}

// Put stores a result, evicting the oldest entry when full.
func (c *Cache) Put(start, end maplib.Pos, sols []Solution) {
	k := cacheKey{start, end}
	if _, exists := c.entries[k]; !exists {
		if len(c.order) >= c.maxEntries {
			delete(c.entries, c.order[0])
			c.order = c.order[1:]
		}
		c.order = append(c.order, k)
	}
	c.entries[k] = sols
}

// Invalidate drops every entry whose start or end lies within radius of pos.
func (c *Cache) Invalidate(m *maplib.Map, pos maplib.Pos, radius int) {
	kept := c.order[:0]
	for _, k := range c.order {
		if m.Dist(k.start, pos) <= radius || m.Dist(k.end, pos) <= radius {
			delete(c.entries, k)
		} else {
			kept = append(kept, k)
		}
	}
	c.order = kept
}

// Flush drops all entries.
func (c *Cache) Flush() {
	c.order = c.order[:0]
	c.entries = map[cacheKey][]Solution{}
}
