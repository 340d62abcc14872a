package remote

import "sync"

// Cache holds fetched modules in memory. A nil *Cache is valid and never
// stores anything.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Content
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Content)}
}

// Get returns the cached module for url.
func (c *Cache) Get(url string) (Content, bool) {
	if c == nil {
		return Content{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[url]
	return v, ok
}

// Put stores a module under its URL.
func (c *Cache) Put(v Content) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[v.URL] = v
}

// Len returns the number of cached modules.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
