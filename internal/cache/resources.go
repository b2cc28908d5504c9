package cache

import (
	"maps"
	"slices"
	"sync"

	"github.com/OCAP2/inspector/pkg/core"
)

// Resources indexes the resources referenced by a recording by path.
// Entries start as stubs and are filled in by a resolver.
type Resources struct {
	mu        sync.RWMutex
	resources map[string]*core.Resource
}

func NewResources() *Resources {
	return &Resources{
		resources: make(map[string]*core.Resource),
	}
}

// Get retrieves a resource by path
func (c *Resources) Get(path string) (*core.Resource, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.resources[path]
	return r, ok
}

// Ensure creates a stub for path if it is not known yet. It reports whether
// a stub was created.
func (c *Resources) Ensure(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.resources[path]; ok {
		return false
	}
	c.resources[path] = core.NewResourceStub(path)
	return true
}

// Set stores a resource, replacing any stub for the same path.
func (c *Resources) Set(r *core.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[r.Path] = r
}

// Paths returns all known paths in sorted order.
func (c *Resources) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.resources))
}

// Snapshot returns a copy of the index for persistence.
func (c *Resources) Snapshot() map[string]*core.Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.resources)
}

// Len returns the number of indexed resources.
func (c *Resources) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.resources)
}

// Reset clears the index
func (c *Resources) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources = make(map[string]*core.Resource)
}
