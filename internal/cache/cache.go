package cache

import (
	"sync"
)

// EntityKey identifies an entity within one client's frames.
type EntityKey struct {
	ClientID uint32
	LocalID  uint64
}

// EntityIDs maps (client, local entity id) pairs to ids that are unique across
// all clients of a recording. Ids are handed out sequentially from 1 in
// first-seen order, so 0 never collides with a real entity and keeps meaning
// "no parent".
type EntityIDs struct {
	mu   sync.Mutex
	ids  map[EntityKey]uint64
	keys []EntityKey
}

func NewEntityIDs() *EntityIDs {
	return &EntityIDs{
		ids: make(map[EntityKey]uint64),
	}
}

// Unique returns the recording-wide id for the client's local entity id.
// Local id 0 is the "no parent" marker and always maps to 0.
func (c *EntityIDs) Unique(clientID uint32, localID uint64) uint64 {
	if localID == 0 {
		return 0
	}
	key := EntityKey{ClientID: clientID, LocalID: localID}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.ids[key]; ok {
		return id
	}
	c.keys = append(c.keys, key)
	id := uint64(len(c.keys))
	c.ids[key] = id
	return id
}

// Lookup resolves a unique id back to its client and local id.
func (c *EntityIDs) Lookup(uniqueID uint64) (EntityKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if uniqueID == 0 || uniqueID > uint64(len(c.keys)) {
		return EntityKey{}, false
	}
	return c.keys[uniqueID-1], true
}

// Len returns the number of ids handed out.
func (c *EntityIDs) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

func (c *EntityIDs) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = make(map[EntityKey]uint64)
	c.keys = nil
}
