// Package pending tracks in-flight requests by id so that concurrent callers
// asking for the same thing share one request, and a response arriving later
// can be matched back to its waiters.
package pending

import (
	"context"
	"sync"
)

// Request is one in-flight request. It completes exactly once.
type Request[K comparable, V any] struct {
	ID  uint64
	Key K

	done chan struct{}
	val  V
	err  error
}

// Done is closed when the request is resolved or rejected.
func (r *Request[K, V]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request completes or ctx is done. Giving up on the
// wait leaves the request itself untouched.
func (r *Request[K, V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-r.done:
		return r.val, r.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (r *Request[K, V]) complete(v V, err error) {
	r.val = v
	r.err = err
	close(r.done)
}

// Registry holds in-flight requests indexed by id and by key. At most one
// request per key is registered at a time.
type Registry[K comparable, V any] struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]*Request[K, V]
	byKey  map[K]*Request[K, V]
}

// NewRegistry creates an empty registry.
func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		byID:  make(map[uint64]*Request[K, V]),
		byKey: make(map[K]*Request[K, V]),
	}
}

// FindOrAdd returns the request registered for key, or registers a new one
// with a fresh id. added is true when the caller created the request and is
// therefore responsible for sending it.
func (g *Registry[K, V]) FindOrAdd(key K) (req *Request[K, V], added bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.byKey[key]; ok {
		return r, false
	}

	g.nextID++
	r := &Request[K, V]{ID: g.nextID, Key: key, done: make(chan struct{})}
	g.byID[r.ID] = r
	g.byKey[key] = r
	return r, true
}

// Has reports whether the request id is still registered.
func (g *Registry[K, V]) Has(id uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.byID[id]
	return ok
}

// HasKey reports whether a request for key is in flight.
func (g *Registry[K, V]) HasKey(key K) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.byKey[key]
	return ok
}

// Lookup returns the registered request with the given id.
func (g *Registry[K, V]) Lookup(id uint64) (*Request[K, V], bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.byID[id]
	return r, ok
}

// Resolve completes the request with v and unregisters it. It returns false
// when the id is unknown, for example after RejectAll.
func (g *Registry[K, V]) Resolve(id uint64, v V) bool {
	r := g.take(id)
	if r == nil {
		return false
	}
	r.complete(v, nil)
	return true
}

// Reject completes the request with err and unregisters it.
func (g *Registry[K, V]) Reject(id uint64, err error) bool {
	r := g.take(id)
	if r == nil {
		return false
	}
	var zero V
	r.complete(zero, err)
	return true
}

// RejectAll fails every registered request with err and empties the
// registry. It returns the number of rejected requests.
func (g *Registry[K, V]) RejectAll(err error) int {
	g.mu.Lock()
	all := g.byID
	g.byID = make(map[uint64]*Request[K, V])
	g.byKey = make(map[K]*Request[K, V])
	g.mu.Unlock()

	var zero V
	for _, r := range all {
		r.complete(zero, err)
	}
	return len(all)
}

// Keys returns the keys of all registered requests in no particular order.
func (g *Registry[K, V]) Keys() []K {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]K, 0, len(g.byKey))
	for k := range g.byKey {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of registered requests.
func (g *Registry[K, V]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byID)
}

func (g *Registry[K, V]) take(id uint64) *Request[K, V] {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.byID[id]
	if !ok {
		return nil
	}
	delete(g.byID, id)
	delete(g.byKey, r.Key)
	return r
}
