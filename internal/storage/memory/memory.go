// internal/storage/memory/memory.go
package memory

import (
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/OCAP2/inspector/internal/cache"
	"github.com/OCAP2/inspector/internal/merge"
	"github.com/OCAP2/inspector/internal/ops"
	"github.com/OCAP2/inspector/internal/storage"
	"github.com/OCAP2/inspector/pkg/core"
)

// CurrentVersion is the schema version of in-memory recordings.
const CurrentVersion = 3

// Recording holds a whole recording in memory, frames sorted by server time.
type Recording struct {
	mu        sync.RWMutex
	frames    frameList
	layers    map[string]struct{}
	scenes    []string
	clients   map[uint32]core.ClientInfo
	resources *cache.Resources
	ids       *cache.EntityIDs
	version   int
}

// frameList adapts the sorted frame slice for merging. Callers hold the lock.
type frameList []*core.FrameData

func (l frameList) FrameAt(i int) *core.FrameData {
	if i < 0 || i >= len(l) {
		return nil
	}
	return l[i]
}

// New creates an empty recording at the current version.
func New() *Recording {
	return &Recording{
		layers:    make(map[string]struct{}),
		scenes:    []string{},
		clients:   make(map[uint32]core.ClientInfo),
		resources: cache.NewResources(),
		ids:       cache.NewEntityIDs(),
		version:   CurrentVersion,
	}
}

// PushFrame inserts f after every frame with a server time lower than or
// equal to its own, then folds the frame into the recording aggregates.
func (r *Recording) PushFrame(f *core.FrameData) {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := sort.Search(len(r.frames), func(i int) bool {
		return r.frames[i].ServerTime > f.ServerTime
	})
	r.frames = slices.Insert(r.frames, at, f)

	r.aggregate(f)
}

func (r *Recording) aggregate(f *core.FrameData) {
	ops.FrameLayers(f, func(layer string) {
		if layer != "" {
			r.layers[layer] = struct{}{}
		}
	})
	ops.FrameTextures(f, func(path string) {
		r.resources.Ensure(path)
	})
	if f.Scene != "" && !slices.Contains(r.scenes, f.Scene) {
		r.scenes = append(r.scenes, f.Scene)
	}
	if _, ok := r.clients[f.ClientID]; !ok {
		r.clients[f.ClientID] = core.ClientInfo{Tag: f.Tag}
	}
}

// BuildFrameData returns the merged view of frame i.
func (r *Recording) BuildFrameData(i int) *core.FrameData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return merge.Build(r.frames, i, r.ids)
}

// Frame returns the stored frame at i without merging.
func (r *Recording) Frame(i int) (*core.FrameData, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f := r.frames.FrameAt(i)
	return f, f != nil
}

// Frames returns the stored frames in order.
func (r *Recording) Frames() []*core.FrameData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.frames)
}

// Clear drops all frames and aggregates.
func (r *Recording) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
	r.layers = make(map[string]struct{})
	r.scenes = []string{}
	r.clients = make(map[uint32]core.ClientInfo)
	r.resources.Reset()
	r.ids.Reset()
	r.version = CurrentVersion
}

// Patch migrates data stored at oldVersion to CurrentVersion one step at a
// time.
func (r *Recording) Patch(oldVersion int) error {
	if oldVersion < 1 || oldVersion > CurrentVersion {
		return storage.UnsupportedVersion(oldVersion, CurrentVersion)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for v := oldVersion; v < CurrentVersion; v++ {
		switch v {
		case 1:
			for _, f := range r.frames {
				storage.PatchFrameOrientation(f)
			}
		case 2:
			if r.scenes == nil {
				r.scenes = []string{}
			}
		}
	}
	r.version = CurrentVersion
	return nil
}

// Version returns the schema version of the data held.
func (r *Recording) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *Recording) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames)
}

func (r *Recording) TagByClientID(clientID uint32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	return c.Tag, ok
}

// ClientIDs returns a copy of the client map.
func (r *Recording) ClientIDs() map[uint32]core.ClientInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.clients)
}

func (r *Recording) FindResource(path string) (*core.Resource, bool) {
	return r.resources.Get(path)
}

// Resources returns the resource index.
func (r *Recording) Resources() *cache.Resources {
	return r.resources
}

// EntityIDs returns the mapping used to build merged views.
func (r *Recording) EntityIDs() *cache.EntityIDs {
	return r.ids
}

// Layers returns the known layers sorted by name.
func (r *Recording) Layers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.layers))
}

// Scenes returns the known scenes in first-seen order.
func (r *Recording) Scenes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.scenes == nil {
		return nil
	}
	return slices.Clone(r.scenes)
}
