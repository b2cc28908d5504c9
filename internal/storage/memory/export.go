// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/OCAP2/inspector/pkg/core"
)

// Snapshot is the on-disk form of a whole in-memory recording.
type Snapshot struct {
	Version   int                        `json:"version"`
	FrameData []*core.FrameData          `json:"frameData"`
	Layers    []string                   `json:"layers"`
	Scenes    []string                   `json:"scenes"`
	ClientIDs map[uint32]core.ClientInfo `json:"clientIds"`
	Resources map[string]*core.Resource  `json:"resources"`
}

// Snapshot captures the recording for persistence.
func (r *Recording) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	layers := make([]string, 0, len(r.layers))
	for l := range r.layers {
		layers = append(layers, l)
	}
	sort.Strings(layers)

	clients := make(map[uint32]core.ClientInfo, len(r.clients))
	for id, c := range r.clients {
		clients[id] = c
	}

	return Snapshot{
		Version:   r.version,
		FrameData: slices.Clone(r.frames),
		Layers:    layers,
		Scenes:    slices.Clone(r.scenes),
		ClientIDs: clients,
		Resources: r.resources.Snapshot(),
	}
}

// FromSnapshot rebuilds a recording from persisted data and patches it to the
// current version. Stored aggregates are taken as they are.
func FromSnapshot(s Snapshot) (*Recording, error) {
	r := New()
	r.frames = slices.Clone(s.FrameData)
	sort.SliceStable(r.frames, func(i, j int) bool {
		return r.frames[i].ServerTime < r.frames[j].ServerTime
	})
	for _, l := range s.Layers {
		r.layers[l] = struct{}{}
	}
	r.scenes = s.Scenes
	for id, c := range s.ClientIDs {
		r.clients[id] = c
	}
	for _, res := range s.Resources {
		r.resources.Set(res)
	}
	r.version = s.Version

	if err := r.Patch(s.Version); err != nil {
		return nil, err
	}
	return r, nil
}

// Load reads a recording written by Save. Files ending in .gz are gunzipped.
func Load(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	var s Snapshot
	if err := json.NewDecoder(src).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode recording %s: %w", filepath.Base(path), err)
	}
	return FromSnapshot(s)
}

// Save writes the recording atomically, gzipped when compress is set.
func (r *Recording) Save(path string, compress bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer pending.Cleanup()

	var w io.Writer = pending
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(pending)
		w = gz
	}

	if err := json.NewEncoder(w).Encode(r.Snapshot()); err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to flush gzip stream: %w", err)
		}
	}
	return pending.CloseAtomicallyReplace()
}
