// Package chunked is the file-backed recording store. Frames live in chunk
// files of framesPerChunk consecutive slots under <dir>/frames and are
// installed into a sparse frame table on demand; recording-wide aggregates
// live in <dir>/globaldata.
package chunked

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/OCAP2/inspector/internal/cache"
	"github.com/OCAP2/inspector/internal/merge"
	"github.com/OCAP2/inspector/internal/storage"
	"github.com/OCAP2/inspector/pkg/core"
)

const (
	// CurrentVersion is the schema version of chunked recordings.
	CurrentVersion = 4

	// DefaultFramesPerChunk is used when globaldata predates the field.
	DefaultFramesPerChunk = 100

	GlobalDataFile = "globaldata"
	FramesDir      = "frames"
)

// GlobalData is the recording-wide part of a chunked recording.
type GlobalData struct {
	StorageVersion int                        `json:"storageVersion"`
	TotalFrames    int                        `json:"totalFrames,omitempty"`
	FramesPerChunk int                        `json:"framesPerChunk,omitempty"`
	Layers         []string                   `json:"layers"`
	Scenes         []string                   `json:"scenes"`
	ClientIDs      map[uint32]core.ClientInfo `json:"clientIds"`
	Resources      map[string]*core.Resource  `json:"resources"`
	Compressed     bool                       `json:"compressed"`
}

// sparseFrames is the frame table; absent slots are nil. Callers hold the lock.
type sparseFrames []*core.FrameData

func (s sparseFrames) FrameAt(i int) *core.FrameData {
	if i < 0 || i >= len(s) {
		return nil
	}
	return s[i]
}

// Recording is an opened chunked recording.
type Recording struct {
	mu     sync.RWMutex
	dir    string
	global GlobalData
	frames sparseFrames

	// version the chunk files were written with; chunks older than 2 are
	// patched as they are installed
	chunkVersion int

	resources *cache.Resources
	ids       *cache.EntityIDs
}

// ErrInvalidGlobalData is returned by Open when globaldata claims a version
// whose required fields are missing.
var ErrInvalidGlobalData = errors.New("invalid global data")

// Open loads <dir>/globaldata and patches it to CurrentVersion.
// defaultFramesPerChunk applies to recordings written before the chunk size
// was stored; values <= 0 select DefaultFramesPerChunk.
func Open(dir string, defaultFramesPerChunk int) (*Recording, error) {
	data, err := os.ReadFile(filepath.Join(dir, GlobalDataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read global data: %w", err)
	}

	var g GlobalData
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode global data: %w", err)
	}

	r := &Recording{
		dir:          dir,
		global:       g,
		chunkVersion: g.StorageVersion,
		resources:    cache.NewResources(),
		ids:          cache.NewEntityIDs(),
	}
	if err := r.patch(defaultFramesPerChunk); err != nil {
		return nil, err
	}

	for _, res := range r.global.Resources {
		r.resources.Set(res)
	}
	r.frames = make(sparseFrames, r.global.TotalFrames)
	return r, nil
}

func (r *Recording) patch(defaultFramesPerChunk int) error {
	old := r.global.StorageVersion
	if old < 1 || old > CurrentVersion {
		return storage.UnsupportedVersion(old, CurrentVersion)
	}
	if defaultFramesPerChunk <= 0 {
		defaultFramesPerChunk = DefaultFramesPerChunk
	}

	for v := old; v < CurrentVersion; v++ {
		switch v {
		case 1:
			// frame level, applied in InstallChunk
		case 2:
			if r.global.Scenes == nil {
				r.global.Scenes = []string{}
			}
		case 3:
			if r.global.FramesPerChunk <= 0 {
				r.global.FramesPerChunk = defaultFramesPerChunk
			}
			if r.global.TotalFrames <= 0 {
				r.global.TotalFrames = r.scanTotalFrames()
			}
		}
	}
	if r.global.FramesPerChunk <= 0 {
		return fmt.Errorf("%w: framesPerChunk is %d", ErrInvalidGlobalData, r.global.FramesPerChunk)
	}
	r.global.StorageVersion = CurrentVersion
	return nil
}

// scanTotalFrames derives the slot count from the chunk files present.
func (r *Recording) scanTotalFrames() int {
	entries, err := os.ReadDir(filepath.Join(r.dir, FramesDir))
	if err != nil {
		return 0
	}
	total := 0
	for _, e := range entries {
		name := strings.TrimSuffix(strings.TrimSuffix(e.Name(), ".gz"), ".json")
		start, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		total = max(total, start+r.global.FramesPerChunk)
	}
	return total
}

// Dir returns the recording root.
func (r *Recording) Dir() string {
	return r.dir
}

// Global returns a copy of the patched global data.
func (r *Recording) Global() GlobalData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global
}

// FramesPerChunk returns the chunk size in frames.
func (r *Recording) FramesPerChunk() int {
	return r.global.FramesPerChunk
}

// ChunkStart returns the first frame of the chunk holding frame.
func (r *Recording) ChunkStart(frame int) int {
	return frame - frame%r.global.FramesPerChunk
}

// ChunkPath returns the path of the chunk starting at start, relative to the
// recording root and slash separated.
func (r *Recording) ChunkPath(start int) string {
	return ChunkPath(start, r.global.Compressed)
}

// ChunkPath returns the relative path of a chunk file.
func ChunkPath(start int, compressed bool) string {
	name := strconv.Itoa(start) + ".json"
	if compressed {
		name += ".gz"
	}
	return path.Join(FramesDir, name)
}

// InstallChunk places decoded frames into the slots starting at start.
// Nil entries stay absent. Chunks written before version 2 are patched.
func (r *Recording) InstallChunk(start int, frames []*core.FrameData) error {
	if start < 0 || start%r.global.FramesPerChunk != 0 {
		return fmt.Errorf("chunk start %d is not aligned to %d frames", start, r.global.FramesPerChunk)
	}
	if len(frames) > r.global.FramesPerChunk {
		return fmt.Errorf("chunk %d holds %d frames, more than %d", start, len(frames), r.global.FramesPerChunk)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if need := start + len(frames); need > len(r.frames) {
		r.frames = slices.Grow(r.frames, need-len(r.frames))[:need]
	}
	for i, f := range frames {
		if f != nil && r.chunkVersion < 2 {
			storage.PatchFrameOrientation(f)
		}
		r.frames[start+i] = f
	}
	return nil
}

// RemoveFrameChunks empties the slots of the chunks starting at the given
// frames.
func (r *Recording) RemoveFrameChunks(starts ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, start := range starts {
		end := min(start+r.global.FramesPerChunk, len(r.frames))
		for i := max(start, 0); i < end; i++ {
			r.frames[i] = nil
		}
	}
}

// HasFrame reports whether slot i holds a frame.
func (r *Recording) HasFrame(i int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frames.FrameAt(i) != nil
}

// FrameData returns the stored frame at i, or an empty frame when the slot is
// absent.
func (r *Recording) FrameData(i int) *core.FrameData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f := r.frames.FrameAt(i); f != nil {
		return f
	}
	return core.EmptyFrame()
}

// BuildFrameDataHeader returns the scalar fields of frame i without entities.
func (r *Recording) BuildFrameDataHeader(i int) *core.FrameData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f := r.frames.FrameAt(i); f != nil {
		return f.Header()
	}
	return core.EmptyFrame()
}

// BuildFrameData returns the merged view of frame i. Only installed frames
// take part in the merge.
func (r *Recording) BuildFrameData(i int) *core.FrameData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return merge.Build(r.frames, i, r.ids)
}

// Size returns the number of frame slots.
func (r *Recording) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames)
}

func (r *Recording) TagByClientID(clientID uint32) (string, bool) {
	c, ok := r.global.ClientIDs[clientID]
	return c.Tag, ok
}

func (r *Recording) FindResource(path string) (*core.Resource, bool) {
	return r.resources.Get(path)
}

// Resources returns the resource index.
func (r *Recording) Resources() *cache.Resources {
	return r.resources
}

// EntityIDs returns the id mapping used by merged views.
func (r *Recording) EntityIDs() *cache.EntityIDs {
	return r.ids
}

func (r *Recording) Layers() []string {
	return slices.Clone(r.global.Layers)
}

func (r *Recording) Scenes() []string {
	return slices.Clone(r.global.Scenes)
}
