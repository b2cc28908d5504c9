package chunked

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/renameio/v2"
	"golang.org/x/sync/errgroup"

	"github.com/OCAP2/inspector/internal/storage/memory"
	"github.com/OCAP2/inspector/pkg/core"
)

// Write lays out src under dir in the chunked format. Chunk files are written
// concurrently; globaldata is written last so a reader never sees global data
// pointing at missing chunks.
func Write(ctx context.Context, dir string, src *memory.Recording, framesPerChunk int, compress bool) (GlobalData, error) {
	if framesPerChunk <= 0 {
		framesPerChunk = DefaultFramesPerChunk
	}
	if err := os.MkdirAll(filepath.Join(dir, FramesDir), 0755); err != nil {
		return GlobalData{}, fmt.Errorf("failed to create frames directory: %w", err)
	}

	frames := src.Frames()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for start := 0; start < len(frames); start += framesPerChunk {
		chunk := frames[start:min(start+framesPerChunk, len(frames))]
		name := filepath.Join(dir, filepath.FromSlash(ChunkPath(start, compress)))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return writeChunk(name, chunk, compress)
		})
	}
	if err := g.Wait(); err != nil {
		return GlobalData{}, err
	}

	snap := src.Snapshot()
	global := GlobalData{
		StorageVersion: CurrentVersion,
		TotalFrames:    len(frames),
		FramesPerChunk: framesPerChunk,
		Layers:         snap.Layers,
		Scenes:         snap.Scenes,
		ClientIDs:      snap.ClientIDs,
		Resources:      snap.Resources,
		Compressed:     compress,
	}
	if err := writeJSON(filepath.Join(dir, GlobalDataFile), global); err != nil {
		return GlobalData{}, err
	}
	return global, nil
}

func writeChunk(name string, frames []*core.FrameData, compress bool) error {
	pending, err := renameio.NewPendingFile(name)
	if err != nil {
		return fmt.Errorf("create pending chunk file: %w", err)
	}
	defer pending.Cleanup()

	if err := EncodeChunk(pending, frames, compress); err != nil {
		return fmt.Errorf("write chunk %s: %w", filepath.Base(name), err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace chunk file: %w", err)
	}
	return nil
}

func writeJSON(name string, v any) error {
	pending, err := renameio.NewPendingFile(name)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer pending.Cleanup()

	if err := json.NewEncoder(pending).Encode(v); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(name), err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", filepath.Base(name), err)
	}
	return nil
}
