package chunked

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/OCAP2/inspector/pkg/core"
)

var gzipMagic = []byte{0x1f, 0x8b}

// IsGzip reports whether data starts with the gzip magic bytes.
func IsGzip(data []byte) bool {
	return bytes.HasPrefix(data, gzipMagic)
}

// DecodeChunk decodes a chunk payload, a JSON array of frames, gunzipping it
// first when it is compressed.
func DecodeChunk(data []byte) ([]*core.FrameData, error) {
	var src io.Reader = bytes.NewReader(data)
	if IsGzip(data) {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip chunk: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	var frames []*core.FrameData
	if err := json.NewDecoder(src).Decode(&frames); err != nil {
		return nil, fmt.Errorf("failed to decode chunk: %w", err)
	}
	return frames, nil
}

// EncodeChunk writes frames as a chunk payload.
func EncodeChunk(w io.Writer, frames []*core.FrameData, compress bool) error {
	if !compress {
		return json.NewEncoder(w).Encode(frames)
	}

	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(frames); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

// ReadChunk reads and decodes the chunk starting at start straight from disk.
func (r *Recording) ReadChunk(start int) ([]*core.FrameData, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, filepath.FromSlash(r.ChunkPath(start))))
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %d: %w", start, err)
	}
	return DecodeChunk(data)
}

// LoadChunk reads the chunk holding frame from disk and installs it. It
// returns the chunk start.
func (r *Recording) LoadChunk(frame int) (int, error) {
	start := r.ChunkStart(frame)
	frames, err := r.ReadChunk(start)
	if err != nil {
		return start, err
	}
	return start, r.InstallChunk(start, frames)
}
