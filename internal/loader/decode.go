package loader

import (
	"context"
	"runtime"

	"github.com/OCAP2/inspector/internal/storage/chunked"
	"github.com/OCAP2/inspector/pkg/core"
)

// decode consumes payload in slices of DecodeSliceSize bytes, yielding and
// reporting progress between slices, then decodes the assembled buffer.
func (l *Loader) decode(ctx context.Context, path string, payload []byte) ([]*core.FrameData, error) {
	total := len(payload)
	buf := make([]byte, 0, total)

	for off := 0; off < total; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(off+l.cfg.DecodeSliceSize, total)
		buf = append(buf, payload[off:end]...)
		off = end

		if l.progress != nil {
			l.progress(path, off, total)
		}
		runtime.Gosched()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return chunked.DecodeChunk(buf)
}
