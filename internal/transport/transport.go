// Package transport moves chunk requests from the loader to whatever owns
// the recording files, and raw chunk payloads back.
package transport

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/OCAP2/inspector/internal/storage/chunked"
	"github.com/OCAP2/inspector/pkg/streaming"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// ResponseHandler receives every response. It may be called from any
// goroutine and must not block for long.
type ResponseHandler func(streaming.ChunkResponse)

// Transport delivers chunk requests and reports responses through the
// registered handler, matched by request id.
type Transport interface {
	Send(ctx context.Context, req streaming.ChunkRequest) error
	OnResponse(h ResponseHandler)
	Close() error
}

// FileSource answers chunk requests from files under a recording root.
type FileSource struct {
	Root string
}

// Fetch reads every requested path. Any failure fails the whole request.
func (s FileSource) Fetch(req streaming.ChunkRequest) streaming.ChunkResponse {
	resp := streaming.ChunkResponse{RequestID: req.RequestID}
	if len(req.RelativePaths) == 0 {
		resp.Error = "no paths requested"
		return resp
	}

	chunks := make([][]byte, 0, len(req.RelativePaths))
	for _, rel := range req.RelativePaths {
		name, err := chunked.ResolvePath(s.Root, rel)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		data, err := os.ReadFile(name)
		if err != nil {
			resp.Error = fmt.Sprintf("read %s: %v", rel, err)
			return resp
		}
		chunks = append(chunks, data)
	}
	resp.Chunks = chunks
	return resp
}
