package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/inspector/internal/dispatcher"
	"github.com/OCAP2/inspector/pkg/streaming"
)

// CommandFetchChunks is the dispatcher command served by Local.
const CommandFetchChunks = "chunk.fetch"

// Local serves chunk requests in-process: requests are queued on a buffered
// dispatcher handler and answered from a FileSource by its worker.
type Local struct {
	src FileSource
	d   *dispatcher.Dispatcher

	mu      sync.RWMutex
	handler ResponseHandler
	closed  bool
}

// NewLocal registers the fetch command on d. The dispatcher is owned by the
// caller; Close only detaches this transport.
func NewLocal(src FileSource, d *dispatcher.Dispatcher, bufferSize int) *Local {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	l := &Local{src: src, d: d}
	d.Register(CommandFetchChunks, l.handle, dispatcher.Buffered(bufferSize), dispatcher.Blocking(), dispatcher.Logged())
	return l
}

func (l *Local) Send(ctx context.Context, req streaming.ChunkRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	_, err := l.d.Dispatch(dispatcher.Event{
		Command:   CommandFetchChunks,
		Args:      req.RelativePaths,
		Payload:   req,
		Timestamp: time.Now(),
	})
	if errors.Is(err, dispatcher.ErrClosed) {
		return ErrClosed
	}
	return err
}

func (l *Local) OnResponse(h ResponseHandler) {
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
}

func (l *Local) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

func (l *Local) handle(e dispatcher.Event) (any, error) {
	req, ok := e.Payload.(streaming.ChunkRequest)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T", e.Payload)
	}

	resp := l.src.Fetch(req)

	l.mu.RLock()
	h, closed := l.handler, l.closed
	l.mu.RUnlock()
	if h != nil && !closed {
		h(resp)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return nil, nil
}
