// Package loader keeps a bounded set of chunks of a chunked recording
// resident, fetching missing chunks through a transport. Concurrent requests
// for the same chunk share one fetch.
package loader

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/OCAP2/inspector/internal/pending"
	"github.com/OCAP2/inspector/internal/transport"
	"github.com/OCAP2/inspector/pkg/core"
	"github.com/OCAP2/inspector/pkg/streaming"
)

// ErrCleared is returned to callers waiting on a request that Clear dropped.
var ErrCleared = errors.New("operation cancelled due to clear")

// ErrFetch wraps failures reported by the transport peer.
var ErrFetch = errors.New("chunk fetch failed")

const (
	DefaultCapacity        = 10
	DefaultDecodeSliceSize = 256 << 10
)

// Store is the part of the chunked recording the loader fills and empties.
type Store interface {
	FramesPerChunk() int
	ChunkStart(frame int) int
	ChunkPath(start int) string
	InstallChunk(start int, frames []*core.FrameData) error
	RemoveFrameChunks(starts ...int)
	FrameData(i int) *core.FrameData
}

// Chunk is a resident chunk. Init and End are inclusive frame indices.
type Chunk struct {
	Path       string
	Init       int
	End        int
	Frames     int
	LastAccess uint64
}

// Range is the inclusive frame span of an in-flight request.
type Range struct {
	Init int
	End  int
}

// Observer is told about chunks entering and leaving the resident set.
type Observer interface {
	ChunkLoaded(c Chunk, payloadBytes int, elapsed time.Duration)
	ChunkEvicted(c Chunk)
}

// ProgressFunc reports decode progress of one chunk payload.
type ProgressFunc func(path string, done, total int)

// Config holds loader tuning.
type Config struct {
	Capacity        int
	DecodeSliceSize int
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithProgress sets the decode progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(ld *Loader) { ld.progress = fn }
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(ld *Loader) { ld.observers = append(ld.observers, o) }
}

// Loader is the frame loader / chunk cache.
type Loader struct {
	store Store
	tr    transport.Transport
	cfg   Config

	logger    *slog.Logger
	progress  ProgressFunc
	observers []Observer
	metrics   *metrics

	// mu guards resident, clock and the decode generation. Registry
	// mutations that must agree with the resident set happen under it too.
	mu        sync.Mutex
	resident  map[int]*Chunk
	clock     uint64
	reqs      *pending.Registry[int, Chunk]
	genCtx    context.Context
	genCancel context.CancelFunc

	decoders sync.WaitGroup
}

// New creates a loader over store and registers itself as the transport's
// response handler.
func New(store Store, tr transport.Transport, cfg Config, opts ...Option) (*Loader, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.DecodeSliceSize <= 0 {
		cfg.DecodeSliceSize = DefaultDecodeSliceSize
	}

	l := &Loader{
		store:    store,
		tr:       tr,
		cfg:      cfg,
		logger:   slog.Default(),
		resident: make(map[int]*Chunk),
		reqs:     pending.NewRegistry[int, Chunk](),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.genCtx, l.genCancel = context.WithCancel(context.Background())

	m, err := newMetrics(l)
	if err != nil {
		return nil, err
	}
	l.metrics = m

	tr.OnResponse(l.handleResponse)
	return l, nil
}

// RequestFrame returns frame i, fetching its chunk first when it is not
// resident. Callers asking for frames of a chunk already in flight wait on
// that fetch. Canceling ctx abandons the wait but not the fetch.
func (l *Loader) RequestFrame(ctx context.Context, frame int) (*core.FrameData, error) {
	start := l.store.ChunkStart(frame)

	l.mu.Lock()
	if c, ok := l.resident[start]; ok {
		l.touch(c)
		l.mu.Unlock()
		return l.store.FrameData(frame), nil
	}
	req, added := l.reqs.FindOrAdd(start)
	l.mu.Unlock()

	if added {
		l.metrics.fetched(ctx)
		send := streaming.ChunkRequest{
			RequestID:     req.ID,
			RelativePaths: []string{l.store.ChunkPath(start)},
		}
		if err := l.tr.Send(context.WithoutCancel(ctx), send); err != nil {
			l.reqs.Reject(req.ID, fmt.Errorf("send chunk request %d: %w", start, err))
		}
	} else {
		l.metrics.coalesced(ctx)
	}

	if _, err := req.Wait(ctx); err != nil {
		return nil, err
	}
	return l.store.FrameData(frame), nil
}

func (l *Loader) handleResponse(resp streaming.ChunkResponse) {
	req, ok := l.reqs.Lookup(resp.RequestID)
	if !ok {
		l.logger.Debug("Dropping response for unknown request", "requestId", resp.RequestID)
		return
	}
	if resp.Error != "" {
		l.reqs.Reject(req.ID, fmt.Errorf("%w: %s", ErrFetch, resp.Error))
		return
	}
	if len(resp.Chunks) != 1 {
		l.reqs.Reject(req.ID, fmt.Errorf("%w: expected 1 chunk, got %d", ErrFetch, len(resp.Chunks)))
		return
	}

	l.mu.Lock()
	ctx := l.genCtx
	l.decoders.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.decoders.Done()
		l.install(ctx, req, resp.Chunks[0])
	}()
}

func (l *Loader) install(ctx context.Context, req *pending.Request[int, Chunk], payload []byte) {
	began := time.Now()
	start := req.Key
	path := l.store.ChunkPath(start)

	frames, err := l.decode(ctx, path, payload)
	if err != nil {
		l.reqs.Reject(req.ID, fmt.Errorf("decode chunk %d: %w", start, err))
		return
	}

	l.mu.Lock()
	if !l.reqs.Has(req.ID) {
		// cleared while decoding
		l.mu.Unlock()
		return
	}
	c, dup := l.resident[start]
	if !dup {
		if err := l.store.InstallChunk(start, frames); err != nil {
			l.mu.Unlock()
			l.reqs.Reject(req.ID, fmt.Errorf("install chunk %d: %w", start, err))
			return
		}
		c = &Chunk{
			Path:   path,
			Init:   start,
			End:    start + l.store.FramesPerChunk() - 1,
			Frames: len(frames),
		}
		l.resident[start] = c
	}
	l.touch(c)
	loaded := *c
	l.reqs.Resolve(req.ID, loaded)
	l.mu.Unlock()

	if dup {
		l.logger.Debug("Chunk already resident", "start", start)
		return
	}
	elapsed := time.Since(began)
	l.logger.Debug("Chunk loaded", "path", path, "frames", len(frames), "bytes", len(payload), "duration", elapsed)
	for _, o := range l.observers {
		o.ChunkLoaded(loaded, len(payload), elapsed)
	}
}

// touch stamps c with the next access time. Callers hold mu.
func (l *Loader) touch(c *Chunk) {
	l.clock++
	c.LastAccess = l.clock
}

// NotifyFrameAccess marks the chunk holding frame as recently used.
func (l *Loader) NotifyFrameAccess(frame int) {
	start := l.store.ChunkStart(frame)
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.resident[start]; ok {
		l.touch(c)
	}
}

// RemoveOldChunks evicts least recently accessed chunks while more than
// capacity are resident. The chunk holding currentFrame and its two
// neighbours are never evicted. Evicted chunks are removed from the store and
// returned.
func (l *Loader) RemoveOldChunks(currentFrame int) []Chunk {
	fpc := l.store.FramesPerChunk()
	cur := l.store.ChunkStart(currentFrame)

	l.mu.Lock()
	if len(l.resident) <= l.cfg.Capacity {
		l.mu.Unlock()
		return nil
	}

	candidates := make([]*Chunk, 0, len(l.resident))
	for start, c := range l.resident {
		if start == cur || start == cur-fpc || start == cur+fpc {
			continue
		}
		candidates = append(candidates, c)
	}
	slices.SortFunc(candidates, func(a, b *Chunk) int {
		return cmp.Compare(a.LastAccess, b.LastAccess)
	})

	var evicted []Chunk
	var starts []int
	for _, c := range candidates {
		if len(l.resident) <= l.cfg.Capacity {
			break
		}
		delete(l.resident, c.Init)
		evicted = append(evicted, *c)
		starts = append(starts, c.Init)
	}
	l.store.RemoveFrameChunks(starts...)
	l.mu.Unlock()

	if len(evicted) > 0 {
		l.metrics.evicted(context.Background(), len(evicted))
		l.logger.Debug("Evicted chunks", "count", len(evicted), "currentFrame", currentFrame)
	}
	for _, c := range evicted {
		for _, o := range l.observers {
			o.ChunkEvicted(c)
		}
	}
	return evicted
}

// IsFrameLoading reports whether a request for the chunk holding frame is in
// flight.
func (l *Loader) IsFrameLoading(frame int) bool {
	return l.reqs.HasKey(l.store.ChunkStart(frame))
}

// FramesLoading returns the spans of all in-flight requests, in frame order.
func (l *Loader) FramesLoading() []Range {
	fpc := l.store.FramesPerChunk()
	starts := l.reqs.Keys()
	slices.Sort(starts)

	out := make([]Range, len(starts))
	for i, s := range starts {
		out[i] = Range{Init: s, End: s + fpc - 1}
	}
	return out
}

// IsResident reports whether the chunk holding frame is resident.
func (l *Loader) IsResident(frame int) bool {
	start := l.store.ChunkStart(frame)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.resident[start]
	return ok
}

// Resident returns the resident chunks ordered by start frame.
func (l *Loader) Resident() []Chunk {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Chunk, 0, len(l.resident))
	for _, c := range l.resident {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Chunk) int { return a.Init - b.Init })
	return out
}

// Clear drops every resident chunk and rejects all in-flight requests with
// ErrCleared. Decodes in progress are abandoned.
func (l *Loader) Clear() {
	l.mu.Lock()
	starts := make([]int, 0, len(l.resident))
	for s := range l.resident {
		starts = append(starts, s)
	}
	l.resident = make(map[int]*Chunk)
	l.store.RemoveFrameChunks(starts...)
	l.genCancel()
	l.genCtx, l.genCancel = context.WithCancel(context.Background())
	n := l.reqs.RejectAll(ErrCleared)
	l.mu.Unlock()

	if n > 0 || len(starts) > 0 {
		l.logger.Debug("Loader cleared", "resident", len(starts), "rejected", n)
	}
}

// Close clears the loader and waits for running decodes to return.
func (l *Loader) Close() {
	l.Clear()
	l.decoders.Wait()

	l.mu.Lock()
	l.genCancel()
	l.mu.Unlock()
	l.metrics.unregister()
}
