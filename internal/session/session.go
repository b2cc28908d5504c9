// Package session ties an opened chunked recording to its frame loader and
// chunk transport.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/OCAP2/inspector/internal/loader"
	"github.com/OCAP2/inspector/internal/merge"
	"github.com/OCAP2/inspector/internal/storage/chunked"
	"github.com/OCAP2/inspector/internal/transport"
	"github.com/OCAP2/inspector/pkg/core"
)

// Config configures Open.
type Config struct {
	FramesPerChunk int
	Loader         loader.Config
}

// Status is a point-in-time view of a session.
type Status struct {
	Name     string
	Frames   int
	Current  int
	Resident int
	Loading  []loader.Range
}

// Session is one open recording.
type Session struct {
	name   string
	rec    *chunked.Recording
	loader *loader.Loader
	tr     transport.Transport
	logger *slog.Logger

	mu      sync.Mutex
	current int
}

// Open opens the chunked recording in dir and starts a loader fetching its
// chunks through tr. The session owns tr from here on.
func Open(dir string, tr transport.Transport, cfg Config, logger *slog.Logger, opts ...loader.Option) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rec, err := chunked.Open(dir, cfg.FramesPerChunk)
	if err != nil {
		return nil, fmt.Errorf("open recording %s: %w", dir, err)
	}

	name := filepath.Base(filepath.Clean(dir))
	logger = logger.With("component", "session")
	opts = append([]loader.Option{loader.WithLogger(logger)}, opts...)

	l, err := loader.New(rec, tr, cfg.Loader, opts...)
	if err != nil {
		return nil, fmt.Errorf("create loader: %w", err)
	}

	logger.Info("Recording opened",
		"frames", rec.Size(),
		"framesPerChunk", rec.FramesPerChunk(),
		"compressed", rec.Global().Compressed)

	return &Session{
		name:    name,
		rec:     rec,
		loader:  l,
		tr:      tr,
		logger:  logger,
		current: -1,
	}, nil
}

func (s *Session) Name() string                  { return s.name }
func (s *Session) Recording() *chunked.Recording { return s.rec }
func (s *Session) Loader() *loader.Loader        { return s.loader }

// Frame returns the merged view of frame i. Every chunk overlapping the merge
// lookback window is made resident first; old chunks are evicted afterwards.
// Out-of-range frames yield an empty frame.
func (s *Session) Frame(ctx context.Context, i int) (*core.FrameData, error) {
	if i < 0 || i >= s.rec.Size() {
		return core.EmptyFrame(), nil
	}

	if err := s.ensureWindow(ctx, i); err != nil {
		return nil, err
	}

	s.loader.NotifyFrameAccess(i)
	f := s.rec.BuildFrameData(i)

	s.mu.Lock()
	s.current = i
	s.mu.Unlock()

	if evicted := s.loader.RemoveOldChunks(i); len(evicted) > 0 {
		s.logger.Debug("Evicted chunks", "count", len(evicted), "frame", i)
	}
	return f, nil
}

// ensureWindow loads the chunks covering [i-merge.Lookback, i] concurrently.
func (s *Session) ensureWindow(ctx context.Context, i int) error {
	first := max(0, i-merge.Lookback)
	fpc := s.rec.FramesPerChunk()

	g, gctx := errgroup.WithContext(ctx)
	for start := s.rec.ChunkStart(first); start <= i; start += fpc {
		frame := max(start, first)
		g.Go(func() error {
			_, err := s.loader.RequestFrame(gctx, frame)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load frame %d: %w", i, err)
	}
	return nil
}

// Status reports the session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()

	return Status{
		Name:     s.name,
		Frames:   s.rec.Size(),
		Current:  cur,
		Resident: len(s.loader.Resident()),
		Loading:  s.loader.FramesLoading(),
	}
}

// LogAttrs names the recording and, once one has been built, the frame last
// viewed.
func (s *Session) LogAttrs() []slog.Attr {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur < 0 {
		return []slog.Attr{slog.String("recording", s.name)}
	}
	return []slog.Attr{slog.String("recording", s.name), slog.Int("frame", cur)}
}

// Close stops the loader and closes the transport.
func (s *Session) Close() error {
	s.loader.Close()
	if err := s.tr.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	s.logger.Info("Recording closed")
	return nil
}
