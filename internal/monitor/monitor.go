package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OCAP2/inspector/internal/session"
)

// StatusFile is the name of the file rewritten on every tick.
const StatusFile = "status.txt"

// StatusSink receives a snapshot of the open session on every tick.
type StatusSink interface {
	SessionStatus(st session.Status)
}

// MetricsSource yields current instrument values by name.
type MetricsSource interface {
	Collect(ctx context.Context) (map[string]int64, error)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Sessions  *session.Context
	Logger    *slog.Logger
	StatusDir string
	Interval  time.Duration
	Sink      StatusSink    // optional
	Metrics   MetricsSource // optional
}

// Service periodically reports the status of the open session.
type Service struct {
	deps Dependencies

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = 10 * time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Report is one monitor snapshot.
type Report struct {
	Time    time.Time        `json:"time"`
	Session *session.Status  `json:"session,omitempty"`
	Metrics map[string]int64 `json:"metrics,omitempty"`
}

// GetProgramStatus returns the current status, or a report without a session
// when none is open.
func (s *Service) GetProgramStatus(ctx context.Context) Report {
	r := Report{Time: time.Now()}
	if cur := s.deps.Sessions.Current(); cur != nil {
		st := cur.Status()
		r.Session = &st
	}
	if s.deps.Metrics != nil {
		m, err := s.deps.Metrics.Collect(ctx)
		if err != nil {
			s.deps.Logger.Warn("Failed to collect metrics", "error", err)
		} else if len(m) > 0 {
			r.Metrics = m
		}
	}
	return r
}

// Tick takes one snapshot, writes it to the status file and forwards it to
// the sink.
func (s *Service) Tick(ctx context.Context) error {
	r := s.GetProgramStatus(ctx)
	if r.Session != nil && s.deps.Sink != nil {
		s.deps.Sink.SessionStatus(*r.Session)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if s.deps.StatusDir == "" {
		return nil
	}
	name := filepath.Join(s.deps.StatusDir, StatusFile)
	if err := os.WriteFile(name, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.Tick(context.Background()); err != nil {
					logger.Error("Status monitor tick failed", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
