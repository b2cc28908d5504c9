package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/OCAP2/inspector/internal/config"
	"github.com/OCAP2/inspector/internal/dispatcher"
	"github.com/OCAP2/inspector/internal/influx"
	"github.com/OCAP2/inspector/internal/loader"
	"github.com/OCAP2/inspector/internal/logging"
	intOtel "github.com/OCAP2/inspector/internal/otel"
	"github.com/OCAP2/inspector/internal/session"
	"github.com/OCAP2/inspector/internal/transport"
	"github.com/OCAP2/inspector/internal/transport/websocket"
)

// app holds the process-wide services every command shares.
type app struct {
	start time.Time
	out   io.Writer

	logFile *os.File
	slogMgr *logging.SlogManager
	logger  *slog.Logger
	zlog    zerolog.Logger
	otel    *intOtel.Provider
	closers []io.Closer

	sessions   *session.Context
	dispatcher *dispatcher.Dispatcher
	influx     *influx.Manager
}

func newApp(configDir string, out io.Writer) (*app, error) {
	a := &app{
		start:    time.Now(),
		out:      out,
		slogMgr:  logging.NewSlogManager(),
		sessions: session.NewContext(),
	}

	// console logging until the log file is known
	a.slogMgr.Setup(nil, "info", nil)
	a.logger = a.slogMgr.Logger()

	if err := config.Load(configDir); err != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", err)
	}
	level := config.GetString("logLevel")

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, AppName, a.start)
	if _, err := os.Stat(logPath); err == nil {
		_ = os.Rename(logPath, logPath+".old")
	}
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		a.logger.Error("Failed to create/open log file!", "error", err, "path", logPath)
	} else {
		a.logFile = f
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var logWriter io.Writer
		if a.logFile != nil {
			logWriter = a.logFile
		}
		a.otel, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    logWriter,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			a.logger.Error("Failed to initialize OTel provider", "error", err)
			a.otel = nil
		}
	}

	var extra []slog.Handler
	if config.GetBool("graylog.enabled") {
		h, closer, err := logging.NewGelfHandler(config.GetString("graylog.address"), level)
		if err != nil {
			a.logger.Warn("Failed to connect to Graylog", "error", err)
		} else {
			extra = append(extra, h)
			a.closers = append(a.closers, closer)
		}
	}

	var provider *sdklog.LoggerProvider
	if a.otel != nil {
		provider = a.otel.LoggerProvider()
	}
	var file io.Writer
	if a.logFile != nil {
		file = a.logFile
	}
	a.slogMgr.Setup(file, level, provider, extra...)
	a.logger = slog.New(logging.NewSessionHandler(a.slogMgr.Logger().Handler(), a.sessions))
	slog.SetDefault(a.logger)
	a.logger.Info("Logging to file", "path", logPath)

	a.zlog = a.newZerolog(file, level)

	a.dispatcher, err = dispatcher.New(logging.NewDispatcherLogger(a.zlog))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}
	return a, nil
}

// newZerolog builds the logger handed to the database, annotation and influx
// managers. Records carry the open recording like the slog ones.
func (a *app) newZerolog(file io.Writer, level string) zerolog.Logger {
	out := io.Writer(os.Stdout)
	if file != nil {
		out = file
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}).With().Timestamp().Logger().
		Level(lvl).
		Hook(zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
			if s := a.sessions.Current(); s != nil {
				e.Str("recording", s.Name())
			}
		}))
}

// influxManager connects the influx reporter on first use. It returns nil
// when reporting is disabled or the connection could not be set up.
func (a *app) influxManager(ctx context.Context) *influx.Manager {
	if a.influx != nil {
		return a.influx
	}
	backup := filepath.Join(config.GetString("logsDir"), "influx_backup.log.gz")
	m := influx.NewManager(config.GetInfluxConfig(), a.zlog, backup)
	if err := m.Connect(ctx); err != nil {
		if !errors.Is(err, influx.ErrDisabled) {
			a.logger.Error("Failed to set up InfluxDB reporting", "error", err)
		}
		return nil
	}
	a.influx = m
	return m
}

// newTransport builds the configured chunk transport for the recording in dir.
func (a *app) newTransport(ctx context.Context, dir string) (transport.Transport, error) {
	cfg := config.GetTransportConfig()
	switch cfg.Type {
	case "", "local":
		return transport.NewLocal(transport.FileSource{Root: dir}, a.dispatcher, cfg.BufferSize), nil
	case "websocket":
		return websocket.Dial(ctx, websocket.Config{
			URL:    cfg.URL,
			Secret: cfg.Secret,
			Logger: a.logger,
		})
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
	}
}

// openSession opens dir and makes it the current session.
func (a *app) openSession(ctx context.Context, dir string) (*session.Session, error) {
	tr, err := a.newTransport(ctx, dir)
	if err != nil {
		return nil, err
	}

	var opts []loader.Option
	if m := a.influxManager(ctx); m != nil {
		opts = append(opts, loader.WithObserver(influx.NewReporter(m, filepath.Base(filepath.Clean(dir)), a.zlog)))
	}

	lc := config.GetLoaderConfig()
	s, err := session.Open(dir, tr, session.Config{
		FramesPerChunk: config.GetStorageConfig().FramesPerChunk,
		Loader: loader.Config{
			Capacity:        lc.Capacity,
			DecodeSliceSize: lc.DecodeSliceSize,
		},
	}, a.logger, opts...)
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	if err := a.sessions.Set(s); err != nil {
		a.logger.Warn("Failed to close previous session", "error", err)
	}
	return s, nil
}

func (a *app) close() {
	if err := a.sessions.Close(); err != nil {
		a.logger.Warn("Failed to close session", "error", err)
	}
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.logger.Warn("Failed to close InfluxDB manager", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.slogMgr.Flush(ctx); err != nil {
		a.logger.Warn("Failed to flush logs", "error", err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "otel shutdown:", err)
		}
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
