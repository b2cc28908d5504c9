package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// exportedBodies collects what the OTel bridge hands to the SDK.
type exportedBodies struct {
	mu     sync.Mutex
	bodies []string
}

func (e *exportedBodies) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.bodies = append(e.bodies, r.Body().AsString())
	}
	return nil
}

func (e *exportedBodies) Shutdown(context.Context) error   { return nil }
func (e *exportedBodies) ForceFlush(context.Context) error { return nil }

func (e *exportedBodies) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.bodies...)
}

type failingHandler struct{ err error }

func (h failingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h failingHandler) Handle(context.Context, slog.Record) error { return h.err }
func (h failingHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h failingHandler) WithGroup(string) slog.Handler             { return h }

func TestSetup_ConsoleOnlyWithoutFile(t *testing.T) {
	tests := []struct {
		name        string
		withFile    bool
		wantConsole bool
	}{
		{name: "before the log file exists", withFile: false, wantConsole: true},
		{name: "log file replaces the console", withFile: true, wantConsole: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var console, file bytes.Buffer
			m := &SlogManager{console: &console}
			if tt.withFile {
				m.Setup(&file, "info", nil)
			} else {
				m.Setup(nil, "info", nil)
			}
			m.Logger().Info("chunk loaded", "start", 100)

			if tt.wantConsole {
				assert.Contains(t, console.String(), "chunk loaded")
				assert.Empty(t, file.String())
			} else {
				assert.Empty(t, console.String())
				assert.Contains(t, file.String(), "start=100")
			}
		})
	}
}

func TestSetup_LevelFilters(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{level: "debug", wantDebug: true, wantInfo: true},
		{level: "info", wantDebug: false, wantInfo: true},
		{level: "error", wantDebug: false, wantInfo: false},
		{level: "bogus", wantDebug: false, wantInfo: true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var file bytes.Buffer
			m := NewSlogManager()
			m.Setup(&file, tt.level, nil)
			file.Reset()

			m.Logger().Debug("decode slice")
			m.Logger().Info("request sent")
			assert.Equal(t, tt.wantDebug, strings.Contains(file.String(), "decode slice"))
			assert.Equal(t, tt.wantInfo, strings.Contains(file.String(), "request sent"))
		})
	}
}

func TestSetup_TimesAreUTC(t *testing.T) {
	var file bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "info", nil)
	assert.Regexp(t, `time=\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z`, file.String())
}

func TestSetup_ExtraHandlersReceiveRecords(t *testing.T) {
	var file, graylog, audit bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "debug", nil,
		slog.NewJSONHandler(&graylog, &slog.HandlerOptions{Level: slog.LevelWarn}),
		nil,
		slog.NewJSONHandler(&audit, nil),
	)
	assert.Contains(t, file.String(), "sinks=3")

	m.Logger().Info("recording opened")
	m.Logger().Error("chunk fetch failed", "start", 200)

	assert.Contains(t, file.String(), "recording opened")
	assert.Contains(t, file.String(), "chunk fetch failed")
	assert.NotContains(t, graylog.String(), "recording opened")
	assert.Contains(t, graylog.String(), `"start":200`)
	assert.Contains(t, audit.String(), "recording opened")
	assert.Contains(t, audit.String(), "chunk fetch failed")
}

func TestSetup_OTelBridge(t *testing.T) {
	exp := &exportedBodies{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	var file bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "info", provider)
	m.Logger().Info("chunk evicted")
	require.NoError(t, m.Flush(context.Background()))

	assert.Contains(t, exp.all(), "chunk evicted")
	assert.Contains(t, file.String(), "chunk evicted")
}

func TestSlogManager_BeforeSetup(t *testing.T) {
	m := NewSlogManager()
	assert.Same(t, slog.Default(), m.Logger())
	assert.NoError(t, m.Flush(context.Background()))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"DEBUG": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"trace": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestMultiHandler_Enabled(t *testing.T) {
	ctx := context.Background()
	h := NewMultiHandler(
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))

	assert.False(t, NewMultiHandler().Enabled(ctx, slog.LevelError))
	assert.False(t, NewMultiHandler(nil, nil).Enabled(ctx, slog.LevelError))
}

func TestMultiHandler_ReportsFailuresAndContinues(t *testing.T) {
	var buf bytes.Buffer
	first := errors.New("graylog down")
	second := errors.New("otlp down")
	h := NewMultiHandler(failingHandler{first}, slog.NewTextHandler(&buf, nil), failingHandler{second})

	var r slog.Record
	r.Level = slog.LevelInfo
	r.Message = "still written"
	err := h.Handle(context.Background(), r)

	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Contains(t, buf.String(), "still written")
}

func TestMultiHandler_AttrsAndGroups(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(slog.NewTextHandler(&a, nil), slog.NewTextHandler(&b, nil))
	assert.Same(t, h, h.WithGroup(""))

	logger := slog.New(h).With("component", "loader").WithGroup("chunk")
	logger.Info("installed", "start", 10)

	for _, out := range []string{a.String(), b.String()} {
		assert.Contains(t, out, "component=loader")
		assert.Contains(t, out, "chunk.start=10")
	}
}
