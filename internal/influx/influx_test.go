package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/inspector/internal/config"
	"github.com/OCAP2/inspector/internal/loader"
	"github.com/OCAP2/inspector/internal/session"
)

// unreachable points at a closed local port so Ping fails fast.
func unreachable() config.InfluxConfig {
	return config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
		Org:      "ocap-metrics",
		Bucket:   "ocap-inspector",
	}
}

func readBackup(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), filepath.Join(t.TempDir(), "b.gz"))
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
	assert.NoError(t, m.Close())
}

func TestWritePoint_NotConnected(t *testing.T) {
	m := NewManager(unreachable(), zerolog.Nop(), "")
	err := m.WritePoint(influxdb2_write.NewPointWithMeasurement("x").AddField("v", 1))
	require.Error(t, err)
}

func TestConnect_FallsBackToBackup(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	m := NewManager(unreachable(), zerolog.Nop(), backup)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.Valid())

	p := influxdb2_write.NewPointWithMeasurement("probe").
		AddTag("k", "v").
		AddField("n", 3).
		SetTime(time.Unix(0, 42))
	require.NoError(t, m.WritePoint(p))
	require.NoError(t, m.Close())

	assert.Equal(t, []string{"probe,k=v n=3i 42"}, readBackup(t, backup))
}

func TestReporter_WritesLoaderAndSessionPoints(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	m := NewManager(unreachable(), zerolog.Nop(), backup)
	require.NoError(t, m.Connect(context.Background()))

	r := NewReporter(m, "op_alpha", zerolog.Nop())
	r.now = func() time.Time { return time.Unix(0, 7) }

	c := loader.Chunk{Path: "frames/100.json", Init: 100, End: 199, Frames: 100}
	r.ChunkLoaded(c, 2048, 1500*time.Microsecond)
	r.ChunkEvicted(c)
	r.SessionStatus(session.Status{Name: "op_alpha", Frames: 300, Current: 150, Resident: 2, Loading: []loader.Range{{Init: 200, End: 299}}})
	require.NoError(t, m.Close())

	lines := readBackup(t, backup)
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "chunk_loaded,path=frames/100.json,recording=op_alpha "))
	assert.Contains(t, lines[0], "bytes=2048i")
	assert.Contains(t, lines[0], "elapsed_ms=1.5")
	assert.True(t, strings.HasPrefix(lines[1], "chunk_evicted,path=frames/100.json,recording=op_alpha "))
	assert.True(t, strings.HasPrefix(lines[2], "session_status,recording=op_alpha "))
	assert.Contains(t, lines[2], "loading=1i")
	assert.Contains(t, lines[2], "resident=2i")
}
