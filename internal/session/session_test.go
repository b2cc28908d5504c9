package session

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/inspector/internal/dispatcher"
	"github.com/OCAP2/inspector/internal/loader"
	"github.com/OCAP2/inspector/internal/logging"
	"github.com/OCAP2/inspector/internal/ops"
	"github.com/OCAP2/inspector/internal/storage/chunked"
	"github.com/OCAP2/inspector/internal/storage/memory"
	"github.com/OCAP2/inspector/internal/testutil"
	"github.com/OCAP2/inspector/internal/transport"
	"github.com/OCAP2/inspector/pkg/core"
	"github.com/OCAP2/inspector/pkg/streaming"
)

// silentTransport accepts requests and never answers them.
type silentTransport struct{}

func (silentTransport) Send(context.Context, streaming.ChunkRequest) error { return nil }
func (silentTransport) OnResponse(transport.ResponseHandler)               {}
func (silentTransport) Close() error                                       { return nil }

func writeRecording(t *testing.T, src *memory.Recording, fpc int) string {
	t.Helper()
	dir := t.TempDir()
	_, err := chunked.Write(context.Background(), dir, src, fpc, false)
	require.NoError(t, err)
	return dir
}

func singleClient(n int) *memory.Recording {
	src := memory.New()
	for _, f := range testutil.Frames(1, n) {
		src.PushFrame(f)
	}
	return src
}

func open(t *testing.T, dir string, cfg Config) *Session {
	t.Helper()
	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(d.Close)

	tr := transport.NewLocal(transport.FileSource{Root: dir}, d, 8)
	s, err := Open(dir, tr, cfg, nil)
	require.NoError(t, err)
	return s
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(t.TempDir(), nil, Config{}, nil)
	require.Error(t, err)
}

func TestFrame_LoadsLookbackWindow(t *testing.T) {
	dir := writeRecording(t, singleClient(300), 100)
	s := open(t, dir, Config{})
	defer s.Close()

	f, err := s.Frame(context.Background(), 150)
	require.NoError(t, err)
	require.Len(t, f.Entities, 1)
	assert.Equal(t, float64(150), f.ServerTime)
	assert.Equal(t, 1, s.Status().Resident)

	// 95..105 spans two chunks
	_, err = s.Frame(context.Background(), 105)
	require.NoError(t, err)
	assert.True(t, s.Loader().IsResident(95))
	assert.True(t, s.Loader().IsResident(105))

	st := s.Status()
	assert.Equal(t, 2, st.Resident)
	assert.Equal(t, 105, st.Current)
	assert.Equal(t, 300, st.Frames)
	assert.Empty(t, st.Loading)
}

func TestFrame_OutOfRange(t *testing.T) {
	dir := writeRecording(t, singleClient(10), 10)
	s := open(t, dir, Config{})
	defer s.Close()

	for _, i := range []int{-1, 10, 500} {
		f, err := s.Frame(context.Background(), i)
		require.NoError(t, err)
		assert.Empty(t, f.Entities)
	}
	assert.Equal(t, -1, s.Status().Current)
}

func TestFrame_MergesClientsAcrossChunks(t *testing.T) {
	src := memory.New()
	for i := 0; i < 40; i++ {
		client := uint32(1 + i%2)
		e := testutil.NewEntity(1, 0, "unit", core.Vec3{X: float64(i)})
		src.PushFrame(testutil.NewFrame(client, float64(i), e))
	}
	dir := writeRecording(t, src, 10)
	s := open(t, dir, Config{})
	defer s.Close()

	// frame 20 is the first of its chunk; client 2's latest frame is 19
	f, err := s.Frame(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, f.Entities, 2)

	xs := map[float64]bool{}
	for _, e := range f.Entities {
		pos, ok := ops.EntityPosition(e)
		require.True(t, ok)
		xs[pos.X] = true
	}
	assert.Equal(t, map[float64]bool{19: true, 20: true}, xs)
}

func TestFrame_EvictsBeyondCapacity(t *testing.T) {
	dir := writeRecording(t, singleClient(100), 10)
	s := open(t, dir, Config{Loader: loader.Config{Capacity: 2}})
	defer s.Close()

	for _, i := range []int{5, 25, 45} {
		_, err := s.Frame(context.Background(), i)
		require.NoError(t, err)
		assert.LessOrEqual(t, s.Status().Resident, 2)
	}
	assert.True(t, s.Loader().IsResident(45))
	assert.True(t, s.Loader().IsResident(35))
	assert.False(t, s.Loader().IsResident(5))
}

func TestFrame_Canceled(t *testing.T) {
	dir := writeRecording(t, singleClient(20), 10)
	s, err := Open(dir, silentTransport{}, Config{}, nil)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Frame(ctx, 15)
	require.ErrorIs(t, err, context.Canceled)
}

func TestContext_SetReplacesAndCloses(t *testing.T) {
	c := NewContext()
	assert.Nil(t, c.Current())
	assert.Empty(t, c.LogAttrs())

	first := open(t, writeRecording(t, singleClient(5), 5), Config{})
	second := open(t, writeRecording(t, singleClient(5), 5), Config{})

	require.NoError(t, c.Set(first))
	assert.Same(t, first, c.Current())
	assert.Equal(t, first.Name(), c.LogAttrs()[0].Value.String())

	require.NoError(t, c.Set(second))
	assert.Same(t, second, c.Current())

	// the replaced session's transport is closed
	_, err := first.Loader().RequestFrame(context.Background(), 0)
	require.Error(t, err)

	require.NoError(t, c.Close())
	assert.Nil(t, c.Current())
}

func TestContext_FeedsLogging(t *testing.T) {
	c := NewContext()
	var buf bytes.Buffer
	logger := slog.New(logging.NewSessionHandler(slog.NewTextHandler(&buf, nil), c))

	logger.Info("idle")
	assert.NotContains(t, buf.String(), "recording=")

	s := open(t, writeRecording(t, singleClient(5), 5), Config{})
	require.NoError(t, c.Set(s))
	defer c.Close()

	logger.Info("opened")
	assert.Contains(t, buf.String(), "recording="+s.Name())
	assert.NotContains(t, buf.String(), "frame=")

	_, err := s.Frame(context.Background(), 3)
	require.NoError(t, err)
	buf.Reset()
	logger.Info("viewing")
	assert.Contains(t, buf.String(), "recording="+s.Name()+" frame=3")
}
