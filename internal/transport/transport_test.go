package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/OCAP2/inspector/internal/dispatcher"
	"github.com/OCAP2/inspector/internal/logging"
	"github.com/OCAP2/inspector/pkg/streaming"
)

// Compile-time interface check.
var _ Transport = (*Local)(nil)

func recordingRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "frames"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "frames", "0.json"), []byte(`[]`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "frames", "100.json"), []byte(`[null]`), 0644))
	return root
}

func TestFileSource_Fetch(t *testing.T) {
	src := FileSource{Root: recordingRoot(t)}

	resp := src.Fetch(streaming.ChunkRequest{RequestID: 7, RelativePaths: []string{"frames/0.json", "frames/100.json"}})
	assert.Empty(t, resp.Error)
	assert.Equal(t, uint64(7), resp.RequestID)
	assert.Equal(t, [][]byte{[]byte(`[]`), []byte(`[null]`)}, resp.Chunks)
}

func TestFileSource_FetchErrors(t *testing.T) {
	src := FileSource{Root: recordingRoot(t)}

	tests := []struct {
		name  string
		paths []string
	}{
		{"no paths", nil},
		{"missing file", []string{"frames/200.json"}},
		{"escape", []string{"../outside.json"}},
		{"one bad path fails all", []string{"frames/0.json", "frames/300.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := src.Fetch(streaming.ChunkRequest{RequestID: 1, RelativePaths: tt.paths})
			assert.NotEmpty(t, resp.Error)
			assert.Nil(t, resp.Chunks)
		})
	}
}

func newDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)
	return d
}

func TestLocal_RoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := newDispatcher(t)
	defer d.Close()

	l := NewLocal(FileSource{Root: recordingRoot(t)}, d, 4)
	got := make(chan streaming.ChunkResponse, 2)
	l.OnResponse(func(r streaming.ChunkResponse) { got <- r })

	require.NoError(t, l.Send(context.Background(), streaming.ChunkRequest{RequestID: 1, RelativePaths: []string{"frames/0.json"}}))
	require.NoError(t, l.Send(context.Background(), streaming.ChunkRequest{RequestID: 2, RelativePaths: []string{"frames/nope.json"}}))

	for _, want := range []uint64{1, 2} {
		select {
		case r := <-got:
			assert.Equal(t, want, r.RequestID)
			if want == 1 {
				assert.Empty(t, r.Error)
				assert.Len(t, r.Chunks, 1)
			} else {
				assert.NotEmpty(t, r.Error)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no response for request %d", want)
		}
	}
}

func TestLocal_SendAfterClose(t *testing.T) {
	d := newDispatcher(t)
	defer d.Close()

	l := NewLocal(FileSource{Root: t.TempDir()}, d, 1)
	require.NoError(t, l.Close())

	err := l.Send(context.Background(), streaming.ChunkRequest{RequestID: 1})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLocal_SendAfterDispatcherClose(t *testing.T) {
	d := newDispatcher(t)
	l := NewLocal(FileSource{Root: t.TempDir()}, d, 1)
	d.Close()

	err := l.Send(context.Background(), streaming.ChunkRequest{RequestID: 1})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLocal_SendCanceled(t *testing.T) {
	d := newDispatcher(t)
	defer d.Close()

	l := NewLocal(FileSource{Root: t.TempDir()}, d, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Send(ctx, streaming.ChunkRequest{RequestID: 1}), context.Canceled)
}
