package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/inspector/internal/monitor"
	"github.com/OCAP2/inspector/internal/storage/memory"
	"github.com/OCAP2/inspector/internal/testutil"
)

type fixture struct {
	cfgDir  string
	logsDir string
	src     string
	dir     string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	t.Cleanup(viper.Reset)
	root := t.TempDir()
	f := fixture{
		cfgDir:  root,
		logsDir: filepath.Join(root, "logs"),
		src:     filepath.Join(root, "op_alpha.json.gz"),
		dir:     filepath.Join(root, "op_alpha"),
	}

	cfg := map[string]any{
		"logLevel": "debug",
		"logsDir":  f.logsDir,
		"storage":  map[string]any{"framesPerChunk": 10},
		"annotations": map[string]any{
			"driver":     "sqlite",
			"sqlitePath": filepath.Join(root, "comments.db"),
		},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "ocap_inspector.cfg.json"), data, 0644))

	rec := memory.New()
	for _, fr := range testutil.Frames(1, 30) {
		rec.PushFrame(fr)
	}
	require.NoError(t, rec.Save(f.src, true))
	return f
}

func (f fixture) run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	parser := &docopt.Parser{HelpHandler: docopt.NoHelpHandler}
	opts, err := parser.ParseArgs(usage, append(args, "--config="+f.cfgDir), Version)
	require.NoError(t, err)

	var out bytes.Buffer
	a, err := newApp(f.cfgDir, &out)
	require.NoError(t, err)
	err = run(ctx, a, opts)
	a.close()
	return out.String(), err
}

func (f fixture) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := f.run(t, context.Background(), args...)
	require.NoError(t, err)
	return out
}

func TestSplitAndInfo(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "split", f.src, f.dir)

	var info recordingInfo
	require.NoError(t, json.Unmarshal([]byte(f.mustRun(t, "info", f.dir)), &info))
	assert.Equal(t, 30, info.Frames)
	assert.Equal(t, 10, info.FramesPerChunk)
	assert.Equal(t, 3, info.Chunks)
	assert.False(t, info.Compressed)
	assert.Empty(t, info.Unresolved)
}

func TestSplit_FlagsOverrideConfig(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "split", f.src, f.dir, "--frames-per-chunk=7", "--compress")

	var info recordingInfo
	require.NoError(t, json.Unmarshal([]byte(f.mustRun(t, "info", f.dir)), &info))
	assert.Equal(t, 7, info.FramesPerChunk)
	assert.Equal(t, 5, info.Chunks)
	assert.True(t, info.Compressed)
}

func TestFrameWithinAndPath(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "split", f.src, f.dir)

	var frame struct {
		ServerTime float64                    `json:"serverTime"`
		Entities   map[string]json.RawMessage `json:"entities"`
	}
	require.NoError(t, json.Unmarshal([]byte(f.mustRun(t, "frame", f.dir, "12")), &frame))
	assert.Equal(t, 12.0, frame.ServerTime)
	assert.Len(t, frame.Entities, 1)

	var refs []entityRef
	require.NoError(t, json.Unmarshal([]byte(f.mustRun(t, "within", f.dir, "3", "[[0,-1],[5,-1],[5,1],[0,1]]")), &refs))
	require.Len(t, refs, 1)
	assert.Equal(t, uint64(1), refs[0].ID)
	assert.Equal(t, "unit", refs[0].Name)

	require.NoError(t, json.Unmarshal([]byte(f.mustRun(t, "within", f.dir, "8", "[[0,-1],[5,-1],[5,1],[0,1]]")), &refs))
	assert.Empty(t, refs)

	var path struct {
		Points int     `json:"points"`
		Length float64 `json:"length"`
	}
	require.NoError(t, json.Unmarshal([]byte(f.mustRun(t, "path", f.dir, "1", "0", "9")), &path))
	assert.Equal(t, 10, path.Points)
	assert.InDelta(t, 9.0, path.Length, 1e-9)
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "split", f.src, f.dir)

	var added struct {
		ID       string            `json:"id"`
		ClientID uint32            `json:"clientId"`
		EntityID uint64            `json:"entityId"`
		Metadata map[string]string `json:"metadata"`
	}
	out := f.mustRun(t, "comment", "add", f.dir, "5", "holding the ridge", "--entity=1", "--author=reviewer")
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Equal(t, uint32(1), added.ClientID)
	assert.Equal(t, uint64(1), added.EntityID)
	assert.Equal(t, "unit", added.Metadata["entityName"])

	f.mustRun(t, "comment", "add", f.dir, "20", "regrouping")

	var list []struct {
		Text  string `json:"text"`
		Frame uint   `json:"frame"`
	}
	require.NoError(t, json.Unmarshal([]byte(f.mustRun(t, "comment", "list", "op_alpha")), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "holding the ridge", list[0].Text)

	require.NoError(t, json.Unmarshal([]byte(f.mustRun(t, "comment", "list", "op_alpha", "--from=10", "--to=29")), &list))
	require.Len(t, list, 1)
	assert.Equal(t, uint(20), list[0].Frame)

	f.mustRun(t, "comment", "delete", added.ID)
	_, err := f.run(t, context.Background(), "comment", "delete", added.ID)
	require.Error(t, err)
}

func TestComment_Errors(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "split", f.src, f.dir)

	_, err := f.run(t, context.Background(), "comment", "add", f.dir, "99", "past the end")
	require.Error(t, err)
	_, err = f.run(t, context.Background(), "comment", "add", f.dir, "5", "ghost", "--entity=42")
	require.Error(t, err)
}

func TestComments_InMemoryBackup(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "split", f.src, f.dir)

	path := filepath.Join(f.cfgDir, "ocap_inspector.cfg.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(data, &cfg))
	cfg["annotations"] = map[string]any{"driver": "sqlite", "sqlitePath": ""}
	data, err = json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	var backups []string
	require.NoError(t, json.Unmarshal([]byte(f.mustRun(t, "comment", "backups")), &backups))
	assert.Empty(t, backups)

	f.mustRun(t, "comment", "add", f.dir, "5", "kept after exit")

	require.NoError(t, json.Unmarshal([]byte(f.mustRun(t, "comment", "backups")), &backups))
	require.Len(t, backups, 1)
	assert.Equal(t, ".db", filepath.Ext(backups[0]))
}

func TestWatch_WritesStatus(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "split", f.src, f.dir)

	var rep monitor.Report
	require.NoError(t, json.Unmarshal([]byte(f.mustRun(t, "watch", f.dir, "0", "15")), &rep))
	require.NotNil(t, rep.Session)
	assert.Equal(t, "op_alpha", rep.Session.Name)
	assert.Equal(t, 15, rep.Session.Current)

	_, err := os.Stat(filepath.Join(f.logsDir, monitor.StatusFile))
	assert.NoError(t, err)
}

func TestServe_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "split", f.src, f.dir)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := f.run(t, ctx, "serve", f.dir, "--listen=127.0.0.1:0")
		errc <- err
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestPublish(t *testing.T) {
	f := newFixture(t)

	var missionName, tag string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthcheck" {
			return
		}
		if !assert.NoError(t, r.ParseMultipartForm(10<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		missionName = r.FormValue("missionName")
		tag = r.FormValue("tag")
	}))
	defer server.Close()

	path := filepath.Join(f.cfgDir, "ocap_inspector.cfg.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(data, &cfg))
	cfg["api"] = map[string]any{"serverUrl": server.URL, "apiKey": "k"}
	data, err = json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	f.mustRun(t, "publish", f.src, "--tag=TvT")
	assert.Equal(t, "op_alpha", missionName)
	assert.Equal(t, "TvT", tag)
}

func TestRun_BadArguments(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, context.Background(), "frame", f.dir, "abc")
	require.Error(t, err)
	_, err = f.run(t, context.Background(), "info", filepath.Join(f.cfgDir, "missing"))
	require.Error(t, err)
}
