package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/OCAP2/inspector/internal/annotations"
	"github.com/OCAP2/inspector/internal/api"
	"github.com/OCAP2/inspector/internal/config"
	"github.com/OCAP2/inspector/internal/database"
	"github.com/OCAP2/inspector/internal/geo"
	"github.com/OCAP2/inspector/internal/influx"
	"github.com/OCAP2/inspector/internal/monitor"
	"github.com/OCAP2/inspector/internal/ops"
	"github.com/OCAP2/inspector/internal/storage/chunked"
	"github.com/OCAP2/inspector/internal/storage/memory"
	"github.com/OCAP2/inspector/internal/transport"
	"github.com/OCAP2/inspector/internal/transport/websocket"
	"github.com/OCAP2/inspector/pkg/core"
)

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func intArg(opts docopt.Opts, key string) (int, error) {
	s, _ := opts.String(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", key, s)
	}
	return n, nil
}

func (a *app) split(ctx context.Context, opts docopt.Opts) error {
	src, _ := opts.String("<recording>")
	dst, _ := opts.String("<outdir>")

	cfg := config.GetStorageConfig()
	if s, _ := opts.String("--frames-per-chunk"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("--frames-per-chunk: %q is not a positive number", s)
		}
		cfg.FramesPerChunk = n
	}
	if flag(opts, "--compress") {
		cfg.CompressChunks = true
	}

	start := time.Now()
	rec, err := memory.Load(src)
	if err != nil {
		return err
	}
	gd, err := chunked.Write(ctx, dst, rec, cfg.FramesPerChunk, cfg.CompressChunks)
	if err != nil {
		return fmt.Errorf("write chunked recording: %w", err)
	}
	a.logger.Info("Recording split",
		"source", src,
		"dir", dst,
		"frames", gd.TotalFrames,
		"duration", time.Since(start))

	return a.print(gd)
}

func (a *app) publish(ctx context.Context, opts docopt.Opts) error {
	src, _ := opts.String("<recording>")
	tag, _ := opts.String("--tag")

	rec, err := memory.Load(src)
	if err != nil {
		return err
	}
	meta := api.MetadataFor(src, rec, tag)

	cfg := config.GetAPIConfig()
	client := api.New(cfg.ServerURL, cfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		return fmt.Errorf("web frontend at %s: %w", cfg.ServerURL, err)
	}

	start := time.Now()
	if err := client.Upload(ctx, src, meta); err != nil {
		return err
	}
	a.logger.Info("Recording published",
		"name", meta.Name,
		"frames", meta.Frames,
		"server", cfg.ServerURL,
		"duration", time.Since(start))
	return a.print(meta)
}

// recordingInfo summarizes a chunked recording without loading frames.
type recordingInfo struct {
	Name           string                     `json:"name"`
	StorageVersion int                        `json:"storageVersion"`
	Frames         int                        `json:"frames"`
	FramesPerChunk int                        `json:"framesPerChunk"`
	Chunks         int                        `json:"chunks"`
	Compressed     bool                       `json:"compressed"`
	Layers         []string                   `json:"layers"`
	Scenes         []string                   `json:"scenes"`
	Clients        map[uint32]core.ClientInfo `json:"clients"`
	Resources      []string                   `json:"resources"`
	Unresolved     []string                   `json:"unresolved"`
}

func (a *app) info(ctx context.Context, opts docopt.Opts) error {
	dir, _ := opts.String("<dir>")
	rec, err := chunked.Open(dir, config.GetStorageConfig().FramesPerChunk)
	if err != nil {
		return err
	}
	if err := rec.ResolveResources(ctx, chunked.DirResolver{Root: dir}); err != nil {
		a.logger.Warn("Some resources could not be resolved", "error", err)
	}
	unresolved := []string{}
	for _, p := range rec.Resources().Paths() {
		if r, ok := rec.FindResource(p); ok && r.IsStub() {
			unresolved = append(unresolved, p)
		}
	}
	gd := rec.Global()
	fpc := rec.FramesPerChunk()
	return a.print(recordingInfo{
		Name:           dir,
		StorageVersion: gd.StorageVersion,
		Frames:         rec.Size(),
		FramesPerChunk: fpc,
		Chunks:         (rec.Size() + fpc - 1) / fpc,
		Compressed:     gd.Compressed,
		Layers:         rec.Layers(),
		Scenes:         rec.Scenes(),
		Clients:        gd.ClientIDs,
		Resources:      rec.Resources().Paths(),
		Unresolved:     unresolved,
	})
}

func (a *app) frame(ctx context.Context, opts docopt.Opts) error {
	dir, _ := opts.String("<dir>")
	i, err := intArg(opts, "<index>")
	if err != nil {
		return err
	}
	s, err := a.openSession(ctx, dir)
	if err != nil {
		return err
	}
	f, err := s.Frame(ctx, i)
	if err != nil {
		return err
	}
	return a.print(f)
}

type entityRef struct {
	ID   uint64    `json:"id"`
	Name string    `json:"name,omitempty"`
	Pos  core.Vec3 `json:"position"`
}

func (a *app) within(ctx context.Context, opts docopt.Opts) error {
	dir, _ := opts.String("<dir>")
	i, err := intArg(opts, "<index>")
	if err != nil {
		return err
	}
	raw, _ := opts.String("<area>")
	area, err := geo.ParseArea(raw)
	if err != nil {
		return err
	}

	s, err := a.openSession(ctx, dir)
	if err != nil {
		return err
	}
	f, err := s.Frame(ctx, i)
	if err != nil {
		return err
	}

	refs := []entityRef{}
	for _, id := range geo.EntitiesWithin(f, area) {
		e := f.Entities[id]
		name, _ := ops.EntityName(e)
		pos, _ := ops.EntityPosition(e)
		refs = append(refs, entityRef{ID: id, Name: name, Pos: pos})
	}
	return a.print(refs)
}

func (a *app) path(ctx context.Context, opts docopt.Opts) error {
	dir, _ := opts.String("<dir>")
	id, err := intArg(opts, "<entity>")
	if err != nil {
		return err
	}
	from, err := intArg(opts, "<from>")
	if err != nil {
		return err
	}
	to, err := intArg(opts, "<to>")
	if err != nil {
		return err
	}
	if to < from {
		return fmt.Errorf("<to> %d is before <from> %d", to, from)
	}

	s, err := a.openSession(ctx, dir)
	if err != nil {
		return err
	}
	frames := make([]*core.FrameData, 0, to-from+1)
	for i := from; i <= to; i++ {
		f, err := s.Frame(ctx, i)
		if err != nil {
			return err
		}
		frames = append(frames, f)
	}

	track := geo.Track(frames, uint64(id))
	return a.print(struct {
		Entity int     `json:"entity"`
		From   int     `json:"from"`
		To     int     `json:"to"`
		Points int     `json:"points"`
		Length float64 `json:"length"`
	}{
		Entity: id,
		From:   from,
		To:     to,
		Points: track.Coordinates().Length(),
		Length: track.Length(),
	})
}

// watch steps through a frame range the way a viewer plays it back, with the
// status monitor and influx reporter attached.
func (a *app) watch(ctx context.Context, opts docopt.Opts) error {
	dir, _ := opts.String("<dir>")
	from, err := intArg(opts, "<from>")
	if err != nil {
		return err
	}
	to, err := intArg(opts, "<to>")
	if err != nil {
		return err
	}
	stepStr, _ := opts.String("--step")
	step, err := time.ParseDuration(stepStr)
	if err != nil {
		return fmt.Errorf("--step: %w", err)
	}

	s, err := a.openSession(ctx, dir)
	if err != nil {
		return err
	}

	deps := monitor.Dependencies{
		Sessions:  a.sessions,
		Logger:    a.logger,
		StatusDir: config.GetString("logsDir"),
		Interval:  config.GetMonitorConfig().Interval,
	}
	if m := a.influxManager(ctx); m != nil {
		deps.Sink = influx.NewReporter(m, s.Name(), a.zlog)
	}
	if a.otel != nil {
		deps.Metrics = a.otel
	}
	mon := monitor.NewService(deps)
	if err := mon.Start(); err != nil {
		return err
	}
	defer mon.Stop()

	for i := from; i <= to; i++ {
		if _, err := s.Frame(ctx, i); err != nil {
			return err
		}
		if step > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(step):
			}
		}
	}

	if err := mon.Tick(ctx); err != nil {
		return err
	}
	return a.print(mon.GetProgramStatus(ctx))
}

func (a *app) serve(ctx context.Context, opts docopt.Opts) error {
	dir, _ := opts.String("<dir>")
	addr, _ := opts.String("--listen")

	// validate the layout before accepting connections
	if _, err := chunked.Open(dir, config.GetStorageConfig().FramesPerChunk); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/chunks", websocket.NewServer(
		transport.FileSource{Root: dir},
		config.GetTransportConfig().Secret,
		a.logger,
	))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	a.logger.Info("Serving chunks", "addr", addr, "dir", dir)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *app) comment(ctx context.Context, opts docopt.Opts) error {
	logsDir := config.GetString("logsDir")
	if flag(opts, "backups") {
		paths, err := database.GetBackupDBPaths(logsDir)
		if err != nil {
			return fmt.Errorf("list comment backups: %w", err)
		}
		if paths == nil {
			paths = []string{}
		}
		return a.print(paths)
	}

	dbm := database.NewManager(config.GetAnnotationsConfig(), config.GetDBConfig(), a.zlog)
	if err := dbm.Connect(); err != nil {
		return err
	}
	defer func() {
		// in-memory comments are gone once the connection closes
		if dbm.ShouldSaveLocal && dbm.SqliteFilePath == "" {
			path := filepath.Join(logsDir, fmt.Sprintf("comments_%s.db", a.start.Format("20060102_150405")))
			if err := dbm.DumpMemoryToDisk(path); err != nil {
				a.logger.Error("Failed to save in-memory comments", "error", err)
			} else {
				a.logger.Info("Saved in-memory comments", "path", path)
			}
		}
		_ = dbm.Close()
	}()
	if err := dbm.Setup(annotations.Models()...); err != nil {
		return err
	}
	store := annotations.NewStore(dbm.DB, a.zlog)
	defer func() {
		if err := store.Flush(ctx); err != nil {
			a.logger.Error("Failed to flush comments", "error", err)
		}
	}()

	switch {
	case flag(opts, "add"):
		return a.addComment(ctx, store, opts)
	case flag(opts, "list"):
		name, _ := opts.String("<name>")
		from, err := intArg(opts, "--from")
		if err != nil {
			return err
		}
		to := math.MaxInt
		if s, _ := opts.String("--to"); s != "" {
			if to, err = strconv.Atoi(s); err != nil {
				return fmt.Errorf("--to: %q is not a number", s)
			}
		}
		if from < 0 || to < from {
			return fmt.Errorf("invalid frame range %d..%d", from, to)
		}
		list, err := store.List(ctx, name, uint(from), uint(to))
		if err != nil {
			return err
		}
		if list == nil {
			list = []annotations.Comment{}
		}
		return a.print(list)
	case flag(opts, "delete"):
		id, _ := opts.String("<id>")
		ok, err := store.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("comment %s not found", id)
		}
		a.logger.Info("Comment deleted", "id", id)
		return nil
	}
	return fmt.Errorf("no comment command given")
}

func (a *app) addComment(ctx context.Context, store *annotations.Store, opts docopt.Opts) error {
	dir, _ := opts.String("<dir>")
	frame, err := intArg(opts, "<frame>")
	if err != nil {
		return err
	}
	if frame < 0 {
		return fmt.Errorf("<frame> must not be negative")
	}
	text, _ := opts.String("<text>")
	author, _ := opts.String("--author")

	s, err := a.openSession(ctx, dir)
	if err != nil {
		return err
	}
	if frame >= s.Recording().Size() {
		return fmt.Errorf("frame %d is past the end of %s (%d frames)", frame, s.Name(), s.Recording().Size())
	}

	c := annotations.Comment{
		Recording: s.Name(),
		Frame:     uint(frame),
		Author:    author,
		Text:      text,
	}
	if raw, _ := opts.String("--entity"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("--entity: %q is not a number", raw)
		}
		// merged ids are handed out while frames are built
		f, err := s.Frame(ctx, frame)
		if err != nil {
			return err
		}
		e, ok := f.Entities[id]
		if !ok {
			return fmt.Errorf("%w: %d not in frame %d", annotations.ErrUnknownEntity, id, frame)
		}
		if err := c.Attach(s.Recording().EntityIDs(), id); err != nil {
			return err
		}
		name, _ := ops.EntityName(e)
		c.Metadata = annotations.MetadataMap(map[string]any{"entityName": name})
	}

	added, err := store.Add(ctx, c)
	if err != nil {
		return err
	}
	if err := store.Flush(ctx); err != nil {
		return err
	}
	return a.print(added)
}
