package influx

import (
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/OCAP2/inspector/internal/loader"
	"github.com/OCAP2/inspector/internal/session"
)

// Measurement names written by Reporter.
const (
	MeasurementChunkLoaded  = "chunk_loaded"
	MeasurementChunkEvicted = "chunk_evicted"
	MeasurementSession      = "session_status"
)

// Reporter turns loader events and session snapshots into points.
type Reporter struct {
	m         *Manager
	recording string
	logger    zerolog.Logger
	now       func() time.Time
}

var _ loader.Observer = (*Reporter)(nil)

// NewReporter creates a reporter tagging every point with recording.
func NewReporter(m *Manager, recording string, logger zerolog.Logger) *Reporter {
	return &Reporter{m: m, recording: recording, logger: logger, now: time.Now}
}

func (r *Reporter) ChunkLoaded(c loader.Chunk, payloadBytes int, elapsed time.Duration) {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementChunkLoaded).
		AddTag("recording", r.recording).
		AddTag("path", c.Path).
		AddField("init", c.Init).
		AddField("frames", c.Frames).
		AddField("bytes", payloadBytes).
		AddField("elapsed_ms", float64(elapsed.Microseconds())/1000).
		SetTime(r.now())
	r.write(p)
}

func (r *Reporter) ChunkEvicted(c loader.Chunk) {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementChunkEvicted).
		AddTag("recording", r.recording).
		AddTag("path", c.Path).
		AddField("init", c.Init).
		AddField("frames", c.Frames).
		SetTime(r.now())
	r.write(p)
}

// SessionStatus records a session snapshot.
func (r *Reporter) SessionStatus(st session.Status) {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementSession).
		AddTag("recording", st.Name).
		AddField("frames", st.Frames).
		AddField("current", st.Current).
		AddField("resident", st.Resident).
		AddField("loading", len(st.Loading)).
		SetTime(r.now())
	r.write(p)
}

func (r *Reporter) write(p *influxdb2_write.Point) {
	if err := r.m.WritePoint(p); err != nil {
		r.logger.Warn().Err(err).Str("measurement", p.Name()).Msg("Failed to write point")
	}
}
