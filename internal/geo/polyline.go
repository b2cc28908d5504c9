package geo

import (
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/OCAP2/inspector/internal/ops"
	"github.com/OCAP2/inspector/pkg/core"
)

// ParseArea parses a JSON array of ground coordinates into a polygon.
// Input format: "[[x1,z1],[x2,z2],...]". The ring is closed if needed.
func ParseArea(input string) (geom.Polygon, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return geom.Polygon{}, fmt.Errorf("failed to parse area JSON: %w", err)
	}

	if len(coords) < 3 {
		return geom.Polygon{}, fmt.Errorf("area must have at least 3 points, got %d", len(coords))
	}

	flat := make([]float64, 0, (len(coords)+1)*2)
	for i, coord := range coords {
		if len(coord) < 2 {
			return geom.Polygon{}, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		flat = append(flat, coord[0], coord[1])
	}
	first, last := coords[0], coords[len(coords)-1]
	if first[0] != last[0] || first[1] != last[1] {
		flat = append(flat, first[0], first[1])
	}

	ring := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	poly := geom.NewPolygon([]geom.LineString{ring})
	if err := poly.Validate(); err != nil {
		return geom.Polygon{}, fmt.Errorf("invalid area: %w", err)
	}
	return poly, nil
}

// Track follows one entity through frames on the ground plane. Frames where
// the entity is missing or unpositioned are skipped, as are repeated
// positions.
func Track(frames []*core.FrameData, id uint64) geom.LineString {
	var flat []float64
	var prev geom.XY
	for _, f := range frames {
		if f == nil {
			continue
		}
		pos, ok := ops.EntityPosition(f.Entities[id])
		if !ok {
			continue
		}
		xy := Ground(pos)
		if len(flat) > 0 && xy == prev {
			continue
		}
		flat = append(flat, xy.X, xy.Y)
		prev = xy
	}
	if len(flat) < 4 {
		return geom.LineString{}
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
}

// PathLength is the ground distance covered by the entity across frames.
func PathLength(frames []*core.FrameData, id uint64) float64 {
	return Track(frames, id).Length()
}
