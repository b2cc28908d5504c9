// Package geo answers spatial questions about merged frames. Recordings are
// Y-up, so the ground plane is X/Z: a position maps to the planar point
// (X, Z) with Y kept as the point's elevation.
package geo

import (
	"errors"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/OCAP2/inspector/internal/ops"
	"github.com/OCAP2/inspector/pkg/core"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ParseVec3 parses "x,y" or "x,y,z". A missing z is 0.
func ParseVec3(coords string) (core.Vec3, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return core.Vec3{}, ErrInvalidCoordinates
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return core.Vec3{}, ErrInvalidCoordinates
		}
		v[i] = f
	}
	return core.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

// Ground projects a position onto the ground plane.
func Ground(v core.Vec3) geom.XY {
	return geom.XY{X: v.X, Y: v.Z}
}

// PointOf returns the entity's position as a point, or false when the
// entity has no position.
func PointOf(e *core.Entity) (geom.Point, bool) {
	pos, ok := ops.EntityPosition(e)
	if !ok {
		return geom.Point{}, false
	}
	return geom.NewPoint(geom.Coordinates{
		XY:   Ground(pos),
		Z:    pos.Y,
		Type: geom.DimXYZ,
	}), true
}

// Positions collects the points of every positioned entity in id order.
func Positions(f *core.FrameData) geom.MultiPoint {
	var pts []geom.Point
	for _, id := range ops.SortedEntityIDs(f) {
		if p, ok := PointOf(f.Entities[id]); ok {
			pts = append(pts, p)
		}
	}
	return geom.NewMultiPoint(pts)
}

// FrameEnvelope is the ground extent of the frame's positioned entities. It
// is empty when nothing in the frame has a position.
func FrameEnvelope(f *core.FrameData) geom.Envelope {
	return Positions(f).Envelope()
}

// EntitiesWithin returns the ids of entities whose ground position lies in
// or on the boundary of area, in ascending order.
func EntitiesWithin(f *core.FrameData, area geom.Polygon) []uint64 {
	if area.IsEmpty() {
		return nil
	}
	g := area.AsGeometry()
	var ids []uint64
	for _, id := range ops.SortedEntityIDs(f) {
		p, ok := PointOf(f.Entities[id])
		if !ok {
			continue
		}
		if geom.Intersects(g, p.Force2D().AsGeometry()) {
			ids = append(ids, id)
		}
	}
	return ids
}
