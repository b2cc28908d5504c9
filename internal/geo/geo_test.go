package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/inspector/internal/testutil"
	"github.com/OCAP2/inspector/pkg/core"
)

func TestParseVec3(t *testing.T) {
	tests := []struct {
		in      string
		want    core.Vec3
		wantErr bool
	}{
		{in: "100.5,200.25,50", want: core.Vec3{X: 100.5, Y: 200.25, Z: 50}},
		{in: "1, 2", want: core.Vec3{X: 1, Y: 2}},
		{in: "1", wantErr: true},
		{in: "1,2,3,4", wantErr: true},
		{in: "a,2", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVec3(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCoordinates)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPointOf_ProjectsToGround(t *testing.T) {
	e := testutil.NewEntity(1, 0, "unit", core.Vec3{X: 3, Y: 7, Z: -4})
	p, ok := PointOf(e)
	require.True(t, ok)

	c, ok := p.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 3.0, c.X)
	assert.Equal(t, -4.0, c.Y)
	assert.Equal(t, 7.0, c.Z)

	_, ok = PointOf(&core.Entity{ID: 2})
	assert.False(t, ok)
}

func TestFrameEnvelope(t *testing.T) {
	f := testutil.NewFrame(1, 0,
		testutil.NewEntity(1, 0, "a", core.Vec3{X: -10, Z: 5}),
		testutil.NewEntity(2, 0, "b", core.Vec3{X: 20, Y: 100, Z: -5}),
		&core.Entity{ID: 3},
	)
	env := FrameEnvelope(f)
	require.False(t, env.IsEmpty())

	lo, hi, ok := env.MinMaxXYs()
	require.True(t, ok)
	assert.Equal(t, -10.0, lo.X)
	assert.Equal(t, -5.0, lo.Y)
	assert.Equal(t, 20.0, hi.X)
	assert.Equal(t, 5.0, hi.Y)

	assert.True(t, FrameEnvelope(core.EmptyFrame()).IsEmpty())
}

func TestEntitiesWithin(t *testing.T) {
	area, err := ParseArea("[[0,0],[10,0],[10,10],[0,10]]")
	require.NoError(t, err)

	f := testutil.NewFrame(1, 0,
		testutil.NewEntity(4, 0, "inside", core.Vec3{X: 5, Y: 300, Z: 5}),
		testutil.NewEntity(2, 0, "edge", core.Vec3{X: 10, Z: 3}),
		testutil.NewEntity(3, 0, "outside", core.Vec3{X: 11, Z: 5}),
		&core.Entity{ID: 1},
	)
	assert.Equal(t, []uint64{2, 4}, EntitiesWithin(f, area))
}
