// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/OCAP2/inspector/pkg/core"
)

// ErrUnsupportedVersion is returned when a recording's schema version has no
// migration path to the current version.
var ErrUnsupportedVersion = errors.New("unsupported storage version")

// Recording is the read contract shared by the in-memory and chunked stores.
type Recording interface {
	// BuildFrameData returns the merged view of frame i, or core.EmptyFrame()
	// when i has no data.
	BuildFrameData(i int) *core.FrameData

	// Size returns the number of frame slots.
	Size() int

	TagByClientID(clientID uint32) (string, bool)
	FindResource(path string) (*core.Resource, bool)
	Layers() []string
	Scenes() []string
}

// Resolver fills in the payload of a resource stub.
type Resolver interface {
	Resolve(ctx context.Context, path string) (*core.Resource, error)
}

// UnsupportedVersion builds the error for a version outside [oldest, current].
func UnsupportedVersion(version, current int) error {
	return fmt.Errorf("%w: %d (current is %d)", ErrUnsupportedVersion, version, current)
}

// PatchFrameOrientation fills in missing up/forward slots of every entity of
// the frame from the frame's coordinate system. This is the version 1 to 2
// migration shared by both stores.
func PatchFrameOrientation(f *core.FrameData) {
	for _, e := range f.Entities {
		if e.Special.Up.Value == nil {
			e.Special.Up = core.NewProperty("up", f.CoordSystem.Up())
		}
		if e.Special.Forward.Value == nil {
			e.Special.Forward = core.NewProperty("forward", f.CoordSystem.Forward())
		}
	}
}
