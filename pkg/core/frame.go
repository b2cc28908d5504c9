// pkg/core/frame.go
package core

// CoordSystem is the handedness of a recording's coordinate system.
type CoordSystem int

const (
	RightHand CoordSystem = iota
	LeftHand
)

// Up returns the default up vector for the coordinate system.
func (c CoordSystem) Up() Vec3 {
	return Vec3{X: 0, Y: 1, Z: 0}
}

// Forward returns the default forward vector for the coordinate system.
func (c CoordSystem) Forward() Vec3 {
	if c == LeftHand {
		return Vec3{X: 0, Y: 0, Z: 1}
	}
	return Vec3{X: 0, Y: 0, Z: -1}
}

func (c CoordSystem) String() string {
	if c == LeftHand {
		return "left-hand"
	}
	return "right-hand"
}

// FrameData is one snapshot of all entities from one client.
type FrameData struct {
	Entities    map[uint64]*Entity `json:"entities"`
	ServerTime  float64            `json:"serverTime"`
	ClientID    uint32             `json:"clientId"`
	FrameID     uint64             `json:"frameId"`
	ElapsedTime float64            `json:"elapsedTime"`
	Scene       string             `json:"scene"`
	Tag         string             `json:"tag"`
	CoordSystem CoordSystem        `json:"coordSystem"`
}

// EmptyFrame returns the canonical frame used when an index has no data.
func EmptyFrame() *FrameData {
	return &FrameData{Entities: make(map[uint64]*Entity)}
}

// Header returns a copy of the frame's scalar fields with no entities.
func (f *FrameData) Header() *FrameData {
	h := *f
	h.Entities = make(map[uint64]*Entity)
	return &h
}

// Clone returns a deep copy of the frame.
func (f *FrameData) Clone() *FrameData {
	c := f.Header()
	for id, e := range f.Entities {
		c.Entities[id] = e.Clone()
	}
	return c
}

// ClientInfo describes a logical client contributing frames.
type ClientInfo struct {
	Tag string `json:"tag"`
}

// Resource is a file referenced by the recording. It stays a stub, with all
// payload fields nil, until a resolver fills it in.
type Resource struct {
	Path     string  `json:"path"`
	Data     []byte  `json:"data"`
	TextData *string `json:"textData"`
	Type     *string `json:"type"`
}

// NewResourceStub creates an unresolved resource entry.
func NewResourceStub(path string) *Resource {
	return &Resource{Path: path}
}

// IsStub reports whether the resource has not been resolved yet.
func (r *Resource) IsStub() bool {
	return r.Data == nil && r.TextData == nil && r.Type == nil
}
