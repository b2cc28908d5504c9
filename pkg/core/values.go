// pkg/core/values.go
package core

// Number is a numeric property value.
type Number float64

// String is a text property value.
type String string

// Boolean is a boolean property value.
type Boolean bool

// Vec2 is a 2D vector.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vec3 is a 3D vector.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quat is a rotation quaternion.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Color is an RGBA color with components in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// EntityRef points at another entity of the same frame.
type EntityRef struct {
	ID uint64 `json:"id"`
}

// Custom is a free-form key/value payload.
type Custom map[string]any

// Group is an ordered list of child properties.
type Group []Property

func (Number) Type() PropertyType    { return TypeNumber }
func (String) Type() PropertyType    { return TypeString }
func (Boolean) Type() PropertyType   { return TypeBoolean }
func (Vec2) Type() PropertyType      { return TypeVec2 }
func (Vec3) Type() PropertyType      { return TypeVec3 }
func (Quat) Type() PropertyType      { return TypeQuat }
func (Color) Type() PropertyType     { return TypeColor }
func (EntityRef) Type() PropertyType { return TypeEntityRef }
func (Custom) Type() PropertyType    { return TypeCustom }
func (Group) Type() PropertyType     { return TypeGroup }

func (v Number) cloneValue() Value    { return v }
func (v String) cloneValue() Value    { return v }
func (v Boolean) cloneValue() Value   { return v }
func (v Vec2) cloneValue() Value      { return v }
func (v Vec3) cloneValue() Value      { return v }
func (v Quat) cloneValue() Value      { return v }
func (v Color) cloneValue() Value     { return v }
func (v EntityRef) cloneValue() Value { return v }
func (v Custom) cloneValue() Value {
	if v == nil {
		return v
	}
	return Custom(cloneJSON(map[string]any(v)).(map[string]any))
}

// cloneJSON deep copies the objects and arrays of a decoded JSON value.
// Scalars are immutable and shared.
func cloneJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneJSON(e)
		}
		return out
	case Custom:
		return t.cloneValue()
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneJSON(e)
		}
		return out
	default:
		return v
	}
}

func (g Group) cloneValue() Value {
	out := make(Group, len(g))
	for i := range g {
		out[i] = g[i].Clone()
	}
	return out
}

// ShapeStyle holds the rendering attributes shared by all shapes.
type ShapeStyle struct {
	Layer string `json:"-"`
	Color Color  `json:"-"`
}

// Style returns the shape's rendering attributes.
func (s ShapeStyle) Style() ShapeStyle { return s }

// TextureRef is the optional texture of a textured shape.
type TextureRef struct {
	Texture string `json:"-"`
}

// TexturePath returns the referenced texture path, "" when none.
func (t TextureRef) TexturePath() string { return t.Texture }

type Sphere struct {
	ShapeStyle
	TextureRef
	Position Vec3    `json:"position"`
	Radius   float64 `json:"radius"`
}

type Capsule struct {
	ShapeStyle
	TextureRef
	Position  Vec3    `json:"position"`
	Direction Vec3    `json:"direction"`
	Radius    float64 `json:"radius"`
	Height    float64 `json:"height"`
}

type AABB struct {
	ShapeStyle
	TextureRef
	Position Vec3 `json:"position"`
	Size     Vec3 `json:"size"`
}

type OOBB struct {
	ShapeStyle
	TextureRef
	Position Vec3 `json:"position"`
	Size     Vec3 `json:"size"`
	Forward  Vec3 `json:"forward"`
	Up       Vec3 `json:"up"`
}

type Plane struct {
	ShapeStyle
	TextureRef
	Position Vec3    `json:"position"`
	Normal   Vec3    `json:"normal"`
	Up       Vec3    `json:"up"`
	Width    float64 `json:"width"`
	Length   float64 `json:"length"`
}

type Line struct {
	ShapeStyle
	Origin      Vec3 `json:"origin"`
	Destination Vec3 `json:"destination"`
}

type Arrow struct {
	ShapeStyle
	Origin      Vec3 `json:"origin"`
	Destination Vec3 `json:"destination"`
}

type Vector struct {
	ShapeStyle
	Origin Vec3 `json:"origin"`
	Vector Vec3 `json:"vector"`
}

type Mesh struct {
	ShapeStyle
	TextureRef
	Vertices []float64 `json:"vertices"`
	Indices  []uint32  `json:"indices"`
}

type Path struct {
	ShapeStyle
	Points []Vec3 `json:"points"`
}

type Triangle struct {
	ShapeStyle
	TextureRef
	P1 Vec3 `json:"p1"`
	P2 Vec3 `json:"p2"`
	P3 Vec3 `json:"p3"`
}

func (*Sphere) Type() PropertyType   { return TypeSphere }
func (*Capsule) Type() PropertyType  { return TypeCapsule }
func (*AABB) Type() PropertyType     { return TypeAABB }
func (*OOBB) Type() PropertyType     { return TypeOOBB }
func (*Plane) Type() PropertyType    { return TypePlane }
func (*Line) Type() PropertyType     { return TypeLine }
func (*Arrow) Type() PropertyType    { return TypeArrow }
func (*Vector) Type() PropertyType   { return TypeVector }
func (*Mesh) Type() PropertyType     { return TypeMesh }
func (*Path) Type() PropertyType     { return TypePath }
func (*Triangle) Type() PropertyType { return TypeTriangle }

func (s *Sphere) cloneValue() Value   { c := *s; return &c }
func (s *Capsule) cloneValue() Value  { c := *s; return &c }
func (s *AABB) cloneValue() Value     { c := *s; return &c }
func (s *OOBB) cloneValue() Value     { c := *s; return &c }
func (s *Plane) cloneValue() Value    { c := *s; return &c }
func (s *Line) cloneValue() Value     { c := *s; return &c }
func (s *Arrow) cloneValue() Value    { c := *s; return &c }
func (s *Vector) cloneValue() Value   { c := *s; return &c }
func (s *Triangle) cloneValue() Value { c := *s; return &c }

func (s *Mesh) cloneValue() Value {
	c := *s
	c.Vertices = append([]float64(nil), s.Vertices...)
	c.Indices = append([]uint32(nil), s.Indices...)
	return &c
}

func (s *Path) cloneValue() Value {
	c := *s
	c.Points = append([]Vec3(nil), s.Points...)
	return &c
}

// newValue returns a zero value for the discriminator, or nil when unknown.
func newValue(t PropertyType) Value {
	switch t {
	case TypeSphere:
		return &Sphere{}
	case TypeCapsule:
		return &Capsule{}
	case TypeAABB:
		return &AABB{}
	case TypeOOBB:
		return &OOBB{}
	case TypePlane:
		return &Plane{}
	case TypeLine:
		return &Line{}
	case TypeArrow:
		return &Arrow{}
	case TypeVector:
		return &Vector{}
	case TypeMesh:
		return &Mesh{}
	case TypePath:
		return &Path{}
	case TypeTriangle:
		return &Triangle{}
	}
	return nil
}
