// pkg/core/property.go
package core

// PropertyType is the wire discriminator of a property value.
type PropertyType string

const (
	TypeGroup     PropertyType = "group"
	TypeNumber    PropertyType = "number"
	TypeString    PropertyType = "string"
	TypeBoolean   PropertyType = "boolean"
	TypeVec2      PropertyType = "vec2"
	TypeVec3      PropertyType = "vec3"
	TypeQuat      PropertyType = "quat"
	TypeColor     PropertyType = "color"
	TypeEntityRef PropertyType = "entityref"
	TypeCustom    PropertyType = "custom"

	TypeSphere   PropertyType = "sphere"
	TypeCapsule  PropertyType = "capsule"
	TypeAABB     PropertyType = "aabb"
	TypeOOBB     PropertyType = "oobb"
	TypePlane    PropertyType = "plane"
	TypeLine     PropertyType = "line"
	TypeArrow    PropertyType = "arrow"
	TypeVector   PropertyType = "vector"
	TypeMesh     PropertyType = "mesh"
	TypePath     PropertyType = "path"
	TypeTriangle PropertyType = "triangle"
)

// PropertyFlags is a bit set of presentation hints carried by a property.
type PropertyFlags uint8

const (
	FlagHidden PropertyFlags = 1 << iota
	FlagCollapsed
)

// Has reports whether all bits of f are set.
func (p PropertyFlags) Has(f PropertyFlags) bool {
	return p&f == f
}

// Value is the closed set of property payloads. Only types in this package
// implement it.
type Value interface {
	Type() PropertyType
	cloneValue() Value
}

// Shape is a value drawn in the viewport. Every shape has a layer and a color.
type Shape interface {
	Value
	Style() ShapeStyle
}

// Textured is a shape that may reference a texture resource.
type Textured interface {
	Shape
	TexturePath() string
}

// Property is a named value node. Ids are assigned per merged frame view and
// are zero in stored frames.
type Property struct {
	Name  string
	ID    uint32
	Flags PropertyFlags
	Value Value
}

// Type returns the discriminator of the property value, or "" when unset.
func (p *Property) Type() PropertyType {
	if p == nil || p.Value == nil {
		return ""
	}
	return p.Value.Type()
}

// Children returns the children of a group property. The returned slice
// aliases the property, so callers may modify entries in place.
func (p *Property) Children() Group {
	if p == nil {
		return nil
	}
	g, _ := p.Value.(Group)
	return g
}

// IsGroup reports whether the property is a group.
func (p *Property) IsGroup() bool {
	_, ok := p.Value.(Group)
	return ok
}

// Clone returns a deep copy of the property.
func (p Property) Clone() Property {
	if p.Value != nil {
		p.Value = p.Value.cloneValue()
	}
	return p
}

// NewGroup builds a group property.
func NewGroup(name string, children ...Property) Property {
	g := make(Group, len(children))
	copy(g, children)
	return Property{Name: name, Value: g}
}

// NewProperty builds a property with the given name and value.
func NewProperty(name string, v Value) Property {
	return Property{Name: name, Value: v}
}
