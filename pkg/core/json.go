// pkg/core/json.go
package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownPropertyType is returned when decoding a property whose
// discriminator is not one of the known property types.
var ErrUnknownPropertyType = errors.New("unknown property type")

type wireProperty struct {
	Type    PropertyType    `json:"type"`
	Name    string          `json:"name,omitempty"`
	ID      uint32          `json:"id,omitempty"`
	Flags   PropertyFlags   `json:"flags,omitempty"`
	Value   json.RawMessage `json:"value"`
	Layer   string          `json:"layer,omitempty"`
	Color   *Color          `json:"color,omitempty"`
	Texture string          `json:"texture,omitempty"`
}

// setStyle and setTexture are promoted to every shape pointer so decoding can
// fill the attributes that live next to the value on the wire.
func (s *ShapeStyle) setStyle(st ShapeStyle) { *s = st }
func (t *TextureRef) setTexture(p string)    { t.Texture = p }

// MarshalJSON writes the property in its on-disk form. A property without a
// value is written as an empty group.
func (p Property) MarshalJSON() ([]byte, error) {
	v := p.Value
	if v == nil {
		v = Group{}
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s property %q: %w", v.Type(), p.Name, err)
	}

	w := wireProperty{
		Type:  v.Type(),
		Name:  p.Name,
		ID:    p.ID,
		Flags: p.Flags,
		Value: raw,
	}
	if s, ok := v.(Shape); ok {
		st := s.Style()
		w.Layer = st.Layer
		w.Color = &st.Color
	}
	if t, ok := v.(Textured); ok {
		w.Texture = t.TexturePath()
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a property and validates its discriminator.
func (p *Property) UnmarshalJSON(data []byte) error {
	var w wireProperty
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	v, err := decodeValue(w)
	if err != nil {
		return fmt.Errorf("property %q: %w", w.Name, err)
	}

	*p = Property{Name: w.Name, ID: w.ID, Flags: w.Flags, Value: v}
	return nil
}

func decodeValue(w wireProperty) (Value, error) {
	switch w.Type {
	case TypeGroup:
		var g Group
		if err := unmarshalValue(w.Value, &g); err != nil {
			return nil, err
		}
		if g == nil {
			g = Group{}
		}
		return g, nil
	case TypeNumber:
		var n Number
		err := unmarshalValue(w.Value, &n)
		return n, err
	case TypeString:
		var s String
		err := unmarshalValue(w.Value, &s)
		return s, err
	case TypeBoolean:
		var b Boolean
		err := unmarshalValue(w.Value, &b)
		return b, err
	case TypeVec2:
		var v Vec2
		err := unmarshalValue(w.Value, &v)
		return v, err
	case TypeVec3:
		var v Vec3
		err := unmarshalValue(w.Value, &v)
		return v, err
	case TypeQuat:
		var q Quat
		err := unmarshalValue(w.Value, &q)
		return q, err
	case TypeColor:
		var c Color
		err := unmarshalValue(w.Value, &c)
		return c, err
	case TypeEntityRef:
		var r EntityRef
		err := unmarshalValue(w.Value, &r)
		return r, err
	case TypeCustom:
		c := Custom{}
		err := unmarshalValue(w.Value, &c)
		return c, err
	}

	v := newValue(w.Type)
	if v == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPropertyType, w.Type)
	}
	if err := unmarshalValue(w.Value, v); err != nil {
		return nil, err
	}

	st := ShapeStyle{Layer: w.Layer}
	if w.Color != nil {
		st.Color = *w.Color
	}
	v.(interface{ setStyle(ShapeStyle) }).setStyle(st)
	if t, ok := v.(interface{ setTexture(string) }); ok {
		t.setTexture(w.Texture)
	}
	return v, nil
}

func unmarshalValue(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
