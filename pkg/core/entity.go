// pkg/core/entity.go
package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidSpecial is returned when an entity's special property group does
// not hold the expected name/position/up/forward slots.
var ErrInvalidSpecial = errors.New("invalid special properties")

const specialGroupName = "special"

// SpecialProperties are the well-known identity and transform slots of an
// entity. On disk they are the second top-level group, in this field order.
// Up and Forward have no value in schema version 1 data until patched.
type SpecialProperties struct {
	// Node is the enclosing group itself: its name, id and flags. The slots
	// live in the fields below, so its own group value stays empty.
	Node     Property
	Name     Property
	Position Property
	Up       Property
	Forward  Property
}

// NewSpecialProperties builds a fully populated special group.
func NewSpecialProperties(name string, position, up, forward Vec3) SpecialProperties {
	return SpecialProperties{
		Node:     NewGroup(specialGroupName),
		Name:     NewProperty("name", String(name)),
		Position: NewProperty("position", position),
		Up:       NewProperty("up", up),
		Forward:  NewProperty("forward", forward),
	}
}

// HasOrientation reports whether both Up and Forward are present.
func (s *SpecialProperties) HasOrientation() bool {
	return s.Up.Value != nil && s.Forward.Value != nil
}

// Slots returns pointers to the special properties in on-disk order.
// Absent slots are skipped.
func (s *SpecialProperties) Slots() []*Property {
	slots := []*Property{&s.Name, &s.Position}
	if s.Up.Value != nil {
		slots = append(slots, &s.Up)
	}
	if s.Forward.Value != nil {
		slots = append(slots, &s.Forward)
	}
	return slots
}

func (s *SpecialProperties) validate() error {
	if _, ok := s.Name.Value.(String); !ok {
		return fmt.Errorf("%w: name slot holds %q", ErrInvalidSpecial, s.Name.Type())
	}
	if _, ok := s.Position.Value.(Vec3); !ok {
		return fmt.Errorf("%w: position slot holds %q", ErrInvalidSpecial, s.Position.Type())
	}
	for _, p := range []*Property{&s.Up, &s.Forward} {
		if p.Value == nil {
			continue
		}
		if _, ok := p.Value.(Vec3); !ok {
			return fmt.Errorf("%w: %s slot holds %q", ErrInvalidSpecial, p.Name, p.Type())
		}
	}
	return nil
}

// Event is a discrete occurrence attached to an entity at a frame.
type Event struct {
	Name       string   `json:"name"`
	Tag        string   `json:"tag"`
	Idx        int      `json:"idx"`
	Properties Property `json:"properties"`
	ID         uint32   `json:"id,omitempty"`
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	e.Properties = e.Properties.Clone()
	return e
}

// Entity is one object of a client's frame. ParentID 0 means no parent.
type Entity struct {
	ID         uint64
	ParentID   uint64
	Properties Property // user-defined group
	Special    SpecialProperties
	Events     []Event
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Properties = e.Properties.Clone()
	c.Special = SpecialProperties{
		Node:     e.Special.Node.Clone(),
		Name:     e.Special.Name.Clone(),
		Position: e.Special.Position.Clone(),
		Up:       e.Special.Up.Clone(),
		Forward:  e.Special.Forward.Clone(),
	}
	if e.Events != nil {
		c.Events = make([]Event, len(e.Events))
		for i := range e.Events {
			c.Events[i] = e.Events[i].Clone()
		}
	}
	return &c
}

type wireEntity struct {
	ID         uint64     `json:"id"`
	ParentID   uint64     `json:"parentId"`
	Properties []Property `json:"properties"`
	Events     []Event    `json:"events"`
}

// MarshalJSON writes the entity with its positional [user, special] groups.
func (e Entity) MarshalJSON() ([]byte, error) {
	slots := make(Group, 0, 4)
	for _, p := range e.Special.Slots() {
		slots = append(slots, *p)
	}
	node := e.Special.Node
	if node.Value == nil && node.Name == "" {
		node.Name = specialGroupName
	}
	node.Value = slots

	user := e.Properties
	if user.Value == nil {
		user.Value = Group{}
	}

	events := e.Events
	if events == nil {
		events = []Event{}
	}

	return json.Marshal(wireEntity{
		ID:         e.ID,
		ParentID:   e.ParentID,
		Properties: []Property{user, node},
		Events:     events,
	})
}

// UnmarshalJSON decodes an entity and validates the special group.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var w wireEntity
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Properties) < 2 {
		return fmt.Errorf("entity %d: %w: expected 2 property groups, got %d", w.ID, ErrInvalidSpecial, len(w.Properties))
	}
	if !w.Properties[0].IsGroup() || !w.Properties[1].IsGroup() {
		return fmt.Errorf("entity %d: %w: top-level properties must be groups", w.ID, ErrInvalidSpecial)
	}

	slots := w.Properties[1].Children()
	if len(slots) < 2 {
		return fmt.Errorf("entity %d: %w: expected at least name and position", w.ID, ErrInvalidSpecial)
	}

	node := w.Properties[1]
	node.Value = Group{}
	special := SpecialProperties{Node: node}
	special.Name = slots[0]
	special.Position = slots[1]
	if len(slots) > 2 {
		special.Up = slots[2]
	}
	if len(slots) > 3 {
		special.Forward = slots[3]
	}
	if err := special.validate(); err != nil {
		return fmt.Errorf("entity %d: %w", w.ID, err)
	}

	*e = Entity{
		ID:         w.ID,
		ParentID:   w.ParentID,
		Properties: w.Properties[0],
		Special:    special,
		Events:     w.Events,
	}
	return nil
}
