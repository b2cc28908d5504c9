// Package ops provides stateless traversal and lookup helpers over recorded
// frames. Nothing here returns an error: absence is a nil or false result.
package ops

import (
	"maps"
	"slices"

	"github.com/OCAP2/inspector/pkg/core"
)

// VisitResult tells a traversal whether to keep going.
type VisitResult int

const (
	Continue VisitResult = iota
	Stop
)

// PropertyVisitor is called for each visited property.
type PropertyVisitor func(p *core.Property) VisitResult

// EventVisitor is called for each visited event.
type EventVisitor func(e *core.Event) VisitResult

// VisitProperties walks props depth-first, pre-order. A group is visited
// before its children. Returning Stop aborts the whole traversal.
func VisitProperties(props core.Group, fn PropertyVisitor, recurse bool) VisitResult {
	for i := range props {
		if visitNode(&props[i], fn, recurse) == Stop {
			return Stop
		}
	}
	return Continue
}

func visitNode(p *core.Property, fn PropertyVisitor, recurse bool) VisitResult {
	if fn(p) == Stop {
		return Stop
	}
	if !recurse {
		return Continue
	}
	return VisitProperties(p.Children(), fn, recurse)
}

// VisitEvents calls fn for each event in order. Events are not recursive.
func VisitEvents(events []core.Event, fn EventVisitor) VisitResult {
	for i := range events {
		if fn(&events[i]) == Stop {
			return Stop
		}
	}
	return Continue
}

// VisitEntityProperties walks the user group subtree, then the special group
// node followed by its slots in their fixed order.
func VisitEntityProperties(e *core.Entity, fn PropertyVisitor) VisitResult {
	if visitNode(&e.Properties, fn, true) == Stop {
		return Stop
	}
	if fn(&e.Special.Node) == Stop {
		return Stop
	}
	for _, slot := range e.Special.Slots() {
		if fn(slot) == Stop {
			return Stop
		}
	}
	return Continue
}

// VisitEventProperties walks the property tree of every event.
func VisitEventProperties(events []core.Event, fn PropertyVisitor) VisitResult {
	return VisitEvents(events, func(ev *core.Event) VisitResult {
		return visitNode(&ev.Properties, fn, true)
	})
}

// FindPropertyIDInEntity returns the entity property with the given id.
func FindPropertyIDInEntity(e *core.Entity, id uint32) *core.Property {
	if e == nil || id == 0 {
		return nil
	}
	var found *core.Property
	VisitEntityProperties(e, func(p *core.Property) VisitResult {
		if p.ID == id {
			found = p
			return Stop
		}
		return Continue
	})
	return found
}

// FindPropertyIDInEvents returns the event property with the given id.
func FindPropertyIDInEvents(events []core.Event, id uint32) *core.Property {
	if id == 0 {
		return nil
	}
	var found *core.Property
	VisitEventProperties(events, func(p *core.Property) VisitResult {
		if p.ID == id {
			found = p
			return Stop
		}
		return Continue
	})
	return found
}

// EntityName reads the name slot.
func EntityName(e *core.Entity) (string, bool) {
	if e == nil {
		return "", false
	}
	s, ok := e.Special.Name.Value.(core.String)
	return string(s), ok
}

// EntityPosition reads the position slot.
func EntityPosition(e *core.Entity) (core.Vec3, bool) {
	return vecSlot(e, func(s *core.SpecialProperties) core.Value { return s.Position.Value })
}

// EntityUp reads the up slot.
func EntityUp(e *core.Entity) (core.Vec3, bool) {
	return vecSlot(e, func(s *core.SpecialProperties) core.Value { return s.Up.Value })
}

// EntityForward reads the forward slot.
func EntityForward(e *core.Entity) (core.Vec3, bool) {
	return vecSlot(e, func(s *core.SpecialProperties) core.Value { return s.Forward.Value })
}

func vecSlot(e *core.Entity, slot func(*core.SpecialProperties) core.Value) (core.Vec3, bool) {
	if e == nil {
		return core.Vec3{}, false
	}
	v, ok := slot(&e.Special).(core.Vec3)
	return v, ok
}

// SortedEntityIDs returns the frame's entity ids in ascending order.
func SortedEntityIDs(f *core.FrameData) []uint64 {
	if f == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(f.Entities))
}
