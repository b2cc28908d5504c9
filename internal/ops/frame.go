package ops

import "github.com/OCAP2/inspector/pkg/core"

// VisitFrameProperties walks the properties of every entity, entity
// properties first and event properties second, in ascending entity id order.
func VisitFrameProperties(f *core.FrameData, fn PropertyVisitor) VisitResult {
	for _, id := range SortedEntityIDs(f) {
		e := f.Entities[id]
		if VisitEntityProperties(e, fn) == Stop {
			return Stop
		}
		if VisitEventProperties(e.Events, fn) == Stop {
			return Stop
		}
	}
	return Continue
}

// FrameLayers calls fn with the layer of every shape in the frame.
func FrameLayers(f *core.FrameData, fn func(layer string)) {
	VisitFrameProperties(f, func(p *core.Property) VisitResult {
		if s, ok := p.Value.(core.Shape); ok {
			fn(s.Style().Layer)
		}
		return Continue
	})
}

// FrameTextures calls fn with every non-empty texture path referenced by a
// textured shape in the frame.
func FrameTextures(f *core.FrameData, fn func(path string)) {
	VisitFrameProperties(f, func(p *core.Property) VisitResult {
		if t, ok := p.Value.(core.Textured); ok && t.TexturePath() != "" {
			fn(t.TexturePath())
		}
		return Continue
	})
}
