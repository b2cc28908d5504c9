// Package merge builds the per-display-frame view that combines the anchor
// client's frame with the latest prior frame of every other client.
package merge

import (
	"github.com/OCAP2/inspector/internal/cache"
	"github.com/OCAP2/inspector/internal/ops"
	"github.com/OCAP2/inspector/pkg/core"
)

// Lookback is how many frame slots before the anchor are searched for
// frames of other clients.
const Lookback = 10

// FrameSource gives indexed access to stored frames.
type FrameSource interface {
	// FrameAt returns the stored frame at index i, or nil when there is none.
	FrameAt(i int) *core.FrameData
}

// Build returns the merged view for index. Entity ids are remapped through
// ids so entities of different clients never collide; property and event ids
// are assigned fresh. Stored frames are never modified.
func Build(src FrameSource, index int, ids *cache.EntityIDs) *core.FrameData {
	anchor := src.FrameAt(index)
	if anchor == nil {
		return core.EmptyFrame()
	}

	parts := []*core.FrameData{anchor}
	seen := map[uint32]bool{anchor.ClientID: true}
	for i := index - 1; i >= 0 && i >= index-Lookback; i-- {
		f := src.FrameAt(i)
		if f == nil || seen[f.ClientID] {
			continue
		}
		seen[f.ClientID] = true
		parts = append(parts, f)
	}

	merged := anchor.Header()
	for _, f := range parts {
		for _, localID := range ops.SortedEntityIDs(f) {
			e := f.Entities[localID].Clone()
			e.ID = ids.Unique(f.ClientID, localID)
			e.ParentID = ids.Unique(f.ClientID, e.ParentID)
			merged.Entities[e.ID] = e
		}
	}

	AssignIDs(merged)
	return merged
}

// AssignIDs numbers every property and event of the frame from 1, in
// ascending entity id order and depth-first within an entity. Property and
// event counters are separate. It returns the number of properties and events.
func AssignIDs(f *core.FrameData) (properties, events uint32) {
	nextProperty := func(p *core.Property) ops.VisitResult {
		properties++
		p.ID = properties
		return ops.Continue
	}

	for _, id := range ops.SortedEntityIDs(f) {
		e := f.Entities[id]
		ops.VisitEntityProperties(e, nextProperty)
		ops.VisitEvents(e.Events, func(ev *core.Event) ops.VisitResult {
			events++
			ev.ID = events
			return ops.Continue
		})
		ops.VisitEventProperties(e.Events, nextProperty)
	}
	return properties, events
}
