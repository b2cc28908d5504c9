// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"github.com/OCAP2/inspector/pkg/core"
)

// NewEntity builds an entity with a user group holding one number property
// and a fully populated special group.
func NewEntity(id, parentID uint64, name string, pos core.Vec3) *core.Entity {
	return &core.Entity{
		ID:       id,
		ParentID: parentID,
		Properties: core.NewGroup("",
			core.NewProperty("health", core.Number(100)),
		),
		Special: core.NewSpecialProperties(name, pos, core.Vec3{Y: 1}, core.Vec3{Z: -1}),
	}
}

// NewFrame builds a frame for a client at the given server time.
func NewFrame(clientID uint32, serverTime float64, entities ...*core.Entity) *core.FrameData {
	f := core.EmptyFrame()
	f.ClientID = clientID
	f.ServerTime = serverTime
	f.FrameID = uint64(serverTime)
	f.ElapsedTime = serverTime / 60
	f.Scene = "main"
	f.Tag = "client"
	for _, e := range entities {
		f.Entities[e.ID] = e
	}
	return f
}

// WithEvent attaches an event with one string property to the entity.
func WithEvent(e *core.Entity, name string) *core.Entity {
	e.Events = append(e.Events, core.Event{
		Name: name,
		Tag:  "gameplay",
		Idx:  len(e.Events),
		Properties: core.NewGroup("",
			core.NewProperty("detail", core.String(name)),
		),
	})
	return e
}

// Frames builds n single-entity frames for one client with server times
// 0..n-1, entity position x equal to the frame index.
func Frames(clientID uint32, n int) []*core.FrameData {
	out := make([]*core.FrameData, n)
	for i := range out {
		e := NewEntity(1, 0, "unit", core.Vec3{X: float64(i)})
		out[i] = NewFrame(clientID, float64(i), e)
	}
	return out
}
