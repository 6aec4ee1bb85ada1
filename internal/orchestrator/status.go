package orchestrator

import (
	"github.com/udisondev/autopilot/internal/engine"
	"github.com/udisondev/autopilot/internal/mailbox"
	"github.com/udisondev/autopilot/internal/model"
)

// Status is a point-in-time view of the orchestrator.
type Status struct {
	EngineKind  engine.Kind
	EngineState engine.State

	PathKind   model.PathKind
	PathName   string
	PathLen    int
	VendorName string

	// Follower progress
	Waypoint int
	Laps     int

	// Recorder buffer size
	Recorded int

	Entities   int
	LocalAgent *model.EntitySnapshot
	Pending    mailbox.Pending
}

// Status returns the current state. Safe from any goroutine and never waits for an
// engine to join.
func (o *Orchestrator) Status() Status {
	o.stateMu.RLock()
	ek, pk := o.engineKind, o.pathKind
	o.stateMu.RUnlock()

	p, name := o.store.Current(pk)
	s := Status{
		EngineKind:  ek,
		EngineState: o.engineFor(ek).State(),
		PathKind:    pk,
		PathName:    name,
		PathLen:     p.Len(),
		VendorName:  p.VendorName,
		Recorded:    o.recorder.Buffered(),
		Entities:    o.cache.Len(),
		Pending:     o.mailbox.Pending(),
	}
	s.Waypoint, s.Laps = o.follower.Progress()

	if agent, ok := o.cache.LocalAgent(); ok {
		s.LocalAgent = &agent
	}
	return s
}
