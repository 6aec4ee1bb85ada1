// Package oracle describes the boundary to the external world data source.
//
// The oracle is untrusted and may be transiently inconsistent: every read can fail,
// and callers in this module treat a failed read as "absent" rather than fatal.
// Implementations live outside the core; internal/oracle/sim provides an in-memory one.
package oracle

import "github.com/udisondev/autopilot/internal/model"

// Probe reads fields of one entity. A Probe is only valid for the duration of the
// call that produced it (an enumeration callback or a ProbeByID result used right away).
type Probe interface {
	RawKind() (uint32, error)
	Position() (model.Vector3, error)
	Facing() (float32, error)
	Health() (current, maximum int32, err error)
	Flags() (uint32, error)
	Name() (string, error)
}

// Oracle enumerates and resolves entities. Privileged-context only.
type Oracle interface {
	// EnumerateEntities calls fn once per live entity. Returning false from fn
	// stops the enumeration early.
	EnumerateEntities(fn func(id model.EntityID, p Probe) bool) error

	// LocalAgentID returns the id of the controlled avatar, 0 when not in world.
	LocalAgentID() (model.EntityID, error)

	// ProbeByID resolves a single entity directly.
	ProbeByID(id model.EntityID) (Probe, bool)
}

// Actions are the effectful primitives. Only the privileged tick calls them.
type Actions interface {
	Move(target, origin model.Vector3) bool
	StopMovement()
	FaceEntity(id model.EntityID)
	SetTarget(id model.EntityID) bool
	Interact(id model.EntityID)
	CastAbility(abilityID uint32, target model.EntityID) bool
	SellItem(container, slot int) bool
	CloseDialog()
	RunScript(text string) error
}
