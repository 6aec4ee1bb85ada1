// Package sim is a deterministic in-memory oracle. It backs the daemon when no
// real world is attached and is the test double for every package above the oracle.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/udisondev/autopilot/internal/model"
	"github.com/udisondev/autopilot/internal/oracle"
)

// ErrEntityGone is returned by probe reads after the entity was removed.
var ErrEntityGone = errors.New("entity gone")

// Entity is the simulated raw state of one world object.
type Entity struct {
	ID        model.EntityID
	RawKind   uint32
	Name      string
	Position  model.Vector3
	Facing    float32
	Health    int32
	MaxHealth int32
	Flags     uint32

	// FailReads makes every probe read of this entity fail.
	FailReads bool
}

// Call records one invocation of an Actions method.
type Call struct {
	Action    string
	ID        model.EntityID
	Ability   uint32
	Container int
	Slot      int
	Target    model.Vector3
	Origin    model.Vector3
	Script    string
}

// World implements oracle.Oracle and oracle.Actions over an in-memory entity table.
// Thread-safe.
type World struct {
	mu       sync.RWMutex
	entities map[model.EntityID]*Entity
	order    []model.EntityID // enumeration order
	hidden   map[model.EntityID]bool
	agentID  model.EntityID
	moveStep float32

	enumerateErr error
	scriptErr    error
	recording    bool
	calls        []Call
}

// NewWorld creates an empty world. moveStep is how far one Move call carries the
// local agent towards its target; <= 0 means Move teleports.
func NewWorld(moveStep float32) *World {
	return &World{
		entities: make(map[model.EntityID]*Entity),
		hidden:   make(map[model.EntityID]bool),
		moveStep: moveStep,
	}
}

var (
	_ oracle.Oracle  = (*World)(nil)
	_ oracle.Actions = (*World)(nil)
)

// Add inserts or replaces an entity.
func (w *World) Add(e Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.entities[e.ID]; !exists {
		w.order = append(w.order, e.ID)
	}
	cp := e
	w.entities[e.ID] = &cp
}

// Remove deletes an entity. Removing an unknown id is a no-op.
func (w *World) Remove(id model.EntityID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.entities[id]; !exists {
		return
	}
	delete(w.entities, id)
	w.order = slices.DeleteFunc(w.order, func(x model.EntityID) bool { return x == id })
}

// SetPosition moves an entity. Unknown ids are ignored.
func (w *World) SetPosition(id model.EntityID, pos model.Vector3) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e, ok := w.entities[id]; ok {
		e.Position = pos
	}
}

// Position returns the current simulated position of an entity.
func (w *World) Position(id model.EntityID) (model.Vector3, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	e, ok := w.entities[id]
	if !ok {
		return model.Vector3{}, false
	}
	return e.Position, true
}

// SetLocalAgent sets the id reported by LocalAgentID.
func (w *World) SetLocalAgent(id model.EntityID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.agentID = id
}

// SetHidden hides an entity from enumeration while keeping it resolvable by ProbeByID.
func (w *World) SetHidden(id model.EntityID, hidden bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if hidden {
		w.hidden[id] = true
	} else {
		delete(w.hidden, id)
	}
}

// SetEnumerateError makes EnumerateEntities fail with err (nil restores it).
func (w *World) SetEnumerateError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enumerateErr = err
}

// SetScriptError makes RunScript fail with err (nil restores it).
func (w *World) SetScriptError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scriptErr = err
}

// RecordCalls turns recording of action calls on or off. Off by default, so a
// long-running world does not accumulate calls.
func (w *World) RecordCalls(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recording = on
	if !on {
		w.calls = nil
	}
}

// Calls returns a copy of recorded action calls.
func (w *World) Calls() []Call {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.calls)
}

// ResetCalls clears recorded action calls.
func (w *World) ResetCalls() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = nil
}

// EnumerateEntities implements oracle.Oracle.
// The callback runs outside the world lock so probes can be read from it.
func (w *World) EnumerateEntities(fn func(id model.EntityID, p oracle.Probe) bool) error {
	w.mu.RLock()
	if err := w.enumerateErr; err != nil {
		w.mu.RUnlock()
		return err
	}
	ids := make([]model.EntityID, 0, len(w.order))
	for _, id := range w.order {
		if !w.hidden[id] {
			ids = append(ids, id)
		}
	}
	w.mu.RUnlock()

	for _, id := range ids {
		if !fn(id, &probe{w: w, id: id}) {
			break
		}
	}
	return nil
}

// LocalAgentID implements oracle.Oracle.
func (w *World) LocalAgentID() (model.EntityID, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.agentID, nil
}

// ProbeByID implements oracle.Oracle.
func (w *World) ProbeByID(id model.EntityID) (oracle.Probe, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if _, ok := w.entities[id]; !ok {
		return nil, false
	}
	return &probe{w: w, id: id}, true
}

func (w *World) record(c Call) {
	if !w.recording {
		return
	}
	w.calls = append(w.calls, c)
}

// Move implements oracle.Actions. Carries the local agent up to moveStep towards target.
func (w *World) Move(target, origin model.Vector3) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.record(Call{Action: "move", Target: target, Origin: origin})

	agent, ok := w.entities[w.agentID]
	if !ok {
		return false
	}
	agent.Position = stepTowards(agent.Position, target, w.moveStep)
	return true
}

func stepTowards(from, to model.Vector3, step float32) model.Vector3 {
	dist := math.Sqrt(from.DistanceSquared(to))
	if step <= 0 || dist <= float64(step) {
		return to
	}
	f := float32(float64(step) / dist)
	return model.Vector3{
		X: from.X + (to.X-from.X)*f,
		Y: from.Y + (to.Y-from.Y)*f,
		Z: from.Z + (to.Z-from.Z)*f,
	}
}

// StopMovement implements oracle.Actions.
func (w *World) StopMovement() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(Call{Action: "stop"})
}

// FaceEntity implements oracle.Actions.
func (w *World) FaceEntity(id model.EntityID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(Call{Action: "face", ID: id})
}

// SetTarget implements oracle.Actions. Fails for unknown ids.
func (w *World) SetTarget(id model.EntityID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.record(Call{Action: "target", ID: id})
	_, ok := w.entities[id]
	return ok
}

// Interact implements oracle.Actions.
func (w *World) Interact(id model.EntityID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(Call{Action: "interact", ID: id})
}

// CastAbility implements oracle.Actions.
func (w *World) CastAbility(abilityID uint32, target model.EntityID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(Call{Action: "cast", Ability: abilityID, ID: target})
	return true
}

// SellItem implements oracle.Actions.
func (w *World) SellItem(container, slot int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(Call{Action: "sell", Container: container, Slot: slot})
	return true
}

// CloseDialog implements oracle.Actions.
func (w *World) CloseDialog() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(Call{Action: "close_dialog"})
}

// RunScript implements oracle.Actions.
func (w *World) RunScript(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.record(Call{Action: "script", Script: text})
	if w.scriptErr != nil {
		return fmt.Errorf("running script: %w", w.scriptErr)
	}
	slog.Debug("sim script executed", "len", len(text))
	return nil
}

// probe reads one entity under the world read lock.
type probe struct {
	w  *World
	id model.EntityID
}

func (p *probe) read() (Entity, error) {
	p.w.mu.RLock()
	defer p.w.mu.RUnlock()

	e, ok := p.w.entities[p.id]
	if !ok {
		return Entity{}, ErrEntityGone
	}
	if e.FailReads {
		return Entity{}, fmt.Errorf("reading entity %s: access violation", p.id)
	}
	return *e, nil
}

func (p *probe) RawKind() (uint32, error) {
	e, err := p.read()
	return e.RawKind, err
}

func (p *probe) Position() (model.Vector3, error) {
	e, err := p.read()
	return e.Position, err
}

func (p *probe) Facing() (float32, error) {
	e, err := p.read()
	return e.Facing, err
}

func (p *probe) Health() (int32, int32, error) {
	e, err := p.read()
	return e.Health, e.MaxHealth, err
}

func (p *probe) Flags() (uint32, error) {
	e, err := p.read()
	return e.Flags, err
}

func (p *probe) Name() (string, error) {
	e, err := p.read()
	return e.Name, err
}
