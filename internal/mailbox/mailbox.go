// Package mailbox buffers action requests between worker goroutines and the
// privileged tick.
//
// Request* methods may be called from any goroutine. DrainAndDispatch is called once
// per tick by the privileged context, which is the only place actions are executed.
package mailbox

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/udisondev/autopilot/internal/model"
	"github.com/udisondev/autopilot/internal/oracle"
)

// MaxContainerIndex is the highest valid container (bag) index for SellItem.
const MaxContainerIndex = 4

var (
	// ErrScriptPending is returned when a script request is already waiting for dispatch.
	ErrScriptPending = errors.New("script request already pending")
	// ErrInvalidSlot is returned for out-of-range container or slot indexes.
	ErrInvalidSlot = errors.New("invalid container or slot index")
)

// Move asks the agent to walk from Origin towards Target.
type Move struct {
	Target model.Vector3
	Origin model.Vector3
}

// Cast asks to cast an ability on a target.
type Cast struct {
	AbilityID uint32
	Target    model.EntityID
}

// Sell asks to sell the item in a container slot.
type Sell struct {
	Container int
	Slot      int
}

// slot is a latest-wins single value.
type slot[T any] struct {
	value   T
	pending bool
}

func (s *slot[T]) set(v T) {
	s.value, s.pending = v, true
}

func (s *slot[T]) take() (T, bool) {
	v, ok := s.value, s.pending
	var zero T
	s.value, s.pending = zero, false
	return v, ok
}

func (s *slot[T]) clear() {
	var zero T
	s.value, s.pending = zero, false
}

// Mailbox holds pending action requests. One mutex guards every slot and queue.
type Mailbox struct {
	actions oracle.Actions

	mu          sync.Mutex
	stop        bool
	move        slot[Move]
	face        slot[model.EntityID]
	focus       slot[model.EntityID]
	interact    slot[model.EntityID]
	casts       []Cast
	sells       []Sell
	closeDialog bool
	script      slot[string]
}

// New creates an empty mailbox that dispatches to actions.
func New(actions oracle.Actions) *Mailbox {
	return &Mailbox{actions: actions}
}

// RequestMove replaces any pending move and cancels a pending stop.
func (m *Mailbox) RequestMove(target, origin model.Vector3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stop = false
	m.move.set(Move{Target: target, Origin: origin})
}

// RequestStopMovement replaces any pending move with a stop.
func (m *Mailbox) RequestStopMovement() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.move.clear()
	m.stop = true
}

// RequestFaceEntity is latest-wins.
func (m *Mailbox) RequestFaceEntity(id model.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.face.set(id)
}

// RequestSetFocus is latest-wins.
func (m *Mailbox) RequestSetFocus(id model.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.focus.set(id)
}

// RequestInteract is latest-wins.
func (m *Mailbox) RequestInteract(id model.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interact.set(id)
}

// RequestCastAbility appends to the cast queue.
func (m *Mailbox) RequestCastAbility(abilityID uint32, target model.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.casts = append(m.casts, Cast{AbilityID: abilityID, Target: target})
}

// RequestSellItem appends to the sell queue. Invalid indexes are dropped and never queued.
func (m *Mailbox) RequestSellItem(container, slotIndex int) error {
	if container < 0 || container > MaxContainerIndex || slotIndex < 0 {
		slog.Warn("sell request dropped", "container", container, "slot", slotIndex)
		return fmt.Errorf("sell container=%d slot=%d: %w", container, slotIndex, ErrInvalidSlot)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sells = append(m.sells, Sell{Container: container, Slot: slotIndex})
	return nil
}

// RequestCloseDialog sets the close-dialog flag.
func (m *Mailbox) RequestCloseDialog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeDialog = true
}

// RequestRunScript stores a script unless one is already pending.
func (m *Mailbox) RequestRunScript(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.script.pending {
		slog.Warn("script request rejected, previous one not dispatched yet")
		return ErrScriptPending
	}
	m.script.set(text)
	return nil
}

// Pending summarizes what is waiting for dispatch.
type Pending struct {
	Stop        bool
	Move        bool
	Face        bool
	Focus       bool
	Interact    bool
	Casts       int
	Sells       int
	CloseDialog bool
	Script      bool
}

// Pending returns the current pending counts.
func (m *Mailbox) Pending() Pending {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Pending{
		Stop:        m.stop,
		Move:        m.move.pending,
		Face:        m.face.pending,
		Focus:       m.focus.pending,
		Interact:    m.interact.pending,
		Casts:       len(m.casts),
		Sells:       len(m.sells),
		CloseDialog: m.closeDialog,
		Script:      m.script.pending,
	}
}

// batch is what one drain takes out of the mailbox.
type batch struct {
	stop        bool
	move        Move
	hasMove     bool
	face        model.EntityID
	hasFace     bool
	focus       model.EntityID
	hasFocus    bool
	interact    model.EntityID
	hasInteract bool
	cast        Cast
	hasCast     bool
	sell        Sell
	hasSell     bool
	closeDialog bool
	script      string
	hasScript   bool
}

func (m *Mailbox) take() batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b batch
	b.stop, m.stop = m.stop, false
	b.move, b.hasMove = m.move.take()
	b.face, b.hasFace = m.face.take()
	b.focus, b.hasFocus = m.focus.take()
	b.interact, b.hasInteract = m.interact.take()

	// One element per queue per tick: a sell can shift the slots of the next one.
	if len(m.casts) > 0 {
		b.cast, b.hasCast = m.casts[0], true
		m.casts = m.casts[1:]
		if len(m.casts) == 0 {
			m.casts = nil
		}
	}
	if len(m.sells) > 0 {
		b.sell, b.hasSell = m.sells[0], true
		m.sells = m.sells[1:]
		if len(m.sells) == 0 {
			m.sells = nil
		}
	}

	b.closeDialog, m.closeDialog = m.closeDialog, false
	b.script, b.hasScript = m.script.take()
	return b
}

// DrainAndDispatch takes everything due this tick under the lock, then executes it
// outside the lock in a fixed order: stop, move, face, target, interact, cast, sell,
// close dialog, script. Privileged-context only.
func (m *Mailbox) DrainAndDispatch() Dispatch {
	b := m.take()

	var d Dispatch
	if b.stop {
		d.run(KindStop, func() bool { m.actions.StopMovement(); return true })
	}
	if b.hasMove {
		d.run(KindMove, func() bool { return m.actions.Move(b.move.Target, b.move.Origin) })
	}
	if b.hasFace {
		d.run(KindFace, func() bool { m.actions.FaceEntity(b.face); return true })
	}
	if b.hasFocus {
		d.run(KindTarget, func() bool { return m.actions.SetTarget(b.focus) })
	}
	if b.hasInteract {
		d.run(KindInteract, func() bool { m.actions.Interact(b.interact); return true })
	}
	if b.hasCast {
		d.run(KindCast, func() bool { return m.actions.CastAbility(b.cast.AbilityID, b.cast.Target) })
	}
	if b.hasSell {
		d.run(KindSell, func() bool { return m.actions.SellItem(b.sell.Container, b.sell.Slot) })
	}
	if b.closeDialog {
		d.run(KindCloseDialog, func() bool { m.actions.CloseDialog(); return true })
	}
	if b.hasScript {
		d.run(KindRunScript, func() bool {
			if err := m.actions.RunScript(b.script); err != nil {
				slog.Warn("script dispatch failed", "error", err)
				return false
			}
			return true
		})
	}
	return d
}
