package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/autopilot/internal/model"
	"github.com/udisondev/autopilot/internal/oracle"
)

func TestWorld_EnumerateOrderAndHidden(t *testing.T) {
	w := NewWorld(0)
	w.Add(Entity{ID: 3, RawKind: 3})
	w.Add(Entity{ID: 1, RawKind: 4})
	w.Add(Entity{ID: 2, RawKind: 5})
	w.SetHidden(1, true)

	var seen []model.EntityID
	err := w.EnumerateEntities(func(id model.EntityID, _ oracle.Probe) bool {
		seen = append(seen, id)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []model.EntityID{3, 2}, seen)

	// Скрытая сущность всё ещё доступна напрямую
	p, ok := w.ProbeByID(1)
	require.True(t, ok)
	raw, err := p.RawKind()
	require.NoError(t, err)
	assert.Equal(t, uint32(4), raw)
}

func TestWorld_EnumerateError(t *testing.T) {
	w := NewWorld(0)
	w.Add(Entity{ID: 1})
	w.SetEnumerateError(errors.New("boom"))

	called := false
	err := w.EnumerateEntities(func(model.EntityID, oracle.Probe) bool {
		called = true
		return true
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestWorld_ProbeAfterRemove(t *testing.T) {
	w := NewWorld(0)
	w.Add(Entity{ID: 7, Name: "Wolf"})

	p, ok := w.ProbeByID(7)
	require.True(t, ok)
	w.Remove(7)

	_, err := p.Name()
	assert.ErrorIs(t, err, ErrEntityGone)

	_, ok = w.ProbeByID(7)
	assert.False(t, ok)
}

func TestWorld_FailReads(t *testing.T) {
	w := NewWorld(0)
	w.Add(Entity{ID: 7, FailReads: true})

	p, ok := w.ProbeByID(7)
	require.True(t, ok)
	_, err := p.Position()
	assert.Error(t, err)
}

func TestWorld_MoveSteps(t *testing.T) {
	w := NewWorld(5)
	w.RecordCalls(true)
	w.Add(Entity{ID: 1, RawKind: 4})
	w.SetLocalAgent(1)

	target := model.NewVector3(10, 0, 0)
	require.True(t, w.Move(target, model.Vector3{}))

	pos, ok := w.Position(1)
	require.True(t, ok)
	assert.InDelta(t, 5.0, pos.X, 1e-5)

	w.Move(target, pos)
	pos, _ = w.Position(1)
	assert.Equal(t, target, pos)

	calls := w.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "move", calls[0].Action)
}

func TestWorld_MoveWithoutAgent(t *testing.T) {
	w := NewWorld(5)
	assert.False(t, w.Move(model.NewVector3(1, 1, 1), model.Vector3{}))
}

func TestWorld_CallsNotRecordedByDefault(t *testing.T) {
	w := NewWorld(5)
	w.Add(Entity{ID: 1, RawKind: 4})
	w.SetLocalAgent(1)

	for range 100 {
		w.Move(model.NewVector3(10, 0, 0), model.Vector3{})
		w.StopMovement()
	}
	assert.Empty(t, w.Calls())

	w.RecordCalls(true)
	w.StopMovement()
	assert.Len(t, w.Calls(), 1)

	// Выключение сбрасывает накопленное
	w.RecordCalls(false)
	w.StopMovement()
	assert.Empty(t, w.Calls())
}
