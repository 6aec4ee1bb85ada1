// Package cache holds the local model of oracle entities.
//
// Refresh and RefreshLocalAgent belong to the privileged tick and are never called
// concurrently with each other. Every other method is read-only, safe from any
// goroutine, and returns copies.
package cache

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/udisondev/autopilot/internal/model"
	"github.com/udisondev/autopilot/internal/oracle"
)

// LocalAgentKind is the kind the local agent must resolve to.
const LocalAgentKind = model.KindPlayer

// Cache maps EntityID to the latest EntitySnapshot and tracks the local agent.
// A single RWMutex guards the map, its iteration order and the local agent together.
type Cache struct {
	oracle oracle.Oracle
	now    func() time.Time

	mu         sync.RWMutex
	entries    map[model.EntityID]model.EntitySnapshot
	order      []model.EntityID // enumeration order of the last Refresh
	localAgent model.EntitySnapshot
	hasAgent   bool
}

// New creates an empty cache reading from o.
func New(o oracle.Oracle) *Cache {
	return &Cache{
		oracle:  o,
		now:     time.Now,
		entries: make(map[model.EntityID]model.EntitySnapshot),
	}
}

// Refresh replaces the whole entity map with a fresh enumeration.
// Privileged-context only.
//
// The new map is built without holding the lock and swapped in one critical section,
// so readers see either the previous or the new contents. When enumeration fails the
// cache becomes empty and the error is returned for reporting only; the next tick heals it.
func (c *Cache) Refresh() (int, error) {
	entries, order, err := c.collect()
	if err != nil {
		entries = make(map[model.EntityID]model.EntitySnapshot)
		order = nil
	}

	c.mu.Lock()
	c.entries = entries
	c.order = order
	c.mu.Unlock()

	if err != nil {
		slog.Debug("entity enumeration failed, cache cleared", "error", err)
		return 0, err
	}
	return len(order), nil
}

func (c *Cache) collect() (entries map[model.EntityID]model.EntitySnapshot, order []model.EntityID, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("enumeration panicked: %v", r)
		}
	}()

	now := c.now()
	entries = make(map[model.EntityID]model.EntitySnapshot)
	skipped := 0

	err = c.oracle.EnumerateEntities(func(id model.EntityID, p oracle.Probe) bool {
		if id.IsZero() || p == nil {
			skipped++
			return true
		}
		snap, ok := buildSnapshot(id, p, now)
		if !ok {
			skipped++
			return true
		}
		if _, dup := entries[id]; !dup {
			order = append(order, id)
		}
		entries[id] = snap
		return true
	})
	if err != nil {
		return nil, nil, fmt.Errorf("enumerating entities: %w", err)
	}

	if skipped > 0 {
		slog.Debug("entities skipped during refresh", "skipped", skipped, "kept", len(order))
	}
	return entries, order, nil
}

// buildSnapshot reads one entity through its probe. A failed kind or position read
// discards the entity; other failed reads fall back to zero values.
func buildSnapshot(id model.EntityID, p oracle.Probe, now time.Time) (snap model.EntitySnapshot, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			snap, ok = model.EntitySnapshot{}, false
		}
	}()

	raw, err := p.RawKind()
	if err != nil {
		return model.EntitySnapshot{}, false
	}
	kind, valid := model.KindFromRaw(raw)
	if !valid {
		return model.EntitySnapshot{}, false
	}
	pos, err := p.Position()
	if err != nil {
		return model.EntitySnapshot{}, false
	}

	snap = model.EntitySnapshot{
		ID:            id,
		Kind:          kind,
		Position:      pos,
		LastRefreshed: now,
	}
	if f, err := p.Facing(); err == nil {
		snap.Facing = f
	}
	if kind == model.KindUnit || kind == model.KindPlayer {
		if cur, maxHP, err := p.Health(); err == nil {
			snap.Health, snap.MaxHealth = cur, maxHP
		}
	}
	if fl, err := p.Flags(); err == nil {
		snap.Flags = fl
	}
	if name, err := p.Name(); err == nil {
		snap.Name = name
	}
	return snap, true
}

// RefreshLocalAgent resolves the local agent. Privileged-context only.
//
// The agent id is looked up in the current map first; if the last enumeration missed
// it, the entity is probed directly and the resulting snapshot is inserted into the map.
// Returns false when there is no agent in the world.
func (c *Cache) RefreshLocalAgent() bool {
	id, err := c.localAgentID()
	if err != nil || id.IsZero() {
		if err != nil {
			slog.Debug("local agent id unavailable", "error", err)
		}
		c.clearAgent()
		return false
	}

	c.mu.RLock()
	snap, found := c.entries[id]
	c.mu.RUnlock()

	if found {
		// Снимок уже в карте: его вид в пределах поколения не меняется
		if snap.Kind != LocalAgentKind {
			c.clearAgent()
			return false
		}
		c.mu.Lock()
		c.localAgent, c.hasAgent = snap, true
		c.mu.Unlock()
		return true
	}

	snap, ok := c.probe(id)
	if !ok || snap.Kind != LocalAgentKind {
		c.clearAgent()
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, exists := c.entries[id]; exists {
		if existing.Kind != LocalAgentKind {
			c.localAgent, c.hasAgent = model.EntitySnapshot{}, false
			return false
		}
		snap = existing
	} else {
		c.entries[id] = snap
		c.order = append(c.order, id)
	}
	c.localAgent, c.hasAgent = snap, true

	slog.Debug("local agent resolved by direct probe", "id", id)
	return true
}

func (c *Cache) localAgentID() (id model.EntityID, err error) {
	defer func() {
		if r := recover(); r != nil {
			id, err = 0, fmt.Errorf("local agent id panicked: %v", r)
		}
	}()
	return c.oracle.LocalAgentID()
}

func (c *Cache) probe(id model.EntityID) (snap model.EntitySnapshot, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			snap, ok = model.EntitySnapshot{}, false
		}
	}()

	p, found := c.oracle.ProbeByID(id)
	if !found || p == nil {
		return model.EntitySnapshot{}, false
	}
	return buildSnapshot(id, p, c.now())
}

func (c *Cache) clearAgent() {
	c.mu.Lock()
	c.localAgent, c.hasAgent = model.EntitySnapshot{}, false
	c.mu.Unlock()
}

// LocalAgent returns the value computed by the last RefreshLocalAgent.
func (c *Cache) LocalAgent() (model.EntitySnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localAgent, c.hasAgent
}

// Get returns a copy of the snapshot for id.
func (c *Cache) Get(id model.EntityID) (model.EntitySnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.entries[id]
	return snap, ok
}

// Len returns number of cached entities.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// All returns every cached snapshot in enumeration order.
func (c *Cache) All() []model.EntitySnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.EntitySnapshot, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out
}

// GetByKind returns snapshots of the given kind in enumeration order.
func (c *Cache) GetByKind(kind model.EntityKind) []model.EntitySnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []model.EntitySnapshot
	for _, id := range c.order {
		if snap := c.entries[id]; snap.Kind == kind {
			out = append(out, snap)
		}
	}
	return out
}

// FindByNamePrefix returns snapshots whose name starts with prefix.
func (c *Cache) FindByNamePrefix(prefix string, caseInsensitive bool) []model.EntitySnapshot {
	if caseInsensitive {
		prefix = strings.ToLower(prefix)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []model.EntitySnapshot
	for _, id := range c.order {
		snap := c.entries[id]
		name := snap.Name
		if caseInsensitive {
			name = strings.ToLower(name)
		}
		if strings.HasPrefix(name, prefix) {
			out = append(out, snap)
		}
	}
	return out
}

// Nearest returns the closest entity of kind to the origin entity, excluding the
// origin itself. maxDistance <= 0 means unbounded; the bound is inclusive.
// Ties go to the entity enumerated first.
func (c *Cache) Nearest(kind model.EntityKind, originID model.EntityID, maxDistance float64) (model.EntitySnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	origin, ok := c.entries[originID]
	if !ok {
		if !c.hasAgent || c.localAgent.ID != originID {
			return model.EntitySnapshot{}, false
		}
		origin = c.localAgent
	}

	limit := maxDistance * maxDistance
	var (
		best     model.EntitySnapshot
		bestDist float64
		found    bool
	)
	for _, id := range c.order {
		if id == originID {
			continue
		}
		snap := c.entries[id]
		if snap.Kind != kind {
			continue
		}
		d := origin.Position.DistanceSquared(snap.Position)
		if maxDistance > 0 && d > limit {
			continue
		}
		if !found || d < bestDist {
			best, bestDist, found = snap, d, true
		}
	}
	return best, found
}
