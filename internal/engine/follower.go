package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/udisondev/autopilot/internal/model"
)

// FollowerConfig tunes the path follower.
type FollowerConfig struct {
	// StepInterval is the pause between iterations.
	StepInterval time.Duration
	// RetryInterval is the pause while the local agent is absent.
	RetryInterval time.Duration
	// ReachRadius is the planar distance at which a waypoint counts as reached.
	ReachRadius float64
}

// DefaultFollowerConfig returns FollowerConfig with sensible defaults.
func DefaultFollowerConfig() FollowerConfig {
	return FollowerConfig{
		StepInterval:  300 * time.Millisecond,
		RetryInterval: 100 * time.Millisecond,
		ReachRadius:   3.0,
	}
}

// Follower walks a waypoint sequence forever, wrapping from the last waypoint to the
// first. It is level-triggered: the move towards the current waypoint is re-requested
// every iteration until the waypoint is reached, so lost move commands do not matter.
type Follower struct {
	agents AgentSource
	moves  MoveRequester
	cfg    FollowerConfig
	lc     lifecycle

	mu    sync.Mutex
	path  []model.Vector3
	index int
	laps  int
}

var _ Engine = (*Follower)(nil)

// NewFollower creates an idle follower.
func NewFollower(agents AgentSource, moves MoveRequester, cfg FollowerConfig) *Follower {
	return &Follower{
		agents: agents,
		moves:  moves,
		cfg:    cfg,
	}
}

// Kind implements Engine.
func (f *Follower) Kind() Kind {
	return KindFollow
}

// State implements Engine.
func (f *Follower) State() State {
	return f.lc.State()
}

// Start begins following a copy of p from its first waypoint. No-op while running.
// An empty path starts a worker that stops immediately.
func (f *Follower) Start(p model.Path) error {
	return f.lc.start(func() {
		f.mu.Lock()
		f.path = slices.Clone(p.Points)
		f.index, f.laps = 0, 0
		f.mu.Unlock()
	}, f.run)
}

// Stop implements Engine.
func (f *Follower) Stop() {
	f.lc.stop(nil)
}

// Progress returns the index of the current target waypoint and completed laps.
func (f *Follower) Progress() (index, laps int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index, f.laps
}

func (f *Follower) run(ctx context.Context) {
	f.mu.Lock()
	waypoints := len(f.path)
	f.mu.Unlock()

	slog.Info("path follower started", "waypoints", waypoints)
	defer slog.Info("path follower stopped")

	for ctx.Err() == nil {
		delay, ok := f.step()
		if !ok {
			return
		}
		if !sleep(ctx, delay) {
			return
		}
	}
}

// step runs one iteration and returns how long to wait before the next one.
// Returns false when the path is empty, which ends the run.
func (f *Follower) step() (time.Duration, bool) {
	f.mu.Lock()
	if len(f.path) == 0 {
		f.mu.Unlock()
		slog.Warn("path follower has no waypoints, stopping")
		return 0, false
	}

	agent, ok := f.agents.LocalAgent()
	if !ok {
		f.mu.Unlock()
		slog.Debug("path follower waiting for local agent")
		return f.cfg.RetryInterval, true
	}

	target := f.path[f.index]
	if reached(agent.Position, target, f.cfg.ReachRadius) {
		f.advance()
		f.mu.Unlock()
		return f.cfg.StepInterval, true
	}
	f.mu.Unlock()

	f.moves.RequestMove(target, agent.Position)
	return f.cfg.StepInterval, true
}

// advance moves to the next waypoint, wrapping to 0 past the end. Caller holds f.mu.
func (f *Follower) advance() {
	f.index++
	if f.index >= len(f.path) {
		f.index = 0
		f.laps++
		slog.Info("path end reached, wrapping to first waypoint", "laps", f.laps)
	}
}

// reached reports whether pos is within radius of target in the (x, y) plane.
// The boundary is inclusive: distance² == radius² counts as reached.
func reached(pos, target model.Vector3, radius float64) bool {
	return pos.PlanarDistanceSquared(target) <= radius*radius
}
