package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/udisondev/autopilot/internal/engine"
	"github.com/udisondev/autopilot/internal/mailbox"
	"github.com/udisondev/autopilot/internal/metrics"
)

// TickReport describes one privileged tick.
type TickReport struct {
	Entities   int
	RefreshErr error
	LocalAgent bool
	Dispatch   mailbox.Dispatch
	Duration   time.Duration
}

// Tick runs one privileged tick: refresh the cache, resolve the local agent, drain the
// mailbox. Ticks never overlap.
func (o *Orchestrator) Tick() TickReport {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	start := time.Now()
	var r TickReport

	r.Entities, r.RefreshErr = o.cache.Refresh()
	if r.RefreshErr != nil {
		slog.Debug("cache refresh failed", "error", r.RefreshErr)
	}
	r.LocalAgent = o.cache.RefreshLocalAgent()
	r.Dispatch = o.mailbox.DrainAndDispatch()
	r.Duration = time.Since(start)

	if o.metrics != nil {
		o.observe(r)
	}
	return r
}

func (o *Orchestrator) observe(r TickReport) {
	s := metrics.TickSample{
		Duration:      r.Duration,
		Entities:      r.Entities,
		RefreshFailed: r.RefreshErr != nil,
		LocalAgent:    r.LocalAgent,
	}
	for _, k := range r.Dispatch.Executed {
		s.Executed = append(s.Executed, k.String())
	}
	for _, k := range r.Dispatch.Failed {
		s.Failed = append(s.Failed, k.String())
	}
	o.metrics.ObserveTick(s)
	o.metrics.SetEngineRunning(engine.KindFollow.String(), o.follower.State() == engine.StateRunning)
	o.metrics.SetEngineRunning(engine.KindRecord.String(), o.recorder.State() == engine.StateRunning)
}

// RunTicker drives Tick every interval (blocks until context is canceled).
// The running engine is stopped before returning.
func (o *Orchestrator) RunTicker(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("privileged tick started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("privileged tick stopping")
			o.Stop()
			return ctx.Err()

		case <-ticker.C:
			o.Tick()
		}
	}
}
