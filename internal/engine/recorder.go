package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/autopilot/internal/model"
)

// RecorderConfig tunes the path recorder.
type RecorderConfig struct {
	// Interval is the default sampling interval.
	Interval time.Duration
	// MinStep is the distance a sample must move away from the previous point to be kept.
	MinStep float64
}

// DefaultRecorderConfig returns RecorderConfig with sensible defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Interval: 500 * time.Millisecond,
		MinStep:  1.0,
	}
}

// RecordOptions configures one recording session.
type RecordOptions struct {
	// Interval overrides RecorderConfig.Interval when positive.
	Interval time.Duration
	Kind     model.PathKind
	// VendorName is stored with vendor recordings.
	VendorName string
}

// Recorder samples the local agent position into a buffer and hands the buffer to a
// PathSink when stopped.
type Recorder struct {
	agents AgentSource
	sink   PathSink
	cfg    RecorderConfig
	lc     lifecycle

	mu   sync.Mutex
	opts RecordOptions
	buf  []model.Vector3
}

var _ Engine = (*Recorder)(nil)

// NewRecorder creates an idle recorder.
func NewRecorder(agents AgentSource, sink PathSink, cfg RecorderConfig) *Recorder {
	return &Recorder{
		agents: agents,
		sink:   sink,
		cfg:    cfg,
	}
}

// Kind implements Engine.
func (r *Recorder) Kind() Kind {
	return KindRecord
}

// State implements Engine.
func (r *Recorder) State() State {
	return r.lc.State()
}

// Start begins a new recording with an empty buffer. No-op while running.
func (r *Recorder) Start(opts RecordOptions) error {
	if opts.Interval <= 0 {
		opts.Interval = r.cfg.Interval
	}
	return r.lc.start(func() {
		r.mu.Lock()
		r.opts = opts
		r.buf = nil
		r.mu.Unlock()
	}, r.run)
}

// Stop joins the worker and hands the recording to the sink.
// An empty recording is discarded.
func (r *Recorder) Stop() {
	r.lc.stop(r.flush)
}

// Buffered returns number of points recorded so far.
func (r *Recorder) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Options returns the options of the current or last recording.
func (r *Recorder) Options() RecordOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opts
}

func (r *Recorder) run(ctx context.Context) {
	opts := r.Options()
	slog.Info("path recorder started", "kind", opts.Kind, "interval", opts.Interval)
	defer slog.Info("path recorder stopped")

	t := time.NewTicker(opts.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			agent, ok := r.agents.LocalAgent()
			if !ok {
				continue
			}
			r.sample(agent.Position)
		}
	}
}

// sample appends pos unless it is within MinStep of the last recorded point.
func (r *Recorder) sample(pos model.Vector3) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.buf); n > 0 && r.buf[n-1].DistanceSquared(pos) <= r.cfg.MinStep*r.cfg.MinStep {
		return false
	}
	r.buf = append(r.buf, pos)
	return true
}

func (r *Recorder) flush() {
	r.mu.Lock()
	buf, opts := r.buf, r.opts
	r.buf = nil
	r.mu.Unlock()

	if len(buf) == 0 {
		slog.Info("recording empty, discarded", "kind", opts.Kind)
		return
	}

	p := model.Path{Kind: opts.Kind, Points: buf}
	if opts.Kind == model.PathVendor {
		p.VendorName = opts.VendorName
	}
	r.sink.Replace(p)
	slog.Info("recording stored", "kind", opts.Kind, "points", len(buf))
}
