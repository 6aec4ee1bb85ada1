// Package engine contains the automation engines: background workers that read the
// entity cache and write movement requests or recorded paths.
package engine

import (
	"errors"

	"github.com/udisondev/autopilot/internal/model"
)

// ErrStopping is returned by Start while a previous Stop is still joining the worker.
var ErrStopping = errors.New("engine is stopping")

// Kind identifies an engine role.
type Kind int32

const (
	KindFollow Kind = iota
	KindRecord
)

// String returns human-readable engine kind name
func (k Kind) String() string {
	switch k {
	case KindFollow:
		return "follow"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "follow":
		return KindFollow, true
	case "record":
		return KindRecord, true
	default:
		return KindFollow, false
	}
}

// State is the lifecycle state of an engine.
type State int32

const (
	// StateIdle - no worker goroutine exists
	StateIdle State = iota
	// StateRunning - exactly one worker goroutine is executing the run-loop
	StateRunning
	// StateStopRequested - cancellation was signalled, Stop is joining the worker
	StateStopRequested
)

// String returns human-readable state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopRequested:
		return "STOP_REQUESTED"
	default:
		return "UNKNOWN"
	}
}

// Engine is the part of an automation engine the orchestrator supervises.
// Starting is engine specific (see Follower.Start and Recorder.Start).
type Engine interface {
	// Kind returns the engine role
	Kind() Kind

	// State returns current lifecycle state
	State() State

	// Stop cancels the worker and blocks until it has exited. No-op when idle.
	Stop()
}

// AgentSource provides the local agent snapshot.
type AgentSource interface {
	LocalAgent() (model.EntitySnapshot, bool)
}

// MoveRequester accepts movement requests for the privileged tick.
type MoveRequester interface {
	RequestMove(target, origin model.Vector3)
}

// PathSink receives a finished recording.
type PathSink interface {
	Replace(p model.Path)
}
