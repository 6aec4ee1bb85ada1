package api

import (
	"time"

	"github.com/udisondev/autopilot/internal/archive"
	"github.com/udisondev/autopilot/internal/mailbox"
	"github.com/udisondev/autopilot/internal/model"
	"github.com/udisondev/autopilot/internal/orchestrator"
)

type vectorDTO struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func toVector(v model.Vector3) vectorDTO {
	return vectorDTO{X: v.X, Y: v.Y, Z: v.Z}
}

type entityDTO struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Position  vectorDTO `json:"position"`
	Facing    float32   `json:"facing"`
	Health    int32     `json:"health"`
	MaxHealth int32     `json:"max_health"`
	Flags     uint32    `json:"flags"`
	Refreshed time.Time `json:"refreshed"`
}

func toEntity(s model.EntitySnapshot) entityDTO {
	return entityDTO{
		ID:        s.ID.String(),
		Kind:      s.Kind.String(),
		Name:      s.Name,
		Position:  toVector(s.Position),
		Facing:    s.Facing,
		Health:    s.Health,
		MaxHealth: s.MaxHealth,
		Flags:     s.Flags,
		Refreshed: s.LastRefreshed,
	}
}

func toEntities(in []model.EntitySnapshot) []entityDTO {
	out := make([]entityDTO, 0, len(in))
	for _, s := range in {
		out = append(out, toEntity(s))
	}
	return out
}

type pendingDTO struct {
	Stop        bool `json:"stop"`
	Move        bool `json:"move"`
	Face        bool `json:"face"`
	Focus       bool `json:"focus"`
	Interact    bool `json:"interact"`
	Casts       int  `json:"casts"`
	Sells       int  `json:"sells"`
	CloseDialog bool `json:"close_dialog"`
	Script      bool `json:"script"`
}

func toPending(p mailbox.Pending) pendingDTO {
	return pendingDTO(p)
}

// statusDTO is sent by GET /status and pushed over the websocket.
type statusDTO struct {
	Engine      string     `json:"engine"`
	EngineState string     `json:"engine_state"`
	PathKind    string     `json:"path_kind"`
	PathName    string     `json:"path_name,omitempty"`
	PathLen     int        `json:"path_len"`
	VendorName  string     `json:"vendor_name,omitempty"`
	Waypoint    int        `json:"waypoint"`
	Laps        int        `json:"laps"`
	Recorded    int        `json:"recorded"`
	Entities    int        `json:"entities"`
	LocalAgent  *entityDTO `json:"local_agent,omitempty"`
	Pending     pendingDTO `json:"pending"`
}

func toStatus(s orchestrator.Status) statusDTO {
	out := statusDTO{
		Engine:      s.EngineKind.String(),
		EngineState: s.EngineState.String(),
		PathKind:    s.PathKind.String(),
		PathName:    s.PathName,
		PathLen:     s.PathLen,
		VendorName:  s.VendorName,
		Waypoint:    s.Waypoint,
		Laps:        s.Laps,
		Recorded:    s.Recorded,
		Entities:    s.Entities,
		Pending:     toPending(s.Pending),
	}
	if s.LocalAgent != nil {
		e := toEntity(*s.LocalAgent)
		out.LocalAgent = &e
	}
	return out
}

type pathDTO struct {
	Kind       string      `json:"kind"`
	Name       string      `json:"name,omitempty"`
	VendorName string      `json:"vendor_name,omitempty"`
	Points     []vectorDTO `json:"points"`
}

func toPath(p model.Path, name string) pathDTO {
	out := pathDTO{
		Kind:       p.Kind.String(),
		Name:       name,
		VendorName: p.VendorName,
		Points:     make([]vectorDTO, 0, len(p.Points)),
	}
	for _, pt := range p.Points {
		out.Points = append(out.Points, toVector(pt))
	}
	return out
}

type revisionDTO struct {
	archive.Revision
	Kind string `json:"kind"`
}

func toRevisions(in []archive.Revision) []revisionDTO {
	out := make([]revisionDTO, 0, len(in))
	for _, r := range in {
		out = append(out, revisionDTO{Revision: r, Kind: r.Kind.String()})
	}
	return out
}

// Request bodies.

type kindRequest struct {
	Kind string `json:"kind"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type startRequest struct {
	// Recording only; zero keeps the configured interval.
	IntervalMS int    `json:"interval_ms,omitempty"`
	VendorName string `json:"vendor_name,omitempty"`
}

type entityRequest struct {
	ID string `json:"id"`
}

type castRequest struct {
	Ability uint32 `json:"ability"`
	Target  string `json:"target"`
}

type sellRequest struct {
	Container int `json:"container"`
	Slot      int `json:"slot"`
}

type scriptRequest struct {
	Text string `json:"text"`
}
