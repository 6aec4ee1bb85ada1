// Package orchestrator wires the entity cache, the action mailbox, the path store and
// the automation engines together, supervises at most one running engine and drives
// the privileged tick.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/autopilot/internal/archive"
	"github.com/udisondev/autopilot/internal/cache"
	"github.com/udisondev/autopilot/internal/engine"
	"github.com/udisondev/autopilot/internal/mailbox"
	"github.com/udisondev/autopilot/internal/metrics"
	"github.com/udisondev/autopilot/internal/model"
	"github.com/udisondev/autopilot/internal/oracle"
	"github.com/udisondev/autopilot/internal/pathstore"
)

// ErrNoArchive is returned by revision operations when no archive is configured.
var ErrNoArchive = errors.New("path archive is not configured")

// Deps are the collaborators of an Orchestrator. Archive and Metrics are optional.
type Deps struct {
	Oracle  oracle.Oracle
	Actions oracle.Actions
	Store   *pathstore.Store
	Archive *archive.Archive
	Metrics *metrics.Metrics

	Follower engine.FollowerConfig
	Recorder engine.RecorderConfig
}

// Orchestrator owns one cache, one mailbox and one path store and supervises the
// follower and recorder engines.
type Orchestrator struct {
	cache   *cache.Cache
	mailbox *mailbox.Mailbox
	store   *pathstore.Store
	archive *archive.Archive
	metrics *metrics.Metrics

	follower *engine.Follower
	recorder *engine.Recorder

	// ctlMu serializes control operations; it is held while an engine is joined.
	ctlMu sync.Mutex

	// stateMu guards the selection below and is never held across a join.
	stateMu    sync.RWMutex
	engineKind engine.Kind
	pathKind   model.PathKind
	recordOpts engine.RecordOptions

	tickMu sync.Mutex
}

// New creates an orchestrator with the follower selected and the grind path kind.
func New(d Deps) *Orchestrator {
	c := cache.New(d.Oracle)
	mb := mailbox.New(d.Actions)

	return &Orchestrator{
		cache:    c,
		mailbox:  mb,
		store:    d.Store,
		archive:  d.Archive,
		metrics:  d.Metrics,
		follower: engine.NewFollower(c, mb, d.Follower),
		recorder: engine.NewRecorder(c, d.Store, d.Recorder),
		pathKind: model.PathGrind,
	}
}

// Cache returns the entity cache.
func (o *Orchestrator) Cache() *cache.Cache {
	return o.cache
}

// Mailbox returns the action mailbox.
func (o *Orchestrator) Mailbox() *mailbox.Mailbox {
	return o.mailbox
}

// Store returns the path store.
func (o *Orchestrator) Store() *pathstore.Store {
	return o.store
}

// EngineKind returns the selected engine.
func (o *Orchestrator) EngineKind() engine.Kind {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.engineKind
}

// PathKind returns the selected path kind.
func (o *Orchestrator) PathKind() model.PathKind {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.pathKind
}

func (o *Orchestrator) engineFor(k engine.Kind) engine.Engine {
	if k == engine.KindRecord {
		return o.recorder
	}
	return o.follower
}

// SetEngineKind selects the engine used by Start. A running engine of another kind
// is stopped first.
func (o *Orchestrator) SetEngineKind(k engine.Kind) {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()

	if o.EngineKind() == k {
		return
	}
	o.stopLocked()

	o.stateMu.Lock()
	o.engineKind = k
	o.stateMu.Unlock()
	slog.Info("engine kind selected", "engine", k)
}

// SetPathKind selects the path kind all path operations and engines use.
// A running engine is stopped first.
func (o *Orchestrator) SetPathKind(k model.PathKind) {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()

	if o.PathKind() == k {
		return
	}
	o.stopLocked()

	o.stateMu.Lock()
	o.pathKind = k
	o.stateMu.Unlock()
	slog.Info("path kind selected", "kind", k)
}

// SetRecordOptions configures the next recording. Zero interval uses the recorder default.
// An empty vendorName keeps the name set earlier by SetVendorName.
func (o *Orchestrator) SetRecordOptions(interval time.Duration, vendorName string) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	o.recordOpts.Interval = interval
	if vendorName != "" {
		o.recordOpts.VendorName = vendorName
	}
}

// Start starts the selected engine against the selected path kind.
// Starting a running engine is a no-op.
func (o *Orchestrator) Start() error {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()

	o.stateMu.RLock()
	ek, pk, opts := o.engineKind, o.pathKind, o.recordOpts
	o.stateMu.RUnlock()

	var err error
	switch ek {
	case engine.KindRecord:
		opts.Kind = pk
		err = o.recorder.Start(opts)
	default:
		p, _ := o.store.Current(pk)
		err = o.follower.Start(p)
	}
	if err != nil {
		return fmt.Errorf("starting %s engine: %w", ek, err)
	}
	return nil
}

// Stop stops the running engine and waits for its worker to exit.
// A stopped follower also requests the agent to stop moving.
func (o *Orchestrator) Stop() {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()
	o.stopLocked()
}

func (o *Orchestrator) stopLocked() {
	if o.follower.State() != engine.StateIdle {
		o.follower.Stop()
		o.mailbox.RequestStopMovement()
	}
	o.recorder.Stop()
}

// Running reports whether any engine has a live worker.
func (o *Orchestrator) Running() bool {
	return o.follower.State() != engine.StateIdle || o.recorder.State() != engine.StateIdle
}

// LoadPath stops the engine and loads name into the current path kind.
func (o *Orchestrator) LoadPath(name string) error {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()

	o.stopLocked()
	_, err := o.store.Load(name, o.PathKind())
	return err
}

// SavePath writes the current path under name and archives a revision when an
// archive is configured. Archive failures are logged, the file is authoritative.
func (o *Orchestrator) SavePath(ctx context.Context, name string) error {
	kind := o.PathKind()
	if err := o.store.Save(name, kind); err != nil {
		return err
	}
	if o.archive == nil {
		return nil
	}

	p, _ := o.store.Current(kind)
	if p.Len() == 0 {
		return nil
	}
	rev, created, err := o.archive.Put(ctx, name, p)
	if err != nil {
		slog.Warn("archiving path failed", "name", name, "kind", kind, "error", err)
		return nil
	}
	if created {
		slog.Info("path revision stored", "name", name, "kind", kind, "revision", rev.Number)
	}
	return nil
}

// ListPaths returns saved path names of the current path kind.
func (o *Orchestrator) ListPaths() ([]string, error) {
	return o.store.List(o.PathKind())
}

// ClearPath stops the engine and empties the current path.
func (o *Orchestrator) ClearPath() {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()

	o.stopLocked()
	o.store.Clear(o.PathKind())
}

// CurrentPath returns a copy of the current path and its saved name.
func (o *Orchestrator) CurrentPath() (model.Path, string) {
	return o.store.Current(o.PathKind())
}

// SetVendorName sets the display name of the in-memory vendor path and of the
// next vendor recording.
func (o *Orchestrator) SetVendorName(name string) {
	o.store.SetVendorName(name)

	o.stateMu.Lock()
	o.recordOpts.VendorName = name
	o.stateMu.Unlock()
}

// Revisions lists archived revisions of name for the current path kind.
func (o *Orchestrator) Revisions(ctx context.Context, name string) ([]archive.Revision, error) {
	if o.archive == nil {
		return nil, ErrNoArchive
	}
	return o.archive.Revisions(ctx, o.PathKind(), name)
}

// RestoreRevision stops the engine and makes an archived revision the in-memory path
// of its kind. The restored path is unsaved until SavePath.
func (o *Orchestrator) RestoreRevision(ctx context.Context, id string) (archive.Revision, error) {
	if o.archive == nil {
		return archive.Revision{}, ErrNoArchive
	}

	rev, p, err := o.archive.Get(ctx, id)
	if err != nil {
		return archive.Revision{}, err
	}

	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()

	o.stopLocked()
	o.store.Replace(p)
	slog.Info("path revision restored", "name", rev.Name, "kind", rev.Kind, "revision", rev.Number)
	return rev, nil
}

// RequestSetFocus forwards to the mailbox.
func (o *Orchestrator) RequestSetFocus(id model.EntityID) {
	o.mailbox.RequestSetFocus(id)
}

// RequestInteract forwards to the mailbox.
func (o *Orchestrator) RequestInteract(id model.EntityID) {
	o.mailbox.RequestInteract(id)
}

// RequestCastAbility forwards to the mailbox.
func (o *Orchestrator) RequestCastAbility(abilityID uint32, target model.EntityID) {
	o.mailbox.RequestCastAbility(abilityID, target)
}

// RequestSellItem forwards to the mailbox.
func (o *Orchestrator) RequestSellItem(container, slot int) error {
	return o.mailbox.RequestSellItem(container, slot)
}

// RequestCloseDialog forwards to the mailbox.
func (o *Orchestrator) RequestCloseDialog() {
	o.mailbox.RequestCloseDialog()
}

// RequestRunScript forwards to the mailbox.
func (o *Orchestrator) RequestRunScript(text string) error {
	return o.mailbox.RequestRunScript(text)
}

// RequestFaceEntity forwards to the mailbox.
func (o *Orchestrator) RequestFaceEntity(id model.EntityID) {
	o.mailbox.RequestFaceEntity(id)
}
