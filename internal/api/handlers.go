package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/udisondev/autopilot/internal/archive"
	"github.com/udisondev/autopilot/internal/engine"
	"github.com/udisondev/autopilot/internal/mailbox"
	"github.com/udisondev/autopilot/internal/model"
	"github.com/udisondev/autopilot/internal/orchestrator"
	"github.com/udisondev/autopilot/internal/pathstore"
)

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toStatus(s.orch.Status()))
}

func (s *Server) handleEngineStart(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > 0 {
		var req startRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.IntervalMS < 0 {
			writeBadRequest(w, "interval_ms must not be negative")
			return
		}
		s.orch.SetRecordOptions(time.Duration(req.IntervalMS)*time.Millisecond, req.VendorName)
	}

	if err := s.orch.Start(); err != nil {
		if errors.Is(err, engine.ErrStopping) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toStatus(s.orch.Status()))
}

func (s *Server) handleEngineStop(w http.ResponseWriter, _ *http.Request) {
	s.orch.Stop()
	writeJSON(w, http.StatusOK, toStatus(s.orch.Status()))
}

func (s *Server) handleEngineKind(w http.ResponseWriter, r *http.Request) {
	var req kindRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	k, ok := engine.ParseKind(req.Kind)
	if !ok {
		writeBadRequest(w, "unknown engine kind: "+req.Kind)
		return
	}
	s.orch.SetEngineKind(k)
	writeJSON(w, http.StatusOK, toStatus(s.orch.Status()))
}

func (s *Server) handlePathKind(w http.ResponseWriter, r *http.Request) {
	var req kindRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	k, ok := model.ParsePathKind(req.Kind)
	if !ok {
		writeBadRequest(w, "unknown path kind: "+req.Kind)
		return
	}
	s.orch.SetPathKind(k)
	writeJSON(w, http.StatusOK, toStatus(s.orch.Status()))
}

func (s *Server) handleGetPath(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toPath(s.orch.CurrentPath()))
}

func (s *Server) handleClearPath(w http.ResponseWriter, _ *http.Request) {
	s.orch.ClearPath()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVendorName(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.orch.SetVendorName(req.Name)
	writeJSON(w, http.StatusOK, toPath(s.orch.CurrentPath()))
}

func (s *Server) handleListPaths(w http.ResponseWriter, _ *http.Request) {
	names, err := s.orch.ListPaths()
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":  s.orch.PathKind().String(),
		"names": names,
	})
}

func (s *Server) handleLoadPath(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.LoadPath(chi.URLParam(r, "name")); err != nil {
		writePathError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPath(s.orch.CurrentPath()))
}

func (s *Server) handleSavePath(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.SavePath(r.Context(), chi.URLParam(r, "name")); err != nil {
		writePathError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPath(s.orch.CurrentPath()))
}

// writePathError maps path store and archive errors to HTTP statuses.
func writePathError(w http.ResponseWriter, err error) {
	var perr *pathstore.ParseError
	switch {
	case errors.Is(err, pathstore.ErrNotFound), errors.Is(err, archive.ErrNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, orchestrator.ErrNoArchive):
		writeNotFound(w, err.Error())
	case errors.Is(err, pathstore.ErrInvalidName):
		writeBadRequest(w, err.Error())
	case errors.Is(err, pathstore.ErrEmptyPath):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.As(err, &perr):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeInvalid, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

func (s *Server) handleRevisions(w http.ResponseWriter, r *http.Request) {
	revs, err := s.orch.Revisions(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writePathError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRevisions(revs))
}

func (s *Server) handleRestoreRevision(w http.ResponseWriter, r *http.Request) {
	rev, err := s.orch.RestoreRevision(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writePathError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRevisions([]archive.Revision{rev})[0])
}

// handleEntities lists cached entities, optionally filtered by kind and name prefix
// (case-insensitive).
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	c := s.orch.Cache()
	q := r.URL.Query()

	var kind model.EntityKind
	filterKind := q.Get("kind") != ""
	if filterKind {
		k, ok := model.ParseEntityKind(q.Get("kind"))
		if !ok {
			writeBadRequest(w, "unknown entity kind: "+q.Get("kind"))
			return
		}
		kind = k
	}

	var snaps []model.EntitySnapshot
	switch prefix := q.Get("prefix"); {
	case prefix != "":
		snaps = c.FindByNamePrefix(prefix, true)
	case filterKind:
		snaps = c.GetByKind(kind)
	default:
		snaps = c.All()
	}

	if filterKind && q.Get("prefix") != "" {
		filtered := snaps[:0]
		for _, sn := range snaps {
			if sn.Kind == kind {
				filtered = append(filtered, sn)
			}
		}
		snaps = filtered
	}
	writeJSON(w, http.StatusOK, toEntities(snaps))
}

// handleNearest returns the entity of ?kind= nearest to the local agent, optionally
// within ?max= distance.
func (s *Server) handleNearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	kind, ok := model.ParseEntityKind(q.Get("kind"))
	if !ok {
		writeBadRequest(w, "unknown entity kind: "+q.Get("kind"))
		return
	}
	var maxDistance float64
	if v := q.Get("max"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeBadRequest(w, "invalid max distance: "+v)
			return
		}
		maxDistance = d
	}

	agent, ok := s.orch.Cache().LocalAgent()
	if !ok {
		writeNotFound(w, "local agent not present")
		return
	}
	snap, found := s.orch.Cache().Nearest(kind, agent.ID, maxDistance)
	if !found {
		writeNotFound(w, "no "+kind.String()+" in range")
		return
	}
	writeJSON(w, http.StatusOK, toEntity(snap))
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid entity id")
		return
	}
	snap, ok := s.orch.Cache().Get(id)
	if !ok {
		writeNotFound(w, "entity "+id.String()+" not cached")
		return
	}
	writeJSON(w, http.StatusOK, toEntity(snap))
}

func parseEntityField(w http.ResponseWriter, raw string) (model.EntityID, bool) {
	id, err := model.ParseEntityID(strings.TrimSpace(raw))
	if err != nil || id.IsZero() {
		writeBadRequest(w, "invalid entity id: "+raw)
		return 0, false
	}
	return id, true
}

func accepted(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, ok := parseEntityField(w, req.ID)
	if !ok {
		return
	}
	s.orch.RequestSetFocus(id)
	accepted(w)
}

func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, ok := parseEntityField(w, req.ID)
	if !ok {
		return
	}
	s.orch.RequestInteract(id)
	accepted(w)
}

func (s *Server) handleFace(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, ok := parseEntityField(w, req.ID)
	if !ok {
		return
	}
	s.orch.RequestFaceEntity(id)
	accepted(w)
}

func (s *Server) handleCast(w http.ResponseWriter, r *http.Request) {
	var req castRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, ok := parseEntityField(w, req.Target)
	if !ok {
		return
	}
	s.orch.RequestCastAbility(req.Ability, id)
	accepted(w)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.orch.RequestSellItem(req.Container, req.Slot); err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeInvalid, err.Error())
		return
	}
	accepted(w)
}

func (s *Server) handleCloseDialog(w http.ResponseWriter, _ *http.Request) {
	s.orch.RequestCloseDialog()
	accepted(w)
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeBadRequest(w, "script text is empty")
		return
	}
	if err := s.orch.RequestRunScript(req.Text); err != nil {
		if errors.Is(err, mailbox.ErrScriptPending) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeInternalError(w, err.Error())
		return
	}
	accepted(w)
}
