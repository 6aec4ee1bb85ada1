package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/autopilot/internal/archive"
	"github.com/udisondev/autopilot/internal/engine"
	"github.com/udisondev/autopilot/internal/metrics"
	"github.com/udisondev/autopilot/internal/model"
	"github.com/udisondev/autopilot/internal/oracle/sim"
	"github.com/udisondev/autopilot/internal/orchestrator"
	"github.com/udisondev/autopilot/internal/pathstore"
)

const (
	rawUnit   = 3
	rawPlayer = 4
)

type testEnv struct {
	world *sim.World
	store *pathstore.Store
	orch  *orchestrator.Orchestrator
	srv   *Server
}

// newTestEnv собирает сервер поверх симулированного мира с sqlite-архивом.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	w := sim.NewWorld(0)
	w.RecordCalls(true)
	w.Add(sim.Entity{ID: 100, RawKind: rawPlayer, Name: "Hero"})
	w.Add(sim.Entity{ID: 200, RawKind: rawUnit, Name: "Wolf", Position: model.NewVector3(10, 0, 0)})
	w.Add(sim.Entity{ID: 201, RawKind: rawUnit, Name: "Wolf pup", Position: model.NewVector3(4, 0, 0)})
	w.Add(sim.Entity{ID: 202, RawKind: rawUnit, Name: "Bear", Position: model.NewVector3(30, 0, 0)})
	w.SetLocalAgent(100)

	dir := t.TempDir()
	store := pathstore.New(dir)

	a, err := archive.Open(context.Background(), archive.DriverSQLite, filepath.Join(dir, "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	m := metrics.New()
	o := orchestrator.New(orchestrator.Deps{
		Oracle:   w,
		Actions:  w,
		Store:    store,
		Archive:  a,
		Metrics:  m,
		Follower: engine.FollowerConfig{StepInterval: time.Millisecond, RetryInterval: time.Millisecond, ReachRadius: 1},
		Recorder: engine.RecorderConfig{Interval: time.Millisecond, MinStep: 1},
	})
	t.Cleanup(o.Stop)
	o.Tick()

	srv, err := New(Deps{Orchestrator: o, Metrics: m, StatusInterval: 5 * time.Millisecond})
	require.NoError(t, err)

	return &testEnv{world: w, store: store, orch: o, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNew_RequiresOrchestrator(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	st := decode[statusDTO](t, rec)
	assert.Equal(t, "follow", st.Engine)
	assert.Equal(t, "IDLE", st.EngineState)
	assert.Equal(t, "grind", st.PathKind)
	assert.Equal(t, 4, st.Entities)
	require.NotNil(t, st.LocalAgent)
	assert.Equal(t, "0x64", st.LocalAgent.ID)
}

func TestRequestID(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/status", nil)
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	rec = httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "client-id", rec.Header().Get(RequestIDHeader))
}

func TestNotFound(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, decode[Error](t, rec).Code)
}

func TestEngineKindAndStartStop(t *testing.T) {
	e := newTestEnv(t)
	e.store.SetPath([]model.Vector3{{X: 50}}, model.PathGrind)

	rec := e.do(t, http.MethodPut, "/api/v1/engine/kind", kindRequest{Kind: "fly"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPut, "/api/v1/engine/kind", kindRequest{Kind: "follow"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/engine/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RUNNING", decode[statusDTO](t, rec).EngineState)

	rec = e.do(t, http.MethodPost, "/api/v1/engine/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "IDLE", decode[statusDTO](t, rec).EngineState)
}

func TestRecordSaveAndRevisions(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPut, "/api/v1/path/kind", kindRequest{Kind: "vendor"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodPut, "/api/v1/engine/kind", kindRequest{Kind: "record"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/engine/start", startRequest{VendorName: "Bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool { return e.orch.Status().Recorded == 1 }, time.Second, time.Millisecond)

	rec = e.do(t, http.MethodPost, "/api/v1/engine/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/path", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[pathDTO](t, rec)
	assert.Equal(t, "vendor", p.Kind)
	assert.Equal(t, "Bob", p.VendorName)
	assert.Len(t, p.Points, 1)

	rec = e.do(t, http.MethodPost, "/api/v1/paths/town/save", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "town", decode[pathDTO](t, rec).Name)

	rec = e.do(t, http.MethodGet, "/api/v1/paths", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string]any](t, rec)
	assert.Equal(t, "vendor", list["kind"])
	assert.Equal(t, []any{"town"}, list["names"])

	rec = e.do(t, http.MethodGet, "/api/v1/paths/town/revisions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	revs := decode[[]revisionDTO](t, rec)
	require.Len(t, revs, 1)
	assert.Equal(t, "vendor", revs[0].Kind)
	assert.Equal(t, 1, revs[0].Number)

	rec = e.do(t, http.MethodDelete, "/api/v1/path", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/revisions/"+revs[0].ID+"/restore", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cur, _ := e.orch.CurrentPath()
	assert.Equal(t, "Bob", cur.VendorName)
	assert.Equal(t, 1, cur.Len())

	rec = e.do(t, http.MethodPost, "/api/v1/revisions/"+uuid.NewString()+"/restore", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPathErrors(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/paths/missing/load", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/paths/empty/save", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPut, "/api/v1/path/kind", kindRequest{Kind: "dungeon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPut, "/api/v1/path/vendor-name", map[string]any{"nick": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestLoadPath(t *testing.T) {
	e := newTestEnv(t)
	e.store.SetPath([]model.Vector3{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}, model.PathGrind)
	require.NoError(t, e.store.Save("loop", model.PathGrind))
	e.store.Clear(model.PathGrind)

	rec := e.do(t, http.MethodPost, "/api/v1/paths/loop/load", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	p := decode[pathDTO](t, rec)
	assert.Equal(t, "loop", p.Name)
	assert.Equal(t, []vectorDTO{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}, p.Points)
}

func TestEntities(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/entities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]entityDTO](t, rec), 4)

	rec = e.do(t, http.MethodGet, "/api/v1/entities?kind=unit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]entityDTO](t, rec), 3)

	rec = e.do(t, http.MethodGet, "/api/v1/entities?kind=unit&prefix=WOLF", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	wolves := decode[[]entityDTO](t, rec)
	require.Len(t, wolves, 2)
	assert.Equal(t, "Wolf", wolves[0].Name)

	rec = e.do(t, http.MethodGet, "/api/v1/entities?kind=dragon", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/entities/0xc8", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Wolf", decode[entityDTO](t, rec).Name)

	rec = e.do(t, http.MethodGet, "/api/v1/entities/0x999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNearest(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/entities/nearest?kind=unit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Wolf pup", decode[entityDTO](t, rec).Name)

	rec = e.do(t, http.MethodGet, "/api/v1/entities/nearest?kind=unit&max=3", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/entities/nearest?kind=unit&max=far", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Без локального агента искать не от чего
	e.world.SetLocalAgent(0)
	e.orch.Tick()
	rec = e.do(t, http.MethodGet, "/api/v1/entities/nearest?kind=unit", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActions(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/actions/focus", entityRequest{ID: "0xc8"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = e.do(t, http.MethodPost, "/api/v1/actions/cast", castRequest{Ability: 7, Target: "200"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = e.do(t, http.MethodPost, "/api/v1/actions/sell", sellRequest{Container: 2, Slot: 3})
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = e.do(t, http.MethodPost, "/api/v1/actions/close-dialog", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = e.do(t, http.MethodPost, "/api/v1/actions/script", scriptRequest{Text: "print(1)"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	pending := e.orch.Mailbox().Pending()
	assert.True(t, pending.Focus)
	assert.Equal(t, 1, pending.Casts)
	assert.Equal(t, 1, pending.Sells)
	assert.True(t, pending.CloseDialog)
	assert.True(t, pending.Script)

	rec = e.do(t, http.MethodPost, "/api/v1/actions/script", scriptRequest{Text: "print(2)"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/actions/sell", sellRequest{Container: 5, Slot: 0})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/actions/interact", entityRequest{ID: "wolf"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	e.orch.Tick()
	var actions []string
	for _, c := range e.world.Calls() {
		actions = append(actions, c.Action)
	}
	assert.Equal(t, []string{"target", "cast", "sell", "close_dialog", "script"}, actions)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "autopilot_ticks_total 1")
}

func TestWebSocketStatusFeed(t *testing.T) {
	e := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.srv.Hub().Run(ctx, 5*time.Millisecond, func() any { return toStatus(e.orch.Status()) })

	ts := httptest.NewServer(e.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// Первое сообщение приходит сразу, второе — от тикера хаба
	for range 2 {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg struct {
			Type    string    `json:"type"`
			Payload statusDTO `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, WSTypeStatus, msg.Type)
		assert.Equal(t, "follow", msg.Payload.Engine)
	}

	require.Eventually(t, func() bool { return e.srv.Hub().ClientCount() == 1 }, time.Second, time.Millisecond)
}

func TestServe_Shutdown(t *testing.T) {
	e := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	e.srv.addr = "127.0.0.1:0"

	errCh := make(chan error, 1)
	go func() { errCh <- e.srv.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
