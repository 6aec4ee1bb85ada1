package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/autopilot/internal/model"
	"github.com/udisondev/autopilot/internal/pathstore"
)

// openTestArchive открывает sqlite-архив во временной директории.
func openTestArchive(t *testing.T) *Archive {
	t.Helper()

	a, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func grindPath(coords ...float32) model.Path {
	p := model.Path{Kind: model.PathGrind}
	for i := 0; i+2 < len(coords); i += 3 {
		p.Points = append(p.Points, model.NewVector3(coords[i], coords[i+1], coords[i+2]))
	}
	return p
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	require.Error(t, err)

	_, err = Open(context.Background(), DriverSQLite, "")
	require.Error(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "archive.db")
	ctx := context.Background()

	a, err := Open(ctx, DriverSQLite, dsn)
	require.NoError(t, err)
	_, _, err = a.Put(ctx, "route", grindPath(1, 2, 3))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	// Повторные миграции не ломают существующие данные
	a, err = Open(ctx, DriverSQLite, dsn)
	require.NoError(t, err)
	defer a.Close()

	revs, err := a.Revisions(ctx, model.PathGrind, "route")
	require.NoError(t, err)
	assert.Len(t, revs, 1)
}

func TestArchive_PutAndGet(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	p := grindPath(1, 2, 3, 4.5, -5, 6)
	rev, created, err := a.Put(ctx, "route", p)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, rev.Number)
	assert.Equal(t, 2, rev.Points)
	assert.Len(t, rev.Checksum, 64)
	_, err = uuid.Parse(rev.ID)
	assert.NoError(t, err)

	got, path, err := a.Get(ctx, rev.ID)
	require.NoError(t, err)
	assert.Equal(t, rev.ID, got.ID)
	assert.Equal(t, model.PathGrind, got.Kind)
	assert.Equal(t, p.Points, path.Points)
	assert.Equal(t, model.PathGrind, path.Kind)
}

func TestArchive_VendorName(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	p := model.Path{Kind: model.PathVendor, VendorName: "Bob", Points: []model.Vector3{{X: 1}}}
	rev, _, err := a.Put(ctx, "town", p)
	require.NoError(t, err)
	assert.Equal(t, "Bob", rev.VendorName)

	_, got, err := a.Get(ctx, rev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.VendorName)
	assert.Equal(t, model.PathVendor, got.Kind)
}

func TestArchive_UnchangedPathDeduplicated(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	first, created, err := a.Put(ctx, "route", grindPath(1, 2, 3))
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := a.Put(ctx, "route", grindPath(1, 2, 3))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	second, created, err := a.Put(ctx, "route", grindPath(7, 8, 9))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, second.Number)

	// Возврат к старому содержимому — новая ревизия, а не дедупликация
	third, created, err := a.Put(ctx, "route", grindPath(1, 2, 3))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 3, third.Number)
	assert.Equal(t, first.Checksum, third.Checksum)
}

func TestArchive_RevisionsNewestFirst(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	a.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := range 3 {
		_, _, err := a.Put(ctx, "route", grindPath(float32(i), 0, 0))
		require.NoError(t, err)
	}
	_, _, err := a.Put(ctx, "other", grindPath(5, 5, 5))
	require.NoError(t, err)
	_, _, err = a.Put(ctx, "route", model.Path{Kind: model.PathVendor, Points: []model.Vector3{{X: 1}}})
	require.NoError(t, err)

	revs, err := a.Revisions(ctx, model.PathGrind, "route")
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Equal(t, 3, revs[0].Number)
	assert.Equal(t, 1, revs[2].Number)
	assert.Equal(t, base.Add(3*time.Second), revs[0].CreatedAt)

	none, err := a.Revisions(ctx, model.PathGrind, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestArchive_GetNotFound(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	_, _, err := a.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = a.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchive_PutEmpty(t *testing.T) {
	a := openTestArchive(t)

	_, _, err := a.Put(context.Background(), "route", model.Path{Kind: model.PathGrind})
	assert.ErrorIs(t, err, pathstore.ErrEmptyPath)
}

func TestRebind(t *testing.T) {
	a := &Archive{postgres: true}
	assert.Equal(t, "a = $1 AND b = $2", a.rebind("a = ? AND b = ?"))

	a.postgres = false
	assert.Equal(t, "a = ? AND b = ?", a.rebind("a = ? AND b = ?"))
}
