package asset

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "assets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, _, err := New("Plant A", "manufacturing", facilityRing(), validator())
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, a))

	got, err := st.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, a.ID(), got.ID())
	assert.Equal(t, a.Name(), got.Name())
	assert.Equal(t, a.Archetype(), got.Archetype())
	assert.Equal(t, a.Ring(), got.Ring())
	assert.InDelta(t, a.AreaKm2(), got.AreaKm2(), 1e-9)
	assert.WithinDuration(t, a.CreatedAt(), got.CreatedAt(), time.Microsecond)
}

func TestSQLite_SaveUpserts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, _, err := New("Plant A", "", facilityRing(), validator())
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, a))
	require.NoError(t, st.Save(ctx, a.WithName("Plant B")))

	got, err := st.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, "Plant B", got.Name())

	all, err := st.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLite_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestSQLite_ListPaging(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"one", "two", "three"} {
		a, _, err := New(name, "", facilityRing(), validator())
		require.NoError(t, err)
		require.NoError(t, st.Save(ctx, a))
		ids = append(ids, a.ID())
		time.Sleep(2 * time.Millisecond)
	}

	page, err := st.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "one", page[0].Name())
	assert.Equal(t, "two", page[1].Name())

	page, err = st.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[2], page[0].ID())
}

func TestSQLite_Delete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, _, err := New("Plant", "", facilityRing(), validator())
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, a))

	require.NoError(t, st.Delete(ctx, a.ID()))
	_, err = st.Get(ctx, a.ID())
	assert.True(t, IsNotFound(err))

	err = st.Delete(ctx, a.ID())
	assert.True(t, IsNotFound(err))
}
