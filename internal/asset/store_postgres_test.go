package asset

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresStore(mock), mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS postgis").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS exposure").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS exposure.assets").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_assets_geom").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_assets_created_at").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	a, _, err := New("Plant A", "manufacturing", facilityRing(), validator())
	require.NoError(t, err)

	wkb, err := ewkb.Marshal(a.Ring().Polygon(), ewkb.NDR)
	require.NoError(t, err)

	c := a.Centroid()
	mock.ExpectExec("INSERT INTO exposure.assets").
		WithArgs(a.ID(), "Plant A", "manufacturing", wkb, c.Lon, c.Lat, a.AreaKm2(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Save(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ring := facilityRing()
	wkb, err := ewkb.Marshal(ring.Polygon(), ewkb.NDR)
	require.NoError(t, err)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, name, archetype, ST_AsEWKB\(geom\), created_at FROM exposure.assets WHERE id = \$1`).
		WithArgs("asset-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "archetype", "geom", "created_at"}).
			AddRow("asset-1", "Plant A", "manufacturing", wkb, created))

	a, err := s.Get(context.Background(), "asset-1")
	require.NoError(t, err)
	assert.Equal(t, "asset-1", a.ID())
	assert.Equal(t, ring, a.Ring())
	assert.Equal(t, created, a.CreatedAt())
	assert.InDelta(t, 1.0, a.AreaKm2(), 0.05)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, archetype`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	wkb, err := ewkb.Marshal(facilityRing().Polygon(), ewkb.NDR)
	require.NoError(t, err)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM exposure.assets ORDER BY created_at, id LIMIT \$1 OFFSET \$2`).
		WithArgs(100, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "archetype", "geom", "created_at"}).
			AddRow("a", "A", "x", wkb, now).
			AddRow("b", "B", "", wkb, now))

	out, err := s.List(context.Background(), 0, -5)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, DefaultArchetype, out[1].Archetype())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM exposure.assets WHERE id = \$1`).
		WithArgs("a").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM exposure.assets WHERE id = \$1`).
		WithArgs("b").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, s.Delete(context.Background(), "a"))
	err := s.Delete(context.Background(), "b")
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
