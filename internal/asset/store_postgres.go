package asset

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/exposure-cli/internal/db"
	"github.com/sells-group/exposure-cli/internal/geometry"
)

// PostgresStore implements Store on PostGIS. Geometry is written as EWKB.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var postgresMigration = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,
	`CREATE SCHEMA IF NOT EXISTS exposure`,
	`CREATE TABLE IF NOT EXISTS exposure.assets (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		archetype    TEXT NOT NULL,
		geom         geometry(Polygon, 4326) NOT NULL,
		centroid_lon DOUBLE PRECISION NOT NULL,
		centroid_lat DOUBLE PRECISION NOT NULL,
		area_km2     DOUBLE PRECISION NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_geom ON exposure.assets USING GIST (geom)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_created_at ON exposure.assets (created_at)`,
}

// Migrate creates the schema, table and indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresMigration {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "postgres: migrate assets")
		}
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Save upserts the asset.
func (s *PostgresStore) Save(ctx context.Context, a *PolygonAsset) error {
	data, err := ewkb.Marshal(a.ring.Polygon(), ewkb.NDR)
	if err != nil {
		return eris.Wrapf(err, "postgres: encode geometry %s", a.id)
	}
	c := a.centroid
	_, err = s.pool.Exec(ctx,
		`INSERT INTO exposure.assets (id, name, archetype, geom, centroid_lon, centroid_lat, area_km2, created_at)
		 VALUES ($1, $2, $3, ST_GeomFromEWKB($4), $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			archetype = EXCLUDED.archetype,
			geom = EXCLUDED.geom,
			centroid_lon = EXCLUDED.centroid_lon,
			centroid_lat = EXCLUDED.centroid_lat,
			area_km2 = EXCLUDED.area_km2,
			updated_at = now()`,
		a.id, a.name, a.archetype, data, c.Lon, c.Lat, a.areaKm2, a.createdAt,
	)
	return eris.Wrapf(err, "postgres: save asset %s", a.id)
}

// Get loads one asset.
func (s *PostgresStore) Get(ctx context.Context, id string) (*PolygonAsset, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, archetype, ST_AsEWKB(geom), created_at FROM exposure.assets WHERE id = $1`, id)
	a, err := scanPostgresAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get asset %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get asset %s", id)
	}
	return a, nil
}

// List returns a page of assets, oldest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*PolygonAsset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, archetype, ST_AsEWKB(geom), created_at FROM exposure.assets ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		listLimit(limit), max(offset, 0))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assets")
	}
	defer rows.Close()

	var out []*PolygonAsset
	for rows.Next() {
		a, err := scanPostgresAsset(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan asset")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate assets")
}

// Delete removes an asset.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM exposure.assets WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete asset %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: delete asset %s", id)
	}
	return nil
}

func scanPostgresAsset(row scannable) (*PolygonAsset, error) {
	var (
		id, name, archetype string
		data                []byte
		createdAt           time.Time
	)
	if err := row.Scan(&id, &name, &archetype, &data, &createdAt); err != nil {
		return nil, err
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "decode ewkb")
	}
	poly, ok := g.(*geom.Polygon)
	if !ok {
		return nil, eris.Errorf("stored geometry is %T, want polygon", g)
	}
	ring, err := geometry.RingFromPolygon(poly)
	if err != nil {
		return nil, err
	}
	return Rehydrate(id, name, archetype, ring, createdAt), nil
}
