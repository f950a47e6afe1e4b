package asset

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	_ "modernc.org/sqlite"

	"github.com/sells-group/exposure-cli/internal/geometry"
)

// SQLiteStore implements Store using modernc.org/sqlite. Geometry is kept
// as GeoJSON text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// sqliteTimeLayout is fixed-width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS assets (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	archetype    TEXT NOT NULL,
	geometry     TEXT NOT NULL,
	centroid_lon REAL NOT NULL,
	centroid_lat REAL NOT NULL,
	area_km2     REAL NOT NULL,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assets_created_at ON assets(created_at);
`

// Migrate creates the assets table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts the asset.
func (s *SQLiteStore) Save(ctx context.Context, a *PolygonAsset) error {
	gj, err := geojson.Marshal(a.ring.Polygon())
	if err != nil {
		return eris.Wrapf(err, "sqlite: encode geometry %s", a.id)
	}
	c := a.centroid
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assets (id, name, archetype, geometry, centroid_lon, centroid_lat, area_km2, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			archetype = excluded.archetype,
			geometry = excluded.geometry,
			centroid_lon = excluded.centroid_lon,
			centroid_lat = excluded.centroid_lat,
			area_km2 = excluded.area_km2,
			updated_at = excluded.updated_at`,
		a.id, a.name, a.archetype, string(gj), c.Lon, c.Lat, a.areaKm2,
		a.createdAt.Format(sqliteTimeLayout), time.Now().UTC().Format(sqliteTimeLayout),
	)
	return eris.Wrapf(err, "sqlite: save asset %s", a.id)
}

// Get loads one asset.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*PolygonAsset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, archetype, geometry, created_at FROM assets WHERE id = ?`, id)
	a, err := scanSQLiteAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get asset %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get asset %s", id)
	}
	return a, nil
}

// List returns a page of assets, oldest first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*PolygonAsset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, archetype, geometry, created_at FROM assets ORDER BY created_at, id LIMIT ? OFFSET ?`,
		listLimit(limit), max(offset, 0))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assets")
	}
	defer rows.Close() //nolint:errcheck

	var out []*PolygonAsset
	for rows.Next() {
		a, err := scanSQLiteAsset(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan asset")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate assets")
}

// Delete removes an asset.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete asset %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: delete asset %s", id)
	}
	return nil
}

func scanSQLiteAsset(row scannable) (*PolygonAsset, error) {
	var id, name, archetype, gj, created string
	if err := row.Scan(&id, &name, &archetype, &gj, &created); err != nil {
		return nil, err
	}
	var g geom.T
	if err := geojson.Unmarshal([]byte(gj), &g); err != nil {
		return nil, eris.Wrap(err, "decode geometry")
	}
	poly, ok := g.(*geom.Polygon)
	if !ok {
		return nil, eris.Errorf("stored geometry is %T, want polygon", g)
	}
	ring, err := geometry.RingFromPolygon(poly)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(sqliteTimeLayout, created)
	if err != nil {
		return nil, eris.Wrap(err, "parse created_at")
	}
	return Rehydrate(id, name, archetype, ring, createdAt), nil
}
