package raster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/exposure-cli/internal/db"
	"github.com/sells-group/exposure-cli/internal/fault"
	"github.com/sells-group/exposure-cli/internal/geometry"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*\.[a-z_][a-z0-9_]*$`)

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// PostGISGateway reads hazard values from PostGIS raster tables with
// ST_Value. Only tables registered at construction are queried.
type PostGISGateway struct {
	pool   db.Pool
	tables map[string]string // layer -> sanitized schema.table
}

// NewPostGISGateway maps layer names to schema-qualified raster tables.
// Table names must be lower-case schema.table identifiers.
func NewPostGISGateway(pool db.Pool, tables map[string]string) (*PostGISGateway, error) {
	out := make(map[string]string, len(tables))
	for layer, table := range tables {
		if !tableName.MatchString(table) {
			return nil, eris.Errorf("raster: invalid raster table %q for layer %s", table, layer)
		}
		parts := strings.SplitN(table, ".", 2)
		out[layer] = pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return &PostGISGateway{pool: pool, tables: out}, nil
}

const valueQuery = `SELECT u.ord, COALESCE((
	SELECT ST_Value(r.rast, 1, p.geom)
	FROM %s r
	WHERE ST_Intersects(r.rast, p.geom)
	LIMIT 1
), 'NaN'::float8) AS value
FROM unnest($1::float8[], $2::float8[]) WITH ORDINALITY AS u(lon, lat, ord)
CROSS JOIN LATERAL (SELECT ST_SetSRID(ST_MakePoint(u.lon, u.lat), 4326) AS geom) p
ORDER BY u.ord`

// BatchQuery resolves all points in one round trip.
func (g *PostGISGateway) BatchQuery(ctx context.Context, layer string, points []geometry.Point) ([]Reading, error) {
	table, ok := g.tables[layer]
	if !ok {
		return nil, fault.Unavailable(layer, eris.Errorf("raster: no raster table for layer %s", layer))
	}
	if len(points) == 0 {
		return nil, nil
	}

	lons := make([]float64, len(points))
	lats := make([]float64, len(points))
	for i, p := range points {
		lons[i], lats[i] = p.Lon, p.Lat
	}

	rows, err := g.pool.Query(ctx, fmt.Sprintf(valueQuery, table), lons, lats)
	if err != nil {
		return nil, classifyPgErr(layer, err)
	}
	defer rows.Close()

	out := make([]Reading, len(points))
	for i := range out {
		out[i] = NoData()
	}
	for rows.Next() {
		var (
			ord int64
			v   float64
		)
		if err := rows.Scan(&ord, &v); err != nil {
			return nil, eris.Wrapf(err, "raster: scan %s", layer)
		}
		if ord < 1 || ord > int64(len(points)) {
			return nil, eris.Errorf("raster: ordinal %d out of range for %s", ord, layer)
		}
		if !math.IsNaN(v) {
			out[ord-1] = Value(v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgErr(layer, err)
	}
	return out, nil
}

func classifyPgErr(layer string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fault.Unavailable(layer, err)
	}
	return eris.Wrapf(err, "raster: query %s", layer)
}
