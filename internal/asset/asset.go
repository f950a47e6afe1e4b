// Package asset models polygon assets: validated facility or site
// footprints with pass-through metadata, plus their persistence.
package asset

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/exposure-cli/internal/fault"
	"github.com/sells-group/exposure-cli/internal/geometry"
)

// DefaultArchetype is assigned when an asset is created without one.
const DefaultArchetype = "default archetype"

// PolygonAsset is an immutable validated polygon. Construct it with New;
// edits return a new value.
type PolygonAsset struct {
	id        string
	name      string
	archetype string
	ring      geometry.Ring
	centroid  geometry.Point
	areaKm2   float64
	createdAt time.Time
}

// New validates ring and returns an asset with a fresh id. When validation
// fails it returns the result alongside a geometry fault carrying it.
func New(name, archetype string, ring geometry.Ring, v *geometry.Validator) (*PolygonAsset, *geometry.Result, error) {
	res := v.Validate(ring)
	if !res.Valid {
		return nil, res, fault.Geometry(name, "polygon failed validation", res)
	}
	a := &PolygonAsset{
		id:        uuid.NewString(),
		name:      name,
		archetype: normalizeArchetype(archetype),
		ring:      ring.Closed(),
		centroid:  res.Metadata.Centroid,
		areaKm2:   res.Metadata.AreaKm2,
		createdAt: time.Now().UTC(),
	}
	return a, res, nil
}

// Rehydrate rebuilds an asset from persisted fields. The ring is trusted to
// have passed validation when it was first stored.
func Rehydrate(id, name, archetype string, ring geometry.Ring, createdAt time.Time) *PolygonAsset {
	closed := ring.Closed()
	return &PolygonAsset{
		id:        id,
		name:      name,
		archetype: normalizeArchetype(archetype),
		ring:      closed,
		centroid:  closed.Centroid(),
		areaKm2:   closed.AreaKm2(),
		createdAt: createdAt.UTC(),
	}
}

// WithRing re-validates a new ring and returns a new asset with a new id, so
// any cached sampling grid for the old geometry is never reused.
func (a *PolygonAsset) WithRing(ring geometry.Ring, v *geometry.Validator) (*PolygonAsset, *geometry.Result, error) {
	return New(a.name, a.archetype, ring, v)
}

// WithName returns a copy with a different display name. Geometry and id
// are unchanged.
func (a *PolygonAsset) WithName(name string) *PolygonAsset {
	cp := *a
	cp.name = name
	return &cp
}

// WithArchetype returns a copy with a different archetype.
func (a *PolygonAsset) WithArchetype(archetype string) *PolygonAsset {
	cp := *a
	cp.archetype = normalizeArchetype(archetype)
	return &cp
}

// ID returns the asset identifier.
func (a *PolygonAsset) ID() string { return a.id }

// Name returns the display name.
func (a *PolygonAsset) Name() string { return a.name }

// Archetype returns the facility archetype label.
func (a *PolygonAsset) Archetype() string { return a.archetype }

// Centroid returns the area-weighted centroid.
func (a *PolygonAsset) Centroid() geometry.Point { return a.centroid }

// AreaKm2 returns the planar area in square kilometers.
func (a *PolygonAsset) AreaKm2() float64 { return a.areaKm2 }

// CreatedAt returns the creation time in UTC.
func (a *PolygonAsset) CreatedAt() time.Time { return a.createdAt }

// Bounds returns the bounding box of the ring.
func (a *PolygonAsset) Bounds() geometry.BBox { return a.ring.Bounds() }

// VertexCount returns the number of distinct vertices.
func (a *PolygonAsset) VertexCount() int { return len(a.ring.Vertices()) }

// Ring returns a copy of the closed exterior ring.
func (a *PolygonAsset) Ring() geometry.Ring { return a.ring.Clone() }

func normalizeArchetype(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultArchetype
	}
	return s
}
