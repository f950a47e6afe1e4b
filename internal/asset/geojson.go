package asset

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/exposure-cli/internal/fault"
	"github.com/sells-group/exposure-cli/internal/geometry"
)

// Draft is an unvalidated polygon with its metadata, as parsed from input.
type Draft struct {
	Name      string        `json:"name"`
	Archetype string        `json:"archetype"`
	Ring      geometry.Ring `json:"ring"`
}

// Build validates the draft and creates the asset.
func (d Draft) Build(v *geometry.Validator) (*PolygonAsset, *geometry.Result, error) {
	return New(d.Name, d.Archetype, d.Ring, v)
}

// ParseGeoJSON decodes a Feature, FeatureCollection, Polygon or
// single-member MultiPolygon into drafts. Name and archetype are read from
// feature properties when present.
func ParseGeoJSON(data []byte) ([]Draft, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrap(err, "asset: decode geojson")
	}

	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrap(err, "asset: decode feature collection")
		}
		drafts := make([]Draft, 0, len(fc.Features))
		for i, f := range fc.Features {
			d, err := draftFromFeature(f)
			if err != nil {
				return nil, eris.Wrapf(err, "asset: feature %d", i)
			}
			drafts = append(drafts, d)
		}
		return drafts, nil
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrap(err, "asset: decode feature")
		}
		d, err := draftFromFeature(&f)
		if err != nil {
			return nil, err
		}
		return []Draft{d}, nil
	case "Polygon", "MultiPolygon":
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrap(err, "asset: decode geometry")
		}
		ring, err := ringFromGeometry(g)
		if err != nil {
			return nil, err
		}
		return []Draft{{Ring: ring}}, nil
	default:
		return nil, fault.Newf(fault.KindGeometry, "geojson", "unsupported geojson type %q", head.Type)
	}
}

// ParseFeature decodes exactly one polygon from GeoJSON.
func ParseFeature(data []byte) (Draft, error) {
	drafts, err := ParseGeoJSON(data)
	if err != nil {
		return Draft{}, err
	}
	if len(drafts) != 1 {
		return Draft{}, fault.Newf(fault.KindGeometry, "geojson", "expected one polygon, got %d", len(drafts))
	}
	return drafts[0], nil
}

func draftFromFeature(f *geojson.Feature) (Draft, error) {
	if f == nil || f.Geometry == nil {
		return Draft{}, fault.New(fault.KindGeometry, "geojson", "feature has no geometry")
	}
	ring, err := ringFromGeometry(f.Geometry)
	if err != nil {
		return Draft{}, err
	}
	d := Draft{Ring: ring}
	if s, ok := f.Properties["name"].(string); ok {
		d.Name = s
	}
	if s, ok := f.Properties["archetype"].(string); ok {
		d.Archetype = s
	}
	return d, nil
}

func ringFromGeometry(g geom.T) (geometry.Ring, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return geometry.RingFromPolygon(t)
	case *geom.MultiPolygon:
		if t.NumPolygons() != 1 {
			return nil, fault.Newf(fault.KindGeometry, "geojson", "multipolygon must have exactly one member, got %d", t.NumPolygons())
		}
		return geometry.RingFromPolygon(t.Polygon(0))
	default:
		return nil, fault.Newf(fault.KindGeometry, "geojson", "geometry must be a polygon, got %T", g)
	}
}

// Feature renders the asset as a GeoJSON feature.
func (a *PolygonAsset) Feature() *geojson.Feature {
	return &geojson.Feature{
		ID:       a.id,
		Geometry: a.ring.Polygon(),
		Properties: map[string]any{
			"name":         a.name,
			"archetype":    a.archetype,
			"asset_type":   "polygon",
			"area_km2":     a.areaKm2,
			"centroid_lon": a.centroid.Lon,
			"centroid_lat": a.centroid.Lat,
			"vertex_count": a.VertexCount(),
			"created_at":   a.createdAt.Format(time.RFC3339),
		},
	}
}

// MarshalJSON encodes the asset as a GeoJSON feature.
func (a *PolygonAsset) MarshalJSON() ([]byte, error) {
	return a.Feature().MarshalJSON()
}

// FeatureCollection renders assets as a GeoJSON feature collection.
func FeatureCollection(assets []*PolygonAsset) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(assets))}
	for _, a := range assets {
		fc.Features = append(fc.Features, a.Feature())
	}
	return fc
}
