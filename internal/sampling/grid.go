package sampling

import "github.com/sells-group/exposure-cli/internal/geometry"

// SamplePoint is one location where a hazard value is queried. RawValue is
// nil for nodata or before resolution; Band is empty until classified.
type SamplePoint struct {
	Lon      float64  `json:"lon"`
	Lat      float64  `json:"lat"`
	RawValue *float64 `json:"raw_value,omitempty"`
	Band     string   `json:"band,omitempty"`
}

// Position returns the point location.
func (p SamplePoint) Position() geometry.Point {
	return geometry.Point{Lon: p.Lon, Lat: p.Lat}
}

// SampleGrid is the ordered sample set for one asset. Grids handed out by
// GridCache are shared and must be cloned before values are attached.
type SampleGrid struct {
	AssetID          string        `json:"asset_id"`
	SpacingMeters    float64       `json:"spacing_meters"`
	Candidates       int           `json:"candidates"`
	CentroidFallback bool          `json:"centroid_fallback"`
	Points           []SamplePoint `json:"points"`
}

// Positions returns the point locations in grid order.
func (g *SampleGrid) Positions() []geometry.Point {
	out := make([]geometry.Point, len(g.Points))
	for i, p := range g.Points {
		out[i] = p.Position()
	}
	return out
}

// Clone returns a deep copy of the grid.
func (g *SampleGrid) Clone() *SampleGrid {
	cp := *g
	cp.Points = make([]SamplePoint, len(g.Points))
	for i, p := range g.Points {
		if p.RawValue != nil {
			v := *p.RawValue
			p.RawValue = &v
		}
		cp.Points[i] = p
	}
	return &cp
}
