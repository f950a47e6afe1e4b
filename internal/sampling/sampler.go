// Package sampling lays deterministic, density-adaptive sample lattices over
// polygon interiors.
package sampling

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/exposure-cli/internal/geometry"
)

// Tier maps polygons below an area ceiling to a lattice spacing.
type Tier struct {
	MaxAreaKm2    float64
	SpacingMeters float64
}

// Tiers lists spacing tiers from finest to coarsest. The first tier whose
// MaxAreaKm2 exceeds the polygon area wins.
var Tiers = []Tier{
	{MaxAreaKm2: 0.01, SpacingMeters: 5},
	{MaxAreaKm2: 0.1, SpacingMeters: 10},
	{MaxAreaKm2: 1, SpacingMeters: 50},
	{MaxAreaKm2: 10, SpacingMeters: 100},
	{MaxAreaKm2: 100, SpacingMeters: 500},
	{MaxAreaKm2: math.Inf(1), SpacingMeters: 1000},
}

// SpacingForArea returns the tier spacing for a polygon area.
func SpacingForArea(areaKm2 float64) float64 {
	for _, t := range Tiers {
		if areaKm2 < t.MaxAreaKm2 {
			return t.SpacingMeters
		}
	}
	return Tiers[len(Tiers)-1].SpacingMeters
}

// coarser returns the next spacing after s: the next tier, or double s once
// past the coarsest tier.
func coarser(s float64) float64 {
	for _, t := range Tiers {
		if t.SpacingMeters > s {
			return t.SpacingMeters
		}
	}
	return s * 2
}

// Config bounds lattice generation.
type Config struct {
	// MaxPoints is the hard ceiling on retained interior points.
	MaxPoints int `yaml:"max_points" mapstructure:"max_points"`
	// MaxCandidates skips a spacing before filtering when its bounding-box
	// lattice alone would exceed this many candidates.
	MaxCandidates int `yaml:"max_candidates" mapstructure:"max_candidates"`
	CacheEntries  int `yaml:"cache_entries" mapstructure:"cache_entries"`
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{MaxPoints: 2000, MaxCandidates: 4_000_000, CacheEntries: 256}
}

// Sampler generates sample grids. It holds no mutable state.
type Sampler struct {
	cfg Config
}

// NewSampler creates a Sampler, filling zero limits with defaults.
func NewSampler(cfg Config) *Sampler {
	def := DefaultConfig()
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = def.MaxPoints
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.CacheEntries <= 0 {
		cfg.CacheEntries = def.CacheEntries
	}
	return &Sampler{cfg: cfg}
}

// Config returns the effective limits.
func (s *Sampler) Config() Config { return s.cfg }

// Generate samples ring starting at the tier spacing for areaKm2.
func (s *Sampler) Generate(assetID string, ring geometry.Ring, areaKm2 float64) *SampleGrid {
	return s.GenerateAt(assetID, ring, SpacingForArea(areaKm2))
}

// GenerateAt samples ring starting at the given spacing. The guardrails may
// still step to a coarser spacing.
func (s *Sampler) GenerateAt(assetID string, ring geometry.Ring, spacingMeters float64) *SampleGrid {
	vs := ring.Vertices()
	b := ring.Bounds()
	spacing := spacingMeters
	if spacing <= 0 {
		spacing = Tiers[0].SpacingMeters
	}

	for {
		l := newLattice(b, spacing)
		if l.candidates() <= s.cfg.MaxCandidates {
			pts := l.interior(vs)
			if len(pts) <= s.cfg.MaxPoints {
				g := &SampleGrid{
					AssetID:       assetID,
					SpacingMeters: spacing,
					Candidates:    l.candidates(),
					Points:        pts,
				}
				if len(pts) == 0 {
					c := ring.Centroid()
					g.Points = []SamplePoint{{Lon: c.Lon, Lat: c.Lat}}
					g.CentroidFallback = true
				}
				zap.L().Debug("sampling: grid generated",
					zap.String("asset_id", assetID),
					zap.Float64("spacing_m", spacing),
					zap.Int("candidates", g.Candidates),
					zap.Int("points", len(g.Points)),
					zap.Bool("centroid_fallback", g.CentroidFallback),
				)
				return g
			}
		}
		spacing = coarser(spacing)
	}
}

// lattice is a row-major grid of cell centers covering a bounding box. The
// grid is centered on the box, so an axis narrower than one step still gets
// a row or column through its middle.
type lattice struct {
	lon0, lat0       float64
	lonStep, latStep float64
	nx, ny           int
}

func newLattice(b geometry.BBox, spacingMeters float64) lattice {
	latStep := spacingMeters / geometry.MetersPerDegree
	cosLat := math.Cos(b.MeanLat() * math.Pi / 180)
	if cosLat < 1e-6 {
		cosLat = 1e-6
	}
	lonStep := spacingMeters / (geometry.MetersPerDegree * cosLat)
	nx := max(1, int(math.Ceil(b.Width()/lonStep)))
	ny := max(1, int(math.Ceil(b.Height()/latStep)))
	return lattice{
		lon0:    b.MinLng + (b.Width()-float64(nx-1)*lonStep)/2,
		lat0:    b.MinLat + (b.Height()-float64(ny-1)*latStep)/2,
		lonStep: lonStep,
		latStep: latStep,
		nx:      nx,
		ny:      ny,
	}
}

func (l lattice) candidates() int {
	return l.nx * l.ny
}

// interior returns the lattice points inside vs, rows by ascending latitude
// and columns by ascending longitude.
func (l lattice) interior(vs []geometry.Point) []SamplePoint {
	var out []SamplePoint
	for j := 0; j < l.ny; j++ {
		lat := l.lat0 + float64(j)*l.latStep
		for i := 0; i < l.nx; i++ {
			p := geometry.Point{Lon: l.lon0 + float64(i)*l.lonStep, Lat: lat}
			if geometry.PointInRing(vs, p) {
				out = append(out, SamplePoint{Lon: p.Lon, Lat: p.Lat})
			}
		}
	}
	return out
}
