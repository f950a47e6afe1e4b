package geometry

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Validation rule names.
const (
	RuleClosure          = "closure"
	RuleVertexCount      = "vertex_count"
	RuleCoordinateRange  = "coordinate_range"
	RuleSelfIntersection = "self_intersection"
	RuleDegenerate       = "degenerate"
	RuleAreaBounds       = "area_bounds"
	RuleSideLength       = "side_length"
	RuleAntimeridian     = "antimeridian"
	RuleHighLatitude     = "high_latitude"
)

// Machine-readable violation codes.
const (
	CodeNotClosed        = "GEOM_NOT_CLOSED"
	CodeEmpty            = "GEOM_EMPTY"
	CodeVertexCount      = "GEOM_VERTEX_COUNT"
	CodeNonFinite        = "GEOM_NON_FINITE"
	CodeOutOfRange       = "GEOM_OUT_OF_RANGE"
	CodeSelfIntersection = "GEOM_SELF_INTERSECTION"
	CodeCollinear        = "GEOM_COLLINEAR"
	CodeDuplicateVertex  = "GEOM_DUPLICATE_VERTEX"
	CodeZeroArea         = "GEOM_ZERO_AREA"
	CodeAreaBounds       = "GEOM_AREA_BOUNDS"
	CodeSideLength       = "GEOM_SIDE_LENGTH"
	CodeAntimeridian     = "GEOM_ANTIMERIDIAN"
	CodeHighLatitude     = "GEOM_HIGH_LATITUDE"
)

// highLatitude is the absolute latitude beyond which planar metrics degrade
// enough to warrant a warning.
const highLatitude = 85.0

// Config bounds the polygons the validator accepts.
type Config struct {
	MinVertices           int     `yaml:"min_vertices" mapstructure:"min_vertices"`
	MaxVertices           int     `yaml:"max_vertices" mapstructure:"max_vertices"`
	MinAreaKm2            float64 `yaml:"min_area_km2" mapstructure:"min_area_km2"`
	MaxAreaKm2            float64 `yaml:"max_area_km2" mapstructure:"max_area_km2"`
	MinSideMeters         float64 `yaml:"min_side_meters" mapstructure:"min_side_meters"`
	MaxSideMeters         float64 `yaml:"max_side_meters" mapstructure:"max_side_meters"`
	AllowSelfIntersection bool    `yaml:"allow_self_intersection" mapstructure:"allow_self_intersection"`
}

// DefaultConfig returns the standard validation bounds.
func DefaultConfig() Config {
	return Config{
		MinVertices:   3,
		MaxVertices:   500,
		MinAreaKm2:    1e-6,
		MaxAreaKm2:    50000,
		MinSideMeters: 0.01,
		MaxSideMeters: 500000,
	}
}

// Violation is a single failed rule.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Metadata describes the ring's planar measurements.
type Metadata struct {
	VertexCount int     `json:"vertex_count"`
	Area        float64 `json:"area"`
	AreaKm2     float64 `json:"area_km2"`
	Perimeter   float64 `json:"perimeter"`
	PerimeterKm float64 `json:"perimeter_km"`
	Centroid    Point   `json:"centroid"`
	BoundingBox BBox    `json:"bounding_box"`
}

// Result is the outcome of validating one ring.
type Result struct {
	Valid    bool        `json:"valid"`
	Errors   []Violation `json:"errors"`
	Warnings []Violation `json:"warnings"`
	Metadata Metadata    `json:"metadata"`
}

// HasRule reports whether any error was raised by the named rule.
func (r *Result) HasRule(rule string) bool {
	for _, v := range r.Errors {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

func (r *Result) fail(rule, code, format string, args ...any) {
	r.Errors = append(r.Errors, Violation{Rule: rule, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) warn(rule, code, format string, args ...any) {
	r.Warnings = append(r.Warnings, Violation{Rule: rule, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Validator checks candidate rings against a Config. It holds no mutable
// state and is safe for concurrent use.
type Validator struct {
	cfg Config
}

// NewValidator creates a Validator. Zero-valued bounds take their defaults.
func NewValidator(cfg Config) *Validator {
	def := DefaultConfig()
	if cfg.MinVertices <= 0 {
		cfg.MinVertices = def.MinVertices
	}
	if cfg.MaxVertices <= 0 {
		cfg.MaxVertices = def.MaxVertices
	}
	if cfg.MinAreaKm2 <= 0 {
		cfg.MinAreaKm2 = def.MinAreaKm2
	}
	if cfg.MaxAreaKm2 <= 0 {
		cfg.MaxAreaKm2 = def.MaxAreaKm2
	}
	if cfg.MinSideMeters < 0 {
		cfg.MinSideMeters = def.MinSideMeters
	}
	if cfg.MaxSideMeters <= 0 {
		cfg.MaxSideMeters = def.MaxSideMeters
	}
	return &Validator{cfg: cfg}
}

// Config returns the effective bounds.
func (v *Validator) Config() Config { return v.cfg }

// Validate runs every rule against ring and collects all violations. Only
// structural failures (empty ring, non-finite coordinates, fewer than three
// vertices) stop evaluation early, since later rules cannot be computed.
func (v *Validator) Validate(ring Ring) *Result {
	res := &Result{Errors: []Violation{}, Warnings: []Violation{}}
	defer func() {
		res.Valid = len(res.Errors) == 0
		zap.L().Debug("geometry: validated ring",
			zap.Bool("valid", res.Valid),
			zap.Int("errors", len(res.Errors)),
			zap.Int("warnings", len(res.Warnings)),
		)
	}()

	if len(ring) == 0 {
		res.fail(RuleVertexCount, CodeEmpty, "ring has no points")
		return res
	}

	if !v.checkCoordinates(ring, res) {
		return res
	}

	if !ring.IsClosed() {
		first, last := ring[0], ring[len(ring)-1]
		res.fail(RuleClosure, CodeNotClosed,
			"first point (%g, %g) and last point (%g, %g) differ by more than %g",
			first.Lon, first.Lat, last.Lon, last.Lat, ClosureTolerance)
	}

	vs := ring.Vertices()
	res.Metadata.VertexCount = len(vs)
	res.Metadata.BoundingBox = ring.Bounds()

	if len(vs) < v.cfg.MinVertices || len(vs) > v.cfg.MaxVertices {
		res.fail(RuleVertexCount, CodeVertexCount,
			"ring has %d vertices, allowed range is [%d, %d]", len(vs), v.cfg.MinVertices, v.cfg.MaxVertices)
	}
	if len(vs) < 3 {
		return res
	}

	v.checkDegeneracy(vs, res)

	// The pairwise test is quadratic; it only runs while the vertex ceiling
	// holds. Over-ceiling rings are already invalid.
	if !v.cfg.AllowSelfIntersection && len(vs) <= v.cfg.MaxVertices {
		checkSelfIntersection(vs, res)
	}

	area := signedArea(vs)
	meanLat := res.Metadata.BoundingBox.MeanLat()
	areaKm2 := DegreesToKm2(math.Abs(area), meanLat)
	res.Metadata.Area = math.Abs(area)
	res.Metadata.AreaKm2 = areaKm2
	res.Metadata.Perimeter = ring.Perimeter()
	res.Metadata.PerimeterKm = ring.PerimeterKm()
	res.Metadata.Centroid = ring.Centroid()

	if area == 0 {
		res.fail(RuleAreaBounds, CodeZeroArea, "ring encloses zero area")
	} else if areaKm2 < v.cfg.MinAreaKm2 || areaKm2 > v.cfg.MaxAreaKm2 {
		res.fail(RuleAreaBounds, CodeAreaBounds,
			"area %.6f km2 outside allowed range [%g, %g]", areaKm2, v.cfg.MinAreaKm2, v.cfg.MaxAreaKm2)
	}

	v.checkSideLengths(vs, res)
	checkAdvisories(vs, res)
	return res
}

// checkCoordinates reports range violations and returns false when a
// coordinate is not finite.
func (v *Validator) checkCoordinates(ring Ring, res *Result) bool {
	var outOfRange int
	firstBad := -1
	for i, p := range ring {
		if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) || math.IsInf(p.Lon, 0) || math.IsInf(p.Lat, 0) {
			res.fail(RuleCoordinateRange, CodeNonFinite, "point %d has a non-finite coordinate", i)
			return false
		}
		if p.Lon < -180 || p.Lon > 180 || p.Lat < -90 || p.Lat > 90 {
			outOfRange++
			if firstBad < 0 {
				firstBad = i
			}
		}
	}
	if outOfRange > 0 {
		p := ring[firstBad]
		res.fail(RuleCoordinateRange, CodeOutOfRange,
			"%d point(s) outside lon [-180, 180] / lat [-90, 90], first at index %d (%g, %g)",
			outOfRange, firstBad, p.Lon, p.Lat)
	}
	return true
}

func (v *Validator) checkDegeneracy(vs []Point, res *Result) {
	n := len(vs)
	for i := range vs {
		a, b := vs[i], vs[(i+1)%n]
		if math.Hypot(b.Lon-a.Lon, b.Lat-a.Lat) < DuplicateTolerance {
			res.fail(RuleDegenerate, CodeDuplicateVertex,
				"vertices %d and %d are duplicates", i, (i+1)%n)
			break
		}
	}

	if allCollinear(vs) {
		res.fail(RuleDegenerate, CodeCollinear, "all %d vertices are collinear", n)
	}
}

// allCollinear reports whether every vertex lies on the line through the
// first vertex and the first vertex distinct from it.
func allCollinear(vs []Point) bool {
	origin := vs[0]
	var dx, dy float64
	found := false
	for _, p := range vs[1:] {
		dx, dy = p.Lon-origin.Lon, p.Lat-origin.Lat
		if math.Hypot(dx, dy) >= DuplicateTolerance {
			found = true
			break
		}
	}
	if !found {
		return true
	}
	dlen := math.Hypot(dx, dy)
	for _, p := range vs[1:] {
		ex, ey := p.Lon-origin.Lon, p.Lat-origin.Lat
		elen := math.Hypot(ex, ey)
		if elen < DuplicateTolerance {
			continue
		}
		if math.Abs(dx*ey-dy*ex) > collinearSine*dlen*elen {
			return false
		}
	}
	return true
}

// checkSelfIntersection tests every pair of non-adjacent edges. Edge i runs
// from vertex i to vertex i+1; the last edge closes the ring and shares a
// vertex with edge 0, so that pair is skipped along with consecutive edges.
func checkSelfIntersection(vs []Point, res *Result) {
	n := len(vs)
	var crossings int
	firstI, firstJ := -1, -1
	for i := 0; i < n; i++ {
		a1, a2 := vs[i], vs[(i+1)%n]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if SegmentsCross(a1, a2, vs[j], vs[(j+1)%n]) {
				crossings++
				if firstI < 0 {
					firstI, firstJ = i, j
				}
			}
		}
	}
	if crossings > 0 {
		res.fail(RuleSelfIntersection, CodeSelfIntersection,
			"ring self-intersects at %d edge pair(s), first between edges %d and %d", crossings, firstI, firstJ)
	}
}

func (v *Validator) checkSideLengths(vs []Point, res *Result) {
	n := len(vs)
	var bad int
	firstBad := -1
	var firstLen float64
	for i := range vs {
		l := EdgeMeters(vs[i], vs[(i+1)%n])
		if l < v.cfg.MinSideMeters || l > v.cfg.MaxSideMeters {
			bad++
			if firstBad < 0 {
				firstBad, firstLen = i, l
			}
		}
	}
	if bad > 0 {
		res.fail(RuleSideLength, CodeSideLength,
			"%d edge(s) outside [%g, %g] m, first is edge %d at %.3f m",
			bad, v.cfg.MinSideMeters, v.cfg.MaxSideMeters, firstBad, firstLen)
	}
}

func checkAdvisories(vs []Point, res *Result) {
	n := len(vs)
	for i := range vs {
		if math.Abs(vs[(i+1)%n].Lon-vs[i].Lon) > 180 {
			res.warn(RuleAntimeridian, CodeAntimeridian,
				"edge %d spans more than 180 degrees of longitude; the ring likely crosses the antimeridian", i)
			break
		}
	}
	bb := res.Metadata.BoundingBox
	if bb.MaxLat > highLatitude || bb.MinLat < -highLatitude {
		res.warn(RuleHighLatitude, CodeHighLatitude,
			"ring extends beyond ±%g degrees latitude; planar metrics are unreliable there", highLatitude)
	}
}
