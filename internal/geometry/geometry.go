// Package geometry provides planar polygon metrics and the ring validator that
// gates whether a drawn or uploaded polygon may become an asset.
//
// All metrics are planar (equirectangular) approximations. They are accurate
// enough at city and facility scale and are not geodesic.
package geometry

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Tolerances.
const (
	// ClosureTolerance is the maximum coordinate difference between the first
	// and last point of a closed ring.
	ClosureTolerance = 1e-10
	// DuplicateTolerance is the distance below which consecutive vertices are
	// considered duplicates.
	DuplicateTolerance = 1e-10
	// collinearSine bounds |sin| of the angle between two direction vectors
	// for them to count as collinear.
	collinearSine = 1e-10
)

// MetersPerDegree is the length of one degree of latitude used by the planar
// approximation.
const MetersPerDegree = 111320.0

// SRID for WGS84 geographic coordinates.
const SRID = 4326

// Point is a geographic position in degrees.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Ring is an ordered sequence of positions describing a polygon exterior.
// A well-formed ring repeats its first point at the end.
type Ring []Point

// BBox represents a geographic bounding box.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// Width returns the longitudinal extent in degrees.
func (b BBox) Width() float64 { return b.MaxLng - b.MinLng }

// Height returns the latitudinal extent in degrees.
func (b BBox) Height() float64 { return b.MaxLat - b.MinLat }

// MeanLat returns the latitude halfway between the box edges.
func (b BBox) MeanLat() float64 { return (b.MinLat + b.MaxLat) / 2 }

// NewRing builds a ring from (lon, lat) pairs.
func NewRing(coords ...[2]float64) Ring {
	r := make(Ring, len(coords))
	for i, c := range coords {
		r[i] = Point{Lon: c[0], Lat: c[1]}
	}
	return r
}

// IsClosed reports whether the first and last points coincide within
// ClosureTolerance.
func (r Ring) IsClosed() bool {
	if len(r) < 2 {
		return false
	}
	first, last := r[0], r[len(r)-1]
	return math.Abs(first.Lon-last.Lon) <= ClosureTolerance &&
		math.Abs(first.Lat-last.Lat) <= ClosureTolerance
}

// Vertices returns the distinct vertices of the ring: the closing point is
// dropped when present. The returned slice shares no memory with r.
func (r Ring) Vertices() []Point {
	n := len(r)
	if r.IsClosed() {
		n--
	}
	out := make([]Point, n)
	copy(out, r[:n])
	return out
}

// Closed returns a copy of r that repeats its first point at the end.
func (r Ring) Closed() Ring {
	vs := r.Vertices()
	if len(vs) == 0 {
		return Ring{}
	}
	return append(Ring(vs), vs[0])
}

// Clone returns a deep copy of r.
func (r Ring) Clone() Ring {
	out := make(Ring, len(r))
	copy(out, r)
	return out
}

// Bounds returns the bounding box of the ring.
func (r Ring) Bounds() BBox {
	if len(r) == 0 {
		return BBox{}
	}
	b := BBox{MinLng: r[0].Lon, MaxLng: r[0].Lon, MinLat: r[0].Lat, MaxLat: r[0].Lat}
	for _, p := range r[1:] {
		b.MinLng = math.Min(b.MinLng, p.Lon)
		b.MaxLng = math.Max(b.MaxLng, p.Lon)
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
	}
	return b
}

// SignedArea returns the shoelace area in square degrees:
// 0.5 * sum(x_i*y_{i+1} - x_{i+1}*y_i). Counter-clockwise rings are positive.
func (r Ring) SignedArea() float64 {
	return signedArea(r.Vertices())
}

// Area returns the absolute shoelace area in square degrees.
func (r Ring) Area() float64 {
	return math.Abs(r.SignedArea())
}

// AreaKm2 converts the shoelace area to square kilometers using the
// equirectangular scale at the ring's mean latitude.
func (r Ring) AreaKm2() float64 {
	return DegreesToKm2(r.Area(), r.Bounds().MeanLat())
}

// Perimeter returns the planar perimeter in degrees.
func (r Ring) Perimeter() float64 {
	vs := r.Vertices()
	var total float64
	for i := range vs {
		a, b := vs[i], vs[(i+1)%len(vs)]
		total += math.Hypot(b.Lon-a.Lon, b.Lat-a.Lat)
	}
	return total
}

// PerimeterKm returns the perimeter in kilometers.
func (r Ring) PerimeterKm() float64 {
	vs := r.Vertices()
	var total float64
	for i := range vs {
		total += EdgeMeters(vs[i], vs[(i+1)%len(vs)])
	}
	return total / 1000
}

// Centroid returns the area-weighted planar centroid. Rings with zero area
// fall back to the mean of their vertices.
func (r Ring) Centroid() Point {
	vs := r.Vertices()
	if len(vs) == 0 {
		return Point{}
	}
	a := signedArea(vs)
	if math.Abs(a) < 1e-24 {
		return vertexMean(vs)
	}
	o := vs[0]
	var cx, cy float64
	for i := range vs {
		p, q := local(vs[i], o), local(vs[(i+1)%len(vs)], o)
		f := p.Lon*q.Lat - q.Lon*p.Lat
		cx += (p.Lon + q.Lon) * f
		cy += (p.Lat + q.Lat) * f
	}
	return Point{Lon: o.Lon + cx/(6*a), Lat: o.Lat + cy/(6*a)}
}

// Contains reports whether p lies inside the ring using the even-odd
// ray-casting rule.
func (r Ring) Contains(p Point) bool {
	return PointInRing(r.Vertices(), p)
}

// PointInRing applies the even-odd ray-casting rule against an implicitly
// closed vertex list. Callers testing many points should compute the vertex
// list once.
func PointInRing(vs []Point, p Point) bool {
	inside := false
	for i, j := 0, len(vs)-1; i < len(vs); j, i = i, i+1 {
		a, b := vs[i], vs[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			x := (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if p.Lon < x {
				inside = !inside
			}
		}
	}
	return inside
}

// SegmentsCross applies the parametric intersection test to segments p1-p2
// and q1-q2. It solves p1 + λr = q1 + γs through the 2x2 determinant of the
// direction vectors and reports a crossing only when both parameters lie
// strictly inside (0, 1). Parallel segments never cross.
func SegmentsCross(p1, p2, q1, q2 Point) bool {
	rx, ry := p2.Lon-p1.Lon, p2.Lat-p1.Lat
	sx, sy := q2.Lon-q1.Lon, q2.Lat-q1.Lat
	denom := rx*sy - ry*sx
	if denom == 0 {
		return false
	}
	qpx, qpy := q1.Lon-p1.Lon, q1.Lat-p1.Lat
	lambda := (qpx*sy - qpy*sx) / denom
	gamma := (qpx*ry - qpy*rx) / denom
	return lambda > 0 && lambda < 1 && gamma > 0 && gamma < 1
}

// EdgeMeters returns the planar length of a-b in meters.
func EdgeMeters(a, b Point) float64 {
	midLat := (a.Lat + b.Lat) / 2
	dx := (b.Lon - a.Lon) * MetersPerDegree * math.Cos(midLat*math.Pi/180)
	dy := (b.Lat - a.Lat) * MetersPerDegree
	return math.Hypot(dx, dy)
}

// DegreesToKm2 converts an area in square degrees at the given latitude to
// square kilometers.
func DegreesToKm2(areaDeg2, lat float64) float64 {
	km := MetersPerDegree / 1000
	return areaDeg2 * km * km * math.Cos(lat*math.Pi/180)
}

// Polygon converts the ring to a go-geom polygon with SRID 4326. The ring is
// closed if necessary.
func (r Ring) Polygon() *geom.Polygon {
	closed := r.Closed()
	coords := make([]geom.Coord, len(closed))
	for i, p := range closed {
		coords[i] = geom.Coord{p.Lon, p.Lat}
	}
	poly := geom.NewPolygon(geom.XY)
	if len(coords) > 0 {
		poly.MustSetCoords([][]geom.Coord{coords})
	}
	return poly.SetSRID(SRID)
}

// RingFromPolygon extracts the exterior ring of a go-geom polygon. Interior
// rings are ignored.
func RingFromPolygon(p *geom.Polygon) (Ring, error) {
	if p == nil || p.NumLinearRings() == 0 {
		return nil, eris.New("geometry: polygon has no exterior ring")
	}
	coords := p.LinearRing(0).Coords()
	r := make(Ring, len(coords))
	for i, c := range coords {
		r[i] = Point{Lon: c.X(), Lat: c.Y()}
	}
	return r, nil
}

// signedArea runs the shoelace sum relative to the first vertex so small
// rings far from the origin keep their precision.
func signedArea(vs []Point) float64 {
	if len(vs) == 0 {
		return 0
	}
	o := vs[0]
	var sum float64
	for i := range vs {
		p, q := local(vs[i], o), local(vs[(i+1)%len(vs)], o)
		sum += p.Lon*q.Lat - q.Lon*p.Lat
	}
	return sum / 2
}

func local(p, origin Point) Point {
	return Point{Lon: p.Lon - origin.Lon, Lat: p.Lat - origin.Lat}
}

func vertexMean(vs []Point) Point {
	var c Point
	for _, p := range vs {
		c.Lon += p.Lon
		c.Lat += p.Lat
	}
	n := float64(len(vs))
	return Point{Lon: c.Lon / n, Lat: c.Lat / n}
}
