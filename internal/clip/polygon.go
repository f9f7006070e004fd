package clip

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/couchcryptid/snowsense/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Vertex is a polygon corner in the raster CRS: easting/longitude in X,
// northing/latitude in Y. It encodes to JSON as [x, y].
type Vertex struct {
	X, Y float64
}

func (v Vertex) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{v.X, v.Y})
}

func (v *Vertex) UnmarshalJSON(data []byte) error {
	var xy [2]float64
	if err := json.Unmarshal(data, &xy); err != nil {
		return fmt.Errorf("vertex must be [x, y]: %w", err)
	}
	v.X, v.Y = xy[0], xy[1]
	return nil
}

// Polygon is a simple polygon given by its outer ring. The closing vertex may
// be repeated or omitted.
type Polygon []Vertex

// FromPairs builds a polygon from [x, y] pairs.
func FromPairs(pairs [][2]float64) Polygon {
	p := make(Polygon, len(pairs))
	for i, xy := range pairs {
		p[i] = Vertex{X: xy[0], Y: xy[1]}
	}
	return p
}

// FromGeoJSON decodes a GeoJSON Polygon geometry. Holes are rejected.
func FromGeoJSON(data []byte) (Polygon, error) {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	poly, ok := g.Geometry().(orb.Polygon)
	if !ok {
		return nil, &raster.InvalidPolygonError{Reason: fmt.Sprintf("unsupported geometry type %s", g.Geometry().GeoJSONType())}
	}
	if len(poly) == 0 {
		return nil, &raster.InvalidPolygonError{Reason: "polygon has no rings"}
	}
	if len(poly) > 1 {
		return nil, &raster.InvalidPolygonError{Reason: "polygons with holes are not supported"}
	}
	out := make(Polygon, len(poly[0]))
	for i, pt := range poly[0] {
		out[i] = Vertex{X: pt.X(), Y: pt.Y()}
	}
	return out, nil
}

// Pairs returns the vertices as [x, y] pairs.
func (p Polygon) Pairs() [][2]float64 {
	out := make([][2]float64, len(p))
	for i, v := range p {
		out[i] = [2]float64{v.X, v.Y}
	}
	return out
}

// vertices drops a repeated closing vertex and consecutive duplicates.
func (p Polygon) vertices() []orb.Point {
	pts := make([]orb.Point, 0, len(p))
	for _, v := range p {
		pt := orb.Point{v.X, v.Y}
		if len(pts) > 0 && pts[len(pts)-1] == pt {
			continue
		}
		pts = append(pts, pt)
	}
	for len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	return pts
}

// Ring returns the polygon as a closed orb ring.
func (p Polygon) Ring() orb.Ring {
	pts := p.vertices()
	if len(pts) == 0 {
		return nil
	}
	return append(orb.Ring(pts), pts[0])
}

// Bound returns the axis-aligned bounding box of the polygon.
func (p Polygon) Bound() orb.Bound {
	return p.Ring().Bound()
}

// Bounds is Bound expressed as raster bounds.
func (p Polygon) Bounds() raster.Bounds {
	b := p.Bound()
	return raster.Bounds{MinX: b.Min.X(), MinY: b.Min.Y(), MaxX: b.Max.X(), MaxY: b.Max.Y()}
}

// Validate reports an InvalidPolygonError for polygons that cannot bound an
// area: too few vertices, non-finite coordinates, crossing or touching edges,
// or zero area.
func (p Polygon) Validate() error {
	for i, v := range p {
		if math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsInf(v.X, 0) || math.IsInf(v.Y, 0) {
			return &raster.InvalidPolygonError{Reason: fmt.Sprintf("vertex %d is not finite", i)}
		}
	}

	pts := p.vertices()
	if len(pts) < 3 {
		return &raster.InvalidPolygonError{Reason: fmt.Sprintf("need at least 3 distinct vertices, got %d", len(pts))}
	}

	seen := make(map[orb.Point]bool, len(pts))
	for _, pt := range pts {
		if seen[pt] {
			return &raster.InvalidPolygonError{Reason: fmt.Sprintf("vertex %v repeats", pt)}
		}
		seen[pt] = true
	}

	if i, j, ok := selfIntersection(pts); ok {
		return &raster.InvalidPolygonError{Reason: fmt.Sprintf("edges %d and %d intersect", i, j)}
	}

	if planar.Area(orb.Polygon{p.Ring()}) == 0 {
		return &raster.InvalidPolygonError{Reason: "polygon has zero area"}
	}
	return nil
}

// selfIntersection returns the first pair of non-adjacent edges that cross or touch.
func selfIntersection(pts []orb.Point) (int, int, bool) {
	n := len(pts)
	for i := 0; i < n; i++ {
		a1, a2 := pts[i], pts[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				if collinearOverlap(a1, a2, pts[j], pts[(j+1)%n]) {
					return i, j, true
				}
				continue
			}
			if segmentsIntersect(a1, a2, pts[j], pts[(j+1)%n]) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func orientation(a, b, c orb.Point) int {
	v := (b.X()-a.X())*(c.Y()-a.Y()) - (b.Y()-a.Y())*(c.X()-a.X())
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a.X(), b.X()) <= p.X() && p.X() <= math.Max(a.X(), b.X()) &&
		math.Min(a.Y(), b.Y()) <= p.Y() && p.Y() <= math.Max(a.Y(), b.Y())
}

// segmentsIntersect reports whether segments ab and cd share any point.
func segmentsIntersect(a, b, c, d orb.Point) bool {
	o1, o2 := orientation(a, b, c), orientation(a, b, d)
	o3, o4 := orientation(c, d, a), orientation(c, d, b)

	if o1 != o2 && o3 != o4 {
		return true
	}
	switch {
	case o1 == 0 && onSegment(a, b, c):
		return true
	case o2 == 0 && onSegment(a, b, d):
		return true
	case o3 == 0 && onSegment(c, d, a):
		return true
	case o4 == 0 && onSegment(c, d, b):
		return true
	}
	return false
}

// collinearOverlap catches adjacent edges that fold back onto each other.
// Adjacent edges share one endpoint; any further shared point is a spike.
func collinearOverlap(a, b, c, d orb.Point) bool {
	if orientation(a, b, c) != 0 || orientation(a, b, d) != 0 {
		return false
	}
	return (b == c && (onSegment(a, b, d) || onSegment(c, d, a))) ||
		(a == d && (onSegment(a, b, c) || onSegment(c, d, b)))
}
