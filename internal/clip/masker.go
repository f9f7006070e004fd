package clip

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/couchcryptid/snowsense/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/mat"
)

// Masker crops a stack to a polygon's window and fills the cells outside the
// polygon with the profile's background value. The polygon has already been
// validated and is known to intersect the raster.
type Masker interface {
	Mask(ctx context.Context, stack *raster.Stack, profile raster.GeoProfile, polygon Polygon) (*raster.Stack, raster.GeoProfile, error)
}

// GeometryMasker rasterizes polygons with orb's planar predicates.
type GeometryMasker struct {
	// AllTouched keeps every cell whose footprint touches the polygon instead
	// of only cells whose centre lies inside it.
	AllTouched bool
}

var coveragePool = sync.Pool{
	New: func() any {
		buf := make([]bool, 0, 1024)
		return &buf
	},
}

func getCoverage(n int) *[]bool {
	buf := coveragePool.Get().(*[]bool)
	if cap(*buf) < n {
		*buf = make([]bool, n)
	}
	*buf = (*buf)[:n]
	clear(*buf)
	return buf
}

// snap absorbs float error when a bound falls on a pixel edge.
const snap = 1e-6

// window is a half-open pixel rectangle.
type window struct {
	col0, row0, col1, row1 int
}

func (w window) rows() int { return w.row1 - w.row0 }
func (w window) cols() int { return w.col1 - w.col0 }

// Mask implements Masker.
func (m GeometryMasker) Mask(ctx context.Context, stack *raster.Stack, profile raster.GeoProfile, polygon Polygon) (*raster.Stack, raster.GeoProfile, error) {
	win, err := cropWindow(profile, polygon)
	if err != nil {
		return nil, raster.GeoProfile{}, err
	}

	rows, cols := win.rows(), win.cols()
	coverage := getCoverage(rows * cols)
	defer coveragePool.Put(coverage)

	ring := polygon.Ring()
	for i := 0; i < rows; i++ {
		if err := ctx.Err(); err != nil {
			return nil, raster.GeoProfile{}, err
		}
		for j := 0; j < cols; j++ {
			(*coverage)[i*cols+j] = m.covers(profile.Transform, ring, win.col0+j, win.row0+i)
		}
	}

	background := profile.Background()
	bands := make([]*mat.Dense, stack.Len())
	for b := range bands {
		src := stack.At(b).Slice(win.row0, win.row1, win.col0, win.col1)
		out := mat.DenseCopyOf(src)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if !(*coverage)[i*cols+j] {
					out.Set(i, j, background)
				}
			}
		}
		bands[b] = out
	}

	clipped, err := stack.WithBands(bands)
	if err != nil {
		return nil, raster.GeoProfile{}, fmt.Errorf("build clipped stack: %w", err)
	}

	out := profile
	out.Transform = profile.Transform.Translate(win.col0, win.row0)
	out.Height, out.Width = rows, cols
	return clipped, out, nil
}

// covers decides whether source cell (col, row) belongs to the polygon.
func (m GeometryMasker) covers(t raster.Affine, ring orb.Ring, col, row int) bool {
	if !m.AllTouched {
		x, y := t.Apply(float64(col)+0.5, float64(row)+0.5)
		return planar.RingContains(ring, orb.Point{x, y})
	}
	return ringsIntersect(cellRing(t, col, row), ring)
}

// cropWindow maps the intersection of the polygon and raster bounds to the
// enclosing pixel window.
func cropWindow(profile raster.GeoProfile, polygon Polygon) (window, error) {
	inv, err := profile.Transform.Invert()
	if err != nil {
		return window{}, fmt.Errorf("crop window: %w", err)
	}

	pb, rb := polygon.Bounds(), profile.Bounds()
	ib := raster.Bounds{
		MinX: math.Max(pb.MinX, rb.MinX), MinY: math.Max(pb.MinY, rb.MinY),
		MaxX: math.Min(pb.MaxX, rb.MaxX), MaxY: math.Min(pb.MaxY, rb.MaxY),
	}

	minC, minR := math.Inf(1), math.Inf(1)
	maxC, maxR := math.Inf(-1), math.Inf(-1)
	for _, c := range [4][2]float64{{ib.MinX, ib.MinY}, {ib.MinX, ib.MaxY}, {ib.MaxX, ib.MinY}, {ib.MaxX, ib.MaxY}} {
		col, row := inv.Apply(c[0], c[1])
		minC, maxC = math.Min(minC, col), math.Max(maxC, col)
		minR, maxR = math.Min(minR, row), math.Max(maxR, row)
	}

	w := window{
		col0: clampInt(int(math.Floor(minC+snap)), 0, profile.Width),
		row0: clampInt(int(math.Floor(minR+snap)), 0, profile.Height),
		col1: clampInt(int(math.Ceil(maxC-snap)), 0, profile.Width),
		row1: clampInt(int(math.Ceil(maxR-snap)), 0, profile.Height),
	}
	if w.rows() <= 0 || w.cols() <= 0 {
		return window{}, &raster.NoIntersectionError{Polygon: pb, Raster: rb}
	}
	return w, nil
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// cellRing is the closed footprint of one pixel in world coordinates.
func cellRing(t raster.Affine, col, row int) orb.Ring {
	c, r := float64(col), float64(row)
	pt := func(dc, dr float64) orb.Point {
		x, y := t.Apply(c+dc, r+dr)
		return orb.Point{x, y}
	}
	return orb.Ring{pt(0, 0), pt(1, 0), pt(1, 1), pt(0, 1), pt(0, 0)}
}

// ringsIntersect reports whether two closed rings share any point, including
// one lying wholly inside the other.
func ringsIntersect(a, b orb.Ring) bool {
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	for _, pt := range a {
		if planar.RingContains(b, pt) {
			return true
		}
	}
	for _, pt := range b {
		if planar.RingContains(a, pt) {
			return true
		}
	}
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}
