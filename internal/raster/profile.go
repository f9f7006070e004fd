package raster

import (
	"errors"
	"math"
)

// Affine maps pixel (col, row) to world (x, y) using the GDAL/rasterio
// coefficient layout:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// NorthUp builds the common axis-aligned transform with the origin at the
// upper-left corner and square pixels of the given size.
func NorthUp(originX, originY, pixelSize float64) Affine {
	return Affine{A: pixelSize, C: originX, E: -pixelSize, F: originY}
}

// Apply maps a fractional pixel position to world coordinates.
func (t Affine) Apply(col, row float64) (x, y float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// Invert returns the world-to-pixel transform.
func (t Affine) Invert() (Affine, error) {
	det := t.A*t.E - t.B*t.D
	if det == 0 || math.IsNaN(det) {
		return Affine{}, errors.New("affine transform is not invertible")
	}
	ia := t.E / det
	ib := -t.B / det
	id := -t.D / det
	ie := t.A / det
	return Affine{
		A: ia, B: ib, C: -(ia*t.C + ib*t.F),
		D: id, E: ie, F: -(id*t.C + ie*t.F),
	}, nil
}

// Translate moves the origin to the pixel (col, row), as when cropping a window.
func (t Affine) Translate(col, row int) Affine {
	x, y := t.Apply(float64(col), float64(row))
	out := t
	out.C, out.F = x, y
	return out
}

// PixelSize returns the ground size of a pixel edge along each axis.
func (t Affine) PixelSize() (width, height float64) {
	return math.Hypot(t.A, t.D), math.Hypot(t.B, t.E)
}

// Bounds is an axis-aligned world extent.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// GeoProfile binds a grid to a coordinate reference system. It travels with
// its Stack; any operation that changes the grid shape returns a new profile.
type GeoProfile struct {
	Transform Affine   `json:"transform" msgpack:"transform"`
	CRS       string   `json:"crs" msgpack:"crs"`
	Height    int      `json:"height" msgpack:"height"`
	Width     int      `json:"width" msgpack:"width"`
	NoData    *float64 `json:"nodata,omitempty" msgpack:"nodata,omitempty"`
}

// Bounds returns the world extent covered by the grid.
func (p GeoProfile) Bounds() Bounds {
	b := Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	corners := [4][2]float64{{0, 0}, {float64(p.Width), 0}, {0, float64(p.Height)}, {float64(p.Width), float64(p.Height)}}
	for _, c := range corners {
		x, y := p.Transform.Apply(c[0], c[1])
		b.MinX = math.Min(b.MinX, x)
		b.MinY = math.Min(b.MinY, y)
		b.MaxX = math.Max(b.MaxX, x)
		b.MaxY = math.Max(b.MaxY, y)
	}
	return b
}

// Background is the fill value for cells masked out of a clipped grid.
func (p GeoProfile) Background() float64 {
	if p.NoData != nil {
		return *p.NoData
	}
	return 0
}

// Check returns a ShapeMismatchError when the profile does not describe the stack.
func (p GeoProfile) Check(s *Stack) error {
	rows, cols := s.Dims()
	if rows != p.Height || cols != p.Width {
		return &ShapeMismatchError{
			What:     "profile",
			WantRows: rows, WantCols: cols,
			GotRows: p.Height, GotCols: p.Width,
		}
	}
	return nil
}
