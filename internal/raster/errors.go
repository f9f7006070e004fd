package raster

import "fmt"

// MissingBandError reports a required band that is absent from a region
// directory or from a stack.
type MissingBandError struct {
	Role BandRole
	Path string
}

func (e *MissingBandError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("missing band %q: %s not found", e.Role, e.Path)
	}
	return fmt.Sprintf("missing band %q", e.Role)
}

// GridReadError wraps a failure of the raster decoding backend.
type GridReadError struct {
	Path string
	Err  error
}

func (e *GridReadError) Error() string {
	return fmt.Sprintf("read grid %s: %v", e.Path, e.Err)
}

func (e *GridReadError) Unwrap() error { return e.Err }

// DimensionMismatchError reports a band that did not land on the reference grid.
type DimensionMismatchError struct {
	Role               BandRole
	WantRows, WantCols int
	GotRows, GotCols   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("band %q is %dx%d, reference grid is %dx%d",
		e.Role, e.GotRows, e.GotCols, e.WantRows, e.WantCols)
}

// InvalidPolygonError reports a degenerate clip polygon.
type InvalidPolygonError struct {
	Reason string
}

func (e *InvalidPolygonError) Error() string {
	return "invalid polygon: " + e.Reason
}

// NoIntersectionError reports a clip polygon entirely outside the raster extent.
type NoIntersectionError struct {
	Polygon Bounds
	Raster  Bounds
}

func (e *NoIntersectionError) Error() string {
	return fmt.Sprintf("polygon [%g %g, %g %g] does not intersect raster [%g %g, %g %g]",
		e.Polygon.MinX, e.Polygon.MinY, e.Polygon.MaxX, e.Polygon.MaxY,
		e.Raster.MinX, e.Raster.MinY, e.Raster.MaxX, e.Raster.MaxY)
}

// ShapeMismatchError reports grids that should share height and width but do not.
type ShapeMismatchError struct {
	What               string
	WantRows, WantCols int
	GotRows, GotCols   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s shape %dx%d does not match %dx%d",
		e.What, e.GotRows, e.GotCols, e.WantRows, e.WantCols)
}
