// Package clip restricts a band stack to the cells inside a region polygon.
package clip

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/snowsense/internal/raster"
	"github.com/paulmach/orb"
)

// Clipper validates clip requests and delegates rasterization to a Masker.
type Clipper struct {
	masker Masker
	logger *slog.Logger
}

// New creates a Clipper. A nil masker selects GeometryMasker with centre sampling.
func New(masker Masker, logger *slog.Logger) *Clipper {
	if masker == nil {
		masker = GeometryMasker{}
	}
	return &Clipper{masker: masker, logger: logger}
}

// Clip crops the stack to the polygon's window, filling cells outside the
// polygon with the background value, and returns the matching profile.
func (c *Clipper) Clip(ctx context.Context, stack *raster.Stack, profile raster.GeoProfile, polygon Polygon) (*raster.Stack, raster.GeoProfile, error) {
	if err := polygon.Validate(); err != nil {
		return nil, raster.GeoProfile{}, err
	}
	if err := profile.Check(stack); err != nil {
		return nil, raster.GeoProfile{}, err
	}

	footprint := footprintRing(profile)
	if !ringsIntersect(polygon.Ring(), footprint) {
		return nil, raster.GeoProfile{}, &raster.NoIntersectionError{
			Polygon: polygon.Bounds(),
			Raster:  profile.Bounds(),
		}
	}

	clipped, out, err := c.masker.Mask(ctx, stack, profile, polygon)
	if err != nil {
		return nil, raster.GeoProfile{}, err
	}

	c.logger.Debug("stack clipped",
		"from_rows", profile.Height, "from_cols", profile.Width,
		"to_rows", out.Height, "to_cols", out.Width,
	)
	return clipped, out, nil
}

// footprintRing is the raster extent as a closed ring, exact for rotated grids.
func footprintRing(p raster.GeoProfile) orb.Ring {
	pt := func(col, row int) orb.Point {
		x, y := p.Transform.Apply(float64(col), float64(row))
		return orb.Point{x, y}
	}
	return orb.Ring{pt(0, 0), pt(p.Width, 0), pt(p.Width, p.Height), pt(0, p.Height), pt(0, 0)}
}
