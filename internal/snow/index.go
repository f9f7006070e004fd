package snow

import (
	"fmt"

	"github.com/couchcryptid/snowsense/internal/raster"
	"gonum.org/v1/gonum/mat"
)

const (
	// Epsilon guards the index denominator against zero.
	Epsilon = 1e-6

	// DefaultThreshold is the NDSI value above which a cell counts as snow.
	DefaultThreshold = 0.4

	// DefaultNIRThreshold separates dry (above) from wet (at or below) snow.
	DefaultNIRThreshold = 0.3

	// DefaultResolution is the Sentinel-2 ground sample distance in metres.
	DefaultResolution = 10.0
)

// NormalizedDifference computes (a - b) / (a + b + Epsilon) cell by cell.
func NormalizedDifference(a, b *mat.Dense) (*mat.Dense, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return nil, &raster.ShapeMismatchError{What: "band", WantRows: ar, WantCols: ac, GotRows: br, GotCols: bc}
	}

	var num, den, out mat.Dense
	num.Sub(a, b)
	den.Add(a, b)
	den.Apply(func(_, _ int, v float64) float64 { return v + Epsilon }, &den)
	out.DivElem(&num, &den)
	return &out, nil
}

// NDSI returns the normalized difference snow index of the stack's green and
// swir1 bands.
func NDSI(stack *raster.Stack) (*mat.Dense, error) {
	green, err := stack.Band(raster.Green)
	if err != nil {
		return nil, err
	}
	swir, err := stack.Band(raster.SWIR1)
	if err != nil {
		return nil, err
	}
	return NormalizedDifference(green, swir)
}

// ComputeIndex thresholds the NDSI into a snow mask.
func ComputeIndex(stack *raster.Stack, threshold float64) (*raster.Mask, raster.Summary, error) {
	ndsi, err := NDSI(stack)
	if err != nil {
		return nil, raster.Summary{}, err
	}

	rows, cols := ndsi.Dims()
	mask := raster.NewMaskFunc(rows, cols, func(i, j int) bool {
		return ndsi.At(i, j) > threshold
	})

	n := mask.Count()
	return mask, raster.NewSummary(
		fmt.Sprintf("Snow pixels detected: %d", n),
		map[string]float64{"snow_pixels": float64(n)},
	), nil
}

// Classify splits a snow mask into dry and wet snow using the NIR band.
func Classify(stack *raster.Stack, snowMask *raster.Mask, nirThreshold float64) (dry, wet *raster.Mask, summary raster.Summary, err error) {
	nir, err := stack.Band(raster.NIR)
	if err != nil {
		return nil, nil, raster.Summary{}, err
	}

	rows, cols := stack.Dims()
	if err := snowMask.CheckShape("snow mask", rows, cols); err != nil {
		return nil, nil, raster.Summary{}, err
	}

	dry = raster.NewMaskFunc(rows, cols, func(i, j int) bool {
		return snowMask.At(i, j) && nir.At(i, j) > nirThreshold
	})
	// Negated rather than <= so a NaN NIR cell still lands in exactly one mask.
	wet = raster.NewMaskFunc(rows, cols, func(i, j int) bool {
		return snowMask.At(i, j) && !(nir.At(i, j) > nirThreshold)
	})

	d, w := dry.Count(), wet.Count()
	return dry, wet, raster.NewSummary(
		fmt.Sprintf("Dry snow: %d, Wet snow: %d", d, w),
		map[string]float64{"dry_pixels": float64(d), "wet_pixels": float64(w)},
	), nil
}

// ComputeArea converts the set cells of a mask into square kilometres.
func ComputeArea(mask *raster.Mask, resolution float64) (float64, raster.Summary) {
	pixelArea := resolution * resolution / 1e6
	area := float64(mask.Count()) * pixelArea
	return area, raster.NewSummary(
		fmt.Sprintf("Total snow area: %.2f km²", area),
		map[string]float64{"area_km2": area},
	)
}
