package stacker

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Bilinear resamples src onto a rows x cols grid covering the same extent.
// Cell centres are aligned, so destination cell (i, j) samples the source at
//
//	((i + 0.5) * srcRows / rows - 0.5, (j + 0.5) * srcCols / cols - 0.5)
//
// with positions clamped to the source edge. This matches the bilinear
// resampling used by GDAL when reprojecting onto a finer grid.
func Bilinear(src *mat.Dense, rows, cols int) *mat.Dense {
	srcRows, srcCols := src.Dims()
	if srcRows == rows && srcCols == cols {
		return mat.DenseCopyOf(src)
	}

	rowIdx := samplePositions(rows, srcRows)
	colIdx := samplePositions(cols, srcCols)

	out := mat.NewDense(rows, cols, nil)
	for i, ry := range rowIdx {
		for j, cx := range colIdx {
			top := lerp(src.At(ry.lo, cx.lo), src.At(ry.lo, cx.hi), cx.frac)
			bottom := lerp(src.At(ry.hi, cx.lo), src.At(ry.hi, cx.hi), cx.frac)
			out.Set(i, j, lerp(top, bottom, ry.frac))
		}
	}
	return out
}

type sample struct {
	lo, hi int
	frac   float64
}

// samplePositions precomputes the neighbouring source indices for each
// destination index along one axis.
func samplePositions(dstN, srcN int) []sample {
	scale := float64(srcN) / float64(dstN)
	last := float64(srcN - 1)

	out := make([]sample, dstN)
	for d := range out {
		pos := (float64(d)+0.5)*scale - 0.5
		pos = math.Max(0, math.Min(pos, last))
		lo := int(math.Floor(pos))
		hi := lo + 1
		if hi > srcN-1 {
			hi = srcN - 1
		}
		out[d] = sample{lo: lo, hi: hi, frac: pos - float64(lo)}
	}
	return out
}

func lerp(a, b, t float64) float64 {
	if t == 0 {
		return a
	}
	return a + (b-a)*t
}
