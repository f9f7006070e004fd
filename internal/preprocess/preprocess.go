// Package preprocess provides optional band conditioning applied between
// stacking and index computation.
package preprocess

import (
	"context"
	"fmt"
	"math"

	"github.com/couchcryptid/snowsense/internal/raster"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultSigma is the Gaussian standard deviation in pixels.
	DefaultSigma = 1.0
	// MaxSigma bounds the kernel radius at 4*MaxSigma cells.
	MaxSigma = 1000.0

	// truncate is the kernel half-width in standard deviations.
	truncate = 4.0

	epsilon = 1e-6
)

// Normalize rescales each band independently to (v - min) / (max - min + 1e-6).
// A constant band becomes all zeros.
func Normalize(ctx context.Context, stack *raster.Stack) (*raster.Stack, error) {
	return mapBands(ctx, stack, func(band *mat.Dense) *mat.Dense {
		lo, hi := mat.Min(band), mat.Max(band)
		scale := hi - lo + epsilon

		var out mat.Dense
		out.Apply(func(_, _ int, v float64) float64 { return (v - lo) / scale }, band)
		return &out
	})
}

// Denoise smooths each band with a separable Gaussian of the given sigma,
// truncated at four standard deviations, reflecting at the edges
// (d c b a | a b c d | d c b a). Sigma 0 returns a copy.
func Denoise(ctx context.Context, stack *raster.Stack, sigma float64) (*raster.Stack, error) {
	if math.IsNaN(sigma) || sigma < 0 || sigma > MaxSigma {
		return nil, fmt.Errorf("denoise: sigma must be in [0, %g], got %g", MaxSigma, sigma)
	}
	if sigma == 0 {
		return stack.Clone(), nil
	}

	kernel := gaussianKernel(sigma)
	return mapBands(ctx, stack, func(band *mat.Dense) *mat.Dense {
		rows, cols := band.Dims()
		tmp := mat.NewDense(rows, cols, nil)
		out := mat.NewDense(rows, cols, nil)

		line := make([]float64, max(rows, cols))
		for i := 0; i < rows; i++ {
			mat.Row(line[:cols], i, band)
			for j := 0; j < cols; j++ {
				tmp.Set(i, j, convolveAt(line[:cols], j, kernel))
			}
		}
		for j := 0; j < cols; j++ {
			mat.Col(line[:rows], j, tmp)
			for i := 0; i < rows; i++ {
				out.Set(i, j, convolveAt(line[:rows], i, kernel))
			}
		}
		return out
	})
}

// mapBands applies fn to every band concurrently and preserves stack order.
func mapBands(ctx context.Context, stack *raster.Stack, fn func(*mat.Dense) *mat.Dense) (*raster.Stack, error) {
	bands := make([]*mat.Dense, stack.Len())
	g, gctx := errgroup.WithContext(ctx)
	for i := range bands {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bands[i] = fn(stack.At(i))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stack.WithBands(bands)
}

// gaussianKernel returns normalized weights for offsets -r..r.
func gaussianKernel(sigma float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	w := make([]float64, 2*radius+1)
	for k := -radius; k <= radius; k++ {
		x := float64(k)
		w[k+radius] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}

func convolveAt(line []float64, pos int, kernel []float64) float64 {
	radius := len(kernel) / 2
	var sum float64
	for k, w := range kernel {
		sum += w * line[reflect(pos+k-radius, len(line))]
	}
	return sum
}

// reflect folds an out-of-range index back into [0, n) by half-sample symmetry.
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
