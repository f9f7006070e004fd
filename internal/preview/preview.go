// Package preview renders band stacks and snow masks as PNG images.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/couchcryptid/snowsense/internal/raster"
	"gonum.org/v1/gonum/mat"
)

// DefaultDownsample keeps every fourth row and column.
const DefaultDownsample = 4

// Class palette indices.
const (
	ClassNone uint8 = 0
	ClassDry  uint8 = 1
	ClassWet  uint8 = 2
)

var (
	maskPalette  = color.Palette{color.Gray{Y: 0}, color.Gray{Y: 255}}
	classPalette = color.Palette{
		color.RGBA{A: 0},
		color.RGBA{R: 173, G: 216, B: 230, A: 255},
		color.RGBA{R: 0, G: 71, B: 171, A: 255},
	}
)

// RGB builds a true-colour composite from the red, green and blue bands, each
// stretched independently to 0-255.
func RGB(stack *raster.Stack, factor int) (*image.RGBA, error) {
	var bands [3]*mat.Dense
	for i, role := range []raster.BandRole{raster.Red, raster.Green, raster.Blue} {
		b, err := stack.Band(role)
		if err != nil {
			return nil, err
		}
		bands[i] = b
	}

	rows, cols := stack.Dims()
	h, w, err := scaledDims(rows, cols, factor)
	if err != nil {
		return nil, err
	}

	var scales [3]func(float64) uint8
	for i, b := range bands {
		scales[i] = stretch(b)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i, j := y*factor, x*factor
			img.SetRGBA(x, y, color.RGBA{
				R: scales[0](bands[0].At(i, j)),
				G: scales[1](bands[1].At(i, j)),
				B: scales[2](bands[2].At(i, j)),
				A: 255,
			})
		}
	}
	return img, nil
}

// Mask renders set cells white on black.
func Mask(m *raster.Mask, factor int) (*image.Paletted, error) {
	rows, cols := m.Dims()
	h, w, err := scaledDims(rows, cols, factor)
	if err != nil {
		return nil, err
	}

	img := image.NewPaletted(image.Rect(0, 0, w, h), maskPalette)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if m.At(y*factor, x*factor) {
				img.SetColorIndex(x, y, 1)
			}
		}
	}
	return img, nil
}

// Classes renders dry and wet snow as one image with ClassDry and ClassWet
// palette indices; everything else is transparent.
func Classes(dry, wet *raster.Mask, factor int) (*image.Paletted, error) {
	rows, cols := dry.Dims()
	if err := wet.CheckShape("wet mask", rows, cols); err != nil {
		return nil, err
	}
	h, w, err := scaledDims(rows, cols, factor)
	if err != nil {
		return nil, err
	}

	img := image.NewPaletted(image.Rect(0, 0, w, h), classPalette)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i, j := y*factor, x*factor
			switch {
			case dry.At(i, j):
				img.SetColorIndex(x, y, ClassDry)
			case wet.At(i, j):
				img.SetColorIndex(x, y, ClassWet)
			}
		}
	}
	return img, nil
}

// Encode writes img as PNG.
func Encode(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func scaledDims(rows, cols, factor int) (h, w int, err error) {
	if factor < 1 {
		return 0, 0, fmt.Errorf("downsample factor must be at least 1, got %d", factor)
	}
	if rows == 0 || cols == 0 {
		return 0, 0, fmt.Errorf("cannot render an empty %dx%d grid", rows, cols)
	}
	return (rows + factor - 1) / factor, (cols + factor - 1) / factor, nil
}

// stretch maps the finite range of b linearly onto 0-255. Constant bands map
// to 0 and NaN cells render black.
func stretch(b *mat.Dense) func(float64) uint8 {
	lo, hi := math.Inf(1), math.Inf(-1)
	rows, _ := b.Dims()
	for i := 0; i < rows; i++ {
		for _, v := range b.RawRowView(i) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	span := hi - lo
	return func(v float64) uint8 {
		if !(span > 0) || math.IsNaN(v) {
			return 0
		}
		s := (v - lo) / span * 255
		return uint8(math.Round(math.Max(0, math.Min(255, s))))
	}
}
