package raster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewStack_EqualShapes(t *testing.T) {
	s, err := NewStack(
		[]BandRole{Green, SWIR1},
		[]*mat.Dense{mat.NewDense(2, 3, nil), mat.NewDense(2, 3, nil)},
	)
	require.NoError(t, err)

	rows, cols := s.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []BandRole{Green, SWIR1}, s.Roles())
}

func TestNewStack_ShapeMismatch(t *testing.T) {
	_, err := NewStack(
		[]BandRole{Green, SWIR1},
		[]*mat.Dense{mat.NewDense(2, 3, nil), mat.NewDense(3, 3, nil)},
	)

	var shapeErr *ShapeMismatchError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, 3, shapeErr.GotRows)
}

func TestNewStack_DuplicateRole(t *testing.T) {
	_, err := NewStack(
		[]BandRole{Green, Green},
		[]*mat.Dense{mat.NewDense(1, 1, nil), mat.NewDense(1, 1, nil)},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestStack_BandMissingRole(t *testing.T) {
	s, err := NewStack([]BandRole{Green}, []*mat.Dense{mat.NewDense(1, 1, nil)})
	require.NoError(t, err)

	_, err = s.Band(NIR)
	var missing *MissingBandError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, NIR, missing.Role)
}

func TestStack_CloneIsDeep(t *testing.T) {
	band := mat.NewDense(1, 2, []float64{1, 2})
	s, err := NewStack([]BandRole{Red}, []*mat.Dense{band})
	require.NoError(t, err)

	c := s.Clone()
	c.At(0).Set(0, 0, 99)
	assert.Equal(t, 1.0, s.At(0).At(0, 0))
}

func TestAffine_InvertRoundTrip(t *testing.T) {
	tr := Affine{A: 10, B: 2, C: 500000, D: 1, E: -10, F: 4000000}
	inv, err := tr.Invert()
	require.NoError(t, err)

	x, y := tr.Apply(12.5, 7.25)
	col, row := inv.Apply(x, y)
	assert.InDelta(t, 12.5, col, 1e-9)
	assert.InDelta(t, 7.25, row, 1e-9)
}

func TestAffine_InvertSingular(t *testing.T) {
	_, err := Affine{}.Invert()
	assert.Error(t, err)
}

func TestAffine_Translate(t *testing.T) {
	tr := NorthUp(300000, 5100000, 10)
	moved := tr.Translate(5, 3)
	assert.Equal(t, 300050.0, moved.C)
	assert.Equal(t, 5099970.0, moved.F)
	assert.Equal(t, tr.A, moved.A)
	assert.Equal(t, tr.E, moved.E)
}

func TestGeoProfile_Bounds(t *testing.T) {
	p := GeoProfile{Transform: NorthUp(100, 200, 10), Height: 4, Width: 3}
	assert.Equal(t, Bounds{MinX: 100, MinY: 160, MaxX: 130, MaxY: 200}, p.Bounds())
}

func TestGeoProfile_Check(t *testing.T) {
	s, err := NewStack([]BandRole{Red}, []*mat.Dense{mat.NewDense(2, 2, nil)})
	require.NoError(t, err)

	assert.NoError(t, GeoProfile{Height: 2, Width: 2}.Check(s))

	var shapeErr *ShapeMismatchError
	assert.ErrorAs(t, GeoProfile{Height: 3, Width: 2}.Check(s), &shapeErr)
}

func TestGeoProfile_Background(t *testing.T) {
	assert.Equal(t, 0.0, GeoProfile{}.Background())
	nd := -9999.0
	assert.Equal(t, -9999.0, GeoProfile{NoData: &nd}.Background())
}

func TestMask_CountAndCells(t *testing.T) {
	m := NewMaskFunc(2, 3, func(i, j int) bool { return (i+j)%2 == 0 })
	assert.Equal(t, 3, m.Count())
	assert.True(t, m.At(0, 0))
	assert.False(t, m.At(0, 1))

	round, err := MaskFromCells(2, 3, m.Cells())
	require.NoError(t, err)
	assert.Equal(t, m.Cells(), round.Cells())

	_, err = MaskFromCells(2, 2, m.Cells())
	assert.Error(t, err)
}

func TestMask_NilCount(t *testing.T) {
	var m *Mask
	assert.Equal(t, 0, m.Count())

	var shapeErr *ShapeMismatchError
	assert.ErrorAs(t, m.CheckShape("mask", 2, 3), &shapeErr)
}

func TestSummary_CopiesValues(t *testing.T) {
	values := map[string]float64{"snow_pixels": 4}
	s := NewSummary("Snow pixels detected: 4", values)
	values["snow_pixels"] = 9

	assert.Equal(t, 4.0, s.Values["snow_pixels"])
	assert.Equal(t, "Snow pixels detected: 4", s.String())
}

func TestGridReadError_Unwraps(t *testing.T) {
	inner := errors.New("corrupt header")
	err := error(&GridReadError{Path: "B02.asc", Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "B02.asc")
}
