// Package raster holds the in-memory grid types shared by the snow analysis:
// band stacks, georeferencing profiles, boolean masks and summaries.
package raster

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// BandRole names the spectral meaning of a band within a stack.
type BandRole string

// Sentinel-2 band roles used by the snow analysis.
const (
	Blue  BandRole = "blue"
	Green BandRole = "green"
	Red   BandRole = "red"
	NIR   BandRole = "nir"
	SWIR1 BandRole = "swir1"
	SWIR2 BandRole = "swir2"
)

// Stack is an ordered set of co-registered bands sharing one grid shape.
// Bands are never mutated after construction; transforms build new stacks.
type Stack struct {
	roles []BandRole
	bands []*mat.Dense
	rows  int
	cols  int
}

// NewStack validates that every band has the same shape and that each role
// appears once, then returns the stack. The slices are copied; the band
// matrices are shared with the caller.
func NewStack(roles []BandRole, bands []*mat.Dense) (*Stack, error) {
	if len(roles) == 0 || len(roles) != len(bands) {
		return nil, fmt.Errorf("new stack: %d roles for %d bands", len(roles), len(bands))
	}

	seen := make(map[BandRole]bool, len(roles))
	rows, cols := bands[0].Dims()
	for i, b := range bands {
		if seen[roles[i]] {
			return nil, fmt.Errorf("new stack: duplicate band role %q", roles[i])
		}
		seen[roles[i]] = true

		r, c := b.Dims()
		if r != rows || c != cols {
			return nil, &ShapeMismatchError{
				What:     fmt.Sprintf("band %q", roles[i]),
				WantRows: rows, WantCols: cols,
				GotRows: r, GotCols: c,
			}
		}
	}

	return &Stack{
		roles: append([]BandRole(nil), roles...),
		bands: append([]*mat.Dense(nil), bands...),
		rows:  rows,
		cols:  cols,
	}, nil
}

// Dims returns the shared grid height and width.
func (s *Stack) Dims() (rows, cols int) { return s.rows, s.cols }

// Len returns the number of bands.
func (s *Stack) Len() int { return len(s.bands) }

// Roles returns the band ordering.
func (s *Stack) Roles() []BandRole { return append([]BandRole(nil), s.roles...) }

// At returns the i-th band in stack order.
func (s *Stack) At(i int) *mat.Dense { return s.bands[i] }

// Band returns the band for a role or a MissingBandError.
func (s *Stack) Band(role BandRole) (*mat.Dense, error) {
	for i, r := range s.roles {
		if r == role {
			return s.bands[i], nil
		}
	}
	return nil, &MissingBandError{Role: role}
}

// WithBands returns a stack with the same roles and replacement bands,
// re-checking the shape invariant.
func (s *Stack) WithBands(bands []*mat.Dense) (*Stack, error) {
	return NewStack(s.roles, bands)
}

// Clone deep-copies every band.
func (s *Stack) Clone() *Stack {
	bands := make([]*mat.Dense, len(s.bands))
	for i, b := range s.bands {
		bands[i] = mat.DenseCopyOf(b)
	}
	return &Stack{roles: s.Roles(), bands: bands, rows: s.rows, cols: s.cols}
}
