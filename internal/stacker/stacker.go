// Package stacker co-registers the bands of a region directory onto the grid
// of a reference band.
package stacker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/snowsense/internal/raster"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Grid is one decoded band with its georeferencing.
type Grid struct {
	Data    *mat.Dense
	Profile raster.GeoProfile
}

// GridReader decodes a single-band raster file. Implementations must be safe
// for concurrent use.
type GridReader interface {
	ReadGrid(ctx context.Context, path string) (Grid, error)
}

// Option configures a Stacker.
type Option func(*Stacker)

// WithWorkers bounds the number of bands read concurrently.
func WithWorkers(n int) Option {
	return func(s *Stacker) {
		if n > 0 {
			s.workers = n
		}
	}
}

// Stacker builds band stacks for region directories laid out by a Manifest.
type Stacker struct {
	manifest Manifest
	reader   GridReader
	logger   *slog.Logger
	workers  int
}

// New creates a Stacker. The manifest is assumed valid; see Manifest.Validate.
func New(manifest Manifest, reader GridReader, logger *slog.Logger, opts ...Option) *Stacker {
	s := &Stacker{
		manifest: manifest,
		reader:   reader,
		logger:   logger,
		workers:  4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Manifest returns the layout the stacker reads.
func (s *Stacker) Manifest() Manifest { return s.manifest }

// Stack reads every manifest band from dir and returns them on the reference
// grid together with the reference profile.
func (s *Stacker) Stack(ctx context.Context, dir string) (*raster.Stack, raster.GeoProfile, error) {
	start := time.Now()

	if err := s.locate(dir); err != nil {
		return nil, raster.GeoProfile{}, err
	}

	refSpec, ok := s.manifest.Band(s.manifest.Reference)
	if !ok {
		return nil, raster.GeoProfile{}, &raster.MissingBandError{Role: s.manifest.Reference}
	}
	ref, err := s.read(ctx, dir, refSpec)
	if err != nil {
		return nil, raster.GeoProfile{}, err
	}
	rows, cols := ref.Data.Dims()
	if ref.Profile.Height != rows || ref.Profile.Width != cols {
		return nil, raster.GeoProfile{}, &raster.DimensionMismatchError{
			Role:     refSpec.Role,
			WantRows: ref.Profile.Height, WantCols: ref.Profile.Width,
			GotRows: rows, GotCols: cols,
		}
	}

	bands := make([]*mat.Dense, len(s.manifest.Bands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, spec := range s.manifest.Bands {
		if spec.Role == refSpec.Role {
			bands[i] = ref.Data
			continue
		}
		g.Go(func() error {
			grid, err := s.read(gctx, dir, spec)
			if err != nil {
				return err
			}
			band, err := s.align(spec, refSpec, grid.Data, rows, cols)
			if err != nil {
				return err
			}
			bands[i] = band
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, raster.GeoProfile{}, err
	}

	stack, err := raster.NewStack(s.manifest.Roles(), bands)
	if err != nil {
		return nil, raster.GeoProfile{}, fmt.Errorf("stack bands: %w", err)
	}

	s.logger.Debug("bands stacked",
		"dir", dir,
		"bands", stack.Len(),
		"rows", rows,
		"cols", cols,
		"duration", time.Since(start),
	)
	return stack, ref.Profile, nil
}

// locate fails fast on the first absent band before any decoding starts.
func (s *Stacker) locate(dir string) error {
	for _, spec := range s.manifest.Bands {
		path := filepath.Join(dir, spec.File)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return &raster.MissingBandError{Role: spec.Role, Path: path}
			}
			return &raster.GridReadError{Path: path, Err: err}
		}
	}
	return nil
}

func (s *Stacker) read(ctx context.Context, dir string, spec BandSpec) (Grid, error) {
	path := filepath.Join(dir, spec.File)
	grid, err := s.reader.ReadGrid(ctx, path)
	if err != nil {
		var readErr *raster.GridReadError
		if errors.As(err, &readErr) {
			return Grid{}, err
		}
		return Grid{}, &raster.GridReadError{Path: path, Err: err}
	}
	if grid.Data == nil {
		return Grid{}, &raster.GridReadError{Path: path, Err: errors.New("reader returned no data")}
	}
	return grid, nil
}

// align resamples a band coarser than the reference onto the reference grid.
// Bands at the reference resolution must already match it.
func (s *Stacker) align(spec, ref BandSpec, data *mat.Dense, rows, cols int) (*mat.Dense, error) {
	if spec.Resolution > ref.Resolution {
		srcRows, srcCols := data.Dims()
		s.logger.Debug("resampling band",
			"role", spec.Role,
			"from_rows", srcRows, "from_cols", srcCols,
			"to_rows", rows, "to_cols", cols,
		)
		data = Bilinear(data, rows, cols)
	}

	r, c := data.Dims()
	if r != rows || c != cols {
		return nil, &raster.DimensionMismatchError{
			Role:     spec.Role,
			WantRows: rows, WantCols: cols,
			GotRows: r, GotCols: c,
		}
	}
	return data, nil
}
