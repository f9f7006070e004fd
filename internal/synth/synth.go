// Package synth writes small synthetic scenes in the on-disk layout the
// stacker reads. They back local demos and end-to-end tests where real
// Sentinel-2 tiles are not available.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/snowsense/internal/catalog"
	"github.com/couchcryptid/snowsense/internal/clip"
	"github.com/couchcryptid/snowsense/internal/gridio"
	"github.com/couchcryptid/snowsense/internal/raster"
	"github.com/couchcryptid/snowsense/internal/stacker"
	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
)

// ManifestFile is the manifest name written next to the bands.
const ManifestFile = "manifest.yaml"

// Options controls the generated scene. The reference grid is Rows x Cols
// cells of PixelSize metres anchored at the north-west corner.
type Options struct {
	Rows      int
	Cols      int
	PixelSize float64
	OriginX   float64
	OriginY   float64
	CRS       string
	Seed      uint64
}

// Default returns a 120 x 120 tile at 10 m in UTM zone 32N.
func Default() Options {
	return Options{
		Rows:      120,
		Cols:      120,
		PixelSize: 10,
		OriginX:   600000,
		OriginY:   5000000,
		CRS:       "EPSG:32632",
		Seed:      1,
	}
}

type surface int

const (
	bare surface = iota
	drySnow
	wetSnow
)

// Reflectances per surface. Snow is bright in green and dark in SWIR; the
// dry/wet split comes from NIR only.
var reflectance = map[surface]map[raster.BandRole]float64{
	bare:    {raster.Blue: 0.15, raster.Green: 0.2, raster.Red: 0.25, raster.NIR: 0.3, raster.SWIR1: 0.3, raster.SWIR2: 0.25},
	drySnow: {raster.Blue: 0.85, raster.Green: 0.8, raster.Red: 0.75, raster.NIR: 0.6, raster.SWIR1: 0.1, raster.SWIR2: 0.08},
	wetSnow: {raster.Blue: 0.7, raster.Green: 0.65, raster.Red: 0.6, raster.NIR: 0.2, raster.SWIR1: 0.05, raster.SWIR2: 0.04},
}

const noise = 0.01

// Scene describes the disk of snow at the centre of the tile. The northern
// half is dry snow, the southern half wet.
type Scene struct {
	Opts    Options
	CenterX float64
	CenterY float64
	Radius  float64
}

// NewScene places the snow disk for opts.
func NewScene(opts Options) Scene {
	w := float64(opts.Cols) * opts.PixelSize
	h := float64(opts.Rows) * opts.PixelSize
	return Scene{
		Opts:    opts,
		CenterX: opts.OriginX + w/2,
		CenterY: opts.OriginY - h/2,
		Radius:  0.35 * math.Min(w, h),
	}
}

func (s Scene) surfaceAt(x, y float64) surface {
	if math.Hypot(x-s.CenterX, y-s.CenterY) > s.Radius {
		return bare
	}
	if y >= s.CenterY {
		return drySnow
	}
	return wetSnow
}

// ExpectedSnow counts reference cells whose centre lies inside the disk.
func (s Scene) ExpectedSnow() (dry, wet int) {
	px := s.Opts.PixelSize
	for r := range s.Opts.Rows {
		y := s.Opts.OriginY - (float64(r)+0.5)*px
		for c := range s.Opts.Cols {
			x := s.Opts.OriginX + (float64(c)+0.5)*px
			switch s.surfaceAt(x, y) {
			case drySnow:
				dry++
			case wetSnow:
				wet++
			}
		}
	}
	return dry, wet
}

// Centre is a square clip over the middle quarter of the tile.
func (s Scene) Centre() clip.Polygon {
	w := float64(s.Opts.Cols) * s.Opts.PixelSize
	h := float64(s.Opts.Rows) * s.Opts.PixelSize
	x0, x1 := s.Opts.OriginX+w/4, s.Opts.OriginX+3*w/4
	y0, y1 := s.Opts.OriginY-3*h/4, s.Opts.OriginY-h/4
	return clip.FromPairs([][2]float64{{x0, y0}, {x0, y1}, {x1, y1}, {x1, y0}})
}

// Region returns a catalog entry for a scene written under dir. Its bounds
// are a nominal lon/lat box; geocoded queries are not expected to hit it.
func (s Scene) Region(key, dir string) catalog.Region {
	return catalog.Region{
		Key:     key,
		Name:    strings.ReplaceAll(key, "_", " "),
		Aliases: []string{strings.ToLower(key)},
		Dir:     dir,
		Bounds:  orb.Bound{Min: orb.Point{7.5, 45}, Max: orb.Point{7.6, 45.1}},
		Clips:   []catalog.NamedClip{{Name: "Centre", Polygon: s.Centre()}},
	}
}

// Write renders every band of m into dir as ESRI ASCII grids and writes the
// matching manifest. Band file names keep their stem from m with the
// extension replaced. The returned manifest is the one written.
func Write(dir string, m stacker.Manifest, opts Options) (stacker.Manifest, error) {
	if opts.Rows <= 0 || opts.Cols <= 0 || opts.PixelSize <= 0 {
		return stacker.Manifest{}, errors.New("synth: rows, cols and pixel size must be positive")
	}
	if err := m.Validate(); err != nil {
		return stacker.Manifest{}, err
	}
	ref, _ := m.Band(m.Reference)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return stacker.Manifest{}, fmt.Errorf("create %s: %w", dir, err)
	}

	scene := NewScene(opts)
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	out := stacker.Manifest{Sensor: m.Sensor, Reference: m.Reference}
	for _, spec := range m.Bands {
		ratio := spec.Resolution / ref.Resolution
		rows := int(math.Ceil(float64(opts.Rows) / ratio))
		cols := int(math.Ceil(float64(opts.Cols) / ratio))
		px := opts.PixelSize * ratio

		data := mat.NewDense(rows, cols, nil)
		for r := range rows {
			y := opts.OriginY - (float64(r)+0.5)*px
			for c := range cols {
				x := opts.OriginX + (float64(c)+0.5)*px
				v := reflectance[scene.surfaceAt(x, y)][spec.Role] + noise*(2*rng.Float64()-1)
				data.Set(r, c, v)
			}
		}

		spec.File = strings.TrimSuffix(spec.File, filepath.Ext(spec.File)) + gridio.ExtASCII
		grid := stacker.Grid{
			Data: data,
			Profile: raster.GeoProfile{
				Transform: raster.NorthUp(opts.OriginX, opts.OriginY, px),
				CRS:       opts.CRS,
				Height:    rows,
				Width:     cols,
			},
		}
		if err := gridio.Write(filepath.Join(dir, spec.File), grid); err != nil {
			return stacker.Manifest{}, fmt.Errorf("write band %s: %w", spec.Role, err)
		}
		out.Bands = append(out.Bands, spec)
	}

	if err := stacker.SaveManifest(filepath.Join(dir, ManifestFile), out); err != nil {
		return stacker.Manifest{}, err
	}
	return out, nil
}
