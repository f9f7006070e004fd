package stacker

import (
	"errors"
	"fmt"
	"os"

	"github.com/couchcryptid/snowsense/internal/raster"
	"gopkg.in/yaml.v3"
)

// BandSpec locates one band inside a region directory.
type BandSpec struct {
	Role       raster.BandRole `yaml:"role"`
	File       string          `yaml:"file"`
	Resolution float64         `yaml:"resolution"`
}

// Manifest describes which files make up a stack and which band defines the
// target grid. Bands are stacked in manifest order.
type Manifest struct {
	Sensor    string          `yaml:"sensor"`
	Reference raster.BandRole `yaml:"reference"`
	Bands     []BandSpec      `yaml:"bands"`
}

// Sentinel2 returns the Level-2A layout: four 10 m bands and two 20 m SWIR
// bands, stacked onto the B02 grid.
func Sentinel2() Manifest {
	return Manifest{
		Sensor:    "sentinel-2",
		Reference: raster.Blue,
		Bands: []BandSpec{
			{Role: raster.Blue, File: "B02_10m.jp2", Resolution: 10},
			{Role: raster.Green, File: "B03_10m.jp2", Resolution: 10},
			{Role: raster.Red, File: "B04_10m.jp2", Resolution: 10},
			{Role: raster.NIR, File: "B08_10m.jp2", Resolution: 10},
			{Role: raster.SWIR1, File: "B11_20m.jp2", Resolution: 20},
			{Role: raster.SWIR2, File: "B12_20m.jp2", Resolution: 20},
		},
	}
}

// LoadManifest reads a YAML manifest and validates it.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// SaveManifest writes m as YAML after validating it.
func SaveManifest(path string, m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Validate checks that the manifest can produce a stack. The reference band
// must be the finest band since it is never downsampled.
func (m Manifest) Validate() error {
	if len(m.Bands) == 0 {
		return errors.New("manifest has no bands")
	}

	seen := make(map[raster.BandRole]bool, len(m.Bands))
	for _, b := range m.Bands {
		switch {
		case b.Role == "":
			return fmt.Errorf("band %q has no role", b.File)
		case b.File == "":
			return fmt.Errorf("band %q has no file", b.Role)
		case !(b.Resolution > 0):
			return fmt.Errorf("band %q resolution must be positive, got %g", b.Role, b.Resolution)
		case seen[b.Role]:
			return fmt.Errorf("duplicate band role %q", b.Role)
		}
		seen[b.Role] = true
	}

	ref, ok := m.Band(m.Reference)
	if !ok {
		return fmt.Errorf("reference band %q is not listed", m.Reference)
	}
	for _, b := range m.Bands {
		if b.Resolution < ref.Resolution {
			return fmt.Errorf("band %q (%gm) is finer than reference %q (%gm)",
				b.Role, b.Resolution, ref.Role, ref.Resolution)
		}
	}
	return nil
}

// Band returns the spec for a role.
func (m Manifest) Band(role raster.BandRole) (BandSpec, bool) {
	for _, b := range m.Bands {
		if b.Role == role {
			return b, true
		}
	}
	return BandSpec{}, false
}

// Roles returns the band roles in stacking order.
func (m Manifest) Roles() []raster.BandRole {
	roles := make([]raster.BandRole, len(m.Bands))
	for i, b := range m.Bands {
		roles[i] = b.Role
	}
	return roles
}
