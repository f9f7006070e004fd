// Command gensynth writes a synthetic region for demos and tests: one ESRI
// ASCII grid per band, a manifest.yaml describing them, and a region catalog
// entry pointing at the directory.
//
// Usage:
//
//	go run ./cmd/gensynth \
//	  -data-dir Data \
//	  -region Demo_Valley \
//	  -catalog Data/regions.yaml
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/couchcryptid/snowsense/internal/catalog"
	"github.com/couchcryptid/snowsense/internal/stacker"
	"github.com/couchcryptid/snowsense/internal/synth"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	def := synth.Default()

	dataDir := flag.String("data-dir", "Data", "data directory to write the region into")
	region := flag.String("region", "Demo_Valley", "region key, also used as the directory name")
	catalogOut := flag.String("catalog", "", "write a region catalog YAML here (optional)")
	manifestIn := flag.String("manifest", "", "band manifest to render (default: Sentinel-2 layout)")
	rows := flag.Int("rows", def.Rows, "reference grid rows")
	cols := flag.Int("cols", def.Cols, "reference grid columns")
	pixel := flag.Float64("pixel-size", def.PixelSize, "reference pixel edge in metres")
	seed := flag.Uint64("seed", def.Seed, "noise seed")
	flag.Parse()

	manifest := stacker.Sentinel2()
	if *manifestIn != "" {
		var err error
		if manifest, err = stacker.LoadManifest(*manifestIn); err != nil {
			return err
		}
	}

	opts := def
	opts.Rows, opts.Cols, opts.PixelSize, opts.Seed = *rows, *cols, *pixel, *seed

	dir := filepath.Join(*dataDir, *region)
	written, err := synth.Write(dir, manifest, opts)
	if err != nil {
		return fmt.Errorf("write region %s: %w", *region, err)
	}
	for _, b := range written.Bands {
		log.Printf("%-6s %s (%g m)", b.Role, filepath.Join(dir, b.File), b.Resolution)
	}

	scene := synth.NewScene(opts)
	dry, wet := scene.ExpectedSnow()
	log.Printf("expected snow pixels: dry=%d wet=%d", dry, wet)

	if *catalogOut != "" {
		if err := catalog.SaveRegions(*catalogOut, []catalog.Region{scene.Region(*region, *region)}); err != nil {
			return err
		}
		log.Printf("catalog: %s", *catalogOut)
	}
	return nil
}
