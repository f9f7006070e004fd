package synth_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/snowsense/internal/gridio"
	"github.com/couchcryptid/snowsense/internal/raster"
	"github.com/couchcryptid/snowsense/internal/snow"
	"github.com/couchcryptid/snowsense/internal/stacker"
	"github.com/couchcryptid/snowsense/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_StacksIntoExpectedScene(t *testing.T) {
	dir := t.TempDir()
	opts := synth.Default()

	m, err := synth.Write(dir, stacker.Sentinel2(), opts)
	require.NoError(t, err)
	require.Len(t, m.Bands, 6)
	assert.Equal(t, "B11_20m.asc", m.Bands[4].File)

	loaded, err := stacker.LoadManifest(filepath.Join(dir, synth.ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	coarse, err := gridio.ReadASCII(context.Background(), filepath.Join(dir, "B12_20m.asc"))
	require.NoError(t, err)
	assert.Equal(t, 60, coarse.Profile.Height)
	assert.Equal(t, "EPSG:32632", coarse.Profile.CRS)

	st := stacker.New(loaded, gridio.Reader{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	stack, profile, err := st.Stack(context.Background(), dir)
	require.NoError(t, err)
	rows, cols := stack.Dims()
	assert.Equal(t, opts.Rows, rows)
	assert.Equal(t, opts.Cols, cols)
	assert.Equal(t, raster.NorthUp(opts.OriginX, opts.OriginY, opts.PixelSize), profile.Transform)

	mask, _, err := snow.ComputeIndex(stack, snow.DefaultThreshold)
	require.NoError(t, err)
	dry, wet, _, err := snow.Classify(stack, mask, snow.DefaultNIRThreshold)
	require.NoError(t, err)

	wantDry, wantWet := synth.NewScene(opts).ExpectedSnow()
	// Resampled SWIR blurs the disk edge by at most one coarse cell.
	assert.InEpsilon(t, wantDry+wantWet, mask.Count(), 0.05)
	assert.InEpsilon(t, wantDry, dry.Count(), 0.05)
	assert.InEpsilon(t, wantWet, wet.Count(), 0.05)
	assert.Equal(t, mask.Count(), dry.Count()+wet.Count())
}

func TestWrite_Deterministic(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	_, err := synth.Write(a, stacker.Sentinel2(), synth.Default())
	require.NoError(t, err)
	_, err = synth.Write(b, stacker.Sentinel2(), synth.Default())
	require.NoError(t, err)

	x, err := os.ReadFile(filepath.Join(a, "B03_10m.asc"))
	require.NoError(t, err)
	y, err := os.ReadFile(filepath.Join(b, "B03_10m.asc"))
	require.NoError(t, err)
	assert.Equal(t, x, y)
}

func TestWrite_RejectsBadOptions(t *testing.T) {
	opts := synth.Default()
	opts.Rows = 0
	_, err := synth.Write(t.TempDir(), stacker.Sentinel2(), opts)
	require.Error(t, err)

	_, err = synth.Write(t.TempDir(), stacker.Manifest{}, synth.Default())
	require.Error(t, err)
}

func TestScene_RegionClip(t *testing.T) {
	scene := synth.NewScene(synth.Default())
	r := scene.Region("Demo_Valley", "demo")

	assert.Equal(t, "Demo Valley", r.Name)
	assert.Equal(t, "demo", r.Dir)
	poly, ok := r.Clip("centre")
	require.True(t, ok)
	require.NoError(t, poly.Validate())

	b := poly.Bounds()
	assert.InDelta(t, 600300, b.MinX, 1e-9)
	assert.InDelta(t, 600900, b.MaxX, 1e-9)
	assert.InDelta(t, 4999100, b.MinY, 1e-9)
	assert.InDelta(t, 4999700, b.MaxY, 1e-9)
}
