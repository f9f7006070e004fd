package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/snowsense/internal/domain"
	"github.com/couchcryptid/snowsense/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockGeocoder struct {
	result domain.GeocodingResult
	err    error
	calls  int
}

func (m *mockGeocoder) ForwardGeocode(_ context.Context, _ string) (domain.GeocodingResult, error) {
	m.calls++
	return m.result, m.err
}

// --- tests ---

func builtinCatalog(t *testing.T, opts ...Option) *Catalog {
	t.Helper()
	c, err := New(Builtin(), opts...)
	require.NoError(t, err)
	return c
}

func TestBuiltin_ClipsAreValid(t *testing.T) {
	c := builtinCatalog(t)
	require.Len(t, c.Regions(), 3)

	alps, ok := c.Lookup("European_Alps")
	require.True(t, ok)
	assert.Equal(t, []string{"Region 1", "Region 2"}, alps.ClipNames())

	p, ok := alps.Clip("region 2")
	require.True(t, ok)
	assert.Equal(t, raster.Bounds{MinX: 350000, MinY: 5050000, MaxX: 370000, MaxY: 5070000}, p.Bounds())
}

func TestLookup(t *testing.T) {
	c := builtinCatalog(t)

	tests := []struct {
		query string
		want  string
	}{
		{"European_Alps", "European_Alps"},
		{"european alps", "European_Alps"},
		{"  EUROPEAN-ALPS ", "European_Alps"},
		{"Show me snow in the Alps please", "European_Alps"},
		{"siachen", "Siachen"},
		{"Siachen Glacier", "Siachen"},
		{"tibet", "Central_Tibetan_Plateau"},
		{"central tibetan", "Central_Tibetan_Plateau"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r, ok := c.Lookup(tt.query)
			require.True(t, ok)
			assert.Equal(t, tt.want, r.Key)
		})
	}

	for _, q := range []string{"", "Andes", "al"} {
		_, ok := c.Lookup(q)
		assert.False(t, ok, "query %q", q)
	}
}

func TestResolve_CatalogHitSkipsGeocoder(t *testing.T) {
	g := &mockGeocoder{}
	c := builtinCatalog(t, WithGeocoder(g))

	r, err := c.Resolve(context.Background(), "alps")
	require.NoError(t, err)
	assert.Equal(t, "European_Alps", r.Key)
	assert.Zero(t, g.calls)
}

func TestResolve_GeocodedInsideBounds(t *testing.T) {
	g := &mockGeocoder{result: domain.GeocodingResult{Lat: 45.83, Lon: 6.86, PlaceName: "Chamonix"}}
	c := builtinCatalog(t, WithGeocoder(g))

	r, err := c.Resolve(context.Background(), "Chamonix")
	require.NoError(t, err)
	assert.Equal(t, "European_Alps", r.Key)
	assert.Equal(t, 1, g.calls)
}

func TestResolve_NotFound(t *testing.T) {
	t.Run("no geocoder", func(t *testing.T) {
		_, err := builtinCatalog(t).Resolve(context.Background(), "Andes")
		assert.ErrorIs(t, err, ErrRegionNotFound)
	})

	t.Run("geocoded outside every region", func(t *testing.T) {
		g := &mockGeocoder{result: domain.GeocodingResult{Lat: -32.65, Lon: -70.01}}
		_, err := builtinCatalog(t, WithGeocoder(g)).Resolve(context.Background(), "Aconcagua")
		assert.ErrorIs(t, err, ErrRegionNotFound)
	})

	t.Run("geocoder empty result", func(t *testing.T) {
		g := &mockGeocoder{}
		_, err := builtinCatalog(t, WithGeocoder(g)).Resolve(context.Background(), "Nowhere")
		assert.ErrorIs(t, err, ErrRegionNotFound)
	})

	t.Run("geocoder error", func(t *testing.T) {
		g := &mockGeocoder{err: errors.New("circuit open")}
		_, err := builtinCatalog(t, WithGeocoder(g)).Resolve(context.Background(), "Chamonix")
		assert.ErrorIs(t, err, ErrRegionNotFound)
	})
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	dup := append(Builtin(), Region{Key: "european-alps"})
	_, err = New(dup)
	assert.ErrorContains(t, err, "duplicate")

	bad := Builtin()
	bad[0].Clips = append(bad[0].Clips, NamedClip{Name: "line", Polygon: rect(0, 0, 0, 10)})
	_, err = New(bad)
	var invalid *raster.InvalidPolygonError
	assert.ErrorAs(t, err, &invalid)
}

func TestLoadRegions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
regions:
  - key: Demo
    name: Synthetic Demo
    aliases: [synthetic]
    bounds: [10, 45, 11, 46]
    clips:
      - name: Centre
        polygon: [[20, 20], [20, 60], [60, 60], [60, 20]]
`), 0o600))

	regions, err := LoadRegions(path)
	require.NoError(t, err)
	require.Len(t, regions, 1)

	r := regions[0]
	assert.Equal(t, "Demo", r.Dir)
	assert.Equal(t, 46.0, r.Bounds.Max.Y())
	p, ok := r.Clip("centre")
	require.True(t, ok)
	require.NoError(t, p.Validate())

	c, err := New(regions)
	require.NoError(t, err)
	_, ok = c.Lookup("synthetic")
	assert.True(t, ok)
}

func TestLoadRegions_BadBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("regions:\n  - key: X\n    bounds: [1, 2]\n"), 0o600))

	_, err := LoadRegions(path)
	assert.ErrorContains(t, err, "bounds")
}

func TestSaveRegions_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, SaveRegions(path, Builtin()))

	regions, err := LoadRegions(path)
	require.NoError(t, err)
	assert.Equal(t, Builtin(), regions)
}
