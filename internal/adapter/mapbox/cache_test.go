package mapbox

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/snowsense/internal/domain"
	"github.com/couchcryptid/snowsense/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type countingGeocoder struct {
	calls  int
	result domain.GeocodingResult
	err    error
}

func (m *countingGeocoder) ForwardGeocode(_ context.Context, _ string) (domain.GeocodingResult, error) {
	m.calls++
	return m.result, m.err
}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_Hit(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{Lat: 35.42, Lon: 77.10, PlaceName: "Siachen Glacier", FormattedAddress: "Siachen Glacier, Ladakh"},
	}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedGeocoder(inner, 10, metrics)

	r1, err := cached.ForwardGeocode(context.Background(), "Siachen Glacier")
	require.NoError(t, err)
	r2, err := cached.ForwardGeocode(context.Background(), "  siachen   GLACIER ")
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, inner.calls, "whitespace and case differences share a cache entry")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("forward", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("forward", "miss")))
}

func TestCachedGeocoder_DifferentQueriesMiss(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{PlaceName: "Place", FormattedAddress: "Place"},
	}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.ForwardGeocode(context.Background(), "Zermatt")
	_, _ = cached.ForwardGeocode(context.Background(), "Lhasa")

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoder_EmptyAndErrorsNotCached(t *testing.T) {
	inner := &countingGeocoder{}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.ForwardGeocode(context.Background(), "Atlantis")
	_, _ = cached.ForwardGeocode(context.Background(), "Atlantis")
	assert.Equal(t, 2, inner.calls)

	inner.err = errors.New("boom")
	_, err := cached.ForwardGeocode(context.Background(), "Atlantis")
	require.Error(t, err)
	assert.Zero(t, cached.cache.len())
}

// --- LRU cache unit tests ---

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.GeocodingResult{PlaceName: "A"})
	c.put("b", domain.GeocodingResult{PlaceName: "B"})
	c.get("a")
	c.put("c", domain.GeocodingResult{PlaceName: "C"})

	_, ok := c.get("b")
	assert.False(t, ok, "b was least recently used")

	for _, k := range []string{"a", "c"} {
		_, ok := c.get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.GeocodingResult{PlaceName: "A1"})
	c.put("a", domain.GeocodingResult{PlaceName: "A2"})

	result, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, "A2", result.PlaceName)
	assert.Equal(t, 1, c.len())
}

func TestLRUCache_MinimumCapacity(t *testing.T) {
	c := newLRUCache(0)
	c.put("a", domain.GeocodingResult{})
	c.put("b", domain.GeocodingResult{})
	assert.Equal(t, 1, c.len())
}
