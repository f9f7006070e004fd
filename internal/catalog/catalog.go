// Package catalog maps user-facing region names to imagery directories and
// their predefined clip polygons.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/snowsense/internal/clip"
	"github.com/couchcryptid/snowsense/internal/domain"
	"github.com/paulmach/orb"
)

// ErrRegionNotFound is returned when a query matches no catalogued region.
var ErrRegionNotFound = errors.New("region not found")

// NamedClip is a predefined polygon within a region, in the region's raster CRS.
type NamedClip struct {
	Name    string
	Polygon clip.Polygon
}

// Region is one imagery tile available to the service.
type Region struct {
	Key     string
	Name    string
	Aliases []string
	// Dir is relative to the data directory.
	Dir string
	// Bounds is the WGS84 lon/lat extent used to match geocoded places.
	Bounds orb.Bound
	Clips  []NamedClip
}

// Clip returns the predefined polygon with the given name, ignoring case.
func (r Region) Clip(name string) (clip.Polygon, bool) {
	for _, c := range r.Clips {
		if strings.EqualFold(c.Name, name) {
			return c.Polygon, true
		}
	}
	return nil, false
}

// ClipNames lists the predefined polygons in catalog order.
func (r Region) ClipNames() []string {
	names := make([]string, len(r.Clips))
	for i, c := range r.Clips {
		names[i] = c.Name
	}
	return names
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithGeocoder enables resolving unknown place names by coordinates.
func WithGeocoder(g domain.Geocoder) Option {
	return func(c *Catalog) { c.geocoder = g }
}

// WithLogger sets the logger used for geocoding fallbacks.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// Catalog resolves region queries. It is read-only after construction.
type Catalog struct {
	regions  []Region
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// New validates the regions and builds a catalog.
func New(regions []Region, opts ...Option) (*Catalog, error) {
	if len(regions) == 0 {
		return nil, errors.New("catalog has no regions")
	}

	seen := make(map[string]bool, len(regions))
	for _, r := range regions {
		key := normalize(r.Key)
		if key == "" {
			return nil, fmt.Errorf("region %q has no key", r.Name)
		}
		if seen[key] {
			return nil, fmt.Errorf("duplicate region key %q", r.Key)
		}
		seen[key] = true

		for _, c := range r.Clips {
			if err := c.Polygon.Validate(); err != nil {
				return nil, fmt.Errorf("region %s clip %q: %w", r.Key, c.Name, err)
			}
		}
	}

	c := &Catalog{regions: append([]Region(nil), regions...), logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Regions returns the catalogued regions in order.
func (c *Catalog) Regions() []Region {
	return append([]Region(nil), c.regions...)
}

// Lookup matches a query against keys, names and aliases. Exact matches win;
// otherwise the first region whose name appears in the query, or whose name
// contains the query, is returned.
func (c *Catalog) Lookup(query string) (Region, bool) {
	q := normalize(query)
	if q == "" {
		return Region{}, false
	}

	for _, r := range c.regions {
		for _, n := range r.names() {
			if n == q {
				return r, true
			}
		}
	}
	for _, r := range c.regions {
		for _, n := range r.names() {
			if strings.Contains(q, n) || (len(q) >= 3 && strings.Contains(n, q)) {
				return r, true
			}
		}
	}
	return Region{}, false
}

// Resolve looks the query up in the catalog and, failing that, geocodes it
// and returns the region whose bounds contain the place.
func (c *Catalog) Resolve(ctx context.Context, query string) (Region, error) {
	if r, ok := c.Lookup(query); ok {
		return r, nil
	}
	if c.geocoder == nil {
		return Region{}, fmt.Errorf("%w: %q", ErrRegionNotFound, query)
	}

	res, err := c.geocoder.ForwardGeocode(ctx, query)
	if err != nil {
		c.logger.Warn("region geocoding failed", "query", query, "error", err)
		return Region{}, fmt.Errorf("%w: %q", ErrRegionNotFound, query)
	}
	if res.Lat == 0 && res.Lon == 0 {
		return Region{}, fmt.Errorf("%w: %q", ErrRegionNotFound, query)
	}

	pt := orb.Point{res.Lon, res.Lat}
	for _, r := range c.regions {
		if !r.Bounds.IsZero() && r.Bounds.Contains(pt) {
			c.logger.Debug("region resolved by geocoding",
				"query", query,
				"place", res.PlaceName,
				"region", r.Key,
			)
			return r, nil
		}
	}
	return Region{}, fmt.Errorf("%w: %q geocodes to %.4f,%.4f outside every region", ErrRegionNotFound, query, res.Lat, res.Lon)
}

func (r Region) names() []string {
	out := make([]string, 0, 2+len(r.Aliases))
	for _, n := range append([]string{r.Key, r.Name}, r.Aliases...) {
		if n = normalize(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// normalize lowercases and folds underscores, hyphens and runs of spaces.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
