// Package snow detects and measures snow cover from a co-registered band stack.
//
// # Normalized Difference Snow Index
//
// Snow is bright in visible green and dark in shortwave infrared, so the
// normalized difference of the two separates it from cloud-free rock, soil and
// vegetation:
//
//	NDSI = (green - swir1) / (green + swir1 + ε),  ε = 1e-6
//
// ε keeps the ratio finite where both bands are zero (no-data fill, deep shadow).
// For non-negative reflectance the index lies in [-1, 1]. Values are not clamped:
// negative reflectance from a badly calibrated product can push the index out of
// range, and callers are expected to supply scaled surface reflectance.
//
// Sentinel-2 Level-2A conventions:
//
//	green = B03 (10 m), swir1 = B11 (20 m, resampled to 10 m), nir = B08 (10 m)
//	surface reflectance is stored as DN / 10000; thresholds below assume the
//	scaled 0..1 range
//
// A cell is snow when NDSI > 0.4, the threshold used by the MODIS and Sentinel-2
// snow products.
//
// # Dry and Wet Snow
//
// Liquid water in the snowpack lowers near-infrared reflectance. Snow cells are
// split on the NIR band:
//
//	dry = snow AND nir >  0.3
//	wet = snow AND nir <= 0.3
//
// The two masks are disjoint and together equal the snow mask.
//
// # Area
//
// Pixel counts convert to square kilometres assuming square, north-up pixels of
// a single ground sample distance (true for stacks resampled onto the 10 m grid):
//
//	area_km2 = count * resolution² / 1e6
package snow
