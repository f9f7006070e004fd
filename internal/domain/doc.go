// Package domain defines the wire contract of the snow analysis service: the
// analysis request accepted over HTTP and Kafka, and the snow report it
// produces.
//
// # Requests
//
// A request names a region by catalog key, display name or alias, matched
// case-insensitively with underscores and spaces treated alike:
//
//	{"region": "european alps", "clip": "Region 1"}
//	{"region": "Siachen", "polygon": [[700000,3700000],[700000,3720000],[720000,3720000]]}
//
// Clip selects one of the region's predefined polygons; polygon supplies a
// custom ring in the raster CRS (UTM metres for Sentinel-2 tiles). The two are
// mutually exclusive. Omitting both analyses the full tile.
//
// Optional overrides fall back to service configuration when absent:
//
//	ndsi_threshold  in [-1, 1], default 0.4
//	nir_threshold   in [0, 1],  default 0.3
//	resolution      metres per pixel, default 10
//	sigma           Gaussian denoise sigma in pixels, used when denoise is set
//	all_touched     clip by cell footprint instead of cell centre
//
// Unknown JSON fields are rejected. Validation failures wrap [ErrInvalidRequest].
//
// # Reports
//
// A report carries pixel counts, areas in km² (count × resolution² / 1e6), the
// snow fraction of the analysed grid, and the summary line of each stage in
// execution order:
//
//	Snow pixels detected: 18204
//	Dry snow: 15011, Wet snow: 3193
//	Total snow area: 1.82 km²
//
// On the sink topic reports are keyed by region and carry region,
// processed_at (RFC 3339 UTC) and, when known, request_id headers.
// ProcessedAt comes from the package clock; see [SetClock].
package domain
