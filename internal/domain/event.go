package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// AnalysisRequest asks for a snow analysis of one region. Pointer fields are
// optional overrides of the service defaults.
type AnalysisRequest struct {
	RequestID string `json:"request_id,omitempty" validate:"omitempty,max=128"`
	Region    string `json:"region" validate:"required,max=200"`

	// Clip names one of the region's predefined polygons. Polygon supplies a
	// custom ring of [x, y] vertices in the raster CRS. At most one is set.
	Clip    string       `json:"clip,omitempty" validate:"omitempty,max=200,excluded_with=Polygon"`
	Polygon [][2]float64 `json:"polygon,omitempty" validate:"omitempty,min=3"`

	Normalize bool     `json:"normalize,omitempty"`
	Denoise   bool     `json:"denoise,omitempty"`
	Sigma     *float64 `json:"sigma,omitempty" validate:"omitempty,gte=0,lte=10"`

	NDSIThreshold *float64 `json:"ndsi_threshold,omitempty" validate:"omitempty,gte=-1,lte=1"`
	NIRThreshold  *float64 `json:"nir_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	Resolution    *float64 `json:"resolution,omitempty" validate:"omitempty,gt=0"`
	AllTouched    *bool    `json:"all_touched,omitempty"`

	// KeepArtifacts stores the stack and masks in the session store. SessionID
	// reuses an existing session instead of allocating a new one.
	KeepArtifacts bool   `json:"keep_artifacts,omitempty"`
	SessionID     string `json:"session_id,omitempty" validate:"omitempty,uuid"`
}

// StageTiming records how long one analysis stage took.
type StageTiming struct {
	Stage   string  `json:"stage"`
	Seconds float64 `json:"seconds"`
}

// SnowReport is the outcome of one analysis, published to the sink topic and
// returned by the HTTP API.
type SnowReport struct {
	ID         string `json:"id"`
	RequestID  string `json:"request_id,omitempty"`
	Region     string `json:"region"`
	RegionName string `json:"region_name,omitempty"`
	Clip       string `json:"clip,omitempty"`
	CRS        string `json:"crs,omitempty"`

	Rows       int     `json:"rows"`
	Cols       int     `json:"cols"`
	Resolution float64 `json:"resolution_m"`

	SnowPixels   int     `json:"snow_pixels"`
	DryPixels    int     `json:"dry_pixels"`
	WetPixels    int     `json:"wet_pixels"`
	SnowAreaKm2  float64 `json:"snow_area_km2"`
	DryAreaKm2   float64 `json:"dry_area_km2"`
	WetAreaKm2   float64 `json:"wet_area_km2"`
	SnowFraction float64 `json:"snow_fraction"`

	// Summaries holds the human-readable line of each stage in order.
	Summaries []string      `json:"summaries"`
	Stages    []StageTiming `json:"stages,omitempty"`

	SessionID   string    `json:"session_id,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
