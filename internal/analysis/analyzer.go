// Package analysis runs a snow analysis end to end: region lookup, band
// stacking, optional clipping and preprocessing, NDSI thresholding, dry/wet
// classification and area estimation.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/couchcryptid/snowsense/internal/catalog"
	"github.com/couchcryptid/snowsense/internal/clip"
	"github.com/couchcryptid/snowsense/internal/domain"
	"github.com/couchcryptid/snowsense/internal/preprocess"
	"github.com/couchcryptid/snowsense/internal/raster"
	"github.com/couchcryptid/snowsense/internal/session"
	"github.com/couchcryptid/snowsense/internal/snow"
	"github.com/google/uuid"
)

// Stage names used for timings and metrics.
const (
	StageResolve   = "resolve"
	StageStack     = "stack"
	StageClip      = "clip"
	StageNormalize = "normalize"
	StageDenoise   = "denoise"
	StageIndex     = "index"
	StageClassify  = "classify"
	StageArea      = "area"
	StageStore     = "store"
)

// Resolver maps a region query to a catalogued region.
type Resolver interface {
	Resolve(ctx context.Context, query string) (catalog.Region, error)
}

// Stacker builds the band stack of a region directory.
type Stacker interface {
	Stack(ctx context.Context, dir string) (*raster.Stack, raster.GeoProfile, error)
}

// Recorder receives per-analysis measurements.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	ObserveSnowArea(km2 float64)
}

// Settings are the defaults applied when a request leaves a parameter unset.
type Settings struct {
	NDSIThreshold float64
	NIRThreshold  float64
	Resolution    float64
	Sigma         float64
	AllTouched    bool
}

// DefaultSettings returns the Sentinel-2 defaults.
func DefaultSettings() Settings {
	return Settings{
		NDSIThreshold: snow.DefaultThreshold,
		NIRThreshold:  snow.DefaultNIRThreshold,
		Resolution:    snow.DefaultResolution,
		Sigma:         preprocess.DefaultSigma,
	}
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithSettings replaces the request defaults.
func WithSettings(s Settings) Option {
	return func(a *Analyzer) { a.settings = s }
}

// WithSessionStore keeps artifacts for requests that ask for them.
func WithSessionStore(s session.Store) Option {
	return func(a *Analyzer) { a.store = s }
}

// WithRecorder reports stage timings and snow areas.
func WithRecorder(r Recorder) Option {
	return func(a *Analyzer) { a.recorder = r }
}

// Analyzer is safe for concurrent use; each call works on its own stack.
type Analyzer struct {
	resolver Resolver
	stacker  Stacker
	dataDir  string
	settings Settings
	store    session.Store
	recorder Recorder
	logger   *slog.Logger
}

// New creates an Analyzer reading region directories under dataDir.
func New(resolver Resolver, stacker Stacker, dataDir string, logger *slog.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		resolver: resolver,
		stacker:  stacker,
		dataDir:  dataDir,
		settings: DefaultSettings(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Settings returns the defaults in effect.
func (a *Analyzer) Settings() Settings { return a.settings }

// Result is the report together with the artifacts it was computed from.
type Result struct {
	Report  domain.SnowReport
	Stack   *raster.Stack
	Profile raster.GeoProfile
	Snow    *raster.Mask
	Dry     *raster.Mask
	Wet     *raster.Mask
}

// Analyze runs every stage the request asks for. Errors from the raster
// packages are returned wrapped but keep their type for errors.As.
func (a *Analyzer) Analyze(ctx context.Context, req domain.AnalysisRequest) (Result, error) {
	if err := domain.ValidateRequest(req); err != nil {
		return Result{}, err
	}

	run := &run{analyzer: a}
	p := a.params(req)

	var region catalog.Region
	err := run.stage(StageResolve, func() error {
		var err error
		region, err = a.resolver.Resolve(ctx, req.Region)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	var (
		stack   *raster.Stack
		profile raster.GeoProfile
	)
	err = run.stage(StageStack, func() error {
		var err error
		stack, profile, err = a.stacker.Stack(ctx, filepath.Join(a.dataDir, region.Dir))
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("stack region %s: %w", region.Key, err)
	}

	polygon, clipName, err := a.polygon(region, req)
	if err != nil {
		return Result{}, err
	}
	if polygon != nil {
		clipper := clip.New(clip.GeometryMasker{AllTouched: p.AllTouched}, a.logger)
		err = run.stage(StageClip, func() error {
			var err error
			stack, profile, err = clipper.Clip(ctx, stack, profile, polygon)
			return err
		})
		if err != nil {
			return Result{}, fmt.Errorf("clip region %s: %w", region.Key, err)
		}
	}

	if req.Normalize {
		err = run.stage(StageNormalize, func() error {
			var err error
			stack, err = preprocess.Normalize(ctx, stack)
			return err
		})
		if err != nil {
			return Result{}, fmt.Errorf("normalize: %w", err)
		}
	}

	if req.Denoise {
		err = run.stage(StageDenoise, func() error {
			var err error
			stack, err = preprocess.Denoise(ctx, stack, p.Sigma)
			return err
		})
		if err != nil {
			return Result{}, fmt.Errorf("denoise: %w", err)
		}
	}

	var (
		snowMask, dry, wet *raster.Mask
		summaries          []raster.Summary
	)
	err = run.stage(StageIndex, func() error {
		mask, summary, err := snow.ComputeIndex(stack, p.NDSIThreshold)
		snowMask = mask
		summaries = append(summaries, summary)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("compute index: %w", err)
	}

	err = run.stage(StageClassify, func() error {
		var (
			summary raster.Summary
			err     error
		)
		dry, wet, summary, err = snow.Classify(stack, snowMask, p.NIRThreshold)
		summaries = append(summaries, summary)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("classify snow: %w", err)
	}

	var snowArea, dryArea, wetArea float64
	_ = run.stage(StageArea, func() error {
		var summary raster.Summary
		snowArea, summary = snow.ComputeArea(snowMask, p.Resolution)
		dryArea, _ = snow.ComputeArea(dry, p.Resolution)
		wetArea, _ = snow.ComputeArea(wet, p.Resolution)
		summaries = append(summaries, summary)
		return nil
	})

	rows, cols := stack.Dims()
	report := domain.SnowReport{
		ID:          uuid.NewString(),
		RequestID:   req.RequestID,
		Region:      region.Key,
		RegionName:  region.Name,
		Clip:        clipName,
		CRS:         profile.CRS,
		Rows:        rows,
		Cols:        cols,
		Resolution:  p.Resolution,
		SnowPixels:  snowMask.Count(),
		DryPixels:   dry.Count(),
		WetPixels:   wet.Count(),
		SnowAreaKm2: snowArea,
		DryAreaKm2:  dryArea,
		WetAreaKm2:  wetArea,
	}
	if cells := rows * cols; cells > 0 {
		report.SnowFraction = float64(report.SnowPixels) / float64(cells)
	}
	for _, s := range summaries {
		report.Summaries = append(report.Summaries, s.String())
	}

	result := Result{Report: report, Stack: stack, Profile: profile, Snow: snowMask, Dry: dry, Wet: wet}

	if req.KeepArtifacts {
		if a.store == nil {
			a.logger.Warn("artifacts requested but no session store configured", "request_id", req.RequestID)
		} else {
			id := req.SessionID
			if id == "" {
				id = session.NewID()
			}
			err = run.stage(StageStore, func() error {
				return a.store.Put(ctx, session.Entry{
					ID:      id,
					Profile: profile,
					Stack:   stack,
					Masks: map[session.Stage]*raster.Mask{
						session.StageSnow: snowMask,
						session.StageDry:  dry,
						session.StageWet:  wet,
					},
				})
			})
			if err != nil {
				return Result{}, fmt.Errorf("store session: %w", err)
			}
			result.Report.SessionID = id
		}
	}

	result.Report.Stages = run.timings
	result.Report.ProcessedAt = domain.Now()
	if a.recorder != nil {
		a.recorder.ObserveSnowArea(snowArea)
	}

	a.logger.Info("analysis complete",
		"request_id", req.RequestID,
		"region", region.Key,
		"clip", clipName,
		"snow_pixels", report.SnowPixels,
		"snow_area_km2", snowArea,
		"duration", run.total(),
	)
	return result, nil
}

// params merges request overrides onto the defaults.
func (a *Analyzer) params(req domain.AnalysisRequest) Settings {
	p := a.settings
	if req.NDSIThreshold != nil {
		p.NDSIThreshold = *req.NDSIThreshold
	}
	if req.NIRThreshold != nil {
		p.NIRThreshold = *req.NIRThreshold
	}
	if req.Resolution != nil {
		p.Resolution = *req.Resolution
	}
	if req.Sigma != nil {
		p.Sigma = *req.Sigma
	}
	if req.AllTouched != nil {
		p.AllTouched = *req.AllTouched
	}
	return p
}

// polygon returns the clip polygon for the request, or nil for the full tile.
func (a *Analyzer) polygon(region catalog.Region, req domain.AnalysisRequest) (clip.Polygon, string, error) {
	switch {
	case req.Clip != "":
		p, ok := region.Clip(req.Clip)
		if !ok {
			return nil, "", &raster.InvalidPolygonError{
				Reason: fmt.Sprintf("region %s has no clip %q (have %v)", region.Key, req.Clip, region.ClipNames()),
			}
		}
		return p, req.Clip, nil
	case len(req.Polygon) > 0:
		return clip.FromPairs(req.Polygon), "custom", nil
	}
	return nil, "", nil
}

type run struct {
	analyzer *Analyzer
	timings  []domain.StageTiming
}

func (r *run) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	if err != nil {
		r.analyzer.logger.Debug("analysis stage failed", "stage", name, "duration", d, "error", err)
		return err
	}
	r.timings = append(r.timings, domain.StageTiming{Stage: name, Seconds: d.Seconds()})
	if r.analyzer.recorder != nil {
		r.analyzer.recorder.ObserveStage(name, d)
	}
	return nil
}

func (r *run) total() time.Duration {
	var s float64
	for _, t := range r.timings {
		s += t.Seconds
	}
	return time.Duration(s * float64(time.Second))
}
