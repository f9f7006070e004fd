// Command analyze runs one snow analysis against a local data directory and
// prints a stage-by-stage report. It can also write the report as JSON and
// render preview PNGs of the stack and masks.
//
// Usage:
//
//	go run ./cmd/analyze \
//	  -data-dir Data \
//	  -region "European Alps" \
//	  -clip "Region 1" \
//	  -json report.json \
//	  -preview-dir previews
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/couchcryptid/snowsense/internal/analysis"
	"github.com/couchcryptid/snowsense/internal/catalog"
	"github.com/couchcryptid/snowsense/internal/clip"
	"github.com/couchcryptid/snowsense/internal/domain"
	"github.com/couchcryptid/snowsense/internal/gridio"
	"github.com/couchcryptid/snowsense/internal/preview"
	"github.com/couchcryptid/snowsense/internal/stacker"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

type options struct {
	dataDir    string
	manifest   string
	catalog    string
	region     string
	clipName   string
	polygon    string
	normalize  bool
	denoise    bool
	sigma      float64
	ndsi       float64
	nir        float64
	resolution float64
	allTouched bool
	jsonOut    string
	previewDir string
	downsample int
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	def := analysis.DefaultSettings()
	var o options

	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.dataDir, "data-dir", "Data", "directory holding one sub-directory per region")
	fs.StringVar(&o.manifest, "manifest", "", "band manifest YAML (default: Sentinel-2 layout)")
	fs.StringVar(&o.catalog, "catalog", "", "region catalog YAML (default: built-in regions)")
	fs.StringVar(&o.region, "region", "", "region key, name or alias (required)")
	fs.StringVar(&o.clipName, "clip", "", "named clip polygon of the region")
	fs.StringVar(&o.polygon, "polygon", "", "GeoJSON file with a custom clip polygon")
	fs.BoolVar(&o.normalize, "normalize", false, "min-max normalize every band")
	fs.BoolVar(&o.denoise, "denoise", false, "apply a Gaussian filter to every band")
	fs.Float64Var(&o.sigma, "sigma", def.Sigma, "Gaussian sigma in pixels")
	fs.Float64Var(&o.ndsi, "ndsi-threshold", def.NDSIThreshold, "NDSI snow threshold")
	fs.Float64Var(&o.nir, "nir-threshold", def.NIRThreshold, "NIR dry/wet threshold")
	fs.Float64Var(&o.resolution, "resolution", def.Resolution, "pixel edge in metres for area")
	fs.BoolVar(&o.allTouched, "all-touched", false, "include every pixel the clip polygon touches")
	fs.StringVar(&o.jsonOut, "json", "", "write the report as JSON to this path (- for stdout)")
	fs.StringVar(&o.previewDir, "preview-dir", "", "write rgb.png, snow.png and classes.png here")
	fs.IntVar(&o.downsample, "downsample", preview.DefaultDownsample, "preview downsample factor")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.region == "" {
		fs.Usage()
		return options{}, fmt.Errorf("missing required flag: -region")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}

	logger := sharedobs.NewLogger(o.logLevel, "text")

	analyzer, err := newAnalyzer(o, logger)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}
	req, err := buildRequest(o)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}

	res, err := analyzer.Analyze(ctx, req)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: analysis failed: %v\n", err)
		return 1
	}

	if o.jsonOut != "-" {
		printReport(stdout, res.Report)
	}
	if o.jsonOut != "" {
		if err := writeJSON(o.jsonOut, stdout, res.Report); err != nil {
			fmt.Fprintf(stderr, "FATAL: %v\n", err)
			return 1
		}
	}
	if o.previewDir != "" {
		if err := writePreviews(o.previewDir, o.downsample, res); err != nil {
			fmt.Fprintf(stderr, "FATAL: %v\n", err)
			return 1
		}
	}
	return 0
}

func newAnalyzer(o options, logger *slog.Logger) (*analysis.Analyzer, error) {
	regions := catalog.Builtin()
	if o.catalog != "" {
		var err error
		if regions, err = catalog.LoadRegions(o.catalog); err != nil {
			return nil, err
		}
	}
	cat, err := catalog.New(regions, catalog.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}

	manifest := stacker.Sentinel2()
	if o.manifest != "" {
		if manifest, err = stacker.LoadManifest(o.manifest); err != nil {
			return nil, err
		}
	}

	st := stacker.New(manifest, gridio.Reader{}, logger)
	return analysis.New(cat, st, o.dataDir, logger, analysis.WithSettings(analysis.Settings{
		NDSIThreshold: o.ndsi,
		NIRThreshold:  o.nir,
		Resolution:    o.resolution,
		Sigma:         o.sigma,
		AllTouched:    o.allTouched,
	})), nil
}

func buildRequest(o options) (domain.AnalysisRequest, error) {
	req := domain.AnalysisRequest{
		RequestID: "cli",
		Region:    o.region,
		Clip:      o.clipName,
		Normalize: o.normalize,
		Denoise:   o.denoise,
	}
	if o.polygon != "" {
		data, err := os.ReadFile(o.polygon)
		if err != nil {
			return domain.AnalysisRequest{}, fmt.Errorf("read polygon: %w", err)
		}
		poly, err := clip.FromGeoJSON(data)
		if err != nil {
			return domain.AnalysisRequest{}, err
		}
		req.Polygon = poly.Pairs()
	}
	return req, nil
}

func printReport(w io.Writer, r domain.SnowReport) {
	fmt.Fprintln(w, "=== Snow Cover Analysis ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Region: %s (%s)\n", r.RegionName, r.Region)
	if r.Clip != "" {
		fmt.Fprintf(w, "Clip:   %s\n", r.Clip)
	}
	fmt.Fprintf(w, "Grid:   %d x %d at %g m\n", r.Rows, r.Cols, r.Resolution)
	fmt.Fprintln(w)

	for _, st := range r.Stages {
		fmt.Fprintf(w, "  %-12s %8.3fs\n", st.Stage, st.Seconds)
	}
	fmt.Fprintln(w)
	for _, s := range r.Summaries {
		fmt.Fprintln(w, s)
	}
	fmt.Fprintf(w, "Snow fraction: %.1f%%\n", 100*r.SnowFraction)
}

func writeJSON(path string, stdout io.Writer, r domain.SnowReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')
	if path == "-" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func writePreviews(dir string, factor int, res analysis.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preview dir: %w", err)
	}

	rgb, err := preview.RGB(res.Stack, factor)
	if err != nil {
		return fmt.Errorf("render rgb: %w", err)
	}
	snow, err := preview.Mask(res.Snow, factor)
	if err != nil {
		return fmt.Errorf("render snow mask: %w", err)
	}
	classes, err := preview.Classes(res.Dry, res.Wet, factor)
	if err != nil {
		return fmt.Errorf("render classes: %w", err)
	}

	for name, img := range map[string]image.Image{"rgb.png": rgb, "snow.png": snow, "classes.png": classes} {
		if err := writePNG(filepath.Join(dir, name), img); err != nil {
			return err
		}
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := preview.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}
